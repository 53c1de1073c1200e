package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// VaultBalance returns the escrowed funds of one market.
func (bt *BalanceTracker) VaultBalance(marketID uint64) int64 {
	return bt.GetBalance(NewVaultKey(marketID))
}

// FeeVaultBalance returns the accrued protocol fees.
func (bt *BalanceTracker) FeeVaultBalance() int64 {
	return bt.GetBalance(FeeVaultKey())
}

// UserWalletBalance returns a user's boundary wallet balance. Negative
// values mean the user has net-paid into the system.
func (bt *BalanceTracker) UserWalletBalance(userID uuid.UUID) int64 {
	return bt.GetBalance(NewUserWalletKey(userID))
}

// === Invariant Checks ===

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ValidateVaultCovers checks that a market vault holds at least `required`.
func (bt *BalanceTracker) ValidateVaultCovers(marketID uint64, required int64) error {
	balance := bt.VaultBalance(marketID)
	if balance < required {
		return fmt.Errorf("vault for market %d cannot cover transfer: have=%d, need=%d",
			marketID, balance, required)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances (0 for a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() int64 {
	var total int64
	for _, balance := range bt.balances {
		total += balance
	}
	return total
}

// Snapshot returns a copy of all balances (for state hashing)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}

// Restore replaces all balances (snapshot recovery path).
func (bt *BalanceTracker) Restore(balances map[AccountKey]int64) {
	bt.balances = make(map[AccountKey]int64, len(balances))
	for k, v := range balances {
		bt.balances[k] = v
	}
}
