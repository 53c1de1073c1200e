package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateVaultNonNegative checks a market vault never goes below zero.
// User wallets are exempt: they are boundary accounts whose custody sits
// outside this ledger.
func (v *InvariantValidator) ValidateVaultNonNegative(marketID uint64) error {
	return v.tracker.ValidateNonNegative(NewVaultKey(marketID))
}

// ValidateFeeVaultNonNegative checks the protocol fee vault stays >= 0.
func (v *InvariantValidator) ValidateFeeVaultNonNegative() error {
	return v.tracker.ValidateNonNegative(FeeVaultKey())
}

// ValidateGlobalBalance verifies the ledger is zero-sum
func (v *InvariantValidator) ValidateGlobalBalance() error {
	if total := v.tracker.ComputeGlobalBalance(); total != 0 {
		return fmt.Errorf("global balance is non-zero: %d", total)
	}
	return nil
}
