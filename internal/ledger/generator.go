package ledger

import (
	"fmt"
	"math"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from operations
type JournalGenerator struct {
	sequence       int64
	balanceTracker *BalanceTracker // Reference for pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence:       startSequence,
		balanceTracker: tracker,
	}
}

// SetSequence resets the generator's sequence (snapshot recovery path).
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func checkedAmount(amount uint64) (int64, error) {
	if amount > math.MaxInt64 {
		return 0, fmt.Errorf("amount %d exceeds ledger range", amount)
	}
	return int64(amount), nil
}

// GenerateSeedLiquidity escrows market creation funds.
// Moves funds: authority wallet to market vault (2x initial liquidity,
// matching the doubled pool exposure).
func (jg *JournalGenerator) GenerateSeedLiquidity(
	authority uuid.UUID,
	opRef string,
	marketID uint64,
	escrowAmount uint64,
	timestamp int64,
) (*Batch, error) {
	amount, err := checkedAmount(escrowAmount)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		OpRef:     opRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals: []Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			OpRef:         opRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewVaultKey(marketID),
			CreditAccount: NewUserWalletKey(authority),
			Amount:        amount,
			JournalType:   JournalTypeSeedLiquidity,
			Timestamp:     timestamp,
		}},
	}

	jg.sequence++
	return batch, nil
}

// GenerateBuyShares records one trade: the full amount enters the vault,
// then the fee leg moves from the vault to the protocol fee vault. The two
// legs share a batch so a buy is atomic in the ledger.
func (jg *JournalGenerator) GenerateBuyShares(
	userID uuid.UUID,
	opRef string,
	marketID uint64,
	amount uint64,
	fee uint64,
	timestamp int64,
) (*Batch, error) {
	total, err := checkedAmount(amount)
	if err != nil {
		return nil, err
	}
	feeAmount, err := checkedAmount(fee)
	if err != nil {
		return nil, err
	}
	if feeAmount > total {
		return nil, fmt.Errorf("fee %d exceeds trade amount %d", feeAmount, total)
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		OpRef:     opRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals:  make([]Journal, 0, 2),
	}

	batch.Journals = append(batch.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       batchID,
		OpRef:         opRef,
		Sequence:      jg.sequence,
		DebitAccount:  NewVaultKey(marketID),
		CreditAccount: NewUserWalletKey(userID),
		Amount:        total,
		JournalType:   JournalTypeTradePrincipal,
		Timestamp:     timestamp,
	})

	if feeAmount > 0 {
		batch.Journals = append(batch.Journals, Journal{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			OpRef:         opRef,
			Sequence:      jg.sequence,
			DebitAccount:  FeeVaultKey(),
			CreditAccount: NewVaultKey(marketID),
			Amount:        feeAmount,
			JournalType:   JournalTypeTradeFee,
			Timestamp:     timestamp,
		})
	}

	jg.sequence++
	return batch, nil
}

// GenerateClaimPayout pays a settled winner from the market vault.
// Pre-check: the vault must cover the payout.
func (jg *JournalGenerator) GenerateClaimPayout(
	userID uuid.UUID,
	opRef string,
	marketID uint64,
	payout uint64,
	timestamp int64,
) (*Batch, error) {
	amount, err := checkedAmount(payout)
	if err != nil {
		return nil, err
	}
	if err := jg.balanceTracker.ValidateVaultCovers(marketID, amount); err != nil {
		return nil, fmt.Errorf("claim pre-check failed: %w", err)
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		OpRef:     opRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals: []Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			OpRef:         opRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewUserWalletKey(userID),
			CreditAccount: NewVaultKey(marketID),
			Amount:        amount,
			JournalType:   JournalTypeClaimPayout,
			Timestamp:     timestamp,
		}},
	}

	jg.sequence++
	return batch, nil
}

// GenerateSweep drains the post-settlement residual to the authority.
// Pre-check: the vault must cover the residual.
func (jg *JournalGenerator) GenerateSweep(
	authority uuid.UUID,
	opRef string,
	marketID uint64,
	residual uint64,
	timestamp int64,
) (*Batch, error) {
	amount, err := checkedAmount(residual)
	if err != nil {
		return nil, err
	}
	if err := jg.balanceTracker.ValidateVaultCovers(marketID, amount); err != nil {
		return nil, fmt.Errorf("sweep pre-check failed: %w", err)
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		OpRef:     opRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals: []Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			OpRef:         opRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewUserWalletKey(authority),
			CreditAccount: NewVaultKey(marketID),
			Amount:        amount,
			JournalType:   JournalTypeSweepResidual,
			Timestamp:     timestamp,
		}},
	}

	jg.sequence++
	return batch, nil
}

// GenerateFeeWithdrawal drains accrued protocol fees to the authority.
func (jg *JournalGenerator) GenerateFeeWithdrawal(
	authority uuid.UUID,
	opRef string,
	accrued uint64,
	timestamp int64,
) (*Batch, error) {
	amount, err := checkedAmount(accrued)
	if err != nil {
		return nil, err
	}
	if have := jg.balanceTracker.FeeVaultBalance(); have < amount {
		return nil, fmt.Errorf("fee withdrawal pre-check failed: have=%d, need=%d", have, amount)
	}

	batchID := uuid.New()
	batch := &Batch{
		BatchID:   batchID,
		OpRef:     opRef,
		Sequence:  jg.sequence,
		Timestamp: timestamp,
		Journals: []Journal{{
			JournalID:     uuid.New(),
			BatchID:       batchID,
			OpRef:         opRef,
			Sequence:      jg.sequence,
			DebitAccount:  NewUserWalletKey(authority),
			CreditAccount: FeeVaultKey(),
			Amount:        amount,
			JournalType:   JournalTypeFeeWithdrawal,
			Timestamp:     timestamp,
		}},
	}

	jg.sequence++
	return batch, nil
}
