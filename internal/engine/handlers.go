package engine

import (
	"fmt"
	"math/big"

	"PredMarket/internal/account"
	"PredMarket/internal/amm"
	"PredMarket/internal/ledger"
	umath "PredMarket/internal/math"
	"PredMarket/internal/op"
)

// Every handler follows the same contract: all fallible validation and
// computation first, record mutation last. Journal generation counts as
// fallible (it pre-checks balances), so batches are built before any record
// changes.

func (e *Engine) handleInitialize(o *op.Initialize) (*ledger.Batch, touched, error) {
	if e.store.Config() != nil {
		return nil, touched{}, op.ErrAlreadyInitialized
	}

	configAddr, bump := account.ConfigAddress()
	feeVaultAddr, _ := account.FeeVaultAddress()
	if o.ConfigAddr != configAddr {
		return nil, touched{}, fmt.Errorf("config account: %w", op.ErrAccountMismatch)
	}
	if o.FeeVault != feeVaultAddr {
		return nil, touched{}, fmt.Errorf("fee vault account: %w", op.ErrAccountMismatch)
	}

	feeBps := o.FeeBps
	if feeBps == 0 {
		feeBps = account.DefaultFeeBps
	}
	if feeBps > amm.FeeDenominator {
		return nil, touched{}, fmt.Errorf("fee_bps %d: %w", feeBps, op.ErrInvalidAmount)
	}

	cfg := &account.Config{
		Authority:   o.Authority,
		MarketCount: 0,
		FeeBps:      feeBps,
		Bump:        bump,
		Version:     1,
	}
	e.store.SetConfig(cfg)

	return nil, touched{config: cfg}, nil
}

func (e *Engine) handleCreateMarket(o *op.CreateMarket) (*ledger.Batch, touched, error) {
	cfg := e.store.Config()
	if cfg == nil {
		return nil, touched{}, op.ErrNotInitialized
	}
	if o.Authority != cfg.Authority {
		return nil, touched{}, op.ErrUnauthorized
	}

	if err := verifyAddr(o.ConfigAddr, account.ConfigAddress, "config"); err != nil {
		return nil, touched{}, err
	}
	marketAddr, marketBump := account.MarketAddress(o.Market)
	if o.MarketAddr != marketAddr {
		return nil, touched{}, fmt.Errorf("market account: %w", op.ErrAccountMismatch)
	}
	vaultAddr, vaultBump := account.VaultAddress(o.Market)
	if o.VaultAddr != vaultAddr {
		return nil, touched{}, fmt.Errorf("vault account: %w", op.ErrAccountMismatch)
	}

	if len(o.Question) > account.MaxQuestionLen {
		return nil, touched{}, op.ErrQuestionTooLong
	}
	if len(o.Description) > account.MaxDescriptionLen {
		return nil, touched{}, op.ErrDescriptionTooLong
	}
	if len(o.Category) > account.MaxCategoryLen {
		return nil, touched{}, op.ErrCategoryTooLong
	}
	if o.ResolutionTime <= o.SubmitTime.Unix() {
		return nil, touched{}, op.ErrInvalidResolutionTime
	}
	if o.InitialLiquidity < account.MinInitialLiquidity {
		return nil, touched{}, op.ErrInsufficientInitialLiquidity
	}
	if e.store.Market(o.Market) != nil {
		return nil, touched{}, fmt.Errorf("market %d: %w", o.Market, op.ErrMarketExists)
	}

	k, err := amm.SeedK(o.InitialLiquidity)
	if err != nil {
		return nil, touched{}, err
	}

	// Both pool sides are escrowed, so the vault takes 2x.
	escrow, ok := umath.MulU64(o.InitialLiquidity, 2)
	if !ok {
		return nil, touched{}, fmt.Errorf("escrow of %d: %w", o.InitialLiquidity, op.ErrArithmeticOverflow)
	}

	batch, err := e.journalGen.GenerateSeedLiquidity(
		o.Authority, o.IdempotencyKey(), o.Market, escrow, o.SubmitTime.UnixMicro())
	if err != nil {
		return nil, touched{}, err
	}

	m := &account.Market{
		MarketID:         o.Market,
		Authority:        o.Authority,
		Question:         o.Question,
		Description:      o.Description,
		Category:         o.Category,
		ResolutionTime:   o.ResolutionTime,
		CreatedAt:        o.SubmitTime.Unix(),
		InitialLiquidity: o.InitialLiquidity,
		YesLiquidity:     o.InitialLiquidity,
		NoLiquidity:      o.InitialLiquidity,
		KConstant:        k,
		TotalYesShares:   new(big.Int),
		TotalNoShares:    new(big.Int),
		ClaimedYesShares: new(big.Int),
		ClaimedNoShares:  new(big.Int),
		Bump:             marketBump,
		VaultBump:        vaultBump,
		Version:          1,
	}
	e.store.SetMarket(m)
	cfg.MarketCount++
	cfg.Version++

	return batch, touched{config: cfg, market: m}, nil
}

func (e *Engine) handleBuyShares(o *op.BuyShares) (*ledger.Batch, touched, error) {
	cfg := e.store.Config()
	if cfg == nil {
		return nil, touched{}, op.ErrNotInitialized
	}
	m := e.store.Market(o.Market)
	if m == nil {
		return nil, touched{}, fmt.Errorf("market %d not found: %w", o.Market, op.ErrAccountMismatch)
	}

	if err := verifyAddr(o.ConfigAddr, account.ConfigAddress, "config"); err != nil {
		return nil, touched{}, err
	}
	if err := verifyMarketAddrs(o.MarketAddr, o.VaultAddr, o.Market); err != nil {
		return nil, touched{}, err
	}
	positionAddr, positionBump := account.PositionAddress(o.User, o.Market)
	if o.PositionAddr != positionAddr {
		return nil, touched{}, fmt.Errorf("position account: %w", op.ErrAccountMismatch)
	}
	if err := verifyAddr(o.FeeVault, account.FeeVaultAddress, "fee vault"); err != nil {
		return nil, touched{}, err
	}

	if m.Resolved {
		return nil, touched{}, op.ErrMarketAlreadyResolved
	}
	if o.SubmitTime.Unix() >= m.ResolutionTime {
		return nil, touched{}, op.ErrMarketExpired
	}

	quote, err := amm.ComputeBuy(
		m.YesLiquidity, m.NoLiquidity, o.IsYes, o.Amount, cfg.FeeBps, o.MinSharesOut)
	if err != nil {
		return nil, touched{}, err
	}

	newVolume, ok := umath.AddU64(m.TotalVolume, o.Amount)
	if !ok {
		return nil, touched{}, fmt.Errorf("total volume: %w", op.ErrArithmeticOverflow)
	}

	pos := e.store.Position(o.User, o.Market)
	var newPosYes, newPosNo uint64
	if pos != nil {
		newPosYes, newPosNo = pos.YesShares, pos.NoShares
	}
	if o.IsYes {
		if newPosYes, ok = umath.AddU64(newPosYes, quote.SharesOut); !ok {
			return nil, touched{}, fmt.Errorf("position yes shares: %w", op.ErrArithmeticOverflow)
		}
	} else {
		if newPosNo, ok = umath.AddU64(newPosNo, quote.SharesOut); !ok {
			return nil, touched{}, fmt.Errorf("position no shares: %w", op.ErrArithmeticOverflow)
		}
	}

	batch, err := e.journalGen.GenerateBuyShares(
		o.User, o.IdempotencyKey(), o.Market, o.Amount, quote.Fee, o.SubmitTime.UnixMicro())
	if err != nil {
		return nil, touched{}, err
	}

	// Commit point: no fallible work below.
	m.YesLiquidity = quote.NewYes
	m.NoLiquidity = quote.NewNo
	m.KConstant = quote.NewK
	m.TotalVolume = newVolume
	shares := new(big.Int).SetUint64(quote.SharesOut)
	if o.IsYes {
		m.TotalYesShares.Add(m.TotalYesShares, shares)
	} else {
		m.TotalNoShares.Add(m.TotalNoShares, shares)
	}
	m.Version++

	if pos == nil {
		pos = &account.UserPosition{
			User:     o.User,
			MarketID: o.Market,
			Bump:     positionBump,
		}
		e.store.SetPosition(pos)
	}
	pos.YesShares = newPosYes
	pos.NoShares = newPosNo
	pos.Version++

	return batch, touched{market: m, position: pos}, nil
}

func (e *Engine) handleResolveMarket(o *op.ResolveMarket) (*ledger.Batch, touched, error) {
	cfg := e.store.Config()
	if cfg == nil {
		return nil, touched{}, op.ErrNotInitialized
	}
	if o.Authority != cfg.Authority {
		return nil, touched{}, op.ErrUnauthorized
	}
	m := e.store.Market(o.Market)
	if m == nil {
		return nil, touched{}, fmt.Errorf("market %d not found: %w", o.Market, op.ErrAccountMismatch)
	}
	if err := verifyAddr(o.ConfigAddr, account.ConfigAddress, "config"); err != nil {
		return nil, touched{}, err
	}
	marketAddr, _ := account.MarketAddress(o.Market)
	if o.MarketAddr != marketAddr {
		return nil, touched{}, fmt.Errorf("market account: %w", op.ErrAccountMismatch)
	}

	if m.Resolved {
		return nil, touched{}, op.ErrMarketAlreadyResolved
	}
	if e.resolveTimeGate && o.SubmitTime.Unix() < m.ResolutionTime {
		return nil, touched{}, op.ErrMarketNotExpired
	}

	vault := e.balances.VaultBalance(o.Market)
	if vault < 0 {
		panic(fmt.Sprintf("FATAL: market %d vault negative at resolution: %d", o.Market, vault))
	}

	outcome := o.OutcomeYes
	m.Resolved = true
	m.Outcome = &outcome
	// Snapshot the claim denominator base so payouts are independent of
	// claim order.
	m.PayoutPool = uint64(vault)
	m.Version++

	return nil, touched{market: m}, nil
}

func (e *Engine) handleClaimWinnings(o *op.ClaimWinnings) (*ledger.Batch, touched, error) {
	m := e.store.Market(o.Market)
	if m == nil {
		return nil, touched{}, fmt.Errorf("market %d not found: %w", o.Market, op.ErrAccountMismatch)
	}
	if err := verifyMarketAddrs(o.MarketAddr, o.VaultAddr, o.Market); err != nil {
		return nil, touched{}, err
	}
	positionAddr, _ := account.PositionAddress(o.User, o.Market)
	if o.PositionAddr != positionAddr {
		return nil, touched{}, fmt.Errorf("position account: %w", op.ErrAccountMismatch)
	}

	if !m.Resolved {
		return nil, touched{}, op.ErrMarketNotResolved
	}
	pos := e.store.Position(o.User, o.Market)
	if pos == nil {
		return nil, touched{}, fmt.Errorf("no position in market %d: %w", o.Market, op.ErrNotAWinner)
	}
	if pos.Claimed {
		return nil, touched{}, op.ErrAlreadyClaimed
	}
	winning := pos.WinningShares(*m.Outcome)
	if winning == 0 {
		return nil, touched{}, op.ErrNotAWinner
	}

	payout, err := amm.Payout(winning, m.PayoutPool, m.TotalWinningShares())
	if err != nil {
		return nil, touched{}, err
	}
	if payout == 0 {
		return nil, touched{}, fmt.Errorf("payout rounds to zero: %w", op.ErrNotAWinner)
	}

	batch, err := e.journalGen.GenerateClaimPayout(
		o.User, o.IdempotencyKey(), o.Market, payout, o.SubmitTime.UnixMicro())
	if err != nil {
		return nil, touched{}, err
	}

	pos.Claimed = true
	pos.Version++
	claimed := new(big.Int).SetUint64(winning)
	if *m.Outcome {
		m.ClaimedYesShares.Add(m.ClaimedYesShares, claimed)
	} else {
		m.ClaimedNoShares.Add(m.ClaimedNoShares, claimed)
	}
	m.Version++

	return batch, touched{market: m, position: pos}, nil
}

func (e *Engine) handleSweepFunds(o *op.SweepFunds) (*ledger.Batch, touched, error) {
	cfg := e.store.Config()
	if cfg == nil {
		return nil, touched{}, op.ErrNotInitialized
	}
	if o.Authority != cfg.Authority {
		return nil, touched{}, op.ErrUnauthorized
	}
	m := e.store.Market(o.Market)
	if m == nil {
		return nil, touched{}, fmt.Errorf("market %d not found: %w", o.Market, op.ErrAccountMismatch)
	}
	if err := verifyAddr(o.ConfigAddr, account.ConfigAddress, "config"); err != nil {
		return nil, touched{}, err
	}
	if err := verifyMarketAddrs(o.MarketAddr, o.VaultAddr, o.Market); err != nil {
		return nil, touched{}, err
	}

	if !m.Resolved {
		return nil, touched{}, op.ErrMarketNotResolved
	}

	// Funds still owed to unclaimed winners stay in the vault.
	outstanding, err := outstandingEntitlement(m)
	if err != nil {
		return nil, touched{}, err
	}
	vault := e.balances.VaultBalance(o.Market)
	if vault <= outstanding {
		return nil, touched{}, op.ErrNoResidualFunds
	}
	residual := uint64(vault - outstanding)

	batch, err := e.journalGen.GenerateSweep(
		o.Authority, o.IdempotencyKey(), o.Market, residual, o.SubmitTime.UnixMicro())
	if err != nil {
		return nil, touched{}, err
	}

	return batch, touched{}, nil
}

func (e *Engine) handleWithdrawFees(o *op.WithdrawFees) (*ledger.Batch, touched, error) {
	cfg := e.store.Config()
	if cfg == nil {
		return nil, touched{}, op.ErrNotInitialized
	}
	if o.Authority != cfg.Authority {
		return nil, touched{}, op.ErrUnauthorized
	}
	if err := verifyAddr(o.ConfigAddr, account.ConfigAddress, "config"); err != nil {
		return nil, touched{}, err
	}
	if err := verifyAddr(o.FeeVault, account.FeeVaultAddress, "fee vault"); err != nil {
		return nil, touched{}, err
	}

	accrued := e.balances.FeeVaultBalance()
	if accrued <= 0 {
		return nil, touched{}, op.ErrNoAccruedFees
	}

	batch, err := e.journalGen.GenerateFeeWithdrawal(
		o.Authority, o.IdempotencyKey(), uint64(accrued), o.SubmitTime.UnixMicro())
	if err != nil {
		return nil, touched{}, err
	}

	return batch, touched{}, nil
}

// outstandingEntitlement computes floor((total_win - claimed_win) *
// payout_pool / total_win): the vault funds still reserved for winners who
// have not claimed yet. Zero winning shares means the whole vault is
// residual.
func outstandingEntitlement(m *account.Market) (int64, error) {
	totalWin := m.TotalWinningShares()
	if totalWin.Sign() == 0 {
		return 0, nil
	}
	unclaimed := new(big.Int).Sub(totalWin, m.ClaimedWinningShares())
	if unclaimed.Sign() < 0 {
		panic(fmt.Sprintf("FATAL: market %d claimed shares exceed total", m.MarketID))
	}
	num := unclaimed.Mul(unclaimed, new(big.Int).SetUint64(m.PayoutPool))
	outstanding, ok := umath.BigDivToU64(num, totalWin)
	if !ok {
		return 0, fmt.Errorf("outstanding entitlement: %w", op.ErrArithmeticOverflow)
	}
	if outstanding > uint64(1)<<62 {
		return 0, fmt.Errorf("outstanding entitlement: %w", op.ErrArithmeticOverflow)
	}
	return int64(outstanding), nil
}

func verifyAddr(supplied account.Address, derive func() (account.Address, uint8), name string) error {
	derived, _ := derive()
	if supplied != derived {
		return fmt.Errorf("%s account: %w", name, op.ErrAccountMismatch)
	}
	return nil
}

func verifyMarketAddrs(marketAddr, vaultAddr account.Address, marketID uint64) error {
	derived, _ := account.MarketAddress(marketID)
	if marketAddr != derived {
		return fmt.Errorf("market account: %w", op.ErrAccountMismatch)
	}
	derived, _ = account.VaultAddress(marketID)
	if vaultAddr != derived {
		return fmt.Errorf("vault account: %w", op.ErrAccountMismatch)
	}
	return nil
}
