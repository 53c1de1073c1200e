// Package amm implements the constant-product pricing engine. Everything
// here is a pure function of its inputs: no I/O, no clocks, no state.
package amm

import (
	"fmt"
	"math/big"

	umath "PredMarket/internal/math"
	"PredMarket/internal/op"
)

// FeeDenominator converts basis points to a fraction (200 bps = 2%).
const FeeDenominator = 10_000

// Quote is the full result of pricing one trade against a pool.
// Nothing is committed until the engine applies it.
type Quote struct {
	Fee       uint64 // Skimmed before the pool update, routed to the fee vault
	Net       uint64 // Amount entering the pool
	SharesOut uint64 // Entitlement credited to the buyer's side
	NewYes    uint64
	NewNo     uint64
	NewK      *big.Int // Recomputed post-trade product (drifts down by rounding only)
}

// ComputeBuy prices a buy of `amount` on one side of the (yes, no) pool.
//
// The pre-trade product yes*no is used as k: the opposite pool is solved as
// floor(k / new_in), shares_out is the opposite pool's decrease, and k is
// then recomputed from the post-trade balances. The fee never enters the
// pool. A trade that would zero either side is rejected as degenerate, so
// both pools stay positive and the reported price stays inside (0,1).
func ComputeBuy(yes, no uint64, isYes bool, amount uint64, feeBps uint16, minSharesOut uint64) (Quote, error) {
	if amount == 0 {
		return Quote{}, op.ErrInvalidAmount
	}
	if yes == 0 || no == 0 {
		return Quote{}, fmt.Errorf("%w: pool %d/%d", op.ErrDegeneratePool, yes, no)
	}

	fee, ok := umath.MulDivU64(amount, uint64(feeBps), FeeDenominator)
	if !ok {
		return Quote{}, fmt.Errorf("%w: fee of %d", op.ErrArithmeticOverflow, amount)
	}
	net, ok := umath.SubU64(amount, fee)
	if !ok || net == 0 {
		return Quote{}, fmt.Errorf("%w: amount %d consumed by fee", op.ErrInvalidAmount, amount)
	}

	inPool, outPool := yes, no
	if !isYes {
		inPool, outPool = no, yes
	}

	newIn, ok := umath.AddU64(inPool, net)
	if !ok {
		return Quote{}, fmt.Errorf("%w: pool side %d + %d", op.ErrArithmeticOverflow, inPool, net)
	}

	// k = in*out with the pre-trade balances; new_out = floor(k / new_in).
	k := umath.MulU128(inPool, outPool)
	newOut, ok := umath.DivU128(k, newIn)
	umath.PutInt128(k)
	if !ok {
		return Quote{}, fmt.Errorf("%w: k / %d", op.ErrArithmeticOverflow, newIn)
	}
	if newOut == 0 {
		return Quote{}, fmt.Errorf("%w: trade of %d would drain the %s pool",
			op.ErrDegeneratePool, amount, sideName(!isYes))
	}

	sharesOut, ok := umath.SubU64(outPool, newOut)
	if !ok {
		return Quote{}, fmt.Errorf("%w: out pool grew from %d to %d", op.ErrArithmeticOverflow, outPool, newOut)
	}
	if sharesOut < minSharesOut {
		return Quote{}, fmt.Errorf("%w: shares_out %d < floor %d", op.ErrSlippageExceeded, sharesOut, minSharesOut)
	}

	q := Quote{
		Fee:       fee,
		Net:       net,
		SharesOut: sharesOut,
		NewK:      umath.MulU128(newIn, newOut),
	}
	if isYes {
		q.NewYes, q.NewNo = newIn, newOut
	} else {
		q.NewYes, q.NewNo = newOut, newIn
	}
	return q, nil
}

// SeedK computes the creation-time product initial^2, checked.
func SeedK(initialLiquidity uint64) (*big.Int, error) {
	if initialLiquidity == 0 {
		return nil, op.ErrInvalidAmount
	}
	return umath.MulU128(initialLiquidity, initialLiquidity), nil
}

// Payout computes floor(winningShares * payoutPool / totalWinningShares).
// totalWinningShares is u128 because share totals accumulate across the
// market's whole life.
func Payout(winningShares, payoutPool uint64, totalWinningShares *big.Int) (uint64, error) {
	if totalWinningShares == nil || totalWinningShares.Sign() == 0 {
		return 0, op.ErrNotAWinner
	}
	num := umath.MulU128(winningShares, payoutPool)
	payout, ok := umath.BigDivToU64(num, totalWinningShares)
	umath.PutInt128(num)
	if !ok {
		return 0, fmt.Errorf("%w: payout for %d shares", op.ErrArithmeticOverflow, winningShares)
	}
	return payout, nil
}

func sideName(isYes bool) string {
	if isYes {
		return "YES"
	}
	return "NO"
}
