package account

import (
	"math/big"

	"github.com/google/uuid"
)

// Text bounds and the liquidity floor enforced at market creation.
const (
	MaxQuestionLen    = 200
	MaxDescriptionLen = 1000
	MaxCategoryLen    = 50

	// MinInitialLiquidity keeps freshly created pools deep enough that a
	// single small trade cannot push either side near zero.
	MinInitialLiquidity = 10_000_000
)

// DefaultFeeBps is the protocol fee applied to every trade (200 = 2%).
const DefaultFeeBps = 200

// Config is the singleton protocol record. Created once by Initialize,
// mutated only by incrementing MarketCount on market creation.
type Config struct {
	Authority   uuid.UUID
	MarketCount uint64
	FeeBps      uint16
	Bump        uint8
	Version     int64 // Optimistic concurrency control
}

// Market is one binary prediction market. While Resolved is false,
// YesLiquidity*NoLiquidity equals KConstant immediately after every trade
// (KConstant is recomputed post-fee on each trade, so it drifts downward by
// rounding only). Markets are archival and never deleted.
type Market struct {
	MarketID       uint64
	Authority      uuid.UUID
	Question       string
	Description    string
	Category       string
	ResolutionTime int64 // Unix seconds; trading closes at this instant
	CreatedAt      int64

	InitialLiquidity uint64
	YesLiquidity     uint64
	NoLiquidity      uint64
	KConstant        *big.Int // u128: survives the u64*u64 product
	TotalVolume      uint64   // Cumulative traded amount, monotonic

	// Share accounting for settlement. Totals are u128 because they
	// accumulate u64 share issues over the market's lifetime.
	TotalYesShares   *big.Int
	TotalNoShares    *big.Int
	ClaimedYesShares *big.Int
	ClaimedNoShares  *big.Int

	// PayoutPool is the vault balance snapshotted at resolution. Claims
	// divide against this fixed base so payouts are independent of claim
	// order; the leftover rounding dust is what sweep collects.
	PayoutPool uint64

	Resolved bool
	Outcome  *bool // Set exactly once by ResolveMarket

	Bump      uint8
	VaultBump uint8
	Version   int64
}

// UserPosition tracks one user's accumulated shares in one market.
// Created lazily on the user's first trade; never deleted.
type UserPosition struct {
	User      uuid.UUID
	MarketID  uint64
	YesShares uint64
	NoShares  uint64
	Claimed   bool // One-way false -> true; the sole double-payout guard
	Bump      uint8
	Version   int64
}

// YesPrice returns the instantaneous YES price in (0,1). The engine never
// lets either pool reach zero, so the quotient is always well-defined for
// a live market.
func (m *Market) YesPrice() float64 {
	total := float64(m.YesLiquidity) + float64(m.NoLiquidity)
	if total == 0 {
		return 0.5
	}
	return float64(m.YesLiquidity) / total
}

// NoPrice returns 1 - YesPrice.
func (m *Market) NoPrice() float64 {
	return 1 - m.YesPrice()
}

// IsOpen reports whether the market still accepts trades at ts (unix seconds).
func (m *Market) IsOpen(ts int64) bool {
	return !m.Resolved && ts < m.ResolutionTime
}

// TotalWinningShares returns the winning-side share total for the resolved
// outcome. Callers must only use this on resolved markets.
func (m *Market) TotalWinningShares() *big.Int {
	if m.Outcome != nil && *m.Outcome {
		return m.TotalYesShares
	}
	return m.TotalNoShares
}

// ClaimedWinningShares returns the already-claimed winning-side total.
func (m *Market) ClaimedWinningShares() *big.Int {
	if m.Outcome != nil && *m.Outcome {
		return m.ClaimedYesShares
	}
	return m.ClaimedNoShares
}

// WinningShares returns the side of the position that pays out under the
// resolved outcome.
func (p *UserPosition) WinningShares(outcomeYes bool) uint64 {
	if outcomeYes {
		return p.YesShares
	}
	return p.NoShares
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (c *Config) CanonicalBytes() []byte {
	buf := make([]byte, 0, 32)
	buf = append(buf, c.Authority[:]...)
	buf = appendUint64LE(buf, c.MarketCount)
	buf = append(buf, byte(c.FeeBps), byte(c.FeeBps>>8))
	buf = append(buf, c.Bump)
	return buf
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (m *Market) CanonicalBytes() []byte {
	buf := make([]byte, 0, 256)

	buf = appendUint64LE(buf, m.MarketID)
	buf = append(buf, m.Authority[:]...)

	buf = append(buf, byte(len(m.Question)))
	buf = append(buf, []byte(m.Question)...)
	// Description needs a 2-byte prefix: its bound is above 255.
	buf = append(buf, byte(len(m.Description)), byte(len(m.Description)>>8))
	buf = append(buf, []byte(m.Description)...)
	buf = append(buf, byte(len(m.Category)))
	buf = append(buf, []byte(m.Category)...)

	buf = appendUint64LE(buf, uint64(m.ResolutionTime))
	buf = appendUint64LE(buf, m.InitialLiquidity)
	buf = appendUint64LE(buf, m.YesLiquidity)
	buf = appendUint64LE(buf, m.NoLiquidity)
	buf = appendU128LE(buf, m.KConstant)
	buf = appendUint64LE(buf, m.TotalVolume)
	buf = appendU128LE(buf, m.TotalYesShares)
	buf = appendU128LE(buf, m.TotalNoShares)
	buf = appendU128LE(buf, m.ClaimedYesShares)
	buf = appendU128LE(buf, m.ClaimedNoShares)
	buf = appendUint64LE(buf, m.PayoutPool)

	if m.Resolved {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	switch {
	case m.Outcome == nil:
		buf = append(buf, 0)
	case *m.Outcome:
		buf = append(buf, 2)
	default:
		buf = append(buf, 1)
	}

	return buf
}

// CanonicalBytes returns deterministic serialization for state hashing.
func (p *UserPosition) CanonicalBytes() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, p.User[:]...)
	buf = appendUint64LE(buf, p.MarketID)
	buf = appendUint64LE(buf, p.YesShares)
	buf = appendUint64LE(buf, p.NoShares)
	if p.Claimed {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// Clone returns a deep copy safe to hand to other goroutines.
func (m *Market) Clone() *Market {
	cp := *m
	cp.KConstant = new(big.Int).Set(m.KConstant)
	cp.TotalYesShares = new(big.Int).Set(m.TotalYesShares)
	cp.TotalNoShares = new(big.Int).Set(m.TotalNoShares)
	cp.ClaimedYesShares = new(big.Int).Set(m.ClaimedYesShares)
	cp.ClaimedNoShares = new(big.Int).Set(m.ClaimedNoShares)
	if m.Outcome != nil {
		o := *m.Outcome
		cp.Outcome = &o
	}
	return &cp
}

// Clone returns a copy safe to hand to other goroutines.
func (p *UserPosition) Clone() *UserPosition {
	cp := *p
	return &cp
}

func appendUint64LE(buf []byte, v uint64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// appendU128LE encodes a non-negative big.Int as 16 little-endian bytes.
func appendU128LE(buf []byte, v *big.Int) []byte {
	var be [16]byte
	v.FillBytes(be[:])
	for i := 15; i >= 0; i-- {
		buf = append(buf, be[i])
	}
	return buf
}
