package engine

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"PredMarket/internal/account"
	"PredMarket/internal/ledger"

	"github.com/google/uuid"
)

// StateSnapshot is the full engine state at a sequence boundary. Wide
// counters serialize as decimal strings; JSON numbers cannot hold them.
type StateSnapshot struct {
	Sequence  int64  `json:"sequence"`
	StateHash []byte `json:"state_hash"` // chain tip after Sequence-1

	Config    *ConfigSnap    `json:"config,omitempty"`
	Markets   []MarketSnap   `json:"markets"`
	Positions []PositionSnap `json:"positions"`
	Balances  []BalanceSnap  `json:"balances"`

	IdempotencyKeys []string `json:"idempotency_keys"`
}

type ConfigSnap struct {
	Authority   uuid.UUID `json:"authority"`
	MarketCount uint64    `json:"market_count"`
	FeeBps      uint16    `json:"fee_bps"`
	Bump        uint8     `json:"bump"`
	Version     int64     `json:"version"`
}

type MarketSnap struct {
	MarketID         uint64    `json:"market_id"`
	Authority        uuid.UUID `json:"authority"`
	Question         string    `json:"question"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	ResolutionTime   int64     `json:"resolution_time"`
	CreatedAt        int64     `json:"created_at"`
	InitialLiquidity uint64    `json:"initial_liquidity"`
	YesLiquidity     uint64    `json:"yes_liquidity"`
	NoLiquidity      uint64    `json:"no_liquidity"`
	KConstant        string    `json:"k_constant"`
	TotalVolume      uint64    `json:"total_volume"`
	TotalYesShares   string    `json:"total_yes_shares"`
	TotalNoShares    string    `json:"total_no_shares"`
	ClaimedYesShares string    `json:"claimed_yes_shares"`
	ClaimedNoShares  string    `json:"claimed_no_shares"`
	PayoutPool       uint64    `json:"payout_pool"`
	Resolved         bool      `json:"resolved"`
	Outcome          *bool     `json:"outcome,omitempty"`
	Bump             uint8     `json:"bump"`
	VaultBump        uint8     `json:"vault_bump"`
	Version          int64     `json:"version"`
}

type PositionSnap struct {
	User      uuid.UUID `json:"user"`
	MarketID  uint64    `json:"market_id"`
	YesShares uint64    `json:"yes_shares"`
	NoShares  uint64    `json:"no_shares"`
	Claimed   bool      `json:"claimed"`
	Bump      uint8     `json:"bump"`
	Version   int64     `json:"version"`
}

type BalanceSnap struct {
	Scope    uint8  `json:"scope"`
	EntityID string `json:"entity_id"` // hex, 16 bytes
	SubType  uint8  `json:"sub_type"`
	Balance  int64  `json:"balance"`
}

// CaptureState serializes the full engine state. Must run on the engine
// goroutine between operations.
func (e *Engine) CaptureState() *StateSnapshot {
	tip := e.hasher.PrevHash()
	snap := &StateSnapshot{
		Sequence:        e.sequence,
		StateHash:       tip[:],
		IdempotencyKeys: e.idempotency.lru.Keys(snapshotKeyLimit),
	}

	if cfg := e.store.Config(); cfg != nil {
		snap.Config = &ConfigSnap{
			Authority:   cfg.Authority,
			MarketCount: cfg.MarketCount,
			FeeBps:      cfg.FeeBps,
			Bump:        cfg.Bump,
			Version:     cfg.Version,
		}
	}

	for _, m := range e.store.AllMarkets() {
		snap.Markets = append(snap.Markets, MarketSnap{
			MarketID:         m.MarketID,
			Authority:        m.Authority,
			Question:         m.Question,
			Description:      m.Description,
			Category:         m.Category,
			ResolutionTime:   m.ResolutionTime,
			CreatedAt:        m.CreatedAt,
			InitialLiquidity: m.InitialLiquidity,
			YesLiquidity:     m.YesLiquidity,
			NoLiquidity:      m.NoLiquidity,
			KConstant:        m.KConstant.String(),
			TotalVolume:      m.TotalVolume,
			TotalYesShares:   m.TotalYesShares.String(),
			TotalNoShares:    m.TotalNoShares.String(),
			ClaimedYesShares: m.ClaimedYesShares.String(),
			ClaimedNoShares:  m.ClaimedNoShares.String(),
			PayoutPool:       m.PayoutPool,
			Resolved:         m.Resolved,
			Outcome:          m.Outcome,
			Bump:             m.Bump,
			VaultBump:        m.VaultBump,
			Version:          m.Version,
		})
	}

	for _, p := range e.store.AllPositions() {
		snap.Positions = append(snap.Positions, PositionSnap{
			User:      p.User,
			MarketID:  p.MarketID,
			YesShares: p.YesShares,
			NoShares:  p.NoShares,
			Claimed:   p.Claimed,
			Bump:      p.Bump,
			Version:   p.Version,
		})
	}

	for key, balance := range e.balances.Snapshot() {
		snap.Balances = append(snap.Balances, BalanceSnap{
			Scope:    uint8(key.Scope),
			EntityID: hex.EncodeToString(key.EntityID[:]),
			SubType:  uint8(key.SubType),
			Balance:  balance,
		})
	}

	return snap
}

// snapshotKeyLimit bounds the idempotency keys carried in a snapshot.
const snapshotKeyLimit = 100_000

// RestoreState replaces all engine state from a snapshot. Must run before
// the engine starts processing.
func (e *Engine) RestoreState(snap *StateSnapshot) error {
	e.sequence = snap.Sequence
	e.journalGen.SetSequence(snap.Sequence)

	if len(snap.StateHash) != 32 {
		return fmt.Errorf("restore: state hash is %d bytes, want 32", len(snap.StateHash))
	}
	var tip [32]byte
	copy(tip[:], snap.StateHash)
	e.hasher.Restore(tip)

	e.store = account.NewStore()
	if snap.Config != nil {
		e.store.SetConfig(&account.Config{
			Authority:   snap.Config.Authority,
			MarketCount: snap.Config.MarketCount,
			FeeBps:      snap.Config.FeeBps,
			Bump:        snap.Config.Bump,
			Version:     snap.Config.Version,
		})
	}

	for _, ms := range snap.Markets {
		k, err := parseBig(ms.KConstant, "k_constant")
		if err != nil {
			return err
		}
		totalYes, err := parseBig(ms.TotalYesShares, "total_yes_shares")
		if err != nil {
			return err
		}
		totalNo, err := parseBig(ms.TotalNoShares, "total_no_shares")
		if err != nil {
			return err
		}
		claimedYes, err := parseBig(ms.ClaimedYesShares, "claimed_yes_shares")
		if err != nil {
			return err
		}
		claimedNo, err := parseBig(ms.ClaimedNoShares, "claimed_no_shares")
		if err != nil {
			return err
		}
		e.store.SetMarket(&account.Market{
			MarketID:         ms.MarketID,
			Authority:        ms.Authority,
			Question:         ms.Question,
			Description:      ms.Description,
			Category:         ms.Category,
			ResolutionTime:   ms.ResolutionTime,
			CreatedAt:        ms.CreatedAt,
			InitialLiquidity: ms.InitialLiquidity,
			YesLiquidity:     ms.YesLiquidity,
			NoLiquidity:      ms.NoLiquidity,
			KConstant:        k,
			TotalVolume:      ms.TotalVolume,
			TotalYesShares:   totalYes,
			TotalNoShares:    totalNo,
			ClaimedYesShares: claimedYes,
			ClaimedNoShares:  claimedNo,
			PayoutPool:       ms.PayoutPool,
			Resolved:         ms.Resolved,
			Outcome:          ms.Outcome,
			Bump:             ms.Bump,
			VaultBump:        ms.VaultBump,
			Version:          ms.Version,
		})
	}

	for _, ps := range snap.Positions {
		e.store.SetPosition(&account.UserPosition{
			User:      ps.User,
			MarketID:  ps.MarketID,
			YesShares: ps.YesShares,
			NoShares:  ps.NoShares,
			Claimed:   ps.Claimed,
			Bump:      ps.Bump,
			Version:   ps.Version,
		})
	}

	balances := make(map[ledger.AccountKey]int64, len(snap.Balances))
	for _, bs := range snap.Balances {
		raw, err := hex.DecodeString(bs.EntityID)
		if err != nil || len(raw) != 16 {
			return fmt.Errorf("restore: bad entity id %q", bs.EntityID)
		}
		key := ledger.AccountKey{
			Scope:   ledger.AccountScope(bs.Scope),
			SubType: ledger.AccountSubType(bs.SubType),
		}
		copy(key.EntityID[:], raw)
		balances[key] = bs.Balance
	}
	e.balances.Restore(balances)

	e.idempotency.WarmFromKeys(snap.IdempotencyKeys)
	return nil
}

func parseBig(s, field string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("restore: bad %s %q", field, s)
	}
	return v, nil
}
