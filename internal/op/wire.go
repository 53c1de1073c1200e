package op

import (
	"encoding/json"
	"fmt"
	"time"

	"PredMarket/internal/account"

	"github.com/google/uuid"
)

// Wire format for operation payloads. The same snake_case JSON travels on
// NATS, over the HTTP ingest endpoint, and in the op log's payload column,
// so a logged payload always re-parses during replay. Timestamps are unix
// microseconds; addresses are 64-char hex.

type initializeWire struct {
	OpID        uuid.UUID       `json:"op_id"`
	Authority   uuid.UUID       `json:"authority"`
	FeeBps      uint16          `json:"fee_bps"`
	ConfigAddr  account.Address `json:"config_addr"`
	FeeVault    account.Address `json:"fee_vault"`
	TimestampUs int64           `json:"timestamp_us"`
}

func (o *Initialize) MarshalJSON() ([]byte, error) {
	return json.Marshal(initializeWire{
		OpID:        o.OpID,
		Authority:   o.Authority,
		FeeBps:      o.FeeBps,
		ConfigAddr:  o.ConfigAddr,
		FeeVault:    o.FeeVault,
		TimestampUs: o.SubmitTime.UnixMicro(),
	})
}

func (o *Initialize) UnmarshalJSON(data []byte) error {
	var w initializeWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := requireIDs(w.OpID, w.Authority); err != nil {
		return err
	}
	if err := requireAddrs(w.ConfigAddr, w.FeeVault); err != nil {
		return err
	}
	*o = Initialize{
		OpID:       w.OpID,
		Authority:  w.Authority,
		FeeBps:     w.FeeBps,
		ConfigAddr: w.ConfigAddr,
		FeeVault:   w.FeeVault,
		SubmitTime: time.UnixMicro(w.TimestampUs),
	}
	return nil
}

type createMarketWire struct {
	OpID             uuid.UUID       `json:"op_id"`
	Authority        uuid.UUID       `json:"authority"`
	MarketID         uint64          `json:"market_id"`
	Question         string          `json:"question"`
	Description      string          `json:"description"`
	Category         string          `json:"category"`
	ResolutionTime   int64           `json:"resolution_time"`
	InitialLiquidity uint64          `json:"initial_liquidity"`
	ConfigAddr       account.Address `json:"config_addr"`
	MarketAddr       account.Address `json:"market_addr"`
	VaultAddr        account.Address `json:"vault_addr"`
	TimestampUs      int64           `json:"timestamp_us"`
}

func (o *CreateMarket) MarshalJSON() ([]byte, error) {
	return json.Marshal(createMarketWire{
		OpID:             o.OpID,
		Authority:        o.Authority,
		MarketID:         o.Market,
		Question:         o.Question,
		Description:      o.Description,
		Category:         o.Category,
		ResolutionTime:   o.ResolutionTime,
		InitialLiquidity: o.InitialLiquidity,
		ConfigAddr:       o.ConfigAddr,
		MarketAddr:       o.MarketAddr,
		VaultAddr:        o.VaultAddr,
		TimestampUs:      o.SubmitTime.UnixMicro(),
	})
}

func (o *CreateMarket) UnmarshalJSON(data []byte) error {
	var w createMarketWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := requireIDs(w.OpID, w.Authority); err != nil {
		return err
	}
	if err := requireAddrs(w.ConfigAddr, w.MarketAddr, w.VaultAddr); err != nil {
		return err
	}
	*o = CreateMarket{
		OpID:             w.OpID,
		Authority:        w.Authority,
		Market:           w.MarketID,
		Question:         w.Question,
		Description:      w.Description,
		Category:         w.Category,
		ResolutionTime:   w.ResolutionTime,
		InitialLiquidity: w.InitialLiquidity,
		ConfigAddr:       w.ConfigAddr,
		MarketAddr:       w.MarketAddr,
		VaultAddr:        w.VaultAddr,
		SubmitTime:       time.UnixMicro(w.TimestampUs),
	}
	return nil
}

type buySharesWire struct {
	OpID         uuid.UUID       `json:"op_id"`
	User         uuid.UUID       `json:"user"`
	MarketID     uint64          `json:"market_id"`
	IsYes        bool            `json:"is_yes"`
	Amount       uint64          `json:"amount"`
	MinSharesOut uint64          `json:"min_shares_out"`
	ConfigAddr   account.Address `json:"config_addr"`
	MarketAddr   account.Address `json:"market_addr"`
	VaultAddr    account.Address `json:"vault_addr"`
	PositionAddr account.Address `json:"position_addr"`
	FeeVault     account.Address `json:"fee_vault"`
	TimestampUs  int64           `json:"timestamp_us"`
}

func (o *BuyShares) MarshalJSON() ([]byte, error) {
	return json.Marshal(buySharesWire{
		OpID:         o.OpID,
		User:         o.User,
		MarketID:     o.Market,
		IsYes:        o.IsYes,
		Amount:       o.Amount,
		MinSharesOut: o.MinSharesOut,
		ConfigAddr:   o.ConfigAddr,
		MarketAddr:   o.MarketAddr,
		VaultAddr:    o.VaultAddr,
		PositionAddr: o.PositionAddr,
		FeeVault:     o.FeeVault,
		TimestampUs:  o.SubmitTime.UnixMicro(),
	})
}

func (o *BuyShares) UnmarshalJSON(data []byte) error {
	var w buySharesWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := requireIDs(w.OpID, w.User); err != nil {
		return err
	}
	if err := requireAddrs(w.ConfigAddr, w.MarketAddr, w.VaultAddr, w.PositionAddr, w.FeeVault); err != nil {
		return err
	}
	*o = BuyShares{
		OpID:         w.OpID,
		User:         w.User,
		Market:       w.MarketID,
		IsYes:        w.IsYes,
		Amount:       w.Amount,
		MinSharesOut: w.MinSharesOut,
		ConfigAddr:   w.ConfigAddr,
		MarketAddr:   w.MarketAddr,
		VaultAddr:    w.VaultAddr,
		PositionAddr: w.PositionAddr,
		FeeVault:     w.FeeVault,
		SubmitTime:   time.UnixMicro(w.TimestampUs),
	}
	return nil
}

type resolveMarketWire struct {
	OpID        uuid.UUID       `json:"op_id"`
	Authority   uuid.UUID       `json:"authority"`
	MarketID    uint64          `json:"market_id"`
	OutcomeYes  bool            `json:"outcome_yes"`
	ConfigAddr  account.Address `json:"config_addr"`
	MarketAddr  account.Address `json:"market_addr"`
	TimestampUs int64           `json:"timestamp_us"`
}

func (o *ResolveMarket) MarshalJSON() ([]byte, error) {
	return json.Marshal(resolveMarketWire{
		OpID:        o.OpID,
		Authority:   o.Authority,
		MarketID:    o.Market,
		OutcomeYes:  o.OutcomeYes,
		ConfigAddr:  o.ConfigAddr,
		MarketAddr:  o.MarketAddr,
		TimestampUs: o.SubmitTime.UnixMicro(),
	})
}

func (o *ResolveMarket) UnmarshalJSON(data []byte) error {
	var w resolveMarketWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := requireIDs(w.OpID, w.Authority); err != nil {
		return err
	}
	if err := requireAddrs(w.ConfigAddr, w.MarketAddr); err != nil {
		return err
	}
	*o = ResolveMarket{
		OpID:       w.OpID,
		Authority:  w.Authority,
		Market:     w.MarketID,
		OutcomeYes: w.OutcomeYes,
		ConfigAddr: w.ConfigAddr,
		MarketAddr: w.MarketAddr,
		SubmitTime: time.UnixMicro(w.TimestampUs),
	}
	return nil
}

type claimWinningsWire struct {
	OpID         uuid.UUID       `json:"op_id"`
	User         uuid.UUID       `json:"user"`
	MarketID     uint64          `json:"market_id"`
	MarketAddr   account.Address `json:"market_addr"`
	VaultAddr    account.Address `json:"vault_addr"`
	PositionAddr account.Address `json:"position_addr"`
	TimestampUs  int64           `json:"timestamp_us"`
}

func (o *ClaimWinnings) MarshalJSON() ([]byte, error) {
	return json.Marshal(claimWinningsWire{
		OpID:         o.OpID,
		User:         o.User,
		MarketID:     o.Market,
		MarketAddr:   o.MarketAddr,
		VaultAddr:    o.VaultAddr,
		PositionAddr: o.PositionAddr,
		TimestampUs:  o.SubmitTime.UnixMicro(),
	})
}

func (o *ClaimWinnings) UnmarshalJSON(data []byte) error {
	var w claimWinningsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := requireIDs(w.OpID, w.User); err != nil {
		return err
	}
	if err := requireAddrs(w.MarketAddr, w.VaultAddr, w.PositionAddr); err != nil {
		return err
	}
	*o = ClaimWinnings{
		OpID:         w.OpID,
		User:         w.User,
		Market:       w.MarketID,
		MarketAddr:   w.MarketAddr,
		VaultAddr:    w.VaultAddr,
		PositionAddr: w.PositionAddr,
		SubmitTime:   time.UnixMicro(w.TimestampUs),
	}
	return nil
}

type sweepFundsWire struct {
	OpID        uuid.UUID       `json:"op_id"`
	Authority   uuid.UUID       `json:"authority"`
	MarketID    uint64          `json:"market_id"`
	ConfigAddr  account.Address `json:"config_addr"`
	MarketAddr  account.Address `json:"market_addr"`
	VaultAddr   account.Address `json:"vault_addr"`
	TimestampUs int64           `json:"timestamp_us"`
}

func (o *SweepFunds) MarshalJSON() ([]byte, error) {
	return json.Marshal(sweepFundsWire{
		OpID:        o.OpID,
		Authority:   o.Authority,
		MarketID:    o.Market,
		ConfigAddr:  o.ConfigAddr,
		MarketAddr:  o.MarketAddr,
		VaultAddr:   o.VaultAddr,
		TimestampUs: o.SubmitTime.UnixMicro(),
	})
}

func (o *SweepFunds) UnmarshalJSON(data []byte) error {
	var w sweepFundsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := requireIDs(w.OpID, w.Authority); err != nil {
		return err
	}
	if err := requireAddrs(w.ConfigAddr, w.MarketAddr, w.VaultAddr); err != nil {
		return err
	}
	*o = SweepFunds{
		OpID:       w.OpID,
		Authority:  w.Authority,
		Market:     w.MarketID,
		ConfigAddr: w.ConfigAddr,
		MarketAddr: w.MarketAddr,
		VaultAddr:  w.VaultAddr,
		SubmitTime: time.UnixMicro(w.TimestampUs),
	}
	return nil
}

type withdrawFeesWire struct {
	OpID        uuid.UUID       `json:"op_id"`
	Authority   uuid.UUID       `json:"authority"`
	ConfigAddr  account.Address `json:"config_addr"`
	FeeVault    account.Address `json:"fee_vault"`
	TimestampUs int64           `json:"timestamp_us"`
}

func (o *WithdrawFees) MarshalJSON() ([]byte, error) {
	return json.Marshal(withdrawFeesWire{
		OpID:        o.OpID,
		Authority:   o.Authority,
		ConfigAddr:  o.ConfigAddr,
		FeeVault:    o.FeeVault,
		TimestampUs: o.SubmitTime.UnixMicro(),
	})
}

func (o *WithdrawFees) UnmarshalJSON(data []byte) error {
	var w withdrawFeesWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if err := requireIDs(w.OpID, w.Authority); err != nil {
		return err
	}
	if err := requireAddrs(w.ConfigAddr, w.FeeVault); err != nil {
		return err
	}
	*o = WithdrawFees{
		OpID:       w.OpID,
		Authority:  w.Authority,
		ConfigAddr: w.ConfigAddr,
		FeeVault:   w.FeeVault,
		SubmitTime: time.UnixMicro(w.TimestampUs),
	}
	return nil
}

// requireIDs rejects absent op_id or signer fields, which decode as the nil
// UUID. The signer is always the second id in wire order.
func requireIDs(ids ...uuid.UUID) error {
	for _, id := range ids {
		if id == uuid.Nil {
			return fmt.Errorf("missing required id field")
		}
	}
	return nil
}

// requireAddrs rejects absent account addresses. The core re-derives and
// compares every address anyway; rejecting here keeps garbage out of the log.
func requireAddrs(addrs ...account.Address) error {
	for _, a := range addrs {
		if a.IsZero() {
			return fmt.Errorf("missing required account address")
		}
	}
	return nil
}
