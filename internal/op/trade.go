package op

import (
	"time"

	"PredMarket/internal/account"

	"github.com/google/uuid"
)

// BuyShares trades Amount of base currency against one side of a market's
// pool. MinSharesOut is the caller's slippage floor, the only ordering
// protection offered, since submission order across callers is not FIFO.
// Idempotency key: op_id.
type BuyShares struct {
	OpID         uuid.UUID
	User         uuid.UUID
	Market       uint64
	IsYes        bool
	Amount       uint64
	MinSharesOut uint64
	ConfigAddr   account.Address
	MarketAddr   account.Address
	VaultAddr    account.Address
	PositionAddr account.Address
	FeeVault     account.Address
	SubmitTime   time.Time
}

func (o *BuyShares) IdempotencyKey() string { return o.OpID.String() }
func (o *BuyShares) OpType() OpType         { return OpTypeBuyShares }
func (o *BuyShares) MarketID() *uint64      { m := o.Market; return &m }
func (o *BuyShares) Signer() uuid.UUID      { return o.User }
func (o *BuyShares) Timestamp() time.Time   { return o.SubmitTime }

// ClaimWinnings pays out a winning position once the market is resolved.
// Only the position owner may claim, and only once.
type ClaimWinnings struct {
	OpID         uuid.UUID
	User         uuid.UUID
	Market       uint64
	MarketAddr   account.Address
	VaultAddr    account.Address
	PositionAddr account.Address
	SubmitTime   time.Time
}

func (o *ClaimWinnings) IdempotencyKey() string { return o.OpID.String() }
func (o *ClaimWinnings) OpType() OpType         { return OpTypeClaimWinnings }
func (o *ClaimWinnings) MarketID() *uint64      { m := o.Market; return &m }
func (o *ClaimWinnings) Signer() uuid.UUID      { return o.User }
func (o *ClaimWinnings) Timestamp() time.Time   { return o.SubmitTime }
