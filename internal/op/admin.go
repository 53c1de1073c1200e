package op

import (
	"time"

	"PredMarket/internal/account"

	"github.com/google/uuid"
)

// Initialize creates the Config record and the protocol fee vault.
// Idempotency key: op_id.
type Initialize struct {
	OpID       uuid.UUID
	Authority  uuid.UUID
	FeeBps     uint16
	ConfigAddr account.Address
	FeeVault   account.Address
	SubmitTime time.Time // Versioned input timestamp (NOT wall-clock)
}

func (o *Initialize) IdempotencyKey() string { return o.OpID.String() }
func (o *Initialize) OpType() OpType         { return OpTypeInitialize }
func (o *Initialize) MarketID() *uint64      { return nil }
func (o *Initialize) Signer() uuid.UUID      { return o.Authority }
func (o *Initialize) Timestamp() time.Time   { return o.SubmitTime }

// CreateMarket opens a new binary market and seeds both pool sides with
// InitialLiquidity escrowed from the authority.
type CreateMarket struct {
	OpID             uuid.UUID
	Authority        uuid.UUID
	Market           uint64
	Question         string
	Description      string
	Category         string
	ResolutionTime   int64
	InitialLiquidity uint64
	ConfigAddr       account.Address
	MarketAddr       account.Address
	VaultAddr        account.Address
	SubmitTime       time.Time
}

func (o *CreateMarket) IdempotencyKey() string { return o.OpID.String() }
func (o *CreateMarket) OpType() OpType         { return OpTypeCreateMarket }
func (o *CreateMarket) MarketID() *uint64      { m := o.Market; return &m }
func (o *CreateMarket) Signer() uuid.UUID      { return o.Authority }
func (o *CreateMarket) Timestamp() time.Time   { return o.SubmitTime }

// ResolveMarket declares the outcome. One-shot and irreversible.
type ResolveMarket struct {
	OpID       uuid.UUID
	Authority  uuid.UUID
	Market     uint64
	OutcomeYes bool
	ConfigAddr account.Address
	MarketAddr account.Address
	SubmitTime time.Time
}

func (o *ResolveMarket) IdempotencyKey() string { return o.OpID.String() }
func (o *ResolveMarket) OpType() OpType         { return OpTypeResolveMarket }
func (o *ResolveMarket) MarketID() *uint64      { m := o.Market; return &m }
func (o *ResolveMarket) Signer() uuid.UUID      { return o.Authority }
func (o *ResolveMarket) Timestamp() time.Time   { return o.SubmitTime }

// SweepFunds drains the residual vault balance (in excess of outstanding
// winner entitlements) to the authority after settlement.
type SweepFunds struct {
	OpID       uuid.UUID
	Authority  uuid.UUID
	Market     uint64
	ConfigAddr account.Address
	MarketAddr account.Address
	VaultAddr  account.Address
	SubmitTime time.Time
}

func (o *SweepFunds) IdempotencyKey() string { return o.OpID.String() }
func (o *SweepFunds) OpType() OpType         { return OpTypeSweepFunds }
func (o *SweepFunds) MarketID() *uint64      { m := o.Market; return &m }
func (o *SweepFunds) Signer() uuid.UUID      { return o.Authority }
func (o *SweepFunds) Timestamp() time.Time   { return o.SubmitTime }

// WithdrawFees drains the accumulated protocol fee vault to the authority.
type WithdrawFees struct {
	OpID       uuid.UUID
	Authority  uuid.UUID
	ConfigAddr account.Address
	FeeVault   account.Address
	SubmitTime time.Time
}

func (o *WithdrawFees) IdempotencyKey() string { return o.OpID.String() }
func (o *WithdrawFees) OpType() OpType         { return OpTypeWithdrawFees }
func (o *WithdrawFees) MarketID() *uint64      { return nil }
func (o *WithdrawFees) Signer() uuid.UUID      { return o.Authority }
func (o *WithdrawFees) Timestamp() time.Time   { return o.SubmitTime }
