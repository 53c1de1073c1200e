package op

import (
	"time"

	"github.com/google/uuid"
)

// OpType discriminator for operation payloads
type OpType int32

const (
	OpTypeUnknown OpType = iota
	OpTypeInitialize
	OpTypeCreateMarket
	OpTypeBuyShares
	OpTypeResolveMarket
	OpTypeClaimWinnings
	OpTypeSweepFunds
	OpTypeWithdrawFees
)

// Envelope wraps every operation in the log
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Stable idempotency key from the submitter (operation id)
	IdempotencyKey string

	// Operation type discriminator
	OpType OpType

	// Market context (nil for global operations)
	MarketID *uint64

	// Authenticated signer identity
	Signer uuid.UUID

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// JSON-encoded operation payload
	Payload []byte

	// SHA-256 of state AFTER applying this operation
	StateHash [32]byte

	// Previous operation's state hash (chain integrity)
	PrevHash [32]byte
}

// Operation is the interface all operation payloads must implement
type Operation interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// OpType returns the discriminator
	OpType() OpType

	// MarketID returns the market context (nil for global operations)
	MarketID() *uint64

	// Signer returns the authenticated identity that submitted the operation.
	// Signature verification happens at the ingestion boundary; the engine
	// only compares this identity against the per-operation requirements.
	Signer() uuid.UUID

	// Timestamp returns the versioned input timestamp
	Timestamp() time.Time
}

func (ot OpType) String() string {
	switch ot {
	case OpTypeInitialize:
		return "Initialize"
	case OpTypeCreateMarket:
		return "CreateMarket"
	case OpTypeBuyShares:
		return "BuyShares"
	case OpTypeResolveMarket:
		return "ResolveMarket"
	case OpTypeClaimWinnings:
		return "ClaimWinnings"
	case OpTypeSweepFunds:
		return "SweepFunds"
	case OpTypeWithdrawFees:
		return "WithdrawFees"
	default:
		return "Unknown"
	}
}
