package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"PredMarket/internal/op"
)

// ParseRawOp converts a RawOp (JSON bytes + op type string) into a typed
// op.Operation. The ingestion shell validates, parses, and converts raw
// operations before sending to the deterministic core. Account addresses are
// carried through unchanged so the core can verify them against its own
// derivation; the parser never derives on the submitter's behalf.
//
// The operative timestamp is assigned at ingestion: a non-zero receive time
// on the RawOp replaces whatever the submitter put in timestamp_us, so time
// gates cannot be dodged by back-dating the payload. Replay passes a zero
// receive time and the logged time stands, since the engine marshals the
// assigned time back into the persisted payload.
func ParseRawOp(raw RawOp, opType string) (op.Operation, error) {
	operation, err := decodeOp(raw.Data, opType)
	if err != nil {
		return nil, err
	}
	if !raw.Timestamp.IsZero() {
		stampReceiveTime(operation, raw.Timestamp)
	}
	return operation, nil
}

func decodeOp(data []byte, opType string) (op.Operation, error) {
	switch opType {
	case "Initialize":
		var o op.Initialize
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse Initialize: %w", err)
		}
		return &o, nil
	case "CreateMarket":
		var o op.CreateMarket
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse CreateMarket: %w", err)
		}
		return &o, nil
	case "BuyShares":
		var o op.BuyShares
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse BuyShares: %w", err)
		}
		return &o, nil
	case "ResolveMarket":
		var o op.ResolveMarket
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse ResolveMarket: %w", err)
		}
		return &o, nil
	case "ClaimWinnings":
		var o op.ClaimWinnings
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse ClaimWinnings: %w", err)
		}
		return &o, nil
	case "SweepFunds":
		var o op.SweepFunds
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse SweepFunds: %w", err)
		}
		return &o, nil
	case "WithdrawFees":
		var o op.WithdrawFees
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, fmt.Errorf("parse WithdrawFees: %w", err)
		}
		return &o, nil
	default:
		return nil, fmt.Errorf("unknown op type: %s", opType)
	}
}

func stampReceiveTime(operation op.Operation, ts time.Time) {
	switch o := operation.(type) {
	case *op.Initialize:
		o.SubmitTime = ts
	case *op.CreateMarket:
		o.SubmitTime = ts
	case *op.BuyShares:
		o.SubmitTime = ts
	case *op.ResolveMarket:
		o.SubmitTime = ts
	case *op.ClaimWinnings:
		o.SubmitTime = ts
	case *op.SweepFunds:
		o.SubmitTime = ts
	case *op.WithdrawFees:
		o.SubmitTime = ts
	}
}
