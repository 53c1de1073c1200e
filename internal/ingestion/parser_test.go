package ingestion_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"PredMarket/internal/account"
	"PredMarket/internal/engine"
	"PredMarket/internal/ingestion"
	"PredMarket/internal/op"

	"github.com/google/uuid"
)

// recvTime stands in for the receive time the NATS and HTTP shells stamp on
// every RawOp. It becomes the parsed operation's SubmitTime.
var recvTime = time.UnixMicro(1_700_000_200_000_000)

func rawFromJSON(t *testing.T, v interface{}) ingestion.RawOp {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return ingestion.RawOp{
		Subject:   "test",
		Data:      data,
		Timestamp: recvTime,
		AckFunc:   func() {},
		NakFunc:   func() {},
	}
}

func TestParseBuyShares(t *testing.T) {
	user := uuid.MustParse("660e8400-e29b-41d4-a716-446655440001")
	configAddr, _ := account.ConfigAddress()
	marketAddr, _ := account.MarketAddress(7)
	vaultAddr, _ := account.VaultAddress(7)
	positionAddr, _ := account.PositionAddress(user, 7)
	feeVault, _ := account.FeeVaultAddress()

	payload := map[string]interface{}{
		"op_id":          "550e8400-e29b-41d4-a716-446655440000",
		"user":           user.String(),
		"market_id":      uint64(7),
		"is_yes":         true,
		"amount":         uint64(50_000_000),
		"min_shares_out": uint64(33_000_000),
		"config_addr":    configAddr.String(),
		"market_addr":    marketAddr.String(),
		"vault_addr":     vaultAddr.String(),
		"position_addr":  positionAddr.String(),
		"fee_vault":      feeVault.String(),
		"timestamp_us":   int64(1_700_000_000_000_000),
	}

	raw := rawFromJSON(t, payload)
	parsed, err := ingestion.ParseRawOp(raw, "BuyShares")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	buy, ok := parsed.(*op.BuyShares)
	if !ok {
		t.Fatalf("expected *op.BuyShares, got %T", parsed)
	}

	if buy.User != user {
		t.Errorf("user: got %s, want %s", buy.User, user)
	}
	if buy.Market != 7 {
		t.Errorf("market_id: got %d, want 7", buy.Market)
	}
	if !buy.IsYes {
		t.Error("is_yes: got false, want true")
	}
	if buy.Amount != 50_000_000 {
		t.Errorf("amount: got %d, want 50_000_000", buy.Amount)
	}
	if buy.MinSharesOut != 33_000_000 {
		t.Errorf("min_shares_out: got %d, want 33_000_000", buy.MinSharesOut)
	}
	if buy.VaultAddr != vaultAddr {
		t.Errorf("vault_addr: got %s, want %s", buy.VaultAddr, vaultAddr)
	}
	if !buy.SubmitTime.Equal(recvTime) {
		t.Errorf("submit time: got %v, want receive time %v", buy.SubmitTime, recvTime)
	}
	if buy.OpType() != op.OpTypeBuyShares {
		t.Errorf("op type: got %v, want BuyShares", buy.OpType())
	}
}

func TestParseCreateMarket(t *testing.T) {
	configAddr, _ := account.ConfigAddress()
	marketAddr, _ := account.MarketAddress(1)
	vaultAddr, _ := account.VaultAddress(1)

	payload := map[string]interface{}{
		"op_id":             "550e8400-e29b-41d4-a716-446655440000",
		"authority":         "660e8400-e29b-41d4-a716-446655440001",
		"market_id":         uint64(1),
		"question":          "Will it rain tomorrow?",
		"description":       "Resolved against the official forecast.",
		"category":          "weather",
		"resolution_time":   int64(1_700_003_600),
		"initial_liquidity": uint64(100_000_000),
		"config_addr":       configAddr.String(),
		"market_addr":       marketAddr.String(),
		"vault_addr":        vaultAddr.String(),
		"timestamp_us":      int64(1_700_000_000_000_000),
	}

	raw := rawFromJSON(t, payload)
	parsed, err := ingestion.ParseRawOp(raw, "CreateMarket")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	cm, ok := parsed.(*op.CreateMarket)
	if !ok {
		t.Fatalf("expected *op.CreateMarket, got %T", parsed)
	}

	if cm.Question != "Will it rain tomorrow?" {
		t.Errorf("question: got %q", cm.Question)
	}
	if cm.ResolutionTime != 1_700_003_600 {
		t.Errorf("resolution_time: got %d", cm.ResolutionTime)
	}
	if cm.InitialLiquidity != 100_000_000 {
		t.Errorf("initial_liquidity: got %d", cm.InitialLiquidity)
	}
	if cm.MarketAddr != marketAddr {
		t.Errorf("market_addr: got %s, want %s", cm.MarketAddr, marketAddr)
	}
}

func TestParseResolveMarket(t *testing.T) {
	configAddr, _ := account.ConfigAddress()
	marketAddr, _ := account.MarketAddress(3)

	payload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"authority":    "660e8400-e29b-41d4-a716-446655440001",
		"market_id":    uint64(3),
		"outcome_yes":  true,
		"config_addr":  configAddr.String(),
		"market_addr":  marketAddr.String(),
		"timestamp_us": int64(1_700_003_700_000_000),
	}

	raw := rawFromJSON(t, payload)
	parsed, err := ingestion.ParseRawOp(raw, "ResolveMarket")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	rm, ok := parsed.(*op.ResolveMarket)
	if !ok {
		t.Fatalf("expected *op.ResolveMarket, got %T", parsed)
	}

	if !rm.OutcomeYes {
		t.Error("outcome_yes: got false, want true")
	}
	if id := rm.MarketID(); id == nil || *id != 3 {
		t.Errorf("market id: got %v, want 3", id)
	}
}

func TestParseWithdrawFees(t *testing.T) {
	configAddr, _ := account.ConfigAddress()
	feeVault, _ := account.FeeVaultAddress()

	payload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"authority":    "660e8400-e29b-41d4-a716-446655440001",
		"config_addr":  configAddr.String(),
		"fee_vault":    feeVault.String(),
		"timestamp_us": int64(1_700_003_800_000_000),
	}

	raw := rawFromJSON(t, payload)
	parsed, err := ingestion.ParseRawOp(raw, "WithdrawFees")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	wf, ok := parsed.(*op.WithdrawFees)
	if !ok {
		t.Fatalf("expected *op.WithdrawFees, got %T", parsed)
	}

	if wf.MarketID() != nil {
		t.Error("market id: want nil for global op")
	}
	if wf.FeeVault != feeVault {
		t.Errorf("fee_vault: got %s, want %s", wf.FeeVault, feeVault)
	}
}

func TestParseUnknownOpType_Fails(t *testing.T) {
	raw := ingestion.RawOp{Data: []byte(`{}`)}
	_, err := ingestion.ParseRawOp(raw, "NonExistentType")
	if err == nil {
		t.Fatal("expected error for unknown op type")
	}
}

func TestParseInvalidJSON_Fails(t *testing.T) {
	raw := ingestion.RawOp{Data: []byte(`{invalid json`)}
	_, err := ingestion.ParseRawOp(raw, "BuyShares")
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseInvalidUUID_Fails(t *testing.T) {
	configAddr, _ := account.ConfigAddress()
	feeVault, _ := account.FeeVaultAddress()

	payload := map[string]interface{}{
		"op_id":        "not-a-uuid",
		"authority":    "also-not-a-uuid",
		"config_addr":  configAddr.String(),
		"fee_vault":    feeVault.String(),
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawOp(raw, "Initialize")
	if err == nil {
		t.Fatal("expected error for invalid UUID")
	}
}

// Every op type must survive marshal then re-parse unchanged: the engine
// persists json.Marshal of the typed op as the log payload, and recovery
// feeds that payload back through ParseRawOp.
func TestWirePayloadRoundTrip(t *testing.T) {
	authority := uuid.MustParse("660e8400-e29b-41d4-a716-446655440001")
	user := uuid.MustParse("770e8400-e29b-41d4-a716-446655440002")
	configAddr, _ := account.ConfigAddress()
	feeVault, _ := account.FeeVaultAddress()
	marketAddr, _ := account.MarketAddress(7)
	vaultAddr, _ := account.VaultAddress(7)
	positionAddr, _ := account.PositionAddress(user, 7)
	ts := time.UnixMicro(1_700_000_000_000_000)

	ops := []op.Operation{
		&op.Initialize{
			OpID: uuid.New(), Authority: authority, FeeBps: 200,
			ConfigAddr: configAddr, FeeVault: feeVault, SubmitTime: ts,
		},
		&op.CreateMarket{
			OpID: uuid.New(), Authority: authority, Market: 7,
			Question: "Will it rain tomorrow?", Description: "Official forecast decides.",
			Category: "weather", ResolutionTime: 1_700_003_600, InitialLiquidity: 100_000_000,
			ConfigAddr: configAddr, MarketAddr: marketAddr, VaultAddr: vaultAddr, SubmitTime: ts,
		},
		&op.BuyShares{
			OpID: uuid.New(), User: user, Market: 7, IsYes: true,
			Amount: 50_000_000, MinSharesOut: 30_000_000,
			ConfigAddr: configAddr, MarketAddr: marketAddr, VaultAddr: vaultAddr,
			PositionAddr: positionAddr, FeeVault: feeVault, SubmitTime: ts,
		},
		&op.ResolveMarket{
			OpID: uuid.New(), Authority: authority, Market: 7, OutcomeYes: true,
			ConfigAddr: configAddr, MarketAddr: marketAddr, SubmitTime: ts,
		},
		&op.ClaimWinnings{
			OpID: uuid.New(), User: user, Market: 7,
			MarketAddr: marketAddr, VaultAddr: vaultAddr, PositionAddr: positionAddr,
			SubmitTime: ts,
		},
		&op.SweepFunds{
			OpID: uuid.New(), Authority: authority, Market: 7,
			ConfigAddr: configAddr, MarketAddr: marketAddr, VaultAddr: vaultAddr,
			SubmitTime: ts,
		},
		&op.WithdrawFees{
			OpID: uuid.New(), Authority: authority,
			ConfigAddr: configAddr, FeeVault: feeVault, SubmitTime: ts,
		},
	}

	for _, original := range ops {
		name := original.OpType().String()
		payload, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		// Zero receive time, as the recovery path supplies.
		parsed, err := ingestion.ParseRawOp(ingestion.RawOp{Data: payload}, name)
		if err != nil {
			t.Fatalf("%s: logged payload does not re-parse: %v", name, err)
		}
		if !reflect.DeepEqual(parsed, original) {
			t.Errorf("%s: round trip mismatch:\n got %+v\nwant %+v", name, parsed, original)
		}
	}
}

func TestParseReceiveTimeOverridesPayloadTime(t *testing.T) {
	configAddr, _ := account.ConfigAddress()
	feeVault, _ := account.FeeVaultAddress()

	stale := int64(1_600_000_000_000_000)
	payload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"authority":    "660e8400-e29b-41d4-a716-446655440001",
		"config_addr":  configAddr.String(),
		"fee_vault":    feeVault.String(),
		"timestamp_us": stale,
	}

	raw := rawFromJSON(t, payload)
	parsed, err := ingestion.ParseRawOp(raw, "WithdrawFees")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !parsed.Timestamp().Equal(recvTime) {
		t.Errorf("submit time: got %v, want receive time %v", parsed.Timestamp(), recvTime)
	}

	// No receive time means replay: the logged payload time stands.
	raw.Timestamp = time.Time{}
	replayed, err := ingestion.ParseRawOp(raw, "WithdrawFees")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !replayed.Timestamp().Equal(time.UnixMicro(stale)) {
		t.Errorf("replay time: got %v, want %v", replayed.Timestamp(), time.UnixMicro(stale))
	}
}

// A back-dated timestamp_us must not get a trade past the expiry gate once
// the receive time is beyond resolution_time.
func TestBackdatedTimestampCannotReopenExpiredMarket(t *testing.T) {
	authority := uuid.MustParse("660e8400-e29b-41d4-a716-446655440001")
	trader := uuid.MustParse("770e8400-e29b-41d4-a716-446655440002")
	configAddr, _ := account.ConfigAddress()
	feeVault, _ := account.FeeVaultAddress()
	marketAddr, _ := account.MarketAddress(0)
	vaultAddr, _ := account.VaultAddress(0)
	positionAddr, _ := account.PositionAddress(trader, 0)

	persist := make(chan engine.Output, 16)
	proj := make(chan engine.Output, 16)
	eng := engine.New(1, persist, proj, nil, nil, engine.DefaultOptions())

	createdAt := time.Unix(1_700_000_000, 0)
	resolutionTime := int64(1_700_003_600)

	if err := eng.Process(&op.Initialize{
		OpID: uuid.New(), Authority: authority, FeeBps: 200,
		ConfigAddr: configAddr, FeeVault: feeVault, SubmitTime: createdAt,
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := eng.Process(&op.CreateMarket{
		OpID: uuid.New(), Authority: authority, Market: 0,
		Question: "Will it rain tomorrow?", Description: "Official forecast decides.",
		Category: "weather", ResolutionTime: resolutionTime, InitialLiquidity: 100_000_000,
		ConfigAddr: configAddr, MarketAddr: marketAddr, VaultAddr: vaultAddr,
		SubmitTime: createdAt,
	}); err != nil {
		t.Fatalf("create market: %v", err)
	}

	// Submitter claims a time one minute before expiry; the shell received
	// the message a minute after.
	payload := map[string]interface{}{
		"op_id":          uuid.New().String(),
		"user":           trader.String(),
		"market_id":      uint64(0),
		"is_yes":         true,
		"amount":         uint64(10_000_000),
		"min_shares_out": uint64(0),
		"config_addr":    configAddr.String(),
		"market_addr":    marketAddr.String(),
		"vault_addr":     vaultAddr.String(),
		"position_addr":  positionAddr.String(),
		"fee_vault":      feeVault.String(),
		"timestamp_us":   (resolutionTime - 60) * 1_000_000,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	raw := ingestion.RawOp{
		Data:      data,
		Timestamp: time.Unix(resolutionTime+60, 0),
	}
	parsed, err := ingestion.ParseRawOp(raw, "BuyShares")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if err := eng.Process(parsed); !errors.Is(err, op.ErrMarketExpired) {
		t.Fatalf("expired market trade: got %v, want ErrMarketExpired", err)
	}
}

func TestParseBadAddress_Fails(t *testing.T) {
	payload := map[string]interface{}{
		"op_id":        "550e8400-e29b-41d4-a716-446655440000",
		"authority":    "660e8400-e29b-41d4-a716-446655440001",
		"config_addr":  "deadbeef", // too short
		"fee_vault":    "",
		"timestamp_us": int64(0),
	}

	raw := rawFromJSON(t, payload)
	_, err := ingestion.ParseRawOp(raw, "Initialize")
	if err == nil {
		t.Fatal("expected error for malformed address")
	}
}
