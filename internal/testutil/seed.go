package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"PredMarket/internal/account"
	"PredMarket/internal/engine"
	"PredMarket/internal/op"
	"PredMarket/internal/persistence"

	"github.com/google/uuid"
)

// Fixed identities so seeded data is stable across runs.
var (
	SeedAuthority = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	SeedTrader    = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	SeedBaseTime  = time.Unix(1_700_000_000, 0).UTC()
)

const SeedResolutionTime = 1_700_003_600

// MigrateTestDB applies all migrations to the test database.
func MigrateTestDB(t *testing.T, db *sql.DB) {
	t.Helper()
	_, thisFile, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(thisFile), "..", "..", "migrations")
	if err := persistence.NewMigrator(db, dir).Up(context.Background()); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
}

// SeedEngineOutputs runs a short market lifecycle (initialize, create market,
// one YES buy) through a fresh engine and returns the emitted outputs along
// with the engine, for tests that exercise the shell layers downstream of the
// deterministic core.
func SeedEngineOutputs(t *testing.T) ([]engine.Output, *engine.Engine) {
	t.Helper()

	persistChan := make(chan engine.Output, 16)
	projChan := make(chan engine.Output, 16)
	eng := engine.New(1, persistChan, projChan, nil, nil, engine.DefaultOptions())

	configAddr, _ := account.ConfigAddress()
	feeVault, _ := account.FeeVaultAddress()
	marketAddr, _ := account.MarketAddress(0)
	vaultAddr, _ := account.VaultAddress(0)
	positionAddr, _ := account.PositionAddress(SeedTrader, 0)

	ops := []op.Operation{
		&op.Initialize{
			OpID:       uuid.MustParse("33333333-0000-0000-0000-000000000001"),
			Authority:  SeedAuthority,
			FeeBps:     200,
			ConfigAddr: configAddr,
			FeeVault:   feeVault,
			SubmitTime: SeedBaseTime,
		},
		&op.CreateMarket{
			OpID:             uuid.MustParse("33333333-0000-0000-0000-000000000002"),
			Authority:        SeedAuthority,
			Market:           0,
			Question:         "Will it rain tomorrow?",
			Description:      "Settles YES if any precipitation is recorded.",
			Category:         "weather",
			ResolutionTime:   SeedResolutionTime,
			InitialLiquidity: 100_000_000,
			ConfigAddr:       configAddr,
			MarketAddr:       marketAddr,
			VaultAddr:        vaultAddr,
			SubmitTime:       SeedBaseTime,
		},
		&op.BuyShares{
			OpID:         uuid.MustParse("33333333-0000-0000-0000-000000000003"),
			User:         SeedTrader,
			Market:       0,
			IsYes:        true,
			Amount:       50_000_000,
			MinSharesOut: 0,
			ConfigAddr:   configAddr,
			MarketAddr:   marketAddr,
			VaultAddr:    vaultAddr,
			PositionAddr: positionAddr,
			FeeVault:     feeVault,
			SubmitTime:   SeedBaseTime.Add(time.Minute),
		},
	}

	for _, o := range ops {
		if err := eng.Process(o); err != nil {
			t.Fatalf("seed %s: %v", o.OpType(), err)
		}
	}

	outputs := make([]engine.Output, 0, len(ops))
	for range ops {
		outputs = append(outputs, <-persistChan)
	}
	return outputs, eng
}
