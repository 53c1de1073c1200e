package persistence_test

import (
	"bytes"
	"context"
	"database/sql"
	"testing"
	"time"

	"PredMarket/internal/engine"
	"PredMarket/internal/persistence"
	"PredMarket/internal/testutil"

	"github.com/google/uuid"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	testutil.MigrateTestDB(t, db)
	return db
}

func writeOutputs(t *testing.T, db *sql.DB, outputs []engine.Output) {
	t.Helper()
	ctx := context.Background()

	writer := persistence.NewOpLogWriter(db, 50, 10*time.Millisecond)
	var opRows []persistence.OpRow
	var journalRows []persistence.JournalRow
	for _, out := range outputs {
		o, js := persistence.RowsFromOutput(out)
		opRows = append(opRows, o)
		journalRows = append(journalRows, js...)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.WriteOpBatch(ctx, tx, opRows); err != nil {
		t.Fatalf("write ops: %v", err)
	}
	if err := writer.WriteJournalBatch(ctx, tx, journalRows); err != nil {
		t.Fatalf("write journals: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestOpLogWriteAndLoad(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	outputs, _ := testutil.SeedEngineOutputs(t)
	writeOutputs(t, db, outputs)

	// Retried flushes and replays must be no-ops.
	writeOutputs(t, db, outputs)

	sm := persistence.NewSnapshotManager(db)
	rows, err := sm.LoadOpsFrom(ctx, 0, 10)
	if err != nil {
		t.Fatalf("load ops: %v", err)
	}
	if len(rows) != len(outputs) {
		t.Fatalf("got %d rows, want %d", len(rows), len(outputs))
	}

	for i, row := range rows {
		env := outputs[i].Envelope
		if row.Sequence != env.Sequence {
			t.Errorf("row %d: sequence %d, want %d", i, row.Sequence, env.Sequence)
		}
		if row.OpType != env.OpType.String() {
			t.Errorf("row %d: op type %s, want %s", i, row.OpType, env.OpType)
		}
		if !bytes.Equal(row.Payload, env.Payload) {
			t.Errorf("row %d: payload mismatch", i)
		}
		if !bytes.Equal(row.StateHash, env.StateHash[:]) {
			t.Errorf("row %d: state hash mismatch", i)
		}
		if !bytes.Equal(row.PrevHash, env.PrevHash[:]) {
			t.Errorf("row %d: prev hash mismatch", i)
		}
	}

	latest, err := sm.GetLatestSequence(ctx)
	if err != nil {
		t.Fatalf("latest sequence: %v", err)
	}
	if want := outputs[len(outputs)-1].Envelope.Sequence; latest != want {
		t.Errorf("latest sequence: got %d, want %d", latest, want)
	}

	var journalCount int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_log.journal`,
	).Scan(&journalCount); err != nil {
		t.Fatalf("count journals: %v", err)
	}
	wantJournals := 0
	for _, out := range outputs {
		if out.Batch != nil {
			wantJournals += len(out.Batch.Journals)
		}
	}
	if journalCount != wantJournals {
		t.Errorf("journal rows: got %d, want %d", journalCount, wantJournals)
	}
}

func TestPostgresIdempotencyChecker(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	outputs, _ := testutil.SeedEngineOutputs(t)
	writeOutputs(t, db, outputs)

	checker := persistence.NewPostgresIdempotencyChecker(db)

	env := outputs[len(outputs)-1].Envelope
	dup, err := checker.IsDuplicate(env.OpType.String(), env.IdempotencyKey)
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if !dup {
		t.Error("persisted operation not reported as duplicate")
	}

	dup, err = checker.IsDuplicate("BuyShares", uuid.NewString())
	if err != nil {
		t.Fatalf("is duplicate: %v", err)
	}
	if dup {
		t.Error("unseen key reported as duplicate")
	}

	keys, err := checker.RecentKeys(ctx, 10)
	if err != nil {
		t.Fatalf("recent keys: %v", err)
	}
	if len(keys) != len(outputs) {
		t.Fatalf("got %d keys, want %d", len(keys), len(outputs))
	}
	// Most recent first.
	if want := env.OpType.String() + ":" + env.IdempotencyKey; keys[0] != want {
		t.Errorf("first key: got %s, want %s", keys[0], want)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	_, eng := testutil.SeedEngineOutputs(t)
	snap := eng.CaptureState()

	sm := persistence.NewSnapshotManager(db)
	if err := sm.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Unverified snapshots must never load.
	loaded, err := sm.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded != nil {
		t.Fatal("unverified snapshot was loaded")
	}

	if err := sm.MarkVerified(ctx, snap.Sequence); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	loaded, err = sm.LoadLatestSnapshot(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("verified snapshot not loaded")
	}
	if loaded.Sequence != snap.Sequence {
		t.Errorf("sequence: got %d, want %d", loaded.Sequence, snap.Sequence)
	}
	if !bytes.Equal(loaded.StateHash, snap.StateHash) {
		t.Error("state hash mismatch after round trip")
	}

	restored := engine.New(0, make(chan engine.Output, 1), make(chan engine.Output, 1), nil, nil, engine.DefaultOptions())
	if err := restored.RestoreState(loaded); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.ChainTip() != eng.ChainTip() {
		t.Error("chain tip mismatch after restore from db")
	}
	if restored.Sequence() != eng.Sequence() {
		t.Errorf("sequence: got %d, want %d", restored.Sequence(), eng.Sequence())
	}
}
