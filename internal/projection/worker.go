// Package projection maintains read-optimized Postgres tables from engine
// outputs. Projections are eventually consistent: the feed channel drops
// under pressure and the tables rebuild from the op log.
package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"PredMarket/internal/engine"
)

// Worker updates projection tables from applied operations.
type Worker struct {
	db        *sql.DB
	inputChan <-chan engine.Output
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan engine.Output) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run starts the projection worker loop.
func (pw *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-pw.inputChan:
			if !ok {
				return nil
			}

			if err := pw.processOutput(ctx, output); err != nil {
				log.Printf("WARN: projection update failed at seq=%d: %v", output.Envelope.Sequence, err)
				// Continue: projections are eventually consistent
				// and can be rebuilt from the op log
			}

			pw.lastSeq = output.Envelope.Sequence
		}
	}
}

func (pw *Worker) processOutput(ctx context.Context, output engine.Output) error {
	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	seq := output.Envelope.Sequence

	if output.Market != nil {
		if err := pw.upsertMarket(ctx, tx, output, seq); err != nil {
			return fmt.Errorf("market projection: %w", err)
		}
	}

	if output.Position != nil {
		if err := pw.upsertPosition(ctx, tx, output, seq); err != nil {
			return fmt.Errorf("position projection: %w", err)
		}
	}

	if output.Batch != nil {
		for _, j := range output.Batch.Journals {
			if err := pw.updateBalanceProjection(ctx, tx, j.DebitAccount.AccountPath(), j.CreditAccount.AccountPath(), j.Amount, seq); err != nil {
				return fmt.Errorf("balance projection: %w", err)
			}
		}
	}

	// Update projection watermark
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ('main', $1, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $1, updated_at = NOW()
	`, seq); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	return tx.Commit()
}

func (pw *Worker) upsertMarket(ctx context.Context, tx *sql.Tx, output engine.Output, seq int64) error {
	m := output.Market
	var outcome *bool
	if m.Outcome != nil {
		v := *m.Outcome
		outcome = &v
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.markets
			(market_id, authority, question, description, category,
			 resolution_time, created_at, initial_liquidity,
			 yes_liquidity, no_liquidity, k_constant, total_volume,
			 total_yes_shares, total_no_shares, claimed_yes_shares, claimed_no_shares,
			 payout_pool, resolved, outcome, version, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		ON CONFLICT (market_id) DO UPDATE SET
			yes_liquidity = EXCLUDED.yes_liquidity,
			no_liquidity = EXCLUDED.no_liquidity,
			k_constant = EXCLUDED.k_constant,
			total_volume = EXCLUDED.total_volume,
			total_yes_shares = EXCLUDED.total_yes_shares,
			total_no_shares = EXCLUDED.total_no_shares,
			claimed_yes_shares = EXCLUDED.claimed_yes_shares,
			claimed_no_shares = EXCLUDED.claimed_no_shares,
			payout_pool = EXCLUDED.payout_pool,
			resolved = EXCLUDED.resolved,
			outcome = EXCLUDED.outcome,
			version = EXCLUDED.version,
			last_sequence = EXCLUDED.last_sequence
		WHERE projections.markets.version < EXCLUDED.version
	`,
		int64(m.MarketID), m.Authority.String(), m.Question, m.Description, m.Category,
		m.ResolutionTime, m.CreatedAt, int64(m.InitialLiquidity),
		int64(m.YesLiquidity), int64(m.NoLiquidity), m.KConstant.String(), int64(m.TotalVolume),
		m.TotalYesShares.String(), m.TotalNoShares.String(), m.ClaimedYesShares.String(), m.ClaimedNoShares.String(),
		int64(m.PayoutPool), m.Resolved, outcome, m.Version, seq,
	)
	return err
}

func (pw *Worker) upsertPosition(ctx context.Context, tx *sql.Tx, output engine.Output, seq int64) error {
	p := output.Position
	_, err := tx.ExecContext(ctx, `
		INSERT INTO projections.positions
			(user_id, market_id, yes_shares, no_shares, claimed, version, last_sequence)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, market_id) DO UPDATE SET
			yes_shares = EXCLUDED.yes_shares,
			no_shares = EXCLUDED.no_shares,
			claimed = EXCLUDED.claimed,
			version = EXCLUDED.version,
			last_sequence = EXCLUDED.last_sequence
		WHERE projections.positions.version < EXCLUDED.version
	`,
		p.User.String(), int64(p.MarketID), int64(p.YesShares), int64(p.NoShares),
		p.Claimed, p.Version, seq,
	)
	return err
}

// updateBalanceProjection applies one journal entry. Debits increase the
// account balance, credits decrease it, matching the in-memory tracker.
func (pw *Worker) updateBalanceProjection(ctx context.Context, tx *sql.Tx, debitPath, creditPath string, amount, seq int64) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance + $2, last_sequence = $3
	`, debitPath, amount, seq); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		VALUES ($1, -$2, $3)
		ON CONFLICT (account_path)
		DO UPDATE SET balance = projections.balances.balance - $2, last_sequence = $3
	`, creditPath, amount, seq); err != nil {
		return err
	}

	return nil
}

// RebuildBalances rebuilds the balance projection from the journal log.
// Market and position projections come from record state carried in op
// payloads, so they rebuild through engine replay, not SQL.
func RebuildBalances(ctx context.Context, db *sql.DB) error {
	truncateStatements := []string{
		`TRUNCATE projections.balances`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}

	for _, stmt := range truncateStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("truncate failed: %w", err)
		}
	}

	// Debit side increases balances
	_, err := db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			debit_account AS account_path,
			SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY debit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = EXCLUDED.balance, last_sequence = EXCLUDED.last_sequence
	`)
	if err != nil {
		return fmt.Errorf("rebuild debit balances: %w", err)
	}

	// Credit side decreases balances
	_, err = db.ExecContext(ctx, `
		INSERT INTO projections.balances (account_path, balance, last_sequence)
		SELECT
			credit_account AS account_path,
			-SUM(amount) AS balance,
			MAX(sequence) AS last_sequence
		FROM event_log.journal
		GROUP BY credit_account
		ON CONFLICT (account_path) DO UPDATE
			SET balance = projections.balances.balance + EXCLUDED.balance,
			    last_sequence = GREATEST(projections.balances.last_sequence, EXCLUDED.last_sequence)
	`)
	if err != nil {
		return fmt.Errorf("rebuild credit balances: %w", err)
	}

	log.Println("INFO: balance projection rebuild complete")
	return nil
}
