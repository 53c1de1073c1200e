// Package query provides read-only access to the projection tables. All
// responses carry as_of_sequence, the projection watermark at read time, so
// callers can reason about freshness relative to the op log.
package query

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetMarket returns a single market by id.
func (qs *Service) GetMarket(ctx context.Context, marketID uint64) (*MarketResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	row := qs.db.QueryRowContext(ctx, `
		SELECT market_id, authority, question, description, category,
		       resolution_time, created_at, initial_liquidity,
		       yes_liquidity, no_liquidity, total_volume,
		       total_yes_shares, total_no_shares, payout_pool,
		       resolved, outcome, version
		FROM projections.markets
		WHERE market_id = $1
	`, int64(marketID))

	m, err := scanMarket(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m.AsOfSequence = asOfSeq
	return m, nil
}

// ListMarkets returns markets with cursor-based pagination, newest first.
// Optional filters: category, resolved.
func (qs *Service) ListMarkets(
	ctx context.Context,
	category *string,
	resolved *bool,
	limit int,
	afterMarketID *uint64,
) ([]MarketResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT market_id, authority, question, description, category,
		       resolution_time, created_at, initial_liquidity,
		       yes_liquidity, no_liquidity, total_volume,
		       total_yes_shares, total_no_shares, payout_pool,
		       resolved, outcome, version
		FROM projections.markets
		WHERE TRUE
	`
	args := []interface{}{}
	argIdx := 1

	if category != nil {
		query += fmt.Sprintf(" AND category = $%d", argIdx)
		args = append(args, *category)
		argIdx++
	}

	if resolved != nil {
		query += fmt.Sprintf(" AND resolved = $%d", argIdx)
		args = append(args, *resolved)
		argIdx++
	}

	if afterMarketID != nil {
		query += fmt.Sprintf(" AND market_id < $%d", argIdx)
		args = append(args, int64(*afterMarketID))
		argIdx++
	}

	query += " ORDER BY market_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []MarketResponse
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		m.AsOfSequence = asOfSeq
		markets = append(markets, *m)
	}

	return markets, rows.Err()
}

// GetPosition returns a user's position in one market, nil if none exists.
func (qs *Service) GetPosition(ctx context.Context, userID uuid.UUID, marketID uint64) (*PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	var p PositionResponse
	p.UserID = userID
	p.AsOfSequence = asOfSeq
	err = qs.db.QueryRowContext(ctx, `
		SELECT market_id, yes_shares, no_shares, claimed, version
		FROM projections.positions
		WHERE user_id = $1 AND market_id = $2
	`, userID.String(), int64(marketID)).Scan(
		&p.MarketID, &p.YesShares, &p.NoShares, &p.Claimed, &p.Version,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// ListUserPositions returns all positions held by a user.
func (qs *Service) ListUserPositions(ctx context.Context, userID uuid.UUID) ([]PositionResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT market_id, yes_shares, no_shares, claimed, version
		FROM projections.positions
		WHERE user_id = $1
		ORDER BY market_id
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []PositionResponse
	for rows.Next() {
		var p PositionResponse
		p.UserID = userID
		p.AsOfSequence = asOfSeq
		if err := rows.Scan(
			&p.MarketID, &p.YesShares, &p.NoShares, &p.Claimed, &p.Version,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}

	return positions, rows.Err()
}

// GetBalance returns a user's wallet balance.
func (qs *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	walletPath := fmt.Sprintf("user:%s:wallet", userID)
	var balance int64
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, walletPath).Scan(&balance)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return &BalanceResponse{
		UserID:       userID,
		Balance:      balance,
		AsOfSequence: asOfSeq,
	}, nil
}

// GetVaultBalances returns a market's escrow vault balance and the global
// fee vault balance.
func (qs *Service) GetVaultBalances(ctx context.Context, marketID uint64) (*VaultBalanceResponse, error) {
	asOfSeq, err := qs.getWatermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	resp := &VaultBalanceResponse{
		MarketID:     marketID,
		AsOfSequence: asOfSeq,
	}

	vaultPath := fmt.Sprintf("market:%d:vault", marketID)
	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = $1
	`, vaultPath).Scan(&resp.VaultBalance)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	err = qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(balance, 0) FROM projections.balances
		WHERE account_path = 'system:fee_vault'
	`).Scan(&resp.FeeVaultBalance)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}

	return resp, nil
}

// GetJournalHistory returns journal entries touching a user's accounts,
// newest first, with cursor-based pagination.
func (qs *Service) GetJournalHistory(
	ctx context.Context,
	userID uuid.UUID,
	limit int,
	afterSequence *int64,
) ([]JournalHistoryEntry, error) {
	accountPrefix := fmt.Sprintf("user:%s:%%", userID)

	query := `
		SELECT journal_id, batch_id, op_ref, sequence,
		       debit_account, credit_account, amount, journal_type, timestamp
		FROM event_log.journal
		WHERE (debit_account LIKE $1 OR credit_account LIKE $1)
	`
	args := []interface{}{accountPrefix}
	argIdx := 2

	if afterSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *afterSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalHistoryEntry
	for rows.Next() {
		var e JournalHistoryEntry
		if err := rows.Scan(
			&e.JournalID, &e.BatchID, &e.OpRef, &e.Sequence,
			&e.DebitAccount, &e.CreditAccount, &e.Amount,
			&e.JournalType, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Admin APIs ---

// VerifyIntegrity checks hash chain continuity in the op log and the global
// zero-sum invariant over projected balances.
func (qs *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := qs.db.QueryContext(ctx, `
		SELECT o1.sequence
		FROM event_log.operations o1
		LEFT JOIN event_log.operations o2 ON o2.sequence = o1.sequence - 1
		WHERE o2.sequence IS NOT NULL AND o1.prev_hash != o2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var total sql.NullInt64
	err = qs.db.QueryRowContext(ctx, `
		SELECT SUM(balance) FROM projections.balances
	`).Scan(&total)
	if err != nil {
		return nil, err
	}
	if total.Valid && total.Int64 != 0 {
		imbalance := total.Int64
		report.GlobalImbalance = &imbalance
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.GlobalImbalance == nil
	return report, nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row rowScanner) (*MarketResponse, error) {
	var m MarketResponse
	var marketID int64
	var outcome sql.NullBool
	if err := row.Scan(
		&marketID, &m.Authority, &m.Question, &m.Description, &m.Category,
		&m.ResolutionTime, &m.CreatedAt, &m.InitialLiquidity,
		&m.YesLiquidity, &m.NoLiquidity, &m.TotalVolume,
		&m.TotalYesShares, &m.TotalNoShares, &m.PayoutPool,
		&m.Resolved, &outcome, &m.Version,
	); err != nil {
		return nil, err
	}
	m.MarketID = uint64(marketID)
	if outcome.Valid {
		v := outcome.Bool
		m.Outcome = &v
	}

	// Implied YES price in basis points: no_pool / (yes_pool + no_pool)
	if total := m.YesLiquidity + m.NoLiquidity; total > 0 {
		m.YesPriceBps = m.NoLiquidity * 10_000 / total
	}

	return &m, nil
}

func (qs *Service) getWatermark(ctx context.Context) (int64, error) {
	var seq int64
	err := qs.db.QueryRowContext(ctx, `
		SELECT COALESCE(last_sequence, 0) FROM projections.watermark WHERE worker_id = 'main'
	`).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return seq, err
}
