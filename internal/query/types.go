package query

import "github.com/google/uuid"

// MarketResponse represents a market for API queries. Wide share counters
// travel as decimal strings.
type MarketResponse struct {
	MarketID         uint64 `json:"market_id"`
	Authority        string `json:"authority"`
	Question         string `json:"question"`
	Description      string `json:"description"`
	Category         string `json:"category"`
	ResolutionTime   int64  `json:"resolution_time"`
	CreatedAt        int64  `json:"created_at"`
	InitialLiquidity int64  `json:"initial_liquidity"`
	YesLiquidity     int64  `json:"yes_liquidity"`
	NoLiquidity      int64  `json:"no_liquidity"`
	TotalVolume      int64  `json:"total_volume"`
	TotalYesShares   string `json:"total_yes_shares"`
	TotalNoShares    string `json:"total_no_shares"`
	PayoutPool       int64  `json:"payout_pool"`
	Resolved         bool   `json:"resolved"`
	Outcome          *bool  `json:"outcome,omitempty"`
	YesPriceBps      int64  `json:"yes_price_bps"` // Derived at query time
	Version          int64  `json:"version"`
	AsOfSequence     int64  `json:"as_of_sequence"`
}

// PositionResponse represents a position for API queries.
type PositionResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	MarketID     uint64    `json:"market_id"`
	YesShares    int64     `json:"yes_shares"`
	NoShares     int64     `json:"no_shares"`
	Claimed      bool      `json:"claimed"`
	Version      int64     `json:"version"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// BalanceResponse represents a user's wallet balance. Wallets are boundary
// accounts: negative means net inflow to the system, positive means net
// entitlement paid out.
type BalanceResponse struct {
	UserID       uuid.UUID `json:"user_id"`
	Balance      int64     `json:"balance"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// VaultBalanceResponse reports a market's escrow vault balance alongside the
// protocol fee vault.
type VaultBalanceResponse struct {
	MarketID        uint64 `json:"market_id"`
	VaultBalance    int64  `json:"vault_balance"`
	FeeVaultBalance int64  `json:"fee_vault_balance"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	OpRef         string `json:"op_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        int64  `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	GlobalImbalance *int64  `json:"global_imbalance,omitempty"`
}
