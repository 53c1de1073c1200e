package op

import "errors"

// Engine error taxonomy. Every failure is terminal for the attempted
// operation: the engine aborts with zero state mutation and the caller
// decides whether to retry. Errors are matched with errors.Is so handlers
// can wrap them with context.
var (
	ErrUnauthorized       = errors.New("unauthorized signer")
	ErrAccountMismatch    = errors.New("derived address does not match supplied account")
	ErrNotInitialized     = errors.New("config not initialized")
	ErrAlreadyInitialized = errors.New("config already initialized")

	ErrMarketExists          = errors.New("market id already in use")
	ErrMarketExpired         = errors.New("market expired")
	ErrMarketNotExpired      = errors.New("market not expired yet")
	ErrMarketAlreadyResolved = errors.New("market already resolved")
	ErrMarketNotResolved     = errors.New("market not resolved")

	ErrInvalidAmount      = errors.New("invalid amount")
	ErrSlippageExceeded   = errors.New("slippage exceeded")
	ErrDegeneratePool     = errors.New("trade would drain a pool side")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	ErrNotAWinner     = errors.New("position holds no winning shares")
	ErrAlreadyClaimed = errors.New("winnings already claimed")

	ErrQuestionTooLong    = errors.New("question too long")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrCategoryTooLong    = errors.New("category too long")

	ErrInvalidResolutionTime        = errors.New("resolution time not in the future")
	ErrInsufficientInitialLiquidity = errors.New("initial liquidity below minimum")

	ErrNoResidualFunds = errors.New("no residual vault funds to sweep")
	ErrNoAccruedFees   = errors.New("no accrued fees to withdraw")
)
