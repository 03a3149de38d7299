package domain

import "errors"

// Security errors. Critical: callers must not retry these blindly.
var (
	ErrUnauthorized = errors.New("unauthorized")
)

// Market lifecycle errors.
var (
	ErrMarketClosed          = errors.New("market closed")
	ErrMarketAlreadyResolved = errors.New("market already resolved")
	ErrMarketNotResolved     = errors.New("market not resolved")
	ErrMarketNotFound        = errors.New("market not found")
	ErrMarketExpired         = errors.New("market expired")
	ErrMarketStillActive     = errors.New("market still active")
	ErrMarketNotCancellable  = errors.New("market not cancellable")
	ErrMarketNotDisputed     = errors.New("market has no active disputes")
)

// Oracle errors.
var (
	ErrOracleUnavailable     = errors.New("oracle unavailable")
	ErrOracleInvalidConfig   = errors.New("invalid oracle configuration")
	ErrOracleDataStale       = errors.New("oracle data stale")
	ErrOracleInvalidFeed     = errors.New("invalid oracle feed")
	ErrOraclePriceOutOfRange = errors.New("oracle price out of range")
	ErrInvalidComparison     = errors.New("invalid comparison operator")
)

// Validation errors. Recoverable: the caller may retry with corrected input.
var (
	ErrInvalidQuestion   = errors.New("invalid question")
	ErrInvalidOutcomes   = errors.New("invalid outcome list")
	ErrInvalidOutcome    = errors.New("outcome not in market")
	ErrInvalidDuration   = errors.New("invalid duration")
	ErrInvalidThreshold  = errors.New("invalid threshold")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientStake = errors.New("insufficient stake")
)

// State errors.
var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrAlreadyVoted        = errors.New("already voted")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrFeeAlreadyCollected = errors.New("fees already collected")
	ErrNothingToClaim      = errors.New("nothing to claim")
)

// System errors. Surfaced verbatim, never converted to a silent default.
var (
	ErrNotFound     = errors.New("not found")
	ErrStorage      = errors.New("storage failure")
	ErrArithmetic   = errors.New("arithmetic overflow")
	ErrInvalidState = errors.New("invalid internal state")
	ErrLockHeld     = errors.New("lock already held")
)

// Circuit breaker errors.
var (
	ErrBreakerOpen           = errors.New("circuit breaker open")
	ErrBreakerNotOpen        = errors.New("circuit breaker not open")
	ErrBreakerAlreadyOpen    = errors.New("circuit breaker already open")
	ErrBreakerNotInitialized = errors.New("circuit breaker not initialized")
	ErrBreakerInvalidConfig  = errors.New("invalid circuit breaker configuration")
)
