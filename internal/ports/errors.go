package ports

import "errors"

// Standard application-level errors.
// Adapters and the core wrap underlying failures with these so callers can use errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Market data source errors
	ErrExchangeUnavailable  = errors.New("market data API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the market data API")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("market data API authentication failed (check API key)")

	// Backtest core errors
	ErrDataUnavailable     = errors.New("historical data is unavailable or empty")
	ErrMalformedCandle     = errors.New("malformed candle record")
	ErrIndicatorEvaluation = errors.New("indicator evaluation failed")
	ErrInsufficientData    = errors.New("not enough data for indicator window")
	ErrInvalidLength       = errors.New("indicator length must be positive")
	ErrUnknownStrategy     = errors.New("unknown strategy")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)
