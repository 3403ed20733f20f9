package models

import "errors"

// Provider-level failures. Adapters wrap these with their own context.
var (
	ErrNotFound    = errors.New("symbol not found")
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("upstream timeout")
	ErrUpstream    = errors.New("upstream error")
)

var (
	ErrNoDataAvailable     = errors.New("no data available")
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrUnknownModel        = errors.New("unknown forecast model")
	ErrForecastFailed      = errors.New("forecast produced invalid prices")
	ErrNoAccuracyData      = errors.New("not enough graded forecasts")
	ErrInvalidAsset        = errors.New("invalid asset symbol")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidHorizon      = errors.New("forecast horizon must be at least one day")
	ErrAlertNotFound       = errors.New("alert not found")
	ErrInvalidCondition    = errors.New("condition must be above or below")
	ErrJobNotFound         = errors.New("job not found")
)

// IsTransient reports whether a provider error is worth another attempt.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUpstream)
}
