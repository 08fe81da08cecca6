package fetcher

import "errors"

// Per-ticker error taxonomy. None of these terminate a batch; the
// controller records them into that ticker's result.
var (
	// ErrNotFound means the upstream has no chart data for the symbol
	// or its dash-variant.
	ErrNotFound = errors.New("no chart data for symbol")

	// ErrEmptyData means the arrays were empty after alignment.
	ErrEmptyData = errors.New("no valid data points after alignment")

	// ErrInsufficientData means the aligned series is shorter than the
	// longest indicator lookback. The partial series is still returned
	// and cached; the caller decides how to report it.
	ErrInsufficientData = errors.New("insufficient data for indicator lookback")

	// ErrRateLimited means the upstream signalled throttling (HTTP 429).
	// Tickers failing this way are collected for a user-triggered retry.
	ErrRateLimited = errors.New("rate limited by upstream")
)
