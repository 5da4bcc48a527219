package pricedata

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrNoPools is returned when the pool lookup finds no pools for a token.
	ErrNoPools = errors.New("no pools found for token")

	// ErrCacheMiss is returned when neither cache layout holds the contract.
	ErrCacheMiss = errors.New("candle cache miss")

	// ErrCorruptCache is returned when a cache file cannot be parsed.
	ErrCorruptCache = errors.New("corrupt candle cache file")

	// ErrNoCandles is returned when neither cache nor API yields candles.
	ErrNoCandles = errors.New("no candles available")
)

// RateLimitExceededError is raised by a 429 in fail mode. It is a distinct
// type so callers can abort the whole run instead of retrying.
type RateLimitExceededError struct {
	URL string
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded (429) fetching %s", e.URL)
}

// HTTPStatusError is a non-retryable HTTP status propagated to the caller.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// IsNotFound reports whether err is an HTTP 404, which the loader treats as
// "fall back to cache" rather than a failure.
func IsNotFound(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == 404
}

// MalformedCandleError describes one rejected OHLCV row.
type MalformedCandleError struct {
	Contract    string
	TimestampMs int64
	Rule        string
}

func (e *MalformedCandleError) Error() string {
	return fmt.Sprintf("malformed candle for %s at %d: %s", e.Contract, e.TimestampMs, e.Rule)
}
