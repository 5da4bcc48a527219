package pricedata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/observability"
	"dex-signal-lab/internal/warn"
)

// LoaderConfig controls price resolution behavior.
type LoaderConfig struct {
	// PreferCacheIfExists returns whatever the cache holds without touching
	// the network, even when coverage is partial.
	PreferCacheIfExists bool
	// StrictValidation aborts a load on the first malformed candle instead
	// of skipping it.
	StrictValidation bool
}

// LoadResult is the outcome of one price load.
type LoadResult struct {
	Candles []domain.Candle
	// FromCache is true when no network call was made.
	FromCache bool
	// Partial is true when prefer-cache mode returned a slice that does not
	// cover the requested range on one or both edges.
	Partial bool
}

// Loader resolves candle sequences for contracts: cache probe first, then
// the HTTP client, with the union persisted back to the primary cache
// layout.
type Loader struct {
	client  *Client
	cache   *Cache
	valid   *Validator
	cfg     LoaderConfig
	tf      Timeframe
	logger  zerolog.Logger
	warner  *warn.Deduper
	metrics *observability.Metrics
}

// NewLoader wires a price loader from its collaborators. warner and metrics
// may be nil.
func NewLoader(client *Client, cache *Cache, valid *Validator, tf Timeframe, cfg LoaderConfig, logger zerolog.Logger, warner *warn.Deduper, metrics *observability.Metrics) *Loader {
	return &Loader{
		client:  client,
		cache:   cache,
		valid:   valid,
		cfg:     cfg,
		tf:      tf,
		logger:  logger,
		warner:  warner,
		metrics: metrics,
	}
}

// LoadPrices returns the candles for contract covering [startMs, endMs],
// sorted ascending and de-duplicated. Zero bounds are unbounded.
//
// Resolution: probe the cache. In prefer-cache mode a cached file is
// returned as-is, intersected with the range; partial coverage yields a
// warning and Partial=true, never a network call. Otherwise the cached
// range is compared against the request and the API fills the gap, with
// the union persisted. A 404 or mid-fetch failure falls back to any cached
// slice intersecting the range.
func (l *Loader) LoadPrices(ctx context.Context, contract string, startMs, endMs int64) (*LoadResult, error) {
	cached, err := l.cache.Load(contract)
	switch {
	case err == nil:
		l.countCache("hit")
	case errors.Is(err, ErrCacheMiss):
		l.countCache("miss")
	case errors.Is(err, ErrCorruptCache):
		l.countCache("corrupt")
		return nil, err
	default:
		return nil, err
	}
	haveCache := err == nil && len(cached) > 0

	if haveCache && l.cfg.PreferCacheIfExists {
		slice := domain.SliceCandles(cached, startMs, endMs)
		partial := l.warnMissingEdges(contract, cached, startMs, endMs)
		return l.finish(contract, slice, true, partial)
	}

	if haveCache && covers(cached, startMs, endMs) {
		return l.finish(contract, domain.SliceCandles(cached, startMs, endMs), true, false)
	}

	fetched, fetchErr := l.fetch(ctx, contract, startMs, endMs)
	if fetchErr != nil {
		if ctx.Err() != nil {
			return nil, fetchErr
		}
		var rle *RateLimitExceededError
		if errors.As(fetchErr, &rle) {
			return nil, fetchErr
		}
		// 404 and mid-fetch failures fall back to whatever the cache holds.
		if haveCache {
			l.logger.Warn().Err(fetchErr).Str("contract", contract).
				Msg("fetch failed, falling back to cached slice")
			return l.finish(contract, domain.SliceCandles(cached, startMs, endMs), true, true)
		}
		if IsNotFound(fetchErr) {
			return nil, fmt.Errorf("%w: %s", ErrNoCandles, contract)
		}
		return nil, fetchErr
	}

	merged := Union(cached, fetched)
	if len(merged) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCandles, contract)
	}
	if err := l.cache.Save(contract, merged); err != nil {
		return nil, fmt.Errorf("persist candles for %s: %w", contract, err)
	}

	return l.finish(contract, domain.SliceCandles(merged, startMs, endMs), false, false)
}

// fetch resolves the trading pool and pages the OHLCV history.
func (l *Loader) fetch(ctx context.Context, contract string, startMs, endMs int64) ([]domain.Candle, error) {
	pool, err := l.client.ResolvePool(ctx, contract)
	if err != nil {
		return nil, err
	}
	if endMs == 0 {
		endMs = time.Now().UnixMilli()
	}
	return l.client.FetchOHLCV(ctx, pool.Address, l.tf, startMs, endMs)
}

// finish validates the slice and assembles the result.
func (l *Loader) finish(contract string, candles []domain.Candle, fromCache, partial bool) (*LoadResult, error) {
	if l.valid != nil {
		var err error
		candles, err = l.valid.Validate(contract, candles)
		if err != nil {
			return nil, err
		}
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCandles, contract)
	}
	return &LoadResult{Candles: candles, FromCache: fromCache, Partial: partial}, nil
}

// warnMissingEdges reports whether the cached range misses either requested
// edge, emitting one warning per (contract, edge).
func (l *Loader) warnMissingEdges(contract string, cached []domain.Candle, startMs, endMs int64) bool {
	minTs := cached[0].TimestampMs
	maxTs := cached[len(cached)-1].TimestampMs

	partial := false
	if startMs > 0 && minTs > startMs {
		partial = true
		if l.warner != nil {
			l.warner.WarnOnce("coverage:"+contract+":start",
				fmt.Sprintf("cache for %s starts at %d, requested %d; missing leading candles", contract, minTs, startMs))
		}
	}
	if endMs > 0 && maxTs < endMs {
		partial = true
		if l.warner != nil {
			l.warner.WarnOnce("coverage:"+contract+":end",
				fmt.Sprintf("cache for %s ends at %d, requested %d; missing trailing candles", contract, maxTs, endMs))
		}
	}
	return partial
}

func (l *Loader) countCache(result string) {
	if l.metrics != nil {
		l.metrics.CacheHits.WithLabelValues(result).Inc()
	}
}

// covers reports whether cached candles reach both requested edges.
// Zero bounds are treated as covered.
func covers(cached []domain.Candle, startMs, endMs int64) bool {
	if len(cached) == 0 {
		return false
	}
	if startMs > 0 && cached[0].TimestampMs > startMs {
		return false
	}
	if endMs > 0 && cached[len(cached)-1].TimestampMs < endMs {
		return false
	}
	return true
}

// LoaderStats is the end-of-run instrumentation snapshot.
type LoaderStats struct {
	TotalRequests     int64
	HTTP429           int64
	RateLimitFailures int64
	ModeOn429         string
	BlockedEvents     int64
	TotalWaitSeconds  float64
}

// Stats merges client and limiter counters.
func (l *Loader) Stats() LoaderStats {
	cs := l.client.Stats()
	ls := l.client.limiter.Stats()
	return LoaderStats{
		TotalRequests:     cs.TotalRequests,
		HTTP429:           cs.HTTP429,
		RateLimitFailures: cs.RateLimitFailures,
		ModeOn429:         cs.ModeOn429,
		BlockedEvents:     ls.BlockedEvents,
		TotalWaitSeconds:  ls.TotalWait.Seconds(),
	}
}

// LogStats emits the end-of-run snapshot at info level.
func (l *Loader) LogStats() {
	s := l.Stats()
	l.logger.Info().
		Int64("total_requests", s.TotalRequests).
		Int64("http_429", s.HTTP429).
		Int64("rate_limit_failures", s.RateLimitFailures).
		Str("mode_on_429", s.ModeOn429).
		Int64("blocked_events", s.BlockedEvents).
		Float64("total_wait_seconds", s.TotalWaitSeconds).
		Msg("price loader summary")
	if l.metrics != nil {
		l.metrics.LimiterBlocked.Add(float64(s.BlockedEvents))
		l.metrics.LimiterWaitSeconds.Add(s.TotalWaitSeconds)
	}
}
