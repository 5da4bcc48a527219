package pricedata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/warn"
)

// loaderFixture wires a loader against a scripted HTTP handler and a temp
// cache dir.
type loaderFixture struct {
	loader *Loader
	cache  *Cache
	warner *warn.Deduper
	calls  *int
}

func newLoaderFixture(t *testing.T, cfg LoaderConfig, handler http.HandlerFunc) *loaderFixture {
	t.Helper()

	calls := new(int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	limiter := NewRateLimiter(1000, time.Minute)
	client := NewClient(srv.URL, limiter)
	client.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	cache := NewCache(t.TempDir(), Timeframe1m)
	warner := warn.NewDeduper(zerolog.Nop())
	valid := NewValidator(cfg.StrictValidation, warner)

	return &loaderFixture{
		loader: NewLoader(client, cache, valid, Timeframe1m, cfg, zerolog.Nop(), warner, nil),
		cache:  cache,
		warner: warner,
		calls:  calls,
	}
}

// serveHistory answers the pool lookup and a single-page OHLCV history.
func serveHistory(rows string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Query().Get("before_timestamp") != "":
			fmt.Fprintf(w, `{"data":{"attributes":{"ohlcv_list":[%s]}}}`, rows)
		default:
			fmt.Fprint(w, `{"data":[{"attributes":{"address":"pool1","name":"T/SOL","reserve_in_usd":"1000"}}]}`)
		}
	}
}

func TestLoaderFetchesAndPersistsOnCacheMiss(t *testing.T) {
	fx := newLoaderFixture(t, LoaderConfig{}, serveHistory(
		`[60,1,1.2,0.9,1.1,10],[120,1.1,1.3,1.0,1.2,20]`))

	res, err := fx.loader.LoadPrices(context.Background(), "TOK", 60_000, 120_000)
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.False(t, res.Partial)
	require.Len(t, res.Candles, 2)

	// The union is persisted; a second load covering the range is cache-only.
	before := *fx.calls
	res, err = fx.loader.LoadPrices(context.Background(), "TOK", 60_000, 120_000)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Equal(t, before, *fx.calls)
}

func TestLoaderPreferCacheReturnsPartialSlice(t *testing.T) {
	fx := newLoaderFixture(t, LoaderConfig{PreferCacheIfExists: true}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("network must not be called in prefer-cache mode")
	})

	require.NoError(t, fx.cache.Save("TOK", []domain.Candle{
		{TimestampMs: 120_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{TimestampMs: 180_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}))

	// Request reaches beyond both cached edges.
	res, err := fx.loader.LoadPrices(context.Background(), "TOK", 60_000, 240_000)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.True(t, res.Partial)
	require.Len(t, res.Candles, 2)

	require.Equal(t, 1, fx.warner.Count("coverage:TOK:start"))
	require.Equal(t, 1, fx.warner.Count("coverage:TOK:end"))
}

func TestLoaderLegacyModeCoveredByCache(t *testing.T) {
	fx := newLoaderFixture(t, LoaderConfig{}, func(w http.ResponseWriter, r *http.Request) {
		t.Error("covered range must not hit the network")
	})

	require.NoError(t, fx.cache.Save("TOK", []domain.Candle{
		{TimestampMs: 60_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{TimestampMs: 120_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{TimestampMs: 180_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}))

	res, err := fx.loader.LoadPrices(context.Background(), "TOK", 60_000, 180_000)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.Len(t, res.Candles, 3)
}

func TestLoaderLegacyModeFetchesGapAndUnions(t *testing.T) {
	fx := newLoaderFixture(t, LoaderConfig{}, serveHistory(
		`[180,2,2,2,2,20],[120,1.5,1.5,1.5,1.5,15],[60,1,1,1,1,10]`))

	// Cache misses the trailing edge.
	require.NoError(t, fx.cache.Save("TOK", []domain.Candle{
		{TimestampMs: 60_000, Open: 9, High: 9, Low: 9, Close: 9, Volume: 9},
	}))

	res, err := fx.loader.LoadPrices(context.Background(), "TOK", 60_000, 180_000)
	require.NoError(t, err)
	require.False(t, res.FromCache)
	require.Len(t, res.Candles, 3)
	// Cached row wins the duplicate timestamp.
	require.Equal(t, 9.0, res.Candles[0].Close)

	// Union persisted to the primary layout.
	persisted, err := fx.cache.Load("TOK")
	require.NoError(t, err)
	require.Len(t, persisted, 3)
}

func TestLoaderFallsBackToCacheOn404(t *testing.T) {
	fx := newLoaderFixture(t, LoaderConfig{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	require.NoError(t, fx.cache.Save("TOK", []domain.Candle{
		{TimestampMs: 60_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}))

	res, err := fx.loader.LoadPrices(context.Background(), "TOK", 60_000, 180_000)
	require.NoError(t, err)
	require.True(t, res.FromCache)
	require.True(t, res.Partial)
	require.Len(t, res.Candles, 1)
}

func TestLoader404WithoutCacheIsNoCandles(t *testing.T) {
	fx := newLoaderFixture(t, LoaderConfig{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := fx.loader.LoadPrices(context.Background(), "TOK", 60_000, 180_000)
	require.ErrorIs(t, err, ErrNoCandles)
}

func TestLoaderRateLimitFailurePropagates(t *testing.T) {
	fx := newLoaderFixture(t, LoaderConfig{}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	WithOn429(On429Fail)(fx.loader.client)

	// Even with a cached slice, fail mode aborts instead of falling back.
	require.NoError(t, fx.cache.Save("TOK", []domain.Candle{
		{TimestampMs: 60_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}))

	_, err := fx.loader.LoadPrices(context.Background(), "TOK", 60_000, 180_000)
	var rle *RateLimitExceededError
	require.ErrorAs(t, err, &rle)
}

func TestLoaderStatsSnapshot(t *testing.T) {
	fx := newLoaderFixture(t, LoaderConfig{}, serveHistory(`[60,1,1,1,1,10]`))

	_, err := fx.loader.LoadPrices(context.Background(), "TOK", 0, 60_000)
	require.NoError(t, err)

	s := fx.loader.Stats()
	require.Equal(t, int64(*fx.calls), s.TotalRequests)
	require.Equal(t, On429Wait, s.ModeOn429)
	require.Zero(t, s.HTTP429)
}
