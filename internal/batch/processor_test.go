package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/observability"
	"dex-signal-lab/internal/pricedata"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = observability.NewMetrics("test_batch")

type fakeLoader struct {
	mu      sync.Mutex
	calls   int
	results map[string]*pricedata.LoadResult
	errs    map[string]error
}

func (f *fakeLoader) LoadPrices(_ context.Context, contract string, _, _ int64) (*pricedata.LoadResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if err, ok := f.errs[contract]; ok {
		return nil, err
	}
	if res, ok := f.results[contract]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("load prices: %w", pricedata.ErrNoCandles)
}

type fakeStrategy struct {
	name  string
	panic bool
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) OnSignal(sig domain.Signal, candles []domain.Candle) domain.StrategyOutput {
	if s.panic {
		panic("boom")
	}
	return domain.StrategyOutput{
		Strategy:        s.name,
		SignalID:        sig.ID,
		ContractAddress: sig.ContractAddress,
		Reason:          "no_entry",
	}
}

func candlesResult(n int) *pricedata.LoadResult {
	candles := make([]domain.Candle, n)
	for i := range candles {
		candles[i] = domain.Candle{TimestampMs: int64(i) * 60_000, Open: 1, High: 1, Low: 1, Close: 1}
	}
	return &pricedata.LoadResult{Candles: candles, FromCache: true}
}

func sig(id, contract string) *domain.Signal {
	return &domain.Signal{ID: id, ContractAddress: contract, TimestampMs: 1_700_000_000_000}
}

func newTestProcessor(loader PriceLoader, strategies []Strategy, workers int) *Processor {
	return NewProcessor(loader, strategies, workers, zerolog.Nop(), testMetrics)
}

func TestRunProducesSortedOutputs(t *testing.T) {
	loader := &fakeLoader{results: map[string]*pricedata.LoadResult{
		"AAA": candlesResult(5),
		"BBB": candlesResult(5),
		"CCC": candlesResult(5),
	}}
	strategies := []Strategy{
		&fakeStrategy{name: "runner_v1"},
		&fakeStrategy{name: "rr_v1"},
	}

	p := newTestProcessor(loader, strategies, 4)
	signals := []*domain.Signal{sig("s3", "CCC"), sig("s1", "AAA"), sig("s2", "BBB")}

	outputs, counters, err := p.Run(context.Background(), signals)
	require.NoError(t, err)
	require.Len(t, outputs, 6)

	for i := 1; i < len(outputs); i++ {
		prev, cur := outputs[i-1], outputs[i]
		less := prev.SignalID < cur.SignalID ||
			(prev.SignalID == cur.SignalID && prev.Strategy < cur.Strategy)
		require.True(t, less, "outputs out of order at %d", i)
	}
	require.Equal(t, "rr_v1", outputs[0].Strategy)
	require.Equal(t, "s1", outputs[0].SignalID)

	processed, noCandles, corrupt := counters.Snapshot()
	require.Equal(t, 3, processed)
	require.Zero(t, noCandles)
	require.Zero(t, corrupt)
}

func TestRunCountsSkips(t *testing.T) {
	loader := &fakeLoader{
		results: map[string]*pricedata.LoadResult{
			"GOOD":  candlesResult(5),
			"EMPTY": {Candles: nil, FromCache: true},
		},
		errs: map[string]error{
			"CORRUPT": fmt.Errorf("probe cache: %w", pricedata.ErrCorruptCache),
			"MISSING": fmt.Errorf("load prices: %w", pricedata.ErrNoCandles),
		},
	}
	p := newTestProcessor(loader, []Strategy{&fakeStrategy{name: "runner_v1"}}, 2)
	signals := []*domain.Signal{
		sig("s1", "GOOD"),
		sig("s2", "EMPTY"),
		sig("s3", "CORRUPT"),
		sig("s4", "MISSING"),
	}

	outputs, counters, err := p.Run(context.Background(), signals)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	require.Equal(t, "s1", outputs[0].SignalID)

	processed, noCandles, corrupt := counters.Snapshot()
	require.Equal(t, 1, processed)
	require.Equal(t, 2, noCandles, "empty result and ErrNoCandles both count")
	require.Equal(t, 1, corrupt)
}

func TestRunAbortsOnRateLimit(t *testing.T) {
	rateErr := &pricedata.RateLimitExceededError{URL: "https://api.example/ohlcv"}
	loader := &fakeLoader{
		results: map[string]*pricedata.LoadResult{"GOOD": candlesResult(5)},
		errs:    map[string]error{"LIMITED": fmt.Errorf("fetch: %w", rateErr)},
	}
	p := newTestProcessor(loader, []Strategy{&fakeStrategy{name: "runner_v1"}}, 1)
	signals := []*domain.Signal{sig("s1", "LIMITED"), sig("s2", "GOOD")}

	outputs, _, err := p.Run(context.Background(), signals)
	require.Error(t, err)

	var gotRate *pricedata.RateLimitExceededError
	require.True(t, errors.As(err, &gotRate))
	require.Nil(t, outputs)
	require.Equal(t, 1, loader.calls, "remaining signals must not be fetched")
}

func TestRunRecoversStrategyPanic(t *testing.T) {
	loader := &fakeLoader{results: map[string]*pricedata.LoadResult{"AAA": candlesResult(5)}}
	p := newTestProcessor(loader, []Strategy{
		&fakeStrategy{name: "broken", panic: true},
		&fakeStrategy{name: "runner_v1"},
	}, 2)

	outputs, counters, err := p.Run(context.Background(), []*domain.Signal{sig("s1", "AAA")})
	require.NoError(t, err)
	require.Len(t, outputs, 2)

	require.Equal(t, "broken", outputs[0].Strategy)
	require.Equal(t, "error", outputs[0].Reason)
	require.Equal(t, "s1", outputs[0].SignalID)
	require.Equal(t, "no_entry", outputs[1].Reason)

	processed, _, _ := counters.Snapshot()
	require.Equal(t, 1, processed)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loader := &fakeLoader{results: map[string]*pricedata.LoadResult{"AAA": candlesResult(5)}}
	p := newTestProcessor(loader, []Strategy{&fakeStrategy{name: "runner_v1"}}, 2)

	_, _, err := p.Run(ctx, []*domain.Signal{sig("s1", "AAA"), sig("s2", "AAA")})
	require.ErrorIs(t, err, context.Canceled)
}
