// Package batch fans signals out to a bounded worker pool, running the
// candle-load plus strategy pipeline for each signal.
package batch

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/observability"
	"dex-signal-lab/internal/pricedata"
)

// PriceLoader is the candle-loading dependency of the pool.
type PriceLoader interface {
	LoadPrices(ctx context.Context, contract string, startMs, endMs int64) (*pricedata.LoadResult, error)
}

// Strategy is one backtested strategy.
type Strategy interface {
	Name() string
	OnSignal(sig domain.Signal, candles []domain.Candle) domain.StrategyOutput
}

// Counters are the shared signal-processing counters, mutated under one
// mutex by all workers.
type Counters struct {
	mu sync.Mutex

	Processed        int
	SkippedNoCandles int
	SkippedCorrupt   int
}

// Snapshot returns a copy safe to read after the run.
func (c *Counters) Snapshot() (processed, skippedNoCandles, skippedCorrupt int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Processed, c.SkippedNoCandles, c.SkippedCorrupt
}

// Processor runs the per-signal pipeline over a worker pool.
type Processor struct {
	loader     PriceLoader
	strategies []Strategy
	maxWorkers int
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewProcessor creates a Processor. maxWorkers below 1 degrades to serial.
func NewProcessor(loader PriceLoader, strategies []Strategy, maxWorkers int, logger zerolog.Logger, metrics *observability.Metrics) *Processor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Processor{
		loader:     loader,
		strategies: strategies,
		maxWorkers: maxWorkers,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run processes all signals and returns the strategy outputs sorted by
// (signal_id, strategy) so parallel completion order never leaks into the
// results. A rate-limit failure aborts the whole run; any other per-signal
// failure is counted and skipped.
func (p *Processor) Run(ctx context.Context, signals []*domain.Signal) ([]domain.StrategyOutput, *Counters, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		counters Counters
		outMu    sync.Mutex
		outputs  []domain.StrategyOutput
		runErr   error
	)

	jobs := make(chan *domain.Signal)
	var wg sync.WaitGroup
	for w := 0; w < p.maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sig := range jobs {
				results, err := p.processSignal(ctx, sig, &counters)
				if err != nil {
					outMu.Lock()
					if runErr == nil {
						runErr = err
					}
					outMu.Unlock()
					cancel()
					return
				}
				outMu.Lock()
				outputs = append(outputs, results...)
				outMu.Unlock()
			}
		}()
	}

feed:
	for _, sig := range signals {
		select {
		case jobs <- sig:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if runErr != nil {
		return nil, &counters, runErr
	}
	if err := ctx.Err(); err != nil {
		return nil, &counters, err
	}

	sort.Slice(outputs, func(i, j int) bool {
		if outputs[i].SignalID != outputs[j].SignalID {
			return outputs[i].SignalID < outputs[j].SignalID
		}
		return outputs[i].Strategy < outputs[j].Strategy
	})
	return outputs, &counters, nil
}

// processSignal loads candles and runs every strategy for one signal.
// A non-abort failure returns (nil, nil) after counting the skip.
func (p *Processor) processSignal(ctx context.Context, sig *domain.Signal, counters *Counters) ([]domain.StrategyOutput, error) {
	res, err := p.loader.LoadPrices(ctx, sig.ContractAddress, sig.TimestampMs, 0)
	if err != nil {
		var rateErr *pricedata.RateLimitExceededError
		switch {
		case errors.As(err, &rateErr):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, pricedata.ErrCorruptCache):
			p.skip(counters, sig, "corrupt candle cache", func() { counters.SkippedCorrupt++ }, p.metrics.SignalsSkippedCorrupt.Inc)
			return nil, nil
		default:
			p.skip(counters, sig, err.Error(), func() { counters.SkippedNoCandles++ }, p.metrics.SignalsSkippedNoCandles.Inc)
			return nil, nil
		}
	}
	if len(res.Candles) == 0 {
		p.skip(counters, sig, "no candles in range", func() { counters.SkippedNoCandles++ }, p.metrics.SignalsSkippedNoCandles.Inc)
		return nil, nil
	}

	outputs := make([]domain.StrategyOutput, 0, len(p.strategies))
	for _, st := range p.strategies {
		outputs = append(outputs, p.runStrategy(st, sig, res.Candles))
	}

	counters.mu.Lock()
	counters.Processed++
	counters.mu.Unlock()
	p.metrics.SignalsProcessed.Inc()
	return outputs, nil
}

// runStrategy shields the pool from strategy panics: a panicking strategy
// yields an error-reason output for that signal instead of killing the run.
func (p *Processor) runStrategy(st Strategy, sig *domain.Signal, candles []domain.Candle) (out domain.StrategyOutput) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("strategy", st.Name()).
				Str("signal_id", sig.ID).
				Interface("panic", r).
				Msg("strategy panicked")
			out = domain.StrategyOutput{
				Strategy:        st.Name(),
				SignalID:        sig.ID,
				ContractAddress: sig.ContractAddress,
				Reason:          "error",
			}
		}
	}()
	return st.OnSignal(*sig, candles)
}

func (p *Processor) skip(counters *Counters, sig *domain.Signal, reason string, bump func(), metric func()) {
	counters.mu.Lock()
	bump()
	counters.mu.Unlock()
	metric()
	p.logger.Warn().
		Str("signal_id", sig.ID).
		Str("contract", sig.ContractAddress).
		Str("reason", reason).
		Msg("skipping signal")
}
