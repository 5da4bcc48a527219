// Package main runs the whole pipeline in one process with in-memory
// stores: signals → per-signal backtest → portfolio replay → stability →
// selection, all CSVs landing in one bundle directory.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/batch"
	"dex-signal-lab/internal/config"
	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/observability"
	"dex-signal-lab/internal/portfolio"
	"dex-signal-lab/internal/pricedata"
	"dex-signal-lab/internal/reporting"
	"dex-signal-lab/internal/selection"
	"dex-signal-lab/internal/signalcsv"
	"dex-signal-lab/internal/stability"
	"dex-signal-lab/internal/storage/memory"
	"dex-signal-lab/internal/strategy"
	"dex-signal-lab/internal/warn"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (required)")
	signalsPath := flag.String("signals", "", "Path to signals CSV (required)")
	outDir := flag.String("out", "reports", "Output directory")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "pipeline").Logger()

	if *configPath == "" {
		logger.Fatal().Msg("--config is required")
	}
	if *signalsPath == "" {
		logger.Fatal().Msg("--signals is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info().Stringer("signal", s).Msg("cancelling pipeline")
		cancel()
	}()

	warner := warn.NewDeduper(logger)
	cfg, err := config.Load(*configPath, warner)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	metrics := observability.NewMetrics("")

	started := time.Now()

	// Stage 1: per-signal backtest.
	outputs := runBacktest(ctx, cfg, *signalsPath, logger, warner, metrics)

	// Stage 2: portfolio replay, staged through the memory stores so the
	// report bundle reads back exactly what a persistent run would.
	bundle, err := reporting.NewBundle(*outDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("create report bundle")
	}
	positions, stats := runPortfolio(ctx, cfg, outputs, bundle, logger, metrics)

	// Stage 3: stability windows over the closed positions.
	table := stability.FromPositions(positions)
	stabilityRows, err := stability.Aggregate(table, cfg.Stability.SplitCounts)
	if err != nil {
		logger.Fatal().Err(err).Msg("aggregate stability metrics")
	}
	if err := bundle.WriteStability(stabilityRows); err != nil {
		logger.Fatal().Err(err).Msg("write stability csv")
	}

	// Stage 4: selection gate.
	verdicts := selection.Gate(stabilityRows)
	if err := bundle.WriteSelection(verdicts); err != nil {
		logger.Fatal().Err(err).Msg("write selection csv")
	}
	passed := 0
	for _, v := range verdicts {
		if v.Passed {
			passed++
		}
	}

	logger.Info().
		Str("run_id", bundle.RunID).
		Str("out", bundle.Dir).
		Int("strategies", len(stats)).
		Int("positions", len(positions)).
		Int("selection_passed", passed).
		Dur("elapsed", time.Since(started)).
		Msg("pipeline complete")
}

func runBacktest(ctx context.Context, cfg *config.Config, signalsPath string, logger zerolog.Logger, warner *warn.Deduper, metrics *observability.Metrics) []domain.StrategyOutput {
	tf, err := pricedata.ParseTimeframe(cfg.Fetcher.Timeframe)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse timeframe")
	}

	limiter := pricedata.NewRateLimiter(cfg.Fetcher.RateLimit, time.Duration(cfg.Fetcher.RateWindowSeconds)*time.Second)
	client := pricedata.NewClient(cfg.Fetcher.BaseURL, limiter,
		pricedata.WithNetwork(cfg.Fetcher.Network),
		pricedata.WithMaxRetries(cfg.Fetcher.MaxRetries),
		pricedata.WithOn429(cfg.Fetcher.OnRateLimit),
		pricedata.WithLogger(logger),
		pricedata.WithMetrics(metrics),
	)
	cache := pricedata.NewCache(cfg.Fetcher.CacheDir, tf)
	valid := pricedata.NewValidator(cfg.Fetcher.StrictValidation, warner)
	if cfg.Fetcher.MaxPriceJumpPct != nil {
		valid = valid.WithMaxPriceJump(*cfg.Fetcher.MaxPriceJumpPct)
	}
	loader := pricedata.NewLoader(client, cache, valid, tf, pricedata.LoaderConfig{
		PreferCacheIfExists: cfg.Fetcher.PreferCacheIfExists,
		StrictValidation:    cfg.Fetcher.StrictValidation,
	}, logger, warner, metrics)
	archiving := batch.NewArchivingLoader(loader, memory.NewCandleArchive(), cfg.Fetcher.Timeframe, logger)

	signals, err := signalcsv.NewLoader(warner).Load(signalsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load signals")
	}
	if len(signals) == 0 {
		logger.Fatal().Msg("no signals to process")
	}

	runner, err := strategy.NewRunner("runner_v1", strategy.DefaultRunnerConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("build runner strategy")
	}

	proc := batch.NewProcessor(archiving, []batch.Strategy{runner}, cfg.Batch.MaxWorkers, logger, metrics)
	outputs, counters, err := proc.Run(ctx, signals)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest stage failed")
	}

	loader.LogStats()
	processed, noCandles, corrupt := counters.Snapshot()
	logger.Info().
		Int("signals_processed", processed).
		Int("skipped_no_candles", noCandles).
		Int("skipped_corrupt_csv", corrupt).
		Msg("backtest stage complete")
	return outputs
}

func runPortfolio(ctx context.Context, cfg *config.Config, outputs []domain.StrategyOutput, bundle *reporting.Bundle, logger zerolog.Logger, metrics *observability.Metrics) ([]*domain.Position, []domain.PortfolioStats) {
	engine, err := portfolio.NewEngine(cfg.Portfolio, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("build portfolio engine")
	}

	positionStore := memory.NewPositionStore()
	executionStore := memory.NewExecutionStore()
	eventStore := memory.NewEventStore()

	var stats []domain.PortfolioStats
	for _, name := range strategyNames(outputs) {
		group := make([]domain.StrategyOutput, 0, len(outputs))
		for _, o := range outputs {
			if o.Strategy == name {
				group = append(group, o)
			}
		}

		result, err := engine.Run(group)
		if err != nil {
			logger.Fatal().Err(err).Str("strategy", name).Msg("portfolio replay failed")
		}
		if err := positionStore.InsertBulk(ctx, bundle.RunID, result.Positions); err != nil {
			logger.Fatal().Err(err).Msg("store positions")
		}
		execPtrs := make([]*domain.Execution, len(result.Executions))
		for i := range result.Executions {
			execPtrs[i] = &result.Executions[i]
		}
		if err := executionStore.InsertBulk(ctx, bundle.RunID, execPtrs); err != nil {
			logger.Fatal().Err(err).Msg("store executions")
		}
		if err := eventStore.InsertBulk(ctx, bundle.RunID, result.Events); err != nil {
			logger.Fatal().Err(err).Msg("store events")
		}
		stats = append(stats, result.Stats)
	}

	positions, err := positionStore.GetByRun(ctx, bundle.RunID)
	if err != nil {
		logger.Fatal().Err(err).Msg("read back positions")
	}
	executions, err := executionStore.GetByRun(ctx, bundle.RunID)
	if err != nil {
		logger.Fatal().Err(err).Msg("read back executions")
	}
	events, err := eventStore.GetByRun(ctx, bundle.RunID)
	if err != nil {
		logger.Fatal().Err(err).Msg("read back events")
	}

	if err := bundle.WritePositions(positions); err != nil {
		logger.Fatal().Err(err).Msg("write positions")
	}
	execVals := make([]domain.Execution, len(executions))
	for i, e := range executions {
		execVals[i] = *e
	}
	if err := bundle.WriteExecutions(execVals); err != nil {
		logger.Fatal().Err(err).Msg("write executions")
	}
	if err := bundle.WriteEvents(events); err != nil {
		logger.Fatal().Err(err).Msg("write events")
	}
	if err := bundle.WriteSummary(stats); err != nil {
		logger.Fatal().Err(err).Msg("write summary")
	}

	return positions, stats
}

// strategyNames returns the distinct strategies in deterministic order.
func strategyNames(outputs []domain.StrategyOutput) []string {
	seen := make(map[string]bool)
	var names []string
	for _, o := range outputs {
		if !seen[o.Strategy] {
			seen[o.Strategy] = true
			names = append(names, o.Strategy)
		}
	}
	sort.Strings(names)
	return names
}
