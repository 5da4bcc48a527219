// Package main runs the per-signal backtest stage: signals CSV in,
// strategy outputs CSV out.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/batch"
	"dex-signal-lab/internal/config"
	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/observability"
	"dex-signal-lab/internal/pricedata"
	"dex-signal-lab/internal/reporting"
	"dex-signal-lab/internal/signalcsv"
	chstore "dex-signal-lab/internal/storage/clickhouse"
	"dex-signal-lab/internal/storage/migrations"
	"dex-signal-lab/internal/strategy"
	"dex-signal-lab/internal/warn"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (required)")
	signalsPath := flag.String("signals", "", "Path to signals CSV (required)")
	outDir := flag.String("out", "reports", "Output directory")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for candle archival (optional)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "backtest").Logger()

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
		logger.Info().Stringer("signal", s).Msg("shutting down")
		cancel()
	}()

	warner := warn.NewDeduper(logger)
	cfg, err := config.Load(*configPath, warner)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	metrics := observability.NewMetrics("")

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

	var priceLoader batch.PriceLoader = loader
	if *clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatal().Err(err).Msg("connect to clickhouse")
		}
		defer conn.Close()
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			logger.Fatal().Err(err).Msg("clickhouse migrations")
		}
		priceLoader = batch.NewArchivingLoader(loader, chstore.NewCandleArchive(conn), cfg.Fetcher.Timeframe, logger)
	}

	signals, err := signalcsv.NewLoader(warner).Load(*signalsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load signals")
	}
	signals = filterWindow(signals, cfg.Portfolio.BacktestStartMs, cfg.Portfolio.BacktestEndMs)
	if len(signals) == 0 {
		logger.Fatal().Msg("no signals to process")
	}

	runner, err := strategy.NewRunner("runner_v1", strategy.DefaultRunnerConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("build runner strategy")
	}

	proc := batch.NewProcessor(priceLoader, []batch.Strategy{runner}, cfg.Batch.MaxWorkers, logger, metrics)

	started := time.Now()
	outputs, counters, err := proc.Run(ctx, signals)
	if err != nil {
		logger.Fatal().Err(err).Msg("backtest run failed")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create output directory")
	}
	outPath := filepath.Join(*outDir, reporting.OutputsFile)
	if err := reporting.WriteOutputsCSV(outPath, outputs); err != nil {
		logger.Fatal().Err(err).Msg("write strategy outputs")
	}

	loader.LogStats()
	processed, noCandles, corrupt := counters.Snapshot()
	logger.Info().
		Int("signals_processed", processed).
		Int("skipped_no_candles", noCandles).
		Int("skipped_corrupt_csv", corrupt).
		Int("outputs", len(outputs)).
		Str("out", outPath).
		Dur("elapsed", time.Since(started)).
		Msg("backtest complete")
}

// filterWindow drops signals outside [startMs, endMs]; zero bounds are open.
func filterWindow(signals []*domain.Signal, startMs, endMs int64) []*domain.Signal {
	if startMs == 0 && endMs == 0 {
		return signals
	}
	kept := signals[:0]
	for _, s := range signals {
		if startMs != 0 && s.TimestampMs < startMs {
			continue
		}
		if endMs != 0 && s.TimestampMs > endMs {
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
