// Package main replays strategy outputs into a portfolio and writes the
// result CSV bundle, optionally persisting it to PostgreSQL.
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

	"dex-signal-lab/internal/config"
	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/observability"
	"dex-signal-lab/internal/portfolio"
	"dex-signal-lab/internal/reporting"
	"dex-signal-lab/internal/storage/migrations"
	pgstore "dex-signal-lab/internal/storage/postgres"
	"dex-signal-lab/internal/warn"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (required)")
	outputsPath := flag.String("outputs", "", "Path to strategy outputs CSV (required)")
	outDir := flag.String("out", "reports", "Output directory")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string for result persistence (optional)")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "portfolio").Logger()

	if *configPath == "" {
		logger.Fatal().Msg("--config is required")
	}
	if *outputsPath == "" {
		logger.Fatal().Msg("--outputs is required")
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
	engine, err := portfolio.NewEngine(cfg.Portfolio, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("build portfolio engine")
	}

	outputs, err := reporting.ReadOutputsCSV(*outputsPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read strategy outputs")
	}

	var (
		positions  []*domain.Position
		executions []domain.Execution
		events     []domain.PortfolioEvent
		stats      []domain.PortfolioStats
	)
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
		positions = append(positions, result.Positions...)
		executions = append(executions, result.Executions...)
		events = append(events, result.Events...)
		stats = append(stats, result.Stats)

		logger.Info().
			Str("strategy", name).
			Int("positions", len(result.Positions)).
			Float64("final_balance_sol", result.Stats.FinalBalanceSOL).
			Int("resets", result.Stats.PortfolioResetCount).
			Msg("strategy replayed")
	}

	bundle, err := reporting.NewBundle(*outDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("create report bundle")
	}
	if err := bundle.WritePositions(positions); err != nil {
		logger.Fatal().Err(err).Msg("write positions")
	}
	if err := bundle.WriteExecutions(executions); err != nil {
		logger.Fatal().Err(err).Msg("write executions")
	}
	if err := bundle.WriteEvents(events); err != nil {
		logger.Fatal().Err(err).Msg("write events")
	}
	if err := bundle.WriteSummary(stats); err != nil {
		logger.Fatal().Err(err).Msg("write summary")
	}

	if *postgresDSN != "" {
		if err := persist(ctx, *postgresDSN, bundle.RunID, positions, executions, events); err != nil {
			logger.Fatal().Err(err).Msg("persist results")
		}
		logger.Info().Str("run_id", bundle.RunID).Msg("results persisted to postgres")
	}

	logger.Info().
		Str("run_id", bundle.RunID).
		Str("out", bundle.Dir).
		Int("positions", len(positions)).
		Int("executions", len(executions)).
		Int("events", len(events)).
		Msg("portfolio complete")
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

func persist(ctx context.Context, dsn, runID string, positions []*domain.Position, executions []domain.Execution, events []domain.PortfolioEvent) error {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return err
	}

	if err := pgstore.NewPositionStore(pool).InsertBulk(ctx, runID, positions); err != nil {
		return err
	}
	execPtrs := make([]*domain.Execution, len(executions))
	for i := range executions {
		execPtrs[i] = &executions[i]
	}
	if err := pgstore.NewExecutionStore(pool).InsertBulk(ctx, runID, execPtrs); err != nil {
		return err
	}
	return pgstore.NewEventStore(pool).InsertBulk(ctx, runID, events)
}
