// Package main runs the stability stage: closed positions CSV in,
// per-strategy window metrics CSV out.
package main

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/config"
	"dex-signal-lab/internal/reporting"
	"dex-signal-lab/internal/stability"
	"dex-signal-lab/internal/warn"
)

// exitBadShape reports a mis-shaped input table, e.g. an executions-level
// CSV passed where a positions-level one is required.
const exitBadShape = 2

func main() {
	configPath := flag.String("config", "", "Path to YAML config (optional, defaults apply)")
	positionsPath := flag.String("positions", "", "Path to portfolio positions CSV (required)")
	outDir := flag.String("out", "reports", "Output directory")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "stability").Logger()

	if *positionsPath == "" {
		logger.Fatal().Msg("--positions is required")
	}

	splitCounts := config.Default().Stability.SplitCounts
	if *configPath != "" {
		cfg, err := config.Load(*configPath, warn.NewDeduper(logger))
		if err != nil {
			logger.Fatal().Err(err).Msg("load config")
		}
		splitCounts = cfg.Stability.SplitCounts
	}

	table, err := stability.ReadPositionsCSV(*positionsPath)
	if err != nil {
		var shapeErr *stability.ShapeError
		if errors.As(err, &shapeErr) {
			logger.Error().Err(err).Msg("input table has the wrong shape")
			os.Exit(exitBadShape)
		}
		logger.Fatal().Err(err).Msg("read positions")
	}

	rows, err := stability.Aggregate(table, splitCounts)
	if err != nil {
		logger.Fatal().Err(err).Msg("aggregate stability metrics")
	}

	bundle, err := reporting.NewBundle(*outDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("create report bundle")
	}
	if err := bundle.WriteStability(rows); err != nil {
		logger.Fatal().Err(err).Msg("write stability csv")
	}

	logger.Info().
		Int("positions", len(table.Rows)).
		Int("rows", len(rows)).
		Str("out", filepath.Join(bundle.Dir, reporting.StabilityFile)).
		Msg("stability complete")
}
