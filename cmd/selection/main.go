// Package main runs the selection gate: stability CSV in, pass/fail
// verdicts with reasons out. Exits 0 on success.
package main

import (
	"flag"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/reporting"
	"dex-signal-lab/internal/selection"
)

func main() {
	stabilityPath := flag.String("stability", "", "Path to strategy stability CSV (required)")
	outDir := flag.String("out", "reports", "Output directory")
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "selection").Logger()

	if *stabilityPath == "" {
		logger.Fatal().Msg("--stability is required")
	}

	rows, err := selection.ReadStabilityCSV(*stabilityPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read stability csv")
	}

	verdicts := selection.Gate(rows)

	passed := 0
	for _, v := range verdicts {
		if v.Passed {
			passed++
		} else {
			logger.Info().
				Str("strategy", v.Strategy).
				Int("split", v.SplitCount).
				Strs("failed_reasons", v.FailedReasons).
				Msg("strategy rejected")
		}
	}

	bundle, err := reporting.NewBundle(*outDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("create report bundle")
	}
	if err := bundle.WriteSelection(verdicts); err != nil {
		logger.Fatal().Err(err).Msg("write selection csv")
	}

	logger.Info().
		Int("rows", len(verdicts)).
		Int("passed", passed).
		Str("out", filepath.Join(bundle.Dir, reporting.SelectionFile)).
		Msg("selection complete")
}
