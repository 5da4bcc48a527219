package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dex-signal-lab/internal/warn"
)

func loadConfig(t *testing.T, content string) (*Config, *warn.Deduper, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var buf bytes.Buffer
	warner := warn.NewDeduper(zerolog.New(&buf))
	cfg, err := Load(path, warner)
	return cfg, warner, err
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, _, err := loadConfig(t, "portfolio:\n  initial_balance_sol: 25\n")
	require.NoError(t, err)

	require.Equal(t, 25.0, cfg.Portfolio.InitialBalanceSOL)
	require.Equal(t, "dynamic", cfg.Portfolio.AllocationMode)
	require.Equal(t, "realistic", cfg.Portfolio.ExecutionProfile)
	require.Equal(t, 4, cfg.Batch.MaxWorkers)
	require.Equal(t, []int{3, 4, 5}, cfg.Stability.SplitCounts)
	require.Equal(t, "wait", cfg.Fetcher.OnRateLimit)
}

func TestLoadBacktestWindow(t *testing.T) {
	cfg, _, err := loadConfig(t, `
portfolio:
  backtest:
    start_at: 2024-03-01T00:00:00Z
    end_at: 2024-04-01T00:00:00Z
`)
	require.NoError(t, err)
	require.Equal(t, int64(1709251200000), cfg.Portfolio.BacktestStartMs)
	require.Equal(t, int64(1711929600000), cfg.Portfolio.BacktestEndMs)
}

func TestLoadDeprecatedRunnerResetAlias(t *testing.T) {
	t.Run("alias alone fills the newer keys", func(t *testing.T) {
		cfg, warner, err := loadConfig(t, `
portfolio:
  runner_reset_enabled: true
  runner_reset_multiple: 5.0
`)
		require.NoError(t, err)
		require.True(t, cfg.Portfolio.ProfitResetEnabled)
		require.Equal(t, 5.0, cfg.Portfolio.ProfitResetMultiple)
		// The legacy per-position trigger keeps its own fields.
		require.True(t, cfg.Portfolio.RunnerResetEnabled)
		require.Equal(t, 5.0, cfg.Portfolio.RunnerResetMultiple)
		require.Equal(t, 1, warner.Count("config:runner_reset_alias"))
	})

	t.Run("newer keys win over the alias", func(t *testing.T) {
		cfg, warner, err := loadConfig(t, `
portfolio:
  profit_reset_enabled: true
  profit_reset_multiple: 2.0
  runner_reset_enabled: true
  runner_reset_multiple: 5.0
`)
		require.NoError(t, err)
		require.Equal(t, 2.0, cfg.Portfolio.ProfitResetMultiple)
		require.Equal(t, 5.0, cfg.Portfolio.RunnerResetMultiple)
		require.Equal(t, 1, warner.Count("config:runner_reset_alias"))
	})

	t.Run("no warning without the alias", func(t *testing.T) {
		_, warner, err := loadConfig(t, "portfolio:\n  profit_reset_enabled: true\n  profit_reset_multiple: 2.0\n")
		require.NoError(t, err)
		require.Equal(t, 0, warner.Count("config:runner_reset_alias"))
	})
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, content := range map[string]string{
		"bad allocation mode":  "portfolio:\n  allocation_mode: yolo\n",
		"bad rate limit mode":  "fetcher:\n  on_rate_limit: retry\n",
		"zero workers":         "batch:\n  max_workers: 0\n",
		"bad backtest instant": "portfolio:\n  backtest:\n    start_at: yesterday\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := loadConfig(t, content)
			require.Error(t, err)
		})
	}
}

func TestLoadMaxHoldMinutes(t *testing.T) {
	cfg, _, err := loadConfig(t, "portfolio:\n  max_hold_minutes: 240\n")
	require.NoError(t, err)
	require.NotNil(t, cfg.Portfolio.MaxHoldMinutes)
	require.Equal(t, int64(240), *cfg.Portfolio.MaxHoldMinutes)

	cfg, _, err = loadConfig(t, "portfolio:\n  max_hold_minutes: null\n")
	require.NoError(t, err)
	require.Nil(t, cfg.Portfolio.MaxHoldMinutes)
}
