// Package portfolio replays strategy outputs against a shared balance as a
// single-threaded, time-ordered event loop.
package portfolio

import (
	"fmt"

	"dex-signal-lab/internal/execution"
)

// Allocation modes.
const (
	AllocationFixed   = "fixed"
	AllocationDynamic = "dynamic"
)

// Capacity reset window types.
const (
	CapacityWindowDays    = "days"
	CapacityWindowSignals = "signals"
)

// CapacityResetConfig fires a portfolio reset when the rolling admission
// window degrades: too many blocked entries or positions held too long.
type CapacityResetConfig struct {
	Enabled         bool    `yaml:"enabled"`
	WindowType      string  `yaml:"window_type"` // days | signals
	WindowSize      int     `yaml:"window_size"`
	MaxBlockedRatio float64 `yaml:"max_blocked_ratio"`
	MaxAvgHoldDays  float64 `yaml:"max_avg_hold_days"`
}

// Config is the portfolio engine configuration.
type Config struct {
	InitialBalanceSOL float64 `yaml:"initial_balance_sol"`
	AllocationMode    string  `yaml:"allocation_mode"` // fixed | dynamic
	PercentPerTrade   float64 `yaml:"percent_per_trade"`
	MaxExposure       float64 `yaml:"max_exposure"`
	MaxOpenPositions  int     `yaml:"max_open_positions"`

	// Backtest window; zero bounds are unbounded.
	BacktestStartMs int64 `yaml:"-"`
	BacktestEndMs   int64 `yaml:"-"`

	Fee              execution.FeeConfig `yaml:"fee"`
	ExecutionProfile string              `yaml:"execution_profile"`

	ProfitResetEnabled  bool    `yaml:"profit_reset_enabled"`
	ProfitResetMultiple float64 `yaml:"profit_reset_multiple"`

	// Legacy per-position trigger: a single position realizing this
	// multiple resets the whole portfolio.
	RunnerResetEnabled  bool    `yaml:"runner_reset_enabled"`
	RunnerResetMultiple float64 `yaml:"runner_reset_multiple"`

	CapacityReset CapacityResetConfig `yaml:"capacity_reset"`

	// GraceMinutes blocks new entries for this long after a reset.
	GraceMinutes int64 `yaml:"grace_minutes"`

	UseReplayMode  bool   `yaml:"use_replay_mode"`
	MaxHoldMinutes *int64 `yaml:"max_hold_minutes"`
}

// DefaultConfig returns the stock portfolio configuration.
func DefaultConfig() Config {
	return Config{
		InitialBalanceSOL: 10,
		AllocationMode:    AllocationDynamic,
		PercentPerTrade:   0.1,
		MaxExposure:       1.0,
		MaxOpenPositions:  10,
		ExecutionProfile:  execution.DefaultProfileName,
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.InitialBalanceSOL <= 0 {
		return fmt.Errorf("initial_balance_sol must be positive, got %v", c.InitialBalanceSOL)
	}
	if c.AllocationMode != AllocationFixed && c.AllocationMode != AllocationDynamic {
		return fmt.Errorf("allocation_mode must be %q or %q, got %q", AllocationFixed, AllocationDynamic, c.AllocationMode)
	}
	if c.PercentPerTrade <= 0 || c.PercentPerTrade > 1 {
		return fmt.Errorf("percent_per_trade must be in (0,1], got %v", c.PercentPerTrade)
	}
	if c.MaxExposure <= 0 {
		return fmt.Errorf("max_exposure must be positive, got %v", c.MaxExposure)
	}
	if c.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive, got %v", c.MaxOpenPositions)
	}
	if c.ProfitResetEnabled && c.ProfitResetMultiple <= 1 {
		return fmt.Errorf("profit_reset_multiple must exceed 1, got %v", c.ProfitResetMultiple)
	}
	if c.RunnerResetEnabled && c.RunnerResetMultiple <= 1 {
		return fmt.Errorf("runner_reset_multiple must exceed 1, got %v", c.RunnerResetMultiple)
	}
	if c.CapacityReset.Enabled {
		cr := c.CapacityReset
		if cr.WindowType != CapacityWindowDays && cr.WindowType != CapacityWindowSignals {
			return fmt.Errorf("capacity_reset.window_type must be %q or %q, got %q", CapacityWindowDays, CapacityWindowSignals, cr.WindowType)
		}
		if cr.WindowSize <= 0 {
			return fmt.Errorf("capacity_reset.window_size must be positive, got %d", cr.WindowSize)
		}
	}
	return nil
}
