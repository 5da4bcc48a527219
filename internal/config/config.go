// Package config loads the YAML configuration shared by the CLIs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"dex-signal-lab/internal/portfolio"
	"dex-signal-lab/internal/warn"
)

// 429 policies accepted by fetcher.on_rate_limit.
const (
	OnRateLimitWait = "wait"
	OnRateLimitFail = "fail"
)

// FetcherConfig drives the candle loader of cmd/backtest and cmd/pipeline.
type FetcherConfig struct {
	BaseURL   string `yaml:"base_url"`
	Network   string `yaml:"network"`
	Timeframe string `yaml:"timeframe"`
	CacheDir  string `yaml:"cache_dir"`

	// RateLimit calls per RateWindowSeconds, shared across workers.
	RateLimit         int    `yaml:"rate_limit"`
	RateWindowSeconds int    `yaml:"rate_window_seconds"`
	OnRateLimit       string `yaml:"on_rate_limit"` // wait | fail
	MaxRetries        int    `yaml:"max_retries"`

	PreferCacheIfExists bool     `yaml:"prefer_cache_if_exists"`
	StrictValidation    bool     `yaml:"strict_validation"`
	MaxPriceJumpPct     *float64 `yaml:"max_price_jump_pct"`
}

// BatchConfig bounds the signal fan-out worker pool.
type BatchConfig struct {
	MaxWorkers int `yaml:"max_workers"`
}

// StabilityConfig sets the window split counts of the aggregator.
type StabilityConfig struct {
	SplitCounts []int `yaml:"split_counts"`
}

// ReportsConfig sets where the CSV bundle lands.
type ReportsConfig struct {
	OutDir string `yaml:"out_dir"`
}

// Config is the full configuration file.
type Config struct {
	Portfolio portfolio.Config `yaml:"portfolio"`
	Fetcher   FetcherConfig    `yaml:"fetcher"`
	Batch     BatchConfig      `yaml:"batch"`
	Stability StabilityConfig  `yaml:"stability"`
	Reports   ReportsConfig    `yaml:"reports"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Portfolio: portfolio.DefaultConfig(),
		Fetcher: FetcherConfig{
			BaseURL:           "https://api.geckoterminal.com/api/v2",
			Network:           "solana",
			Timeframe:         "1m",
			CacheDir:          "data/candles",
			RateLimit:         25,
			RateWindowSeconds: 60,
			OnRateLimit:       OnRateLimitWait,
			MaxRetries:        3,
		},
		Batch:     BatchConfig{MaxWorkers: 4},
		Stability: StabilityConfig{SplitCounts: []int{3, 4, 5}},
		Reports:   ReportsConfig{OutDir: "reports"},
	}
}

// aliasProbe detects which reset keys the file actually spelled out.
// runner_reset_* is the deprecated spelling of profit_reset_*; when both
// appear the newer keys win.
type aliasProbe struct {
	Portfolio struct {
		ProfitResetEnabled  *bool    `yaml:"profit_reset_enabled"`
		ProfitResetMultiple *float64 `yaml:"profit_reset_multiple"`
		RunnerResetEnabled  *bool    `yaml:"runner_reset_enabled"`
		RunnerResetMultiple *float64 `yaml:"runner_reset_multiple"`

		Backtest struct {
			StartAt string `yaml:"start_at"`
			EndAt   string `yaml:"end_at"`
		} `yaml:"backtest"`
	} `yaml:"portfolio"`
}

// Load reads the YAML file at path over Default and validates the result.
func Load(path string, warner *warn.Deduper) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	var probe aliasProbe
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	p := probe.Portfolio

	if p.RunnerResetEnabled != nil || p.RunnerResetMultiple != nil {
		warner.WarnOnce(
			"config:runner_reset_alias",
			"runner_reset_enabled/runner_reset_multiple are deprecated, use profit_reset_enabled/profit_reset_multiple",
		)
		if p.ProfitResetEnabled == nil && p.RunnerResetEnabled != nil {
			cfg.Portfolio.ProfitResetEnabled = *p.RunnerResetEnabled
		}
		if p.ProfitResetMultiple == nil && p.RunnerResetMultiple != nil {
			cfg.Portfolio.ProfitResetMultiple = *p.RunnerResetMultiple
		}
	}

	if p.Backtest.StartAt != "" {
		ms, err := parseTimeMs(p.Backtest.StartAt)
		if err != nil {
			return nil, fmt.Errorf("backtest.start_at: %w", err)
		}
		cfg.Portfolio.BacktestStartMs = ms
	}
	if p.Backtest.EndAt != "" {
		ms, err := parseTimeMs(p.Backtest.EndAt)
		if err != nil {
			return nil, fmt.Errorf("backtest.end_at: %w", err)
		}
		cfg.Portfolio.BacktestEndMs = ms
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration invariants of every section.
func (c *Config) Validate() error {
	if err := c.Portfolio.Validate(); err != nil {
		return err
	}
	if c.Fetcher.RateLimit <= 0 || c.Fetcher.RateWindowSeconds <= 0 {
		return fmt.Errorf("fetcher rate limit must be positive, got %d per %ds",
			c.Fetcher.RateLimit, c.Fetcher.RateWindowSeconds)
	}
	if c.Fetcher.OnRateLimit != OnRateLimitWait && c.Fetcher.OnRateLimit != OnRateLimitFail {
		return fmt.Errorf("fetcher.on_rate_limit must be %q or %q, got %q",
			OnRateLimitWait, OnRateLimitFail, c.Fetcher.OnRateLimit)
	}
	if c.Batch.MaxWorkers <= 0 {
		return fmt.Errorf("batch.max_workers must be positive, got %d", c.Batch.MaxWorkers)
	}
	for _, n := range c.Stability.SplitCounts {
		if n <= 0 {
			return fmt.Errorf("stability.split_counts must be positive, got %d", n)
		}
	}
	return nil
}

func parseTimeMs(s string) (int64, error) {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("not RFC3339: %s", s)
	}
	return ts.UnixMilli(), nil
}
