// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Price loader metrics
	LoaderRequests     prometheus.Counter
	LoaderHTTP429      prometheus.Counter
	RateLimitFailures  prometheus.Counter
	LimiterBlocked     prometheus.Counter
	LimiterWaitSeconds prometheus.Counter
	CacheHits          *prometheus.CounterVec

	// Signal processing metrics
	SignalsProcessed        prometheus.Counter
	SignalsSkippedNoCandles prometheus.Counter
	SignalsSkippedCorrupt   prometheus.Counter

	// Portfolio metrics
	PositionsOpened      prometheus.Counter
	PositionsClosed      prometheus.Counter
	TradesSkippedByRisk  prometheus.Counter
	TradesSkippedByReset prometheus.Counter
	PortfolioResets      *prometheus.CounterVec

	// Pipeline metrics
	PipelineDuration *prometheus.HistogramVec
	StabilityRows    prometheus.Counter
	SelectionPassed  prometheus.Counter
	SelectionFailed  prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered
// on the default registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dex_signal_lab"
	}

	return &Metrics{
		LoaderRequests: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricedata",
			Name:      "requests_total",
			Help:      "Total number of OHLCV API requests issued",
		}),
		LoaderHTTP429: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricedata",
			Name:      "http_429_total",
			Help:      "Total number of 429 responses observed",
		}),
		RateLimitFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricedata",
			Name:      "rate_limit_failures_total",
			Help:      "Total number of aborts due to rate limiting in fail mode",
		}),
		LimiterBlocked: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricedata",
			Name:      "limiter_blocked_total",
			Help:      "Total number of calls that had to wait on the rate limiter",
		}),
		LimiterWaitSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricedata",
			Name:      "limiter_wait_seconds_total",
			Help:      "Cumulative seconds spent waiting on the rate limiter",
		}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pricedata",
			Name:      "cache_hits_total",
			Help:      "Cache probe outcomes by result",
		}, []string{"result"}),

		SignalsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "signals_processed_total",
			Help:      "Total number of signals processed",
		}),
		SignalsSkippedNoCandles: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "signals_skipped_no_candles_total",
			Help:      "Signals skipped because no candles were available",
		}),
		SignalsSkippedCorrupt: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backtest",
			Name:      "signals_skipped_corrupt_csv_total",
			Help:      "Signals skipped because their cache file was corrupt",
		}),

		PositionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "positions_opened_total",
			Help:      "Total number of positions opened",
		}),
		PositionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "positions_closed_total",
			Help:      "Total number of positions closed",
		}),
		TradesSkippedByRisk: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "trades_skipped_by_risk_total",
			Help:      "Admissions refused by risk limits",
		}),
		TradesSkippedByReset: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "trades_skipped_by_reset_total",
			Help:      "Entries ignored inside a reset grace window",
		}),
		PortfolioResets: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "portfolio",
			Name:      "resets_total",
			Help:      "Portfolio resets by trigger reason",
		}, []string{"reason"}),

		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"stage"}),
		StabilityRows: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stability_rows_total",
			Help:      "Stability rows produced",
		}),
		SelectionPassed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "selection_passed_total",
			Help:      "Selection rows that passed the gate",
		}),
		SelectionFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "selection_failed_total",
			Help:      "Selection rows that failed the gate",
		}),
	}
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
