package strategy

import (
	"strings"

	"dex-signal-lab/internal/domain"
)

// IsRunnerStrategy infers the strategy family from its name: a lowercase
// name containing "runner", or the legacy "rr_" prefix, is a Runner.
// Everything else is RR/RRD.
func IsRunnerStrategy(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "runner") || strings.HasPrefix(lower, "rr_")
}

// DefaultRunnerConfig is the stock ladder: two tail legs above the 4x
// boundary, targets evaluated on candle highs.
func DefaultRunnerConfig() domain.RunnerConfig {
	return domain.RunnerConfig{
		Levels: domain.TakeProfitLadder{
			{Xn: 2.0, Fraction: 0.4},
			{Xn: 4.0, Fraction: 0.3},
			{Xn: 8.0, Fraction: 0.3},
		},
		UseHighForTargets: true,
		AllowPartialFills: true,
	}
}
