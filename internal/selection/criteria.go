package selection

import (
	"fmt"

	"dex-signal-lab/internal/domain"
)

// Criterion is one immutable threshold check on a stability metric.
// Exactly one bound is set.
type Criterion struct {
	Metric string
	Min    *float64
	Max    *float64
}

// CriterionResult is the verdict of one criterion on one row.
type CriterionResult struct {
	Metric    string
	Threshold string
	Observed  string
	Pass      bool
	Missing   bool
}

// Reason renders the failure for the failed_reasons column.
func (r CriterionResult) Reason() string {
	if r.Missing {
		return "missing_" + r.Metric
	}
	return fmt.Sprintf("%s %s violates %s", r.Metric, r.Observed, r.Threshold)
}

func bound(v float64) *float64 { return &v }

// RRV1Criteria gates RR/RRD strategies on window robustness.
var RRV1Criteria = []Criterion{
	{Metric: "survival_rate", Min: bound(0.60)},
	{Metric: "pnl_variance", Max: bound(0.15)},
	{Metric: "worst_window_pnl", Min: bound(-0.25)},
	{Metric: "median_window_pnl", Min: bound(0)},
	{Metric: "windows_total", Min: bound(3)},
}

// RunnerV1Criteria gates Runner strategies on the legacy tail metrics.
var RunnerV1Criteria = []Criterion{
	{Metric: "hit_rate_x2", Min: bound(0.35)},
	{Metric: "hit_rate_x5", Min: bound(0.08)},
	{Metric: "p90_hold_days", Max: bound(35)},
	{Metric: "tail_contribution", Max: bound(0.80)},
	{Metric: "max_drawdown_pct", Min: bound(-0.60)},
}

// RunnerV2Criteria replaces RunnerV1Criteria whenever the stability table
// carries any v2 column; v1-only metrics are ignored entirely in that mode.
var RunnerV2Criteria = []Criterion{
	{Metric: "hit_rate_x4", Min: bound(0.10)},
	{Metric: "tail_pnl_share", Min: bound(0.30)},
	{Metric: "non_tail_pnl_share", Min: bound(-0.20)},
	{Metric: "max_drawdown_pct", Min: bound(-0.60)},
}

// metricValue extracts a named metric from a row; ok is false when the
// row does not carry it.
func metricValue(row *domain.StabilityRow, metric string) (float64, bool) {
	deref := func(p *float64) (float64, bool) {
		if p == nil {
			return 0, false
		}
		return *p, true
	}
	switch metric {
	case "survival_rate":
		return row.SurvivalRate, true
	case "pnl_variance":
		return row.PnLVariance, true
	case "worst_window_pnl":
		return row.WorstWindowPnL, true
	case "median_window_pnl":
		return row.MedianWindowPnL, true
	case "windows_total":
		return float64(row.WindowsTotal), true
	case "hit_rate_x2":
		return deref(row.HitRateX2)
	case "hit_rate_x4":
		return deref(row.HitRateX4)
	case "hit_rate_x5":
		return deref(row.HitRateX5)
	case "p90_hold_days":
		return deref(row.P90HoldDays)
	case "tail_contribution":
		return deref(row.TailContribution)
	case "tail_pnl_share":
		return deref(row.TailPnLShare)
	case "non_tail_pnl_share":
		return deref(row.NonTailPnLShare)
	case "max_drawdown_pct":
		return deref(row.MaxDrawdownPct)
	}
	return 0, false
}

// evaluate applies one criterion. A missing metric fails with a
// missing_<metric> reason rather than passing silently.
func (c Criterion) evaluate(row *domain.StabilityRow) CriterionResult {
	v, ok := metricValue(row, c.Metric)
	if !ok {
		return CriterionResult{Metric: c.Metric, Missing: true}
	}

	res := CriterionResult{
		Metric:   c.Metric,
		Observed: fmt.Sprintf("%.4f", v),
	}
	switch {
	case c.Min != nil:
		res.Threshold = fmt.Sprintf("minimum %.2f", *c.Min)
		res.Pass = v >= *c.Min
	case c.Max != nil:
		res.Threshold = fmt.Sprintf("maximum %.2f", *c.Max)
		res.Pass = v <= *c.Max
	}
	return res
}
