package stability

import (
	"math"
	"sort"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/strategy"
)

// DefaultSplitCounts are the window splits computed per strategy.
var DefaultSplitCounts = []int{3, 4, 5}

const tinyDenominator = 1e-12

// Aggregate produces one stability row per (strategy, split count).
// Runner strategies additionally carry hit rates, hold percentiles, and
// tail decomposition; the v2 tail shares use the realized columns when the
// source carried them and the max-xn fallback otherwise.
func Aggregate(table *PositionTable, splitCounts []int) ([]domain.StabilityRow, error) {
	if len(splitCounts) == 0 {
		splitCounts = DefaultSplitCounts
	}

	byStrategy := make(map[string][]PositionRow)
	for _, r := range table.Rows {
		byStrategy[r.Strategy] = append(byStrategy[r.Strategy], r)
	}
	strategies := make([]string, 0, len(byStrategy))
	for name := range byStrategy {
		strategies = append(strategies, name)
	}
	sort.Strings(strategies)

	var out []domain.StabilityRow
	for _, name := range strategies {
		rows := byStrategy[name]
		for _, splitN := range splitCounts {
			row, err := aggregateOne(table, name, rows, splitN)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
	}
	return out, nil
}

func aggregateOne(table *PositionTable, name string, rows []PositionRow, splitN int) (domain.StabilityRow, error) {
	// A single trade cannot span multiple windows; collapsing keeps the
	// variance at zero instead of manufacturing empty-window spread.
	effSplit := splitN
	if len(rows) == 1 {
		effSplit = 1
	}
	windows, err := SplitWindows(rows, effSplit)
	if err != nil {
		return domain.StabilityRow{}, err
	}

	winPnls := make([]float64, len(windows))
	positive := 0
	for i, w := range windows {
		m := ComputeWindowMetrics(w)
		winPnls[i] = m.TotalPnL
		if m.TotalPnL > 0 {
			positive++
		}
	}

	row := domain.StabilityRow{
		Strategy:        name,
		SplitCount:      splitN,
		SurvivalRate:    float64(positive) / float64(len(windows)),
		PnLVariance:     variance(winPnls),
		WorstWindowPnL:  minOf(winPnls),
		BestWindowPnL:   maxOf(winPnls),
		MedianWindowPnL: median(winPnls),
		WindowsPositive: positive,
		WindowsTotal:    len(windows),
		TradesTotal:     len(rows),
	}

	if strategy.IsRunnerStrategy(name) {
		addRunnerMetrics(&row, table, rows)
	}
	return row, nil
}

// addRunnerMetrics fills the Runner-only columns, leaving a column nil when
// its source data is absent.
func addRunnerMetrics(row *domain.StabilityRow, table *PositionTable, rows []PositionRow) {
	n := float64(len(rows))
	if n == 0 {
		return
	}

	if table.HasMaxXn {
		hit := func(xn float64) *float64 {
			c := 0
			for _, r := range rows {
				if r.MaxXnReached >= xn {
					c++
				}
			}
			v := float64(c) / n
			return &v
		}
		row.HitRateX2 = hit(2)
		row.HitRateX4 = hit(4)
		row.HitRateX5 = hit(5)
	}

	if table.HasHold {
		days := make([]float64, len(rows))
		for i, r := range rows {
			days[i] = r.HoldMinutes / 1440
		}
		p90 := percentile(days, 90)
		row.P90HoldDays = &p90
	}

	totalPnL := 0.0
	for _, r := range rows {
		totalPnL += r.PnL
	}

	if table.HasMaxXn {
		tail5 := 0.0
		for _, r := range rows {
			if r.MaxXnReached >= 5 {
				tail5 += r.PnL
			}
		}
		contribution := 0.0
		if math.Abs(totalPnL) >= tinyDenominator {
			contribution = tail5 / totalPnL
		}
		row.TailContribution = &contribution
	}

	var tail, total float64
	haveShares := false
	switch {
	case table.HasRealized:
		for _, r := range rows {
			tail += r.RealizedTailPnLSOL
			total += r.RealizedTotalPnLSOL
		}
		haveShares = true
	case table.HasMaxXn:
		// Fallback: positions reaching the tail boundary count entirely as
		// tail. Shares may leave [0, 1] here.
		for _, r := range rows {
			if r.MaxXnReached >= domain.TailXnThreshold {
				tail += r.PnL
			}
			total += r.PnL
		}
		haveShares = true
	}
	if haveShares {
		share := 0.0
		if math.Abs(total) >= tinyDenominator {
			share = tail / total
		}
		nonTail := 1 - share
		row.TailPnLShare = &share
		row.NonTailPnLShare = &nonTail
	}

	dd := profitCurveDrawdown(rows)
	row.MaxDrawdownPct = &dd
}

// profitCurveDrawdown is the deepest relative drop of the cumulative PnL
// curve below its running peak, measured only once the curve has been
// positive. Rows are already ordered by entry time.
func profitCurveDrawdown(rows []PositionRow) float64 {
	cum, peak, worst := 0.0, 0.0, 0.0
	for _, r := range rows {
		cum += r.PnL
		if cum > peak {
			peak = cum
		}
		if peak > 0 {
			if dd := (cum - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
