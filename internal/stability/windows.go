package stability

import (
	"math"
	"sort"

	"dex-signal-lab/internal/domain"
)

// ComputeWindowMetrics summarizes one window's positions. An empty window
// yields zeros and is treated as non-surviving by the aggregator.
func ComputeWindowMetrics(w Window) domain.WindowMetrics {
	m := domain.WindowMetrics{
		WindowIndex: w.Index,
		StartMs:     w.StartMs,
		EndMs:       w.EndMs,
		TradesCount: len(w.Rows),
	}
	if len(w.Rows) == 0 {
		return m
	}

	pnls := make([]float64, len(w.Rows))
	for i, r := range w.Rows {
		pnls[i] = r.PnL
	}

	wins := 0
	gains, losses := 0.0, 0.0
	m.WorstTrade = pnls[0]
	m.BestTrade = pnls[0]
	for _, p := range pnls {
		m.TotalPnL += p
		if p > 0 {
			wins++
			gains += p
		} else {
			losses += -p
		}
		if p < m.WorstTrade {
			m.WorstTrade = p
		}
		if p > m.BestTrade {
			m.BestTrade = p
		}
	}
	m.Winrate = float64(wins) / float64(len(pnls))
	m.MedianPnL = median(pnls)
	m.MaxDrawdown = cumulativeDrawdown(pnls)

	switch {
	case losses > 0:
		m.ProfitFactor = gains / losses
	case gains > 0:
		m.ProfitFactor = math.Inf(1)
	default:
		m.ProfitFactor = 0
	}

	return m
}

// cumulativeDrawdown is the deepest drop of the running PnL sum below its
// peak, in PnL units, <= 0. Rows are already ordered by entry time.
func cumulativeDrawdown(pnls []float64) float64 {
	cum, peak, worst := 0.0, 0.0, 0.0
	for _, p := range pnls {
		cum += p
		if cum > peak {
			peak = cum
		}
		if dd := cum - peak; dd < worst {
			worst = dd
		}
	}
	return worst
}

func median(values []float64) float64 {
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)
	n := len(s)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// percentile is the nearest-rank percentile, p in [0, 100].
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	s := make([]float64, len(values))
	copy(s, values)
	sort.Float64s(s)

	rank := int(math.Ceil(p/100*float64(len(s)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(s) {
		rank = len(s) - 1
	}
	return s[rank]
}

func variance(values []float64) float64 {
	if len(values) <= 1 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	sum := 0.0
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(values))
}
