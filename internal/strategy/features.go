package strategy

import (
	"math"

	"dex-signal-lab/internal/domain"
)

// preWindowMinutes are the lookback windows summarized before each entry.
var preWindowMinutes = []int{5, 15, 60}

// ComputePreWindowFeatures summarizes candles strictly before entryTimeMs
// over the standard lookback windows. Only past data is consulted.
func ComputePreWindowFeatures(candles []domain.Candle, entryTimeMs int64, entryPrice float64) *domain.PreWindowFeatures {
	feats := &domain.PreWindowFeatures{
		Windows: make([]domain.PreWindowStats, 0, len(preWindowMinutes)),
	}

	for _, mins := range preWindowMinutes {
		fromMs := entryTimeMs - int64(mins)*60_000
		window := windowBefore(candles, fromMs, entryTimeMs)

		stats := domain.PreWindowStats{
			WindowMinutes: mins,
			CandleCount:   len(window),
		}
		if len(window) > 0 {
			maxHigh := window[0].High
			minLow := window[0].Low
			for _, c := range window {
				stats.VolumeSum += c.Volume
				if c.High > maxHigh {
					maxHigh = c.High
				}
				if c.Low < minLow {
					minLow = c.Low
				}
			}
			if entryPrice > 0 {
				stats.NormalizedRange = (maxHigh - minLow) / entryPrice
			}
			stats.ReturnsStddev = returnsStddev(window)
		}
		feats.Windows = append(feats.Windows, stats)
	}

	return feats
}

// windowBefore selects candles with timestamp in [fromMs, beforeMs).
func windowBefore(candles []domain.Candle, fromMs, beforeMs int64) []domain.Candle {
	out := candles[:0:0]
	for _, c := range candles {
		if c.TimestampMs >= fromMs && c.TimestampMs < beforeMs {
			out = append(out, c)
		}
	}
	return out
}

// returnsStddev computes the population standard deviation of close-to-close
// returns within the window. Fewer than two candles yield 0.
func returnsStddev(candles []domain.Candle) float64 {
	var returns []float64
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev > 0 {
			returns = append(returns, candles[i].Close/prev-1)
		}
	}
	if len(returns) < 2 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))

	return math.Sqrt(variance)
}
