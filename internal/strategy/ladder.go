// Package strategy implements the Runner ladder engine and its signal
// adapter.
package strategy

import (
	"dex-signal-lab/internal/domain"
)

// RunLadder simulates a tiered take-profit ladder over the post-entry
// candles. Candles must be sorted ascending and strictly after entryTimeMs.
//
// Per candle, the time-stop is checked before any level. Level hits credit
// fraction * xn at the target price, not the candle close; only the tail
// close (time-stop or stream exhaustion) trades at market. Fractions are
// relative to initial size.
func RunLadder(entryTimeMs int64, entryPrice float64, candles []domain.Candle, cfg domain.RunnerConfig) domain.RunnerTradeResult {
	res := domain.RunnerTradeResult{
		EntryTimeMs:     entryTimeMs,
		EntryPrice:      entryPrice,
		LevelFirstHitMs: make(map[float64]int64),
		FractionExited:  make(map[float64]float64),
	}

	if len(candles) == 0 || entryPrice <= 0 {
		res.ExitTimeMs = entryTimeMs
		res.RealizedMultiple = 1.0
		res.Reason = domain.LadderReasonNoData
		return res
	}

	var timeStopMs int64
	if cfg.TimeStopMinutes != nil {
		timeStopMs = entryTimeMs + *cfg.TimeStopMinutes*60_000
	}

	levels := cfg.Levels.Sorted()
	hit := make([]bool, len(levels))
	remaining := 1.0
	realized := 0.0

	finish := func(exitTimeMs int64, tailClose float64, reason string) domain.RunnerTradeResult {
		if remaining > domain.FractionEpsilon {
			realized += remaining * (tailClose / entryPrice)
			remaining = 0
		}
		res.ExitTimeMs = exitTimeMs
		res.RealizedMultiple = realized
		res.RealizedPnLPct = (realized - 1) * 100
		res.Reason = reason
		return res
	}

	for _, c := range candles {
		if timeStopMs > 0 && c.TimestampMs >= timeStopMs {
			return finish(c.TimestampMs, c.Close, domain.LadderReasonTimeStop)
		}

		trigger := c.Close
		if cfg.UseHighForTargets {
			trigger = c.High
		}

		for i, lv := range levels {
			if hit[i] {
				continue
			}
			if trigger < entryPrice*lv.Xn {
				break
			}
			frac := lv.Fraction
			if cfg.ExitOnFirstTP {
				frac = remaining
			} else if frac > remaining {
				if !cfg.AllowPartialFills {
					// Level cannot fill fully; leave it for the tail close.
					continue
				}
				frac = remaining
			}

			hit[i] = true
			res.LevelFirstHitMs[lv.Xn] = c.TimestampMs
			res.FractionExited[lv.Xn] = frac
			realized += frac * lv.Xn
			remaining -= frac

			if remaining <= domain.FractionEpsilon {
				res.ExitTimeMs = c.TimestampMs
				res.RealizedMultiple = realized
				res.RealizedPnLPct = (realized - 1) * 100
				res.Reason = domain.LadderReasonAllLevelsHit
				return res
			}
		}
	}

	// Stream exhausted: close the tail at the last market close.
	last := candles[len(candles)-1]
	return finish(last.TimestampMs, last.Close, domain.LadderReasonAllLevelsHit)
}
