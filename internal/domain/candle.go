package domain

import "sort"

// Candle is one closed OHLCV bar at minute (or k-minute) granularity.
type Candle struct {
	TimestampMs int64 // bar open time, UTC, Unix milliseconds
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// SortCandles orders candles ascending by timestamp and drops duplicate
// timestamps, first-seen wins. Returns a new slice.
func SortCandles(candles []Candle) []Candle {
	if len(candles) == 0 {
		return nil
	}

	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TimestampMs < out[j].TimestampMs
	})

	dedup := out[:1]
	for _, c := range out[1:] {
		if c.TimestampMs == dedup[len(dedup)-1].TimestampMs {
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// SliceCandles returns the candles with fromMs <= timestamp <= toMs.
// A zero bound means unbounded on that side. Input must be sorted ascending.
func SliceCandles(candles []Candle, fromMs, toMs int64) []Candle {
	lo := 0
	if fromMs > 0 {
		lo = sort.Search(len(candles), func(i int) bool {
			return candles[i].TimestampMs >= fromMs
		})
	}
	hi := len(candles)
	if toMs > 0 {
		hi = sort.Search(len(candles), func(i int) bool {
			return candles[i].TimestampMs > toMs
		})
	}
	if lo >= hi {
		return nil
	}
	return candles[lo:hi]
}
