package strategy

import (
	"testing"

	"dex-signal-lab/internal/domain"
)

func TestComputePreWindowFeatures(t *testing.T) {
	entry := int64(3_600_000) // one hour in
	candles := []domain.Candle{
		{TimestampMs: entry - minutes(50), Open: 10, High: 14, Low: 8, Close: 10, Volume: 5},
		{TimestampMs: entry - minutes(10), Open: 10, High: 12, Low: 9, Close: 11, Volume: 3},
		{TimestampMs: entry - minutes(2), Open: 11, High: 13, Low: 10, Close: 12, Volume: 2},
		// At and after entry: must not leak into any window.
		{TimestampMs: entry, Open: 12, High: 100, Low: 1, Close: 50, Volume: 99},
		{TimestampMs: entry + minutes(1), Open: 50, High: 200, Low: 1, Close: 60, Volume: 99},
	}

	feats := ComputePreWindowFeatures(candles, entry, 10)
	if len(feats.Windows) != 3 {
		t.Fatalf("windows = %d, want 3", len(feats.Windows))
	}

	w5 := feats.Windows[0]
	if w5.WindowMinutes != 5 || w5.CandleCount != 1 {
		t.Errorf("5m window = %+v", w5)
	}
	if !almostEqual(w5.VolumeSum, 2) {
		t.Errorf("5m volume = %v, want 2", w5.VolumeSum)
	}

	w15 := feats.Windows[1]
	if w15.CandleCount != 2 || !almostEqual(w15.VolumeSum, 5) {
		t.Errorf("15m window = %+v", w15)
	}
	// (max high 13 - min low 9) / entry 10
	if !almostEqual(w15.NormalizedRange, 0.4) {
		t.Errorf("15m normalized range = %v, want 0.4", w15.NormalizedRange)
	}

	w60 := feats.Windows[2]
	if w60.CandleCount != 3 || !almostEqual(w60.VolumeSum, 10) {
		t.Errorf("60m window = %+v", w60)
	}
	if w60.ReturnsStddev <= 0 {
		t.Errorf("60m returns stddev = %v, want > 0", w60.ReturnsStddev)
	}
}

func TestComputePreWindowFeatures_EmptyHistory(t *testing.T) {
	feats := ComputePreWindowFeatures(nil, 1_000_000, 10)
	for _, w := range feats.Windows {
		if w.CandleCount != 0 || w.VolumeSum != 0 || w.NormalizedRange != 0 || w.ReturnsStddev != 0 {
			t.Errorf("window %dm not zeroed: %+v", w.WindowMinutes, w)
		}
	}
}
