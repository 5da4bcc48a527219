package memory

import (
	"context"
	"sync"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

type archiveKey struct {
	contract  string
	timeframe string
}

// CandleArchive is an in-memory implementation of storage.CandleArchive.
type CandleArchive struct {
	mu   sync.RWMutex
	data map[archiveKey][]domain.Candle
}

// NewCandleArchive creates a new in-memory candle archive.
func NewCandleArchive() *CandleArchive {
	return &CandleArchive{data: make(map[archiveKey][]domain.Candle)}
}

// Compile-time interface check.
var _ storage.CandleArchive = (*CandleArchive)(nil)

// InsertBulk archives candles for (contract, timeframe). Duplicate
// timestamps collapse, first archived wins.
func (a *CandleArchive) InsertBulk(_ context.Context, contract, timeframe string, candles []domain.Candle) error {
	if contract == "" || timeframe == "" {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	k := archiveKey{contract, timeframe}
	a.data[k] = domain.SortCandles(append(a.data[k], candles...))
	return nil
}

// GetByTimeRange retrieves archived candles within [startMs, endMs].
func (a *CandleArchive) GetByTimeRange(_ context.Context, contract, timeframe string, startMs, endMs int64) ([]domain.Candle, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []domain.Candle
	for _, c := range a.data[archiveKey{contract, timeframe}] {
		if c.TimestampMs >= startMs && c.TimestampMs <= endMs {
			out = append(out, c)
		}
	}
	return out, nil
}
