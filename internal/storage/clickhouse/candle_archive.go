package clickhouse

import (
	"context"
	"fmt"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

// CandleArchive implements storage.CandleArchive using ClickHouse. The
// backing table is a ReplacingMergeTree keyed by (contract, timeframe,
// timestamp), which makes re-archiving idempotent.
type CandleArchive struct {
	conn *Conn
}

// NewCandleArchive creates a new CandleArchive.
func NewCandleArchive(conn *Conn) *CandleArchive {
	return &CandleArchive{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleArchive = (*CandleArchive)(nil)

// InsertBulk archives candles for (contract, timeframe).
func (a *CandleArchive) InsertBulk(ctx context.Context, contract, timeframe string, candles []domain.Candle) error {
	if contract == "" || timeframe == "" {
		return storage.ErrInvalidInput
	}
	if len(candles) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO candle_archive (
			contract_address, timeframe, timestamp_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			contract, timeframe, uint64(c.TimestampMs),
			c.Open, c.High, c.Low, c.Close, c.Volume,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange retrieves archived candles within [startMs, endMs]
// (inclusive), ordered by timestamp ASC. FINAL collapses replaced rows.
func (a *CandleArchive) GetByTimeRange(ctx context.Context, contract, timeframe string, startMs, endMs int64) ([]domain.Candle, error) {
	query := `
		SELECT timestamp_ms, open, high, low, close, volume
		FROM candle_archive FINAL
		WHERE contract_address = ? AND timeframe = ?
		  AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := a.conn.Query(ctx, query, contract, timeframe, uint64(startMs), uint64(endMs))
	if err != nil {
		return nil, fmt.Errorf("query candle archive: %w", err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var (
			ts uint64
			c  domain.Candle
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.TimestampMs = int64(ts)
		out = append(out, c)
	}
	return out, rows.Err()
}
