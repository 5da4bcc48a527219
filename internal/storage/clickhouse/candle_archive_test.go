package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"dex-signal-lab/internal/domain"
)

func TestCandleArchive_RoundTrip(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewCandleArchive(conn)
	ctx := context.Background()

	candles := []domain.Candle{
		{TimestampMs: 1_700_000_000_000, Open: 1.0, High: 1.2, Low: 0.9, Close: 1.1, Volume: 500},
		{TimestampMs: 1_700_000_060_000, Open: 1.1, High: 1.3, Low: 1.0, Close: 1.2, Volume: 700},
		{TimestampMs: 1_700_000_120_000, Open: 1.2, High: 1.4, Low: 1.1, Close: 1.3, Volume: 900},
	}
	require.NoError(t, archive.InsertBulk(ctx, "TOK", "1m", candles))

	got, err := archive.GetByTimeRange(ctx, "TOK", "1m", 1_700_000_000_000, 1_700_000_120_000)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 1.1, got[0].Close)

	// Range bounds are inclusive on both edges.
	mid, err := archive.GetByTimeRange(ctx, "TOK", "1m", 1_700_000_060_000, 1_700_000_060_000)
	require.NoError(t, err)
	require.Len(t, mid, 1)
	require.Equal(t, int64(1_700_000_060_000), mid[0].TimestampMs)

	// Other timeframes are isolated.
	none, err := archive.GetByTimeRange(ctx, "TOK", "1h", 0, 2_000_000_000_000)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestCandleArchive_IdempotentReInsert(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	archive := NewCandleArchive(conn)
	ctx := context.Background()

	batch := []domain.Candle{{TimestampMs: 1_700_000_000_000, Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}}
	require.NoError(t, archive.InsertBulk(ctx, "TOK", "1m", batch))
	require.NoError(t, archive.InsertBulk(ctx, "TOK", "1m", batch))

	got, err := archive.GetByTimeRange(ctx, "TOK", "1m", 0, 2_000_000_000_000)
	require.NoError(t, err)
	require.Len(t, got, 1, "FINAL collapses replaced rows")
}
