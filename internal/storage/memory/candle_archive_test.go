package memory

import (
	"context"
	"testing"

	"dex-signal-lab/internal/domain"
)

func TestCandleArchive_IdempotentInsert(t *testing.T) {
	archive := NewCandleArchive()
	ctx := context.Background()

	batch := []domain.Candle{
		{TimestampMs: 1000, Close: 1.0},
		{TimestampMs: 2000, Close: 1.1},
	}
	if err := archive.InsertBulk(ctx, "TOK", "1m", batch); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
	// Re-archiving the same candles is not an error and does not duplicate.
	if err := archive.InsertBulk(ctx, "TOK", "1m", batch); err != nil {
		t.Fatalf("repeat InsertBulk failed: %v", err)
	}

	got, err := archive.GetByTimeRange(ctx, "TOK", "1m", 0, 3000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("candles = %d, want 2", len(got))
	}

	ranged, err := archive.GetByTimeRange(ctx, "TOK", "1m", 1500, 3000)
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 1 || ranged[0].TimestampMs != 2000 {
		t.Errorf("ranged = %+v", ranged)
	}
}

func TestCandleArchive_KeyedByTimeframe(t *testing.T) {
	archive := NewCandleArchive()
	ctx := context.Background()

	if err := archive.InsertBulk(ctx, "TOK", "1m", []domain.Candle{{TimestampMs: 1000}}); err != nil {
		t.Fatal(err)
	}
	got, err := archive.GetByTimeRange(ctx, "TOK", "1h", 0, 2000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Error("timeframes must not share archives")
	}
}
