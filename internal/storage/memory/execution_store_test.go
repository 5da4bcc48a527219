package memory

import (
	"context"
	"errors"
	"testing"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

func TestExecutionStore_InsertBulkAndGet(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, "run1", []*domain.Execution{
		{PositionID: "pos1", EventTimeMs: 2000, EventType: domain.ExecutionFinalExit},
		{PositionID: "pos1", EventTimeMs: 1000, EventType: domain.ExecutionEntry},
		{PositionID: "pos2", EventTimeMs: 1500, EventType: domain.ExecutionEntry},
	})
	if err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	legs, err := store.GetByPositionID(ctx, "run1", "pos1")
	if err != nil {
		t.Fatal(err)
	}
	if len(legs) != 2 {
		t.Fatalf("legs = %d", len(legs))
	}
	if legs[0].EventType != domain.ExecutionEntry || legs[1].EventType != domain.ExecutionFinalExit {
		t.Error("legs must come back ordered by event time")
	}

	all, err := store.GetByRun(ctx, "run1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("run legs = %d", len(all))
	}
}

func TestExecutionStore_InvalidInput(t *testing.T) {
	store := NewExecutionStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, "run1", []*domain.Execution{{PositionID: ""}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
