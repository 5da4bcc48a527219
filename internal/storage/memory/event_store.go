package memory

import (
	"context"
	"sync"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

// EventStore is an in-memory implementation of storage.EventStore.
type EventStore struct {
	mu   sync.RWMutex
	data map[string][]domain.PortfolioEvent // keyed by run_id, insertion order
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{data: make(map[string][]domain.PortfolioEvent)}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk appends events atomically, preserving input order.
func (s *EventStore) InsertBulk(_ context.Context, runID string, events []domain.PortfolioEvent) error {
	if len(events) == 0 {
		return nil
	}
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[runID] = append(s.data[runID], events...)
	return nil
}

// GetByRun retrieves a run's events in insertion order.
func (s *EventStore) GetByRun(_ context.Context, runID string) ([]domain.PortfolioEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PortfolioEvent, len(s.data[runID]))
	copy(out, s.data[runID])
	return out, nil
}

// GetByType retrieves a run's events of one type in insertion order.
func (s *EventStore) GetByType(_ context.Context, runID, eventType string) ([]domain.PortfolioEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.PortfolioEvent
	for _, ev := range s.data[runID] {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out, nil
}
