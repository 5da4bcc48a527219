package memory

import (
	"context"
	"sort"
	"sync"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string][]domain.Execution // keyed by run_id, insertion order
}

// NewExecutionStore creates a new in-memory execution store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{data: make(map[string][]domain.Execution)}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// InsertBulk adds multiple execution legs atomically.
func (s *ExecutionStore) InsertBulk(_ context.Context, runID string, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}
	if runID == "" {
		return storage.ErrInvalidInput
	}
	for _, e := range executions {
		if e == nil || e.PositionID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range executions {
		s.data[runID] = append(s.data[runID], *e)
	}
	return nil
}

// GetByPositionID retrieves all legs of a position, ordered by event time.
func (s *ExecutionStore) GetByPositionID(_ context.Context, runID, positionID string) ([]*domain.Execution, error) {
	return s.collect(runID, func(e *domain.Execution) bool {
		return e.PositionID == positionID
	}), nil
}

// GetByRun retrieves all legs of a run, ordered by event time.
func (s *ExecutionStore) GetByRun(_ context.Context, runID string) ([]*domain.Execution, error) {
	return s.collect(runID, func(*domain.Execution) bool { return true }), nil
}

func (s *ExecutionStore) collect(runID string, match func(*domain.Execution) bool) []*domain.Execution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Execution
	for i := range s.data[runID] {
		e := s.data[runID][i]
		if match(&e) {
			out = append(out, &e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EventTimeMs < out[j].EventTimeMs
	})
	return out
}
