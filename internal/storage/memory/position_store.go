// Package memory provides in-memory storage implementations, used by the
// CLIs when no database is configured and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

type positionKey struct {
	runID      string
	positionID string
}

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[positionKey]*domain.Position
}

// NewPositionStore creates a new in-memory position store.
func NewPositionStore() *PositionStore {
	return &PositionStore{data: make(map[positionKey]*domain.Position)}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

// Insert adds a closed position. Returns ErrDuplicateKey if
// (run_id, position_id) exists.
func (s *PositionStore) Insert(_ context.Context, runID string, p *domain.Position) error {
	if runID == "" || p == nil || p.PositionID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := positionKey{runID, p.PositionID}
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *p
	s.data[k] = &cp
	return nil
}

// InsertBulk adds multiple positions atomically. Fails the entire batch on
// any duplicate.
func (s *PositionStore) InsertBulk(_ context.Context, runID string, positions []*domain.Position) error {
	if len(positions) == 0 {
		return nil
	}
	if runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[positionKey]struct{}, len(positions))
	for _, p := range positions {
		if p == nil || p.PositionID == "" {
			return storage.ErrInvalidInput
		}
		k := positionKey{runID, p.PositionID}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[k]; exists {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}
	}

	for _, p := range positions {
		cp := *p
		s.data[positionKey{runID, p.PositionID}] = &cp
	}
	return nil
}

// GetByID retrieves one position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(_ context.Context, runID, positionID string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[positionKey{runID, positionID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// GetByRun retrieves all positions of a run, ordered by entry time ASC
// then position_id.
func (s *PositionStore) GetByRun(_ context.Context, runID string) ([]*domain.Position, error) {
	return s.collect(func(k positionKey, _ *domain.Position) bool {
		return k.runID == runID
	}), nil
}

// GetByStrategy retrieves a run's positions for one strategy.
func (s *PositionStore) GetByStrategy(_ context.Context, runID, strategy string) ([]*domain.Position, error) {
	return s.collect(func(k positionKey, p *domain.Position) bool {
		return k.runID == runID && p.Strategy == strategy
	}), nil
}

func (s *PositionStore) collect(match func(positionKey, *domain.Position) bool) []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Position
	for k, p := range s.data {
		if match(k, p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTimeMs != out[j].EntryTimeMs {
			return out[i].EntryTimeMs < out[j].EntryTimeMs
		}
		return out[i].PositionID < out[j].PositionID
	})
	return out
}
