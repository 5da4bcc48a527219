package postgres

import (
	"context"
	"fmt"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

// EventStore implements storage.EventStore using PostgreSQL.
type EventStore struct {
	pool *Pool
}

// NewEventStore creates a new EventStore.
func NewEventStore(pool *Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EventStore = (*EventStore)(nil)

// InsertBulk appends events atomically, preserving input order via the
// sequence column.
func (s *EventStore) InsertBulk(ctx context.Context, runID string, events []domain.PortfolioEvent) error {
	if len(events) == 0 {
		return nil
	}
	if runID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO portfolio_events (
			run_id, event_type, position_id, timestamp_ms, reason, level_xn, fraction
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, ev := range events {
		_, err := tx.Exec(ctx, query,
			runID, ev.Type, ev.PositionID, ev.TimestampMs, ev.Reason, ev.LevelXn, ev.Fraction,
		)
		if err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByRun retrieves a run's events in insertion order.
func (s *EventStore) GetByRun(ctx context.Context, runID string) ([]domain.PortfolioEvent, error) {
	query := `
		SELECT event_type, position_id, timestamp_ms, reason, level_xn, fraction
		FROM portfolio_events
		WHERE run_id = $1
		ORDER BY seq ASC
	`
	return s.queryEvents(ctx, query, runID)
}

// GetByType retrieves a run's events of one type in insertion order.
func (s *EventStore) GetByType(ctx context.Context, runID, eventType string) ([]domain.PortfolioEvent, error) {
	query := `
		SELECT event_type, position_id, timestamp_ms, reason, level_xn, fraction
		FROM portfolio_events
		WHERE run_id = $1 AND event_type = $2
		ORDER BY seq ASC
	`
	return s.queryEvents(ctx, query, runID, eventType)
}

func (s *EventStore) queryEvents(ctx context.Context, query string, args ...any) ([]domain.PortfolioEvent, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.PortfolioEvent
	for rows.Next() {
		var ev domain.PortfolioEvent
		err := rows.Scan(&ev.Type, &ev.PositionID, &ev.TimestampMs, &ev.Reason, &ev.LevelXn, &ev.Fraction)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
