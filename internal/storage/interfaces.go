// Package storage defines the persistence interfaces of the backtest
// results and the errors every backend maps onto.
package storage

import (
	"context"

	"dex-signal-lab/internal/domain"
)

// PositionStore provides access to portfolio_positions storage. Every
// record is scoped by the run that produced it.
type PositionStore interface {
	// Insert adds a closed position. Returns ErrDuplicateKey if
	// (run_id, position_id) exists.
	Insert(ctx context.Context, runID string, p *domain.Position) error

	// InsertBulk adds multiple positions atomically. Fails the entire
	// batch on any duplicate.
	InsertBulk(ctx context.Context, runID string, positions []*domain.Position) error

	// GetByID retrieves one position. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID, positionID string) (*domain.Position, error)

	// GetByRun retrieves all positions of a run, ordered by entry time
	// ASC then position_id.
	GetByRun(ctx context.Context, runID string) ([]*domain.Position, error)

	// GetByStrategy retrieves a run's positions for one strategy,
	// ordered by entry time ASC then position_id.
	GetByStrategy(ctx context.Context, runID, strategy string) ([]*domain.Position, error)
}

// ExecutionStore provides access to portfolio_executions storage.
type ExecutionStore interface {
	// InsertBulk adds multiple execution legs atomically.
	InsertBulk(ctx context.Context, runID string, executions []*domain.Execution) error

	// GetByPositionID retrieves all legs of a position, ordered by
	// event time ASC.
	GetByPositionID(ctx context.Context, runID, positionID string) ([]*domain.Execution, error)

	// GetByRun retrieves all legs of a run, ordered by event time ASC.
	GetByRun(ctx context.Context, runID string) ([]*domain.Execution, error)
}

// EventStore provides access to the portfolio event ledger.
type EventStore interface {
	// InsertBulk appends events atomically, preserving input order.
	InsertBulk(ctx context.Context, runID string, events []domain.PortfolioEvent) error

	// GetByRun retrieves a run's events in insertion order.
	GetByRun(ctx context.Context, runID string) ([]domain.PortfolioEvent, error)

	// GetByType retrieves a run's events of one type in insertion order.
	GetByType(ctx context.Context, runID, eventType string) ([]domain.PortfolioEvent, error)
}

// CandleArchive provides access to fetched-candle archival storage.
// Archival is idempotent: re-inserting an already archived candle is not
// an error.
type CandleArchive interface {
	// InsertBulk archives candles for (contract, timeframe).
	InsertBulk(ctx context.Context, contract, timeframe string, candles []domain.Candle) error

	// GetByTimeRange retrieves archived candles within [startMs, endMs]
	// (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, contract, timeframe string, startMs, endMs int64) ([]domain.Candle, error)
}
