package postgres

import (
	"context"
	"fmt"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

// ExecutionStore implements storage.ExecutionStore using PostgreSQL.
type ExecutionStore struct {
	pool *Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ExecutionStore = (*ExecutionStore)(nil)

// InsertBulk adds multiple execution legs atomically.
func (s *ExecutionStore) InsertBulk(ctx context.Context, runID string, executions []*domain.Execution) error {
	if len(executions) == 0 {
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
		INSERT INTO portfolio_executions (
			run_id, position_id, signal_id, strategy,
			event_time_ms, event_type, qty_delta,
			raw_price, exec_price, fees_sol, pnl_sol_delta, level_xn, reset_reason
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11, $12, $13
		)
	`

	for _, e := range executions {
		if e == nil || e.PositionID == "" {
			return storage.ErrInvalidInput
		}
		_, err := tx.Exec(ctx, query,
			runID, e.PositionID, e.SignalID, e.Strategy,
			e.EventTimeMs, e.EventType, e.QtyDelta,
			e.RawPrice, e.ExecPrice, e.FeesSOL, e.PnLSOLDelta, e.LevelXn, e.ResetReason,
		)
		if err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const selectExecutionColumns = `
	position_id, signal_id, strategy,
	event_time_ms, event_type, qty_delta,
	raw_price, exec_price, fees_sol, pnl_sol_delta, level_xn, reset_reason
`

// GetByPositionID retrieves all legs of a position, ordered by event time.
func (s *ExecutionStore) GetByPositionID(ctx context.Context, runID, positionID string) ([]*domain.Execution, error) {
	query := `SELECT ` + selectExecutionColumns + `
		FROM portfolio_executions
		WHERE run_id = $1 AND position_id = $2
		ORDER BY event_time_ms ASC, seq ASC
	`
	return s.queryExecutions(ctx, query, runID, positionID)
}

// GetByRun retrieves all legs of a run, ordered by event time.
func (s *ExecutionStore) GetByRun(ctx context.Context, runID string) ([]*domain.Execution, error) {
	query := `SELECT ` + selectExecutionColumns + `
		FROM portfolio_executions
		WHERE run_id = $1
		ORDER BY event_time_ms ASC, seq ASC
	`
	return s.queryExecutions(ctx, query, runID)
}

func (s *ExecutionStore) queryExecutions(ctx context.Context, query string, args ...any) ([]*domain.Execution, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		var e domain.Execution
		err := rows.Scan(
			&e.PositionID, &e.SignalID, &e.Strategy,
			&e.EventTimeMs, &e.EventType, &e.QtyDelta,
			&e.RawPrice, &e.ExecPrice, &e.FeesSOL, &e.PnLSOLDelta, &e.LevelXn, &e.ResetReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
