package postgres

import (
	"context"
	"fmt"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const insertPositionQuery = `
	INSERT INTO portfolio_positions (
		run_id, position_id, strategy, signal_id, contract_address,
		entry_time_ms, exit_time_ms, status,
		size_sol, raw_entry_price, exec_entry_price, raw_exit_price, exec_exit_price,
		pnl_sol, fees_total_sol, hold_minutes, max_xn_reached,
		closed_by_reset, triggered_portfolio_reset, reset_reason,
		realized_total_pnl_sol, realized_tail_pnl_sol
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8,
		$9, $10, $11, $12, $13,
		$14, $15, $16, $17,
		$18, $19, $20,
		$21, $22
	)
`

const selectPositionColumns = `
	position_id, strategy, signal_id, contract_address,
	entry_time_ms, exit_time_ms, status,
	size_sol, raw_entry_price, exec_entry_price, raw_exit_price, exec_exit_price,
	pnl_sol, fees_total_sol, hold_minutes, max_xn_reached,
	closed_by_reset, triggered_portfolio_reset, reset_reason,
	realized_total_pnl_sol, realized_tail_pnl_sol
`

func positionArgs(runID string, p *domain.Position) []any {
	return []any{
		runID, p.PositionID, p.Strategy, p.SignalID, p.ContractAddress,
		p.EntryTimeMs, p.ExitTimeMs, p.Status,
		p.SizeSOL, p.RawEntryPrice, p.ExecEntryPrice, p.RawExitPrice, p.ExecExitPrice,
		p.PnLSOL, p.FeesTotalSOL, p.HoldMinutes, p.MaxXnReached,
		p.ClosedByReset, p.TriggeredPortfolioReset, p.ResetReason,
		p.RealizedTotalPnLSOL, p.RealizedTailPnLSOL,
	}
}

// Insert adds a closed position. Returns ErrDuplicateKey if
// (run_id, position_id) exists.
func (s *PositionStore) Insert(ctx context.Context, runID string, p *domain.Position) error {
	if runID == "" || p == nil || p.PositionID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, insertPositionQuery, positionArgs(runID, p)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

// InsertBulk adds multiple positions atomically. Fails the entire batch on
// any duplicate.
func (s *PositionStore) InsertBulk(ctx context.Context, runID string, positions []*domain.Position) error {
	if len(positions) == 0 {
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

	for _, p := range positions {
		if p == nil || p.PositionID == "" {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, insertPositionQuery, positionArgs(runID, p)...); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert position in bulk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID retrieves one position. Returns ErrNotFound if not exists.
func (s *PositionStore) GetByID(ctx context.Context, runID, positionID string) (*domain.Position, error) {
	query := `SELECT ` + selectPositionColumns + `
		FROM portfolio_positions
		WHERE run_id = $1 AND position_id = $2
	`

	row := s.pool.QueryRow(ctx, query, runID, positionID)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetByRun retrieves all positions of a run, ordered by entry time ASC
// then position_id.
func (s *PositionStore) GetByRun(ctx context.Context, runID string) ([]*domain.Position, error) {
	query := `SELECT ` + selectPositionColumns + `
		FROM portfolio_positions
		WHERE run_id = $1
		ORDER BY entry_time_ms ASC, position_id ASC
	`
	return s.queryPositions(ctx, query, runID)
}

// GetByStrategy retrieves a run's positions for one strategy.
func (s *PositionStore) GetByStrategy(ctx context.Context, runID, strategy string) ([]*domain.Position, error) {
	query := `SELECT ` + selectPositionColumns + `
		FROM portfolio_positions
		WHERE run_id = $1 AND strategy = $2
		ORDER BY entry_time_ms ASC, position_id ASC
	`
	return s.queryPositions(ctx, query, runID, strategy)
}

func (s *PositionStore) queryPositions(ctx context.Context, query string, args ...any) ([]*domain.Position, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (*domain.Position, error) {
	var p domain.Position
	err := row.Scan(
		&p.PositionID, &p.Strategy, &p.SignalID, &p.ContractAddress,
		&p.EntryTimeMs, &p.ExitTimeMs, &p.Status,
		&p.SizeSOL, &p.RawEntryPrice, &p.ExecEntryPrice, &p.RawExitPrice, &p.ExecExitPrice,
		&p.PnLSOL, &p.FeesTotalSOL, &p.HoldMinutes, &p.MaxXnReached,
		&p.ClosedByReset, &p.TriggeredPortfolioReset, &p.ResetReason,
		&p.RealizedTotalPnLSOL, &p.RealizedTailPnLSOL,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
