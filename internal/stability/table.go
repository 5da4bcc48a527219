// Package stability splits closed positions into equal time windows and
// aggregates per-window survival metrics per strategy.
package stability

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"dex-signal-lab/internal/domain"
)

// PositionRow is one closed position, the only input shape accepted here.
type PositionRow struct {
	PositionID string
	Strategy   string

	EntryTimeMs int64
	ExitTimeMs  int64

	// PnL is pnl_sol when the source table carries it, else pnl_pct.
	PnL float64

	HoldMinutes  float64
	MaxXnReached float64

	RealizedTotalPnLSOL float64
	RealizedTailPnLSOL  float64
}

// PositionTable is a positions-level table plus which optional columns the
// source actually carried. Presence flags matter downstream: absent columns
// must never be derived.
type PositionTable struct {
	Rows []PositionRow

	UsesPnLSOL  bool
	HasHold     bool
	HasMaxXn    bool
	HasRealized bool
}

// FromPositions builds a table from in-process closed positions.
func FromPositions(positions []*domain.Position) *PositionTable {
	t := &PositionTable{
		UsesPnLSOL:  true,
		HasHold:     true,
		HasMaxXn:    true,
		HasRealized: true,
	}
	for _, p := range positions {
		if p.Status != domain.PositionStatusClosed || p.ExitTimeMs == nil {
			continue
		}
		t.Rows = append(t.Rows, PositionRow{
			PositionID:          p.PositionID,
			Strategy:            p.Strategy,
			EntryTimeMs:         p.EntryTimeMs,
			ExitTimeMs:          *p.ExitTimeMs,
			PnL:                 p.PnLSOL,
			HoldMinutes:         p.HoldMinutes,
			MaxXnReached:        p.MaxXnReached,
			RealizedTotalPnLSOL: p.RealizedTotalPnLSOL,
			RealizedTailPnLSOL:  p.RealizedTailPnLSOL,
		})
	}
	sortRows(t.Rows)
	return t
}

// ShapeError marks an input table of the wrong level or with missing
// columns. Callers branch on it to report a dedicated exit code.
type ShapeError struct {
	Msg string
}

func (e *ShapeError) Error() string { return e.Msg }

func shapeErrorf(format string, args ...any) error {
	return &ShapeError{Msg: fmt.Sprintf(format, args...)}
}

// requiredColumns must all be present in a positions-level CSV.
var requiredColumns = []string{"position_id", "strategy", "entry_time", "exit_time"}

// ReadPositionsCSV loads a positions-level CSV. An executions-level table
// (recognizable by its event_type column) is rejected at the boundary; rows
// whose status is not "closed" are dropped.
func ReadPositionsCSV(path string) (*PositionTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read positions csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("positions csv %s is empty", path)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}

	if _, ok := col["event_type"]; ok {
		return nil, shapeErrorf("input is an executions-level table: column %q has no place in a positions-level table", "event_type")
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, shapeErrorf("positions csv missing required column %q", name)
		}
	}
	if _, hasSol := col["pnl_sol"]; !hasSol {
		if _, hasPct := col["pnl_pct"]; !hasPct {
			return nil, shapeErrorf("positions csv missing both %q and %q", "pnl_sol", "pnl_pct")
		}
	}

	t := &PositionTable{}
	_, t.UsesPnLSOL = col["pnl_sol"]
	_, t.HasHold = col["hold_minutes"]
	_, t.HasMaxXn = col["max_xn_reached"]
	if _, ok := col["realized_total_pnl_sol"]; ok {
		_, t.HasRealized = col["realized_tail_pnl_sol"]
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	for _, rec := range records[1:] {
		if status := get(rec, "status"); status != "" && status != domain.PositionStatusClosed {
			continue
		}

		entry, err := parseTimeMs(get(rec, "entry_time"))
		if err != nil {
			return nil, fmt.Errorf("bad entry_time %q: %w", get(rec, "entry_time"), err)
		}
		exit, err := parseTimeMs(get(rec, "exit_time"))
		if err != nil {
			return nil, fmt.Errorf("bad exit_time %q: %w", get(rec, "exit_time"), err)
		}

		row := PositionRow{
			PositionID:  get(rec, "position_id"),
			Strategy:    get(rec, "strategy"),
			EntryTimeMs: entry,
			ExitTimeMs:  exit,
		}
		if t.UsesPnLSOL {
			row.PnL = parseFloatOr(get(rec, "pnl_sol"), 0)
		} else {
			row.PnL = parseFloatOr(get(rec, "pnl_pct"), 0)
		}
		if t.HasHold {
			row.HoldMinutes = parseFloatOr(get(rec, "hold_minutes"), 0)
		}
		if t.HasMaxXn {
			row.MaxXnReached = parseFloatOr(get(rec, "max_xn_reached"), 0)
		}
		if t.HasRealized {
			row.RealizedTotalPnLSOL = parseFloatOr(get(rec, "realized_total_pnl_sol"), 0)
			row.RealizedTailPnLSOL = parseFloatOr(get(rec, "realized_tail_pnl_sol"), 0)
		}
		t.Rows = append(t.Rows, row)
	}

	sortRows(t.Rows)
	return t, nil
}

func sortRows(rows []PositionRow) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].EntryTimeMs != rows[j].EntryTimeMs {
			return rows[i].EntryTimeMs < rows[j].EntryTimeMs
		}
		return rows[i].PositionID < rows[j].PositionID
	})
}

// parseTimeMs accepts RFC3339 or epoch milliseconds.
func parseTimeMs(s string) (int64, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UnixMilli(), nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("not RFC3339 or epoch ms: %s", s)
	}
	return ms, nil
}

func parseFloatOr(s string, def float64) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
