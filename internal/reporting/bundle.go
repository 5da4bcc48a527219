// Package reporting writes the result CSV bundle consumed by the later
// pipeline stages and by humans.
package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dex-signal-lab/internal/domain"
)

// Bundle output file names.
const (
	PositionsFile  = "portfolio_positions.csv"
	ExecutionsFile = "portfolio_executions.csv"
	EventsFile     = "portfolio_events.csv"
	SummaryFile    = "portfolio_summary.csv"
	StabilityFile  = "strategy_stability.csv"
	SelectionFile  = "strategy_selection.csv"
)

// Bundle is one report directory, stamped with a fresh run ID.
type Bundle struct {
	RunID string
	Dir   string
}

// NewBundle creates the output directory and assigns a run ID.
func NewBundle(outDir string) (*Bundle, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return &Bundle{RunID: uuid.NewString(), Dir: outDir}, nil
}

func (b *Bundle) write(name string, header []string, rows [][]string) error {
	path := filepath.Join(b.Dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write %s row: %w", name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", name, err)
	}
	return f.Close()
}

// WritePositions writes portfolio_positions.csv. position_id is the first
// column, the downstream stages rely on it.
func (b *Bundle) WritePositions(positions []*domain.Position) error {
	header := []string{
		"position_id", "strategy", "signal_id", "contract_address",
		"entry_time", "exit_time", "status",
		"size", "pnl_sol", "fees_total_sol",
		"exec_entry_price", "exec_exit_price", "raw_entry_price", "raw_exit_price",
		"closed_by_reset", "triggered_portfolio_reset", "reset_reason",
		"hold_minutes", "max_xn_reached", "hit_x2", "hit_x4", "hit_x5",
		"realized_total_pnl_sol", "realized_tail_pnl_sol",
	}

	rows := make([][]string, 0, len(positions))
	for _, p := range positions {
		rows = append(rows, []string{
			p.PositionID, p.Strategy, p.SignalID, p.ContractAddress,
			formatTimeMs(p.EntryTimeMs), formatTimeMsPtr(p.ExitTimeMs), p.Status,
			formatFloat(p.SizeSOL), formatFloat(p.PnLSOL), formatFloat(p.FeesTotalSOL),
			formatFloat(p.ExecEntryPrice), formatFloatPtr(p.ExecExitPrice),
			formatFloat(p.RawEntryPrice), formatFloatPtr(p.RawExitPrice),
			formatBool(p.ClosedByReset), formatBool(p.TriggeredPortfolioReset), p.ResetReason,
			formatFloat(p.HoldMinutes), formatFloat(p.MaxXnReached),
			formatBool(p.HitX(2)), formatBool(p.HitX(4)), formatBool(p.HitX(5)),
			formatFloat(p.RealizedTotalPnLSOL), formatFloat(p.RealizedTailPnLSOL),
		})
	}
	return b.write(PositionsFile, header, rows)
}

// WriteExecutions writes portfolio_executions.csv, one row per leg.
func (b *Bundle) WriteExecutions(executions []domain.Execution) error {
	header := []string{
		"position_id", "signal_id", "strategy",
		"event_time", "event_type", "qty_delta",
		"raw_price", "exec_price", "fees_sol", "pnl_sol_delta", "reset_reason",
	}

	rows := make([][]string, 0, len(executions))
	for _, e := range executions {
		rows = append(rows, []string{
			e.PositionID, e.SignalID, e.Strategy,
			formatTimeMs(e.EventTimeMs), e.EventType, formatFloat(e.QtyDelta),
			formatFloat(e.RawPrice), formatFloat(e.ExecPrice),
			formatFloat(e.FeesSOL), formatFloat(e.PnLSOLDelta), e.ResetReason,
		})
	}
	return b.write(ExecutionsFile, header, rows)
}

// WriteEvents writes the event ledger in its original order.
func (b *Bundle) WriteEvents(events []domain.PortfolioEvent) error {
	header := []string{"event_type", "position_id", "timestamp", "reason", "level_xn", "fraction"}

	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		rows = append(rows, []string{
			ev.Type, ev.PositionID, formatTimeMs(ev.TimestampMs),
			ev.Reason, formatFloat(ev.LevelXn), formatFloat(ev.Fraction),
		})
	}
	return b.write(EventsFile, header, rows)
}

// WriteSummary writes portfolio_summary.csv, one row per strategy.
func (b *Bundle) WriteSummary(stats []domain.PortfolioStats) error {
	header := []string{
		"run_id", "strategy", "final_balance_sol", "total_return_pct", "max_drawdown_pct",
		"trades_executed", "trades_skipped_by_risk", "trades_skipped_by_reset",
		"portfolio_reset_count", "last_portfolio_reset_time",
		"cycle_start_equity", "equity_peak_in_cycle",
	}

	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, []string{
			b.RunID, s.Strategy,
			formatFloat(s.FinalBalanceSOL), formatFloat(s.TotalReturnPct), formatFloat(s.MaxDrawdownPct),
			strconv.Itoa(s.TradesExecuted), strconv.Itoa(s.TradesSkippedByRisk), strconv.Itoa(s.TradesSkippedByReset),
			strconv.Itoa(s.PortfolioResetCount), formatTimeMsPtr(s.LastPortfolioResetTime),
			formatFloat(s.CycleStartEquity), formatFloat(s.EquityPeakInCycle),
		})
	}
	return b.write(SummaryFile, header, rows)
}

// stabilityHeader carries both split spellings so either consumer works.
var stabilityHeader = []string{
	"strategy", "split_n", "split_count",
	"survival_rate", "pnl_variance", "worst_window_pnl", "best_window_pnl", "median_window_pnl",
	"windows_positive", "windows_total", "trades_total",
	"hit_rate_x2", "hit_rate_x4", "hit_rate_x5", "p90_hold_days",
	"tail_contribution", "tail_pnl_share", "non_tail_pnl_share", "max_drawdown_pct",
}

func stabilityFields(r *domain.StabilityRow) []string {
	return []string{
		r.Strategy, strconv.Itoa(r.SplitCount), strconv.Itoa(r.SplitCount),
		formatFloat(r.SurvivalRate), formatFloat(r.PnLVariance),
		formatFloat(r.WorstWindowPnL), formatFloat(r.BestWindowPnL), formatFloat(r.MedianWindowPnL),
		strconv.Itoa(r.WindowsPositive), strconv.Itoa(r.WindowsTotal), strconv.Itoa(r.TradesTotal),
		formatFloatPtr(r.HitRateX2), formatFloatPtr(r.HitRateX4), formatFloatPtr(r.HitRateX5),
		formatFloatPtr(r.P90HoldDays),
		formatFloatPtr(r.TailContribution), formatFloatPtr(r.TailPnLShare), formatFloatPtr(r.NonTailPnLShare),
		formatFloatPtr(r.MaxDrawdownPct),
	}
}

// WriteStability writes strategy_stability.csv. Absent Runner columns stay
// empty cells, never zeros.
func (b *Bundle) WriteStability(rows []domain.StabilityRow) error {
	records := make([][]string, 0, len(rows))
	for i := range rows {
		records = append(records, stabilityFields(&rows[i]))
	}
	return b.write(StabilityFile, stabilityHeader, records)
}

// WriteSelection writes strategy_selection.csv in the gate's row order,
// failed_reasons joined with "; ".
func (b *Bundle) WriteSelection(rows []domain.SelectionRow) error {
	header := append(append([]string{}, stabilityHeader...), "passed", "failed_reasons")

	records := make([][]string, 0, len(rows))
	for i := range rows {
		fields := stabilityFields(&rows[i].StabilityRow)
		fields = append(fields, formatBool(rows[i].Passed), strings.Join(rows[i].FailedReasons, "; "))
		records = append(records, fields)
	}
	return b.write(SelectionFile, header, records)
}

func formatTimeMs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}

func formatTimeMsPtr(ms *int64) string {
	if ms == nil {
		return ""
	}
	return formatTimeMs(*ms)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatFloatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func formatBool(v bool) string {
	return strconv.FormatBool(v)
}
