// Package selection applies threshold gates to stability rows and records
// per-row pass/fail verdicts with the reasons for every failure.
package selection

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"dex-signal-lab/internal/domain"
)

// ReadStabilityCSV loads a stability table. Either split_n or split_count
// names the split column; optional Runner columns stay nil when absent or
// empty so the gate can tell missing from zero.
func ReadStabilityCSV(path string) ([]domain.StabilityRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read stability csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("stability csv %s is empty", path)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	if _, ok := col["strategy"]; !ok {
		return nil, fmt.Errorf("stability csv missing required column %q", "strategy")
	}
	splitCol, ok := col["split_n"]
	if !ok {
		if splitCol, ok = col["split_count"]; !ok {
			return nil, fmt.Errorf("stability csv missing %q and %q", "split_n", "split_count")
		}
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	floatOf := func(rec []string, name string) float64 {
		v, err := strconv.ParseFloat(get(rec, name), 64)
		if err != nil {
			return math.NaN()
		}
		return v
	}
	ptrOf := func(rec []string, name string) *float64 {
		if _, ok := col[name]; !ok {
			return nil
		}
		v, err := strconv.ParseFloat(get(rec, name), 64)
		if err != nil || math.IsNaN(v) {
			return nil
		}
		return &v
	}

	rows := make([]domain.StabilityRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		splitStr := ""
		if splitCol < len(rec) {
			splitStr = rec[splitCol]
		}
		split, err := strconv.Atoi(splitStr)
		if err != nil {
			return nil, fmt.Errorf("bad split value %q: %w", splitStr, err)
		}

		row := domain.StabilityRow{
			Strategy:        get(rec, "strategy"),
			SplitCount:      split,
			SurvivalRate:    floatOf(rec, "survival_rate"),
			PnLVariance:     floatOf(rec, "pnl_variance"),
			WorstWindowPnL:  floatOf(rec, "worst_window_pnl"),
			BestWindowPnL:   floatOf(rec, "best_window_pnl"),
			MedianWindowPnL: floatOf(rec, "median_window_pnl"),

			HitRateX2:        ptrOf(rec, "hit_rate_x2"),
			HitRateX4:        ptrOf(rec, "hit_rate_x4"),
			HitRateX5:        ptrOf(rec, "hit_rate_x5"),
			P90HoldDays:      ptrOf(rec, "p90_hold_days"),
			TailContribution: ptrOf(rec, "tail_contribution"),
			TailPnLShare:     ptrOf(rec, "tail_pnl_share"),
			NonTailPnLShare:  ptrOf(rec, "non_tail_pnl_share"),
			MaxDrawdownPct:   ptrOf(rec, "max_drawdown_pct"),
		}
		if n, err := strconv.Atoi(get(rec, "windows_total")); err == nil {
			row.WindowsTotal = n
		}
		if n, err := strconv.Atoi(get(rec, "windows_positive")); err == nil {
			row.WindowsPositive = n
		} else {
			row.WindowsPositive = -1
		}
		if n, err := strconv.Atoi(get(rec, "trades_total")); err == nil {
			row.TradesTotal = n
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Normalize repairs the window bookkeeping and NaN holes of one stability
// row: windows_total falls back to the split count, windows_positive is
// reconstructed from the survival rate and clamped, NaN metrics become
// their neutral defaults.
func Normalize(row domain.StabilityRow) domain.StabilityRow {
	zeroNaN(&row.SurvivalRate)
	zeroNaN(&row.PnLVariance)
	zeroNaN(&row.WorstWindowPnL)
	zeroNaN(&row.BestWindowPnL)
	zeroNaN(&row.MedianWindowPnL)

	if row.WindowsTotal == 0 {
		row.WindowsTotal = row.SplitCount
	}
	if row.WindowsPositive < 0 {
		row.WindowsPositive = int(math.Round(row.SurvivalRate * float64(row.WindowsTotal)))
	}
	if row.WindowsPositive < 0 {
		row.WindowsPositive = 0
	}
	if row.WindowsPositive > row.WindowsTotal {
		row.WindowsPositive = row.WindowsTotal
	}
	return row
}

func zeroNaN(v *float64) {
	if math.IsNaN(*v) {
		*v = 0
	}
}
