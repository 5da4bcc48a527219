package selection

import (
	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/strategy"
)

// Gate normalizes each stability row, picks its criteria set, and returns
// the selection table in the input order.
func Gate(rows []domain.StabilityRow) []domain.SelectionRow {
	out := make([]domain.SelectionRow, len(rows))
	for i, row := range rows {
		out[i] = EvaluateRow(row)
	}
	return out
}

// EvaluateRow gates one row. Runner rows use the v2 criteria as soon as any
// v2 column is present; otherwise the legacy v1 set applies.
func EvaluateRow(row domain.StabilityRow) domain.SelectionRow {
	row = Normalize(row)

	criteria := RRV1Criteria
	if strategy.IsRunnerStrategy(row.Strategy) {
		if row.HasV2Columns() {
			criteria = RunnerV2Criteria
		} else {
			criteria = RunnerV1Criteria
		}
	}

	sel := domain.SelectionRow{StabilityRow: row, Passed: true}
	for _, c := range criteria {
		res := c.evaluate(&row)
		if !res.Pass {
			sel.Passed = false
			sel.FailedReasons = append(sel.FailedReasons, res.Reason())
		}
	}
	return sel
}
