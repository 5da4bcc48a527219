package domain

// WindowMetrics summarizes the positions of one time window.
type WindowMetrics struct {
	WindowIndex int
	StartMs     int64
	EndMs       int64

	TradesCount  int
	TotalPnL     float64 // pnl_sol when available, else pnl_pct
	Winrate      float64
	MedianPnL    float64
	MaxDrawdown  float64 // over cumulative PnL within the window, <= 0
	ProfitFactor float64
	WorstTrade   float64
	BestTrade    float64
}

// StabilityRow is one row of the stability table, per (strategy, split_count).
// Runner-only metrics are pointers: their presence drives the v2 selection
// gate, so absent must stay distinguishable from zero.
type StabilityRow struct {
	Strategy   string
	SplitCount int

	SurvivalRate    float64
	PnLVariance     float64
	WorstWindowPnL  float64
	BestWindowPnL   float64
	MedianWindowPnL float64
	WindowsPositive int
	WindowsTotal    int
	TradesTotal     int

	HitRateX2   *float64
	HitRateX4   *float64
	HitRateX5   *float64
	P90HoldDays *float64

	TailContribution *float64 // legacy: pnl share of positions with max_xn >= 5
	TailPnLShare     *float64
	NonTailPnLShare  *float64

	MaxDrawdownPct *float64
}

// HasV2Columns reports whether any v2 Runner column is present; the
// selection gate keys its v2 activation on this and never derives the
// columns when absent.
func (r *StabilityRow) HasV2Columns() bool {
	return r.HitRateX4 != nil || r.TailPnLShare != nil || r.NonTailPnLShare != nil
}

// SelectionRow is one row of the selection table: the stability row plus
// the gate verdict. Input order is preserved.
type SelectionRow struct {
	StabilityRow

	Passed        bool
	FailedReasons []string
}
