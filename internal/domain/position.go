package domain

// Position lifecycle statuses.
const (
	PositionStatusOpen   = "open"
	PositionStatusClosed = "closed"
)

// Execution event types (one row per leg).
const (
	ExecutionEntry       = "entry"
	ExecutionPartialExit = "partial_exit"
	ExecutionFinalExit   = "final_exit"
	ExecutionResetClose  = "reset_close"
)

// Position is one simulated position lifecycle on the shared balance.
type Position struct {
	PositionID      string // stable, generated at open, never reused
	Strategy        string
	SignalID        string
	ContractAddress string

	EntryTimeMs int64
	ExitTimeMs  *int64
	Status      string

	SizeSOL        float64 // size-in-quote at open
	RawEntryPrice  float64
	ExecEntryPrice float64
	RawExitPrice   *float64
	ExecExitPrice  *float64

	PnLSOL       float64
	FeesTotalSOL float64 // invariant: equals the sum of fees over executions
	HoldMinutes  float64
	MaxXnReached float64

	ClosedByReset           bool
	TriggeredPortfolioReset bool
	ResetReason             string

	RealizedTotalPnLSOL float64
	RealizedTailPnLSOL  float64 // legs with xn >= TailXnThreshold
}

// HitX reports whether the position reached the given entry-price multiple.
func (p *Position) HitX(xn float64) bool {
	return p.MaxXnReached >= xn
}

// Execution is one executed leg of a position.
type Execution struct {
	PositionID  string
	SignalID    string
	Strategy    string
	EventTimeMs int64
	EventType   string // entry | partial_exit | final_exit | reset_close

	// QtyDelta is the change in held fraction of initial size:
	// +1.0 at entry, negative on exits.
	QtyDelta float64

	RawPrice    float64
	ExecPrice   float64
	FeesSOL     float64
	PnLSOLDelta float64
	LevelXn     float64 // ladder level for partial exits, 0 otherwise
	ResetReason string
}

// Portfolio event types.
const (
	EventPositionOpened          = "POSITION_OPENED"
	EventPositionPartialExit     = "POSITION_PARTIAL_EXIT"
	EventPositionClosed          = "POSITION_CLOSED"
	EventPortfolioResetTriggered = "PORTFOLIO_RESET_TRIGGERED"
	EventRiskLimitHit            = "RISK_LIMIT_HIT"
)

// PortfolioEvent is one record of the append-only, time-ordered event stream.
type PortfolioEvent struct {
	Type        string
	PositionID  string // for reset-trigger events, the triggering position
	TimestampMs int64
	Reason      string
	LevelXn     float64
	Fraction    float64
}

// EquityPoint is one (timestamp, balance) sample of the equity curve.
type EquityPoint struct {
	TimestampMs int64
	BalanceSOL  float64
}

// PortfolioStats is the snapshot captured after simulation, one per strategy.
type PortfolioStats struct {
	Strategy string

	FinalBalanceSOL float64
	TotalReturnPct  float64
	MaxDrawdownPct  float64

	TradesExecuted       int
	TradesSkippedByRisk  int
	TradesSkippedByReset int

	PortfolioResetCount    int
	LastPortfolioResetTime *int64

	CycleStartEquity  float64
	EquityPeakInCycle float64
}

// ResetCount is a backwards-compat alias for PortfolioResetCount.
func (s *PortfolioStats) ResetCount() int { return s.PortfolioResetCount }

// LastResetTime is a backwards-compat alias for LastPortfolioResetTime.
func (s *PortfolioStats) LastResetTime() *int64 { return s.LastPortfolioResetTime }
