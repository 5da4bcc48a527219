package domain

// Ladder engine terminal reasons.
const (
	LadderReasonTimeStop     = "time_stop"
	LadderReasonAllLevelsHit = "all_levels_hit"
	LadderReasonNoData       = "no_data"
)

// TailXnThreshold marks the tail leg boundary: a level with xn >= 4.0
// contributes to realized_tail_pnl_sol.
const TailXnThreshold = 4.0

// RunnerTradeResult is the pure output of the ladder engine.
type RunnerTradeResult struct {
	EntryTimeMs int64
	EntryPrice  float64
	ExitTimeMs  int64

	// RealizedMultiple is the cumulative value returned across all legs in
	// units of initial size, including the tail close at market.
	RealizedMultiple float64
	RealizedPnLPct   float64 // (RealizedMultiple - 1) * 100

	// LevelFirstHitMs maps level xn -> first candle timestamp that hit it.
	LevelFirstHitMs map[float64]int64
	// FractionExited maps level xn -> fraction of initial size exited there.
	FractionExited map[float64]float64

	Reason string // time_stop | all_levels_hit | no_data
}

// PartialExit is one planned ladder leg in a trade blueprint.
type PartialExit struct {
	TimestampMs int64
	Xn          float64
	Fraction    float64
}

// FinalExit records the blueprint's terminal close, present iff the trade
// fully closed within the candle window.
type FinalExit struct {
	TimestampMs int64
	Reason      string
}

// StrategyTradeBlueprint is a side-effect-free record of a strategy's
// decided entry, partial exits, and final exit, replayable independently of
// the strategy's execution path. No PnL is synthesized here.
type StrategyTradeBlueprint struct {
	SignalID        string
	ContractAddress string
	Strategy        string

	EntryTimeMs    int64
	EntryPriceRaw  float64
	EntryMcapProxy float64

	PartialExits []PartialExit
	FinalExit    *FinalExit

	RealizedMultiple float64
	MaxXnReached     float64
	Reason           string
}
