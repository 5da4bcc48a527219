package domain

import (
	"errors"
	"fmt"
	"sort"
)

// Canonical close reasons for strategy outputs.
const (
	ReasonLadderTP       = "ladder_tp"
	ReasonStopLoss       = "stop_loss"
	ReasonTimeStop       = "time_stop"
	ReasonCapacityPrune  = "capacity_prune"
	ReasonProfitReset    = "profit_reset"
	ReasonManualClose    = "manual_close"
	ReasonNoEntry        = "no_entry"
	ReasonError          = "error"
	ReasonMaxHoldMinutes = "max_hold_minutes"
)

// canonicalReasons is the closed set accepted as-is.
var canonicalReasons = map[string]bool{
	ReasonLadderTP:       true,
	ReasonStopLoss:       true,
	ReasonTimeStop:       true,
	ReasonCapacityPrune:  true,
	ReasonProfitReset:    true,
	ReasonManualClose:    true,
	ReasonNoEntry:        true,
	ReasonError:          true,
	ReasonMaxHoldMinutes: true,
}

// legacyReasonMap maps historical free-form reasons to canonical ones.
var legacyReasonMap = map[string]string{
	"tp":       ReasonLadderTP,
	"sl":       ReasonStopLoss,
	"timeout":  ReasonTimeStop,
	"no_entry": ReasonNoEntry,
	"error":    ReasonError,
}

// OutputMeta carries per-signal strategy metadata alongside the output.
type OutputMeta struct {
	LadderReason     string
	RunnerLadder     bool
	RealizedMultiple float64
	MaxXnReached     float64

	// LevelFirstHitMs maps level xn -> first hit timestamp (ms).
	LevelFirstHitMs map[float64]int64
	// FractionExited maps level xn -> fraction of initial size exited.
	FractionExited map[float64]float64

	EntryMcapProxy float64
	ExitMcapProxy  float64
	McapChangePct  float64

	PreWindow *PreWindowFeatures

	// Exception is set when strategy evaluation failed; the output then
	// carries ReasonError and no portfolio side effects.
	Exception string
}

// PreWindowFeatures are computed from candles strictly before entry.
// One entry per lookback window.
type PreWindowFeatures struct {
	Windows []PreWindowStats
}

// PreWindowStats summarizes one pre-entry lookback window.
type PreWindowStats struct {
	WindowMinutes   int
	VolumeSum       float64
	NormalizedRange float64 // (max high - min low) / entry price
	ReturnsStddev   float64
	CandleCount     int
}

// StrategyOutput is the per-signal outcome of a strategy run.
type StrategyOutput struct {
	Strategy        string
	SignalID        string
	ContractAddress string

	EntryTimeMs *int64
	EntryPrice  *float64
	ExitTimeMs  *int64
	ExitPrice   *float64

	// PnLPct is the realized return as a decimal fraction (0.10 = +10%).
	PnLPct float64

	// Reason is the legacy free-form reason; CanonicalReason derives the
	// closed-set value.
	Reason string

	Meta OutputMeta
}

// CanonicalReason resolves the closed-set close reason.
// meta.LadderReason wins when present and valid; otherwise the legacy map
// applies; already-canonical values pass through; anything else is error.
func (o *StrategyOutput) CanonicalReason() string {
	if o.Meta.LadderReason != "" && canonicalReasons[o.Meta.LadderReason] {
		return o.Meta.LadderReason
	}
	if mapped, ok := legacyReasonMap[o.Reason]; ok {
		return mapped
	}
	if canonicalReasons[o.Reason] {
		return o.Reason
	}
	return ReasonError
}

// FractionEpsilon bounds float drift in ladder fraction sums.
const FractionEpsilon = 1e-9

// TakeProfitLevel is one rung of a take-profit ladder.
type TakeProfitLevel struct {
	Xn       float64 // multiple of entry price, > 1 in practice, must be > 0
	Fraction float64 // share of initial size in (0, 1]
}

// TakeProfitLadder is an ordered, non-empty list of take-profit levels.
type TakeProfitLadder []TakeProfitLevel

// ErrEmptyLadder is returned for ladders with no levels.
var ErrEmptyLadder = errors.New("take-profit ladder must have at least one level")

// Validate checks ladder invariants: non-empty, positive xn, fractions in
// (0,1], and fraction sum <= 1 + epsilon.
func (l TakeProfitLadder) Validate() error {
	if len(l) == 0 {
		return ErrEmptyLadder
	}
	sum := 0.0
	for i, lv := range l {
		if lv.Xn <= 0 {
			return fmt.Errorf("ladder level %d: xn must be positive, got %v", i, lv.Xn)
		}
		if lv.Fraction <= 0 || lv.Fraction > 1 {
			return fmt.Errorf("ladder level %d: fraction must be in (0,1], got %v", i, lv.Fraction)
		}
		sum += lv.Fraction
	}
	if sum > 1.0+FractionEpsilon {
		return fmt.Errorf("ladder fractions sum to %v, must not exceed 1.0", sum)
	}
	return nil
}

// Sorted returns the levels ordered by xn ascending, declaration order
// preserved on ties.
func (l TakeProfitLadder) Sorted() TakeProfitLadder {
	out := make(TakeProfitLadder, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Xn < out[j].Xn })
	return out
}

// RunnerConfig configures the ladder engine and its strategy adapter.
type RunnerConfig struct {
	Levels            TakeProfitLadder
	TimeStopMinutes   *int64
	UseHighForTargets bool
	ExitOnFirstTP     bool
	AllowPartialFills bool
}
