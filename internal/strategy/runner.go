package strategy

import (
	"fmt"
	"sort"

	"dex-signal-lab/internal/domain"
)

// Runner wraps the ladder engine into a per-signal strategy.
type Runner struct {
	name string
	cfg  domain.RunnerConfig
}

// NewRunner creates a Runner strategy. The ladder is validated once here.
func NewRunner(name string, cfg domain.RunnerConfig) (*Runner, error) {
	if err := cfg.Levels.Validate(); err != nil {
		return nil, fmt.Errorf("runner %q: %w", name, err)
	}
	return &Runner{name: name, cfg: cfg}, nil
}

// Name returns the strategy name.
func (r *Runner) Name() string { return r.name }

// Config returns the ladder configuration.
func (r *Runner) Config() domain.RunnerConfig { return r.cfg }

// OnSignal evaluates one signal against its candle history.
//
// The entry candle is the first candle at/after the signal timestamp and the
// entry price is its close. The ladder runs on the candles after entry; the
// output's exit price is always the market close of the candle at/after the
// final exit time, never a synthesized entry * multiple.
func (r *Runner) OnSignal(sig domain.Signal, candles []domain.Candle) domain.StrategyOutput {
	frame := domain.SliceCandles(candles, sig.TimestampMs, 0)
	if len(frame) == 0 {
		return r.noEntry(sig)
	}

	entry := frame[0]
	entryTimeMs := entry.TimestampMs
	entryPrice := entry.Close
	if entryPrice <= 0 {
		return r.noEntry(sig)
	}

	res := RunLadder(entryTimeMs, entryPrice, frame[1:], r.cfg)
	if res.Reason == domain.LadderReasonNoData {
		return r.noEntry(sig)
	}

	exitPrice := closeAtOrAfter(frame, res.ExitTimeMs)
	supply := sig.TotalSupply()
	entryMcap := entryPrice * supply
	exitMcap := exitPrice * supply

	out := domain.StrategyOutput{
		Strategy:        r.name,
		SignalID:        sig.ID,
		ContractAddress: sig.ContractAddress,
		EntryTimeMs:     &entryTimeMs,
		EntryPrice:      &entryPrice,
		ExitTimeMs:      &res.ExitTimeMs,
		ExitPrice:       &exitPrice,
		PnLPct:          res.RealizedMultiple - 1,
		Reason:          canonicalLadderReason(res.Reason),
		Meta: domain.OutputMeta{
			LadderReason:     canonicalLadderReason(res.Reason),
			RunnerLadder:     true,
			RealizedMultiple: res.RealizedMultiple,
			MaxXnReached:     maxXnReached(frame[1:], entryPrice),
			LevelFirstHitMs:  res.LevelFirstHitMs,
			FractionExited:   res.FractionExited,
			EntryMcapProxy:   entryMcap,
			ExitMcapProxy:    exitMcap,
			McapChangePct:    (exitMcap - entryMcap) / entryMcap * 100,
			PreWindow:        ComputePreWindowFeatures(candles, entryTimeMs, entryPrice),
		},
	}
	return out
}

// OnSignalBlueprint returns the trade intent without synthesizing PnL.
// Partial exits carry every hit level at the candle time that first hit it;
// a final exit is present iff the highest level was hit.
func (r *Runner) OnSignalBlueprint(sig domain.Signal, candles []domain.Candle) domain.StrategyTradeBlueprint {
	bp := domain.StrategyTradeBlueprint{
		SignalID:        sig.ID,
		ContractAddress: sig.ContractAddress,
		Strategy:        r.name,
	}

	frame := domain.SliceCandles(candles, sig.TimestampMs, 0)
	if len(frame) == 0 || frame[0].Close <= 0 {
		bp.Reason = domain.ReasonNoEntry
		return bp
	}

	entry := frame[0]
	bp.EntryTimeMs = entry.TimestampMs
	bp.EntryPriceRaw = entry.Close
	bp.EntryMcapProxy = entry.Close * sig.TotalSupply()

	res := RunLadder(entry.TimestampMs, entry.Close, frame[1:], r.cfg)
	if res.Reason == domain.LadderReasonNoData {
		bp.Reason = domain.ReasonNoEntry
		return bp
	}

	bp.RealizedMultiple = res.RealizedMultiple
	bp.MaxXnReached = maxXnReached(frame[1:], entry.Close)
	bp.Reason = canonicalLadderReason(res.Reason)

	for xn, ts := range res.LevelFirstHitMs {
		bp.PartialExits = append(bp.PartialExits, domain.PartialExit{
			TimestampMs: ts,
			Xn:          xn,
			Fraction:    res.FractionExited[xn],
		})
	}
	sort.Slice(bp.PartialExits, func(i, j int) bool {
		a, b := bp.PartialExits[i], bp.PartialExits[j]
		if a.TimestampMs != b.TimestampMs {
			return a.TimestampMs < b.TimestampMs
		}
		return a.Xn < b.Xn
	})

	if top, ok := highestLevel(r.cfg.Levels); ok {
		if ts, hit := res.LevelFirstHitMs[top]; hit {
			bp.FinalExit = &domain.FinalExit{TimestampMs: ts, Reason: domain.ReasonLadderTP}
		}
	}
	return bp
}

func (r *Runner) noEntry(sig domain.Signal) domain.StrategyOutput {
	return domain.StrategyOutput{
		Strategy:        r.name,
		SignalID:        sig.ID,
		ContractAddress: sig.ContractAddress,
		Reason:          domain.ReasonNoEntry,
		Meta: domain.OutputMeta{
			LadderReason: domain.ReasonNoEntry,
			RunnerLadder: true,
		},
	}
}

// canonicalLadderReason maps engine reasons onto the closed reason set.
func canonicalLadderReason(reason string) string {
	switch reason {
	case domain.LadderReasonAllLevelsHit:
		return domain.ReasonLadderTP
	case domain.LadderReasonTimeStop:
		return domain.ReasonTimeStop
	case domain.LadderReasonNoData:
		return domain.ReasonNoEntry
	default:
		return domain.ReasonError
	}
}

// closeAtOrAfter returns the close of the first candle with timestamp >= ts.
// When ts lies beyond the frame the last close is used.
func closeAtOrAfter(candles []domain.Candle, ts int64) float64 {
	i := sort.Search(len(candles), func(i int) bool {
		return candles[i].TimestampMs >= ts
	})
	if i == len(candles) {
		return candles[len(candles)-1].Close
	}
	return candles[i].Close
}

// maxXnReached is the highest high-to-entry multiple seen after entry.
func maxXnReached(post []domain.Candle, entryPrice float64) float64 {
	maxXn := 1.0
	for _, c := range post {
		if xn := c.High / entryPrice; xn > maxXn {
			maxXn = xn
		}
	}
	return maxXn
}

func highestLevel(levels domain.TakeProfitLadder) (float64, bool) {
	if len(levels) == 0 {
		return 0, false
	}
	sorted := levels.Sorted()
	return sorted[len(sorted)-1].Xn, true
}
