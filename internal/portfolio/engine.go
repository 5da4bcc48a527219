package portfolio

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/execution"
	"dex-signal-lab/internal/idhash"
	"dex-signal-lab/internal/observability"
)

// Event kinds in tie-break order: closes before opens before partials.
const (
	kindClose = iota
	kindOpen
	kindPartial
)

// simEvent is one scheduled effect on the shared balance.
type simEvent struct {
	timeMs     int64
	kind       int
	positionID string

	output   *domain.StrategyOutput // open payload
	reason   string                 // close reason (canonical)
	rawExit  float64                // close raw price
	levelXn  float64                // partial level
	fraction float64                // partial fraction of initial size
}

type eventHeap []*simEvent

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].timeMs != h[j].timeMs {
		return h[i].timeMs < h[j].timeMs
	}
	if h[i].kind != h[j].kind {
		return h[i].kind < h[j].kind
	}
	if h[i].positionID != h[j].positionID {
		return h[i].positionID < h[j].positionID
	}
	// Two ladder legs of one position can share a candle.
	return h[i].levelXn < h[j].levelXn
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*simEvent)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	*h = old[:n-1]
	return ev
}

// openPosition tracks a live position and its unexited fraction.
type openPosition struct {
	pos       *domain.Position
	remaining float64
	output    *domain.StrategyOutput
}

// Result is the full output of one portfolio replay.
type Result struct {
	Positions   []*domain.Position
	Executions  []domain.Execution
	Events      []domain.PortfolioEvent
	EquityCurve []domain.EquityPoint
	Stats       domain.PortfolioStats
}

// Engine replays strategy outputs into positions, executions, and events.
type Engine struct {
	cfg     Config
	model   *execution.Model
	logger  zerolog.Logger
	metrics *observability.Metrics
}

// NewEngine validates the configuration and builds the execution model.
// metrics may be nil.
func NewEngine(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("portfolio config: %w", err)
	}
	model, err := execution.NewModel(cfg.Fee, cfg.ExecutionProfile)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, model: model, logger: logger, metrics: metrics}, nil
}

// sim is the mutable state of one replay.
type sim struct {
	*Engine

	balance  float64
	invested float64 // cost basis of open remaining fractions
	open     map[string]*openPosition

	positions  []*domain.Position
	executions []domain.Execution
	events     []domain.PortfolioEvent
	equity     []domain.EquityPoint

	h eventHeap

	cycleStartEquity float64
	equityPeak       float64
	resetCount       int
	lastResetMs      *int64
	graceFromMs      int64
	graceUntilMs     int64
	inReset          bool

	executed     int
	skippedRisk  int
	skippedReset int

	// Rolling capacity window samples.
	admissions []admissionSample
	holds      []holdSample

	strategy string
}

type admissionSample struct {
	timeMs  int64
	blocked bool
}

type holdSample struct {
	closeMs  int64
	holdDays float64
}

// Run replays outputs in deterministic total order. Outputs are processed
// sorted by (entry time, signal id); within one timestamp closes apply
// before opens before partial exits, position id breaking remaining ties.
func (e *Engine) Run(outputs []domain.StrategyOutput) (*Result, error) {
	s := &sim{
		Engine:  e,
		balance: e.cfg.InitialBalanceSOL,
		open:    make(map[string]*openPosition),
	}
	s.cycleStartEquity = s.balance
	s.equityPeak = s.balance

	entries := s.admissibleEntries(outputs)
	if len(entries) > 0 {
		s.strategy = entries[0].Strategy
		s.equity = append(s.equity, domain.EquityPoint{
			TimestampMs: *entries[0].EntryTimeMs,
			BalanceSOL:  s.balance,
		})
	}

	for i := range entries {
		o := &entries[i]
		heap.Push(&s.h, &simEvent{
			timeMs:     *o.EntryTimeMs,
			kind:       kindOpen,
			positionID: idhash.ComputePositionID(o.SignalID, o.Strategy, *o.EntryTimeMs),
			output:     o,
		})
	}

	for s.h.Len() > 0 {
		ev := heap.Pop(&s.h).(*simEvent)
		switch ev.kind {
		case kindOpen:
			s.applyOpen(ev)
		case kindPartial:
			s.applyPartial(ev)
		case kindClose:
			s.applyClose(ev)
		}
	}

	sort.Slice(s.positions, func(i, j int) bool {
		a, b := s.positions[i], s.positions[j]
		if a.EntryTimeMs != b.EntryTimeMs {
			return a.EntryTimeMs < b.EntryTimeMs
		}
		return a.PositionID < b.PositionID
	})

	return &Result{
		Positions:   s.positions,
		Executions:  s.executions,
		Events:      s.events,
		EquityCurve: s.equity,
		Stats:       s.stats(),
	}, nil
}

// admissibleEntries filters outputs carrying a full entry/exit and lying in
// the backtest window, sorted by (entry time, signal id).
func (s *sim) admissibleEntries(outputs []domain.StrategyOutput) []domain.StrategyOutput {
	entries := make([]domain.StrategyOutput, 0, len(outputs))
	for _, o := range outputs {
		if o.EntryTimeMs == nil || o.EntryPrice == nil || o.ExitTimeMs == nil || o.ExitPrice == nil {
			continue
		}
		if o.CanonicalReason() == domain.ReasonError {
			continue
		}
		t := *o.EntryTimeMs
		if s.cfg.BacktestStartMs > 0 && t < s.cfg.BacktestStartMs {
			continue
		}
		if s.cfg.BacktestEndMs > 0 && t > s.cfg.BacktestEndMs {
			continue
		}
		entries = append(entries, o)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if *a.EntryTimeMs != *b.EntryTimeMs {
			return *a.EntryTimeMs < *b.EntryTimeMs
		}
		return a.SignalID < b.SignalID
	})
	return entries
}

func (s *sim) applyOpen(ev *simEvent) {
	o := ev.output

	if s.cfg.CapacityReset.Enabled && s.capacityDegraded(ev.timeMs) {
		s.triggerReset(ev.positionID, ev.timeMs, "capacity_reset", domain.ReasonCapacityPrune)
	}

	if s.inReset && ev.timeMs >= s.graceFromMs && ev.timeMs <= s.graceUntilMs {
		s.skippedReset++
		if s.metrics != nil {
			s.metrics.TradesSkippedByReset.Inc()
		}
		return
	}

	size := s.cfg.PercentPerTrade * s.cfg.InitialBalanceSOL
	if s.cfg.AllocationMode == AllocationDynamic {
		size = s.cfg.PercentPerTrade * s.balance
	}

	if refusal := s.admissionRefusal(size); refusal != "" {
		s.skippedRisk++
		if s.metrics != nil {
			s.metrics.TradesSkippedByRisk.Inc()
		}
		s.admissions = append(s.admissions, admissionSample{timeMs: ev.timeMs, blocked: true})
		s.events = append(s.events, domain.PortfolioEvent{
			Type:        domain.EventRiskLimitHit,
			PositionID:  ev.positionID,
			TimestampMs: ev.timeMs,
			Reason:      refusal,
		})
		return
	}
	s.admissions = append(s.admissions, admissionSample{timeMs: ev.timeMs})

	nf := s.model.NetworkFee()
	rawEntry := *o.EntryPrice
	pos := &domain.Position{
		PositionID:      ev.positionID,
		Strategy:        o.Strategy,
		SignalID:        o.SignalID,
		ContractAddress: o.ContractAddress,
		EntryTimeMs:     ev.timeMs,
		Status:          domain.PositionStatusOpen,
		SizeSOL:         size,
		RawEntryPrice:   rawEntry,
		ExecEntryPrice:  s.model.EntryPrice(rawEntry),
		PnLSOL:          -nf,
		FeesTotalSOL:    nf,
	}
	pos.RealizedTotalPnLSOL = -nf

	s.balance -= size + nf
	s.invested += size
	op := &openPosition{pos: pos, remaining: 1.0, output: o}
	s.open[pos.PositionID] = op
	s.executed++
	if s.metrics != nil {
		s.metrics.PositionsOpened.Inc()
	}

	s.executions = append(s.executions, domain.Execution{
		PositionID:  pos.PositionID,
		SignalID:    o.SignalID,
		Strategy:    o.Strategy,
		EventTimeMs: ev.timeMs,
		EventType:   domain.ExecutionEntry,
		QtyDelta:    1.0,
		RawPrice:    rawEntry,
		ExecPrice:   pos.ExecEntryPrice,
		FeesSOL:     nf,
		PnLSOLDelta: -nf,
	})
	s.events = append(s.events, domain.PortfolioEvent{
		Type:        domain.EventPositionOpened,
		PositionID:  pos.PositionID,
		TimestampMs: ev.timeMs,
	})
	s.recordEquity(ev.timeMs)
	s.scheduleExits(op)
}

// admissionRefusal names the violated limit, or "" when admissible.
func (s *sim) admissionRefusal(size float64) string {
	if len(s.open) >= s.cfg.MaxOpenPositions {
		return "max_open_positions"
	}
	if s.invested+size > s.cfg.MaxExposure*s.balance {
		return "max_exposure"
	}
	if s.balance < size+s.model.NetworkFee() {
		return "insufficient_balance"
	}
	return ""
}

// scheduleExits pushes the position's ladder legs and final close. With
// replay mode's max hold the close is capped and later legs are dropped by
// the closed-position guard.
func (s *sim) scheduleExits(op *openPosition) {
	o := op.output
	closeMs := *o.ExitTimeMs
	reason := o.CanonicalReason()
	rawExit := *o.ExitPrice

	if s.cfg.UseReplayMode && s.cfg.MaxHoldMinutes != nil {
		capMs := op.pos.EntryTimeMs + *s.cfg.MaxHoldMinutes*60_000
		if closeMs > capMs {
			closeMs = capMs
			reason = domain.ReasonMaxHoldMinutes
			// No market price is known at the cap; the close trades at the
			// raw entry price.
			rawExit = op.pos.RawEntryPrice
		}
	}

	for xn, hitMs := range o.Meta.LevelFirstHitMs {
		if hitMs >= closeMs {
			continue
		}
		heap.Push(&s.h, &simEvent{
			timeMs:     hitMs,
			kind:       kindPartial,
			positionID: op.pos.PositionID,
			levelXn:    xn,
			fraction:   o.Meta.FractionExited[xn],
		})
	}

	heap.Push(&s.h, &simEvent{
		timeMs:     closeMs,
		kind:       kindClose,
		positionID: op.pos.PositionID,
		reason:     reason,
		rawExit:    rawExit,
	})
}

func (s *sim) applyPartial(ev *simEvent) {
	op, ok := s.open[ev.positionID]
	if !ok {
		return
	}
	frac := ev.fraction
	if frac > op.remaining {
		frac = op.remaining
	}
	if frac <= domain.FractionEpsilon {
		return
	}

	// Ladder legs trade at the level's target price.
	rawPx := op.pos.RawEntryPrice * ev.levelXn
	s.exitLeg(op, ev.timeMs, frac, rawPx, execution.LegExitTP, domain.ExecutionPartialExit, ev.levelXn, "")

	s.events = append(s.events, domain.PortfolioEvent{
		Type:        domain.EventPositionPartialExit,
		PositionID:  op.pos.PositionID,
		TimestampMs: ev.timeMs,
		LevelXn:     ev.levelXn,
		Fraction:    frac,
	})
	s.recordEquity(ev.timeMs)
	s.checkProfitReset(op.pos.PositionID, ev.timeMs)
}

func (s *sim) applyClose(ev *simEvent) {
	op, ok := s.open[ev.positionID]
	if !ok {
		return
	}

	leg := execution.ExitLegFor(ev.reason)
	if op.remaining > domain.FractionEpsilon {
		s.exitLeg(op, ev.timeMs, op.remaining, ev.rawExit, leg, domain.ExecutionFinalExit, 0, "")
	}
	s.closePosition(op, ev.timeMs, ev.reason, ev.rawExit, leg)
	s.recordEquity(ev.timeMs)

	if s.cfg.RunnerResetEnabled && op.output.Meta.RealizedMultiple >= s.cfg.RunnerResetMultiple {
		s.triggerReset(op.pos.PositionID, ev.timeMs, "runner_reset", domain.ReasonProfitReset)
		return
	}
	s.checkProfitReset(op.pos.PositionID, ev.timeMs)
}

// exitLeg applies one exit leg: slippage on the raw price, swap and LP fees
// on the returned notional, the flat network fee, and the balance update.
func (s *sim) exitLeg(op *openPosition, timeMs int64, frac, rawPx float64, leg execution.Leg, eventType string, levelXn float64, resetReason string) {
	pos := op.pos
	execPx := s.model.ExitPrice(rawPx, leg)
	gross := pos.SizeSOL * frac * (execPx / pos.ExecEntryPrice)
	net, fees := s.model.ExitNotional(gross)
	nf := s.model.NetworkFee()
	pnl := net - pos.SizeSOL*frac - nf

	s.balance += net - nf
	s.invested -= pos.SizeSOL * frac
	op.remaining -= frac

	pos.PnLSOL += pnl
	pos.FeesTotalSOL += fees + nf
	pos.RealizedTotalPnLSOL += pnl
	if xn := rawPx / pos.RawEntryPrice; xn >= domain.TailXnThreshold {
		pos.RealizedTailPnLSOL += pnl
	}

	s.executions = append(s.executions, domain.Execution{
		PositionID:  pos.PositionID,
		SignalID:    pos.SignalID,
		Strategy:    pos.Strategy,
		EventTimeMs: timeMs,
		EventType:   eventType,
		QtyDelta:    -frac,
		RawPrice:    rawPx,
		ExecPrice:   execPx,
		FeesSOL:     fees + nf,
		PnLSOLDelta: pnl,
		LevelXn:     levelXn,
		ResetReason: resetReason,
	})
}

// closePosition stamps the terminal fields and retires the position.
func (s *sim) closePosition(op *openPosition, timeMs int64, reason string, rawExit float64, leg execution.Leg) {
	pos := op.pos
	t := timeMs
	execExit := s.model.ExitPrice(rawExit, leg)

	pos.Status = domain.PositionStatusClosed
	pos.ExitTimeMs = &t
	pos.RawExitPrice = &rawExit
	pos.ExecExitPrice = &execExit
	pos.HoldMinutes = float64(timeMs-pos.EntryTimeMs) / 60_000

	if m := op.output.Meta.MaxXnReached; m > 0 {
		pos.MaxXnReached = m
	} else if pos.ExecEntryPrice > 0 {
		maxPx := execExit
		if rawExit > maxPx {
			maxPx = rawExit
		}
		pos.MaxXnReached = maxPx / pos.ExecEntryPrice
	}

	delete(s.open, pos.PositionID)
	s.positions = append(s.positions, pos)
	s.holds = append(s.holds, holdSample{closeMs: timeMs, holdDays: pos.HoldMinutes / 1440})
	if s.metrics != nil {
		s.metrics.PositionsClosed.Inc()
	}

	s.events = append(s.events, domain.PortfolioEvent{
		Type:        domain.EventPositionClosed,
		PositionID:  pos.PositionID,
		TimestampMs: timeMs,
		Reason:      reason,
	})
}

// checkProfitReset fires when the cycle's equity peak reaches the configured
// multiple of the cycle start equity.
func (s *sim) checkProfitReset(triggerID string, timeMs int64) {
	if !s.cfg.ProfitResetEnabled || s.cycleStartEquity <= 0 {
		return
	}
	if s.equityPeak/s.cycleStartEquity >= s.cfg.ProfitResetMultiple {
		s.triggerReset(triggerID, timeMs, "profit_reset", domain.ReasonProfitReset)
	}
}

// triggerReset closes every open position at the triggering moment and
// starts a new cycle. The triggering position alone is stamped
// TriggeredPortfolioReset; every other position closed in the sweep gets
// ClosedByReset.
func (s *sim) triggerReset(triggerID string, timeMs int64, trigger, closeReason string) {
	s.resetCount++
	t := timeMs
	s.lastResetMs = &t
	if s.metrics != nil {
		s.metrics.PortfolioResets.WithLabelValues(trigger).Inc()
	}
	s.logger.Info().Str("trigger", trigger).Int64("time_ms", timeMs).
		Int("open_positions", len(s.open)).Msg("portfolio reset")

	s.events = append(s.events, domain.PortfolioEvent{
		Type:        domain.EventPortfolioResetTriggered,
		PositionID:  triggerID,
		TimestampMs: timeMs,
		Reason:      trigger,
	})

	ids := make([]string, 0, len(s.open))
	for id := range s.open {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		op := s.open[id]
		// No market price is observable at the reset moment; the sweep
		// trades at the raw entry price.
		rawExit := op.pos.RawEntryPrice
		if op.remaining > domain.FractionEpsilon {
			s.exitLeg(op, timeMs, op.remaining, rawExit, execution.LegExitManual, domain.ExecutionResetClose, 0, trigger)
		}
		s.closePosition(op, timeMs, closeReason, rawExit, execution.LegExitManual)
		op.pos.ResetReason = trigger
		op.pos.ClosedByReset = id != triggerID
		op.pos.TriggeredPortfolioReset = id == triggerID
		s.recordEquity(timeMs)
	}

	// The trigger may already be closed (a reset fired at its own close).
	for _, pos := range s.positions {
		if pos.PositionID == triggerID {
			pos.TriggeredPortfolioReset = true
			pos.ClosedByReset = false
			pos.ResetReason = trigger
			break
		}
	}

	s.graceFromMs = timeMs
	s.graceUntilMs = timeMs + s.cfg.GraceMinutes*60_000
	s.inReset = true

	eq := s.balance + s.invested
	s.cycleStartEquity = eq
	s.equityPeak = eq
}

// recordEquity appends an equity point (cash plus cost basis of open
// positions) and advances the cycle peak.
func (s *sim) recordEquity(timeMs int64) {
	eq := s.balance + s.invested
	s.equity = append(s.equity, domain.EquityPoint{TimestampMs: timeMs, BalanceSOL: eq})
	if eq > s.equityPeak {
		s.equityPeak = eq
	}
}

// capacityDegraded evaluates the rolling admission window.
func (s *sim) capacityDegraded(nowMs int64) bool {
	cr := s.cfg.CapacityReset

	var window []admissionSample
	var holdCutoffMs int64
	switch cr.WindowType {
	case CapacityWindowSignals:
		if len(s.admissions) < cr.WindowSize {
			return false
		}
		window = s.admissions[len(s.admissions)-cr.WindowSize:]
		holdCutoffMs = window[0].timeMs
	case CapacityWindowDays:
		cutoff := nowMs - int64(cr.WindowSize)*86_400_000
		for _, a := range s.admissions {
			if a.timeMs >= cutoff {
				window = append(window, a)
			}
		}
		holdCutoffMs = cutoff
	}
	if len(window) == 0 {
		return false
	}

	if cr.MaxBlockedRatio > 0 {
		blocked := 0
		for _, a := range window {
			if a.blocked {
				blocked++
			}
		}
		if float64(blocked)/float64(len(window)) > cr.MaxBlockedRatio {
			return true
		}
	}

	if cr.MaxAvgHoldDays > 0 {
		sum, n := 0.0, 0
		for _, h := range s.holds {
			if h.closeMs >= holdCutoffMs {
				sum += h.holdDays
				n++
			}
		}
		if n > 0 && sum/float64(n) > cr.MaxAvgHoldDays {
			return true
		}
	}
	return false
}

// stats snapshots the run counters.
func (s *sim) stats() domain.PortfolioStats {
	strategy := s.strategy
	if strategy == "" {
		strategy = "portfolio"
	}
	return domain.PortfolioStats{
		Strategy:               strategy,
		FinalBalanceSOL:        s.balance,
		TotalReturnPct:         s.balance/s.cfg.InitialBalanceSOL - 1,
		MaxDrawdownPct:         maxDrawdown(s.equity),
		TradesExecuted:         s.executed,
		TradesSkippedByRisk:    s.skippedRisk,
		TradesSkippedByReset:   s.skippedReset,
		PortfolioResetCount:    s.resetCount,
		LastPortfolioResetTime: s.lastResetMs,
		CycleStartEquity:       s.cycleStartEquity,
		EquityPeakInCycle:      s.equityPeak,
	}
}

// maxDrawdown is the most negative peak-to-trough return over the curve,
// as a non-positive decimal fraction.
func maxDrawdown(curve []domain.EquityPoint) float64 {
	worst := 0.0
	runMax := 0.0
	for i, p := range curve {
		if i == 0 || p.BalanceSOL > runMax {
			runMax = p.BalanceSOL
		}
		if runMax > 0 {
			if dd := (p.BalanceSOL - runMax) / runMax; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
