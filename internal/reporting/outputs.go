package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"dex-signal-lab/internal/domain"
)

// OutputsFile is the machine hand-off between the backtest and portfolio
// stages. Times are epoch milliseconds so the round trip is exact.
const OutputsFile = "strategy_outputs.csv"

var outputsHeader = []string{
	"strategy", "signal_id", "contract_address",
	"entry_time_ms", "entry_price", "exit_time_ms", "exit_price",
	"pnl_pct", "reason", "ladder_reason", "runner_ladder",
	"realized_multiple", "max_xn_reached",
	"level_first_hits", "fractions_exited",
	"entry_mcap_proxy", "exit_mcap_proxy", "mcap_change_pct",
	"exception",
}

// WriteOutputsCSV writes strategy outputs to path. Pre-window features are
// not carried; the replay engine does not read them.
func WriteOutputsCSV(path string, outputs []domain.StrategyOutput) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create outputs csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(outputsHeader); err != nil {
		return fmt.Errorf("write outputs header: %w", err)
	}
	for i := range outputs {
		o := &outputs[i]
		rec := []string{
			o.Strategy, o.SignalID, o.ContractAddress,
			formatMsPtr(o.EntryTimeMs), formatFloatPtr(o.EntryPrice),
			formatMsPtr(o.ExitTimeMs), formatFloatPtr(o.ExitPrice),
			formatFloat(o.PnLPct), o.Reason, o.Meta.LadderReason, formatBool(o.Meta.RunnerLadder),
			formatFloat(o.Meta.RealizedMultiple), formatFloat(o.Meta.MaxXnReached),
			encodeLevelTimes(o.Meta.LevelFirstHitMs), encodeLevelFractions(o.Meta.FractionExited),
			formatFloat(o.Meta.EntryMcapProxy), formatFloat(o.Meta.ExitMcapProxy), formatFloat(o.Meta.McapChangePct),
			o.Meta.Exception,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write outputs row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush outputs csv: %w", err)
	}
	return f.Close()
}

// ReadOutputsCSV reads a file written by WriteOutputsCSV.
func ReadOutputsCSV(path string) ([]domain.StrategyOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read outputs csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("outputs csv %s is empty", path)
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, name := range outputsHeader {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("outputs csv missing column %q", name)
		}
	}
	get := func(rec []string, name string) string {
		i := col[name]
		if i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	outputs := make([]domain.StrategyOutput, 0, len(records)-1)
	for n, rec := range records[1:] {
		o := domain.StrategyOutput{
			Strategy:        get(rec, "strategy"),
			SignalID:        get(rec, "signal_id"),
			ContractAddress: get(rec, "contract_address"),
			Reason:          get(rec, "reason"),
		}
		if o.EntryTimeMs, err = parseMsPtr(get(rec, "entry_time_ms")); err != nil {
			return nil, fmt.Errorf("outputs csv row %d: entry_time_ms: %w", n+2, err)
		}
		if o.ExitTimeMs, err = parseMsPtr(get(rec, "exit_time_ms")); err != nil {
			return nil, fmt.Errorf("outputs csv row %d: exit_time_ms: %w", n+2, err)
		}
		if o.EntryPrice, err = parseFloatPtr(get(rec, "entry_price")); err != nil {
			return nil, fmt.Errorf("outputs csv row %d: entry_price: %w", n+2, err)
		}
		if o.ExitPrice, err = parseFloatPtr(get(rec, "exit_price")); err != nil {
			return nil, fmt.Errorf("outputs csv row %d: exit_price: %w", n+2, err)
		}
		o.PnLPct = parseFloatOr(get(rec, "pnl_pct"))
		o.Meta = domain.OutputMeta{
			LadderReason:     get(rec, "ladder_reason"),
			RunnerLadder:     get(rec, "runner_ladder") == "true",
			RealizedMultiple: parseFloatOr(get(rec, "realized_multiple")),
			MaxXnReached:     parseFloatOr(get(rec, "max_xn_reached")),
			EntryMcapProxy:   parseFloatOr(get(rec, "entry_mcap_proxy")),
			ExitMcapProxy:    parseFloatOr(get(rec, "exit_mcap_proxy")),
			McapChangePct:    parseFloatOr(get(rec, "mcap_change_pct")),
			Exception:        get(rec, "exception"),
		}
		if o.Meta.LevelFirstHitMs, err = decodeLevelTimes(get(rec, "level_first_hits")); err != nil {
			return nil, fmt.Errorf("outputs csv row %d: level_first_hits: %w", n+2, err)
		}
		if o.Meta.FractionExited, err = decodeLevelFractions(get(rec, "fractions_exited")); err != nil {
			return nil, fmt.Errorf("outputs csv row %d: fractions_exited: %w", n+2, err)
		}
		outputs = append(outputs, o)
	}
	return outputs, nil
}

// Level maps serialize as "xn:value" pairs joined with ";", keys ascending.
func encodeLevelTimes(m map[float64]int64) string {
	parts := make([]string, 0, len(m))
	for _, xn := range sortedLevels(m) {
		parts = append(parts, formatFloat(xn)+":"+strconv.FormatInt(m[xn], 10))
	}
	return strings.Join(parts, ";")
}

func encodeLevelFractions(m map[float64]float64) string {
	parts := make([]string, 0, len(m))
	keys := make([]float64, 0, len(m))
	for xn := range m {
		keys = append(keys, xn)
	}
	sort.Float64s(keys)
	for _, xn := range keys {
		parts = append(parts, formatFloat(xn)+":"+formatFloat(m[xn]))
	}
	return strings.Join(parts, ";")
}

func sortedLevels(m map[float64]int64) []float64 {
	keys := make([]float64, 0, len(m))
	for xn := range m {
		keys = append(keys, xn)
	}
	sort.Float64s(keys)
	return keys
}

func decodeLevelTimes(s string) (map[float64]int64, error) {
	if s == "" {
		return nil, nil
	}
	m := make(map[float64]int64)
	for _, part := range strings.Split(s, ";") {
		xn, val, err := splitLevelPair(part)
		if err != nil {
			return nil, err
		}
		ms, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad level timestamp %q", val)
		}
		m[xn] = ms
	}
	return m, nil
}

func decodeLevelFractions(s string) (map[float64]float64, error) {
	if s == "" {
		return nil, nil
	}
	m := make(map[float64]float64)
	for _, part := range strings.Split(s, ";") {
		xn, val, err := splitLevelPair(part)
		if err != nil {
			return nil, err
		}
		frac, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("bad level fraction %q", val)
		}
		m[xn] = frac
	}
	return m, nil
}

func splitLevelPair(part string) (float64, string, error) {
	xnStr, val, ok := strings.Cut(part, ":")
	if !ok {
		return 0, "", fmt.Errorf("bad level pair %q", part)
	}
	xn, err := strconv.ParseFloat(xnStr, 64)
	if err != nil {
		return 0, "", fmt.Errorf("bad level %q", xnStr)
	}
	return xn, val, nil
}

func formatMsPtr(ms *int64) string {
	if ms == nil {
		return ""
	}
	return strconv.FormatInt(*ms, 10)
}

func parseMsPtr(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("not epoch ms: %s", s)
	}
	return &ms, nil
}

func parseFloatPtr(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a float: %s", s)
	}
	return &v, nil
}

func parseFloatOr(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
