// Package signalcsv loads the inbound signal CSV into domain signals.
package signalcsv

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/warn"
)

// reservedColumns map straight onto Signal fields and never land in extra.
var reservedColumns = map[string]bool{
	"id":               true,
	"contract_address": true,
	"timestamp":        true,
	"source":           true,
	"narrative":        true,
	"extra_json":       true,
}

// Loader reads signal CSVs. A bad contract address only warns: upstream
// sources occasionally carry test rows and the fetcher will 404 them anyway.
type Loader struct {
	warner *warn.Deduper
}

func NewLoader(warner *warn.Deduper) *Loader {
	return &Loader{warner: warner}
}

// Load reads all signals from path. Required columns are id,
// contract_address, and timestamp (ISO-8601 UTC); unrecognized columns
// become extra keys, winning over extra_json on collision. NaN cell values
// are dropped.
func (l *Loader) Load(path string) ([]*domain.Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read signal csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("signal csv %s is empty", path)
	}

	header := records[0]
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range []string{"id", "contract_address", "timestamp"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("signal csv missing required column %q", name)
		}
	}

	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	signals := make([]*domain.Signal, 0, len(records)-1)
	for n, rec := range records[1:] {
		ts, err := time.Parse(time.RFC3339, get(rec, "timestamp"))
		if err != nil {
			return nil, fmt.Errorf("signal row %d: bad timestamp %q: %w", n+2, get(rec, "timestamp"), err)
		}

		sig := &domain.Signal{
			ID:              get(rec, "id"),
			ContractAddress: get(rec, "contract_address"),
			TimestampMs:     ts.UTC().UnixMilli(),
			Source:          get(rec, "source"),
			Narrative:       get(rec, "narrative"),
			Extra:           map[string]string{},
		}
		if sig.ID == "" {
			return nil, fmt.Errorf("signal row %d: empty id", n+2)
		}
		if sig.ContractAddress == "" {
			return nil, fmt.Errorf("signal row %d: empty contract_address", n+2)
		}
		if sig.Source == "" {
			sig.Source = "unknown"
		}

		if raw := get(rec, "extra_json"); raw != "" {
			var m map[string]any
			if err := json.Unmarshal([]byte(raw), &m); err != nil {
				return nil, fmt.Errorf("signal row %d: bad extra_json: %w", n+2, err)
			}
			for k, v := range m {
				sig.Extra[k] = stringifyJSON(v)
			}
		}
		// Columns win over extra_json on key collision.
		for i, name := range header {
			if reservedColumns[name] || i >= len(rec) || rec[i] == "" {
				continue
			}
			sig.Extra[name] = rec[i]
		}
		dropNaN(sig.Extra)

		if _, err := base58.Decode(sig.ContractAddress); err != nil {
			l.warner.WarnOnce(
				"signal:bad_contract:"+sig.ContractAddress,
				fmt.Sprintf("signal %s carries a non-base58 contract address", sig.ID),
			)
		}
		signals = append(signals, sig)
	}
	return signals, nil
}

func stringifyJSON(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// dropNaN removes extra values that spreadsheets serialize as NaN.
func dropNaN(extra map[string]string) {
	for k, v := range extra {
		if strings.EqualFold(v, "nan") {
			delete(extra, k)
		}
	}
}
