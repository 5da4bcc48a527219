package pricedata

import (
	"fmt"
	"strconv"
	"strings"
)

// Timeframe names a candle granularity and its API mapping.
type Timeframe struct {
	Name      string // cache layout segment, e.g. "1m"
	Unit      string // API path segment: minute | hour | day
	Aggregate int    // k-unit aggregation
}

// Common timeframes.
var (
	Timeframe1m  = Timeframe{Name: "1m", Unit: "minute", Aggregate: 1}
	Timeframe5m  = Timeframe{Name: "5m", Unit: "minute", Aggregate: 5}
	Timeframe15m = Timeframe{Name: "15m", Unit: "minute", Aggregate: 15}
	Timeframe1h  = Timeframe{Name: "1h", Unit: "hour", Aggregate: 1}
)

// ParseTimeframe parses names like "1m", "15m", "4h", "1d".
func ParseTimeframe(name string) (Timeframe, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if len(name) < 2 {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", name)
	}

	n, err := strconv.Atoi(name[:len(name)-1])
	if err != nil || n <= 0 {
		return Timeframe{}, fmt.Errorf("invalid timeframe %q", name)
	}

	var unit string
	switch name[len(name)-1] {
	case 'm':
		unit = "minute"
	case 'h':
		unit = "hour"
	case 'd':
		unit = "day"
	default:
		return Timeframe{}, fmt.Errorf("invalid timeframe unit in %q", name)
	}

	return Timeframe{Name: name, Unit: unit, Aggregate: n}, nil
}

// Minutes returns the bar width in minutes.
func (t Timeframe) Minutes() int64 {
	switch t.Unit {
	case "minute":
		return int64(t.Aggregate)
	case "hour":
		return int64(t.Aggregate) * 60
	case "day":
		return int64(t.Aggregate) * 1440
	default:
		return 1
	}
}
