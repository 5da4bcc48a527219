package pricedata

import (
	"fmt"
	"math"

	"dex-signal-lab/internal/domain"
	"dex-signal-lab/internal/warn"
)

// Validator checks incoming candle rows before they reach a strategy.
// In strict mode the first malformed row aborts the load; otherwise the
// row is dropped with a deduplicated warning.
type Validator struct {
	strict          bool
	maxPriceJumpPct *float64 // nil disables the jump gate
	warner          *warn.Deduper
}

// NewValidator creates a candle validator.
func NewValidator(strict bool, warner *warn.Deduper) *Validator {
	return &Validator{strict: strict, warner: warner}
}

// WithMaxPriceJump enables the inter-candle jump gate at the given
// percentage threshold.
func (v *Validator) WithMaxPriceJump(pct float64) *Validator {
	v.maxPriceJumpPct = &pct
	return v
}

// checkCandle returns the violated rule name, or "" for a well-formed row.
func checkCandle(c domain.Candle) string {
	switch {
	case math.IsNaN(c.Open) || math.IsNaN(c.High) || math.IsNaN(c.Low) || math.IsNaN(c.Close):
		return "price is NaN"
	case c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0:
		return "non-positive price"
	case c.High < c.Open || c.High < c.Close:
		return "high below open/close"
	case c.Low > c.Open || c.Low > c.Close:
		return "low above open/close"
	case c.High < c.Low:
		return "high below low"
	case c.Volume < 0 || math.IsNaN(c.Volume):
		return "negative volume"
	}
	return ""
}

// Validate filters candles for one contract. Input must be sorted ascending.
// In strict mode the first violation returns a MalformedCandleError; in
// fail-open mode violating rows are skipped with one warning per
// (contract, rule) pair.
func (v *Validator) Validate(contract string, candles []domain.Candle) ([]domain.Candle, error) {
	out := make([]domain.Candle, 0, len(candles))
	var prevClose float64

	for _, c := range candles {
		rule := checkCandle(c)
		if rule == "" && v.maxPriceJumpPct != nil && prevClose > 0 {
			jump := math.Abs(c.Open-prevClose) / prevClose * 100
			if jump > *v.maxPriceJumpPct {
				rule = fmt.Sprintf("price jump %.1f%% exceeds %.1f%%", jump, *v.maxPriceJumpPct)
			}
		}

		if rule != "" {
			if v.strict {
				return nil, &MalformedCandleError{Contract: contract, TimestampMs: c.TimestampMs, Rule: rule}
			}
			if v.warner != nil {
				key := fmt.Sprintf("candle:%s:%s", contract, rule)
				v.warner.WarnOnce(key, fmt.Sprintf("skipping malformed candle for %s: %s", contract, rule))
			}
			continue
		}

		prevClose = c.Close
		out = append(out, c)
	}

	return out, nil
}
