// Package execution applies slippage and fee economics to raw trade legs.
package execution

import (
	"fmt"

	"dex-signal-lab/internal/domain"
)

// Leg identifies which side of a trade a price adjustment applies to.
type Leg string

const (
	LegEntry       Leg = "entry"
	LegExitTP      Leg = "exit_tp"
	LegExitSL      Leg = "exit_sl"
	LegExitTimeout Leg = "exit_timeout"
	LegExitManual  Leg = "exit_manual"
)

// SlippageProfile scales the base slippage per leg.
type SlippageProfile struct {
	Entry       float64
	ExitTP      float64
	ExitSL      float64
	ExitTimeout float64
	ExitManual  float64
}

// DefaultProfileName is used when no execution profile is configured.
const DefaultProfileName = "realistic"

// BuiltinProfiles are the stock execution profiles.
var BuiltinProfiles = map[string]SlippageProfile{
	"optimistic":  {Entry: 0.5, ExitTP: 0.5, ExitSL: 0.5, ExitTimeout: 0.5, ExitManual: 0.5},
	"realistic":   {Entry: 1.0, ExitTP: 1.0, ExitSL: 1.5, ExitTimeout: 1.2, ExitManual: 1.0},
	"pessimistic": {Entry: 2.0, ExitTP: 2.0, ExitSL: 3.0, ExitTimeout: 2.5, ExitManual: 2.0},
}

// FeeConfig mirrors the fee block of the portfolio configuration. All *_pct
// values are decimal fractions (0.003 = 0.3%).
type FeeConfig struct {
	SwapFeePct    float64 `yaml:"swap_fee_pct"`
	LPFeePct      float64 `yaml:"lp_fee_pct"`
	SlippagePct   float64 `yaml:"slippage_pct"`
	NetworkFeeSOL float64 `yaml:"network_fee_sol"`

	// Profiles optionally overrides the builtin profile table.
	Profiles map[string]SlippageProfile `yaml:"profiles"`
}

// Model converts raw prices and notionals into effective ones.
// With a per-leg profile the applied slippage is base * profile[leg];
// legacy mode (no profile) applies the single base slippage to every leg.
type Model struct {
	cfg     FeeConfig
	profile *SlippageProfile
}

// NewModel builds an execution model. profileName == "" selects legacy
// single-slippage mode; unknown names are an error.
func NewModel(cfg FeeConfig, profileName string) (*Model, error) {
	m := &Model{cfg: cfg}
	if profileName == "" {
		return m, nil
	}

	table := BuiltinProfiles
	if len(cfg.Profiles) > 0 {
		table = cfg.Profiles
	}
	p, ok := table[profileName]
	if !ok {
		return nil, fmt.Errorf("unknown execution profile %q", profileName)
	}
	m.profile = &p
	return m, nil
}

// slippageFor resolves the effective slippage fraction for a leg.
func (m *Model) slippageFor(leg Leg) float64 {
	if m.profile == nil {
		return m.cfg.SlippagePct
	}
	mult := 1.0
	switch leg {
	case LegEntry:
		mult = m.profile.Entry
	case LegExitTP:
		mult = m.profile.ExitTP
	case LegExitSL:
		mult = m.profile.ExitSL
	case LegExitTimeout:
		mult = m.profile.ExitTimeout
	case LegExitManual:
		mult = m.profile.ExitManual
	}
	return m.cfg.SlippagePct * mult
}

// EntryPrice applies entry slippage: raw * (1 + s).
func (m *Model) EntryPrice(raw float64) float64 {
	return raw * (1 + m.slippageFor(LegEntry))
}

// ExitPrice applies exit slippage for the given leg: raw * (1 - s).
func (m *Model) ExitPrice(raw float64, leg Leg) float64 {
	return raw * (1 - m.slippageFor(leg))
}

// ExitNotional deducts swap and LP fees from the notional returned at exit.
// The second value is the fee amount taken.
func (m *Model) ExitNotional(notional float64) (net, fees float64) {
	fees = notional * (m.cfg.SwapFeePct + m.cfg.LPFeePct)
	return notional - fees, fees
}

// NetworkFee is the flat per-transaction fee, charged at entry and at every
// exit leg.
func (m *Model) NetworkFee() float64 {
	return m.cfg.NetworkFeeSOL
}

// ExitLegFor maps a canonical close reason onto its slippage leg.
func ExitLegFor(reason string) Leg {
	switch reason {
	case domain.ReasonLadderTP:
		return LegExitTP
	case domain.ReasonStopLoss:
		return LegExitSL
	case domain.ReasonTimeStop, domain.ReasonMaxHoldMinutes:
		return LegExitTimeout
	default:
		return LegExitManual
	}
}
