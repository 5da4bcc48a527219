package execution

import (
	"math"
	"testing"

	"dex-signal-lab/internal/domain"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-12 }

func TestModelLegacySingleSlippage(t *testing.T) {
	m, err := NewModel(FeeConfig{SlippagePct: 0.01}, "")
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	if got := m.EntryPrice(100); !almostEqual(got, 101) {
		t.Errorf("entry price = %v, want 101", got)
	}
	// Every exit leg uses the same base slippage in legacy mode.
	for _, leg := range []Leg{LegExitTP, LegExitSL, LegExitTimeout, LegExitManual} {
		if got := m.ExitPrice(100, leg); !almostEqual(got, 99) {
			t.Errorf("exit price for %s = %v, want 99", leg, got)
		}
	}
}

func TestModelProfileScalesPerLeg(t *testing.T) {
	m, err := NewModel(FeeConfig{SlippagePct: 0.01}, "realistic")
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	if got := m.ExitPrice(100, LegExitTP); !almostEqual(got, 99) {
		t.Errorf("exit_tp price = %v, want 99", got)
	}
	// Realistic profile scales SL slippage by 1.5.
	if got := m.ExitPrice(100, LegExitSL); !almostEqual(got, 98.5) {
		t.Errorf("exit_sl price = %v, want 98.5", got)
	}
}

func TestModelUnknownProfile(t *testing.T) {
	if _, err := NewModel(FeeConfig{}, "does-not-exist"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestModelCustomProfileTable(t *testing.T) {
	cfg := FeeConfig{
		SlippagePct: 0.02,
		Profiles: map[string]SlippageProfile{
			"tight": {Entry: 0.25, ExitTP: 0.25, ExitSL: 0.25, ExitTimeout: 0.25, ExitManual: 0.25},
		},
	}
	m, err := NewModel(cfg, "tight")
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	if got := m.EntryPrice(100); !almostEqual(got, 100.5) {
		t.Errorf("entry price = %v, want 100.5", got)
	}
}

func TestExitNotionalFees(t *testing.T) {
	m, err := NewModel(FeeConfig{SwapFeePct: 0.003, LPFeePct: 0.002, NetworkFeeSOL: 0.001}, "")
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	net, fees := m.ExitNotional(10)
	if !almostEqual(fees, 0.05) {
		t.Errorf("fees = %v, want 0.05", fees)
	}
	if !almostEqual(net, 9.95) {
		t.Errorf("net = %v, want 9.95", net)
	}
	if m.NetworkFee() != 0.001 {
		t.Errorf("network fee = %v", m.NetworkFee())
	}
}

func TestEffectivePnLRateIgnoresNotionalFees(t *testing.T) {
	// Fees reduce the returned notional, not the PnL rate.
	m, err := NewModel(FeeConfig{SlippagePct: 0.01, SwapFeePct: 0.05}, "")
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	entry := m.EntryPrice(100)
	exit := m.ExitPrice(120, LegExitTP)
	rate := (exit - entry) / entry

	want := (120*0.99 - 101) / 101
	if !almostEqual(rate, want) {
		t.Errorf("pnl rate = %v, want %v", rate, want)
	}
}

func TestExitLegFor(t *testing.T) {
	cases := map[string]Leg{
		domain.ReasonLadderTP:       LegExitTP,
		domain.ReasonStopLoss:       LegExitSL,
		domain.ReasonTimeStop:       LegExitTimeout,
		domain.ReasonMaxHoldMinutes: LegExitTimeout,
		domain.ReasonProfitReset:    LegExitManual,
		domain.ReasonCapacityPrune:  LegExitManual,
		domain.ReasonManualClose:    LegExitManual,
	}
	for reason, want := range cases {
		if got := ExitLegFor(reason); got != want {
			t.Errorf("ExitLegFor(%s) = %s, want %s", reason, got, want)
		}
	}
}
