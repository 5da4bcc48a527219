package stability

import "testing"

func row(id string, entryMs, exitMs int64, pnl float64) PositionRow {
	return PositionRow{
		PositionID:  id,
		Strategy:    "runner_v1",
		EntryTimeMs: entryMs,
		ExitTimeMs:  exitMs,
		PnL:         pnl,
	}
}

func TestSplitWindowsAssignsByEntryTime(t *testing.T) {
	// Span is [0, 300]: three windows of width 100.
	rows := []PositionRow{
		row("a", 0, 50, 1),
		row("b", 99, 150, 1),
		row("c", 100, 200, 1), // boundary entry lands in the next window
		row("d", 250, 300, 1),
	}

	windows, err := SplitWindows(rows, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows) != 3 {
		t.Fatalf("windows = %d, want 3", len(windows))
	}
	if got := len(windows[0].Rows); got != 2 {
		t.Errorf("window 0 rows = %d, want 2", got)
	}
	if got := len(windows[1].Rows); got != 1 {
		t.Errorf("window 1 rows = %d, want 1", got)
	}
	if got := len(windows[2].Rows); got != 1 {
		t.Errorf("window 2 rows = %d, want 1", got)
	}
	if windows[2].EndMs != 300 {
		t.Errorf("last window end = %d, want 300 (max exit)", windows[2].EndMs)
	}
}

func TestSplitWindowsKeepsEmptyWindows(t *testing.T) {
	rows := []PositionRow{
		row("a", 0, 10, 1),
		row("b", 5, 400, 1),
	}

	windows, err := SplitWindows(rows, 4)
	if err != nil {
		t.Fatal(err)
	}
	// Both entries sit in the first quarter of [0, 400].
	if len(windows[0].Rows) != 2 {
		t.Errorf("window 0 rows = %d, want 2", len(windows[0].Rows))
	}
	for i := 1; i < 4; i++ {
		if len(windows[i].Rows) != 0 {
			t.Errorf("window %d rows = %d, want 0", i, len(windows[i].Rows))
		}
	}
}

func TestSplitWindowsZeroWidth(t *testing.T) {
	// All activity at one instant collapses to the last window.
	rows := []PositionRow{row("a", 100, 100, 1), row("b", 100, 100, -1)}

	windows, err := SplitWindows(rows, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(windows[2].Rows) != 2 {
		t.Errorf("last window rows = %d, want 2", len(windows[2].Rows))
	}
}

func TestSplitWindowsRejectsBadSplit(t *testing.T) {
	if _, err := SplitWindows(nil, 0); err == nil {
		t.Fatal("expected error for split 0")
	}
}
