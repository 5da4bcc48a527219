package stability

import (
	"fmt"
)

// Window is one time slice of the split with its assigned positions.
type Window struct {
	Index   int
	StartMs int64
	EndMs   int64
	Rows    []PositionRow
}

// SplitWindows divides [min entry, max exit] into exactly splitN equal
// windows and assigns each position to the window containing its entry
// time. All windows but the last are half-open on the right; the last is
// closed. Empty windows are kept.
func SplitWindows(rows []PositionRow, splitN int) ([]Window, error) {
	if splitN <= 0 {
		return nil, fmt.Errorf("split count must be positive, got %d", splitN)
	}

	windows := make([]Window, splitN)
	if len(rows) == 0 {
		return windows, nil
	}

	tMin := rows[0].EntryTimeMs
	tMax := rows[0].ExitTimeMs
	for _, r := range rows {
		if r.EntryTimeMs < tMin {
			tMin = r.EntryTimeMs
		}
		if r.ExitTimeMs > tMax {
			tMax = r.ExitTimeMs
		}
	}

	width := float64(tMax-tMin) / float64(splitN)
	for i := range windows {
		windows[i].Index = i
		windows[i].StartMs = tMin + int64(float64(i)*width)
		windows[i].EndMs = tMin + int64(float64(i+1)*width)
	}
	windows[splitN-1].EndMs = tMax

	for _, r := range rows {
		idx := splitN - 1
		if width > 0 {
			idx = int(float64(r.EntryTimeMs-tMin) / width)
			if idx >= splitN {
				idx = splitN - 1
			}
		}
		windows[idx].Rows = append(windows[idx].Rows, r)
	}

	return windows, nil
}
