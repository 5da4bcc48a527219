package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputePositionID computes a deterministic position_id using SHA256.
// Formula: SHA256(signal_id|strategy|entry_time_ms)
// Returns hex-encoded hash (64 characters). IDs are stable across runs and
// never reused: a signal opens at most one position per strategy.
func ComputePositionID(signalID, strategy string, entryTimeMs int64) string {
	data := fmt.Sprintf("%s|%s|%d", signalID, strategy, entryTimeMs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
