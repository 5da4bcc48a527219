package domain

import "strconv"

// DefaultTotalSupply is assumed when a signal does not carry total_supply.
const DefaultTotalSupply = 1e9

// Signal represents one trading signal loaded from the inbound CSV.
// Immutable after load.
type Signal struct {
	ID              string
	ContractAddress string
	TimestampMs     int64 // UTC, Unix milliseconds
	Source          string
	Narrative       string

	// Extra holds unrecognized CSV columns and extra_json keys.
	// Column values win over extra_json on key collision.
	Extra map[string]string
}

// TotalSupply returns extra.total_supply parsed as float, or
// DefaultTotalSupply when absent or unparseable.
func (s *Signal) TotalSupply() float64 {
	raw, ok := s.Extra["total_supply"]
	if !ok {
		return DefaultTotalSupply
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return DefaultTotalSupply
	}
	return v
}
