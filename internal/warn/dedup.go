// Package warn provides a warn-once deduplicator so repeated warnings stay
// bounded under parallel signal processing.
package warn

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Deduper emits each warning key at most once and counts suppressions.
type Deduper struct {
	mu     sync.Mutex
	counts map[string]int
	logger zerolog.Logger
}

// NewDeduper creates a Deduper emitting through the given logger.
func NewDeduper(logger zerolog.Logger) *Deduper {
	return &Deduper{
		counts: make(map[string]int),
		logger: logger,
	}
}

// WarnOnce increments the count for key and emits msg iff this is the first
// observation. Emission happens inside the lock so interleaved warnings from
// concurrent workers do not merge.
func (d *Deduper) WarnOnce(key, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts[key]++
	if d.counts[key] == 1 {
		d.logger.Warn().Str("key", key).Msg(msg)
	}
}

// WarnOncef is WarnOnce with a lazily-built structured event. The build
// function runs inside the lock only on first observation.
func (d *Deduper) WarnOncef(key string, build func(e *zerolog.Event)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.counts[key]++
	if d.counts[key] == 1 {
		e := d.logger.Warn().Str("key", key)
		build(e)
	}
}

// Count returns how many times key has been observed.
func (d *Deduper) Count(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts[key]
}

// Keys returns all observed keys, sorted for deterministic reporting.
func (d *Deduper) Keys() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]string, 0, len(d.counts))
	for k := range d.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
