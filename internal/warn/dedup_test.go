package warn

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDeduper() (*Deduper, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	return NewDeduper(logger), &buf
}

func TestWarnOnce_EmitsOnlyFirst(t *testing.T) {
	d, buf := newTestDeduper()

	d.WarnOnce("cache_miss:abc", "cache miss for abc")
	d.WarnOnce("cache_miss:abc", "cache miss for abc")
	d.WarnOnce("cache_miss:abc", "cache miss for abc")

	lines := strings.Count(buf.String(), "\n")
	assert.Equal(t, 1, lines, "expected exactly one emitted warning")
	assert.Equal(t, 3, d.Count("cache_miss:abc"))
}

func TestWarnOnce_DistinctKeys(t *testing.T) {
	d, buf := newTestDeduper()

	d.WarnOnce("k1", "first")
	d.WarnOnce("k2", "second")

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Equal(t, []string{"k1", "k2"}, d.Keys())
}

func TestWarnOnce_Concurrent(t *testing.T) {
	d, buf := newTestDeduper()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.WarnOnce("shared", "shared warning")
		}()
	}
	wg.Wait()

	require.Equal(t, 50, d.Count("shared"))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestWarnOncef_LazyBuild(t *testing.T) {
	d, buf := newTestDeduper()

	built := 0
	for i := 0; i < 3; i++ {
		d.WarnOncef("lazy", func(e *zerolog.Event) {
			built++
			e.Str("contract", "abc").Msg("partial cache coverage")
		})
	}

	assert.Equal(t, 1, built, "build func must run only on first observation")
	assert.Contains(t, buf.String(), "partial cache coverage")
}
