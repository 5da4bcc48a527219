package pricedata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	l := NewRateLimiter(3, time.Minute)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	s := l.Stats()
	require.Equal(t, int64(0), s.BlockedEvents)
	require.Equal(t, time.Duration(0), s.TotalWait)
}

func TestRateLimiterBlocksWhenSaturated(t *testing.T) {
	now := time.Unix(1000, 0)
	var slept []time.Duration

	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		now = now.Add(d)
		return nil
	}

	ctx := context.Background()
	require.NoError(t, l.Acquire(ctx))
	now = now.Add(10 * time.Second)
	require.NoError(t, l.Acquire(ctx))

	// Window is full; the third call must wait until the oldest timestamp
	// leaves: it entered at t=1000, period 60s, now is t=1010.
	require.NoError(t, l.Acquire(ctx))
	require.Len(t, slept, 1)
	require.Equal(t, 50*time.Second, slept[0])

	s := l.Stats()
	require.Equal(t, int64(1), s.BlockedEvents)
	require.Equal(t, 50*time.Second, s.TotalWait)
}

func TestRateLimiterContextCancel(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Acquire(ctx))

	cancel()
	err := l.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRateLimiterConcurrentAcquire(t *testing.T) {
	l := NewRateLimiter(100, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Acquire(context.Background())
		}()
	}
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.calls, 50)
}

func TestRateLimiterDefaults(t *testing.T) {
	l := NewRateLimiter(0, 0)
	require.Equal(t, DefaultMaxCalls, l.maxCalls)
	require.Equal(t, DefaultLimiterPeriod, l.period)
}
