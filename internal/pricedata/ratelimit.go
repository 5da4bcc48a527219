package pricedata

import (
	"context"
	"sync"
	"time"
)

// Default rate limiter configuration: 30 calls per 60 seconds.
const (
	DefaultMaxCalls      = 30
	DefaultLimiterPeriod = 60 * time.Second
)

// LimiterStats is a snapshot of rate limiter pressure counters.
type LimiterStats struct {
	BlockedEvents int64
	TotalWait     time.Duration
}

// RateLimiter is a sliding-window limiter shared across all concurrent
// signal processors. Every HTTP request must acquire a token; when the
// window is saturated the caller sleeps until the oldest timestamp leaves
// the window. Sleeping happens outside the lock.
type RateLimiter struct {
	mu       sync.Mutex
	maxCalls int
	period   time.Duration
	calls    []time.Time

	blockedEvents int64
	totalWait     time.Duration

	// now and sleep are injectable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a sliding-window limiter allowing maxCalls per
// period. Non-positive arguments fall back to the defaults.
func NewRateLimiter(maxCalls int, period time.Duration) *RateLimiter {
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCalls
	}
	if period <= 0 {
		period = DefaultLimiterPeriod
	}
	return &RateLimiter{
		maxCalls: maxCalls,
		period:   period,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Acquire blocks until a call slot is available or ctx is cancelled.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}

		l.mu.Lock()
		l.blockedEvents++
		l.totalWait += wait
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// tryAcquire takes a slot if the window has room, otherwise returns the
// precise wait until the oldest call leaves the window. The wait is computed
// under the lock; the caller sleeps outside it.
func (l *RateLimiter) tryAcquire() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.period)

	// Drop timestamps that left the window.
	kept := l.calls[:0]
	for _, t := range l.calls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.calls = kept

	if len(l.calls) < l.maxCalls {
		l.calls = append(l.calls, now)
		return 0, true
	}

	wait = l.calls[0].Add(l.period).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// Stats returns a snapshot of the pressure counters.
func (l *RateLimiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LimiterStats{
		BlockedEvents: l.blockedEvents,
		TotalWait:     l.totalWait,
	}
}
