package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time instead of sleeping.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLimiter(limit int, clock *fakeClock) *Limiter {
	l := New(Config{Limit: limit})
	l.now = clock.Now
	l.sleep = func(_ context.Context, d time.Duration) error {
		clock.Advance(d)
		return nil
	}
	return l
}

func TestWaitDisabledWhenLimitZero(t *testing.T) {
	t.Parallel()

	l := New(Config{Limit: 0})
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.Equal(t, 0, l.InFlight())
}

func TestWaitAdmitsUpToLimitImmediately(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter(3, clock)

	start := clock.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	require.Equal(t, start, clock.Now(), "first three admissions must not wait")
	require.Equal(t, 3, l.InFlight())
}

func TestWaitBlocksUntilWindowHasRoom(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := newTestLimiter(2, clock)

	require.NoError(t, l.Wait(context.Background()))
	clock.Advance(10 * time.Second)
	require.NoError(t, l.Wait(context.Background()))

	// Third admission must wait until the first timestamp leaves the window:
	// it entered at t=0, so the window has room again at t=60s.
	require.NoError(t, l.Wait(context.Background()))
	require.Equal(t, time.Unix(1060, 0), clock.Now())
}

func TestWindowNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(0, 0)}
	l := newTestLimiter(5, clock)

	for i := 0; i < 25; i++ {
		require.NoError(t, l.Wait(context.Background()))
		require.LessOrEqual(t, l.InFlight(), 5)
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	l := New(Config{Limit: 1})
	l.now = clock.Now
	l.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}

	require.NoError(t, l.Wait(context.Background()))
	err := l.Wait(context.Background())
	require.ErrorIs(t, err, context.Canceled)
}

func TestOnDelayObservesWaits(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	var observed time.Duration
	l := New(Config{Limit: 1, OnDelay: func(d time.Duration) { observed = d }})
	l.now = clock.Now
	l.sleep = func(_ context.Context, d time.Duration) error {
		clock.Advance(d)
		return nil
	}

	require.NoError(t, l.Wait(context.Background()))
	require.NoError(t, l.Wait(context.Background()))
	require.Equal(t, Window, observed)
}
