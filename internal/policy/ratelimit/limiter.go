// Package ratelimit implements a rolling-window rate limiter shared by the
// fetch and summarization pipelines.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Window is the trailing interval over which requests are counted.
const Window = 60 * time.Second

// Config holds rate limiter configuration.
type Config struct {
	// Limit is the maximum number of admissions per Window. Zero or negative
	// disables limiting.
	Limit int
	// OnDelay, when set, observes how long an admission had to wait.
	OnDelay func(time.Duration)
}

// Limiter admits at most Limit calls per trailing Window. It is safe for
// concurrent use; the timestamp list is guarded by a mutex.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	stamps  []time.Time
	onDelay func(time.Duration)

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		limit:   cfg.Limit,
		onDelay: cfg.OnDelay,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Wait blocks until the trailing window has room for one more admission, then
// records the admission. It returns early if the context finishes.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limit <= 0 {
		return nil
	}
	start := l.now()
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)
		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			if waited := now.Sub(start); waited > 0 && l.onDelay != nil {
				l.onDelay(waited)
			}
			return nil
		}
		wait := Window - now.Sub(l.stamps[0])
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}
		if err := l.sleep(ctx, wait); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
}

// InFlight reports how many admissions are currently inside the window.
func (l *Limiter) InFlight() int {
	if l == nil || l.limit <= 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	return len(l.stamps)
}

// prune drops timestamps older than the window. Caller holds the mutex.
func (l *Limiter) prune(now time.Time) {
	cut := 0
	for cut < len(l.stamps) && now.Sub(l.stamps[cut]) >= Window {
		cut++
	}
	if cut > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[cut:]...)
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
