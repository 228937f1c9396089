package infra

import (
	"context"
	"sync"
	"time"
)

// Limiter gates outgoing requests.
type Limiter interface {
	Wait(ctx context.Context) error
}

// SlidingWindowLimiter allows at most Limit grants in any Window-long interval.
// Unlike a token bucket it never bursts past the cap at a window boundary.
type SlidingWindowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clock   Clock
	granted []time.Time

	onGrant func(time.Time)
}

// NewSlidingWindowLimiter creates a limiter of limit requests per window.
func NewSlidingWindowLimiter(limit int, window time.Duration, clock Clock) *SlidingWindowLimiter {
	if limit < 1 {
		limit = 1
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &SlidingWindowLimiter{limit: limit, window: window, clock: clock}
}

// Wait blocks until a slot is free or ctx is done.
func (l *SlidingWindowLimiter) Wait(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.mu.Lock()
		now := l.clock.Now()
		cutoff := now.Add(-l.window)
		i := 0
		for i < len(l.granted) && !l.granted[i].After(cutoff) {
			i++
		}
		l.granted = l.granted[i:]
		if len(l.granted) < l.limit {
			l.granted = append(l.granted, now)
			if l.onGrant != nil {
				l.onGrant(now)
			}
			l.mu.Unlock()
			return nil
		}
		wait := l.granted[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// OnGrant registers a callback invoked under the limiter lock for every grant.
func (l *SlidingWindowLimiter) OnGrant(fn func(time.Time)) {
	l.mu.Lock()
	l.onGrant = fn
	l.mu.Unlock()
}

// Unlimited never blocks.
type Unlimited struct{}

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
