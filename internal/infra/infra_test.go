package infra

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func TestBackoff_ExponentialCapped(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(10))
}

func TestDo_RetriesTransientUntilExhausted(t *testing.T) {
	clock := NewFakeClock(t0)
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}
	calls := 0
	err := p.Do(context.Background(), clock, func(context.Context) error {
		calls++
		return &StatusError{Status: http.StatusServiceUnavailable, Endpoint: "x"}
	})

	var ae *AttemptsError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 3, ae.Attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.Slept())
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	clock := NewFakeClock(t0)
	calls := 0
	err := DefaultRetryPolicy().Do(context.Background(), clock, func(context.Context) error {
		calls++
		return &StatusError{Status: http.StatusNotFound}
	})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, calls)
	assert.Empty(t, clock.Slept())
}

func TestDo_HonorsRetryAfter(t *testing.T) {
	clock := NewFakeClock(t0)
	calls := 0
	err := DefaultRetryPolicy().Do(context.Background(), clock, func(context.Context) error {
		calls++
		if calls == 1 {
			return &StatusError{Status: http.StatusTooManyRequests, RetryAfter: 30 * time.Second}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{30 * time.Second}, clock.Slept())
}

func TestDo_DoesNotRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := DefaultRetryPolicy().Do(ctx, NewFakeClock(t0), func(context.Context) error {
		calls++
		return context.Canceled
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestSlidingWindowLimiter_NeverExceedsCap(t *testing.T) {
	const limit = 5
	window := time.Minute
	clock := NewFakeClock(t0)
	lim := NewSlidingWindowLimiter(limit, window, clock)

	var grants []time.Time
	lim.OnGrant(func(at time.Time) { grants = append(grants, at) })

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 4; i++ {
				assert.NoError(t, lim.Wait(context.Background()))
			}
		}()
	}
	wg.Wait()

	require.Len(t, grants, 32)
	for i := limit; i < len(grants); i++ {
		assert.GreaterOrEqual(t, grants[i].Sub(grants[i-limit]), window,
			"grant %d falls inside the window of grant %d", i, i-limit)
	}
}

func TestSlidingWindowLimiter_CancelWhileWaiting(t *testing.T) {
	lim := NewSlidingWindowLimiter(1, time.Hour, SystemClock{})
	require.NoError(t, lim.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := lim.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseRetryAfter(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "12")
	assert.Equal(t, 12*time.Second, ParseRetryAfter(h))
	assert.Zero(t, ParseRetryAfter(http.Header{}))
}
