package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Status     int
	Endpoint   string
	Body       []byte
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s: status %d, body: %s", e.Endpoint, e.Status, body)
}

// Transient reports whether the server asked us to come back later.
func (e *StatusError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// RetryPolicy describes how a failed request is retried.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Retryable   func(error) bool
}

// DefaultRetryPolicy retries four times, starting at 2s and doubling up to 1m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 4,
		BaseDelay:   2 * time.Second,
		MaxDelay:    time.Minute,
		Multiplier:  2,
		Retryable:   IsTransient,
	}
}

// Backoff is the delay before attempt n+1, where n starts at 1.
func (p RetryPolicy) Backoff(n int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// AttemptsError is returned when every attempt failed.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error { return e.Err }

// Do runs fn until it succeeds, fails with a non-retryable error, ctx ends
// or MaxAttempts is reached.
func (p RetryPolicy) Do(ctx context.Context, clock Clock, fn func(ctx context.Context) error) error {
	if clock == nil {
		clock = SystemClock{}
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for n := 1; n <= attempts; n++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return err
		}
		if n == attempts {
			break
		}
		delay := p.Backoff(n)
		var se *StatusError
		if errors.As(err, &se) && se.RetryAfter > delay {
			delay = se.RetryAfter
		}
		if serr := clock.Sleep(ctx, delay); serr != nil {
			return err
		}
	}
	return &AttemptsError{Attempts: attempts, Err: err}
}

// IsTransient classifies timeouts, connection failures, 5xx and 429 as retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Transient()
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}
