package collector

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRange is returned for empty ranges or ranges reaching past today.
var ErrInvalidRange = errors.New("invalid date range")

// DataUnavailableError means a ticker's data could not be fetched after retries.
// Only that ticker is affected.
type DataUnavailableError struct {
	Ticker string
	Kind   Kind
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("data unavailable for %s (%s): %v", e.Ticker, e.Kind, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }

// InvalidTickerError means the ticker is unknown, malformed or delisted.
// It is never retried.
type InvalidTickerError struct {
	Ticker string
	Status int
	Detail string
}

func (e *InvalidTickerError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("invalid ticker %q (status %d): %s", e.Ticker, e.Status, e.Detail)
	}
	return fmt.Sprintf("invalid ticker %q: %s", e.Ticker, e.Detail)
}

// SubscriptionWindowError reports the date span the API plan covers.
type SubscriptionWindowError struct {
	From    time.Time
	To      time.Time
	Message string
}

func (e *SubscriptionWindowError) Error() string {
	return fmt.Sprintf("subscription covers %s ~ %s: %s", e.From.Format("2006-01-02"), e.To.Format("2006-01-02"), e.Message)
}
