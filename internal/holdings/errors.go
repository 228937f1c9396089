package holdings

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyHoldings matches any *EmptyHoldingsError.
var ErrEmptyHoldings = errors.New("no holdings section found")

// EmptyHoldingsError means no holdings table was recognized at all, which
// points to a wrong or corrupted file rather than an empty portfolio.
type EmptyHoldingsError struct {
	Pages  int
	Reason string
	Err    error
}

func (e *EmptyHoldingsError) Error() string {
	msg := fmt.Sprintf("%s (%d pages): %s", ErrEmptyHoldings, e.Pages, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EmptyHoldingsError) Is(target error) bool { return target == ErrEmptyHoldings }

func (e *EmptyHoldingsError) Unwrap() error { return e.Err }

// ParseError is a row inside a recognized holdings section that could not be
// turned into a position.
type ParseError struct {
	Page   int
	Row    int
	Cells  []string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("holdings page %d row %d: %s [%s]", e.Page, e.Row, e.Reason, strings.Join(e.Cells, " | "))
}
