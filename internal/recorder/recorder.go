package recorder

import (
	"context"
	"time"

	"DividendSentinel/internal/model"
)

// ScoreRecord is one ticker's stored outcome of a past run.
type ScoreRecord struct {
	RunID     string
	RunAt     time.Time
	Ticker    string
	Held      bool
	Composite float64
	Decision  model.Decision
	Complete  bool
}

// Recorder persists weekly reports for later comparison.
type Recorder interface {
	RecordWeekly(ctx context.Context, r *model.WeeklyReport) error
	// PreviousDecisions returns the per-ticker decisions of the latest run
	// before the given time, empty when there is none.
	PreviousDecisions(ctx context.Context, before time.Time) (map[string]model.Decision, error)
	History(ctx context.Context, ticker string, limit int) ([]ScoreRecord, error)
	Close() error
}
