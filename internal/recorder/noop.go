package recorder

import (
	"context"
	"time"

	"DividendSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordWeekly(_ context.Context, _ *model.WeeklyReport) error { return nil }
func (n *NoopRecorder) PreviousDecisions(_ context.Context, _ time.Time) (map[string]model.Decision, error) {
	return map[string]model.Decision{}, nil
}
func (n *NoopRecorder) History(_ context.Context, _ string, _ int) ([]ScoreRecord, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
