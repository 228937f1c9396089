package recorder

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"DividendSentinel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weekly(runID string, at time.Time, decisions map[string]model.Decision) *model.WeeklyReport {
	r := &model.WeeklyReport{RunID: runID, RunAt: at, Notices: []string{"n1"}}
	for _, ticker := range []string{"7203", "9432"} {
		d, ok := decisions[ticker]
		if !ok {
			continue
		}
		s := model.Score{Ticker: ticker, Decision: d, Composite: 0.5, Complete: true}
		s.Value = model.SubScore{Name: "value", Value: 0.4, Defined: true}
		s.Metrics.PE = model.Some(12)
		if ticker == "9432" {
			s.Held = true
			s.Complete = false
			s.Issues = []string{"dividend: undefined"}
		}
		r.Scores = append(r.Scores, s)
	}
	return r
}

func TestSQLiteRecorder_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer rec.Close()

	w1 := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	w2 := w1.AddDate(0, 0, 7)

	prev, err := rec.PreviousDecisions(ctx, w1)
	require.NoError(t, err)
	assert.Empty(t, prev)

	require.NoError(t, rec.RecordWeekly(ctx, weekly("run-1", w1, map[string]model.Decision{
		"7203": model.DecisionWatch, "9432": model.DecisionHold,
	})))
	require.NoError(t, rec.RecordWeekly(ctx, weekly("run-2", w2, map[string]model.Decision{
		"7203": model.DecisionBuy,
	})))

	prev, err = rec.PreviousDecisions(ctx, w2)
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Decision{"7203": model.DecisionWatch, "9432": model.DecisionHold}, prev)

	prev, err = rec.PreviousDecisions(ctx, w2.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]model.Decision{"7203": model.DecisionBuy}, prev)

	hist, err := rec.History(ctx, "7203", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, "run-2", hist[0].RunID)
	assert.Equal(t, model.DecisionBuy, hist[0].Decision)
	assert.Equal(t, w2.Unix(), hist[0].RunAt.Unix())

	hist, err = rec.History(ctx, "9432", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.True(t, hist[0].Held)
	assert.False(t, hist[0].Complete)
}

func TestSQLiteRecorder_RejectsDuplicateRun(t *testing.T) {
	ctx := context.Background()
	rec, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer rec.Close()

	at := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	require.NoError(t, rec.RecordWeekly(ctx, weekly("run-1", at, map[string]model.Decision{"7203": model.DecisionBuy})))
	assert.Error(t, rec.RecordWeekly(ctx, weekly("run-1", at, map[string]model.Decision{"7203": model.DecisionBuy})))
	assert.Error(t, rec.RecordWeekly(ctx, &model.WeeklyReport{RunAt: at}))

	hist, err := rec.History(ctx, "7203", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1, "failed run must not leave scores behind")
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NewNoopRecorder()
	require.NoError(t, r.RecordWeekly(context.Background(), &model.WeeklyReport{}))
	prev, err := r.PreviousDecisions(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, prev)
	assert.NoError(t, r.Close())
}
