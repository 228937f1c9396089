package report

import (
	"sort"
	"time"

	"DividendSentinel/internal/model"
)

// BuildReport ranks scores by composite, then by the dividend-growth
// sub-score (undefined below any defined value), then by ticker. It makes no
// decisions of its own and never mutates its arguments.
func BuildReport(scores []model.Score, runAt time.Time, positions []model.Position) model.WeeklyReport {
	ranked := make([]model.Score, len(scores))
	copy(ranked, scores)
	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })

	r := model.WeeklyReport{
		RunAt:     runAt,
		Scores:    ranked,
		Positions: append([]model.Position(nil), positions...),
	}
	for _, s := range ranked {
		if s.Complete {
			r.Complete++
		} else {
			r.Incomplete++
		}
		if s.Metrics.AsOf.After(r.DataAsOf) {
			r.DataAsOf = s.Metrics.AsOf
		}
	}
	return r
}

func less(a, b model.Score) bool {
	if a.Composite != b.Composite {
		return a.Composite > b.Composite
	}
	if a.Dividend.Defined != b.Dividend.Defined {
		return a.Dividend.Defined
	}
	if a.Dividend.Defined && a.Dividend.Value != b.Dividend.Value {
		return a.Dividend.Value > b.Dividend.Value
	}
	return a.Ticker < b.Ticker
}

// Split separates held tickers from candidates, keeping the ranking.
func Split(r model.WeeklyReport) (held, candidates []model.Score) {
	for _, s := range r.Scores {
		if s.Held {
			held = append(held, s)
		} else {
			candidates = append(candidates, s)
		}
	}
	return held, candidates
}

// Changes lists tickers whose decision differs from the previous run.
func Changes(r model.WeeklyReport) map[string]model.Decision {
	out := make(map[string]model.Decision)
	for _, s := range r.Scores {
		if prev, ok := r.Previous[s.Ticker]; ok && prev != s.Decision {
			out[s.Ticker] = prev
		}
	}
	return out
}
