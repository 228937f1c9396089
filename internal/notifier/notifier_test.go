package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"DividendSentinel/internal/infra"
	"DividendSentinel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport() model.WeeklyReport {
	mk := func(ticker, name string, composite float64, d model.Decision, held, complete bool) model.Score {
		return model.Score{
			Ticker:    ticker,
			Security:  model.Security{Code: ticker, Name: name},
			Composite: composite,
			Decision:  d,
			Held:      held,
			Complete:  complete,
		}
	}
	return model.WeeklyReport{
		RunAt:    time.Date(2025, 6, 7, 7, 0, 0, 0, time.UTC),
		DataAsOf: time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC),
		Scores: []model.Score{
			mk("8058", "三菱商事", 0.82, model.DecisionBuy, false, true),
			mk("2914", "JT <たばこ>", 0.61, model.DecisionHold, true, true),
			mk("9432", "NTT", 0.58, model.DecisionWatch, false, false),
			mk("4502", "武田薬品", 0.21, model.DecisionSell, true, true),
		},
		Complete:   3,
		Incomplete: 1,
		Previous:   map[string]model.Decision{"4502": model.DecisionHold, "9432": model.DecisionBuy},
	}
}

func TestFormatWeeklySummary(t *testing.T) {
	msg := FormatWeeklySummary(sampleReport())

	assert.Contains(t, msg, "2025-06-07")
	assert.Contains(t, msg, "Scored 4 tickers, 3 complete, 1 degraded")
	assert.Contains(t, msg, "<b>SELL</b>\n  4502 武田薬品: 0.21 (HOLD → SELL)")
	assert.Contains(t, msg, "<b>BUY</b>\n  8058 三菱商事: 0.82")
	assert.Contains(t, msg, "9432 NTT: 0.58 (BUY → WATCH) ⚠️")
	assert.NotContains(t, msg, "2914", "unchanged holds are left to the report")
}

func TestFormatWeeklySummary_EscapesNames(t *testing.T) {
	r := sampleReport()
	r.Scores[1].Decision = model.DecisionSell
	msg := FormatWeeklySummary(r)
	assert.Contains(t, msg, "JT &lt;たばこ&gt;")
}

func TestSend_PostsHTMLMessage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", srv.Client(), infra.DefaultRetryPolicy())
	n.APIBase = srv.URL
	require.NoError(t, n.Send(context.Background(), "<b>hello</b>"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "<b>hello</b>", got["text"])
}

func TestSendWithRetry_RetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", srv.Client(), infra.DefaultRetryPolicy())
	n.APIBase = srv.URL
	clock := infra.NewFakeClock(time.Now())
	n.Clock = clock
	require.NoError(t, n.SendWithRetry(context.Background(), "hi"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, clock.Slept(), 2)
}

func TestSendWithRetry_StopsOnBadRequest(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42", srv.Client(), infra.DefaultRetryPolicy())
	n.APIBase = srv.URL
	n.Clock = infra.NewFakeClock(time.Now())
	err := n.SendWithRetry(context.Background(), "hi")
	var se *infra.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
}
