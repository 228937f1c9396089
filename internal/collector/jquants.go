package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"DividendSentinel/internal/infra"
	"DividendSentinel/internal/model"
	"DividendSentinel/internal/session"

	"github.com/PaesslerAG/jsonpath"
)

// TokenSource supplies bearer tokens and accepts rejected ones back.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate(idToken string)
}

// JQuantsFetcher implements Fetcher using the J-Quants REST API.
// Every HTTP request, including pagination pages and retries, passes the limiter.
type JQuantsFetcher struct {
	BaseURL string
	Client  *http.Client
	Tokens  TokenSource
	Limiter infra.Limiter
	Retry   infra.RetryPolicy
	Clock   infra.Clock
}

// NewJQuantsFetcher creates a fetcher sharing limiter with the session.
func NewJQuantsFetcher(baseURL string, client *http.Client, tokens TokenSource, limiter infra.Limiter, retry infra.RetryPolicy) *JQuantsFetcher {
	if baseURL == "" {
		baseURL = session.DefaultBaseURL
	}
	if limiter == nil {
		limiter = infra.Unlimited{}
	}
	return &JQuantsFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  client,
		Tokens:  tokens,
		Limiter: limiter,
		Retry:   retry,
		Clock:   infra.SystemClock{},
	}
}

func (f *JQuantsFetcher) Name() string { return "jquants" }

type jqListed struct {
	Code             string `json:"Code"`
	CompanyName      string `json:"CompanyName"`
	Sector17CodeName string `json:"Sector17CodeName"`
	Sector33CodeName string `json:"Sector33CodeName"`
	MarketCodeName   string `json:"MarketCodeName"`
}

type jqQuote struct {
	Date            string   `json:"Date"`
	Code            string   `json:"Code"`
	Close           *float64 `json:"Close"`
	AdjustmentClose *float64 `json:"AdjustmentClose"`
	Volume          *float64 `json:"Volume"`
}

func (f *JQuantsFetcher) FetchListed(ctx context.Context) ([]model.Security, error) {
	items, err := f.getPaginated(ctx, "listed/info", "info", url.Values{})
	if err != nil {
		return nil, err
	}
	out := make([]model.Security, 0, len(items))
	for _, raw := range items {
		var l jqListed
		if err := json.Unmarshal(raw, &l); err != nil {
			return nil, fmt.Errorf("decode listed/info: %w", err)
		}
		code, ok := model.NormalizeTicker(l.Code)
		if !ok {
			continue
		}
		out = append(out, model.Security{
			Code:     code,
			Name:     l.CompanyName,
			Sector17: l.Sector17CodeName,
			Sector33: l.Sector33CodeName,
			Market:   l.MarketCodeName,
			Currency: "JPY",
		})
	}
	return out, nil
}

func (f *JQuantsFetcher) FetchPrices(ctx context.Context, ticker string, r DateRange) ([]model.PriceBar, error) {
	params := url.Values{}
	params.Set("code", model.LocalCode(ticker))
	params.Set("from", r.From.Format("2006-01-02"))
	params.Set("to", r.To.Format("2006-01-02"))

	items, err := f.getPaginated(ctx, "prices/daily_quotes", "daily_quotes", params)
	if err != nil {
		return nil, f.classify(ticker, KindPrices, err)
	}
	bars := make([]model.PriceBar, 0, len(items))
	for _, raw := range items {
		var q jqQuote
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, &DataUnavailableError{Ticker: ticker, Kind: KindPrices, Err: fmt.Errorf("decode quote: %w", err)}
		}
		if q.Close == nil {
			continue // suspended or no trade
		}
		d, err := time.Parse("2006-01-02", q.Date)
		if err != nil {
			continue
		}
		bar := model.PriceBar{Date: d, Close: *q.Close}
		if q.AdjustmentClose != nil {
			bar.AdjClose = *q.AdjustmentClose
		}
		if q.Volume != nil {
			bar.Volume = *q.Volume
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func (f *JQuantsFetcher) FetchStatements(ctx context.Context, ticker string) ([]model.FundamentalSnapshot, error) {
	params := url.Values{}
	params.Set("code", model.LocalCode(ticker))
	items, err := f.getPaginated(ctx, "fins/statements", "statements", params)
	if err != nil {
		return nil, f.classify(ticker, KindFundamentals, err)
	}
	stmts := make([]jqStatement, 0, len(items))
	for _, raw := range items {
		var s jqStatement
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &DataUnavailableError{Ticker: ticker, Kind: KindFundamentals, Err: fmt.Errorf("decode statement: %w", err)}
		}
		stmts = append(stmts, s)
	}
	return normalizeStatements(stmts), nil
}

// FetchQuotesOn pulls the whole market's daily_quotes for one date. An
// empty map means the exchange did not trade that day.
func (f *JQuantsFetcher) FetchQuotesOn(ctx context.Context, date time.Time) (map[string]model.PriceBar, error) {
	params := url.Values{}
	params.Set("date", date.Format("2006-01-02"))
	items, err := f.getPaginated(ctx, "prices/daily_quotes", "daily_quotes", params)
	if err != nil {
		return nil, f.classifyBulk(kindQuotes, err)
	}
	out := make(map[string]model.PriceBar, len(items))
	for _, raw := range items {
		var q jqQuote
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, &DataUnavailableError{Ticker: "*", Kind: kindQuotes, Err: fmt.Errorf("decode quote: %w", err)}
		}
		code, ok := model.NormalizeTicker(q.Code)
		if !ok || q.Close == nil {
			continue
		}
		bar := model.PriceBar{Date: date, Close: *q.Close}
		if q.AdjustmentClose != nil {
			bar.AdjClose = *q.AdjustmentClose
		}
		if q.Volume != nil {
			bar.Volume = *q.Volume
		}
		out[code] = bar
	}
	return out, nil
}

// FetchStatementsOn pulls every disclosure published on date.
func (f *JQuantsFetcher) FetchStatementsOn(ctx context.Context, date time.Time) (map[string][]model.FundamentalSnapshot, error) {
	params := url.Values{}
	params.Set("date", date.Format("2006-01-02"))
	items, err := f.getPaginated(ctx, "fins/statements", "statements", params)
	if err != nil {
		return nil, f.classifyBulk(kindDisclosures, err)
	}
	byCode := make(map[string][]jqStatement)
	for _, raw := range items {
		var s jqStatement
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &DataUnavailableError{Ticker: "*", Kind: kindDisclosures, Err: fmt.Errorf("decode statement: %w", err)}
		}
		code, ok := model.NormalizeTicker(s.LocalCode)
		if !ok {
			continue
		}
		byCode[code] = append(byCode[code], s)
	}
	out := make(map[string][]model.FundamentalSnapshot, len(byCode))
	for code, stmts := range byCode {
		out[code] = normalizeStatements(stmts)
	}
	return out, nil
}

func (f *JQuantsFetcher) getPaginated(ctx context.Context, endpoint, key string, params url.Values) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for {
		body, err := f.get(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		var page map[string]json.RawMessage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("%s decode: %w", endpoint, err)
		}
		if raw, ok := page[key]; ok {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("%s decode %s: %w", endpoint, key, err)
			}
			out = append(out, items...)
		}
		var next string
		if raw, ok := page["pagination_key"]; ok {
			_ = json.Unmarshal(raw, &next)
		}
		if next == "" {
			return out, nil
		}
		params.Set("pagination_key", next)
	}
}

// get issues one authenticated GET. A 401 invalidates the token and the
// request is re-issued once with a fresh one.
func (f *JQuantsFetcher) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u := f.BaseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	for attempt := 0; attempt < 2; attempt++ {
		var used string
		var body []byte
		err := f.Retry.Do(ctx, f.Clock, func(ctx context.Context) error {
			if err := f.Limiter.Wait(ctx); err != nil {
				return err
			}
			tok, err := f.Tokens.Token(ctx)
			if err != nil {
				return err
			}
			used = tok
			body, err = f.do(ctx, endpoint, u, tok)
			return err
		})
		var se *infra.StatusError
		if errors.As(err, &se) && se.Status == http.StatusUnauthorized {
			f.Tokens.Invalidate(used)
			continue
		}
		return body, err
	}
	return nil, &session.AuthenticationError{Step: endpoint, Status: http.StatusUnauthorized, Detail: "id token rejected after refresh"}
}

func (f *JQuantsFetcher) do(ctx context.Context, endpoint, u, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jquants %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("jquants %s read body: %w", endpoint, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &infra.StatusError{
			Status:     resp.StatusCode,
			Endpoint:   endpoint,
			Body:       body,
			RetryAfter: infra.ParseRetryAfter(resp.Header),
		}
	}
	return body, nil
}

// classify maps a request failure to the per-ticker error taxonomy.
func (f *JQuantsFetcher) classify(ticker string, kind Kind, err error) error {
	var ae *session.AuthenticationError
	if errors.As(err, &ae) {
		return err
	}
	var se *infra.StatusError
	if errors.As(err, &se) && !se.Transient() && se.Status >= 400 && se.Status < 500 {
		msg := apiMessage(se.Body)
		if se.Status == http.StatusBadRequest {
			if from, to, ok := coveredDates(msg); ok {
				return &SubscriptionWindowError{From: from, To: to, Message: msg}
			}
		}
		return &InvalidTickerError{Ticker: ticker, Status: se.Status, Detail: msg}
	}
	return &DataUnavailableError{Ticker: ticker, Kind: kind, Err: err}
}

// classifyBulk is classify for market-wide requests, where a 4xx other
// than a subscription window says nothing about any one ticker.
func (f *JQuantsFetcher) classifyBulk(kind Kind, err error) error {
	err = f.classify("*", kind, err)
	var ite *InvalidTickerError
	if errors.As(err, &ite) {
		return &DataUnavailableError{Ticker: "*", Kind: kind, Err: fmt.Errorf("status %d: %s", ite.Status, ite.Detail)}
	}
	return err
}

var coveredRe = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*~\s*(\d{4}-\d{2}-\d{2})`)

// coveredDates extracts the span from "Your subscription covers the following dates: X ~ Y".
func coveredDates(msg string) (time.Time, time.Time, bool) {
	if !strings.Contains(msg, "covers the following dates") {
		return time.Time{}, time.Time{}, false
	}
	m := coveredRe.FindStringSubmatch(msg)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	from, err1 := time.Parse("2006-01-02", m[1])
	to, err2 := time.Parse("2006-01-02", m[2])
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func apiMessage(body []byte) string {
	var v interface{}
	if err := json.Unmarshal(body, &v); err == nil {
		if msg, err := jsonpath.Get("$.message", v); err == nil {
			if s, ok := msg.(string); ok {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}
