package collector

import (
	"context"
	"sync"
	"time"

	"DividendSentinel/internal/model"
)

// Fetcher defines the interface for fetching raw market data.
type Fetcher interface {
	FetchListed(ctx context.Context) ([]model.Security, error)
	FetchPrices(ctx context.Context, ticker string, r DateRange) ([]model.PriceBar, error)
	FetchStatements(ctx context.Context, ticker string) ([]model.FundamentalSnapshot, error)
	// FetchQuotesOn returns every listed code's bar for one trading date.
	FetchQuotesOn(ctx context.Context, date time.Time) (map[string]model.PriceBar, error)
	// FetchStatementsOn returns the disclosures published on date, by code.
	FetchStatementsOn(ctx context.Context, date time.Time) (map[string][]model.FundamentalSnapshot, error)
	Name() string
}

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Securities []model.Security
	Prices     map[string][]model.PriceBar
	Statements map[string][]model.FundamentalSnapshot
	// Quotes and Disclosures are keyed by "2006-01-02" date, then code.
	Quotes      map[string]map[string]model.PriceBar
	Disclosures map[string]map[string][]model.FundamentalSnapshot
	// Errors is keyed by ticker, "*" for the listed universe, or
	// "quotes 2006-01-02" and "statements 2006-01-02" for bulk requests.
	Errors map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

// Calls returns how often ticker (or a bulk key) was requested, for any kind.
func (m *MockFetcher) Calls(ticker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[ticker]
}

func (m *MockFetcher) record(ticker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[ticker]++
	return m.Errors[ticker]
}

func (m *MockFetcher) FetchListed(_ context.Context) ([]model.Security, error) {
	if err := m.record("*"); err != nil {
		return nil, err
	}
	return m.Securities, nil
}

func (m *MockFetcher) FetchPrices(_ context.Context, ticker string, r DateRange) ([]model.PriceBar, error) {
	if err := m.record(ticker); err != nil {
		return nil, err
	}
	var out []model.PriceBar
	for _, b := range m.Prices[ticker] {
		if !b.Date.Before(r.From) && !b.Date.After(r.To) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *MockFetcher) FetchStatements(_ context.Context, ticker string) ([]model.FundamentalSnapshot, error) {
	if err := m.record(ticker); err != nil {
		return nil, err
	}
	return m.Statements[ticker], nil
}

func (m *MockFetcher) FetchQuotesOn(_ context.Context, date time.Time) (map[string]model.PriceBar, error) {
	d := date.Format("2006-01-02")
	if err := m.record("quotes " + d); err != nil {
		return nil, err
	}
	return m.Quotes[d], nil
}

func (m *MockFetcher) FetchStatementsOn(_ context.Context, date time.Time) (map[string][]model.FundamentalSnapshot, error) {
	d := date.Format("2006-01-02")
	if err := m.record("statements " + d); err != nil {
		return nil, err
	}
	return m.Disclosures[d], nil
}
