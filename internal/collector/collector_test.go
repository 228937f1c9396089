package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"DividendSentinel/internal/infra"
	"DividendSentinel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func mockData() *MockFetcher {
	return &MockFetcher{
		Securities: []model.Security{{Code: "7203", Name: "トヨタ自動車", Currency: "JPY"}, {Code: "9432", Name: "NTT", Currency: "JPY"}},
		Prices: map[string][]model.PriceBar{
			"7203": {{Date: day("2025-06-04"), Close: 2800}, {Date: day("2025-06-02"), Close: 2750}},
		},
		Statements: map[string][]model.FundamentalSnapshot{
			"7203": {
				{Period: "FY", FiscalYearEnd: day("2024-03-31"), DisclosedDate: day("2024-05-08"), DPS: model.Some(60)},
				{Period: "FY", FiscalYearEnd: day("2023-03-31"), DisclosedDate: day("2023-05-10"), DPS: model.Some(60)},
				{Period: "FY", FiscalYearEnd: day("2025-03-31"), DisclosedDate: day("2025-05-08"), DPS: model.Some(-1)},
				{Period: "2Q", FiscalYearEnd: day("2025-03-31"), DisclosedDate: day("2024-11-01"), DPS: model.Some(40)},
			},
		},
	}
}

func TestFetchSeries_PricesSortedAndCached(t *testing.T) {
	clock := infra.NewFakeClock(t0)
	m := mockData()
	c := NewClient(m, nil, DefaultFreshness(), clock)
	r := rangeOf("2025-06-01", "2025-06-06")

	s, err := c.FetchSeries(context.Background(), "7203.T", KindPrices, r)
	require.NoError(t, err)
	require.Len(t, s.Prices.Bars, 2)
	assert.Equal(t, day("2025-06-04"), s.Prices.AsOf())

	_, err = c.FetchSeries(context.Background(), "7203", KindPrices, r)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Calls("7203"), "second call must be served from cache")

	clock.Advance(2 * 24 * time.Hour) // Sunday: no trading day crossed
	_, err = c.FetchSeries(context.Background(), "7203", KindPrices, r)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Calls("7203"))

	clock.Advance(24 * time.Hour) // Monday
	_, err = c.FetchSeries(context.Background(), "7203", KindPrices, r)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Calls("7203"))
}

func TestFetchSeries_DividendsAndFundamentalsShareStatements(t *testing.T) {
	m := mockData()
	c := NewClient(m, nil, DefaultFreshness(), infra.NewFakeClock(t0))
	r := rangeOf("2020-01-01", "2025-06-06")

	div, err := c.FetchSeries(context.Background(), "7203", KindDividends, r)
	require.NoError(t, err)
	require.Len(t, div.Dividends, 2, "negative and interim dividends are excluded")
	assert.Equal(t, 2023, div.Dividends[0].FiscalYear)
	assert.Equal(t, 2024, div.Dividends[1].FiscalYear)

	fund, err := c.FetchSeries(context.Background(), "7203", KindFundamentals, r)
	require.NoError(t, err)
	require.Len(t, fund.Fundamentals, 4)
	assert.Equal(t, day("2023-03-31"), fund.Fundamentals[0].FiscalYearEnd)
	assert.Equal(t, 1, m.Calls("7203"))
}

func TestFetchSeries_RejectsBadInput(t *testing.T) {
	m := mockData()
	c := NewClient(m, nil, DefaultFreshness(), infra.NewFakeClock(t0))

	_, err := c.FetchSeries(context.Background(), "7203", KindPrices, rangeOf("2025-06-01", "2025-06-09"))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = c.FetchSeries(context.Background(), "7203", KindPrices, rangeOf("2025-06-05", "2025-06-01"))
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = c.FetchSeries(context.Background(), "1301", KindPrices, rangeOf("2025-06-01", "2025-06-05"))
	var ite *InvalidTickerError
	require.ErrorAs(t, err, &ite)
	assert.Zero(t, m.Calls("1301"), "unlisted ticker must not reach the API")

	_, err = c.FetchSeries(context.Background(), "XXXX", KindPrices, rangeOf("2025-06-01", "2025-06-05"))
	require.ErrorAs(t, err, &ite)
}

func TestFetchSeries_WrapsUnknownFailures(t *testing.T) {
	m := mockData()
	m.Errors = map[string]error{"9432": errors.New("connection reset")}
	c := NewClient(m, nil, DefaultFreshness(), infra.NewFakeClock(t0))

	_, err := c.FetchSeries(context.Background(), "9432", KindFundamentals, rangeOf("2020-01-01", "2025-06-05"))
	var due *DataUnavailableError
	require.ErrorAs(t, err, &due)
	assert.Equal(t, KindFundamentals, due.Kind)
}

func TestSecurities_ReloadedWhenStale(t *testing.T) {
	clock := infra.NewFakeClock(t0)
	m := mockData()
	c := NewClient(m, nil, DefaultFreshness(), clock)
	ctx := context.Background()

	require.Len(t, c.Securities(ctx), 2)
	clock.Advance(24 * time.Hour)
	c.Securities(ctx)
	assert.Equal(t, 1, m.Calls("*"), "fresh list is reused")

	m.Securities = append(m.Securities, model.Security{Code: "402A", Name: "new listing", Currency: "JPY"})
	clock.Advance(30 * 24 * time.Hour)
	_, ok := c.Security(ctx, "402A")
	assert.True(t, ok)
	assert.Equal(t, 2, m.Calls("*"))
}

func TestSecurities_FailedLoadIsRetried(t *testing.T) {
	clock := infra.NewFakeClock(t0)
	m := mockData()
	m.Errors = map[string]error{"*": errors.New("connection reset")}
	c := NewClient(m, nil, DefaultFreshness(), clock)
	ctx := context.Background()

	assert.Empty(t, c.Securities(ctx), "validation is skipped while the list is unavailable")
	c.Securities(ctx)
	assert.Equal(t, 1, m.Calls("*"), "no reload storm right after a failure")

	m.Errors = nil
	clock.Advance(2 * time.Minute)
	assert.Len(t, c.Securities(ctx), 2)
	assert.Equal(t, 2, m.Calls("*"))
}

func TestSecurities_LoadSurvivesCallerDeadline(t *testing.T) {
	m := mockData()
	c := NewClient(m, nil, DefaultFreshness(), infra.NewFakeClock(t0))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Len(t, c.Securities(ctx), 2)
}

type windowFetcher struct {
	MockFetcher
	ranges []DateRange
}

func (w *windowFetcher) FetchPrices(ctx context.Context, ticker string, r DateRange) ([]model.PriceBar, error) {
	w.ranges = append(w.ranges, r)
	if r.To.After(day("2025-03-01")) {
		return nil, &SubscriptionWindowError{From: day("2023-03-01"), To: day("2025-03-01")}
	}
	return []model.PriceBar{{Date: day("2025-02-28"), Close: 2500}}, nil
}

func TestFetchSeries_ClampsToSubscriptionWindow(t *testing.T) {
	w := &windowFetcher{}
	c := NewClient(w, nil, DefaultFreshness(), infra.NewFakeClock(t0))

	s, err := c.FetchSeries(context.Background(), "7203", KindPrices, rangeOf("2025-01-01", "2025-06-05"))
	require.NoError(t, err)
	require.Len(t, w.ranges, 2)
	assert.Equal(t, day("2025-03-01"), w.ranges[1].To)
	require.Len(t, s.Notices, 1)
	assert.Contains(t, s.Notices[0], "subscription window")
	assert.Len(t, s.Prices.Bars, 1)
}

func TestFreshness(t *testing.T) {
	f := DefaultFreshness()
	fri := time.Date(2025, 6, 6, 16, 0, 0, 0, JST)
	assert.True(t, f.Fresh(KindPrices, fri, fri.Add(3*time.Hour)))
	assert.True(t, f.Fresh(KindPrices, fri, fri.Add(48*time.Hour)))
	assert.False(t, f.Fresh(KindPrices, fri, fri.Add(72*time.Hour)))
	assert.True(t, f.Fresh(KindFundamentals, fri, fri.Add(6*24*time.Hour)))
	assert.False(t, f.Fresh(KindFundamentals, fri, fri.Add(8*24*time.Hour)))
}
