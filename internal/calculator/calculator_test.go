package calculator

import (
	"testing"
	"time"

	"DividendSentinel/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestCalculate52WeekRange(t *testing.T) {
	bars := []model.PriceBar{
		{Date: date(2024, 1, 5), Close: 9000},
		{Date: date(2024, 7, 1), Close: 2000},
		{Date: date(2025, 1, 6), Close: 3000},
		{Date: date(2025, 6, 6), Close: 2500, AdjClose: 2400},
	}
	high, low, err := Calculate52WeekRange(bars)
	require.NoError(t, err)
	assert.Equal(t, 3000.0, high)
	assert.Equal(t, 2000.0, low, "bar older than a year is ignored")

	pos, err := Calculate52WeekPosition(2400, high, low)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, pos, 1e-9)

	_, _, err = Calculate52WeekRange(nil)
	assert.Error(t, err)
}

func TestValuationRatios(t *testing.T) {
	pe, err := CalculatePE(2000, model.Some(200))
	require.NoError(t, err)
	assert.Equal(t, 10.0, pe)

	_, err = CalculatePE(2000, model.Some(-50))
	assert.ErrorIs(t, err, ErrUndefinedRatio, "loss-making P/E must not look cheap")
	_, err = CalculatePE(2000, model.Num{})
	assert.ErrorIs(t, err, ErrUndefinedRatio)

	pb, err := CalculatePB(1500, model.Some(1500))
	require.NoError(t, err)
	assert.Equal(t, 1.0, pb)

	y, err := CalculateYield(75, 2500)
	require.NoError(t, err)
	assert.InDelta(t, 0.03, y, 1e-12)
}

func TestConsecutiveRunAndCuts(t *testing.T) {
	annual := AnnualDividends([]model.DividendRecord{
		{FiscalYear: 2017, Amount: 30},
		{FiscalYear: 2019, Amount: 40},
		{FiscalYear: 2020, Amount: 20},
		{FiscalYear: 2020, Amount: 22}, // interim + final of the same year
		{FiscalYear: 2021, Amount: 40},
		{FiscalYear: 2022, Amount: 45},
		{FiscalYear: 2023, Amount: 50},
	})
	require.Len(t, annual, 6)
	assert.Equal(t, 42.0, annual[2].Amount)

	run := ConsecutiveRun(annual, 0)
	require.Len(t, run, 5)
	assert.Equal(t, 2019, run[0].FiscalYear)
	assert.Equal(t, 1, CountCuts(run))

	capped := ConsecutiveRun(annual, 3)
	require.Len(t, capped, 3)
	assert.Equal(t, 2021, capped[0].FiscalYear)

	cagr, err := DividendCAGR(capped)
	require.NoError(t, err)
	assert.InDelta(t, 0.118034, cagr, 1e-6)
}

func TestCalculateCAGR(t *testing.T) {
	g, err := CalculateCAGR(100, 121, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, g, 1e-12)

	g, err = CalculateCAGR(100, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, -1.0, g)

	_, err = CalculateCAGR(0, 10, 3)
	assert.Error(t, err)
}

func TestTrailingDPS(t *testing.T) {
	asOf := date(2025, 6, 6)
	annual := []AnnualDividend{
		{FiscalYear: 2023, ExDate: date(2023, 3, 31), Amount: 60},
		{FiscalYear: 2024, ExDate: date(2024, 3, 31), Amount: 75},
	}
	assert.Equal(t, model.Some(75), TrailingDPS(annual, nil, asOf))

	stale := annual[:1]
	snaps := []model.FundamentalSnapshot{
		{Period: model.PeriodFY, FiscalYearEnd: date(2025, 3, 31), ForecastDPS: model.Some(80)},
	}
	assert.Equal(t, model.Some(80), TrailingDPS(stale, snaps, asOf))
	assert.False(t, TrailingDPS(stale, nil, asOf).Valid)
}

func TestLatestValuePrefersNewestAuthoritativePeriod(t *testing.T) {
	snaps := []model.FundamentalSnapshot{
		{Period: model.PeriodFY, FiscalYearEnd: date(2024, 3, 31), BPS: model.Some(2000)},
		{Period: model.Period1Q, FiscalYearEnd: date(2025, 3, 31), BPS: model.Some(2100)},
		{Period: model.Period2Q, FiscalYearEnd: date(2025, 3, 31), BPS: model.Some(2200)},
		{Period: model.Period3Q, FiscalYearEnd: date(2025, 3, 31)},
	}
	bps := LatestValue(snaps, func(s model.FundamentalSnapshot) model.Num { return s.BPS })
	assert.Equal(t, model.Some(2200), bps)

	latest, ok := LatestAnnual(snaps)
	require.True(t, ok)
	assert.Equal(t, date(2024, 3, 31), latest.FiscalYearEnd)
}
