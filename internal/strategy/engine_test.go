package strategy

import (
	"testing"
	"time"

	"DividendSentinel/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fyEnd(year int) time.Time { return time.Date(year, 3, 31, 0, 0, 0, 0, time.UTC) }

// healthyInput is a cheap, growing, well-covered dividend payer.
func healthyInput() Input {
	var bars []model.PriceBar
	for d := 0; d < 30; d++ {
		bars = append(bars, model.PriceBar{Date: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d), Close: 1900 + float64(d)*10/3})
	}
	bars = append(bars, model.PriceBar{Date: time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC), Close: 2000})

	var divs []model.DividendRecord
	for i, amt := range []float64{40, 44, 48, 53, 58} {
		y := 2021 + i
		divs = append(divs, model.DividendRecord{ExDate: fyEnd(y), FiscalYear: y, Amount: amt, Currency: "JPY"})
	}

	var snaps []model.FundamentalSnapshot
	for i, y := range []int{2023, 2024, 2025} {
		snaps = append(snaps, model.FundamentalSnapshot{
			Period:        model.PeriodFY,
			FiscalYearEnd: fyEnd(y),
			DisclosedDate: time.Date(y, 5, 10, 0, 0, 0, 0, time.UTC),
			NetIncome:     model.Some(200e9),
			Equity:        model.Some(1e12 + float64(i)*1e11),
			OperatingCF:   model.Some(300e9),
			InvestingCF:   model.Some(-100e9),
			PayoutRatio:   model.Some(0.3),
			EPS:           model.Some(200),
			BPS:           model.Some(2000),
			DPS:           model.Some(58),
			SharesIssued:  model.Some(1e9),
		})
	}
	return Input{
		Security:     model.Security{Code: "8058", Name: "Mitsubishi Corp", Currency: "JPY"},
		Prices:       model.NewPriceSeries("8058", bars, model.DefaultMaxCalendarGap),
		Dividends:    divs,
		Fundamentals: snaps,
	}
}

// weakInput is expensive with a negative free cash flow and a recent cut.
func weakInput() Input {
	in := healthyInput()
	for i := range in.Fundamentals {
		in.Fundamentals[i].EPS = model.Some(40)
		in.Fundamentals[i].BPS = model.Some(500)
		in.Fundamentals[i].InvestingCF = model.Some(-500e9)
	}
	in.Dividends[4].Amount = 30
	return in
}

func TestScore_HealthyCandidateIsBuy(t *testing.T) {
	s := Score(healthyInput(), DefaultConfig())

	require.True(t, s.Complete, "issues: %v", s.Issues)
	assert.True(t, s.Value.Defined)
	assert.True(t, s.Dividend.Defined)
	assert.True(t, s.Health.Defined)
	assert.InDelta(t, 10.0, s.Metrics.PE.V, 1e-9)
	assert.InDelta(t, 1.0, s.Metrics.PB.V, 1e-9)
	assert.InDelta(t, 0.029, s.Metrics.TrailingYield.V, 1e-9)
	assert.InDelta(t, 2e12, s.Metrics.MarketCap.V, 1)
	assert.InDelta(t, 1.0, s.Health.Value, 1e-9)
	assert.Greater(t, s.Composite, 0.9)
	assert.Equal(t, model.DecisionBuy, s.Decision)
	assert.True(t, s.Screen.Passed, "reasons: %v", s.Screen.Reasons)
}

func TestScore_Deterministic(t *testing.T) {
	a := Score(healthyInput(), DefaultConfig())
	b := Score(healthyInput(), DefaultConfig())
	assert.Equal(t, a, b)

	shuffled := healthyInput()
	f := shuffled.Fundamentals
	f[0], f[2] = f[2], f[0]
	d := shuffled.Dividends
	d[0], d[3] = d[3], d[0]
	c := Score(shuffled, DefaultConfig())
	assert.Equal(t, a.Composite, c.Composite)
	assert.Equal(t, a.Decision, c.Decision)
	assert.Equal(t, fyEnd(2025), shuffled.Fundamentals[0].FiscalYearEnd, "input must not be reordered")
}

func TestScore_ShortDividendHistoryIsUndefined(t *testing.T) {
	in := healthyInput()
	in.Dividends = in.Dividends[3:]

	s := Score(in, DefaultConfig())
	assert.False(t, s.Dividend.Defined)
	assert.False(t, s.Metrics.DividendCAGR.Valid)
	assert.False(t, s.Complete)
	assert.Equal(t, model.DecisionWatch, s.Decision)

	in.Holding = &HoldingContext{Quantity: decimal.NewFromInt(100), Weight: model.Some(0.05)}
	assert.Equal(t, model.DecisionHold, Score(in, DefaultConfig()).Decision)
}

func TestScore_GapInDividendsRestartsRun(t *testing.T) {
	in := healthyInput()
	in.Dividends = append(in.Dividends[:2:2], in.Dividends[3:]...) // FY2023 missing
	s := Score(in, DefaultConfig())
	assert.False(t, s.Dividend.Defined, "two consecutive years after the gap are not enough")
}

func TestScore_WeakCompanyOnlySoldWhenHeld(t *testing.T) {
	s := Score(weakInput(), DefaultConfig())
	require.True(t, s.Complete, "issues: %v", s.Issues)
	assert.LessOrEqual(t, s.Health.Value, 0.2)
	assert.Less(t, s.Composite, DefaultConfig().Thresholds.Sell)
	assert.Equal(t, model.DecisionPass, s.Decision)
	assert.False(t, s.Screen.Passed)

	held := weakInput()
	held.Holding = &HoldingContext{Quantity: decimal.NewFromInt(100), Weight: model.Some(0.02)}
	assert.Equal(t, model.DecisionSell, Score(held, DefaultConfig()).Decision)
}

func TestScore_OverweightHoldingIsHeldNotBought(t *testing.T) {
	in := healthyInput()
	in.Holding = &HoldingContext{Quantity: decimal.NewFromInt(1000), Weight: model.Some(0.25)}
	assert.Equal(t, model.DecisionHold, Score(in, DefaultConfig()).Decision)

	in.Holding.Weight = model.Some(0.05)
	assert.Equal(t, model.DecisionBuy, Score(in, DefaultConfig()).Decision)
}

func TestScore_LossMakesPEUndefined(t *testing.T) {
	in := healthyInput()
	for i := range in.Fundamentals {
		in.Fundamentals[i].EPS = model.Some(-15)
	}
	s := Score(in, DefaultConfig())
	assert.False(t, s.Metrics.PE.Valid)
	require.True(t, s.Value.Defined)
	require.Len(t, s.Value.Factors, 1)
	assert.Equal(t, "P/B", s.Value.Factors[0].Name)
}

func TestScore_UpstreamIssueBlocksBuyAndSell(t *testing.T) {
	in := healthyInput()
	in.Issues = []string{"fundamentals: data unavailable"}
	s := Score(in, DefaultConfig())
	assert.False(t, s.Complete)
	assert.Equal(t, model.DecisionWatch, s.Decision)

	w := weakInput()
	w.Issues = []string{"prices: data unavailable"}
	w.Holding = &HoldingContext{Quantity: decimal.NewFromInt(100)}
	assert.Equal(t, model.DecisionHold, Score(w, DefaultConfig()).Decision)
}

func TestScore_NoPricesIsIncomplete(t *testing.T) {
	in := healthyInput()
	in.Prices = model.PriceSeries{Ticker: "8058"}
	s := Score(in, DefaultConfig())
	assert.False(t, s.Complete)
	assert.False(t, s.Value.Defined)
	assert.Contains(t, s.Issues, "no price data")
}

func TestPayoutMultiplier(t *testing.T) {
	cfg := DefaultConfig()
	mk := func(p ...float64) []model.FundamentalSnapshot {
		var out []model.FundamentalSnapshot
		for _, v := range p {
			out = append(out, model.FundamentalSnapshot{Period: model.PeriodFY, PayoutRatio: model.Some(v)})
		}
		return out
	}
	m, _ := payoutMultiplier(mk(0.3, 0.3, 0.35), cfg)
	assert.Equal(t, 1.0, m)
	m, _ = payoutMultiplier(mk(0.5, 0.6, 0.7), cfg)
	assert.InDelta(t, 0.85, m, 1e-9)
	m, _ = payoutMultiplier(mk(0.8, 0.82, 0.85), cfg)
	assert.InDelta(t, 0.7, m, 1e-9)
	m, _ = payoutMultiplier(mk(0.9, 1.05, 1.2), cfg)
	assert.InDelta(t, 0.3*0.85, m, 1e-9)
}

func TestDecide(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		name      string
		composite float64
		held      bool
		weight    model.Num
		complete  bool
		want      model.Decision
	}{
		{"strong candidate", 0.70, false, model.Num{}, true, model.DecisionBuy},
		{"mid candidate", 0.50, false, model.Num{}, true, model.DecisionWatch},
		{"weak candidate", 0.20, false, model.Num{}, true, model.DecisionPass},
		{"strong holding under target", 0.70, true, model.Some(0.05), true, model.DecisionBuy},
		{"strong holding over target", 0.70, true, model.Some(0.15), true, model.DecisionHold},
		{"mid holding", 0.40, true, model.Some(0.05), true, model.DecisionHold},
		{"weak holding", 0.34, true, model.Some(0.05), true, model.DecisionSell},
		{"incomplete strong candidate", 0.90, false, model.Num{}, false, model.DecisionWatch},
		{"incomplete weak holding", 0.10, true, model.Some(0.05), false, model.DecisionHold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := model.Score{Composite: tt.composite, Held: tt.held, Complete: tt.complete}
			s.Metrics.HoldingWeight = tt.weight
			assert.Equal(t, tt.want, decide(s, cfg))
		})
	}
}

func TestDecide_NeverSellsWhatIsNotHeld(t *testing.T) {
	cfg := DefaultConfig()
	for c := 0.0; c <= 1.0; c += 0.01 {
		for _, complete := range []bool{true, false} {
			s := model.Score{Composite: c, Complete: complete}
			assert.NotEqual(t, model.DecisionSell, decide(s, cfg), "composite %.2f", c)
		}
		held := model.Score{Composite: c, Complete: true, Held: true}
		if decide(held, cfg) == model.DecisionSell {
			assert.Less(t, c, cfg.Thresholds.Sell)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.Thresholds = Thresholds{Buy: 0.4, Watch: 0.5, Sell: 0.3}
	assert.Error(t, bad.Validate())

	assert.Equal(t, DefaultConfig(), Config{}.WithDefaults())

	noFloor := DefaultConfig()
	noFloor.HealthFloor = 0
	assert.NoError(t, noFloor.Validate())
	assert.Zero(t, noFloor.WithDefaults().HealthFloor, "an explicit zero is kept")
}
