package strategy

import (
	"DividendSentinel/internal/calculator"
	"DividendSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// HoldingContext describes how much of a ticker the investor already owns.
type HoldingContext struct {
	Quantity decimal.Decimal
	Weight   model.Num // share of portfolio market value
}

// Input is everything Score looks at. Issues are upstream problems, such as
// a failed fetch, that already make the score incomplete.
type Input struct {
	Security     model.Security
	Prices       model.PriceSeries
	Dividends    []model.DividendRecord
	Fundamentals []model.FundamentalSnapshot
	Holding      *HoldingContext
	Issues       []string
}

// Score evaluates one ticker. It is a pure function of its arguments: the
// as-of date comes from the price series, never from the clock.
func Score(in Input, cfg Config) model.Score {
	cfg = cfg.WithDefaults()

	ticker := in.Security.Code
	if ticker == "" {
		ticker = in.Prices.Ticker
	}
	s := model.Score{
		Ticker:   ticker,
		Security: in.Security,
		Held:     in.Holding != nil,
		Issues:   append([]string(nil), in.Issues...),
	}

	snaps := make([]model.FundamentalSnapshot, len(in.Fundamentals))
	copy(snaps, in.Fundamentals)
	annual := calculator.AnnualSnapshots(snaps)

	s.Metrics = metrics(in, snaps, annual)
	if !s.Metrics.Price.Valid {
		s.Issues = append(s.Issues, "no price data")
	}

	s.Value = scoreValue(s.Metrics, cfg)
	s.Dividend, s.Metrics.DividendCAGR = scoreDividend(in.Dividends, annual, cfg)
	s.Health = scoreHealth(annual)

	for _, sub := range []model.SubScore{s.Value, s.Dividend, s.Health} {
		if !sub.Defined {
			s.Issues = append(s.Issues, sub.Name+": "+sub.Note)
		}
	}
	s.Complete = len(s.Issues) == 0
	s.Composite = composite(s.Value, s.Dividend, s.Health, cfg)
	s.Decision = decide(s, cfg)
	s.Screen = screen(s.Metrics, in.Dividends, cfg.Screen)
	return s
}

func metrics(in Input, snaps, annual []model.FundamentalSnapshot) model.Metrics {
	var m model.Metrics
	if in.Holding != nil {
		m.HoldingWeight = in.Holding.Weight
	}
	m.PayoutRatio = calculator.LatestValue(annual, func(f model.FundamentalSnapshot) model.Num { return f.PayoutRatio })

	latest, ok := in.Prices.Latest()
	if !ok || latest.Price() <= 0 {
		return m
	}
	price := latest.Price()
	m.AsOf = latest.Date
	m.Price = model.Some(price)

	eps := calculator.LatestValue(annual, func(f model.FundamentalSnapshot) model.Num { return f.EPS })
	if pe, err := calculator.CalculatePE(price, eps); err == nil {
		m.PE = model.Some(pe)
	}
	bps := calculator.LatestValue(snaps, func(f model.FundamentalSnapshot) model.Num { return f.BPS })
	if pb, err := calculator.CalculatePB(price, bps); err == nil {
		m.PB = model.Some(pb)
	}
	dps := calculator.TrailingDPS(calculator.AnnualDividends(in.Dividends), snaps, latest.Date)
	if dps.Valid {
		if y, err := calculator.CalculateYield(dps.V, price); err == nil {
			m.TrailingYield = model.Some(y)
		}
	}
	shares := calculator.LatestValue(snaps, func(f model.FundamentalSnapshot) model.Num { return f.SharesIssued })
	if mc, err := calculator.CalculateMarketCap(price, shares); err == nil {
		m.MarketCap = model.Some(mc)
	}
	if high, low, err := calculator.Calculate52WeekRange(in.Prices.Bars); err == nil {
		if pos, err := calculator.Calculate52WeekPosition(price, high, low); err == nil {
			m.Range52w = model.Some(pos)
		}
	}
	return m
}

// composite is the weighted mean of the defined sub-scores, dampened by
// financial health.
func composite(value, dividend, health model.SubScore, cfg Config) float64 {
	parts := []struct {
		s model.SubScore
		w float64
	}{
		{value, cfg.Weights.Value},
		{dividend, cfg.Weights.Dividend},
		{health, cfg.Weights.Health},
	}
	sum, weights := 0.0, 0.0
	for _, p := range parts {
		if p.s.Defined {
			sum += p.s.Value * p.w
			weights += p.w
		}
	}
	if weights == 0 {
		return 0
	}
	c := sum / weights
	if health.Defined {
		c *= cfg.HealthFloor + (1-cfg.HealthFloor)*health.Value
	}
	return clamp01(c)
}

// decide maps a score to its label. Incomplete scores never get BUY or SELL
// and only held tickers can be sold.
func decide(s model.Score, cfg Config) model.Decision {
	t := cfg.Thresholds
	if !s.Complete {
		if s.Held {
			return model.DecisionHold
		}
		return model.DecisionWatch
	}
	overweight := s.Held && s.Metrics.HoldingWeight.Valid && s.Metrics.HoldingWeight.V > cfg.TargetWeight
	switch {
	case s.Held && s.Composite < t.Sell:
		return model.DecisionSell
	case s.Composite >= t.Buy && !overweight:
		return model.DecisionBuy
	case s.Held:
		return model.DecisionHold
	case s.Composite >= t.Watch:
		return model.DecisionWatch
	}
	return model.DecisionPass
}
