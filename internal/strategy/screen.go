package strategy

import (
	"fmt"
	"regexp"
	"sort"

	"DividendSentinel/internal/calculator"
	"DividendSentinel/internal/model"
)

// screen applies the dividend value screen. It is informational and does
// not change the decision.
func screen(m model.Metrics, dividends []model.DividendRecord, cfg ScreenConfig) model.ScreenResult {
	var reasons []string
	switch {
	case !m.PB.Valid:
		reasons = append(reasons, "P/B unavailable")
	case m.PB.V > cfg.PBRMax:
		reasons = append(reasons, fmt.Sprintf("P/B %.2f above %.2f", m.PB.V, cfg.PBRMax))
	}
	switch {
	case !m.TrailingYield.Valid:
		reasons = append(reasons, "yield unavailable")
	case m.TrailingYield.V < cfg.YieldMin:
		reasons = append(reasons, fmt.Sprintf("yield %.2f%% below %.2f%%", m.TrailingYield.V*100, cfg.YieldMin*100))
	}
	switch {
	case !m.MarketCap.Valid:
		reasons = append(reasons, "market cap unavailable")
	case m.MarketCap.V < cfg.MarketCapMin:
		reasons = append(reasons, fmt.Sprintf("market cap ¥%.1fbn below ¥%.1fbn", m.MarketCap.V/1e9, cfg.MarketCapMin/1e9))
	}
	if cfg.NoCutYears > 0 {
		annual := calculator.AnnualDividends(dividends)
		if len(annual) > cfg.NoCutYears+1 {
			annual = annual[len(annual)-cfg.NoCutYears-1:]
		}
		if cuts := calculator.CountCuts(annual); cuts > 0 {
			reasons = append(reasons, fmt.Sprintf("dividend cut within %d years", cfg.NoCutYears))
		}
	}
	return model.ScreenResult{Passed: len(reasons) == 0, Reasons: reasons}
}

// Candidate is a code that passed the market-wide screen.
type Candidate struct {
	Ticker    string
	Price     float64
	PB        float64
	Yield     float64
	MarketCap float64
}

var ordinaryShare = regexp.MustCompile(`^\d{4}$`)

// ScreenMarket applies the price based thresholds of cfg to each code's
// latest quote and disclosure. Dividends are the reported result, else the
// forecast. The dividend-cut rule needs history and is left to the full
// score. Candidates are ordered by yield, highest first.
func ScreenMarket(quotes map[string]model.PriceBar, latest map[string]model.FundamentalSnapshot, cfg ScreenConfig) []Candidate {
	var out []Candidate
	for code, q := range quotes {
		s, ok := latest[code]
		if !ok || !ordinaryShare.MatchString(code) || q.Close <= 0 {
			continue
		}
		dps := s.DPS
		if !dps.Valid {
			dps = s.ForecastDPS
		}
		if !dps.Valid || !s.BPS.Valid || s.BPS.V <= 0 || !s.SharesIssued.Valid {
			continue
		}
		c := Candidate{
			Ticker:    code,
			Price:     q.Close,
			PB:        q.Close / s.BPS.V,
			Yield:     dps.V / q.Close,
			MarketCap: s.SharesIssued.V * q.Close,
		}
		if c.PB > cfg.PBRMax || c.Yield < cfg.YieldMin || c.MarketCap < cfg.MarketCapMin {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Yield != out[j].Yield {
			return out[i].Yield > out[j].Yield
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}
