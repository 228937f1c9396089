package strategy

import (
	"fmt"
	"math"
	"strings"

	"DividendSentinel/internal/calculator"
	"DividendSentinel/internal/model"
)

// scoreValue averages the band scores of the defined valuation ratios.
func scoreValue(m model.Metrics, cfg Config) model.SubScore {
	var factors []model.FactorScore
	if m.PE.Valid {
		factors = append(factors, model.FactorScore{
			Name:       "P/E",
			RawScore:   cfg.PE.Apply(m.PE.V),
			Commentary: fmt.Sprintf("P/E %.1f (band %.0f-%.0f)", m.PE.V, cfg.PE.Best, cfg.PE.Worst),
		})
	}
	if m.PB.Valid {
		factors = append(factors, model.FactorScore{
			Name:       "P/B",
			RawScore:   cfg.PB.Apply(m.PB.V),
			Commentary: fmt.Sprintf("P/B %.2f (band %.1f-%.1f)", m.PB.V, cfg.PB.Best, cfg.PB.Worst),
		})
	}
	if len(factors) == 0 {
		return model.SubScore{Name: "value", Note: "P/E and P/B undefined"}
	}
	return mean("value", factors)
}

func mean(name string, factors []model.FactorScore) model.SubScore {
	w := 1 / float64(len(factors))
	sum := 0.0
	for i := range factors {
		factors[i].Weight = w
		factors[i].Weighted = factors[i].RawScore * w
		sum += factors[i].Weighted
	}
	return model.SubScore{Name: name, Value: clamp01(sum), Defined: true, Factors: factors}
}

// growthRun is the latest consecutive dividend run, starting at the first
// positive payment so that a newly initiated dividend has a defined CAGR.
func growthRun(records []model.DividendRecord, maxYears int) []calculator.AnnualDividend {
	run := calculator.ConsecutiveRun(calculator.AnnualDividends(records), maxYears)
	for len(run) > 0 && run[0].Amount <= 0 {
		run = run[1:]
	}
	return run
}

// scoreDividend rates dividend growth from the CAGR of the consecutive run,
// minus a penalty per cut, scaled down by an unsustainable payout trend.
func scoreDividend(records []model.DividendRecord, annual []model.FundamentalSnapshot, cfg Config) (model.SubScore, model.Num) {
	run := growthRun(records, cfg.GrowthYears)
	if len(run) < MinDividendYears {
		return model.SubScore{
			Name: "dividend",
			Note: fmt.Sprintf("%d consecutive fiscal years of dividends, need %d", len(run), MinDividendYears),
		}, model.Num{}
	}
	cagr, err := calculator.DividendCAGR(run)
	if err != nil {
		return model.SubScore{Name: "dividend", Note: err.Error()}, model.Num{}
	}

	growth := cfg.CAGR.Apply(cagr)
	cuts := calculator.CountCuts(run)
	penalty := float64(cuts) * cfg.CutPenalty
	mult, payoutNote := payoutMultiplier(annual, cfg)

	factors := []model.FactorScore{
		{
			Name:       "dividend CAGR",
			RawScore:   growth,
			Weight:     1,
			Weighted:   growth,
			Commentary: fmt.Sprintf("%+.1f%%/yr over FY%d-FY%d", cagr*100, run[0].FiscalYear, run[len(run)-1].FiscalYear),
		},
		{
			Name:       "dividend cuts",
			RawScore:   -penalty,
			Weight:     1,
			Weighted:   -penalty,
			Commentary: fmt.Sprintf("%d cut(s)", cuts),
		},
		{
			Name:       "payout trend",
			RawScore:   mult,
			Commentary: payoutNote,
		},
	}
	return model.SubScore{
		Name:    "dividend",
		Value:   clamp01((growth - penalty) * mult),
		Defined: true,
		Factors: factors,
	}, model.Some(cagr)
}

// payoutMultiplier penalizes payout ratios at or past 100% and ones rising
// quickly from an already high level.
func payoutMultiplier(annual []model.FundamentalSnapshot, cfg Config) (float64, string) {
	var payouts []float64
	for _, s := range annual {
		if s.PayoutRatio.Valid {
			payouts = append(payouts, s.PayoutRatio.V)
		}
	}
	if len(payouts) > 3 {
		payouts = payouts[len(payouts)-3:]
	}
	if len(payouts) == 0 {
		return 1, "payout ratio unavailable"
	}
	latest := payouts[len(payouts)-1]
	mult := 1.0
	note := fmt.Sprintf("payout %.0f%%", latest*100)
	switch {
	case latest >= 1:
		mult = 0.3
		note += ", above earnings"
	case latest >= cfg.PayoutWarn:
		mult = 0.7
		note += ", near the warning level"
	}
	if n := len(payouts); n >= 2 {
		slope := (latest - payouts[0]) / float64(n-1)
		if slope >= 0.05 && latest > 0.6 {
			mult *= 0.85
			note += fmt.Sprintf(", rising %.0fpt/yr", slope*100)
		}
	}
	return mult, note
}

type equityTrend int

const (
	equityUnknown equityTrend = iota
	equityGrowing
	equityFlat
	equityShrinking
)

func trendOf(annual []model.FundamentalSnapshot) (equityTrend, string) {
	var eq []float64
	for _, s := range annual {
		if s.Equity.Valid {
			eq = append(eq, s.Equity.V)
		}
	}
	if len(eq) > 3 {
		eq = eq[len(eq)-3:]
	}
	if len(eq) < 2 || eq[0] == 0 {
		return equityUnknown, "equity history too short"
	}
	change := (eq[len(eq)-1] - eq[0]) / math.Abs(eq[0])
	note := fmt.Sprintf("equity %+.1f%% over %d years", change*100, len(eq)-1)
	switch {
	case change > 0.02:
		return equityGrowing, note
	case change < -0.02:
		return equityShrinking, note
	}
	return equityFlat, note
}

// coverageScore maps FCF / dividends paid: below 1 scales to 0.3, 1 to 2
// rises to 1.
func coverageScore(cov float64) float64 {
	switch {
	case cov < 1:
		return 0.3 * math.Max(cov, 0)
	case cov < 2:
		return 0.3 + 0.7*(cov-1)
	}
	return 1
}

// dividendsPaid estimates total dividends of a fiscal year.
func dividendsPaid(s model.FundamentalSnapshot) (float64, bool) {
	if s.DPS.Valid && s.SharesIssued.Valid {
		return s.DPS.V * s.SharesIssued.V, true
	}
	if s.PayoutRatio.Valid && s.NetIncome.Valid && s.NetIncome.V > 0 {
		return s.PayoutRatio.V * s.NetIncome.V, true
	}
	return 0, false
}

// scoreHealth combines FCF coverage of the dividend with the equity trend.
// Negative FCF, shrinking equity and a net loss cap the result.
func scoreHealth(annual []model.FundamentalSnapshot) model.SubScore {
	if len(annual) == 0 {
		return model.SubScore{Name: "health", Note: "no annual statements"}
	}
	latest := annual[len(annual)-1]
	fcf := latest.FreeCashFlow()

	var factors []model.FactorScore
	if paid, ok := dividendsPaid(latest); ok && fcf.Valid {
		var raw float64
		var note string
		if paid <= 0 {
			raw = 0
			if fcf.V > 0 {
				raw = 1
			}
			note = "no dividend paid"
		} else {
			cov := fcf.V / paid
			raw = coverageScore(cov)
			note = fmt.Sprintf("FCF covers dividend %.2fx", cov)
		}
		factors = append(factors, model.FactorScore{Name: "FCF coverage", RawScore: raw, Weight: 0.6, Commentary: note})
	}

	trend, trendNote := trendOf(annual)
	if trend != equityUnknown {
		raw := map[equityTrend]float64{equityGrowing: 1, equityFlat: 0.7, equityShrinking: 0.3}[trend]
		factors = append(factors, model.FactorScore{Name: "equity trend", RawScore: raw, Weight: 0.4, Commentary: trendNote})
	}
	if len(factors) == 0 {
		return model.SubScore{Name: "health", Note: "cash flow and equity history unavailable"}
	}

	total, weights := 0.0, 0.0
	for i := range factors {
		weights += factors[i].Weight
	}
	for i := range factors {
		factors[i].Weight /= weights
		factors[i].Weighted = factors[i].RawScore * factors[i].Weight
		total += factors[i].Weighted
	}

	var caps []string
	if fcf.Valid && fcf.V < 0 {
		total = math.Min(total, 0.2)
		caps = append(caps, "negative FCF")
	}
	if trend == equityShrinking {
		total = math.Min(total, 0.4)
		caps = append(caps, "shrinking equity")
	}
	if latest.NetIncome.Valid && latest.NetIncome.V < 0 {
		total = math.Min(total, 0.3)
		caps = append(caps, "net loss")
	}
	s := model.SubScore{Name: "health", Value: clamp01(total), Defined: true, Factors: factors}
	if len(caps) > 0 {
		s.Note = "capped by " + strings.Join(caps, ", ")
	}
	return s
}
