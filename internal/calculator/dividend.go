package calculator

import (
	"errors"
	"math"
	"sort"
	"time"

	"DividendSentinel/internal/model"
)

// AnnualDividend is the total dividend per share for one fiscal year.
type AnnualDividend struct {
	FiscalYear int
	ExDate     time.Time
	Amount     float64
}

// AnnualDividends groups records by fiscal year, oldest first.
func AnnualDividends(records []model.DividendRecord) []AnnualDividend {
	byYear := make(map[int]*AnnualDividend)
	for _, r := range records {
		if r.Amount < 0 {
			continue
		}
		a, ok := byYear[r.FiscalYear]
		if !ok {
			a = &AnnualDividend{FiscalYear: r.FiscalYear}
			byYear[r.FiscalYear] = a
		}
		a.Amount += r.Amount
		if r.ExDate.After(a.ExDate) {
			a.ExDate = r.ExDate
		}
	}
	out := make([]AnnualDividend, 0, len(byYear))
	for _, a := range byYear {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiscalYear < out[j].FiscalYear })
	return out
}

// ConsecutiveRun returns the most recent run of consecutive fiscal years,
// capped at maxYears when positive.
func ConsecutiveRun(annual []AnnualDividend, maxYears int) []AnnualDividend {
	if len(annual) == 0 {
		return nil
	}
	start := len(annual) - 1
	for start > 0 && annual[start-1].FiscalYear == annual[start].FiscalYear-1 {
		start--
	}
	run := annual[start:]
	if maxYears > 0 && len(run) > maxYears {
		run = run[len(run)-maxYears:]
	}
	out := make([]AnnualDividend, len(run))
	copy(out, run)
	return out
}

// CountCuts counts year-over-year dividend decreases.
func CountCuts(run []AnnualDividend) int {
	cuts := 0
	for i := 1; i < len(run); i++ {
		if run[i].Amount < run[i-1].Amount {
			cuts++
		}
	}
	return cuts
}

// CalculateCAGR returns the compound annual growth rate between two values
// the given number of years apart.
func CalculateCAGR(first, last float64, years int) (float64, error) {
	if years <= 0 {
		return 0, errors.New("years must be positive")
	}
	if first <= 0 {
		return 0, errors.New("starting value must be positive")
	}
	if last <= 0 {
		return -1, nil
	}
	return math.Pow(last/first, 1/float64(years)) - 1, nil
}

// DividendCAGR computes the growth rate over a consecutive run.
func DividendCAGR(run []AnnualDividend) (float64, error) {
	if len(run) < 2 {
		return 0, errors.New("not enough dividend history")
	}
	return CalculateCAGR(run[0].Amount, run[len(run)-1].Amount, run[len(run)-1].FiscalYear-run[0].FiscalYear)
}

// TrailingDPS is the dividend of the latest fiscal year ended within the
// last 18 months of asOf, or the company forecast when results are stale.
func TrailingDPS(annual []AnnualDividend, snaps []model.FundamentalSnapshot, asOf time.Time) model.Num {
	cutoff := asOf.AddDate(0, -18, 0)
	for i := len(annual) - 1; i >= 0; i-- {
		if annual[i].ExDate.After(asOf) {
			continue
		}
		if annual[i].ExDate.Before(cutoff) {
			break
		}
		return model.Some(annual[i].Amount)
	}
	return LatestValue(snaps, func(s model.FundamentalSnapshot) model.Num { return s.ForecastDPS })
}
