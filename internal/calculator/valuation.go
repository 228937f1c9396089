package calculator

import (
	"errors"
	"sort"

	"DividendSentinel/internal/model"
)

// ErrUndefinedRatio is returned when a ratio has no meaningful value, such as
// a P/E on a loss.
var ErrUndefinedRatio = errors.New("ratio undefined")

// CalculatePE returns price over earnings per share.
func CalculatePE(price float64, eps model.Num) (float64, error) {
	if price <= 0 || !eps.Valid || eps.V <= 0 {
		return 0, ErrUndefinedRatio
	}
	return price / eps.V, nil
}

// CalculatePB returns price over book value per share.
func CalculatePB(price float64, bps model.Num) (float64, error) {
	if price <= 0 || !bps.Valid || bps.V <= 0 {
		return 0, ErrUndefinedRatio
	}
	return price / bps.V, nil
}

// CalculateYield returns the dividend yield as a fraction.
func CalculateYield(dps, price float64) (float64, error) {
	if price <= 0 || dps < 0 {
		return 0, ErrUndefinedRatio
	}
	return dps / price, nil
}

// CalculateMarketCap returns price times issued shares.
func CalculateMarketCap(price float64, shares model.Num) (float64, error) {
	if price <= 0 || !shares.Valid || shares.V <= 0 {
		return 0, ErrUndefinedRatio
	}
	return price * shares.V, nil
}

// AnnualSnapshots returns the full-year snapshots ordered by fiscal year end,
// one per year, keeping the latest disclosure.
func AnnualSnapshots(snaps []model.FundamentalSnapshot) []model.FundamentalSnapshot {
	byYear := make(map[int64]model.FundamentalSnapshot)
	for _, s := range snaps {
		if !s.Annual() {
			continue
		}
		k := s.FiscalYearEnd.Unix()
		if prev, ok := byYear[k]; ok && prev.DisclosedDate.After(s.DisclosedDate) {
			continue
		}
		byYear[k] = s
	}
	out := make([]model.FundamentalSnapshot, 0, len(byYear))
	for _, s := range byYear {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiscalYearEnd.Before(out[j].FiscalYearEnd) })
	return out
}

// LatestAnnual returns the most recent full-year snapshot.
func LatestAnnual(snaps []model.FundamentalSnapshot) (model.FundamentalSnapshot, bool) {
	annual := AnnualSnapshots(snaps)
	if len(annual) == 0 {
		return model.FundamentalSnapshot{}, false
	}
	return annual[len(annual)-1], true
}

// LatestValue returns the newest valid value of a field across all
// periods. Newer fiscal years win; within a year FY beats 2Q, 3Q, then 1Q.
func LatestValue(snaps []model.FundamentalSnapshot, field func(model.FundamentalSnapshot) model.Num) model.Num {
	sorted := make([]model.FundamentalSnapshot, len(snaps))
	copy(sorted, snaps)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.FiscalYearEnd.Equal(b.FiscalYearEnd) {
			return a.FiscalYearEnd.After(b.FiscalYearEnd)
		}
		if pa, pb := model.PeriodPriority(a.Period), model.PeriodPriority(b.Period); pa != pb {
			return pa < pb
		}
		return a.DisclosedDate.After(b.DisclosedDate)
	})
	for _, s := range sorted {
		if v := field(s); v.Valid {
			return v
		}
	}
	return model.Num{}
}
