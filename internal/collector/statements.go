package collector

import (
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"DividendSentinel/internal/model"
)

// jqStatement is one fins/statements disclosure. J-Quants sends numbers as
// strings and leaves unreported fields blank.
type jqStatement struct {
	DisclosedDate            string `json:"DisclosedDate"`
	LocalCode                string `json:"LocalCode"`
	TypeOfCurrentPeriod      string `json:"TypeOfCurrentPeriod"`
	CurrentFiscalYearEndDate string `json:"CurrentFiscalYearEndDate"`

	NetSales                         string `json:"NetSales"`
	Profit                           string `json:"Profit"`
	EarningsPerShare                 string `json:"EarningsPerShare"`
	Equity                           string `json:"Equity"`
	BookValuePerShare                string `json:"BookValuePerShare"`
	CashFlowsFromOperatingActivities string `json:"CashFlowsFromOperatingActivities"`
	CashFlowsFromInvestingActivities string `json:"CashFlowsFromInvestingActivities"`
	ResultDividendPerShareAnnual     string `json:"ResultDividendPerShareAnnual"`
	ResultPayoutRatioAnnual          string `json:"ResultPayoutRatioAnnual"`
	ForecastDividendPerShareAnnual   string `json:"ForecastDividendPerShareAnnual"`
	SharesIssued                     string `json:"NumberOfIssuedAndOutstandingSharesAtTheEndOfFiscalYearIncludingTreasuryStock"`
}

var periodAliases = map[string]string{"Q1": model.Period1Q, "Q2": model.Period2Q, "Q3": model.Period3Q}

func parseNum(s string) model.Num {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" || s == "-" || s == "－" {
		return model.Num{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return model.Num{}
	}
	return model.Some(v)
}

func pick(newer, older model.Num) model.Num {
	if newer.Valid {
		return newer
	}
	return older
}

// normalizeStatements turns raw disclosures into one snapshot per
// (period, fiscal year end). Later disclosures win field by field, so a
// forecast revision does not erase the results reported before it.
func normalizeStatements(stmts []jqStatement) []model.FundamentalSnapshot {
	sort.SliceStable(stmts, func(i, j int) bool { return stmts[i].DisclosedDate < stmts[j].DisclosedDate })

	type key struct {
		period string
		fyEnd  string
	}
	byKey := make(map[key]model.FundamentalSnapshot)
	var order []key

	for _, s := range stmts {
		period := strings.TrimSpace(s.TypeOfCurrentPeriod)
		if alias, ok := periodAliases[period]; ok {
			period = alias
		}
		fyEnd, err := time.Parse("2006-01-02", s.CurrentFiscalYearEndDate)
		if err != nil || period == "" {
			continue
		}
		disclosed, _ := time.Parse("2006-01-02", s.DisclosedDate)

		snap := model.FundamentalSnapshot{
			Period:        period,
			FiscalYearEnd: fyEnd,
			DisclosedDate: disclosed,
			Revenue:       parseNum(s.NetSales),
			NetIncome:     parseNum(s.Profit),
			Equity:        parseNum(s.Equity),
			OperatingCF:   parseNum(s.CashFlowsFromOperatingActivities),
			InvestingCF:   parseNum(s.CashFlowsFromInvestingActivities),
			EPS:           parseNum(s.EarningsPerShare),
			BPS:           parseNum(s.BookValuePerShare),
			DPS:           parseNum(s.ResultDividendPerShareAnnual),
			ForecastDPS:   parseNum(s.ForecastDividendPerShareAnnual),
			SharesIssued:  parseNum(s.SharesIssued),
		}
		if p := parseNum(s.ResultPayoutRatioAnnual); p.Valid {
			snap.PayoutRatio = model.Some(p.V / 100)
		}

		k := key{period, s.CurrentFiscalYearEndDate}
		prev, seen := byKey[k]
		if !seen {
			order = append(order, k)
			byKey[k] = snap
			continue
		}
		byKey[k] = model.FundamentalSnapshot{
			Period:        period,
			FiscalYearEnd: fyEnd,
			DisclosedDate: disclosed,
			Revenue:       pick(snap.Revenue, prev.Revenue),
			NetIncome:     pick(snap.NetIncome, prev.NetIncome),
			Equity:        pick(snap.Equity, prev.Equity),
			OperatingCF:   pick(snap.OperatingCF, prev.OperatingCF),
			InvestingCF:   pick(snap.InvestingCF, prev.InvestingCF),
			PayoutRatio:   pick(snap.PayoutRatio, prev.PayoutRatio),
			EPS:           pick(snap.EPS, prev.EPS),
			BPS:           pick(snap.BPS, prev.BPS),
			DPS:           pick(snap.DPS, prev.DPS),
			ForecastDPS:   pick(snap.ForecastDPS, prev.ForecastDPS),
			SharesIssued:  pick(snap.SharesIssued, prev.SharesIssued),
		}
	}

	out := make([]model.FundamentalSnapshot, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	sortSnapshots(out)
	return out
}

func sortSnapshots(s []model.FundamentalSnapshot) {
	sort.SliceStable(s, func(i, j int) bool {
		if !s[i].FiscalYearEnd.Equal(s[j].FiscalYearEnd) {
			return s[i].FiscalYearEnd.Before(s[j].FiscalYearEnd)
		}
		if !s[i].DisclosedDate.Equal(s[j].DisclosedDate) {
			return s[i].DisclosedDate.Before(s[j].DisclosedDate)
		}
		return model.PeriodPriority(s[i].Period) > model.PeriodPriority(s[j].Period)
	})
}

// dividendsFromSnapshots derives one annual dividend per fiscal year from
// full-year results. Negative amounts are rejected.
func dividendsFromSnapshots(ticker string, snaps []model.FundamentalSnapshot) []model.DividendRecord {
	var out []model.DividendRecord
	for _, s := range snaps {
		if !s.Annual() || !s.DPS.Valid {
			continue
		}
		if s.DPS.V < 0 {
			log.Printf("[WARN] %s: negative dividend %.2f for FY %s rejected", ticker, s.DPS.V, s.FiscalYearEnd.Format("2006-01"))
			continue
		}
		out = append(out, model.DividendRecord{
			ExDate:     s.FiscalYearEnd,
			FiscalYear: s.FiscalYearEnd.Year(),
			Amount:     s.DPS.V,
			Currency:   "JPY",
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExDate.Before(out[j].ExDate) })
	return out
}

// inRange keeps snapshots whose fiscal year ends on or after r.From and
// that were disclosed by r.To.
func inRange(snaps []model.FundamentalSnapshot, r DateRange) []model.FundamentalSnapshot {
	out := make([]model.FundamentalSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.FiscalYearEnd.Before(r.From) {
			continue
		}
		if !s.DisclosedDate.IsZero() && s.DisclosedDate.After(r.To) {
			continue
		}
		out = append(out, s)
	}
	return out
}
