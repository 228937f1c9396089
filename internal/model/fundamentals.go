package model

import (
	"encoding/json"
	"time"
)

// Num is a float that may be missing from the source data.
type Num struct {
	V     float64
	Valid bool
}

// Some wraps a known value.
func Some(v float64) Num { return Num{V: v, Valid: true} }

func (n Num) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.V)
}

func (n *Num) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Num{}
		return nil
	}
	if err := json.Unmarshal(data, &n.V); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Period types as published by J-Quants.
const (
	PeriodFY = "FY"
	Period1Q = "1Q"
	Period2Q = "2Q"
	Period3Q = "3Q"
)

// periodPriority orders statements when several describe the same fiscal year.
var periodPriority = map[string]int{PeriodFY: 0, Period2Q: 1, Period3Q: 2, Period1Q: 3}

// PeriodPriority returns a smaller number for more authoritative periods.
func PeriodPriority(p string) int {
	if v, ok := periodPriority[p]; ok {
		return v
	}
	return len(periodPriority)
}

// DividendRecord is an annual dividend per share.
// ExDate is the fiscal year end the dividend belongs to.
type DividendRecord struct {
	ExDate     time.Time `json:"ex_date"`
	FiscalYear int       `json:"fiscal_year"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
}

// FundamentalSnapshot is one reporting period of a company.
type FundamentalSnapshot struct {
	Period        string    `json:"period"`
	FiscalYearEnd time.Time `json:"fiscal_year_end"`
	DisclosedDate time.Time `json:"disclosed_date"`

	Revenue      Num `json:"revenue"`
	NetIncome    Num `json:"net_income"`
	Equity       Num `json:"equity"`
	OperatingCF  Num `json:"operating_cf"`
	InvestingCF  Num `json:"investing_cf"`
	PayoutRatio  Num `json:"payout_ratio"` // fraction, 0.4 = 40%
	EPS          Num `json:"eps"`
	BPS          Num `json:"bps"`
	DPS          Num `json:"dps"`
	ForecastDPS  Num `json:"forecast_dps"`
	SharesIssued Num `json:"shares_issued"`
}

// FreeCashFlow is operating plus investing cash flow.
func (f FundamentalSnapshot) FreeCashFlow() Num {
	if !f.OperatingCF.Valid || !f.InvestingCF.Valid {
		return Num{}
	}
	return Some(f.OperatingCF.V + f.InvestingCF.V)
}

// Annual reports whether the snapshot covers a full fiscal year.
func (f FundamentalSnapshot) Annual() bool { return f.Period == PeriodFY }
