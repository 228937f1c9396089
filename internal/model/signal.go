package model

import "time"

// Decision is the weekly recommendation for one ticker.
type Decision string

const (
	DecisionBuy   Decision = "BUY"
	DecisionHold  Decision = "HOLD"
	DecisionSell  Decision = "SELL"
	DecisionWatch Decision = "WATCH"
	DecisionPass  Decision = "PASS"
)

// FactorScore represents a single factor's scoring result.
type FactorScore struct {
	Name       string  `json:"name"`
	RawScore   float64 `json:"raw_score"`
	Weight     float64 `json:"weight"`
	Weighted   float64 `json:"weighted"`
	Commentary string  `json:"commentary"`
}

// SubScore is a value in [0,1] or undefined when its inputs are missing.
type SubScore struct {
	Name    string        `json:"name"`
	Value   float64       `json:"value"`
	Defined bool          `json:"defined"`
	Factors []FactorScore `json:"factors,omitempty"`
	Note    string        `json:"note,omitempty"`
}

// Metrics are the raw ratios behind a score.
type Metrics struct {
	AsOf          time.Time `json:"as_of"`
	Price         Num       `json:"price"`
	PE            Num       `json:"pe"`
	PB            Num       `json:"pb"`
	TrailingYield Num       `json:"trailing_yield"`
	DividendCAGR  Num       `json:"dividend_cagr"`
	PayoutRatio   Num       `json:"payout_ratio"`
	MarketCap     Num       `json:"market_cap"`
	HoldingWeight Num       `json:"holding_weight"`
	Range52w      Num       `json:"range_52w"` // 0 at the 52-week low, 1 at the high
}

// ScreenResult is the dividend value screen outcome.
type ScreenResult struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Score is the immutable outcome of scoring one ticker.
type Score struct {
	Ticker    string       `json:"ticker"`
	Security  Security     `json:"security"`
	Value     SubScore     `json:"value"`
	Dividend  SubScore     `json:"dividend"`
	Health    SubScore     `json:"health"`
	Composite float64      `json:"composite"`
	Decision  Decision     `json:"decision"`
	Complete  bool         `json:"complete"`
	Issues    []string     `json:"issues,omitempty"`
	Held      bool         `json:"held"`
	Metrics   Metrics      `json:"metrics"`
	Screen    ScreenResult `json:"screen"`
}

// WeeklyReport is the ranked output of one run.
type WeeklyReport struct {
	RunID      string              `json:"run_id"`
	RunAt      time.Time           `json:"run_at"`
	DataAsOf   time.Time           `json:"data_as_of"`
	Scores     []Score             `json:"scores"`
	Positions  []Position          `json:"positions"`
	Complete   int                 `json:"complete"`
	Incomplete int                 `json:"incomplete"`
	Previous   map[string]Decision `json:"previous,omitempty"`
	Notices    []string            `json:"notices,omitempty"`
}
