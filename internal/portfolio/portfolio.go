package portfolio

import (
	"sort"

	"DividendSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// Holding aggregates the positions of one ticker across accounts.
type Holding struct {
	Ticker      string          `json:"ticker"`
	Name        string          `json:"name"`
	Accounts    []string        `json:"accounts,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	MarketValue decimal.Decimal `json:"market_value"`
	Weight      float64         `json:"weight"`
	// Priced is false when MarketValue fell back to the cost basis.
	Priced bool `json:"priced"`
}

// AvgCost is the quantity-weighted average cost.
func (h Holding) AvgCost() decimal.Decimal {
	if h.Quantity.IsZero() {
		return decimal.Zero
	}
	return h.CostBasis.Div(h.Quantity)
}

// Book is the investor's portfolio for one run.
type Book struct {
	Holdings map[string]Holding
	Total    decimal.Decimal
}

// Held reports whether the ticker is in the book.
func (b Book) Held(ticker string) (Holding, bool) {
	h, ok := b.Holdings[ticker]
	return h, ok
}

// Tickers returns the held tickers in ascending order.
func (b Book) Tickers() []string {
	out := make([]string, 0, len(b.Holdings))
	for t := range b.Holdings {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NewBook values positions at the latest market prices. A ticker without a
// market price uses the price printed in the brokerage report, then its
// cost basis. Weights are shares of the total market value.
func NewBook(positions []model.Position, prices map[string]float64) Book {
	b := Book{Holdings: make(map[string]Holding), Total: decimal.Zero}
	for _, p := range positions {
		h, ok := b.Holdings[p.Ticker]
		if !ok {
			h = Holding{Ticker: p.Ticker, Name: p.Name, Quantity: decimal.Zero, CostBasis: decimal.Zero}
		}
		h.Quantity = h.Quantity.Add(p.Quantity)
		h.CostBasis = h.CostBasis.Add(p.CostBasis())
		if p.Account != "" && !contains(h.Accounts, p.Account) {
			h.Accounts = append(h.Accounts, p.Account)
		}
		if h.Name == "" {
			h.Name = p.Name
		}
		b.Holdings[p.Ticker] = h
	}

	reported := reportedPrices(positions)
	for t, h := range b.Holdings {
		switch {
		case prices[t] > 0:
			h.MarketValue = h.Quantity.Mul(decimal.NewFromFloat(prices[t]))
			h.Priced = true
		case reported[t].IsPositive():
			h.MarketValue = h.Quantity.Mul(reported[t])
			h.Priced = true
		default:
			h.MarketValue = h.CostBasis
		}
		b.Holdings[t] = h
		b.Total = b.Total.Add(h.MarketValue)
	}

	if b.Total.IsPositive() {
		for t, h := range b.Holdings {
			h.Weight = h.MarketValue.Div(b.Total).InexactFloat64()
			b.Holdings[t] = h
		}
	}
	return b
}

func reportedPrices(positions []model.Position) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, p := range positions {
		if p.CurrentPrice.IsPositive() {
			out[p.Ticker] = p.CurrentPrice
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
