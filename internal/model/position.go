package model

import "github.com/shopspring/decimal"

// Position is one holding read from the brokerage export.
type Position struct {
	Ticker       string          `json:"ticker"`
	Name         string          `json:"name"`
	Account      string          `json:"account,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	CurrentPrice decimal.Decimal `json:"current_price,omitempty"`
	Page         int             `json:"page,omitempty"`
	Row          int             `json:"row,omitempty"`
}

// CostBasis is quantity times average cost.
func (p Position) CostBasis() decimal.Decimal {
	return p.Quantity.Mul(p.AvgCost)
}
