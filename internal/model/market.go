package model

import (
	"sort"
	"time"
)

// DefaultMaxCalendarGap is the longest run of calendar days between two bars
// that still fits the JPX trading calendar.
const DefaultMaxCalendarGap = 7

// Security is listed reference data for one ticker.
type Security struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Sector17 string `json:"sector17,omitempty"`
	Sector33 string `json:"sector33,omitempty"`
	Market   string `json:"market,omitempty"`
	Currency string `json:"currency"`
}

// PriceBar is one trading day.
type PriceBar struct {
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close,omitempty"`
	Volume   float64   `json:"volume"`
}

// Price prefers the adjusted close.
func (b PriceBar) Price() float64 {
	if b.AdjClose > 0 {
		return b.AdjClose
	}
	return b.Close
}

// Gap marks two consecutive bars further apart than the trading calendar allows.
type Gap struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
	Days int       `json:"days"`
}

// PriceSeries holds bars in strictly increasing date order.
type PriceSeries struct {
	Ticker string     `json:"ticker"`
	Bars   []PriceBar `json:"bars"`
	Gaps   []Gap      `json:"gaps,omitempty"`
}

// NewPriceSeries sorts bars by date, drops duplicate dates (last one wins)
// and records gaps longer than maxGap calendar days.
func NewPriceSeries(ticker string, bars []PriceBar, maxGap int) PriceSeries {
	if maxGap <= 0 {
		maxGap = DefaultMaxCalendarGap
	}
	sorted := make([]PriceBar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := make([]PriceBar, 0, len(sorted))
	for _, b := range sorted {
		if n := len(out); n > 0 && out[n-1].Date.Equal(b.Date) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}

	s := PriceSeries{Ticker: ticker, Bars: out}
	for i := 1; i < len(out); i++ {
		days := int(out[i].Date.Sub(out[i-1].Date).Hours() / 24)
		if days > maxGap {
			s.Gaps = append(s.Gaps, Gap{From: out[i-1].Date, To: out[i].Date, Days: days})
		}
	}
	return s
}

// Latest returns the most recent bar.
func (s PriceSeries) Latest() (PriceBar, bool) {
	if len(s.Bars) == 0 {
		return PriceBar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// AsOf is the date of the most recent bar, zero when empty.
func (s PriceSeries) AsOf() time.Time {
	b, _ := s.Latest()
	return b.Date
}
