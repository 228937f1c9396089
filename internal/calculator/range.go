package calculator

import (
	"errors"
	"math"
	"time"

	"DividendSentinel/internal/model"
)

// Calculate52WeekRange returns the high and low closing price over the year
// ending at the last bar. Bars must be sorted by date.
func Calculate52WeekRange(bars []model.PriceBar) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no daily bars provided")
	}
	cutoff := bars[len(bars)-1].Date.AddDate(-1, 0, 0)
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars {
		if b.Date.Before(cutoff) {
			continue
		}
		p := b.Price()
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
	}
	return high, low, nil
}

// Calculate52WeekPosition returns where the current price sits within the 52-week range (0.0~1.0).
func Calculate52WeekPosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	return clamp01((current - low) / (high - low)), nil
}

// LatestPrice returns the last price on or before asOf.
func LatestPrice(bars []model.PriceBar, asOf time.Time) (model.PriceBar, bool) {
	for i := len(bars) - 1; i >= 0; i-- {
		if !bars[i].Date.After(asOf) {
			return bars[i], true
		}
	}
	return model.PriceBar{}, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
