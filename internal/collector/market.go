package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"DividendSentinel/internal/cache"
	"DividendSentinel/internal/model"
	"DividendSentinel/internal/session"
)

const (
	// tradingDaySearch bounds how far back LatestTradingDay looks.
	tradingDaySearch = 14
	// statementScanStep is the spacing of sampled disclosure dates.
	statementScanStep = 3
	// DefaultStatementDays is how far back MarketSnapshot scans disclosures.
	DefaultStatementDays = 120
)

// MarketSnapshot is the whole market as of its latest trading day: one
// bar per code plus each code's most authoritative recent disclosure.
type MarketSnapshot struct {
	Date   time.Time                            `json:"date"`
	Quotes map[string]model.PriceBar            `json:"quotes"`
	Latest map[string]model.FundamentalSnapshot `json:"latest"`
}

// LatestTradingDay finds the most recent date with quotes, starting at today
// or at the end of the subscription window when the plan stops earlier.
func (c *Client) LatestTradingDay(ctx context.Context) (time.Time, map[string]model.PriceBar, error) {
	var lastErr error
	day := c.Today()
	for tries := 0; tries < tradingDaySearch; tries, day = tries+1, day.AddDate(0, 0, -1) {
		if weekend(day) {
			continue
		}
		quotes, err := c.quotesOn(ctx, day)
		var we *SubscriptionWindowError
		if errors.As(err, &we) && we.To.Before(day) {
			log.Printf("[WARN] daily quotes limited to subscription window, searching back from %s", we.To.Format("2006-01-02"))
			day = calendarDate(we.To).AddDate(0, 0, 1)
			continue
		}
		if err != nil {
			var ae *session.AuthenticationError
			if errors.As(err, &ae) {
				return time.Time{}, nil, err
			}
			lastErr = err
			continue
		}
		if len(quotes) > 0 {
			return day, quotes, nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no quotes within %d days of %s", tradingDaySearch, c.Today().Format("2006-01-02"))
	}
	return time.Time{}, nil, &DataUnavailableError{Ticker: "*", Kind: kindQuotes, Err: lastErr}
}

// MarketSnapshot collects the latest trading day's quotes and the disclosures
// of the preceding days, sampling every third weekday. A failed disclosure
// date is skipped; the snapshot fails only when none could be read.
func (c *Client) MarketSnapshot(ctx context.Context, days int) (MarketSnapshot, error) {
	if days <= 0 {
		days = DefaultStatementDays
	}
	date, quotes, err := c.LatestTradingDay(ctx)
	if err != nil {
		return MarketSnapshot{}, err
	}

	latest := make(map[string]model.FundamentalSnapshot)
	var scanned, failed int
	var lastErr error
	for back := 0; back <= days; back += statementScanStep {
		d := date.AddDate(0, 0, -back)
		if weekend(d) {
			continue
		}
		byCode, err := c.statementsOn(ctx, d)
		if err != nil {
			var ae *session.AuthenticationError
			if errors.As(err, &ae) {
				return MarketSnapshot{}, err
			}
			log.Printf("[WARN] statements on %s: %v", d.Format("2006-01-02"), err)
			failed++
			lastErr = err
			continue
		}
		scanned++
		for code, snaps := range byCode {
			for _, s := range snaps {
				if cur, ok := latest[code]; !ok || preferred(s, cur) {
					latest[code] = s
				}
			}
		}
	}
	if scanned == 0 {
		return MarketSnapshot{}, &DataUnavailableError{Ticker: "*", Kind: kindDisclosures, Err: lastErr}
	}
	log.Printf("[INFO] market snapshot %s: %d quotes, %d codes with disclosures (%d dates read, %d failed)",
		date.Format("2006-01-02"), len(quotes), len(latest), scanned, failed)
	return MarketSnapshot{Date: date, Quotes: quotes, Latest: latest}, nil
}

// preferred reports whether a beats b: full-year results first, then the
// newer disclosure.
func preferred(a, b model.FundamentalSnapshot) bool {
	pa, pb := model.PeriodPriority(a.Period), model.PeriodPriority(b.Period)
	if pa != pb {
		return pa < pb
	}
	return a.DisclosedDate.After(b.DisclosedDate)
}

func (c *Client) quotesOn(ctx context.Context, day time.Time) (map[string]model.PriceBar, error) {
	key := cache.Key("*", string(kindQuotes), day, day)
	var quotes map[string]model.PriceBar
	if _, ok := c.readCache(ctx, key, kindQuotes, &quotes); ok {
		return quotes, nil
	}
	quotes, err := c.fetcher.FetchQuotesOn(ctx, day)
	if err != nil {
		return nil, err
	}
	// An empty day may only be unpublished yet.
	if len(quotes) > 0 {
		c.writeCache(ctx, key, kindQuotes, quotes)
	}
	return quotes, nil
}

func (c *Client) statementsOn(ctx context.Context, day time.Time) (map[string][]model.FundamentalSnapshot, error) {
	key := cache.Key("*", string(kindDisclosures), day, day)
	var byCode map[string][]model.FundamentalSnapshot
	if _, ok := c.readCache(ctx, key, kindDisclosures, &byCode); ok {
		return byCode, nil
	}
	byCode, err := c.fetcher.FetchStatementsOn(ctx, day)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, key, kindDisclosures, byCode)
	return byCode, nil
}

func weekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
