package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"DividendSentinel/internal/cache"
	"DividendSentinel/internal/infra"
	"DividendSentinel/internal/model"
	"DividendSentinel/internal/session"

	"golang.org/x/sync/singleflight"
)

// Kind selects which series FetchSeries returns.
type Kind string

const (
	KindPrices       Kind = "prices"
	KindDividends    Kind = "dividends"
	KindFundamentals Kind = "fundamentals"

	kindStatements  Kind = "statements"
	kindListed      Kind = "listed"
	kindQuotes      Kind = "quotes"      // whole market, one trading date
	kindDisclosures Kind = "disclosures" // whole market, one disclosure date
)

// JST is the exchange's time zone; "today" is judged there.
var JST = time.FixedZone("JST", 9*60*60)

// DateRange is an inclusive span of calendar dates.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate rejects empty ranges and ranges ending after today.
func (r DateRange) Validate(today time.Time) error {
	if r.From.IsZero() || r.To.IsZero() {
		return fmt.Errorf("%w: missing bound", ErrInvalidRange)
	}
	if r.From.After(r.To) {
		return fmt.Errorf("%w: %s after %s", ErrInvalidRange, r.From.Format("2006-01-02"), r.To.Format("2006-01-02"))
	}
	if r.To.After(today) {
		return fmt.Errorf("%w: %s is in the future", ErrInvalidRange, r.To.Format("2006-01-02"))
	}
	return nil
}

// Series is the typed result of FetchSeries; only the field matching Kind is set.
type Series struct {
	Ticker       string                      `json:"ticker"`
	Kind         Kind                        `json:"kind"`
	Range        DateRange                   `json:"range"`
	FetchedAt    time.Time                   `json:"fetched_at"`
	Prices       model.PriceSeries           `json:"prices"`
	Dividends    []model.DividendRecord      `json:"dividends,omitempty"`
	Fundamentals []model.FundamentalSnapshot `json:"fundamentals,omitempty"`
	Notices      []string                    `json:"notices,omitempty"`
}

// Freshness decides when a cached series must be refetched.
type Freshness struct {
	PriceTradingDays int           `yaml:"price_trading_days"`
	Dividends        time.Duration `yaml:"dividends_ttl"`
	Fundamentals     time.Duration `yaml:"fundamentals_ttl"`
	Listed           time.Duration `yaml:"listed_ttl"`
}

// DefaultFreshness: prices for one trading day, everything else for a week.
func DefaultFreshness() Freshness {
	week := 7 * 24 * time.Hour
	return Freshness{PriceTradingDays: 1, Dividends: week, Fundamentals: week, Listed: week}
}

// Fresh reports whether data fetched at fetchedAt may still be served at now.
func (f Freshness) Fresh(kind Kind, fetchedAt, now time.Time) bool {
	switch kind {
	case KindPrices, kindQuotes:
		days := f.PriceTradingDays
		if days < 1 {
			days = 1
		}
		return tradingDaysBetween(fetchedAt, now) < days
	case KindDividends:
		return now.Sub(fetchedAt) < f.Dividends
	case KindFundamentals, kindStatements, kindDisclosures:
		return now.Sub(fetchedAt) < f.Fundamentals
	case kindListed:
		return now.Sub(fetchedAt) < f.Listed
	}
	return false
}

// tradingDaysBetween counts weekdays after from's JST date up to and including to's.
func tradingDaysBetween(from, to time.Time) int {
	a := calendarDate(from)
	b := calendarDate(to)
	n := 0
	for d := a.AddDate(0, 0, 1); !d.After(b); d = d.AddDate(0, 0, 1) {
		if !weekend(d) {
			n++
		}
	}
	return n
}

func calendarDate(t time.Time) time.Time {
	y, m, d := t.In(JST).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Client is the market data client: validation, caching and typed series
// on top of a Fetcher.
type Client struct {
	fetcher Fetcher
	cache   cache.Cache
	fresh   Freshness
	clock   infra.Clock
	maxGap  int

	mu       sync.RWMutex
	loadedAt time.Time
	failedAt time.Time
	universe map[string]model.Security

	group singleflight.Group
}

// NewClient creates a Client. A nil cache keeps entries in memory only.
func NewClient(fetcher Fetcher, c cache.Cache, fresh Freshness, clock infra.Clock) *Client {
	if c == nil {
		c = cache.NewMemory()
	}
	if clock == nil {
		clock = infra.SystemClock{}
	}
	return &Client{
		fetcher: fetcher,
		cache:   c,
		fresh:   fresh,
		clock:   clock,
		maxGap:  model.DefaultMaxCalendarGap,
	}
}

// Today is the current JST calendar date.
func (c *Client) Today() time.Time { return calendarDate(c.clock.Now()) }

const (
	listedTimeout = 2 * time.Minute
	// listedRetry spaces out reload attempts after a failed load.
	listedRetry = time.Minute
)

// Securities returns the listed universe, reloading it once it is older than
// the listed freshness. When it has never loaded the map is empty and ticker
// validation is skipped; a failed reload keeps serving the previous list.
func (c *Client) Securities(ctx context.Context) map[string]model.Security {
	now := c.clock.Now()
	c.mu.RLock()
	universe, loadedAt, failedAt := c.universe, c.loadedAt, c.failedAt
	c.mu.RUnlock()
	if !loadedAt.IsZero() && c.fresh.Fresh(kindListed, loadedAt, now) {
		return universe
	}
	if !failedAt.IsZero() && now.Sub(failedAt) < listedRetry {
		return orEmpty(universe)
	}

	// Shared by every worker, so it must not die with the caller's deadline.
	v, _, _ := c.group.Do(string(kindListed), func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listedTimeout)
		defer cancel()
		return c.loadListed(lctx), nil
	})
	return v.(map[string]model.Security)
}

func (c *Client) loadListed(ctx context.Context) map[string]model.Security {
	key := cache.Key("*", string(kindListed), time.Time{}, time.Time{})
	var list []model.Security
	fetchedAt, ok := c.readCache(ctx, key, kindListed, &list)
	if !ok {
		var err error
		list, err = c.fetcher.FetchListed(ctx)
		if err != nil {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.failedAt = c.clock.Now()
			if c.loadedAt.IsZero() {
				log.Printf("[WARN] listed securities unavailable, ticker validation disabled: %v", err)
			} else {
				log.Printf("[WARN] listed securities reload failed, keeping list from %s: %v", c.loadedAt.Format(time.RFC3339), err)
			}
			return orEmpty(c.universe)
		}
		fetchedAt = c.clock.Now()
		c.writeCache(ctx, key, kindListed, list)
	}

	universe := make(map[string]model.Security, len(list))
	for _, s := range list {
		universe[s.Code] = s
	}
	c.mu.Lock()
	c.universe = universe
	c.loadedAt = fetchedAt
	c.failedAt = time.Time{}
	c.mu.Unlock()
	log.Printf("[INFO] listed universe: %d securities", len(universe))
	return universe
}

func orEmpty(m map[string]model.Security) map[string]model.Security {
	if m == nil {
		return map[string]model.Security{}
	}
	return m
}

// Security looks a ticker up in the listed universe.
func (c *Client) Security(ctx context.Context, ticker string) (model.Security, bool) {
	s, ok := c.Securities(ctx)[ticker]
	return s, ok
}

// FetchSeries returns the requested series for ticker, from cache when fresh.
func (c *Client) FetchSeries(ctx context.Context, ticker string, kind Kind, r DateRange) (Series, error) {
	code, ok := model.NormalizeTicker(ticker)
	if !ok {
		return Series{}, &InvalidTickerError{Ticker: ticker, Detail: "not a TSE code"}
	}
	if err := r.Validate(c.Today()); err != nil {
		return Series{}, err
	}
	if u := c.Securities(ctx); len(u) > 0 {
		if _, listed := u[code]; !listed {
			return Series{}, &InvalidTickerError{Ticker: code, Detail: "not in listed universe"}
		}
	}

	key := cache.Key(code, string(kind), r.From, r.To)
	var s Series
	if _, ok := c.readCache(ctx, key, kind, &s); ok {
		return s, nil
	}

	s = Series{Ticker: code, Kind: kind, Range: r, FetchedAt: c.clock.Now()}
	switch kind {
	case KindPrices:
		bars, notice, err := c.fetchPrices(ctx, code, r)
		if err != nil {
			return Series{}, wrapFetchErr(code, kind, err)
		}
		s.Prices = model.NewPriceSeries(code, bars, c.maxGap)
		if notice != "" {
			s.Notices = append(s.Notices, notice)
		}
	case KindDividends, KindFundamentals:
		snaps, err := c.statements(ctx, code)
		if err != nil {
			return Series{}, wrapFetchErr(code, kind, err)
		}
		snaps = inRange(snaps, r)
		if kind == KindDividends {
			s.Dividends = dividendsFromSnapshots(code, snaps)
		} else {
			s.Fundamentals = snaps
		}
	default:
		return Series{}, fmt.Errorf("unknown data kind %q", kind)
	}

	c.writeCache(ctx, key, kind, s)
	return s, nil
}

// fetchPrices clamps the range to the plan's covered dates when the API
// reports a subscription window.
func (c *Client) fetchPrices(ctx context.Context, code string, r DateRange) ([]model.PriceBar, string, error) {
	bars, err := c.fetcher.FetchPrices(ctx, code, r)
	var we *SubscriptionWindowError
	if !errors.As(err, &we) {
		return bars, "", err
	}
	clamped := r
	if we.To.Before(clamped.To) {
		clamped.To = we.To
	}
	if we.From.After(clamped.From) {
		clamped.From = we.From
	}
	if clamped.From.After(clamped.To) || clamped == r {
		return nil, "", &DataUnavailableError{Ticker: code, Kind: KindPrices, Err: we}
	}
	notice := fmt.Sprintf("prices limited to subscription window %s ~ %s",
		clamped.From.Format("2006-01-02"), clamped.To.Format("2006-01-02"))
	log.Printf("[WARN] %s: %s", code, notice)
	bars, err = c.fetcher.FetchPrices(ctx, code, clamped)
	return bars, notice, err
}

// statements fetches every disclosure for code once per freshness window;
// dividends and fundamentals are both derived from it.
func (c *Client) statements(ctx context.Context, code string) ([]model.FundamentalSnapshot, error) {
	v, err, _ := c.group.Do(code, func() (interface{}, error) {
		key := cache.Key(code, string(kindStatements), time.Time{}, time.Time{})
		var snaps []model.FundamentalSnapshot
		if _, ok := c.readCache(ctx, key, kindStatements, &snaps); ok {
			return snaps, nil
		}
		snaps, err := c.fetcher.FetchStatements(ctx, code)
		if err != nil {
			return nil, err
		}
		out := make([]model.FundamentalSnapshot, len(snaps))
		copy(out, snaps)
		sortSnapshots(out)
		c.writeCache(ctx, key, kindStatements, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.FundamentalSnapshot), nil
}

// wrapFetchErr passes the error taxonomy through and turns anything else
// into a DataUnavailableError for kind.
func wrapFetchErr(code string, kind Kind, err error) error {
	var ae *session.AuthenticationError
	var ite *InvalidTickerError
	if errors.As(err, &ae) || errors.As(err, &ite) {
		return err
	}
	var due *DataUnavailableError
	if errors.As(err, &due) {
		return &DataUnavailableError{Ticker: code, Kind: kind, Err: due.Err}
	}
	return &DataUnavailableError{Ticker: code, Kind: kind, Err: err}
}

// readCache decodes a fresh entry into out and returns when it was fetched.
func (c *Client) readCache(ctx context.Context, key string, kind Kind, out interface{}) (time.Time, bool) {
	e, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		log.Printf("[WARN] cache read %s: %v", key, err)
		return time.Time{}, false
	}
	if !ok || !c.fresh.Fresh(kind, e.FetchedAt, c.clock.Now()) {
		return time.Time{}, false
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		log.Printf("[WARN] cache decode %s: %v", key, err)
		return time.Time{}, false
	}
	return e.FetchedAt, true
}

func (c *Client) writeCache(ctx context.Context, key string, kind Kind, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WARN] cache encode %s: %v", key, err)
		return
	}
	e := cache.Entry{Key: key, Kind: string(kind), FetchedAt: c.clock.Now(), Payload: payload}
	if err := c.cache.Put(ctx, e); err != nil {
		log.Printf("[WARN] cache write %s: %v", key, err)
	}
}
