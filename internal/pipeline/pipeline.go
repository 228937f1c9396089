package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"DividendSentinel/internal/collector"
	"DividendSentinel/internal/infra"
	"DividendSentinel/internal/model"
	"DividendSentinel/internal/portfolio"
	"DividendSentinel/internal/recorder"
	"DividendSentinel/internal/report"
	"DividendSentinel/internal/session"
	"DividendSentinel/internal/strategy"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrNoScores means not a single ticker could be scored completely.
var ErrNoScores = errors.New("no ticker scored completely")

// MarketData is the part of the collector a run needs.
type MarketData interface {
	FetchSeries(ctx context.Context, ticker string, kind collector.Kind, r collector.DateRange) (collector.Series, error)
	Security(ctx context.Context, ticker string) (model.Security, bool)
	MarketSnapshot(ctx context.Context, days int) (collector.MarketSnapshot, error)
	Today() time.Time
}

// Session authenticates before any data is requested.
type Session interface {
	AcquireToken(ctx context.Context) (session.Token, error)
}

// Options configure one run.
type Options struct {
	Concurrency   int
	TickerTimeout time.Duration
	LookbackDays  int
	Watchlist     []string
	Scoring       strategy.Config
	Discover      DiscoverOptions
}

// DiscoverOptions control the market-wide screen that adds candidates to
// the universe.
type DiscoverOptions struct {
	Enabled       bool
	MaxCandidates int
	StatementDays int
}

// Pipeline runs the weekly decision process.
type Pipeline struct {
	data  MarketData
	sess  Session
	rec   recorder.Recorder
	opts  Options
	clock infra.Clock
}

// New creates a Pipeline. A nil recorder disables run history.
func New(data MarketData, sess Session, rec recorder.Recorder, opts Options, clock infra.Clock) *Pipeline {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	if clock == nil {
		clock = infra.SystemClock{}
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.TickerTimeout <= 0 {
		opts.TickerTimeout = 2 * time.Minute
	}
	if opts.LookbackDays <= 0 {
		opts.LookbackDays = 400
	}
	if opts.Discover.MaxCandidates <= 0 {
		opts.Discover.MaxCandidates = 20
	}
	if opts.Discover.StatementDays <= 0 {
		opts.Discover.StatementDays = collector.DefaultStatementDays
	}
	opts.Scoring = opts.Scoring.WithDefaults()
	return &Pipeline{data: data, sess: sess, rec: rec, opts: opts, clock: clock}
}

// tickerData is what one worker collected for one ticker.
type tickerData struct {
	ticker       string
	security     model.Security
	prices       model.PriceSeries
	dividends    []model.DividendRecord
	fundamentals []model.FundamentalSnapshot
	issues       []string
	notices      []string
}

// Run executes one weekly run for the held positions, the watchlist and the
// candidates of the market screen.
// Only an authentication failure or a run without any complete score is an
// error; per-ticker failures become issues on degraded scores.
func (p *Pipeline) Run(ctx context.Context, positions []model.Position) (model.WeeklyReport, error) {
	runAt := p.clock.Now()
	log.Printf("[INFO] weekly run started: %d positions, %d watchlist tickers", len(positions), len(p.opts.Watchlist))

	if p.sess != nil {
		if _, err := p.sess.AcquireToken(ctx); err != nil {
			return model.WeeklyReport{}, fmt.Errorf("acquire token: %w", err)
		}
	}

	discovered, notice, err := p.discover(ctx, positions)
	if err != nil {
		return model.WeeklyReport{}, err
	}
	var notices []string
	if notice != "" {
		notices = append(notices, notice)
	}
	isDiscovered := make(map[string]bool, len(discovered))
	for _, t := range discovered {
		isDiscovered[t] = true
	}

	universe := Universe(positions, append(append([]string(nil), p.opts.Watchlist...), discovered...))
	if len(universe) == 0 {
		return model.WeeklyReport{}, ErrNoScores
	}

	collected, err := p.collect(ctx, universe)
	if err != nil {
		return model.WeeklyReport{}, err
	}

	latest := make(map[string]float64, len(collected))
	for _, d := range collected {
		if b, ok := d.prices.Latest(); ok {
			latest[d.ticker] = b.Price()
		}
	}
	book := portfolio.NewBook(positions, latest)

	scores := make([]model.Score, 0, len(collected))
	for _, d := range collected {
		in := strategy.Input{
			Security:     d.security,
			Prices:       d.prices,
			Dividends:    d.dividends,
			Fundamentals: d.fundamentals,
			Issues:       d.issues,
		}
		if h, ok := book.Held(d.ticker); ok {
			in.Holding = &strategy.HoldingContext{Quantity: h.Quantity, Weight: model.Some(h.Weight)}
		}
		sc := strategy.Score(in, p.opts.Scoring)
		notices = append(notices, d.notices...)
		if isDiscovered[d.ticker] && sc.Complete && !sc.Screen.Passed {
			log.Printf("[INFO] %s dropped from market screen: %s", d.ticker, strings.Join(sc.Screen.Reasons, "; "))
			continue
		}
		scores = append(scores, sc)
	}

	rep := report.BuildReport(scores, runAt, positions)
	rep.RunID = uuid.New().String()
	rep.Notices = dedupe(notices)

	prev, err := p.rec.PreviousDecisions(ctx, runAt)
	if err != nil {
		log.Printf("[ERROR] load previous decisions: %v", err)
	} else {
		rep.Previous = prev
	}
	if err := p.rec.RecordWeekly(ctx, &rep); err != nil {
		log.Printf("[ERROR] record weekly: %v", err)
	}

	log.Printf("[INFO] weekly run %s finished: %d complete, %d degraded", rep.RunID, rep.Complete, rep.Incomplete)
	if rep.Complete == 0 {
		return rep, ErrNoScores
	}
	return rep, nil
}

// discover runs the market screen and returns up to MaxCandidates passing
// codes that are neither held nor watched. A failed screen only costs the
// candidates; an authentication failure aborts the run.
func (p *Pipeline) discover(ctx context.Context, positions []model.Position) ([]string, string, error) {
	if !p.opts.Discover.Enabled {
		return nil, "", nil
	}
	snap, err := p.data.MarketSnapshot(ctx, p.opts.Discover.StatementDays)
	if err != nil {
		var ae *session.AuthenticationError
		if errors.As(err, &ae) {
			return nil, "", fmt.Errorf("market screen: %w", err)
		}
		log.Printf("[WARN] market screen skipped: %v", err)
		return nil, fmt.Sprintf("market screen skipped: %v", err), nil
	}

	known := make(map[string]bool)
	for _, t := range Universe(positions, p.opts.Watchlist) {
		known[t] = true
	}
	candidates := strategy.ScreenMarket(snap.Quotes, snap.Latest, p.opts.Scoring.Screen)
	var out []string
	for _, c := range candidates {
		if len(out) == p.opts.Discover.MaxCandidates {
			break
		}
		if !known[c.Ticker] {
			out = append(out, c.Ticker)
		}
	}
	log.Printf("[INFO] market screen %s: %d of %d codes passed, %d added", snap.Date.Format("2006-01-02"), len(candidates), len(snap.Quotes), len(out))
	if len(out) == 0 {
		return nil, fmt.Sprintf("market screen %s: no new candidates", snap.Date.Format("2006-01-02")), nil
	}
	return out, fmt.Sprintf("market screen %s: added %s", snap.Date.Format("2006-01-02"), strings.Join(out, ", ")), nil
}

// collect fetches every ticker on a bounded worker pool. Results come back
// in universe order regardless of completion order.
func (p *Pipeline) collect(ctx context.Context, universe []string) ([]tickerData, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	results := make(chan tickerData, len(universe))

	today := p.data.Today()
	prices := collector.DateRange{From: today.AddDate(0, 0, -p.opts.LookbackDays), To: today}
	statements := collector.DateRange{From: today.AddDate(-(p.opts.Scoring.GrowthYears + 2), 0, 0), To: today}

	for _, ticker := range universe {
		ticker := ticker
		g.Go(func() error {
			tctx, cancel := context.WithTimeout(gctx, p.opts.TickerTimeout)
			defer cancel()
			d, err := p.fetchTicker(tctx, ticker, prices, statements)
			if err != nil {
				return err
			}
			results <- d
			return nil
		})
	}
	err := g.Wait()
	close(results)
	if err != nil {
		return nil, err
	}

	byTicker := make(map[string]tickerData, len(universe))
	for d := range results {
		byTicker[d.ticker] = d
	}
	out := make([]tickerData, 0, len(universe))
	for _, t := range universe {
		out = append(out, byTicker[t])
	}
	return out, nil
}

// fetchTicker returns an error only for authentication failures.
func (p *Pipeline) fetchTicker(ctx context.Context, ticker string, prices, statements collector.DateRange) (tickerData, error) {
	d := tickerData{ticker: ticker}
	if sec, ok := p.data.Security(ctx, ticker); ok {
		d.security = sec
	} else {
		d.security = model.Security{Code: ticker, Currency: "JPY"}
	}

	for _, kind := range []collector.Kind{collector.KindPrices, collector.KindDividends, collector.KindFundamentals} {
		r := statements
		if kind == collector.KindPrices {
			r = prices
		}
		s, err := p.data.FetchSeries(ctx, ticker, kind, r)
		if err != nil {
			var ae *session.AuthenticationError
			if errors.As(err, &ae) {
				return d, err
			}
			log.Printf("[WARN] %s %s: %v", ticker, kind, err)
			d.issues = append(d.issues, fmt.Sprintf("%s: %v", kind, err))

			var ite *collector.InvalidTickerError
			if errors.As(err, &ite) {
				break
			}
			continue
		}
		d.notices = append(d.notices, s.Notices...)
		switch kind {
		case collector.KindPrices:
			d.prices = s.Prices
		case collector.KindDividends:
			d.dividends = s.Dividends
		case collector.KindFundamentals:
			d.fundamentals = s.Fundamentals
		}
	}
	if d.prices.Ticker == "" {
		d.prices.Ticker = ticker
	}
	return d, nil
}

// Universe is the sorted union of held tickers and the watchlist.
func Universe(positions []model.Position, watchlist []string) []string {
	seen := make(map[string]bool)
	for _, pos := range positions {
		seen[pos.Ticker] = true
	}
	for _, t := range watchlist {
		if code, ok := model.NormalizeTicker(t); ok {
			seen[code] = true
		} else {
			seen[t] = true
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		if t != "" {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
