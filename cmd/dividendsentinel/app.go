package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"DividendSentinel/internal/cache"
	"DividendSentinel/internal/collector"
	"DividendSentinel/internal/config"
	"DividendSentinel/internal/holdings"
	"DividendSentinel/internal/infra"
	"DividendSentinel/internal/model"
	"DividendSentinel/internal/notifier"
	"DividendSentinel/internal/pipeline"
	"DividendSentinel/internal/portfolio"
	"DividendSentinel/internal/recorder"
	"DividendSentinel/internal/report"
	"DividendSentinel/internal/session"

	"github.com/charmbracelet/glamour"
)

const cacheRetention = 30 * 24 * time.Hour

// app wires the components of one process.
type app struct {
	cfg          *config.Config
	pipeline     *pipeline.Pipeline
	rec          recorder.Recorder
	notifier     *notifier.TelegramNotifier
	plain        bool
	ignoreErrors bool
	closers      []func() error
}

func newApp(ctx context.Context, cfg *config.Config, record, notify bool) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	a := &app{cfg: cfg}

	httpClient := infra.NewHTTPClient(cfg.JQuants.Timeout, cfg.Proxy)
	limiter := infra.NewSlidingWindowLimiter(cfg.Client.RateLimit, cfg.Client.RateWindow, nil)
	retry := cfg.RetryPolicy()

	auth := session.NewJQuantsAuth(cfg.JQuants.BaseURL, httpClient, limiter, retry)
	mgr := session.NewManager(auth, cfg.Credentials(), cfg.JQuants.TokenMargin, nil)
	fetcher := collector.NewJQuantsFetcher(cfg.JQuants.BaseURL, httpClient, mgr, limiter, retry)
	log.Printf("[INFO] data source: %s (%d requests per %s)", fetcher.Name(), cfg.Client.RateLimit, cfg.Client.RateWindow)

	var store cache.Cache = cache.NewMemory()
	if cfg.Cache.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Cache.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		sc, err := cache.NewSQLite(cfg.Cache.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite cache failed, using memory only: %v", err)
		} else {
			a.closers = append(a.closers, sc.Close)
			if n, err := sc.Purge(ctx, time.Now().Add(-cacheRetention)); err != nil {
				log.Printf("[WARN] purge cache: %v", err)
			} else if n > 0 {
				log.Printf("[INFO] purged %d stale cache entries", n)
			}
			store = cache.Layered{Front: store, Back: sc}
		}
	}
	client := collector.NewClient(fetcher, store, cfg.Cache.Freshness, nil)

	a.rec = recorder.NewNoopRecorder()
	if record && cfg.Database.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
		} else {
			a.rec = sr
			a.closers = append(a.closers, sr.Close)
		}
	}

	if notify && cfg.NotifyEnabled() {
		a.notifier = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, httpClient, retry)
		log.Println("[INFO] weekly summary will be sent to Telegram")
	}

	a.pipeline = pipeline.New(client, mgr, a.rec, pipeline.Options{
		Concurrency:   cfg.Client.Concurrency,
		TickerTimeout: cfg.Client.TickerTimeout,
		LookbackDays:  cfg.Universe.LookbackDays,
		Watchlist:     cfg.Watchlist(),
		Scoring:       cfg.Scoring,
		Discover: pipeline.DiscoverOptions{
			Enabled:       cfg.Universe.Screen.Enabled,
			MaxCandidates: cfg.Universe.Screen.MaxCandidates,
			StatementDays: cfg.Universe.Screen.StatementDays,
		},
	}, nil)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("[WARN] close: %v", err)
		}
	}
}

// RunWeekly loads the holdings, runs the pipeline and writes the report.
func (a *app) RunWeekly(ctx context.Context) error {
	positions, err := loadPositions(a.cfg.Holdings.PDFPath, a.ignoreErrors)
	if err != nil {
		return err
	}

	rep, runErr := a.pipeline.Run(ctx, positions)
	if runErr != nil && !errors.Is(runErr, pipeline.ErrNoScores) {
		return runErr
	}

	if len(rep.Scores) > 0 {
		mdPath, jsonPath, err := report.Save(a.cfg.Output.Dir, rep)
		if err != nil {
			return err
		}
		log.Printf("[INFO] report written: %s, %s", mdPath, jsonPath)
		if a.cfg.Holdings.ExportCSV && len(positions) > 0 {
			csvPath := filepath.Join(a.cfg.Output.Dir, "positions-"+rep.RunAt.Format("2006-01-02")+".csv")
			if err := portfolio.WriteCSVFile(csvPath, positions); err != nil {
				return fmt.Errorf("export positions: %w", err)
			}
			log.Printf("[INFO] positions exported: %s", csvPath)
		}
		if err := printMarkdown(report.Markdown(rep), a.plain); err != nil {
			return err
		}
		if a.notifier != nil {
			if err := a.notifier.SendWithRetry(ctx, notifier.FormatWeeklySummary(rep)); err != nil {
				log.Printf("[WARN] send weekly summary: %v", err)
			}
		}
	}
	return runErr
}

// loadPositions reads the configured holdings file. An empty path means no
// holdings and only the watchlist is scored.
func loadPositions(path string, ignoreErrors bool) ([]model.Position, error) {
	if path == "" {
		log.Println("[INFO] no holdings file configured, scoring the watchlist only")
		return nil, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		snap, err := portfolio.LoadSnapshot(path)
		if err != nil {
			return nil, fmt.Errorf("load holdings snapshot: %w", err)
		}
		if len(snap.Positions) == 0 {
			return nil, &holdings.EmptyHoldingsError{Reason: "snapshot " + path + " has no positions"}
		}
		return snap.Positions, nil
	}

	positions, err := holdings.ParseFile(path)
	if err == nil {
		return positions, nil
	}
	if errors.Is(err, holdings.ErrEmptyHoldings) {
		return nil, fmt.Errorf("holdings %s: %w", path, err)
	}
	var pe *holdings.ParseError
	if ignoreErrors && errors.As(err, &pe) && len(positions) > 0 {
		log.Printf("[WARN] holdings %s: continuing with %d positions despite unparsed rows: %v", path, len(positions), err)
		return positions, nil
	}
	return nil, fmt.Errorf("holdings %s: %w", path, err)
}

func printMarkdown(md string, plain bool) error {
	if plain {
		fmt.Print(md)
		return nil
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(140))
	if err != nil {
		return fmt.Errorf("markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	fmt.Print(out)
	return nil
}
