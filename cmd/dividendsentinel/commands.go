package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"DividendSentinel/internal/model"
	"DividendSentinel/internal/portfolio"
	"DividendSentinel/internal/recorder"
	"DividendSentinel/internal/report"
	"DividendSentinel/internal/scheduler"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the weekly decision process once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		noRecord, _ := cmd.Flags().GetBool("no-record")
		noNotify, _ := cmd.Flags().GetBool("no-notify")
		if noScreen, _ := cmd.Flags().GetBool("no-screen"); noScreen {
			cfg.Universe.Screen.Enabled = false
		}
		a, err := newApp(ctx, cfg, !noRecord, !noNotify)
		if err != nil {
			return err
		}
		defer a.Close()
		a.plain, _ = cmd.Flags().GetBool("plain")
		a.ignoreErrors, _ = cmd.Flags().GetBool("ignore-holdings-errors")
		return a.RunWeekly(ctx)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the weekly process on the configured cron schedule",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("[INFO] DividendSentinel starting...")

		// Context for graceful shutdown
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		a, err := newApp(ctx, cfg, true, true)
		if err != nil {
			return err
		}
		defer a.Close()
		a.plain = true
		a.ignoreErrors, _ = cmd.Flags().GetBool("ignore-holdings-errors")

		sched := scheduler.NewScheduler(ctx, a)
		if err := sched.Register(cfg.Schedule.WeeklyCron); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()

		if runNow, _ := cmd.Flags().GetBool("run-now"); runNow || os.Getenv("RUN_ON_START") == "true" {
			log.Println("[INFO] executing weekly task now")
			go sched.RunWeeklyNow()
		}

		log.Println("[INFO] DividendSentinel is running. Press Ctrl+C to stop.")

		// Wait for shutdown signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Println("[INFO] shutdown signal received, stopping...")
		cancel()
		return nil
	},
}

var holdingsCmd = &cobra.Command{
	Use:   "holdings <file>",
	Short: "Parse a holdings PDF or CSV and print the positions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		positions, err := loadPositions(args[0], true)
		if err != nil {
			return err
		}
		if out, _ := cmd.Flags().GetString("csv"); out != "" {
			if err := portfolio.WriteCSVFile(out, positions); err != nil {
				return err
			}
			log.Printf("[INFO] %d positions exported to %s", len(positions), out)
		}
		if out, _ := cmd.Flags().GetString("json"); out != "" {
			if err := portfolio.SaveSnapshot(out, &portfolio.Snapshot{Source: args[0], Positions: positions}); err != nil {
				return err
			}
			log.Printf("[INFO] snapshot saved to %s", out)
		}
		plain, _ := cmd.Flags().GetBool("plain")
		return printMarkdown(positionsMarkdown(positions), plain)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <ticker>",
	Short: "Show past decisions for a ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticker, ok := model.NormalizeTicker(args[0])
		if !ok {
			return fmt.Errorf("%q is not a TSE code", args[0])
		}
		rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			return err
		}
		defer rec.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		hist, err := rec.History(cmd.Context(), ticker, limit)
		if err != nil {
			return err
		}
		if len(hist) == 0 {
			fmt.Printf("no recorded runs for %s\n", ticker)
			return nil
		}
		for _, h := range hist {
			state := "complete"
			if !h.Complete {
				state = "degraded"
			}
			fmt.Printf("%s  %-5s  %.2f  %s  held=%v\n", h.RunAt.Format("2006-01-02"), h.Decision, h.Composite, state, h.Held)
		}
		return nil
	},
}

func positionsMarkdown(positions []model.Position) string {
	var b strings.Builder
	book := portfolio.NewBook(positions, nil)
	b.WriteString(fmt.Sprintf("# Holdings | %d positions, %d tickers\n\n", len(positions), len(book.Holdings)))
	b.WriteString("| Ticker | Name | Account | Quantity | Avg cost | Value | Weight |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, t := range book.Tickers() {
		h := book.Holdings[t]
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %.1f%% |\n",
			h.Ticker, h.Name, strings.Join(h.Accounts, ", "), h.Quantity.String(),
			report.Yen(h.AvgCost()), report.Yen(h.MarketValue), h.Weight*100))
	}
	b.WriteString(fmt.Sprintf("\nTotal %s\n", report.Yen(book.Total)))
	return b.String()
}
