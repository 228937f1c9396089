package main

import (
	"fmt"
	"log"

	"DividendSentinel/internal/config"

	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("[FATAL] %v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dividendsentinel",
	Short: "Weekly BUY/HOLD/SELL/WATCH decisions for Japanese dividend-growth stocks",
	Long: `DividendSentinel reads market data from J-Quants, cross-references the
holdings exported from the brokerage and ranks dividend-growth value stocks
into a weekly decision report. It only recommends and never trades.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		flag, _ := cmd.Flags().GetString("config")
		path := config.Path(flag)
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if pdf, _ := cmd.Flags().GetString("pdf"); pdf != "" {
			cfg.Holdings.PDFPath = pdf
		}
		log.Printf("[INFO] config loaded from %s", path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: $CONFIG_PATH or ./config.yaml)")

	runCmd.Flags().String("pdf", "", "holdings PDF, CSV or JSON snapshot (overrides holdings.pdf_path)")
	runCmd.Flags().Bool("no-record", false, "do not write the run to the history database")
	runCmd.Flags().Bool("no-notify", false, "do not send the Telegram summary")
	runCmd.Flags().Bool("no-screen", false, "score holdings and watchlist only, without market-wide candidates")
	runCmd.Flags().Bool("plain", false, "print raw Markdown instead of rendering it")
	runCmd.Flags().Bool("ignore-holdings-errors", false, "continue when some holdings rows cannot be parsed")

	serveCmd.Flags().String("pdf", "", "holdings PDF, CSV or JSON snapshot (overrides holdings.pdf_path)")
	serveCmd.Flags().Bool("run-now", false, "execute the weekly run once at startup")
	serveCmd.Flags().Bool("ignore-holdings-errors", false, "continue when some holdings rows cannot be parsed")

	holdingsCmd.Flags().String("csv", "", "export the parsed positions to this CSV file")
	holdingsCmd.Flags().String("json", "", "save the parsed positions as a JSON snapshot")
	holdingsCmd.Flags().Bool("plain", false, "print raw Markdown instead of rendering it")

	historyCmd.Flags().Int("limit", 12, "number of past runs to show")

	rootCmd.AddCommand(runCmd, serveCmd, holdingsCmd, historyCmd)
}
