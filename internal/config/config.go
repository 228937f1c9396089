package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"DividendSentinel/internal/collector"
	"DividendSentinel/internal/infra"
	"DividendSentinel/internal/model"
	"DividendSentinel/internal/session"
	"DividendSentinel/internal/strategy"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither a flag nor CONFIG_PATH names a file.
const DefaultPath = "config.yaml"

// Config holds all application configuration.
type Config struct {
	JQuants struct {
		BaseURL      string        `yaml:"base_url"`
		Email        string        `yaml:"email"`
		Password     string        `yaml:"password"`
		RefreshToken string        `yaml:"refresh_token"`
		Timeout      time.Duration `yaml:"timeout"`
		TokenMargin  time.Duration `yaml:"token_margin"`
	} `yaml:"jquants"`
	Holdings struct {
		PDFPath   string `yaml:"pdf_path"`
		ExportCSV bool   `yaml:"export_csv"`
	} `yaml:"holdings"`
	Output struct {
		Dir string `yaml:"dir"`
	} `yaml:"output"`
	Universe struct {
		Watchlist    []string `yaml:"watchlist"`
		LookbackDays int      `yaml:"lookback_days"`
		// Screen adds market-wide candidates to holdings and watchlist.
		Screen struct {
			Enabled       bool `yaml:"enabled"`
			MaxCandidates int  `yaml:"max_candidates"`
			StatementDays int  `yaml:"statement_days"`
		} `yaml:"screen"`
	} `yaml:"universe"`
	Scoring strategy.Config `yaml:"scoring"`
	Cache   struct {
		SQLitePath          string `yaml:"sqlite_path"`
		collector.Freshness `yaml:",inline"`
	} `yaml:"cache"`
	Client struct {
		Concurrency   int           `yaml:"concurrency"`
		RateLimit     int           `yaml:"rate_limit"`
		RateWindow    time.Duration `yaml:"rate_window"`
		TickerTimeout time.Duration `yaml:"ticker_timeout"`
		Retry         struct {
			MaxAttempts int           `yaml:"max_attempts"`
			BaseDelay   time.Duration `yaml:"base_delay"`
			MaxDelay    time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`
	} `yaml:"client"`
	Schedule struct {
		WeeklyCron string `yaml:"weekly_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Path resolves the config file: the flag value, then CONFIG_PATH, then
// DefaultPath.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Policy defaults are decoded over, so an explicit zero in the file stays zero.
	cfg.Scoring = strategy.DefaultConfig()
	cfg.Cache.Freshness = collector.DefaultFreshness()
	cfg.Universe.Screen.Enabled = true

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("JQUANTS_EMAIL"); v != "" {
		cfg.JQuants.Email = v
	}
	if v := os.Getenv("JQUANTS_PASSWORD"); v != "" {
		cfg.JQuants.Password = v
	}
	if v := os.Getenv("JQUANTS_REFRESH_TOKEN"); v != "" {
		cfg.JQuants.RefreshToken = v
	}
	if v := os.Getenv("PDF_PATH"); v != "" {
		cfg.Holdings.PDFPath = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		cfg.Output.Dir = v
	}
	if v := os.Getenv("CRON_WEEKLY"); v != "" {
		cfg.Schedule.WeeklyCron = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("MARKET_SCREEN"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("MARKET_SCREEN: %w", err)
		}
		cfg.Universe.Screen.Enabled = on
	}
	if v := os.Getenv("CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("CONCURRENCY: %w", err)
		}
		cfg.Client.Concurrency = n
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.JQuants.BaseURL == "" {
		c.JQuants.BaseURL = session.DefaultBaseURL
	}
	if c.JQuants.Timeout == 0 {
		c.JQuants.Timeout = 30 * time.Second
	}
	if c.JQuants.TokenMargin == 0 {
		c.JQuants.TokenMargin = session.DefaultMargin
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "out"
	}
	if c.Universe.LookbackDays == 0 {
		c.Universe.LookbackDays = 400
	}
	if c.Universe.Screen.MaxCandidates == 0 {
		c.Universe.Screen.MaxCandidates = 20
	}
	if c.Universe.Screen.StatementDays == 0 {
		c.Universe.Screen.StatementDays = collector.DefaultStatementDays
	}

	if c.Client.Concurrency == 0 {
		c.Client.Concurrency = 4
	}
	if c.Client.RateLimit == 0 {
		c.Client.RateLimit = 60
	}
	if c.Client.RateWindow == 0 {
		c.Client.RateWindow = time.Minute
	}
	if c.Client.TickerTimeout == 0 {
		c.Client.TickerTimeout = 2 * time.Minute
	}
	retry := infra.DefaultRetryPolicy()
	if c.Client.Retry.MaxAttempts == 0 {
		c.Client.Retry.MaxAttempts = retry.MaxAttempts
	}
	if c.Client.Retry.BaseDelay == 0 {
		c.Client.Retry.BaseDelay = retry.BaseDelay
	}
	if c.Client.Retry.MaxDelay == 0 {
		c.Client.Retry.MaxDelay = retry.MaxDelay
	}

	if c.Schedule.WeeklyCron == "" {
		// Saturday 07:00, after the Friday close has been published.
		c.Schedule.WeeklyCron = "0 0 7 * * 6"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/dividend_sentinel.db"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.JQuants.RefreshToken == "" && (c.JQuants.Email == "" || c.JQuants.Password == "") {
		return fmt.Errorf("jquants.refresh_token or jquants.email and jquants.password are required")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	if c.Client.Concurrency < 1 {
		return fmt.Errorf("client.concurrency must be positive")
	}
	if c.Client.RateLimit < 1 || c.Client.RateWindow <= 0 {
		return fmt.Errorf("client.rate_limit and client.rate_window must be positive")
	}
	if c.Universe.LookbackDays < 365 {
		return fmt.Errorf("universe.lookback_days must cover the 52-week range, got %d", c.Universe.LookbackDays)
	}
	if c.Universe.Screen.MaxCandidates < 0 || c.Universe.Screen.StatementDays < 0 {
		return fmt.Errorf("universe.screen.max_candidates and universe.screen.statement_days must not be negative")
	}
	for _, code := range c.Universe.Watchlist {
		if _, ok := model.NormalizeTicker(code); !ok {
			return fmt.Errorf("universe.watchlist: %q is not a TSE code", code)
		}
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("scoring: %w", err)
	}
	return nil
}

// Credentials returns the J-Quants login material.
func (c *Config) Credentials() session.Credentials {
	return session.Credentials{
		Email:        c.JQuants.Email,
		Password:     c.JQuants.Password,
		RefreshToken: c.JQuants.RefreshToken,
	}
}

// NotifyEnabled reports whether the weekly summary is pushed to Telegram.
func (c *Config) NotifyEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// RetryPolicy returns the configured retry policy.
func (c *Config) RetryPolicy() infra.RetryPolicy {
	p := infra.DefaultRetryPolicy()
	p.MaxAttempts = c.Client.Retry.MaxAttempts
	p.BaseDelay = c.Client.Retry.BaseDelay
	p.MaxDelay = c.Client.Retry.MaxDelay
	return p
}

// Watchlist returns the normalized watchlist codes.
func (c *Config) Watchlist() []string {
	out := make([]string, 0, len(c.Universe.Watchlist))
	for _, code := range c.Universe.Watchlist {
		if t, ok := model.NormalizeTicker(code); ok {
			out = append(out, t)
		}
	}
	return out
}
