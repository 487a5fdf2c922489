// Package config defines the top-level configuration for the stalker daemon
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STALKER_* environment variables.
type Config struct {
	Trading   TradingConfig   `toml:"trading"`
	AutoTrade AutoTradeConfig `toml:"autotrade"`
	Oracle    OracleConfig    `toml:"oracle"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Binance   BinanceConfig   `toml:"binance"`
	Feed      FeedConfig      `toml:"feed"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	S3        S3Config        `toml:"s3"`
	Archive   ArchiveConfig   `toml:"archive"`
	Server    ServerConfig    `toml:"server"`
	Notify    NotifyConfig    `toml:"notify"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// TradingConfig holds the parameters shared by manual and automatic trading.
type TradingConfig struct {
	// QuoteCurrency is the currency trades are priced and settled in.
	QuoteCurrency string `toml:"quote_currency"`
	// Exchange is the venue used when an order does not name one.
	Exchange string `toml:"exchange"`
	// StartingBalance seeds the virtual cash account paper buys draw from.
	StartingBalance float64 `toml:"starting_balance"`
	// HistoryCap bounds the per-position price history ring.
	HistoryCap int `toml:"history_cap"`
	// PollInterval is how often held positions are re-priced.
	PollInterval duration `toml:"poll_interval"`
	// SnapshotInterval is how often the position book is persisted.
	SnapshotInterval duration `toml:"snapshot_interval"`
}

// AutoTradeConfig holds the auto-trading loop parameters.
type AutoTradeConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	BuyAmount     float64  `toml:"buy_amount"`
	SellThreshold int      `toml:"sell_threshold"`
	MinMarketCap  float64  `toml:"min_market_cap"`
	MinVolume     float64  `toml:"min_volume"`
	MaxListingAge duration `toml:"max_listing_age"`
	Seed          int64    `toml:"seed"`
}

// OracleConfig holds price oracle retry and simulation parameters.
type OracleConfig struct {
	MaxRetries       int      `toml:"max_retries"`
	RetryDelay       duration `toml:"retry_delay"`
	Volatility       float64  `toml:"volatility"`
	TrendShiftChance float64  `toml:"trend_shift_chance"`
	Seed             int64    `toml:"seed"`
}

// GatewayConfig holds the multi-exchange gateway endpoint and credentials.
type GatewayConfig struct {
	BaseURL string `toml:"base_url"`
	ApiKey  string `toml:"api_key"`
}

// BinanceConfig holds Binance API credentials for the native fallback venue.
type BinanceConfig struct {
	BaseURL   string `toml:"base_url"`
	ApiKey    string `toml:"api_key"`
	ApiSecret string `toml:"api_secret"`
}

// FeedConfig holds the new-listings websocket feed parameters.
type FeedConfig struct {
	Enabled bool   `toml:"enabled"`
	WsURL   string `toml:"ws_url"`
	// Window bounds how long a listing stays in the candidate pool.
	Window duration `toml:"window"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds trade archival and results-export parameters. Archival
// needs both Postgres (source) and S3 (sink) enabled.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	Interval      duration `toml:"interval"`
	ExportResults bool     `toml:"export_results"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled         bool     `toml:"enabled"`
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	ApiKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Trading: TradingConfig{
			QuoteCurrency:    "USDT",
			Exchange:         "binance",
			StartingBalance:  10_000,
			HistoryCap:       500,
			PollInterval:     duration{3 * time.Second},
			SnapshotInterval: duration{time.Minute},
		},
		AutoTrade: AutoTradeConfig{
			Enabled:       false,
			Interval:      duration{30 * time.Second},
			BuyAmount:     100,
			SellThreshold: 3,
			MinMarketCap:  1_000_000,
			MinVolume:     500_000,
			MaxListingAge: duration{24 * time.Hour},
		},
		Oracle: OracleConfig{
			MaxRetries:       3,
			RetryDelay:       duration{500 * time.Millisecond},
			Volatility:       2.0,
			TrendShiftChance: 0.15,
		},
		Binance: BinanceConfig{
			BaseURL: "https://api.binance.com",
		},
		Feed: FeedConfig{
			Enabled: false,
			Window:  duration{24 * time.Hour},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "cryptostalker",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stalker-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			Interval:      duration{24 * time.Hour},
			ExportResults: true,
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_executed", "auto_trade", "error"},
		},
		Mode:     "simulated",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"simulated": true,
	"live":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: simulated, live)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Trading
	if c.Trading.QuoteCurrency == "" {
		errs = append(errs, "trading: quote_currency must not be empty")
	}
	if c.Trading.Exchange == "" {
		errs = append(errs, "trading: exchange must not be empty")
	}
	if c.Trading.StartingBalance < 0 {
		errs = append(errs, "trading: starting_balance must be >= 0")
	}
	if c.Trading.HistoryCap < 1 {
		errs = append(errs, "trading: history_cap must be >= 1")
	}
	if c.Trading.PollInterval.Duration <= 0 {
		errs = append(errs, "trading: poll_interval must be > 0")
	}

	// AutoTrade
	if c.AutoTrade.BuyAmount <= 0 {
		errs = append(errs, "autotrade: buy_amount must be > 0")
	}
	if c.AutoTrade.SellThreshold < 1 {
		errs = append(errs, "autotrade: sell_threshold must be >= 1")
	}
	if c.AutoTrade.Interval.Duration <= 0 {
		errs = append(errs, "autotrade: interval must be > 0")
	}

	// Oracle
	if c.Oracle.MaxRetries < 1 {
		errs = append(errs, "oracle: max_retries must be >= 1")
	}
	if c.Oracle.Volatility <= 0 {
		errs = append(errs, "oracle: volatility must be > 0")
	}
	if c.Oracle.TrendShiftChance < 0 || c.Oracle.TrendShiftChance > 1 {
		errs = append(errs, "oracle: trend_shift_chance must be within [0, 1]")
	}

	// Live execution needs at least one venue to talk to.
	if strings.ToLower(c.Mode) == "live" {
		if c.Gateway.BaseURL == "" && c.Binance.ApiKey == "" {
			errs = append(errs, "live mode requires gateway.base_url or binance credentials")
		}
	}

	// Binance — key and secret must be set together, or both empty.
	bk := c.Binance.ApiKey != ""
	bs := c.Binance.ApiSecret != ""
	if bk != bs {
		errs = append(errs, "binance: api_key and api_secret must both be set together")
	}

	// Feed
	if c.Feed.Enabled {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url is required when the feed is enabled")
		}
		if c.Feed.Window.Duration <= 0 {
			errs = append(errs, "feed: window must be > 0")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Archive
	if c.Archive.Enabled {
		if !c.Postgres.Enabled || !c.S3.Enabled {
			errs = append(errs, "archive: requires both postgres and s3 to be enabled")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
