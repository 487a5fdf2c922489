package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STALKER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STALKER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Trading ──
	setStr(&cfg.Trading.QuoteCurrency, "STALKER_TRADING_QUOTE_CURRENCY")
	setStr(&cfg.Trading.Exchange, "STALKER_TRADING_EXCHANGE")
	setFloat64(&cfg.Trading.StartingBalance, "STALKER_TRADING_STARTING_BALANCE")
	setInt(&cfg.Trading.HistoryCap, "STALKER_TRADING_HISTORY_CAP")
	setDuration(&cfg.Trading.PollInterval, "STALKER_TRADING_POLL_INTERVAL")
	setDuration(&cfg.Trading.SnapshotInterval, "STALKER_TRADING_SNAPSHOT_INTERVAL")

	// ── AutoTrade ──
	setBool(&cfg.AutoTrade.Enabled, "STALKER_AUTOTRADE_ENABLED")
	setDuration(&cfg.AutoTrade.Interval, "STALKER_AUTOTRADE_INTERVAL")
	setFloat64(&cfg.AutoTrade.BuyAmount, "STALKER_AUTOTRADE_BUY_AMOUNT")
	setInt(&cfg.AutoTrade.SellThreshold, "STALKER_AUTOTRADE_SELL_THRESHOLD")
	setFloat64(&cfg.AutoTrade.MinMarketCap, "STALKER_AUTOTRADE_MIN_MARKET_CAP")
	setFloat64(&cfg.AutoTrade.MinVolume, "STALKER_AUTOTRADE_MIN_VOLUME")
	setDuration(&cfg.AutoTrade.MaxListingAge, "STALKER_AUTOTRADE_MAX_LISTING_AGE")
	setInt64(&cfg.AutoTrade.Seed, "STALKER_AUTOTRADE_SEED")

	// ── Oracle ──
	setInt(&cfg.Oracle.MaxRetries, "STALKER_ORACLE_MAX_RETRIES")
	setDuration(&cfg.Oracle.RetryDelay, "STALKER_ORACLE_RETRY_DELAY")
	setFloat64(&cfg.Oracle.Volatility, "STALKER_ORACLE_VOLATILITY")
	setFloat64(&cfg.Oracle.TrendShiftChance, "STALKER_ORACLE_TREND_SHIFT_CHANCE")
	setInt64(&cfg.Oracle.Seed, "STALKER_ORACLE_SEED")

	// ── Gateway ──
	setStr(&cfg.Gateway.BaseURL, "STALKER_GATEWAY_BASE_URL")
	setStr(&cfg.Gateway.ApiKey, "STALKER_GATEWAY_API_KEY")

	// ── Binance ──
	setStr(&cfg.Binance.BaseURL, "STALKER_BINANCE_BASE_URL")
	setStr(&cfg.Binance.ApiKey, "STALKER_BINANCE_API_KEY")
	setStr(&cfg.Binance.ApiSecret, "STALKER_BINANCE_API_SECRET")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "STALKER_FEED_ENABLED")
	setStr(&cfg.Feed.WsURL, "STALKER_FEED_WS_URL")
	setDuration(&cfg.Feed.Window, "STALKER_FEED_WINDOW")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "STALKER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "STALKER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "STALKER_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "STALKER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STALKER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STALKER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STALKER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STALKER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STALKER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "STALKER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "STALKER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "STALKER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STALKER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STALKER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STALKER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STALKER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "STALKER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "STALKER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "STALKER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STALKER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STALKER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STALKER_S3_REGION")
	setStr(&cfg.S3.Bucket, "STALKER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STALKER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STALKER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STALKER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STALKER_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "STALKER_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "STALKER_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.Interval, "STALKER_ARCHIVE_INTERVAL")
	setBool(&cfg.Archive.ExportResults, "STALKER_ARCHIVE_EXPORT_RESULTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STALKER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STALKER_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STALKER_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.ApiKey, "STALKER_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "STALKER_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "STALKER_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STALKER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STALKER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STALKER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STALKER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "STALKER_MODE")
	setStr(&cfg.LogLevel, "STALKER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
