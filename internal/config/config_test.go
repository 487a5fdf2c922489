package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "simulated", cfg.Mode)
	assert.Equal(t, "USDT", cfg.Trading.QuoteCurrency)
	assert.Equal(t, 500, cfg.Trading.HistoryCap)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTempConfig(t, `
mode = "live"

[gateway]
base_url = "https://gateway.example.com"
api_key = "k"

[autotrade]
enabled = true
interval = "10s"
buy_amount = 25.0

[feed]
enabled = true
ws_url = "wss://listings.example.com/ws"
window = "12h"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, "https://gateway.example.com", cfg.Gateway.BaseURL)
	assert.True(t, cfg.AutoTrade.Enabled)
	assert.Equal(t, 10*time.Second, cfg.AutoTrade.Interval.Duration)
	assert.Equal(t, 25.0, cfg.AutoTrade.BuyAmount)
	assert.Equal(t, 12*time.Hour, cfg.Feed.Window.Duration)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Oracle.MaxRetries)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `mode = "simulated"`)

	t.Setenv("STALKER_MODE", "live")
	t.Setenv("STALKER_GATEWAY_BASE_URL", "https://gw.internal")
	t.Setenv("STALKER_AUTOTRADE_BUY_AMOUNT", "50.5")
	t.Setenv("STALKER_TRADING_POLL_INTERVAL", "7s")
	t.Setenv("STALKER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("STALKER_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, "https://gw.internal", cfg.Gateway.BaseURL)
	assert.Equal(t, 50.5, cfg.AutoTrade.BuyAmount)
	assert.Equal(t, 7*time.Second, cfg.Trading.PollInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Redis.Enabled)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.AutoTrade.BuyAmount = 0
	cfg.Trading.QuoteCurrency = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
	assert.Contains(t, err.Error(), `unknown log_level "loud"`)
	assert.Contains(t, err.Error(), "buy_amount must be > 0")
	assert.Contains(t, err.Error(), "quote_currency must not be empty")
}

func TestValidateLiveModeNeedsVenue(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "live mode requires")

	cfg.Gateway.BaseURL = "https://gateway.example.com"
	require.NoError(t, cfg.Validate())
}

func TestValidateArchiveNeedsBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires both postgres and s3")

	cfg.Postgres.Enabled = true
	cfg.S3.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestValidateBinanceCredsPaired(t *testing.T) {
	cfg := Defaults()
	cfg.Binance.ApiKey = "key-only"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must both be set together")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.ApiKey = "gw-secret"
	cfg.Binance.ApiSecret = "bn-secret"
	cfg.Postgres.Password = "pg-secret"
	cfg.Redis.Password = "rd-secret"
	cfg.S3.SecretKey = "s3-secret"
	cfg.Server.ApiKey = "srv-secret"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Gateway.ApiKey)
	assert.Equal(t, "***", red.Binance.ApiSecret)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.ApiKey)

	// Original is untouched; empty secrets stay empty.
	assert.Equal(t, "gw-secret", cfg.Gateway.ApiKey)
	assert.Empty(t, red.Binance.ApiKey)

	// Mutating the redacted copy's slices must not leak back.
	red.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
