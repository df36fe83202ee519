package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MARKET_DATA_PROVIDER", "mock")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, time.Minute, cfg.Screener.ScanInterval)
	assert.Equal(t, 5, cfg.Screener.MaxConcurrent)
	assert.Equal(t, 120, cfg.MarketData.RateLimitPerMinute)
	assert.Equal(t, 5*time.Minute, cfg.MarketData.ChartResolution)
	assert.Equal(t, "signals.live", cfg.Screener.SignalChannel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MARKET_DATA_PROVIDER", "http")
	t.Setenv("MARKET_DATA_BASE_URL", "https://md.example.com/v1")
	t.Setenv("MARKET_DATA_HEADERS", "X-Api-Key:abc123, X-Client : screener")
	t.Setenv("MARKET_DATA_SYMBOLS", "COMI, HRHO,SWDY ,")
	t.Setenv("SCAN_INTERVAL", "30s")
	t.Setenv("MAX_CONCURRENT", "8")
	t.Setenv("REDIS_HOST", "redis.internal")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://md.example.com/v1", cfg.MarketData.BaseURL)
	assert.Equal(t, map[string]string{
		"X-Api-Key": "abc123",
		"X-Client":  "screener",
	}, cfg.MarketData.Headers)
	assert.Equal(t, []string{"COMI", "HRHO", "SWDY"}, cfg.MarketData.Symbols)
	assert.Equal(t, 30*time.Second, cfg.Screener.ScanInterval)
	assert.Equal(t, 8, cfg.Screener.MaxConcurrent)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr())
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"http provider without base url", "MARKET_DATA_PROVIDER", "http"},
		{"unknown provider", "MARKET_DATA_PROVIDER", "csv"},
		{"zero scan interval", "SCAN_INTERVAL", "0s"},
		{"zero max concurrent", "MAX_CONCURRENT", "0"},
		{"bad redis port", "REDIS_PORT", "70000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key != "MARKET_DATA_PROVIDER" {
				t.Setenv("MARKET_DATA_PROVIDER", "mock")
			}
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	db := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "screener",
		Password: "secret",
		DBName:   "signals",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=screener password=secret dbname=signals sslmode=require",
		db.DSN())
}

func TestGetEnvAsHeaderMap(t *testing.T) {
	t.Setenv("TEST_HEADERS", "Authorization:Bearer tok, , broken-pair,X-Env:prod")

	headers := getEnvAsHeaderMap("TEST_HEADERS")
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer tok",
		"X-Env":         "prod",
	}, headers)

	assert.Nil(t, getEnvAsHeaderMap("TEST_HEADERS_MISSING"))
}

func TestGetEnvAsDurationFallback(t *testing.T) {
	t.Setenv("TEST_DURATION", "not-a-duration")
	assert.Equal(t, 7*time.Second, getEnvAsDuration("TEST_DURATION", 7*time.Second))
}
