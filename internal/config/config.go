package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all service configuration loaded from the environment.
type Config struct {
	Environment string
	LogLevel    string

	Database   DatabaseConfig
	Redis      RedisConfig
	MarketData MarketDataConfig
	Screener   ScreenerConfig
	Telegram   TelegramConfig
	API        APIConfig
}

// DatabaseConfig holds PostgreSQL connection and write-queue settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	WriteBatchSize int
	WriteInterval  time.Duration
	WriteQueueSize int
	MaxRetries     int
	RetryDelay     time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// MarketDataConfig holds market data provider settings.
type MarketDataConfig struct {
	Provider           string
	BaseURL            string
	Headers            map[string]string
	Symbols            []string
	RequestTimeout     time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
	ChartResolution    time.Duration
	LookbackBars       int
}

// ScreenerConfig holds scan-cycle settings for the screener service.
type ScreenerConfig struct {
	ScanInterval    time.Duration
	MaxConcurrent   int
	SymbolTimeout   time.Duration
	StrategyPath    string
	HealthCheckPort int
	SignalChannel   string
	CooldownTTL     time.Duration
	DedupeTTL       time.Duration
}

// TelegramConfig holds Telegram bot settings for signal notifications.
type TelegramConfig struct {
	BotToken     string
	APIBaseURL   string
	PollInterval time.Duration
	PollTimeout  time.Duration
	SendTimeout  time.Duration
}

// APIConfig holds settings for the HTTP/WebSocket API service.
type APIConfig struct {
	Port            int
	HealthCheckPort int
	JWTSecret       string
	RateLimitRPS    int
	WSPingInterval  time.Duration
	WSWriteTimeout  time.Duration
}

// Load reads configuration from environment variables, falling back to
// a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "screener"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			WriteBatchSize:  getEnvAsInt("DB_WRITE_BATCH_SIZE", 100),
			WriteInterval:   getEnvAsDuration("DB_WRITE_INTERVAL", 5*time.Second),
			WriteQueueSize:  getEnvAsInt("DB_WRITE_QUEUE_SIZE", 10000),
			MaxRetries:      getEnvAsInt("DB_MAX_RETRIES", 3),
			RetryDelay:      getEnvAsDuration("DB_RETRY_DELAY", time.Second),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		MarketData: MarketDataConfig{
			Provider:           getEnv("MARKET_DATA_PROVIDER", "http"),
			BaseURL:            getEnv("MARKET_DATA_BASE_URL", ""),
			Headers:            getEnvAsHeaderMap("MARKET_DATA_HEADERS"),
			Symbols:            getEnvAsStringSlice("MARKET_DATA_SYMBOLS", nil),
			RequestTimeout:     getEnvAsDuration("MARKET_DATA_REQUEST_TIMEOUT", 10*time.Second),
			RateLimitPerMinute: getEnvAsInt("MARKET_DATA_RATE_LIMIT_PER_MINUTE", 120),
			RateLimitBurst:     getEnvAsInt("MARKET_DATA_RATE_LIMIT_BURST", 5),
			ChartResolution:    getEnvAsDuration("MARKET_DATA_CHART_RESOLUTION", 5*time.Minute),
			LookbackBars:       getEnvAsInt("MARKET_DATA_LOOKBACK_BARS", 120),
		},
		Screener: ScreenerConfig{
			ScanInterval:    getEnvAsDuration("SCAN_INTERVAL", time.Minute),
			MaxConcurrent:   getEnvAsInt("MAX_CONCURRENT", 5),
			SymbolTimeout:   getEnvAsDuration("SYMBOL_TIMEOUT", 30*time.Second),
			StrategyPath:    getEnv("STRATEGY_CONFIG_PATH", "config/strategy.json"),
			HealthCheckPort: getEnvAsInt("SCREENER_HEALTH_PORT", 8081),
			SignalChannel:   getEnv("SIGNAL_CHANNEL", "signals.live"),
			CooldownTTL:     getEnvAsDuration("ALERT_COOLDOWN_TTL", 30*time.Minute),
			DedupeTTL:       getEnvAsDuration("ALERT_DEDUPE_TTL", 6*time.Hour),
		},
		Telegram: TelegramConfig{
			BotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
			APIBaseURL:   getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
			PollInterval: getEnvAsDuration("TELEGRAM_POLL_INTERVAL", 5*time.Second),
			PollTimeout:  getEnvAsDuration("TELEGRAM_POLL_TIMEOUT", 30*time.Second),
			SendTimeout:  getEnvAsDuration("TELEGRAM_SEND_TIMEOUT", 10*time.Second),
		},
		API: APIConfig{
			Port:            getEnvAsInt("API_PORT", 8090),
			HealthCheckPort: getEnvAsInt("API_HEALTH_PORT", 8091),
			JWTSecret:       getEnv("JWT_SECRET", ""),
			RateLimitRPS:    getEnvAsInt("API_RATE_LIMIT_RPS", 100),
			WSPingInterval:  getEnvAsDuration("WS_PING_INTERVAL", 30*time.Second),
			WSWriteTimeout:  getEnvAsDuration("WS_WRITE_TIMEOUT", 10*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535")
	}
	if c.Database.WriteBatchSize <= 0 {
		return fmt.Errorf("DB_WRITE_BATCH_SIZE must be positive")
	}
	if c.Database.WriteQueueSize <= 0 {
		return fmt.Errorf("DB_WRITE_QUEUE_SIZE must be positive")
	}
	if c.Database.MaxRetries < 0 {
		return fmt.Errorf("DB_MAX_RETRIES must not be negative")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		return fmt.Errorf("REDIS_PORT must be between 1 and 65535")
	}
	switch c.MarketData.Provider {
	case "http":
		if c.MarketData.BaseURL == "" {
			return fmt.Errorf("MARKET_DATA_BASE_URL is required for the http provider")
		}
	case "mock":
	default:
		return fmt.Errorf("MARKET_DATA_PROVIDER must be http or mock, got %q", c.MarketData.Provider)
	}
	if c.MarketData.RequestTimeout <= 0 {
		return fmt.Errorf("MARKET_DATA_REQUEST_TIMEOUT must be positive")
	}
	if c.MarketData.RateLimitPerMinute < 1 {
		return fmt.Errorf("MARKET_DATA_RATE_LIMIT_PER_MINUTE must be at least 1")
	}
	if c.MarketData.RateLimitBurst < 1 {
		return fmt.Errorf("MARKET_DATA_RATE_LIMIT_BURST must be at least 1")
	}
	if c.MarketData.ChartResolution <= 0 {
		return fmt.Errorf("MARKET_DATA_CHART_RESOLUTION must be positive")
	}
	if c.MarketData.LookbackBars < 1 {
		return fmt.Errorf("MARKET_DATA_LOOKBACK_BARS must be at least 1")
	}
	if c.Screener.ScanInterval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive")
	}
	if c.Screener.MaxConcurrent < 1 {
		return fmt.Errorf("MAX_CONCURRENT must be at least 1")
	}
	if c.Screener.SymbolTimeout <= 0 {
		return fmt.Errorf("SYMBOL_TIMEOUT must be positive")
	}
	if c.Screener.StrategyPath == "" {
		return fmt.Errorf("STRATEGY_CONFIG_PATH is required")
	}
	if c.Screener.SignalChannel == "" {
		return fmt.Errorf("SIGNAL_CHANNEL is required")
	}
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("API_PORT must be between 1 and 65535")
	}
	if c.API.RateLimitRPS < 1 {
		return fmt.Errorf("API_RATE_LIMIT_RPS must be at least 1")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// Addr returns the Redis address in host:port form.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

// getEnvAsHeaderMap parses "Key:Value,Key2:Value2" into a header map.
func getEnvAsHeaderMap(key string) map[string]string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(valueStr, ",") {
		name, value, found := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			continue
		}
		headers[name] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
