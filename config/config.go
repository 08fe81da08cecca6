package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"stocksignal/models"
)

// Config holds all application configuration.
type Config struct {
	ListenAddr      string
	LogLevel        string
	ProxyBaseURL    string
	RequestTimeout  int // seconds
	RequestsPerSec  int
	LookbackDays    int
	CacheTTLMinutes int
	TickerDelayMs   int
	RateLimitTries  int
	RateLimitWaitMs int

	RSIPeriod       int
	RSITripleSignal float64
	MFIPeriod       int
	MFITripleSignal float64
	BBPeriod        int
	BBStdDev        float64

	DBDriver string
	DBDSN    string

	TelegramToken  string
	TelegramChatID int64

	AnalysisCron string
}

// Load initializes configuration from environment variables.
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	cfg := &Config{
		ListenAddr:      getEnvWithDefault("LISTEN_ADDR", ":8090"),
		LogLevel:        getEnvWithDefault("LOG_LEVEL", "info"),
		ProxyBaseURL:    os.Getenv("PROXY_BASE_URL"),
		RequestTimeout:  getEnvIntWithDefault("REQUEST_TIMEOUT", 30),
		RequestsPerSec:  getEnvIntWithDefault("REQUESTS_PER_SEC", 2),
		LookbackDays:    getEnvIntWithDefault("LOOKBACK_DAYS", 180),
		CacheTTLMinutes: getEnvIntWithDefault("CACHE_TTL_MINUTES", 5),
		TickerDelayMs:   getEnvIntWithDefault("TICKER_DELAY_MS", 300),
		RateLimitTries:  getEnvIntWithDefault("RATE_LIMIT_TRIES", 3),
		RateLimitWaitMs: getEnvIntWithDefault("RATE_LIMIT_WAIT_MS", 3000),

		RSIPeriod:       getEnvIntWithDefault("RSI_PERIOD", 14),
		RSITripleSignal: getEnvFloatWithDefault("RSI_TRIPLE_SIGNAL", 30),
		MFIPeriod:       getEnvIntWithDefault("MFI_PERIOD", 14),
		MFITripleSignal: getEnvFloatWithDefault("MFI_TRIPLE_SIGNAL", 30),
		BBPeriod:        getEnvIntWithDefault("BB_PERIOD", 20),
		BBStdDev:        getEnvFloatWithDefault("BB_STD_DEV", 1),

		DBDriver: getEnvWithDefault("DB_DRIVER", "sqlite"),
		DBDSN:    getEnvWithDefault("DB_DSN", "stocksignal.db"),

		TelegramToken:  os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatID: getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0),

		AnalysisCron: os.Getenv("ANALYSIS_CRON"),
	}

	return cfg, nil
}

// Settings builds the analysis settings carried by this configuration.
func (c *Config) Settings() models.AnalysisSettings {
	return models.AnalysisSettings{
		RSIPeriod:       c.RSIPeriod,
		RSITripleSignal: c.RSITripleSignal,
		MFIPeriod:       c.MFIPeriod,
		MFITripleSignal: c.MFITripleSignal,
		BBPeriod:        c.BBPeriod,
		BBStdDev:        c.BBStdDev,
	}
}

// CacheTTL returns the series cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

// TickerDelay returns the fixed inter-ticker delay.
func (c *Config) TickerDelay() time.Duration {
	return time.Duration(c.TickerDelayMs) * time.Millisecond
}

// RateLimitWait returns the base wait between rate-limit retries.
func (c *Config) RateLimitWait() time.Duration {
	return time.Duration(c.RateLimitWaitMs) * time.Millisecond
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
