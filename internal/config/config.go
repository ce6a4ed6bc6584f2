package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DatabaseURL          string
	StateDir             string
	HTTPPort             string
	AdminAPIKey          string
	ReferenceTZ          string
	CoinGeckoURL         string
	CoinGeckoDelay       time.Duration
	CoinGeckoRetryMax    int
	CoinGeckoRateLimit   int
	DexScreenerURL       string
	CoinPaprikaURL       string
	CoinCapURL           string
	JupiterURL           string
	SearchTimeout        time.Duration
	PriceConcurrency     int
	BatchSize            int
	QuoteWorkerInterval  time.Duration
	ReportWorkerInterval time.Duration
	SheetsSpreadsheetID  string
	SheetsCredentials    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		DatabaseURL:          envOrDefault("DATABASE_URL", ""),
		StateDir:             envOrDefault("STATE_DIR", ".holdings"),
		HTTPPort:             envOrDefault("HTTP_PORT", "8080"),
		AdminAPIKey:          envOrDefault("ADMIN_API_KEY", ""),
		ReferenceTZ:          envOrDefault("REFERENCE_TZ", "Asia/Shanghai"),
		CoinGeckoURL:         envOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		CoinGeckoDelay:       envOrDefaultDuration("COINGECKO_DELAY", 6*time.Second),
		CoinGeckoRetryMax:    envOrDefaultInt("COINGECKO_RETRY_MAX", 2),
		CoinGeckoRateLimit:   envOrDefaultInt("COINGECKO_RATE_LIMIT", 5),
		DexScreenerURL:       envOrDefault("DEXSCREENER_URL", "https://api.dexscreener.com"),
		CoinPaprikaURL:       envOrDefault("COINPAPRIKA_URL", "https://api.coinpaprika.com/v1"),
		CoinCapURL:           envOrDefault("COINCAP_URL", "https://api.coincap.io/v2"),
		JupiterURL:           envOrDefault("JUPITER_URL", "https://token.jup.ag"),
		SearchTimeout:        envOrDefaultDuration("SEARCH_TIMEOUT", 6*time.Second),
		PriceConcurrency:     envOrDefaultInt("PRICE_CONCURRENCY", 4),
		BatchSize:            envOrDefaultInt("BATCH_SIZE", 25),
		QuoteWorkerInterval:  envOrDefaultDuration("QUOTE_WORKER_INTERVAL", 15*time.Minute),
		ReportWorkerInterval: envOrDefaultDuration("REPORT_WORKER_INTERVAL", 24*time.Hour),
		SheetsSpreadsheetID:  envOrDefault("SHEETS_SPREADSHEET_ID", ""),
		SheetsCredentials:    envOrDefault("SHEETS_CREDENTIALS_JSON", ""),
	}
}

// Location resolves ReferenceTZ, falling back to UTC when the zone is unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ReferenceTZ)
	if err != nil {
		slog.Warn("unknown reference time zone, using UTC", "zone", c.ReferenceTZ, "error", err)
		return time.UTC
	}
	return loc
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func envOrDefaultDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "default", defaultVal)
			return defaultVal
		}
		return d
	}
	return defaultVal
}
