// Package config loads developer-environment overrides on top of the
// operator-supplied YAML file (internal/bootstrap). These are conveniences
// for local runs, never a substitute for the YAML control-plane config.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Env holds environment-variable overrides for local/dev runs.
type Env struct {
	UseMockFeed   bool
	BinanceSymbols []string
	LogVerbose    bool
	DBPathOverride string
}

// Load reads .env (if present) and environment variables into Env.
// Missing .env is not an error; the process falls back to defaults.
func Load() *Env {
	_ = godotenv.Load()

	return &Env{
		UseMockFeed:    getEnv("USE_MOCK_FEED", "false") == "true",
		BinanceSymbols: splitAndTrim(getEnv("BINANCE_SYMBOLS", "")),
		LogVerbose:     getEnv("LOG_VERBOSE", "false") == "true",
		DBPathOverride: os.Getenv("DB_PATH"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, strings.ToUpper(t))
		}
	}
	return out
}
