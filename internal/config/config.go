// Package config reads the service settings from the environment, with an
// optional .env file in the working directory.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	// HTTP settings
	HTTPAddr    string
	CORSOrigins []string

	// Storage settings
	StorageDriver string // memory | sqlite | postgres
	DatabaseURL   string
	DataFile      string // JSON snapshot for the memory driver, empty disables it
	RetryAttempts int    // database connection attempts at startup
	RetryDelay    time.Duration

	// Ingestion settings
	FeedsConfigPath   string
	MaxEntriesPerFeed int
	FetchTimeout      time.Duration
	IngestInterval    time.Duration // 0 disables periodic runs
	KnownURLTTL       time.Duration
	FallbackCategory  string // overrides the feeds file when set

	// Auth settings
	JWTSecret string
	TokenTTL  time.Duration

	// App settings
	LogLevel string
	Debug    bool
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("Skipping .env", "error", err)
	}

	cfg := &Config{
		HTTPAddr:          getEnvOrDefault("HTTP_ADDR", ":8000"),
		CORSOrigins:       splitList(getEnvOrDefault("CORS_ORIGINS", "*")),
		StorageDriver:     strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", DriverMemory)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DataFile:          os.Getenv("DATA_FILE"),
		FeedsConfigPath:   getEnvOrDefault("FEEDS_CONFIG_PATH", "configs/feeds.yaml"),
		MaxEntriesPerFeed: getEnvIntOrDefault("MAX_ENTRIES_PER_FEED", 10),
		FetchTimeout:      getEnvDurationOrDefault("FETCH_TIMEOUT", 30*time.Second),
		RetryAttempts:     getEnvIntOrDefault("RETRY_ATTEMPTS", 3),
		RetryDelay:        getEnvDurationOrDefault("RETRY_DELAY", 5*time.Second),
		IngestInterval:    getEnvDurationOrDefault("INGEST_INTERVAL", 30*time.Minute),
		KnownURLTTL:       getEnvDurationOrDefault("KNOWN_URL_TTL", 48*time.Hour),
		FallbackCategory:  strings.TrimSpace(os.Getenv("FALLBACK_CATEGORY")),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		TokenTTL:          getEnvDurationOrDefault("TOKEN_TTL", 30*time.Minute),
		LogLevel:          getEnvOrDefault("LOG_LEVEL", "info"),
		Debug:             os.Getenv("DEBUG") == "true",
	}
	if cfg.StorageDriver == DriverSQLite && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "newsagg.db"
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go durations ("90s") and bare seconds ("90").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be one of memory, sqlite, postgres; got %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxEntriesPerFeed <= 0 {
		return fmt.Errorf("MAX_ENTRIES_PER_FEED must be positive")
	}
	if c.IngestInterval < 0 {
		return fmt.Errorf("INGEST_INTERVAL must not be negative")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	return nil
}
