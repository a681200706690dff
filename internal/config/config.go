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

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	DBSource string
	Driver   string
	Port     string
	Env      string
	LogLevel slog.Level
	Migrate  bool

	// WorkerInterval drives the background event workers and SLA poll; 0 disables them.
	WorkerInterval   time.Duration
	WorkerBatchSize  int
	PollMinInterval  time.Duration
	UnknownSLA       time.Duration
	WebhookRateLimit float64
}

// Load reads the environment, after an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBSource: os.Getenv("DB_SOURCE"),
		Driver:   getenv("STORE_DRIVER", DriverPostgres),
		Port:     getenv("SERVER_PORT", "8080"),
		Env:      getenv("ENVIRONMENT", "development"),
	}

	switch cfg.Driver {
	case DriverPostgres:
		if cfg.DBSource == "" {
			return nil, fmt.Errorf("DB_SOURCE environment variable is required")
		}
	case DriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverMemory, cfg.Driver)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	var err error
	if cfg.Migrate, err = parseBool("MIGRATE", false); err != nil {
		return nil, err
	}
	if cfg.WorkerInterval, err = parseDuration("WORKER_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.WorkerBatchSize, err = parseInt("WORKER_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	if cfg.WorkerBatchSize < 1 || cfg.WorkerBatchSize > 50 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be between 1 and 50, got %d", cfg.WorkerBatchSize)
	}

	minInterval, err := parseInt("TRANSFER_POLL_MIN_INTERVAL_SECONDS", 15)
	if err != nil {
		return nil, err
	}
	sla, err := parseInt("TRANSFER_UNKNOWN_SLA_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	if minInterval < 0 || sla < 0 {
		return nil, fmt.Errorf("transfer poll settings must not be negative")
	}
	cfg.PollMinInterval = time.Duration(minInterval) * time.Second
	cfg.UnknownSLA = time.Duration(sla) * time.Second

	if v := os.Getenv("WEBHOOK_RATE_LIMIT"); v != "" {
		cfg.WebhookRateLimit, err = strconv.ParseFloat(v, 64)
		if err != nil || cfg.WebhookRateLimit < 0 {
			return nil, fmt.Errorf("WEBHOOK_RATE_LIMIT must be a non-negative number, got %q", v)
		}
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
