package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	"DB_SOURCE", "STORE_DRIVER", "SERVER_PORT", "ENVIRONMENT", "LOG_LEVEL", "MIGRATE",
	"WORKER_INTERVAL", "WORKER_BATCH_SIZE", "TRANSFER_POLL_MIN_INTERVAL_SECONDS",
	"TRANSFER_UNKNOWN_SLA_SECONDS", "WEBHOOK_RATE_LIMIT",
}

func clearEnv(t *testing.T) {
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_SOURCE", "postgres://localhost/ledger")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.False(t, cfg.Migrate)
	assert.Zero(t, cfg.WorkerInterval)
	assert.Equal(t, 50, cfg.WorkerBatchSize)
	assert.Equal(t, 15*time.Second, cfg.PollMinInterval)
	assert.Equal(t, 120*time.Second, cfg.UnknownSLA)
	assert.Zero(t, cfg.WebhookRateLimit)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("MIGRATE", "true")
	t.Setenv("WORKER_INTERVAL", "2s")
	t.Setenv("WORKER_BATCH_SIZE", "10")
	t.Setenv("TRANSFER_POLL_MIN_INTERVAL_SECONDS", "5")
	t.Setenv("TRANSFER_UNKNOWN_SLA_SECONDS", "60")
	t.Setenv("WEBHOOK_RATE_LIMIT", "2.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Driver)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.True(t, cfg.Migrate)
	assert.Equal(t, 2*time.Second, cfg.WorkerInterval)
	assert.Equal(t, 10, cfg.WorkerBatchSize)
	assert.Equal(t, 5*time.Second, cfg.PollMinInterval)
	assert.Equal(t, time.Minute, cfg.UnknownSLA)
	assert.InDelta(t, 2.5, cfg.WebhookRateLimit, 1e-9)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := map[string]map[string]string{
		"postgres without dsn": {},
		"unknown driver":       {"STORE_DRIVER": "sqlite"},
		"batch too large":      {"STORE_DRIVER": "memory", "WORKER_BATCH_SIZE": "51"},
		"bad interval":         {"STORE_DRIVER": "memory", "WORKER_INTERVAL": "soon"},
		"bad level":            {"STORE_DRIVER": "memory", "LOG_LEVEL": "loud"},
		"negative rate":        {"STORE_DRIVER": "memory", "WEBHOOK_RATE_LIMIT": "-1"},
		"negative sla":         {"STORE_DRIVER": "memory", "TRANSFER_UNKNOWN_SLA_SECONDS": "-5"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
