package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "reviewdash", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.NotEmpty(t, cfg.Database.DSN)

	assert.Equal(t, 500, cfg.Ingest.BatchSize)
	assert.Equal(t, 3, cfg.Ingest.MaxAttempts)
	assert.Equal(t, 1200*time.Millisecond, cfg.Ingest.BackoffBase)
	assert.Equal(t, 10, cfg.Ingest.DefaultMaxPages)
	assert.Equal(t, 50, cfg.Ingest.HardMaxPages)
	assert.Equal(t, "th", cfg.Ingest.DefaultCountry)
	assert.Equal(t, "th", cfg.Ingest.DefaultLanguage)

	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("REVIEWDASH_HTTP_ADDR", ":9999")
	t.Setenv("REVIEWDASH_DATABASE_DRIVER", "pgx")
	t.Setenv("REVIEWDASH_INGEST_BACKOFF_BASE", "2s")
	t.Setenv("REVIEWDASH_INGEST_DEFAULT_COUNTRY", "us")
	t.Setenv("REVIEWDASH_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REVIEWDASH_TRACING_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "pgx", cfg.Database.Driver)
	assert.Equal(t, 2*time.Second, cfg.Ingest.BackoffBase)
	assert.Equal(t, "us", cfg.Ingest.DefaultCountry)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Tracing.Enabled)
}
