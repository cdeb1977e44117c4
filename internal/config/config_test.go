package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBase(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ACCESS_TOKEN_TTL_MIN", "15")
	t.Setenv("BCRYPT_COST", "4")
}

func TestLoadSQLiteSkipsMySQLVars(t *testing.T) {
	setBase(t)
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("DB_DSN", "/tmp/gym.db")

	cfg := Load()
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "/tmp/gym.db", cfg.DBDSN)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DBHost)
}

func TestLoadMySQL(t *testing.T) {
	setBase(t)
	t.Setenv("DB_DRIVER", "")
	t.Setenv("DB_USER", "gym")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "gym")
	t.Setenv("ADMIN_EMAIL", "admin@gym.io")

	cfg := Load()
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "db", cfg.DBHost)
	assert.Equal(t, "admin@gym.io", cfg.AdminEmail)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "10s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_ENABLED", "off")

	cfg := LoadRateLimitConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 50*time.Second, cfg.TTL)
	assert.Equal(t, "gym:rl", cfg.Prefix)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, "gym:schedule", cfg.Prefix)
}

func TestLoadBrokerAndTelemetryConfig(t *testing.T) {
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")
	t.Setenv("AUDIT_CONSUMER_ENABLED", "false")
	b, err := LoadBrokerConfig()
	require.NoError(t, err)
	assert.Equal(t, "amqp://u:p@mq:5672/", b.URL)
	assert.Equal(t, "gym.events", b.Exchange)
	assert.False(t, b.ConsumerEnabled)
	assert.True(t, b.Enabled)

	t.Setenv("OTEL_ENABLED", "not-a-bool")
	_, err = LoadTelemetryConfig()
	assert.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")
	opts := RedisOptions()
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Nil(t, opts.TLSConfig)
}
