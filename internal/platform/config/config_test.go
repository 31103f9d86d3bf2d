package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("SESSION_SIGNING_KEY", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, DevSigningKey, cfg.Session.SigningKey)
	assert.Equal(t, 720*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadRequiresSigningKeyOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SESSION_SIGNING_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SIGNING_KEY")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SESSION_SIGNING_KEY", "prod-key")
	t.Setenv("SESSION_TTL", "24h")
	t.Setenv("RATE_LIMIT_MAX", "5")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 5, cfg.RateLimit.Max)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsSubSecondWindow(t *testing.T) {
	t.Setenv("RATE_LIMIT_WINDOW", "500ms")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeHashCost(t *testing.T) {
	for _, cost := range []string{"2", "32"} {
		t.Setenv("PIN_HASH_COST", cost)
		_, err := Load()
		assert.Error(t, err, "cost %s", cost)
	}

	t.Setenv("PIN_HASH_COST", "4")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.PIN.HashCost)
}
