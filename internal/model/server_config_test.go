package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigRequiresSecret(t *testing.T) {
	t.Setenv("BELL_JWT_SECRET", "")

	_, err := LoadServerConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestLoadServerConfigFromEnv(t *testing.T) {
	t.Setenv("BELL_JWT_SECRET", "s3cret")
	t.Setenv("BELL_ADDR", ":9999")
	t.Setenv("BELL_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("BELL_REDIS_ADDR", "localhost:6379")

	cfg, err := LoadServerConfig("")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "blogbell:notifications", cfg.Redis.Channel)
	assert.Equal(t, 15*time.Second, cfg.Push.PingInterval())
	assert.Equal(t, 24*time.Hour, cfg.JWT.TTL())
}

func TestLoadServerConfigFile(t *testing.T) {
	t.Setenv("BELL_JWT_SECRET", "")

	path := filepath.Join(t.TempDir(), "bellserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
jwt:
  secret: from-file
push:
  ping_interval_sec: 5
  buffer_size: 3
rate_limit:
  per_minute: 30
`), 0o600))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, 5*time.Second, cfg.Push.PingInterval())
	assert.Equal(t, 3, cfg.Push.BufferSize)
	assert.Equal(t, 30, cfg.RateLimit.PerMinute)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Redis.Enabled())
}
