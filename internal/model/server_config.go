package model

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// JWTConfig holds the token verification settings of the server.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
	TTLMin int    `mapstructure:"ttl_min"`
}

// TTL returns TTLMin as a duration.
func (c JWTConfig) TTL() time.Duration {
	return time.Duration(c.TTLMin) * time.Minute
}

// PushConfig holds the timing of server-sent event streams.
type PushConfig struct {
	PingIntervalSec int `mapstructure:"ping_interval_sec"`
	BufferSize      int `mapstructure:"buffer_size"`
}

// PingInterval returns PingIntervalSec as a duration.
func (c PushConfig) PingInterval() time.Duration {
	return time.Duration(c.PingIntervalSec) * time.Second
}

// CORSConfig lists the browser origins allowed to call the server.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig bounds requests per client IP.
type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
	Burst     int `mapstructure:"burst"`
}

// RedisConfig enables cross-instance fan-out when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// Enabled reports whether Redis fan-out is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// KafkaConfig enables activity ingestion when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// Enabled reports whether Kafka ingestion is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

// ServerLogConfig controls the server logger.
type ServerLogConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig is the top-level notification server configuration.
type ServerConfig struct {
	Addr      string          `mapstructure:"addr"`
	DBPath    string          `mapstructure:"db_path"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Push      PushConfig      `mapstructure:"push"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Log       ServerLogConfig `mapstructure:"log"`
}

// LoadServerConfig reads the server configuration from an optional YAML
// file and BELL_-prefixed environment variables (BELL_JWT_SECRET, ...).
// An empty path skips the file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("bell")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "bellserver.db")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "blogbell")
	v.SetDefault("jwt.ttl_min", 24*60)
	v.SetDefault("push.ping_interval_sec", 15)
	v.SetDefault("push.buffer_size", 10)
	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("rate_limit.per_minute", 120)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "blogbell:notifications")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "blog.activity")
	v.SetDefault("kafka.group_id", "bellserver")
	v.SetDefault("log.development", false)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}

	// Environment values arrive as a single comma separated string.
	if raw := os.Getenv("BELL_KAFKA_BROKERS"); raw != "" {
		cfg.Kafka.Brokers = splitList(raw)
	}
	if raw := os.Getenv("BELL_CORS_ALLOWED_ORIGINS"); raw != "" {
		cfg.CORS.AllowedOrigins = splitList(raw)
	}

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("jwt.secret is required (set BELL_JWT_SECRET)")
	}
	if cfg.Push.PingIntervalSec <= 0 {
		return nil, fmt.Errorf("push.ping_interval_sec must be positive")
	}

	return &cfg, nil
}

// splitList splits a comma separated list, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
