package model

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// ReadPolicy controls how read acknowledgements are applied locally.
type ReadPolicy string

const (
	// ReadOptimistic patches local state before the server confirms and
	// keeps the patch when the server call fails.
	ReadOptimistic ReadPolicy = "optimistic"

	// ReadStrict patches local state only after the server confirms.
	ReadStrict ReadPolicy = "strict"
)

// ServerEndpoint holds the location of the notification server.
type ServerEndpoint struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// StreamConfig holds the timing of the live notification channel.
type StreamConfig struct {
	// RefreshAfterSec is how long an open channel lives before it is
	// proactively renewed. It must stay below the server's idle timeout.
	RefreshAfterSec int `mapstructure:"refresh_after_sec" yaml:"refresh_after_sec"`

	// ReconnectDelaySec is the wait between a channel failure and the
	// next connect attempt.
	ReconnectDelaySec int `mapstructure:"reconnect_delay_sec" yaml:"reconnect_delay_sec"`

	// MaxReconnectDelaySec enables doubling backoff up to this cap when
	// greater than ReconnectDelaySec. Zero keeps the delay fixed.
	MaxReconnectDelaySec int `mapstructure:"max_reconnect_delay_sec" yaml:"max_reconnect_delay_sec"`
}

// RefreshAfter returns RefreshAfterSec as a duration.
func (c StreamConfig) RefreshAfter() time.Duration {
	return time.Duration(c.RefreshAfterSec) * time.Second
}

// ReconnectDelay returns ReconnectDelaySec as a duration.
func (c StreamConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySec) * time.Second
}

// MaxReconnectDelay returns MaxReconnectDelaySec as a duration.
func (c StreamConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(c.MaxReconnectDelaySec) * time.Second
}

// NotificationsConfig holds the behaviour of the notification store.
type NotificationsConfig struct {
	PageSize        int        `mapstructure:"page_size" yaml:"page_size"`
	HistoryPageSize int        `mapstructure:"history_page_size" yaml:"history_page_size"`
	ReadPolicy      ReadPolicy `mapstructure:"read_policy" yaml:"read_policy"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`
}

// LogConfig controls where and how verbosely the client logs.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level client configuration.
type AppConfig struct {
	Server        ServerEndpoint      `mapstructure:"server" yaml:"server"`
	Stream        StreamConfig        `mapstructure:"stream" yaml:"stream"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Display       DisplayConfig       `mapstructure:"display" yaml:"display"`
	Log           LogConfig           `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/blogbell/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "blogbell", "config.yaml")
}

// defaultLogFile places the log next to the config file, since the
// terminal itself belongs to the UI.
func defaultLogFile() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "blogbell.log")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerEndpoint{
			BaseURL: "http://localhost:8080",
		},
		Stream: StreamConfig{
			RefreshAfterSec:   110,
			ReconnectDelaySec: 5,
		},
		Notifications: NotificationsConfig{
			PageSize:        6,
			HistoryPageSize: 10,
			ReadPolicy:      ReadOptimistic,
		},
		Display: DisplayConfig{
			Theme: "default",
		},
		Log: LogConfig{
			Level: "info",
			File:  defaultLogFile(),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	def := DefaultAppConfig()
	v.SetDefault("server.base_url", def.Server.BaseURL)
	v.SetDefault("stream.refresh_after_sec", def.Stream.RefreshAfterSec)
	v.SetDefault("stream.reconnect_delay_sec", def.Stream.ReconnectDelaySec)
	v.SetDefault("stream.max_reconnect_delay_sec", 0)
	v.SetDefault("notifications.page_size", def.Notifications.PageSize)
	v.SetDefault("notifications.history_page_size", def.Notifications.HistoryPageSize)
	v.SetDefault("notifications.read_policy", string(def.Notifications.ReadPolicy))
	v.SetDefault("display.theme", def.Display.Theme)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.file", def.Log.File)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports configuration values the client cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Stream.RefreshAfterSec <= 0 {
		return fmt.Errorf("stream.refresh_after_sec must be positive")
	}
	if c.Stream.ReconnectDelaySec <= 0 {
		return fmt.Errorf("stream.reconnect_delay_sec must be positive")
	}
	if c.Notifications.PageSize <= 0 {
		return fmt.Errorf("notifications.page_size must be positive")
	}
	if c.Notifications.HistoryPageSize <= 0 {
		return fmt.Errorf("notifications.history_page_size must be positive")
	}
	switch c.Notifications.ReadPolicy {
	case ReadOptimistic, ReadStrict:
	default:
		return fmt.Errorf("unknown notifications.read_policy %q", c.Notifications.ReadPolicy)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("stream", cfg.Stream)
	v.Set("notifications", cfg.Notifications)
	v.Set("display", cfg.Display)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
