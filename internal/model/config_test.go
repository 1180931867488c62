package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	def := DefaultAppConfig()
	assert.Equal(t, def.Server.BaseURL, cfg.Server.BaseURL)
	assert.Equal(t, 110, cfg.Stream.RefreshAfterSec)
	assert.Equal(t, 5, cfg.Stream.ReconnectDelaySec)
	assert.Equal(t, 6, cfg.Notifications.PageSize)
	assert.Equal(t, 10, cfg.Notifications.HistoryPageSize)
	assert.Equal(t, ReadOptimistic, cfg.Notifications.ReadPolicy)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  base_url: https://bell.example.com
stream:
  reconnect_delay_sec: 2
  max_reconnect_delay_sec: 30
notifications:
  read_policy: strict
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://bell.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 110, cfg.Stream.RefreshAfterSec, "unset keys keep defaults")
	assert.Equal(t, 2, cfg.Stream.ReconnectDelaySec)
	assert.Equal(t, 30, cfg.Stream.MaxReconnectDelaySec)
	assert.Equal(t, ReadStrict, cfg.Notifications.ReadPolicy)
	assert.Equal(t, 6, cfg.Notifications.PageSize)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("notifications:\n  read_policy: eventually\n"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read_policy")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"base url", func(c *AppConfig) { c.Server.BaseURL = "" }, "server.base_url"},
		{"refresh", func(c *AppConfig) { c.Stream.RefreshAfterSec = 0 }, "refresh_after_sec"},
		{"reconnect", func(c *AppConfig) { c.Stream.ReconnectDelaySec = -1 }, "reconnect_delay_sec"},
		{"page size", func(c *AppConfig) { c.Notifications.PageSize = 0 }, "page_size"},
		{"history page size", func(c *AppConfig) { c.Notifications.HistoryPageSize = -1 }, "history_page_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultAppConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, DefaultAppConfig().Validate())
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultAppConfig()
	cfg.Server.BaseURL = "http://bell.internal:9000"
	cfg.Notifications.ReadPolicy = ReadStrict
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server.BaseURL, loaded.Server.BaseURL)
	assert.Equal(t, ReadStrict, loaded.Notifications.ReadPolicy)
	assert.Equal(t, cfg.Stream.RefreshAfter(), loaded.Stream.RefreshAfter())
}
