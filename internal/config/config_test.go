package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starlink-awaken/omo-quota/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".omo-quota-tracker.json"), cfg.Tracker.Path)
	assert.Equal(t, filepath.Join(home, ".omo-quota", "strategies"), cfg.Strategy.Dir)
	assert.Equal(t, filepath.Join(home, ".config", "opencode", "oh-my-opencode.json"), cfg.Strategy.ActivePath)
	assert.Equal(t, "economical", cfg.Strategy.Fallback)
	assert.Empty(t, cfg.Strategy.Catalog)
	assert.Equal(t, 20.0, cfg.Thresholds.Warning)
	assert.Equal(t, 10.0, cfg.Thresholds.Critical)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Interval)
	assert.False(t, cfg.Monitor.AutoSwitch)
	assert.Len(t, cfg.Sync.Roots, 2)
	assert.Equal(t, "requests", cfg.Sync.Unit)
	assert.Equal(t, "127.0.0.1:9310", cfg.Server.Listen)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "#omo-quota", cfg.Alerts.Slack.Channel)
}

func TestLoad_FromFile(t *testing.T) {
	home := isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
tracker:
  path: ~/state/tracker.json
strategy:
  dir: /opt/strategies
  catalog: ~/catalog.yaml
thresholds:
  warning: 30
  critical: 15
monitor:
  interval: 30s
  auto_switch: true
sync:
  roots: [/logs/a, ~/logs/b]
  unit: tokens
logging:
  level: debug
alerts:
  webhook:
    enabled: true
    url: https://example.com/hook
`)
	require.NoError(t, os.WriteFile(cfgPath, data, 0o644))

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "state", "tracker.json"), cfg.Tracker.Path)
	assert.Equal(t, "/opt/strategies", cfg.Strategy.Dir)
	assert.Equal(t, filepath.Join(home, "catalog.yaml"), cfg.Strategy.Catalog)
	assert.Equal(t, 30.0, cfg.Thresholds.Warning)
	assert.Equal(t, 30*time.Second, cfg.Monitor.Interval)
	assert.True(t, cfg.Monitor.AutoSwitch)
	assert.Equal(t, []string{"/logs/a", filepath.Join(home, "logs", "b")}, cfg.Sync.Roots)
	assert.Equal(t, "tokens", cfg.Sync.Unit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Alerts.Webhook.Enabled)
	assert.Equal(t, "https://example.com/hook", cfg.Alerts.Webhook.URL)
}

func TestLoad_SearchPath(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".omo-quota")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  listen: 127.0.0.1:9999\n"), 0o644))

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Listen)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OMO_QUOTA_TRACKER_PATH", "/tmp/override.json")
	t.Setenv("OMO_QUOTA_LOGGING_LEVEL", "error")
	t.Setenv("OMO_QUOTA_MONITOR_AUTO_SWITCH", "true")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.json", cfg.Tracker.Path)
	assert.Equal(t, "error", cfg.Logging.Level)
	assert.True(t, cfg.Monitor.AutoSwitch)
}

func TestLoad_InvalidFile(t *testing.T) {
	isolate(t)
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("invalid: [yaml"), 0o644))

	_, err := config.Load(cfgPath)
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"inverted thresholds", "thresholds:\n  warning: 5\n  critical: 10\n", "thresholds"},
		{"bad unit", "sync:\n  unit: dollars\n", "sync.unit"},
		{"zero interval", "monitor:\n  interval: 0s\n", "monitor.interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			cfgPath := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte(tt.body), 0o644))

			_, err := config.Load(cfgPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
