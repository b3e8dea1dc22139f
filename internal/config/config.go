package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. OMO_QUOTA_TRACKER_PATH.
const EnvPrefix = "OMO_QUOTA"

// Config holds all omo-quota configuration.
type Config struct {
	Tracker    TrackerConfig    `mapstructure:"tracker"`
	Strategy   StrategyConfig   `mapstructure:"strategy"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Server     ServerConfig     `mapstructure:"server"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// TrackerConfig locates the tracker document.
type TrackerConfig struct {
	Path string `mapstructure:"path"`
}

// StrategyConfig locates strategy files and the active configuration.
type StrategyConfig struct {
	Dir        string `mapstructure:"dir"`
	Catalog    string `mapstructure:"catalog"`
	ActivePath string `mapstructure:"active_path"`
	Fallback   string `mapstructure:"fallback"`
}

// ThresholdsConfig holds remaining-percentage warning levels.
type ThresholdsConfig struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

// MonitorConfig defines watch mode settings.
type MonitorConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	AutoSwitch bool          `mapstructure:"auto_switch"`
}

// SyncConfig defines where session logs are read from.
type SyncConfig struct {
	Roots []string `mapstructure:"roots"`
	Unit  string   `mapstructure:"unit"`
}

// StorageConfig defines history database settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig defines the status API listener.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AlertsConfig defines alerting integrations.
type AlertsConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate checks values viper cannot check by type.
func (c *Config) Validate() error {
	t := c.Thresholds
	if t.Critical < 0 || t.Warning > 100 || t.Critical > t.Warning {
		return fmt.Errorf("thresholds: want 0 <= critical (%g) <= warning (%g) <= 100", t.Critical, t.Warning)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive, got %s", c.Monitor.Interval)
	}
	switch c.Sync.Unit {
	case "requests", "tokens":
	default:
		return fmt.Errorf("sync.unit must be requests or tokens, got %q", c.Sync.Unit)
	}
	return nil
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("find home directory: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(filepath.Join(home, ".omo-quota"))
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "omo-quota"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	v.SetDefault("tracker.path", filepath.Join(home, ".omo-quota-tracker.json"))
	v.SetDefault("strategy.dir", filepath.Join(home, ".omo-quota", "strategies"))
	v.SetDefault("strategy.catalog", "")
	v.SetDefault("strategy.active_path", filepath.Join(home, ".config", "opencode", "oh-my-opencode.json"))
	v.SetDefault("strategy.fallback", "economical")
	v.SetDefault("thresholds.warning", 20.0)
	v.SetDefault("thresholds.critical", 10.0)
	v.SetDefault("monitor.interval", "5m")
	v.SetDefault("monitor.auto_switch", false)
	v.SetDefault("sync.roots", []string{
		filepath.Join(xdg.DataHome, "opencode", "storage", "message"),
		filepath.Join(home, ".claude", "projects"),
	})
	v.SetDefault("sync.unit", "requests")
	v.SetDefault("storage.path", filepath.Join(home, ".omo-quota", "history.db"))
	v.SetDefault("server.listen", "127.0.0.1:9310")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("alerts.slack.channel", "#omo-quota")
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "text")

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Tracker.Path = expandHome(cfg.Tracker.Path, home)
	cfg.Strategy.Dir = expandHome(cfg.Strategy.Dir, home)
	cfg.Strategy.Catalog = expandHome(cfg.Strategy.Catalog, home)
	cfg.Strategy.ActivePath = expandHome(cfg.Strategy.ActivePath, home)
	cfg.Storage.Path = expandHome(cfg.Storage.Path, home)
	for i, root := range cfg.Sync.Roots {
		cfg.Sync.Roots[i] = expandHome(root, home)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
