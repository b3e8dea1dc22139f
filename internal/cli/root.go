package cli

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/starlink-awaken/omo-quota/internal/config"
	"github.com/starlink-awaken/omo-quota/pkg/alerts"
	"github.com/starlink-awaken/omo-quota/pkg/quota"
	"github.com/starlink-awaken/omo-quota/pkg/storage"
	"github.com/starlink-awaken/omo-quota/pkg/strategy"
	"github.com/starlink-awaken/omo-quota/pkg/tracker"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Process exit codes.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitSaveFailed   = 2
	ExitSwitchFailed = 3
	ExitDiverged     = 4
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "omo-quota",
	Short: "omo-quota - quota tracking and strategy switching for oh-my-opencode",
	Long: `omo-quota tracks the remaining quota of every model provider used by
oh-my-opencode and switches the active agent configuration between strategies
(performance, balanced, economical) when quota runs low.

Exit codes:
  0  success
  1  generic or usage error
  2  tracker file could not be saved
  3  strategy switch failed; the active configuration is unchanged
  4  strategy installed but the tracker could not record it`,
	SilenceUsage: true,
}

// Execute runs the CLI and exits with a code describing the failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCode(err))
	}
}

// ExitCode maps an error returned by a command onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var swErr *strategy.SwitchError
	if errors.As(err, &swErr) {
		if swErr.Diverged() {
			return ExitDiverged
		}
		return ExitSwitchFailed
	}
	if errors.Is(err, tracker.ErrSave) {
		return ExitSaveFailed
	}
	return ExitError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.omo-quota/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initTracker creates the tracker over the configured document.
func initTracker(cfg *config.Config, logger *slog.Logger) *tracker.Tracker {
	store := tracker.NewStore(cfg.Tracker.Path, logger)
	thresholds := quota.Thresholds{
		Warning:  cfg.Thresholds.Warning,
		Critical: cfg.Thresholds.Critical,
	}
	return tracker.NewTracker(store, thresholds, logger)
}

// initCatalog builds the strategy catalog.
func initCatalog(cfg *config.Config) (*strategy.Catalog, error) {
	return strategy.LoadCatalog(cfg.Strategy.Dir, cfg.Strategy.Catalog)
}

// initStorage opens the history database. History is optional: a failure is
// logged and nil is returned.
func initStorage(cfg *config.Config, logger *slog.Logger) *storage.SQLite {
	db, err := storage.NewSQLite(cfg.Storage.Path)
	if err != nil {
		logger.Warn("history storage unavailable", "path", cfg.Storage.Path, "error", err)
		return nil
	}
	return db
}

// initSwitcher wires a switcher. db may be nil.
func initSwitcher(cfg *config.Config, logger *slog.Logger, t *tracker.Tracker, catalog *strategy.Catalog, db *storage.SQLite) *strategy.Switcher {
	var history strategy.History
	if db != nil {
		history = db
	}
	return strategy.NewSwitcher(catalog, cfg.Strategy.ActivePath, t, history, logger)
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

func closeStorage(db *storage.SQLite) {
	if db != nil {
		_ = db.Close()
	}
}
