package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/starlink-awaken/omo-quota/internal/config"
	"github.com/starlink-awaken/omo-quota/internal/monitor"
	"github.com/starlink-awaken/omo-quota/pkg/storage"
	"github.com/starlink-awaken/omo-quota/pkg/usage"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Check quota periodically and alert when it runs low",
	Long: `Sync usage, reload the tracker and evaluate every provider on a fixed
interval. An alert is raised once per provider and usage decile; with
--auto-switch a critical provider switches to the most economical strategy.
Stop with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", 0, "Time between checks (default from config)")
	watchCmd.Flags().Float64("threshold", 0, "Alert when remaining percent falls below this (default from config)")
	watchCmd.Flags().Bool("auto-switch", false, "Switch to the economical strategy on critical usage")
	watchCmd.Flags().Bool("no-sync", false, "Do not scan session logs before each check")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("interval") {
		cfg.Monitor.Interval, _ = cmd.Flags().GetDuration("interval")
	}
	if cmd.Flags().Changed("threshold") {
		cfg.Thresholds.Warning, _ = cmd.Flags().GetFloat64("threshold")
	}
	if cmd.Flags().Changed("auto-switch") {
		cfg.Monitor.AutoSwitch, _ = cmd.Flags().GetBool("auto-switch")
	}
	noSync, _ := cmd.Flags().GetBool("no-sync")

	logger := newLogger(cfg)
	db := initStorage(cfg, logger)
	defer closeStorage(db)

	m, err := newMonitor(cfg, logger, db, !noSync)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	m.OnTick(func(res *monitor.TickResult) {
		fmt.Fprintf(out, "\n[%s]\n", time.Now().Format("15:04:05"))
		printReport(out, res.Report)
		for _, a := range res.Alerts {
			fmt.Fprintf(out, "ALERT %s: %s\n", a.Level, a.Message)
		}
		if res.Switched != nil {
			fmt.Fprintf(out, "Switched strategy: %s -> %s (restart opencode)\n", res.Switched.From, res.Switched.To)
		}
		if res.SwitchErr != nil {
			fmt.Fprintf(out, "Automatic switch failed: %v\n", res.SwitchErr)
		}
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return m.Run(ctx)
}

// newMonitor wires a monitor from config. db may be nil.
func newMonitor(cfg *config.Config, logger *slog.Logger, db *storage.SQLite, withSync bool) (*monitor.Monitor, error) {
	unit, err := usage.ParseUnit(cfg.Sync.Unit)
	if err != nil {
		return nil, err
	}
	catalog, err := initCatalog(cfg)
	if err != nil {
		return nil, err
	}

	t := initTracker(cfg, logger)
	m := monitor.New(t, catalog, initSwitcher(cfg, logger, t, catalog, db), monitor.Options{
		Interval:   cfg.Monitor.Interval,
		Threshold:  cfg.Thresholds.Warning,
		AutoSwitch: cfg.Monitor.AutoSwitch,
		Fallback:   cfg.Strategy.Fallback,
		Unit:       unit,
	}, logger).WithNotifiers(initNotifiers(cfg)...)

	if withSync {
		m.WithSyncer(usage.NewScanner(cfg.Sync.Roots, logger))
	}
	if db != nil {
		m.WithHistory(db)
	}
	return m, nil
}
