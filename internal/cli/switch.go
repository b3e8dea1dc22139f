package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/starlink-awaken/omo-quota/pkg/strategy"
)

var switchCmd = &cobra.Command{
	Use:   "switch <strategy>",
	Short: "Install a strategy as the active configuration",
	Long: `Back up the active oh-my-opencode configuration, install the strategy file
in its place and record the strategy in the tracker. If installing fails the
backup is restored. Restart opencode to pick up the new configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
}

func runSwitch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	catalog, err := initCatalog(cfg)
	if err != nil {
		return err
	}
	db := initStorage(cfg, logger)
	defer closeStorage(db)

	t := initTracker(cfg, logger)
	sw := initSwitcher(cfg, logger, t, catalog, db)

	res, err := sw.Switch(cmd.Context(), strategy.Request{Strategy: args[0]})
	if err != nil {
		var swErr *strategy.SwitchError
		if errors.As(err, &swErr) {
			errOut := cmd.ErrOrStderr()
			fmt.Fprintf(errOut, "Switch failed while %s.\n", swErr.Stage)
			fmt.Fprintf(errOut, "State: %s.\n", swErr.IntactMessage())
			if errors.Is(err, strategy.ErrUnknownStrategy) {
				fmt.Fprintf(errOut, "Available strategies: %v\n", catalog.Names())
			}
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Switched strategy: %s -> %s\n", res.From, res.To)
	if res.BackupPath != "" {
		fmt.Fprintf(out, "  Backup:  %s\n", res.BackupPath)
	}
	fmt.Fprintf(out, "  Active:  %s\n", sw.ActivePath())
	if res.RestartRequired {
		fmt.Fprintln(out, "Restart opencode to apply the new configuration.")
	}
	return nil
}
