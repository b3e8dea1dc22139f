package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var currentCmd = &cobra.Command{
	Use:   "current",
	Short: "Print the active strategy",
	Args:  cobra.NoArgs,
	RunE:  runCurrent,
}

func init() {
	rootCmd.AddCommand(currentCmd)
}

func runCurrent(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	current := initTracker(cfg, newLogger(cfg)).CurrentStrategy()
	fmt.Fprintln(cmd.OutOrStdout(), current)

	catalog, err := initCatalog(cfg)
	if err != nil {
		return err
	}
	if !catalog.Has(current) {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %q is not a known strategy\n", current)
	}
	return nil
}
