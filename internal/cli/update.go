package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update <provider> <value>",
	Short: "Set the usage of a provider",
	Long: `Set the raw usage of a provider:
  monthly providers: requests used this month
  hourly providers:  percent of the pool used (0-100)
  balance providers: remaining balance`,
	Args: cobra.ExactArgs(2),
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", args[1], err)
	}

	t := initTracker(cfg, newLogger(cfg))
	if err := t.Update(args[0], value); err != nil {
		return fmt.Errorf("update %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s to %g\n", args[0], value)
	return nil
}
