package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show remaining quota for every provider",
	Long:  `Show the remaining quota, warning level and reset time of every tracked provider.`,
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	t := initTracker(cfg, newLogger(cfg))
	report := t.Report()
	if report.Diagnostic != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; showing defaults\n", report.Diagnostic)
	}

	printReport(cmd.OutOrStdout(), report)
	return nil
}
