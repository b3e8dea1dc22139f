package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset [provider]",
	Short: "Re-baseline a provider's reset window",
	Long: `Re-baseline a provider: hourly pools restart their window now, monthly
providers start the current month at zero. Use --expired to re-baseline every
hourly pool whose window has passed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
	resetCmd.Flags().Bool("expired", false, "Reset every expired hourly provider")
}

func runReset(cmd *cobra.Command, args []string) error {
	expired, _ := cmd.Flags().GetBool("expired")
	if expired == (len(args) == 1) {
		return errors.New("specify exactly one of <provider> or --expired")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t := initTracker(cfg, newLogger(cfg))
	out := cmd.OutOrStdout()

	if expired {
		ids, err := t.ResetExpired()
		if err != nil {
			return fmt.Errorf("reset expired: %w", err)
		}
		if len(ids) == 0 {
			fmt.Fprintln(out, "No expired providers.")
			return nil
		}
		fmt.Fprintf(out, "Reset %s\n", strings.Join(ids, ", "))
		return nil
	}

	if err := t.Reset(args[0]); err != nil {
		return fmt.Errorf("reset %s: %w", args[0], err)
	}
	fmt.Fprintf(out, "Reset %s\n", args[0])
	return nil
}
