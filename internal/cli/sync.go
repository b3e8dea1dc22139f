package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/starlink-awaken/omo-quota/pkg/usage"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Count this month's usage from local session logs",
	Long: `Scan opencode and Claude session logs for assistant messages sent this
month and store the per-provider totals as the used value of monthly providers.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("dry-run", false, "Print the counts without updating the tracker")
	syncCmd.Flags().String("unit", "", "Count requests or tokens (default from config)")
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	unitFlag, _ := cmd.Flags().GetString("unit")
	if unitFlag == "" {
		unitFlag = cfg.Sync.Unit
	}
	unit, err := usage.ParseUnit(unitFlag)
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	summary, err := usage.NewScanner(cfg.Sync.Roots, logger).Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan session logs: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %d files for %s\n\n", summary.Files, summary.Month)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROVIDER\tREQUESTS\tTOKENS\tESTIMATED\n")
	for _, id := range summary.ProviderIDs() {
		p := summary.Providers[id]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", id, p.Requests, p.Tokens(), p.Estimated)
	}
	w.Flush()

	if dryRun {
		return nil
	}

	result, err := initTracker(cfg, logger).Sync(summary.Values(unit))
	if err != nil {
		return fmt.Errorf("sync tracker: %w", err)
	}

	fmt.Fprintln(out)
	for _, id := range sortedKeys(result.Applied) {
		fmt.Fprintf(out, "Applied %s: %g %s\n", id, result.Applied[id], unit)
	}
	for _, id := range sortedKeys(result.Skipped) {
		fmt.Fprintf(out, "Skipped %s: %s\n", id, result.Skipped[id])
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
