package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/starlink-awaken/omo-quota/pkg/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show strategy switches and quota alerts",
	Long:  `Show recorded strategy switch attempts and quota alerts for a time period.`,
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringP("period", "P", "weekly", "History period (daily, weekly, monthly)")
	historyCmd.Flags().StringP("strategy", "s", "", "Filter switches by target strategy")
	historyCmd.Flags().StringP("provider", "p", "", "Filter alerts by provider")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum rows per table (0 for all)")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	period, _ := cmd.Flags().GetString("period")
	strategyFilter, _ := cmd.Flags().GetString("strategy")
	providerFilter, _ := cmd.Flags().GetString("provider")
	limit, _ := cmd.Flags().GetInt("limit")

	switch model.Period(period) {
	case model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly:
	default:
		return fmt.Errorf("invalid period %q (want daily, weekly or monthly)", period)
	}

	db := initStorage(cfg, newLogger(cfg))
	if db == nil {
		return errors.New("history storage unavailable")
	}
	defer db.Close()

	start, end := model.PeriodBounds(model.Period(period), time.Now())
	filter := model.HistoryFilter{
		Provider:  providerFilter,
		Strategy:  strategyFilter,
		StartTime: start,
		EndTime:   end,
		Limit:     limit,
	}

	ctx := cmd.Context()
	switches, err := db.ListSwitches(ctx, filter)
	if err != nil {
		return err
	}
	counts, err := db.CountSwitches(ctx, filter)
	if err != nil {
		return err
	}
	alertRecords, err := db.ListAlerts(ctx, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== History (%s) ===\n", period)
	fmt.Fprintf(out, "Period: %s to %s\n\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	fmt.Fprintf(out, "Switches: %d succeeded, %d failed, %d diverged\n",
		counts[model.SwitchSucceeded], counts[model.SwitchFailed], counts[model.SwitchDiverged])

	if len(switches) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  TIMESTAMP\tFROM\tTO\tOUTCOME\tSTAGE\tAUTO\n")
		for _, s := range switches {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%t\n",
				s.Timestamp.Local().Format("2006-01-02 15:04"),
				s.From, s.To, s.Outcome, s.Stage, s.Automatic,
			)
		}
		w.Flush()
	}

	fmt.Fprintf(out, "\nAlerts: %d\n", len(alertRecords))
	if len(alertRecords) > 0 {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "  TIMESTAMP\tPROVIDER\tLEVEL\tUSED\n")
		for _, a := range alertRecords {
			fmt.Fprintf(w, "  %s\t%s\t%s\t%.1f%%\n",
				a.Timestamp.Local().Format("2006-01-02 15:04"),
				a.Provider, a.Level, a.UsedPct,
			)
		}
		w.Flush()
	}

	return nil
}
