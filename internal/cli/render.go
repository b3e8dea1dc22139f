package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/starlink-awaken/omo-quota/pkg/quota"
	"github.com/starlink-awaken/omo-quota/pkg/tracker"
)

// printReport renders the provider table shared by status and watch.
func printReport(out io.Writer, report *tracker.Report) {
	fmt.Fprintf(out, "Strategy: %s\n\n", report.CurrentStrategy)

	if len(report.Providers) == 0 {
		fmt.Fprintln(out, "No providers tracked. Add entries to the tracker file to start.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PROVIDER\tTYPE\tREMAINING\tLEVEL\tDETAIL\n")
	for _, pr := range report.Providers {
		if pr.Err != nil {
			fmt.Fprintf(w, "%s\t%s\t-\t-\t%v\n", pr.ID, pr.Kind, pr.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", pr.ID, pr.Kind, remainingCell(pr.Estimate), levelCell(pr), detailCell(pr))
	}
	w.Flush()
}

func remainingCell(e quota.Estimate) string {
	switch {
	case !e.Valid:
		return "n/a"
	case e.Expired:
		return quota.Expired
	default:
		return fmt.Sprintf("%.1f%%", e.Percent)
	}
}

func levelCell(pr tracker.ProviderReport) string {
	if !pr.Estimate.Valid {
		return "-"
	}
	if pr.Estimate.Expired {
		return "reset due"
	}
	return pr.Level.String()
}

func detailCell(pr tracker.ProviderReport) string {
	switch st := pr.Status.(type) {
	case quota.Monthly:
		return fmt.Sprintf("%s: %g/%g", st.Month, st.Used, st.Limit)
	case quota.Hourly:
		if pr.Estimate.Expired {
			return "run `omo-quota reset " + pr.ID + "`"
		}
		return "resets in " + pr.TimeUntilReset
	case quota.Balance:
		return st.Raw
	default:
		return ""
	}
}
