package monitor

import (
	"fmt"
	"math"

	"github.com/starlink-awaken/omo-quota/pkg/alerts"
	"github.com/starlink-awaken/omo-quota/pkg/tracker"
)

// Severity bands, in percent used.
const (
	CriticalUsedPct = 90.0
	WarningUsedPct  = 80.0
)

// AlertKey identifies an alert for de-duplication: "{provider}-{decile}" for
// usage alerts and "{provider}-expired" for re-baseline notices.
type AlertKey string

// Set is the collection of alert keys raised on one tick.
type Set map[AlertKey]struct{}

// Has reports whether k is in the set.
func (s Set) Has(k AlertKey) bool {
	_, ok := s[k]
	return ok
}

// Evaluation is the outcome of checking one report against a threshold.
type Evaluation struct {
	// Alerts holds only the alerts whose keys were not raised on the previous tick.
	Alerts []alerts.Alert
	// Next replaces the previous set for the following tick.
	Next Set
	// Critical is true when a newly raised alert is critical.
	Critical bool
}

// Evaluate compares every provider with the warning threshold (a remaining
// percentage). prev is never modified; providers that recovered simply do
// not appear in Next.
func Evaluate(report *tracker.Report, threshold float64, prev Set) Evaluation {
	ev := Evaluation{Next: make(Set)}
	if report == nil {
		return ev
	}

	for _, pr := range report.Providers {
		if pr.Err != nil || !pr.Estimate.Valid {
			continue
		}

		alert := alerts.Alert{
			Provider: pr.ID,
			Kind:     pr.Kind.String(),
			Strategy: report.CurrentStrategy,
		}

		var key AlertKey
		if pr.Estimate.Expired {
			key = AlertKey(pr.ID + "-expired")
			alert.Level = alerts.AlertExpired
			alert.Message = fmt.Sprintf("%s reset window has passed; re-baseline it with `omo-quota reset %s`", pr.ID, pr.ID)
		} else {
			used := pr.Estimate.UsedPercent()
			level, ok := severity(used, threshold)
			if !ok {
				continue
			}
			key = AlertKey(fmt.Sprintf("%s-%d", pr.ID, decile(used)))
			alert.Level = level
			alert.UsedPct = used
			alert.RemainingPct = pr.Estimate.Percent
			alert.Message = fmt.Sprintf("%s is at %.1f%% used (%.1f%% remaining)", pr.ID, used, pr.Estimate.Percent)
		}

		ev.Next[key] = struct{}{}
		if prev.Has(key) {
			continue
		}
		ev.Alerts = append(ev.Alerts, alert)
		if alert.Level == alerts.AlertCritical {
			ev.Critical = true
		}
	}
	return ev
}

func severity(usedPct, threshold float64) (alerts.AlertLevel, bool) {
	switch {
	case usedPct >= CriticalUsedPct:
		return alerts.AlertCritical, true
	case usedPct >= WarningUsedPct:
		return alerts.AlertWarning, true
	case usedPct >= 100-threshold:
		return alerts.AlertNotice, true
	default:
		return "", false
	}
}

func decile(usedPct float64) int {
	if usedPct < 0 {
		return 0
	}
	return int(math.Floor(usedPct / 10))
}
