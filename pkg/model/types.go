package model

import (
	"encoding/json"
	"time"
)

// DefaultStrategy is the strategy recorded in a freshly created tracker document.
const DefaultStrategy = "balanced"

// TrackerDocument is the persisted quota tracker state.
type TrackerDocument struct {
	Providers       map[string]ProviderStatus `json:"providers"`
	CurrentStrategy string                    `json:"currentStrategy"`

	// Malformed holds provider entries whose JSON did not decode. They are
	// written back verbatim on save.
	Malformed map[string]MalformedEntry `json:"-"`
}

// MalformedEntry is a provider entry kept as raw JSON.
type MalformedEntry struct {
	Raw json.RawMessage
	Err error
}

// NewTrackerDocument returns the document used when no valid state exists on disk.
func NewTrackerDocument() *TrackerDocument {
	return &TrackerDocument{
		Providers:       make(map[string]ProviderStatus),
		CurrentStrategy: DefaultStrategy,
	}
}

// ProviderStatus is the wire shape of a single provider entry. It carries no
// discriminator; the variant is decided by which fields are present.
type ProviderStatus struct {
	// Hourly reset pool.
	LastReset     string   `json:"lastReset,omitempty"`
	NextReset     string   `json:"nextReset,omitempty"`
	ResetInterval string   `json:"resetInterval,omitempty"`
	Usage         *float64 `json:"usage,omitempty"`

	// Monthly hard cap.
	Month string   `json:"month,omitempty"`
	Used  *float64 `json:"used,omitempty"`
	Limit *float64 `json:"limit,omitempty"`

	// Prepaid balance.
	Balance  string `json:"balance,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// SwitchOutcome is the final state of a strategy switch attempt.
type SwitchOutcome string

const (
	SwitchSucceeded SwitchOutcome = "succeeded"
	SwitchFailed    SwitchOutcome = "failed"
	SwitchDiverged  SwitchOutcome = "diverged" // config installed, tracker not updated
)

// SwitchRecord is one strategy switch attempt kept in history.
type SwitchRecord struct {
	ID        string        `json:"id" db:"id"`
	From      string        `json:"from" db:"from_strategy"`
	To        string        `json:"to" db:"to_strategy"`
	Outcome   SwitchOutcome `json:"outcome" db:"outcome"`
	Stage     string        `json:"stage" db:"stage"`
	Error     string        `json:"error,omitempty" db:"error"`
	Automatic bool          `json:"automatic" db:"automatic"`
	Timestamp time.Time     `json:"timestamp" db:"timestamp"`
}

// AlertRecord is one quota alert emitted by the monitor.
type AlertRecord struct {
	ID        string    `json:"id" db:"id"`
	Provider  string    `json:"provider" db:"provider"`
	Level     string    `json:"level" db:"level"`
	UsedPct   float64   `json:"used_pct" db:"used_pct"`
	Message   string    `json:"message" db:"message"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Period defines a reporting window for history queries.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// HistoryFilter controls which history rows are returned.
type HistoryFilter struct {
	Provider  string    `json:"provider,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// PeriodBounds returns the start and end of the period containing now.
func PeriodBounds(period Period, now time.Time) (start, end time.Time) {
	now = now.UTC()
	switch period {
	case PeriodWeekly:
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day()-weekday+1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 7)
	case PeriodMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 1, 0)
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}

// MonthKey formats t as the YYYY-MM key used by monthly providers.
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 {
	return &v
}
