package alerts

import "context"

// AlertLevel indicates the severity of a quota alert.
type AlertLevel string

const (
	AlertNotice   AlertLevel = "notice"   // Crossed the configured warning threshold
	AlertWarning  AlertLevel = "warning"  // 80% or more used
	AlertCritical AlertLevel = "critical" // 90% or more used
	AlertExpired  AlertLevel = "expired"  // Reset window passed; needs a re-baseline
)

// Alert represents a provider quota notification.
type Alert struct {
	Level        AlertLevel `json:"level"`
	Provider     string     `json:"provider"`
	Kind         string     `json:"kind"`
	UsedPct      float64    `json:"used_pct"`
	RemainingPct float64    `json:"remaining_pct"`
	Strategy     string     `json:"strategy"`
	Message      string     `json:"message"`
}

// Notifier sends alerts to external systems.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert Alert) error
}
