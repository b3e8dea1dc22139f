package storage

import (
	"context"

	"github.com/starlink-awaken/omo-quota/pkg/model"
)

// Storage defines the persistence layer for switch and alert history.
type Storage interface {
	// RecordSwitch persists a single strategy switch attempt.
	RecordSwitch(ctx context.Context, record *model.SwitchRecord) error

	// ListSwitches returns switch attempts matching the filter, newest first.
	ListSwitches(ctx context.Context, filter model.HistoryFilter) ([]model.SwitchRecord, error)

	// CountSwitches returns the number of switch attempts per outcome.
	CountSwitches(ctx context.Context, filter model.HistoryFilter) (map[model.SwitchOutcome]int64, error)

	// RecordAlert persists a single quota alert.
	RecordAlert(ctx context.Context, record *model.AlertRecord) error

	// ListAlerts returns alerts matching the filter, newest first.
	ListAlerts(ctx context.Context, filter model.HistoryFilter) ([]model.AlertRecord, error)

	// Close releases resources.
	Close() error
}
