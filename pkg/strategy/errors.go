package strategy

import (
	"errors"
	"fmt"
)

// Failure classes of a strategy switch.
var (
	ErrUnknownStrategy     = errors.New("unknown strategy")
	ErrStrategyFileMissing = errors.New("strategy file missing")
	ErrBackup              = errors.New("backup active configuration")
	ErrInstall             = errors.New("install strategy configuration")
	ErrTrackerRecord       = errors.New("record active strategy in tracker")
)

// Stage is a step of the switch transaction.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageValidating Stage = "validating"
	StageBackingUp  Stage = "backing-up"
	StageInstalling Stage = "installing"
	StageRecording  Stage = "recording"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// SwitchError reports the stage at which a switch stopped.
type SwitchError struct {
	Stage    Stage
	Strategy string
	Kind     error
	Err      error
	// ConfigIntact is true when the active configuration file is a complete,
	// valid file after the failure.
	ConfigIntact bool
	// ConfigChanged is true when the active configuration now holds the
	// requested strategy.
	ConfigChanged bool
}

func (e *SwitchError) Error() string {
	msg := fmt.Sprintf("switch to %q failed at %s: %v", e.Strategy, e.Stage, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the failure class and the underlying cause.
func (e *SwitchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Diverged reports whether the active configuration and the tracker disagree
// about the current strategy.
func (e *SwitchError) Diverged() bool {
	return errors.Is(e.Kind, ErrTrackerRecord)
}

// IntactMessage describes the state of the active configuration for operators.
func (e *SwitchError) IntactMessage() string {
	switch {
	case e.ConfigChanged:
		return fmt.Sprintf("active configuration now holds %q, but the tracker still names the previous strategy", e.Strategy)
	case e.ConfigIntact:
		return "active configuration is unchanged"
	default:
		return "active configuration could not be restored; restore it from the backup file"
	}
}
