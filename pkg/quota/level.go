package quota

// Level is the warning level of a remaining percentage.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "ok"
	}
}

// Thresholds are remaining-percentage bounds, compared with a strict <.
type Thresholds struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds warn below 20% remaining and go critical below 10%.
func DefaultThresholds() Thresholds {
	return Thresholds{Warning: 20, Critical: 10}
}

// ClassifyLevel maps a remaining percentage onto a warning level.
func ClassifyLevel(remainingPct float64, t Thresholds) Level {
	switch {
	case remainingPct < t.Critical:
		return LevelCritical
	case remainingPct < t.Warning:
		return LevelWarning
	default:
		return LevelOK
	}
}
