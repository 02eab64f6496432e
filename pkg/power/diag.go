package power

import "time"

// EventKind classifies a diagnostic event.
type EventKind int

const (
	EventCycle EventKind = iota
	EventTransition
	EventOffsetRejected
	EventReseedFailed
	EventBoundViolation
)

func (k EventKind) String() string {
	switch k {
	case EventCycle:
		return "cycle"
	case EventTransition:
		return "transition"
	case EventOffsetRejected:
		return "offset-rejected"
	case EventReseedFailed:
		return "reseed-failed"
	case EventBoundViolation:
		return "bound-violation"
	default:
		return "unknown"
	}
}

// Event is a structured record of what happened inside one update cycle.
type Event struct {
	Kind       EventKind
	Time       time.Time
	State      State
	Transition Transition // Set for EventTransition
	Offset     OffsetEstimate
	PilotMean  float64
	Verdict    Verdict
	CurrentA   float64
	PowerW     float64
	ApparentVA float64
	Message    string
	Err        error
}

// DiagnosticFunc receives events synchronously from the update cycle. It
// must return quickly.
type DiagnosticFunc func(Event)
