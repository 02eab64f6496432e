package power

import (
	"fmt"
	"time"

	"github.com/itohio/gopowermon/pkg/config"
)

// State is the CT presence state.
type State int

const (
	Connected State = iota
	Disconnected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	switch s {
	case "connected":
		return Connected, true
	case "disconnected":
		return Disconnected, true
	case "reconnecting":
		return Reconnecting, true
	}
	return Connected, false
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	st, ok := ParseState(string(text))
	if !ok {
		return fmt.Errorf("unknown connection state %q", text)
	}
	*s = st
	return nil
}

// Observation is the per-cycle input of the connection state machine.
type Observation struct {
	Time      time.Time
	PilotMean float64
	Deviation float64 // |PilotMean - effective offset|
	InBand    bool    // PilotMean inside the plausible offset band
	Valid     bool    // The main batch passed validation
}

// Transition describes an accepted state change.
type Transition struct {
	From   State
	To     State
	Time   time.Time
	Reason string
}

// ReseedFunc reseeds the offset filters on reconnect. A non-nil error keeps
// the machine Disconnected.
type ReseedFunc func(pilotMean float64) error

// ConnectionStateMachine decides whether a CT is plugged in. Disconnect and
// reconnect use different pilot thresholds, and no two transitions happen
// within one debounce window. Time is supplied by the caller.
type ConnectionStateMachine struct {
	cfg    config.ConnectionConfig
	reseed ReseedFunc

	state          State
	lastTransition time.Time
	badStreak      int
	goodStreak     int
	invalidStreak  int
}

// NewConnectionStateMachine creates a machine in the Connected state.
func NewConnectionStateMachine(cfg config.ConnectionConfig, reseed ReseedFunc) *ConnectionStateMachine {
	return &ConnectionStateMachine{
		cfg:    cfg,
		reseed: reseed,
		state:  Connected,
	}
}

// State returns the current state.
func (c *ConnectionStateMachine) State() State {
	return c.state
}

// LastTransition returns the time of the last accepted transition, or the
// zero time if none has happened.
func (c *ConnectionStateMachine) LastTransition() time.Time {
	return c.lastTransition
}

// Reset returns to Connected and forgets the debounce history.
func (c *ConnectionStateMachine) Reset() {
	c.state = Connected
	c.lastTransition = time.Time{}
	c.badStreak = 0
	c.goodStreak = 0
	c.invalidStreak = 0
}

// Observe feeds one cycle and returns the transition taken, if any.
func (c *ConnectionStateMachine) Observe(o Observation) (Transition, bool) {
	if o.Valid {
		c.invalidStreak = 0
	} else {
		c.invalidStreak++
	}
	// With the invalid streak enabled the pilot alone cannot tell a plugged
	// CT from a floating input, so coming back also needs a valid batch.
	checkValid := c.cfg.InvalidStreak > 0
	lost := checkValid && c.invalidStreak >= c.cfg.InvalidStreak

	bad := o.Deviation > c.cfg.DisconnectThreshold || !o.InBand || lost
	good := o.InBand && o.Deviation < c.cfg.DisconnectThreshold-c.cfg.Hysteresis && (!checkValid || o.Valid)

	switch c.state {
	case Connected:
		if !bad {
			c.badStreak = 0
			return Transition{}, false
		}
		c.badStreak++
		if !c.debounced(o.Time) {
			return Transition{}, false
		}
		if lost {
			return c.move(Disconnected, o.Time, "no valid batch"), true
		}
		if c.badStreak >= c.cfg.DisconnectStreak {
			return c.move(Disconnected, o.Time, "pilot deviates from offset"), true
		}

	case Disconnected:
		if !good || !c.debounced(o.Time) {
			return Transition{}, false
		}
		if c.reseed != nil {
			if err := c.reseed(o.PilotMean); err != nil {
				return Transition{}, false
			}
		}
		return c.move(Reconnecting, o.Time, "pilot back within threshold"), true

	case Reconnecting:
		if bad {
			c.goodStreak = 0
			if c.debounced(o.Time) {
				return c.move(Disconnected, o.Time, "pilot lost while reconnecting"), true
			}
			return Transition{}, false
		}
		c.goodStreak++
		if !c.debounced(o.Time) {
			return Transition{}, false
		}
		if o.Valid {
			return c.move(Connected, o.Time, "valid batch"), true
		}
		if c.goodStreak >= c.cfg.StableCycles {
			return c.move(Connected, o.Time, "stable pilot"), true
		}
	}

	return Transition{}, false
}

func (c *ConnectionStateMachine) debounced(now time.Time) bool {
	if c.lastTransition.IsZero() {
		return true
	}
	return now.Sub(c.lastTransition) >= c.cfg.Debounce
}

func (c *ConnectionStateMachine) move(to State, now time.Time, reason string) Transition {
	t := Transition{From: c.state, To: to, Time: now, Reason: reason}
	c.state = to
	c.lastTransition = now
	c.badStreak = 0
	c.goodStreak = 0
	c.invalidStreak = 0
	return t
}
