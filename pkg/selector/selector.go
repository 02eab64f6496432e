// Package selector reads the single/three-phase selector switch.
// The real implementation uses the Linux GPIO character device.
package selector

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Reader reads the switch position.
type Reader interface {
	// ThreePhase reports whether the switch selects three-phase metering.
	ThreePhase() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// Phases converts a switch position to a phase count.
func Phases(threePhase bool) int {
	if threePhase {
		return 3
	}
	return 1
}

// Debouncer accepts a switch position only after it has been stable for
// the debounce period. Time is supplied by the caller.
type Debouncer struct {
	debounce time.Duration

	stable    bool
	known     bool
	candidate bool
	since     time.Time
}

// NewDebouncer creates a Debouncer with no accepted position.
func NewDebouncer(debounce time.Duration) *Debouncer {
	return &Debouncer{debounce: debounce}
}

// Observe feeds one reading and returns the accepted position and whether
// it changed. The first reading is accepted immediately.
func (d *Debouncer) Observe(threePhase bool, now time.Time) (bool, bool) {
	if !d.known {
		d.known = true
		d.stable = threePhase
		d.candidate = threePhase
		return threePhase, true
	}

	if threePhase == d.stable {
		d.candidate = d.stable
		return d.stable, false
	}

	if threePhase != d.candidate {
		d.candidate = threePhase
		d.since = now
	}
	if now.Sub(d.since) < d.debounce {
		return d.stable, false
	}

	d.stable = threePhase
	return d.stable, true
}

// Watch polls r every interval and calls onChange with the phase count
// whenever the debounced position changes, including once at start.
// Read errors are logged and skipped. Watch returns when ctx is done.
func Watch(ctx context.Context, r Reader, interval, debounce time.Duration, log logrus.FieldLogger, onChange func(phases int)) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	d := NewDebouncer(debounce)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if three, err := r.ThreePhase(); err != nil {
			log.WithError(err).Warn("Failed to read phase selector")
		} else if pos, changed := d.Observe(three, time.Now()); changed {
			onChange(Phases(pos))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
