// Package diag logs the measurement core's diagnostic events with logrus.
package diag

import (
	"math"

	"github.com/itohio/gopowermon/pkg/power"
	"github.com/sirupsen/logrus"
)

// Logger turns diagnostic events into structured log entries. Per-cycle
// events are logged at Trace, state changes at Info and faults at Warn.
type Logger struct {
	log logrus.FieldLogger
}

// New creates a Logger writing to log.
func New(log logrus.FieldLogger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{log: log}
}

// Func returns the logger as a diagnostic hook, chained with the extra
// hooks in order.
func (l *Logger) Func(extra ...power.DiagnosticFunc) power.DiagnosticFunc {
	return func(e power.Event) {
		l.Handle(e)
		for _, fn := range extra {
			if fn != nil {
				fn(e)
			}
		}
	}
}

// Handle logs one event.
func (l *Logger) Handle(e power.Event) {
	entry := l.log.WithFields(Fields(e))

	switch e.Kind {
	case power.EventCycle:
		entry.Trace("Cycle")
	case power.EventTransition:
		entry.Infof("CT %s -> %s: %s", e.Transition.From, e.Transition.To, e.Transition.Reason)
	case power.EventOffsetRejected:
		entry.Warn("Offset estimate rejected")
	case power.EventReseedFailed:
		entry.Warn("Offset reseed failed")
	case power.EventBoundViolation:
		entry.Warn("Cycle discarded: apparent power out of bounds")
	default:
		entry.Debug(e.Message)
	}
}

// Fields returns the structured fields for an event.
func Fields(e power.Event) logrus.Fields {
	f := logrus.Fields{
		"event":  e.Kind.String(),
		"state":  e.State.String(),
		"offset": round(e.Offset.Effective, 1),
	}

	switch e.Kind {
	case power.EventCycle:
		f["valid"] = e.Verdict.Valid
		f["p2p"] = e.Verdict.PeakToPeak
		f["pct_valid"] = round(e.Verdict.PercentValid, 1)
		f["amps"] = round(e.CurrentA, 3)
		f["watts"] = round(e.PowerW, 1)
		if !e.Verdict.Valid && e.Verdict.Reason != "" {
			f["reason"] = e.Verdict.Reason
		}
	case power.EventTransition, power.EventOffsetRejected, power.EventReseedFailed:
		f["pilot"] = round(e.PilotMean, 1)
	case power.EventBoundViolation:
		f["amps"] = round(e.CurrentA, 3)
		f["va"] = round(e.ApparentVA, 1)
	}

	if e.Message != "" && e.Kind != power.EventTransition {
		f["msg_detail"] = e.Message
	}
	if e.Err != nil {
		f[logrus.ErrorKey] = e.Err
	}
	return f
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
