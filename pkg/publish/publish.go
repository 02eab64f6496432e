// Package publish sends measurement telemetry to an MQTT broker.
package publish

import (
	"encoding/json"
	"time"

	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
)

// Topic suffixes appended to the configured base topic.
const (
	SuffixTelemetry = "/telemetry"
	SuffixState     = "/state"
	SuffixSystem    = "/system"
)

// Publisher publishes snapshots and lifecycle events. Publishing errors are
// reported to the caller and must never stop measurement.
type Publisher interface {
	PublishSnapshot(s meter.Snapshot) error
	PublishTransition(t power.Transition) error
	PublishSystem(e SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the broker connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a daemon lifecycle event such as STARTUP or SHUTDOWN.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string
}

// Topics holds the full topic names for a base topic.
type Topics struct {
	Telemetry string
	State     string
	System    string
}

// NewTopics derives the topic set from base.
func NewTopics(base string) Topics {
	return Topics{
		Telemetry: base + SuffixTelemetry,
		State:     base + SuffixState,
		System:    base + SuffixSystem,
	}
}

// TelemetryPayload is the JSON body of a telemetry message.
type TelemetryPayload struct {
	Timestamp   string  `json:"timestamp"`
	VoltageV    float64 `json:"voltage_v"`
	CurrentA    float64 `json:"current_a"`
	PowerW      float64 `json:"power_w"`
	ApparentVA  float64 `json:"apparent_va"`
	PowerFactor float64 `json:"power_factor"`
	FrequencyHz float64 `json:"frequency_hz"`
	EnergyKWh   float64 `json:"energy_kwh"`
	ExportedKWh float64 `json:"exported_kwh"`
	EnergyMWh   float64 `json:"energy_mwh,omitempty"`
	PhaseCount  int     `json:"phase_count"`
	State       string  `json:"state"`
	Valid       bool    `json:"valid"`
}

// StatePayload is the JSON body of a connection state message.
type StatePayload struct {
	Timestamp string `json:"timestamp"`
	From      string `json:"from"`
	State     string `json:"state"`
	Reason    string `json:"reason"`
}

// SystemPayload is the JSON body of a system message.
type SystemPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatTelemetry creates the JSON payload for a snapshot. The MWh field is
// only present once the display would switch units.
func FormatTelemetry(s meter.Snapshot) ([]byte, error) {
	p := TelemetryPayload{
		Timestamp:   formatTime(s.Time),
		VoltageV:    s.VoltageAC,
		CurrentA:    s.CurrentAC,
		PowerW:      s.PowerW,
		ApparentVA:  s.ApparentVA,
		PowerFactor: s.PowerFactor,
		FrequencyHz: s.FrequencyHz,
		EnergyKWh:   s.EnergyKWh,
		ExportedKWh: s.ExportedKWh,
		PhaseCount:  s.PhaseCount,
		State:       s.State.String(),
		Valid:       s.Valid,
	}
	if s.IsAboveMWhThreshold() {
		p.EnergyMWh = s.EnergyMWh()
	}
	return json.Marshal(p)
}

// FormatState creates the JSON payload for a connection state transition.
func FormatState(t power.Transition) ([]byte, error) {
	return json.Marshal(StatePayload{
		Timestamp: formatTime(t.Time),
		From:      t.From.String(),
		State:     t.To.String(),
		Reason:    t.Reason,
	})
}

// FormatSystem creates the JSON payload for a system event.
func FormatSystem(e SystemEvent) ([]byte, error) {
	return json.Marshal(SystemPayload{
		Timestamp: formatTime(e.Timestamp),
		Event:     e.Event,
		Reason:    e.Reason,
	})
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
