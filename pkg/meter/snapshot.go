package meter

import (
	"time"

	"github.com/itohio/gopowermon/pkg/power"
)

// Snapshot is one published measurement. It is a plain value; copies are
// independent.
type Snapshot struct {
	Time        time.Time   `json:"time" yaml:"time"`
	Cycle       uint64      `json:"cycle" yaml:"cycle"`
	VoltageAC   float64     `json:"voltage_v" yaml:"voltage_v"`
	CurrentAC   float64     `json:"current_a" yaml:"current_a"`
	PowerW      float64     `json:"power_w" yaml:"power_w"`
	ApparentVA  float64     `json:"apparent_va" yaml:"apparent_va"`
	PowerFactor float64     `json:"power_factor" yaml:"power_factor"`
	FrequencyHz float64     `json:"frequency_hz" yaml:"frequency_hz"`
	EnergyKWh   float64     `json:"energy_kwh" yaml:"energy_kwh"`
	ExportedKWh float64     `json:"exported_kwh" yaml:"exported_kwh"`
	PhaseCount  int         `json:"phase_count" yaml:"phase_count"`
	State       power.State `json:"state" yaml:"state"`
	Valid       bool        `json:"valid" yaml:"valid"`
	Discarded   bool        `json:"discarded,omitempty" yaml:"discarded,omitempty"` // Cycle failed the apparent-power bound

	// Diagnostics
	Offset        float64 `json:"offset" yaml:"offset"`
	PeakToPeak    float64 `json:"peak_to_peak" yaml:"peak_to_peak"`
	PercentValid  float64 `json:"percent_valid" yaml:"percent_valid"`
	SampleSeconds float64 `json:"sample_seconds" yaml:"sample_seconds"`
}

// EnergyMWh returns imported energy in MWh.
func (s Snapshot) EnergyMWh() float64 {
	return s.EnergyKWh * 0.001
}

// IsAboveMWhThreshold reports whether displays should switch to MWh.
func (s Snapshot) IsAboveMWhThreshold() bool {
	return s.EnergyKWh >= power.MWhThresholdKWh
}

// StateName returns the connection state as text.
func (s Snapshot) StateName() string {
	return s.State.String()
}
