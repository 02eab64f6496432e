package scope

import (
	"math"
	"strconv"
	"time"

	"github.com/itohio/gopowermon/pkg/meter"
)

// Readout holds the display strings for one snapshot.
type Readout struct {
	Voltage   string
	Current   string
	Power     string
	Apparent  string
	Factor    string
	Frequency string
	Energy    string
	Exported  string
	Phases    string
	State     string
}

// FormatReadout renders s for the readout panel. Energy switches to MWh once
// the imported counter reaches the display threshold.
func FormatReadout(s meter.Snapshot) Readout {
	return Readout{
		Voltage:   FormatFloat(s.VoltageAC, 1) + " V",
		Current:   FormatFloat(s.CurrentAC, 2) + " A",
		Power:     FormatPower(s.PowerW),
		Apparent:  FormatFloat(s.ApparentVA, 0) + " VA",
		Factor:    FormatFloat(s.PowerFactor, 3),
		Frequency: FormatFloat(s.FrequencyHz, 2) + " Hz",
		Energy:    FormatEnergy(s),
		Exported:  FormatFloat(s.ExportedKWh, 3) + " kWh",
		Phases:    strconv.Itoa(s.PhaseCount) + "φ",
		State:     s.StateName(),
	}
}

// FormatEnergy returns imported energy in kWh, or MWh above the threshold.
func FormatEnergy(s meter.Snapshot) string {
	if s.IsAboveMWhThreshold() {
		return FormatFloat(s.EnergyMWh(), 3) + " MWh"
	}
	return FormatFloat(s.EnergyKWh, 3) + " kWh"
}

// FormatPower returns watts, switching to kW from 10 kW up.
func FormatPower(w float64) string {
	if math.Abs(w) >= 10000 {
		return FormatFloat(w/1000, 2) + " kW"
	}
	return FormatFloat(w, 0) + " W"
}

// FormatFloat formats v with a fixed number of decimals. Negative zero is
// printed as zero.
func FormatFloat(v float64, decimals int) string {
	p := math.Pow(10, float64(decimals))
	if math.Round(v*p) == 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', decimals, 64)
}

func formatTime(d time.Duration) string {
	if d < time.Minute {
		return FormatFloat(d.Seconds(), 0) + "s"
	}
	return FormatFloat(d.Minutes(), 1) + "m"
}
