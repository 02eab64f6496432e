package power

import (
	"math"
	"time"
)

// MWhThresholdKWh is the energy at which displays switch to MWh.
const MWhThresholdKWh = 1000.0

// EnergyAccumulator integrates real power over wall-clock time.
//
// Imported energy (power >= 0) and exported energy (power < 0) are kept in
// separate counters so that EnergyKWh never decreases.
type EnergyAccumulator struct {
	maxPowerW float64

	energyKWh   float64
	exportedKWh float64
	last        time.Time
	seeded      bool
}

// NewEnergyAccumulator creates an accumulator that ignores readings whose
// magnitude exceeds maxPowerW. maxPowerW <= 0 disables the bound.
func NewEnergyAccumulator(maxPowerW float64) *EnergyAccumulator {
	return &EnergyAccumulator{maxPowerW: maxPowerW}
}

// Accumulate adds powerW held since the previous call. The first call only
// records the timestamp. It returns the kWh added to either counter.
func (a *EnergyAccumulator) Accumulate(powerW float64, now time.Time) float64 {
	if !a.seeded {
		a.last = now
		a.seeded = true
		return 0
	}

	hours := now.Sub(a.last).Hours()
	if hours <= 0 {
		return 0
	}
	a.last = now

	if math.IsNaN(powerW) || math.IsInf(powerW, 0) {
		return 0
	}
	if a.maxPowerW > 0 && math.Abs(powerW) > a.maxPowerW {
		return 0
	}

	kwh := powerW * hours / 1000
	if kwh < 0 {
		a.exportedKWh -= kwh
		return -kwh
	}
	a.energyKWh += kwh
	return kwh
}

// EnergyKWh returns imported energy.
func (a *EnergyAccumulator) EnergyKWh() float64 {
	return a.energyKWh
}

// ExportedKWh returns exported energy as a positive number.
func (a *EnergyAccumulator) ExportedKWh() float64 {
	return a.exportedKWh
}

// IsAboveMWhThreshold reports whether imported energy reached 1000 kWh.
func (a *EnergyAccumulator) IsAboveMWhThreshold() bool {
	return a.energyKWh >= MWhThresholdKWh
}

// AsMWh returns imported energy in MWh.
func (a *EnergyAccumulator) AsMWh() float64 {
	return a.energyKWh * 0.001
}

// Reset clears both counters and the timestamp.
func (a *EnergyAccumulator) Reset() {
	a.energyKWh = 0
	a.exportedKWh = 0
	a.last = time.Time{}
	a.seeded = false
}

// Restore loads persisted counters. The next Accumulate call reseeds the
// timestamp. Negative and non-finite values are treated as zero.
func (a *EnergyAccumulator) Restore(importedKWh, exportedKWh float64) {
	a.energyKWh = counterValue(importedKWh)
	a.exportedKWh = counterValue(exportedKWh)
	a.last = time.Time{}
	a.seeded = false
}

func counterValue(kwh float64) float64 {
	if math.IsNaN(kwh) || math.IsInf(kwh, 0) || kwh < 0 {
		return 0
	}
	return kwh
}
