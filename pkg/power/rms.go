package power

import (
	"math"

	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/sample"
)

// Voltage measurement modes.
const (
	VoltageRectified = "rectified"
	VoltageAC        = "ac"
)

// RMSEngine turns batches into calibrated volts, amps and watts. It owns the
// output smoothing and the rectified-voltage low-pass state, so each
// monitored circuit needs its own engine.
type RMSEngine struct {
	cal        config.CalibrationConfig
	filters    config.FilterConfig
	noiseFloor float64
	phaseCount int

	smoothed   float64
	hasHistory bool

	voltage    float64
	hasVoltage bool
}

// NewRMSEngine creates a single-phase engine.
func NewRMSEngine(cal config.CalibrationConfig, filters config.FilterConfig, noiseFloor float64) *RMSEngine {
	return &RMSEngine{
		cal:        cal,
		filters:    filters,
		noiseFloor: noiseFloor,
		phaseCount: 1,
	}
}

// SetPhaseCount selects single-phase (1) or three-phase (3) power scaling.
func (e *RMSEngine) SetPhaseCount(n int) {
	e.phaseCount = n
}

// PhaseCount returns the configured phase count.
func (e *RMSEngine) PhaseCount() int {
	return e.phaseCount
}

// CurrentPerCount returns amps per RMS count of burden voltage.
func (e *RMSEngine) CurrentPerCount() float64 {
	return sample.CodeToVolts(1, e.cal.ADCScale) / e.cal.Burden * e.cal.CTTurns * e.cal.ICAL
}

// ComputeRMSCurrent returns the calibrated RMS current of b centered on
// offset. Samples inside the noise floor contribute nothing but still count
// in the divisor, which pulls near-threshold noise toward zero. Results
// below MinCurrent read as 0.
func (e *RMSEngine) ComputeRMSCurrent(b sample.Batch, offset float64) float64 {
	n := len(b.Codes)
	if n == 0 {
		return 0
	}

	var sum float64
	for _, c := range b.Codes {
		d := float64(c) - offset
		sq := d * d
		if sq > e.noiseFloor {
			sum += sq
		}
	}

	amps := math.Sqrt(sum/float64(n)) * e.CurrentPerCount()
	if amps < e.cal.MinCurrent {
		return 0
	}
	return amps
}

// ComputeRMSVoltage returns the mains RMS voltage.
//
// In rectified mode the batch mean is low-pass filtered across cycles and
// scaled back to AC RMS. In AC mode the batch is treated as the waveform
// itself, centered on VoltageOffset.
func (e *RMSEngine) ComputeRMSVoltage(b sample.Batch) float64 {
	if len(b.Codes) == 0 {
		return 0
	}

	if e.cal.VoltageMode == VoltageAC {
		var sum float64
		for _, c := range b.Codes {
			d := float64(c) - e.cal.VoltageOffset
			sum += d * d
		}
		return sample.CodeToVolts(math.Sqrt(sum/float64(len(b.Codes))), e.cal.ADCScale) * e.cal.VoltageCal
	}

	mean := b.Mean()
	if !e.hasVoltage {
		e.voltage = mean
		e.hasVoltage = true
	} else {
		e.voltage += e.cal.VoltageAlpha * (mean - e.voltage)
	}
	return sample.CodeToVolts(e.voltage, e.cal.ADCScale) * e.cal.VoltageCal * math.Sqrt2
}

// Smooth blends raw into the output history. With no history the output
// is raw itself.
func (e *RMSEngine) Smooth(raw float64, reconnecting bool) float64 {
	if !e.hasHistory {
		e.smoothed = raw
		e.hasHistory = true
		return raw
	}

	h := e.filters.Smoothing
	if reconnecting {
		h = e.filters.ReconnectSmoothing
	}
	e.smoothed = h*e.smoothed + (1-h)*raw
	return e.smoothed
}

// ResetSmoothing drops the output history.
func (e *RMSEngine) ResetSmoothing() {
	e.smoothed = 0
	e.hasHistory = false
}

// ResetVoltage drops the rectified voltage filter state.
func (e *RMSEngine) ResetVoltage() {
	e.voltage = 0
	e.hasVoltage = false
}

// PowerFactor returns 1.0 in rectified mode, where no voltage waveform is
// available. In AC mode it is Σ(v·i)/sqrt(Σv²·Σi²) over paired samples:
// positive means import, negative export. A missing waveform yields 0.
func (e *RMSEngine) PowerFactor(current, voltage sample.Batch, offset float64) float64 {
	if e.cal.VoltageMode != VoltageAC {
		return 1.0
	}

	n := len(current.Codes)
	if len(voltage.Codes) < n {
		n = len(voltage.Codes)
	}

	var vi, vv, ii float64
	for k := 0; k < n; k++ {
		i := float64(current.Codes[k]) - offset
		v := float64(voltage.Codes[k]) - e.cal.VoltageOffset
		vi += v * i
		vv += v * v
		ii += i * i
	}
	if vv == 0 || ii == 0 {
		return 0
	}

	pf := vi / math.Sqrt(vv*ii)
	return math.Max(-1, math.Min(1, pf))
}

// Power returns real and apparent power. Three-phase results are the
// single-phase product times √3, which assumes a balanced load.
func (e *RMSEngine) Power(volts, amps, pf float64) (watts, va float64) {
	va = volts * amps
	if e.phaseCount == 3 {
		va *= math.Sqrt(3)
	}
	return va * pf, va
}

// Frequency estimates the mains frequency from rising zero crossings of the
// current batch. A crossing is armed once a sample falls below
// -sqrt(noiseFloor) and its position is interpolated between the two
// samples that straddle zero. Returns 0 when fewer than two crossings are
// found or the batch carries no timing.
func (e *RMSEngine) Frequency(b sample.Batch, offset float64) float64 {
	n := len(b.Codes)
	if n < 2 || b.Duration() <= 0 {
		return 0
	}
	dt := b.Duration().Seconds() / float64(n-1)
	hyst := math.Sqrt(e.noiseFloor)

	var (
		first, last float64
		count       int
		armed       bool
	)
	prev := float64(b.Codes[0]) - offset
	for k := 1; k < n; k++ {
		d := float64(b.Codes[k]) - offset
		if prev < -hyst {
			armed = true
		}
		if armed && prev < 0 && d >= 0 {
			pos := float64(k-1) + -prev/(d-prev)
			if count == 0 {
				first = pos
			}
			last = pos
			count++
			armed = false
		}
		prev = d
	}

	if count < 2 || last <= first {
		return 0
	}
	return float64(count-1) / ((last - first) * dt)
}
