package power

import (
	"math"
	"math/rand"
	"testing"

	"github.com/itohio/gopowermon/pkg/adc"
	"github.com/itohio/gopowermon/pkg/config"
	"github.com/itohio/gopowermon/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(mod func(*config.Config)) *RMSEngine {
	cfg := config.Default()
	if mod != nil {
		mod(cfg)
	}
	return NewRMSEngine(cfg.Calibration, cfg.Filters, cfg.Validation.NoiseFloor)
}

func TestRMSEngine_FlatLineIsZero(t *testing.T) {
	e := newTestEngine(nil)

	for _, level := range []uint16{1500, 1700, 1880, 2100, 2500} {
		got := e.ComputeRMSCurrent(flatBatch(level, 1480), float64(level))
		assert.Equal(t, 0.0, got, "level %d", level)
	}

	// Drift within the noise floor still reads zero.
	assert.Equal(t, 0.0, e.ComputeRMSCurrent(flatBatch(1900, 1480), 1880))
	assert.Equal(t, 0.0, e.ComputeRMSCurrent(sample.Batch{}, 1880))
}

func TestRMSEngine_SineAmplitude(t *testing.T) {
	e := newTestEngine(nil)

	tests := []struct {
		name      string
		center    float64
		amplitude float64
	}{
		{"large load", 2000, 500},
		{"midscale", 1880, 300},
		{"low band", 1600, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.ComputeRMSCurrent(sineBatch(tt.center, tt.amplitude, 1480), tt.center)
			want := tt.amplitude / math.Sqrt2 * e.CurrentPerCount()
			assert.InEpsilon(t, want, got, 0.02)
		})
	}
}

func TestRMSEngine_ReferenceLoad(t *testing.T) {
	e := newTestEngine(nil)

	// 5.2 A reference load spanning codes 1810..2014.
	b := sineBatch(1911.5, 102, 1480)
	lo, hi := b.Codes[0], b.Codes[0]
	for _, c := range b.Codes {
		if c < lo {
			lo = c
		}
		if c > hi {
			hi = c
		}
	}
	assert.GreaterOrEqual(t, lo, uint16(1806))
	assert.LessOrEqual(t, hi, uint16(2017))

	assert.InDelta(t, 5.2, e.ComputeRMSCurrent(b, 1911.5), 0.1)
	assert.InDelta(t, 0.0723, e.CurrentPerCount(), 0.0001)
}

func TestRMSEngine_MinCurrentFloor(t *testing.T) {
	e := newTestEngine(func(c *config.Config) {
		c.Calibration.MinCurrent = 5
	})
	assert.Equal(t, 0.0, e.ComputeRMSCurrent(sineBatch(1880, 50, 1480), 1880))
	assert.Greater(t, e.ComputeRMSCurrent(sineBatch(1880, 102, 1480), 1880), 5.0)
}

func TestRMSEngine_RectifiedVoltage(t *testing.T) {
	e := newTestEngine(nil)

	v := e.ComputeRMSVoltage(timed(adc.Voltage, flatBatch(2630, 100).Codes))
	assert.InDelta(t, 215.5, v, 0.1)

	// The mean is low-pass filtered across cycles with alpha 0.2.
	v = e.ComputeRMSVoltage(timed(adc.Voltage, flatBatch(2730, 100).Codes))
	want := 2650 * 0.00080566 * 71.913 * math.Sqrt2
	assert.InDelta(t, want, v, 1e-6)

	e.ResetVoltage()
	v = e.ComputeRMSVoltage(timed(adc.Voltage, flatBatch(2730, 100).Codes))
	assert.InDelta(t, 2730*0.00080566*71.913*math.Sqrt2, v, 1e-6)

	assert.Equal(t, 0.0, e.ComputeRMSVoltage(sample.Batch{}))
}

func TestRMSEngine_ACVoltage(t *testing.T) {
	e := newTestEngine(func(c *config.Config) {
		c.Calibration.VoltageMode = VoltageAC
		c.Calibration.VoltageOffset = 2048
		c.Calibration.VoltageCal = 200
	})

	b := sineBatch(2048, 1000, 1500) // 15 full periods
	b.Channel = adc.Voltage
	want := 1000 / math.Sqrt2 * 0.00080566 * 200
	assert.InEpsilon(t, want, e.ComputeRMSVoltage(b), 0.005)
}

func TestRMSEngine_Smooth(t *testing.T) {
	e := newTestEngine(nil)

	assert.Equal(t, 5.0, e.Smooth(5, false), "first value seeds the history")
	assert.InDelta(t, 0.95*5+0.05*10, e.Smooth(10, false), 1e-12)

	e.ResetSmoothing()
	assert.Equal(t, 8.0, e.Smooth(8, true), "reseeded with the fresh value")
	assert.InDelta(t, 0.98*8+0.02*0, e.Smooth(0, true), 1e-12)
}

func TestRMSEngine_PowerFactor(t *testing.T) {
	rect := newTestEngine(nil)
	assert.Equal(t, 1.0, rect.PowerFactor(sineBatch(1880, 100, 1500), sample.Batch{}, 1880))

	e := newTestEngine(func(c *config.Config) {
		c.Calibration.VoltageMode = VoltageAC
		c.Calibration.VoltageOffset = 2048
	})

	current := sineBatch(1880, 100, 1500)
	tests := []struct {
		name  string
		phase float64
		want  float64
	}{
		{"in phase", 0, 1},
		{"export", math.Pi, -1},
		{"quadrature", math.Pi / 2, 0},
		{"lagging 60 degrees", math.Pi / 3, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			voltage := shiftedSineBatch(2048, 1000, 1500, tt.phase)
			pf := e.PowerFactor(current, voltage, 1880)
			assert.InDelta(t, tt.want, pf, 0.01)
			assert.LessOrEqual(t, math.Abs(pf), 1.0)
		})
	}

	assert.Equal(t, 0.0, e.PowerFactor(flatBatch(1880, 100), shiftedSineBatch(2048, 1000, 100, 0), 1880))
}

func TestRMSEngine_Power(t *testing.T) {
	e := newTestEngine(nil)

	w, va := e.Power(230, 5, 1)
	assert.InDelta(t, 1150, w, 1e-9)
	assert.InDelta(t, 1150, va, 1e-9)

	w, va = e.Power(230, 5, -0.5)
	assert.InDelta(t, -575, w, 1e-9)
	assert.InDelta(t, 1150, va, 1e-9)

	e.SetPhaseCount(3)
	assert.Equal(t, 3, e.PhaseCount())
	w, _ = e.Power(230, 5, 1)
	assert.InDelta(t, 1150*math.Sqrt(3), w, 1e-9)
}

func TestRMSEngine_Frequency(t *testing.T) {
	e := newTestEngine(nil)

	assert.InDelta(t, 50, e.Frequency(sineBatch(1880, 102, 1480), 1880), 0.1)
	assert.Equal(t, 0.0, e.Frequency(flatBatch(1880, 1480), 1880))

	untimed := sineBatch(1880, 102, 1480)
	untimed.End = untimed.Start
	assert.Equal(t, 0.0, e.Frequency(untimed, 1880))
}

func TestRMSEngine_Deterministic(t *testing.T) {
	run := func() (float64, float64, float64) {
		rng := rand.New(rand.NewSource(42))
		codes := make([]uint16, 1480)
		for i := range codes {
			ts := float64(i) * testInterval.Seconds()
			v := 1880 + 150*math.Sin(2*math.Pi*50*ts) + rng.NormFloat64()*8
			codes[i] = uint16(math.Floor(v + 0.5))
		}
		b := timed(adc.Current, codes)

		cfg := config.Default()
		tr := NewOffsetTracker(cfg.Filters, cfg.Validation)
		tr.Update(EstimateOffset(sample.Batch{Codes: codes[:100]}), false)
		e := NewRMSEngine(cfg.Calibration, cfg.Filters, cfg.Validation.NoiseFloor)
		return tr.Effective(), e.ComputeRMSCurrent(b, tr.Effective()), e.Frequency(b, tr.Effective())
	}

	o1, i1, f1 := run()
	o2, i2, f2 := run()
	require.Greater(t, i1, 0.0)
	assert.Equal(t, o1, o2)
	assert.Equal(t, i1, i2)
	assert.Equal(t, f1, f2)
}
