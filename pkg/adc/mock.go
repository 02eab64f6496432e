package adc

import (
	"math"
	"math/rand"
	"sync"

	"github.com/itohio/gopowermon/pkg/config"
)

// floatingLevel is where an unplugged CT input settles once the bias divider
// no longer sees the burden resistor.
const floatingLevel = 120.0

// Mock simulates a CT current channel and a voltage channel.
//
// Each channel keeps its own sample index and advances time by
// cfg.SampleRate per conversion, so the generated waveform does not depend
// on wall-clock time and runs are reproducible for a given seed.
type Mock struct {
	cfg    config.MockConfig
	adcMax float64

	mu        sync.Mutex
	rng       *rand.Rand
	index     [2]int64
	connected bool
}

// Ensure Mock implements Reader.
var _ Reader = (*Mock)(nil)

// NewMock creates a simulated ADC. A nil cfg uses config.Default().Mock.
func NewMock(cfg *config.MockConfig, bits int) *Mock {
	if cfg == nil {
		def := config.Default().Mock
		cfg = &def
	}
	if bits <= 0 {
		bits = 12
	}

	return &Mock{
		cfg:       *cfg,
		adcMax:    float64(int(1)<<bits - 1),
		rng:       rand.New(rand.NewSource(cfg.Seed)),
		connected: true,
	}
}

// Read returns the next simulated conversion for ch.
func (m *Mock) Read(ch Channel) uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := 0
	if ch == Voltage {
		idx = 1
	}
	n := m.index[idx]
	m.index[idx]++

	t := float64(n) * m.cfg.SampleRate.Seconds()
	omega := 2 * math.Pi * m.cfg.Frequency

	var v float64
	switch ch {
	case Voltage:
		if m.cfg.VoltageAmplitude > 0 {
			v = m.cfg.VoltageLevel + m.cfg.VoltageAmplitude*math.Sin(omega*t)
		} else {
			v = m.cfg.VoltageLevel
		}
	default:
		if m.connected {
			v = m.cfg.Offset + m.cfg.Amplitude*math.Sin(omega*t-m.cfg.PhaseShift)
		} else {
			v = floatingLevel
		}
	}

	if m.cfg.Noise > 0 {
		v += (m.rng.Float64()*2 - 1) * m.cfg.Noise
	}

	return m.clamp(v)
}

// SetAmplitude changes the simulated current peak (counts).
func (m *Mock) SetAmplitude(amplitude float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Amplitude = amplitude
}

// SetOffset changes the simulated current channel bias (counts).
func (m *Mock) SetOffset(offset float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Offset = offset
}

// SetConnected simulates plugging or unplugging the CT.
func (m *Mock) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
}

// clamp rounds v to the nearest code and limits it to the ADC range.
func (m *Mock) clamp(v float64) uint16 {
	v = math.Floor(v + 0.5)
	if v < 0 {
		return 0
	}
	if v > m.adcMax {
		return uint16(m.adcMax)
	}
	return uint16(v)
}
