package adc

import (
	"math"
	"testing"
	"time"

	"github.com/itohio/gopowermon/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestChannel_String(t *testing.T) {
	assert.Equal(t, "current", Current.String())
	assert.Equal(t, "voltage", Voltage.String())
	assert.Equal(t, "channel(7)", Channel(7).String())
}

func TestNewMock_NilConfig(t *testing.T) {
	m := NewMock(nil, 0)
	assert.NotNil(t, m)
	assert.Equal(t, float64(4095), m.adcMax)
	assert.Equal(t, config.Default().Mock, m.cfg)
	assert.True(t, m.connected)
}

func TestMock_SineWithoutNoise(t *testing.T) {
	cfg := &config.MockConfig{
		Offset:       2000,
		Amplitude:    500,
		VoltageLevel: 1500,
		Frequency:    50,
		SampleRate:   time.Millisecond,
	}
	m := NewMock(cfg, 12)

	// 20 samples at 1 ms cover exactly one 50 Hz period.
	var min, max uint16 = math.MaxUint16, 0
	var sum float64
	for i := 0; i < 20; i++ {
		code := m.Read(Current)
		sum += float64(code)
		if code < min {
			min = code
		}
		if code > max {
			max = code
		}
	}

	assert.Equal(t, uint16(2500), max)
	assert.Equal(t, uint16(1500), min)
	assert.InDelta(t, 2000, sum/20, 0.5)

	// The voltage channel is a flat rectified level.
	for i := 0; i < 5; i++ {
		assert.Equal(t, uint16(1500), m.Read(Voltage))
	}
}

func TestMock_Deterministic(t *testing.T) {
	cfg := config.Default().Mock
	a := NewMock(&cfg, 12)
	b := NewMock(&cfg, 12)

	for i := 0; i < 500; i++ {
		assert.Equal(t, a.Read(Current), b.Read(Current))
	}
}

func TestMock_Disconnected(t *testing.T) {
	cfg := config.Default().Mock
	cfg.Noise = 0
	m := NewMock(&cfg, 12)

	m.SetConnected(false)
	for i := 0; i < 10; i++ {
		assert.Equal(t, uint16(floatingLevel), m.Read(Current))
	}

	m.SetConnected(true)
	m.SetAmplitude(0)
	m.SetOffset(1900)
	assert.Equal(t, uint16(1900), m.Read(Current))
}

func TestMock_Clamp(t *testing.T) {
	m := NewMock(nil, 12)

	tests := []struct {
		name string
		in   float64
		want uint16
	}{
		{"negative", -12.0, 0},
		{"zero", 0.0, 0},
		{"rounds down", 1879.4, 1879},
		{"rounds up", 1879.5, 1880},
		{"max", 4095.0, 4095},
		{"above max", 5000.0, 4095},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.clamp(tt.in))
		})
	}
}

func TestFake_Read(t *testing.T) {
	f := NewFake(map[Channel][]uint16{
		Current: {1, 2, 3},
	})

	assert.Equal(t, uint16(1), f.Read(Current))
	assert.Equal(t, uint16(2), f.Read(Current))
	assert.Equal(t, uint16(3), f.Read(Current))
	assert.Equal(t, uint16(3), f.Read(Current)) // last code repeats
	assert.Equal(t, uint16(0), f.Read(Voltage)) // nothing scripted
	assert.Equal(t, 4, f.Reads[Current])
	assert.Equal(t, 1, f.Reads[Voltage])

	f.Reset()
	assert.Equal(t, uint16(1), f.Read(Current))
}

func TestMCP3208_Command(t *testing.T) {
	tests := []struct {
		channel int
		want    [3]byte
	}{
		{0, [3]byte{0x06, 0x00, 0x00}},
		{1, [3]byte{0x06, 0x40, 0x00}},
		{3, [3]byte{0x06, 0xC0, 0x00}},
		{4, [3]byte{0x07, 0x00, 0x00}},
		{7, [3]byte{0x07, 0xC0, 0x00}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, mcp3208Command(tt.channel), "channel %d", tt.channel)
	}
}

func TestMCP3208_Decode(t *testing.T) {
	assert.Equal(t, uint16(0), mcp3208Decode([3]byte{0xFF, 0xE0, 0x00}))
	assert.Equal(t, uint16(1880), mcp3208Decode([3]byte{0x00, 0x07, 0x58}))
	assert.Equal(t, uint16(4095), mcp3208Decode([3]byte{0x00, 0xFF, 0xFF}))
}
