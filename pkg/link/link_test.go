package link

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot() meter.Snapshot {
	return meter.Snapshot{
		Time:        time.UnixMicro(1772323200123456),
		VoltageAC:   230.25,
		CurrentAC:   5.125,
		PowerW:      1180,
		PowerFactor: 1,
		FrequencyHz: 50,
		EnergyKWh:   12.5,
		ExportedKWh: 0.25,
		State:       power.Reconnecting,
		PhaseCount:  3,
	}
}

func withChecksum(body string) string {
	return fmt.Sprintf("%s*%02X", body, Checksum([]byte(body)))
}

func TestChecksum(t *testing.T) {
	// Reference vector for CRC-8 poly 0x31, init 0xFF.
	assert.Equal(t, byte(0x92), Checksum([]byte{0xBE, 0xEF}))
}

func TestEncodeFrame(t *testing.T) {
	want := "1772323200123456,230.25,5.125,1180.0,1.000,50.00,12.500000,0.250000,reconnecting,3*C8\n"
	assert.Equal(t, want, EncodeFrame(testSnapshot()))

	// AppendFrame reuses the destination buffer.
	buf := []byte("prefix:")
	buf = AppendFrame(buf, testSnapshot())
	assert.Equal(t, "prefix:"+want, string(buf))
}

func TestParseFrame(t *testing.T) {
	in := testSnapshot()

	got, err := ParseFrame(EncodeFrame(in))
	require.NoError(t, err)

	assert.True(t, in.Time.Equal(got.Time))
	assert.Equal(t, in.VoltageAC, got.VoltageAC)
	assert.Equal(t, in.CurrentAC, got.CurrentAC)
	assert.Equal(t, in.PowerW, got.PowerW)
	assert.Equal(t, in.PowerFactor, got.PowerFactor)
	assert.Equal(t, in.FrequencyHz, got.FrequencyHz)
	assert.Equal(t, in.EnergyKWh, got.EnergyKWh)
	assert.Equal(t, in.ExportedKWh, got.ExportedKWh)
	assert.Equal(t, power.Reconnecting, got.State)
	assert.Equal(t, 3, got.PhaseCount)
	assert.InDelta(t, 230.25*5.125*math.Sqrt(3), got.ApparentVA, 1e-9)
	assert.True(t, got.Valid)
}

func TestParseFrame_Checksum(t *testing.T) {
	line := EncodeFrame(testSnapshot())
	corrupted := "1772323200123456,231.25" + line[len("1772323200123456,230.25"):]

	_, err := ParseFrame(corrupted)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestParseFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"no checksum", "1,2,3,4,5,6,7,8,connected,1"},
		{"short checksum", "1,2,3*A"},
		{"bad hex", "1,2,3*ZZ"},
		{"too few fields", withChecksum("1,230,5,1150,1,50,0,0,connected")},
		{"bad timestamp", withChecksum("x,230,5,1150,1,50,0,0,connected,1")},
		{"bad float", withChecksum("1,230,five,1150,1,50,0,0,connected,1")},
		{"unknown state", withChecksum("1,230,5,1150,1,50,0,0,sleeping,1")},
		{"bad phases", withChecksum("1,230,5,1150,1,50,0,0,connected,2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.line)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestParseFrame_Disconnected(t *testing.T) {
	got, err := ParseFrame(withChecksum("1000000,229.80,0.000,0.0,1.000,0.00,3.250000,0.000000,disconnected,1") + "\r\n")
	require.NoError(t, err)

	assert.Equal(t, power.Disconnected, got.State)
	assert.False(t, got.Valid)
	assert.Equal(t, 3.25, got.EnergyKWh)
	assert.Equal(t, int64(1), got.Time.Unix())
}

func TestCommand_RoundTrip(t *testing.T) {
	tests := []struct {
		cmd  Command
		line string
	}{
		{Command{Op: OpPhases, Phases: 1}, "P1\n"},
		{Command{Op: OpPhases, Phases: 3}, "P3\n"},
		{Command{Op: OpResetEnergy}, "R\n"},
		{Command{Op: OpRestoreEnergy, ImportedKWh: 1234.5, ExportedKWh: 0.75}, "E1234.500000,0.750000\n"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			line, err := EncodeCommand(tt.cmd)
			require.NoError(t, err)
			assert.Equal(t, tt.line, line)

			got, err := ParseCommand(line)
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, got)
		})
	}
}

func TestCommand_Errors(t *testing.T) {
	_, err := EncodeCommand(Command{Op: OpPhases, Phases: 2})
	assert.ErrorIs(t, err, ErrFormat)
	_, err = EncodeCommand(Command{Op: 'X'})
	assert.ErrorIs(t, err, ErrFormat)
	_, err = EncodeCommand(Command{Op: OpRestoreEnergy, ImportedKWh: math.NaN()})
	assert.ErrorIs(t, err, ErrFormat)
	_, err = EncodeCommand(Command{Op: OpRestoreEnergy, ExportedKWh: math.Inf(1)})
	assert.ErrorIs(t, err, ErrFormat)

	for _, line := range []string{"", "P", "P2", "Px", "R1", "E1", "Ea,b", "E1,b", "ENaN,0", "E1,Inf", "E-Inf,0", "E-1,0", "X"} {
		_, err := ParseCommand(line)
		assert.ErrorIs(t, err, ErrFormat, "line %q", line)
	}
}
