package scope

import (
	"testing"
	"time"

	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func snap(cycle uint64, w float64) meter.Snapshot {
	return meter.Snapshot{
		Time:       t0.Add(time.Duration(cycle) * time.Second),
		Cycle:      cycle,
		PowerW:     w,
		ApparentVA: w,
	}
}

func cycles(snaps []meter.Snapshot) []uint64 {
	out := make([]uint64, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, s.Cycle)
	}
	return out
}

func TestHistory(t *testing.T) {
	h := NewHistory(3)
	assert.Equal(t, 0, h.Len())
	assert.Empty(t, h.Snapshots(nil))

	h.Add(snap(1, 0))
	h.Add(snap(2, 0))
	assert.Equal(t, []uint64{1, 2}, cycles(h.Snapshots(nil)))

	h.Add(snap(3, 0))
	h.Add(snap(4, 0))
	h.Add(snap(5, 0))
	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []uint64{3, 4, 5}, cycles(h.Snapshots(nil)))

	h.Clear()
	assert.Equal(t, 0, h.Len())
	h.Add(snap(6, 0))
	assert.Equal(t, []uint64{6}, cycles(h.Snapshots(nil)))
}

func TestHistory_ReusesDst(t *testing.T) {
	h := NewHistory(4)
	h.Add(snap(1, 0))
	h.Add(snap(2, 0))

	dst := make([]meter.Snapshot, 0, 8)
	got := h.Snapshots(dst)
	require.Len(t, got, 2)
	assert.Equal(t, 8, cap(got))
}

func TestHistory_MinimumCapacity(t *testing.T) {
	h := NewHistory(0)
	h.Add(snap(1, 0))
	h.Add(snap(2, 0))
	assert.Equal(t, []uint64{2}, cycles(h.Snapshots(nil)))
}

func TestBounds(t *testing.T) {
	now := t0
	yMin, yMax, xMin, xMax := bounds(nil, time.Minute, now)
	assert.Equal(t, 0.0, yMin)
	assert.Equal(t, 100.0, yMax)
	assert.Equal(t, now, xMin)
	assert.Equal(t, now.Add(time.Minute), xMax)

	snaps := []meter.Snapshot{snap(0, 0), snap(10, 1000)}
	yMin, yMax, xMin, xMax = bounds(snaps, time.Minute, now)
	assert.Equal(t, 0.0, yMin)
	assert.InDelta(t, 1100.0, yMax, 1e-9)
	assert.Equal(t, t0, xMin)
	assert.Equal(t, t0.Add(time.Minute), xMax, "minimum window")

	snaps = []meter.Snapshot{snap(0, -500), snap(120, 500)}
	yMin, yMax, _, xMax = bounds(snaps, time.Minute, now)
	assert.InDelta(t, -600.0, yMin, 1e-9)
	assert.InDelta(t, 600.0, yMax, 1e-9)
	assert.Equal(t, t0.Add(2*time.Minute), xMax)
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "0.000", FormatFloat(-0.0001, 3))
	assert.Equal(t, "-1.50", FormatFloat(-1.5, 2))
	assert.Equal(t, "230", FormatFloat(230.2, 0))
}

func TestFormatPower(t *testing.T) {
	assert.Equal(t, "1180 W", FormatPower(1179.6))
	assert.Equal(t, "9999 W", FormatPower(9999))
	assert.Equal(t, "12.50 kW", FormatPower(12500))
	assert.Equal(t, "-12.50 kW", FormatPower(-12500))
}

func TestFormatEnergy(t *testing.T) {
	assert.Equal(t, "999.500 kWh", FormatEnergy(meter.Snapshot{EnergyKWh: 999.5}))
	assert.Equal(t, "1.000 MWh", FormatEnergy(meter.Snapshot{EnergyKWh: 1000}))
	assert.Equal(t, "2.500 MWh", FormatEnergy(meter.Snapshot{EnergyKWh: 2500}))
}

func TestFormatReadout(t *testing.T) {
	r := FormatReadout(meter.Snapshot{
		VoltageAC:   230.04,
		CurrentAC:   5.13,
		PowerW:      1179.6,
		ApparentVA:  1180.2,
		PowerFactor: 0.998,
		FrequencyHz: 49.996,
		EnergyKWh:   12.5,
		ExportedKWh: 0.25,
		PhaseCount:  3,
		State:       power.Reconnecting,
	})

	assert.Equal(t, Readout{
		Voltage:   "230.0 V",
		Current:   "5.13 A",
		Power:     "1180 W",
		Apparent:  "1180 VA",
		Factor:    "0.998",
		Frequency: "50.00 Hz",
		Energy:    "12.500 kWh",
		Exported:  "0.250 kWh",
		Phases:    "3φ",
		State:     "reconnecting",
	}, r)
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "0s", formatTime(0))
	assert.Equal(t, "30s", formatTime(30*time.Second))
	assert.Equal(t, "1.5m", formatTime(90*time.Second))
}
