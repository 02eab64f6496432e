package metrics

import (
	"testing"

	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserve(t *testing.T) {
	validBefore := testutil.ToFloat64(Cycles.WithLabelValues("valid"))

	Observe(meter.Snapshot{
		VoltageAC:     230.5,
		CurrentAC:     5.2,
		PowerW:        1198.6,
		ApparentVA:    1198.6,
		PowerFactor:   1,
		FrequencyHz:   50.02,
		EnergyKWh:     12.25,
		ExportedKWh:   0.5,
		PhaseCount:    3,
		State:         power.Reconnecting,
		Valid:         true,
		Offset:        1880.5,
		PercentValid:  82,
		SampleSeconds: 0.296,
	})

	assert.Equal(t, 230.5, testutil.ToFloat64(VoltageVolts))
	assert.Equal(t, 5.2, testutil.ToFloat64(CurrentAmps))
	assert.Equal(t, 1198.6, testutil.ToFloat64(PowerWatts))
	assert.Equal(t, 50.02, testutil.ToFloat64(FrequencyHertz))
	assert.Equal(t, 12.25, testutil.ToFloat64(EnergyImportedKWh))
	assert.Equal(t, 0.5, testutil.ToFloat64(EnergyExportedKWh))
	assert.Equal(t, 3.0, testutil.ToFloat64(PhaseCount))
	assert.Equal(t, 1880.5, testutil.ToFloat64(OffsetCounts))

	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionState.WithLabelValues("reconnecting")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionState.WithLabelValues("connected")))
	assert.Equal(t, 0.0, testutil.ToFloat64(ConnectionState.WithLabelValues("disconnected")))

	assert.Equal(t, validBefore+1, testutil.ToFloat64(Cycles.WithLabelValues("valid")))
}

func TestObserve_Outcomes(t *testing.T) {
	invalid := testutil.ToFloat64(Cycles.WithLabelValues("invalid"))
	discarded := testutil.ToFloat64(Cycles.WithLabelValues("discarded"))

	Observe(meter.Snapshot{State: power.Disconnected})
	Observe(meter.Snapshot{Valid: true, Discarded: true})

	assert.Equal(t, invalid+1, testutil.ToFloat64(Cycles.WithLabelValues("invalid")))
	assert.Equal(t, discarded+1, testutil.ToFloat64(Cycles.WithLabelValues("discarded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionState.WithLabelValues("connected")))
}

func TestObserveEvent(t *testing.T) {
	transitions := testutil.ToFloat64(Events.WithLabelValues("transition"))
	cycles := testutil.ToFloat64(Events.WithLabelValues("cycle"))

	ObserveEvent(power.Event{Kind: power.EventTransition})
	ObserveEvent(power.Event{Kind: power.EventTransition})
	ObserveEvent(power.Event{Kind: power.EventCycle})

	assert.Equal(t, transitions+2, testutil.ToFloat64(Events.WithLabelValues("transition")))
	assert.Equal(t, cycles, testutil.ToFloat64(Events.WithLabelValues("cycle")))
}
