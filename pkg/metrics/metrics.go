// Package metrics exports measurements to Prometheus.
package metrics

import (
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VoltageVolts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_voltage_volts",
		Help: "Smoothed RMS line voltage",
	})

	CurrentAmps = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_current_amps",
		Help: "Smoothed RMS current",
	})

	PowerWatts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_power_watts",
		Help: "Real power, scaled by phase count",
	})

	ApparentPowerVA = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_apparent_power_va",
		Help: "Apparent power, scaled by phase count",
	})

	PowerFactor = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_power_factor",
		Help: "Power factor",
	})

	FrequencyHertz = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_frequency_hertz",
		Help: "Estimated mains frequency",
	})

	EnergyImportedKWh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_energy_imported_kwh",
		Help: "Accumulated imported energy",
	})

	EnergyExportedKWh = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_energy_exported_kwh",
		Help: "Accumulated exported energy",
	})

	PhaseCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_phase_count",
		Help: "Configured phase count",
	})

	// ConnectionState is 1 for the current state and 0 for the others.
	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "powermon_ct_state",
		Help: "Current transformer connection state",
	}, []string{"state"})

	Cycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powermon_cycles_total",
		Help: "Measurement cycles by outcome",
	}, []string{"outcome"})

	Events = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "powermon_events_total",
		Help: "Diagnostic events by kind",
	}, []string{"kind"})

	OffsetCounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_offset_counts",
		Help: "Effective DC offset of the current channel",
	})

	PercentValid = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "powermon_valid_samples_percent",
		Help: "Share of current samples above the noise floor",
	})

	SampleSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "powermon_sample_seconds",
		Help:    "Wall time spent acquiring one current batch",
		Buckets: []float64{.05, .1, .2, .3, .4, .5, .75, 1},
	})

	PublishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "powermon_publish_errors_total",
		Help: "Failed MQTT publishes",
	})

	StoreErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "powermon_store_errors_total",
		Help: "Failed settings or energy saves",
	})
)

var states = []power.State{power.Connected, power.Disconnected, power.Reconnecting}

// Observe updates the gauges from a published snapshot.
func Observe(s meter.Snapshot) {
	VoltageVolts.Set(s.VoltageAC)
	CurrentAmps.Set(s.CurrentAC)
	PowerWatts.Set(s.PowerW)
	ApparentPowerVA.Set(s.ApparentVA)
	PowerFactor.Set(s.PowerFactor)
	FrequencyHertz.Set(s.FrequencyHz)
	EnergyImportedKWh.Set(s.EnergyKWh)
	EnergyExportedKWh.Set(s.ExportedKWh)
	PhaseCount.Set(float64(s.PhaseCount))
	OffsetCounts.Set(s.Offset)
	PercentValid.Set(s.PercentValid)
	if s.SampleSeconds > 0 {
		SampleSeconds.Observe(s.SampleSeconds)
	}

	for _, st := range states {
		v := 0.0
		if st == s.State {
			v = 1
		}
		ConnectionState.WithLabelValues(st.String()).Set(v)
	}

	switch {
	case s.Discarded:
		Cycles.WithLabelValues("discarded").Inc()
	case s.Valid:
		Cycles.WithLabelValues("valid").Inc()
	default:
		Cycles.WithLabelValues("invalid").Inc()
	}
}

// ObserveEvent counts a diagnostic event. Per-cycle events are not counted;
// Observe already covers them.
func ObserveEvent(e power.Event) {
	if e.Kind == power.EventCycle {
		return
	}
	Events.WithLabelValues(e.Kind.String()).Inc()
}
