package main

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/itohio/gopowermon/pkg/device"
	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/metrics"
	"github.com/itohio/gopowermon/pkg/power"
	"github.com/itohio/gopowermon/pkg/publish"
	"github.com/itohio/gopowermon/pkg/status"
	"github.com/itohio/gopowermon/pkg/store"
	"github.com/sirupsen/logrus"
)

const (
	defaultPersistInterval = time.Minute
	storeTimeout           = 5 * time.Second
)

var errSourceClosed = errors.New("snapshot source closed")

// daemon moves snapshots from a source to the publisher, the status server
// and the store.
type daemon struct {
	src       device.Source
	store     store.Store
	pub       publish.Publisher // nil disables publishing
	latest    *status.Latest
	phases    chan int
	telemetry time.Duration
	persist   time.Duration
	log       logrus.FieldLogger
	now       func() time.Time

	// Persisted counters, applied once the first snapshot shows what the
	// source kept.
	restoreMu sync.Mutex
	restore   *store.Energy

	last     meter.Snapshot
	haveLast bool
}

// SetPhaseCount applies and persists a phase count.
func (d *daemon) SetPhaseCount(n int) error {
	s := store.Settings{PhaseCount: n}
	if err := s.Validate(); err != nil {
		return err
	}
	if err := d.src.SetPhaseCount(n); err != nil {
		return err
	}
	d.log.WithField("phase_count", n).Info("Phase count changed")

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := d.store.SaveSettings(ctx, s); err != nil {
		metrics.StoreErrors.Inc()
		d.log.WithError(err).Warn("Failed to save settings")
	}
	return nil
}

// ResetEnergy clears the counters and persists the zeroed values.
func (d *daemon) ResetEnergy() error {
	if err := d.src.ResetEnergy(); err != nil {
		return err
	}
	d.restoreMu.Lock()
	d.restore = nil
	d.restoreMu.Unlock()
	d.log.Info("Energy counters reset")

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := d.store.SaveEnergy(ctx, store.Energy{Time: d.now()}); err != nil {
		metrics.StoreErrors.Inc()
		d.log.WithError(err).Warn("Failed to save energy")
	}
	return nil
}

// run processes snapshots until ctx is cancelled or the source closes.
// Buffered telemetry is flushed and energy is saved before returning.
func (d *daemon) run(ctx context.Context) error {
	if d.now == nil {
		d.now = time.Now
	}
	persist := d.persist
	if persist <= 0 {
		persist = defaultPersistInterval
	}

	snaps := d.src.Snapshots()
	if snaps == nil {
		return device.ErrNotConnected
	}

	d.system("STARTUP", "")

	avgIn := make(chan meter.Snapshot, device.DefaultBufferSize)
	avgOut := device.NewAverager(d.telemetry, device.DefaultBufferSize)(avgIn)

	ticker := time.NewTicker(persist)
	defer ticker.Stop()

	var err error
	reason := "signal"

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case s, ok := <-snaps:
			if !ok {
				err = errSourceClosed
				reason = "source closed"
				break loop
			}
			d.handle(s)
			select {
			case avgIn <- s:
			default:
				d.log.Debug("Telemetry averager behind, snapshot skipped")
			}

		case s, ok := <-avgOut:
			if ok {
				d.publishTelemetry(s)
			}

		case n := <-d.phases:
			if err := d.SetPhaseCount(n); err != nil {
				d.log.WithError(err).Warn("Phase change rejected")
			}

		case <-ticker.C:
			d.saveEnergy(ctx)
		}
	}

	close(avgIn)
	for s := range avgOut {
		d.publishTelemetry(s)
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	d.saveEnergy(saveCtx)

	d.system("SHUTDOWN", reason)
	return err
}

func (d *daemon) handle(s meter.Snapshot) {
	d.reconcileEnergy(&s)
	d.latest.Set(s)
	metrics.Observe(s)

	switch {
	case !d.haveLast:
		d.publishTransition(power.Transition{From: s.State, To: s.State, Time: s.Time, Reason: "startup"})
	case d.last.State != s.State:
		d.publishTransition(power.Transition{From: d.last.State, To: s.State, Time: s.Time, Reason: "state changed"})
	}

	d.last = s
	d.haveLast = true
}

// reconcileEnergy restores the persisted counters when the source reports
// less than was saved. A source that kept counting, like firmware that
// outlived a daemon restart, is left alone, so energy never moves backwards.
func (d *daemon) reconcileEnergy(s *meter.Snapshot) {
	d.restoreMu.Lock()
	e := d.restore
	d.restore = nil
	d.restoreMu.Unlock()
	if e == nil {
		return
	}

	imported := math.Max(e.ImportedKWh, s.EnergyKWh)
	exported := math.Max(e.ExportedKWh, s.ExportedKWh)
	if imported == s.EnergyKWh && exported == s.ExportedKWh {
		d.log.WithField("imported_kwh", s.EnergyKWh).Info("Source energy is current, nothing restored")
		return
	}
	if err := d.src.RestoreEnergy(imported, exported); err != nil {
		d.log.WithError(err).Warn("Failed to restore energy")
		return
	}
	s.EnergyKWh, s.ExportedKWh = imported, exported
	d.log.WithFields(logrus.Fields{"imported_kwh": imported, "exported_kwh": exported}).Info("Energy restored")
}

func (d *daemon) publishTelemetry(s meter.Snapshot) {
	if d.pub == nil {
		return
	}
	if err := d.pub.PublishSnapshot(s); err != nil {
		metrics.PublishErrors.Inc()
		d.log.WithError(err).Debug("Telemetry publish failed")
	}
}

func (d *daemon) publishTransition(t power.Transition) {
	d.log.WithFields(logrus.Fields{"from": t.From, "to": t.To}).Info("CT state")
	if d.pub == nil {
		return
	}
	if err := d.pub.PublishTransition(t); err != nil {
		metrics.PublishErrors.Inc()
		d.log.WithError(err).Warn("State publish failed")
	}
}

func (d *daemon) system(event, reason string) {
	if d.pub == nil {
		return
	}
	if err := d.pub.PublishSystem(publish.SystemEvent{Timestamp: d.now(), Event: event, Reason: reason}); err != nil {
		metrics.PublishErrors.Inc()
		d.log.WithError(err).Warn("System publish failed")
	}
}

func (d *daemon) saveEnergy(ctx context.Context) {
	if !d.haveLast {
		return
	}
	e := store.Energy{
		ImportedKWh: d.last.EnergyKWh,
		ExportedKWh: d.last.ExportedKWh,
		Time:        d.now(),
	}
	if err := d.store.SaveEnergy(ctx, e); err != nil {
		metrics.StoreErrors.Inc()
		d.log.WithError(err).Warn("Failed to save energy")
		return
	}
	d.log.WithField("imported_kwh", e.ImportedKWh).Debug("Energy saved")
}
