package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/sirupsen/logrus"
)

// Local runs a meter in-process and exposes it as a Source.
type Local struct {
	meter   *meter.Meter
	period  time.Duration
	bufSize int
	log     logrus.FieldLogger

	mu        sync.RWMutex
	snapshots chan meter.Snapshot
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// NewLocal wraps m. Period <= 0 uses the meter's configured period.
func NewLocal(m *meter.Meter, period time.Duration, bufSize int, log logrus.FieldLogger) *Local {
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}

	l := &Local{
		meter:   m,
		period:  period,
		bufSize: bufSize,
		log:     loggerOrStandard(log),
	}
	m.OnUpdate(l.forward)
	return l
}

// Meter returns the wrapped meter.
func (l *Local) Meter() *meter.Meter {
	return l.meter
}

// Connect initializes the meter and starts the update loop.
func (l *Local) Connect() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.connected {
		return ErrAlreadyConnected
	}
	if err := l.meter.Begin(); err != nil {
		return fmt.Errorf("failed to start meter: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})
	l.snapshots = make(chan meter.Snapshot, l.bufSize)
	l.connected = true

	go l.run(ctx, l.done)
	return nil
}

// Close stops the update loop after the running cycle completes.
func (l *Local) Close() error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return nil
	}
	l.connected = false
	l.cancel()
	done := l.done
	l.mu.Unlock()

	<-done
	return nil
}

// Snapshots returns the channel for reading snapshots.
func (l *Local) Snapshots() <-chan meter.Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshots
}

// IsConnected returns whether the update loop is running.
func (l *Local) IsConnected() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.connected
}

// SetPhaseCount reconfigures the meter.
func (l *Local) SetPhaseCount(n int) error {
	return l.meter.Reconfigure(n)
}

// ResetEnergy clears the meter's energy counters.
func (l *Local) ResetEnergy() error {
	l.meter.ResetEnergy()
	return nil
}

// RestoreEnergy loads persisted energy counters.
func (l *Local) RestoreEnergy(importedKWh, exportedKWh float64) error {
	l.meter.RestoreEnergy(importedKWh, exportedKWh)
	return nil
}

func (l *Local) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	err := l.meter.Run(ctx, l.period)
	if err != nil && !errors.Is(err, context.Canceled) {
		l.log.WithError(err).Error("Meter stopped")
	}

	l.mu.Lock()
	close(l.snapshots)
	l.snapshots = nil
	l.mu.Unlock()
}

// forward is the meter callback. Snapshots are dropped when the consumer
// falls behind.
func (l *Local) forward(s meter.Snapshot) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.snapshots == nil {
		return
	}
	select {
	case l.snapshots <- s:
	default:
		l.log.Debug("Snapshot channel full, dropping snapshot")
	}
}
