package publish

import (
	"sync"

	"github.com/itohio/gopowermon/pkg/meter"
	"github.com/itohio/gopowermon/pkg/power"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	Snapshots   []meter.Snapshot
	Transitions []power.Transition
	System      []SystemEvent

	// Payloads holds every formatted payload in publish order.
	Payloads [][]byte

	// PublishError, if set, is returned by every Publish method.
	PublishError error

	Closed    bool
	Connected bool
}

var (
	_ Publisher        = (*FakePublisher)(nil)
	_ ConnectionStatus = (*FakePublisher)(nil)
)

// NewFakePublisher creates a connected FakePublisher.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{Connected: true}
}

// PublishSnapshot records the snapshot.
func (f *FakePublisher) PublishSnapshot(s meter.Snapshot) error {
	payload, err := FormatTelemetry(s)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Snapshots = append(f.Snapshots, s)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishTransition records the transition.
func (f *FakePublisher) PublishTransition(t power.Transition) error {
	payload, err := FormatState(t)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Transitions = append(f.Transitions, t)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(e SystemEvent) error {
	payload, err := FormatSystem(e)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.System = append(f.System, e)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.Connected = false
	return nil
}

// IsConnected reports the Connected field.
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Count returns the number of recorded snapshots.
func (f *FakePublisher) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Snapshots)
}

// Reset clears everything recorded.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Snapshots = nil
	f.Transitions = nil
	f.System = nil
	f.Payloads = nil
	f.PublishError = nil
	f.Closed = false
	f.Connected = true
}
