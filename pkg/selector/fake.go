package selector

import (
	"errors"
	"sync"
)

var _ Reader = (*FakeReader)(nil)

// FakeReader returns scripted switch positions. Each read consumes the
// next position; the last one repeats.
type FakeReader struct {
	mu        sync.Mutex
	positions []bool
	index     int

	// ReadError, if set, is returned by ThreePhase.
	ReadError error
	Closed    bool
}

// NewFakeReader creates a FakeReader with the given positions.
func NewFakeReader(positions ...bool) *FakeReader {
	return &FakeReader{positions: positions}
}

// ThreePhase returns the next scripted position.
func (f *FakeReader) ThreePhase() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.positions) == 0 {
		return false, errors.New("no positions configured")
	}

	p := f.positions[f.index]
	if f.index < len(f.positions)-1 {
		f.index++
	}
	return p, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
