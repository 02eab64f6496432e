package scope

import (
	"sync"

	"github.com/itohio/gopowermon/pkg/meter"
)

// History is a fixed-capacity ring of snapshots, oldest first.
type History struct {
	mu    sync.RWMutex
	buf   []meter.Snapshot
	start int
	n     int
}

// NewHistory creates a History holding at most capacity snapshots.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]meter.Snapshot, capacity)}
}

// Add appends s, evicting the oldest snapshot when full.
func (h *History) Add(s meter.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of held snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.n
}

// Snapshots copies the held snapshots into dst in arrival order. dst is
// reused if it has sufficient capacity.
func (h *History) Snapshots(dst []meter.Snapshot) []meter.Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if cap(dst) < h.n {
		dst = make([]meter.Snapshot, h.n)
	}
	dst = dst[:h.n]
	for i := 0; i < h.n; i++ {
		dst[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return dst
}

// Clear drops all snapshots.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.start = 0
	h.n = 0
}
