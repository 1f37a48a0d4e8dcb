package sink

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by [MemorySink.Write] after Close.
var ErrClosed = errors.New("sink closed")

// MemorySink is an in-memory implementation of [Sink].
//
// MemorySink keeps every written batch and the latest batch per identifier.
// It backs the "memory" sink type used for dry runs and tests. The live feed
// is a separate [Broadcaster]; MemorySink only stores.
type MemorySink struct {
	mu      sync.RWMutex
	batches [][]Measurement
	latest  map[string][]Measurement
	closed  bool
}

// NewMemorySink creates an empty [MemorySink].
func NewMemorySink() *MemorySink {
	return &MemorySink{latest: make(map[string][]Measurement)}
}

// Write stores a copy of batch.
func (m *MemorySink) Write(_ context.Context, batch []Measurement) error {
	cp := append([]Measurement(nil), batch...)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.batches = append(m.batches, cp)
	if len(cp) > 0 {
		m.latest[cp[0].Identifier] = cp
	}
	m.mu.Unlock()
	return nil
}

// Close marks the sink closed. Stored batches stay readable.
func (m *MemorySink) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// Batches returns a snapshot of every batch written so far, in write order.
func (m *MemorySink) Batches() [][]Measurement {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]Measurement, len(m.batches))
	copy(out, m.batches)
	return out
}

// Latest returns the most recent batch for identifier.
func (m *MemorySink) Latest(identifier string) ([]Measurement, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	batch, ok := m.latest[identifier]
	return batch, ok
}
