package state

import (
	"context"
	"sync"

	"github.com/loom-cfg/loom/pkg/element"
)

// MemoryBackend is a Backend that keeps the snapshot in process memory.
// Used by tests and by read-only invocations that must not touch disk.
type MemoryBackend struct {
	mu    sync.Mutex
	elems []element.Element

	// FailSave, when set, makes Save return this error. Lets tests
	// exercise the flush-failure path.
	FailSave error

	// SaveCount counts completed Save calls.
	SaveCount int
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend(seed ...element.Element) *MemoryBackend {
	return &MemoryBackend{elems: seed}
}

// Load returns the last saved snapshot.
func (b *MemoryBackend) Load(_ context.Context) ([]element.Element, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]element.Element, len(b.elems))
	copy(out, b.elems)
	return out, nil
}

// Save replaces the snapshot.
func (b *MemoryBackend) Save(_ context.Context, elems []element.Element) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailSave != nil {
		return b.FailSave
	}
	b.elems = make([]element.Element, len(elems))
	copy(b.elems, elems)
	b.SaveCount++
	return nil
}

// Snapshot returns the saved elements keyed by ID.
func (b *MemoryBackend) Snapshot() map[element.ID]element.Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[element.ID]element.Element, len(b.elems))
	for _, e := range b.elems {
		out[e.EID()] = e
	}
	return out
}
