// Package state persists the element set believed to reflect the real,
// currently-applied configuration. A Store caches the durable snapshot
// in memory for the duration of one logical operation; Flush is the sole
// durability boundary. Scoped guarantees the flush runs on every exit
// path, so a partially-applied operation never silently loses the
// progress it made.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/loom-cfg/loom/pkg/element"
)

// Backend is the durable layer beneath a Store. Load reads the last
// persisted snapshot; Save atomically replaces it. A failed Save must
// leave the previous snapshot intact.
type Backend interface {
	Load(ctx context.Context) ([]element.Element, error)
	Save(ctx context.Context, elems []element.Element) error
}

// Store is the in-memory view of one operation's state. It is a
// single-writer resource: one logical operation owns it at a time, and
// that operation's mutations are observed consistently until Flush.
type Store struct {
	backend Backend

	mu     sync.Mutex
	loaded bool
	elems  map[element.ID]element.Element
	dirty  bool
}

// New creates a Store over a durable backend. Nothing is read until the
// first Get.
func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get returns the current element set. The durable snapshot is read on
// the first call; later calls return the cached view including any
// Update/Remove/Override applied since.
func (s *Store) Get(ctx context.Context) (map[element.ID]element.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	out := make(map[element.ID]element.Element, len(s.elems))
	for id, e := range s.elems {
		out[id] = e
	}
	return out, nil
}

// Update upserts elements into the in-memory set.
func (s *Store) Update(ctx context.Context, elems ...element.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	for _, e := range elems {
		if e == nil {
			continue
		}
		s.elems[e.EID()] = e
	}
	s.dirty = true
	return nil
}

// Remove deletes elements from the in-memory set by ID.
func (s *Store) Remove(ctx context.Context, ids ...element.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.elems, id)
	}
	s.dirty = true
	return nil
}

// Override replaces the entire in-memory set. Used after a discovery
// pass; the previous content is discarded without being read.
func (s *Store) Override(elems []element.Element) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.elems = make(map[element.ID]element.Element, len(elems))
	for _, e := range elems {
		if e == nil {
			continue
		}
		s.elems[e.EID()] = e
	}
	s.loaded = true
	s.dirty = true
}

// Flush durably persists the current in-memory set. Idempotent: a flush
// with no changes since the last one is a no-op.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	elems := make([]element.Element, 0, len(s.elems))
	for _, e := range s.elems {
		elems = append(elems, e)
	}
	if err := s.backend.Save(ctx, elems); err != nil {
		return fmt.Errorf("flushing state: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	elems, err := s.backend.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading state: %w", err)
	}
	s.elems = make(map[element.ID]element.Element, len(elems))
	for _, e := range elems {
		if e == nil {
			continue
		}
		s.elems[e.EID()] = e
	}
	s.loaded = true
	return nil
}

// Scoped runs fn with a Store over backend and flushes on every exit
// path: normal return, error, or panic. The flush error, if any, is
// joined with fn's error; a panic is re-raised after the flush.
func Scoped(ctx context.Context, backend Backend, fn func(*Store) error) (err error) {
	store := New(backend)

	defer func() {
		flushErr := store.Flush(ctx)
		if r := recover(); r != nil {
			// Best-effort flush already ran; do not swallow the fault.
			panic(r)
		}
		err = errors.Join(err, flushErr)
	}()

	err = fn(store)
	return err
}
