package state

import (
	"context"
	"errors"
	"testing"

	"github.com/loom-cfg/loom/pkg/element"
)

func lead(sub string) *element.Instance {
	return &element.Instance{
		ID:   element.NewID("sf", "Lead", sub),
		Type: element.NewID("sf", "Lead"),
	}
}

func TestStore_GetReadsThroughOnce(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(lead("a"))
	store := New(backend)

	got, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 element, got %d", len(got))
	}

	// Mutations are visible to later Gets without a fresh durable read.
	if err := store.Update(ctx, lead("b")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err = store.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("cached view should include the update, got %d elements", len(got))
	}

	// Nothing flushed yet: the durable layer still has one element.
	if len(backend.Snapshot()) != 1 {
		t.Error("Update must not write through before Flush")
	}
}

func TestStore_UpdateRemoveFlush(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(lead("a"), lead("b"))
	store := New(backend)

	if err := store.Update(ctx, lead("c")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.Remove(ctx, lead("a").ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	snap := backend.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 elements after flush, got %d", len(snap))
	}
	if _, ok := snap[lead("a").ID]; ok {
		t.Error("removed element still present after flush")
	}
	if _, ok := snap[lead("c").ID]; !ok {
		t.Error("updated element missing after flush")
	}
}

func TestStore_FlushIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := New(backend)

	if err := store.Update(ctx, lead("a")); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("second Flush failed: %v", err)
	}
	if backend.SaveCount != 1 {
		t.Errorf("unchanged store should not save again, got %d saves", backend.SaveCount)
	}
}

func TestStore_OverrideReplacesEverything(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend(lead("a"), lead("b"))
	store := New(backend)

	store.Override([]element.Element{lead("fresh")})
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	snap := backend.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("override should replace the set, got %d elements", len(snap))
	}
	if _, ok := snap[lead("fresh").ID]; !ok {
		t.Error("overridden element missing")
	}
}

func TestScoped_FlushesOnError(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	opErr := errors.New("apply blew up")
	err := Scoped(ctx, backend, func(st *Store) error {
		if uerr := st.Update(ctx, lead("partial")); uerr != nil {
			return uerr
		}
		return opErr
	})

	if !errors.Is(err, opErr) {
		t.Fatalf("operation error lost: %v", err)
	}
	if _, ok := backend.Snapshot()[lead("partial").ID]; !ok {
		t.Error("partial progress must be flushed even when the operation fails")
	}
}

func TestScoped_FlushErrorJoined(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	saveErr := errors.New("disk full")
	backend.FailSave = saveErr

	err := Scoped(ctx, backend, func(st *Store) error {
		return st.Update(ctx, lead("x"))
	})

	if !errors.Is(err, saveErr) {
		t.Errorf("flush failure should surface, got %v", err)
	}
}

func TestScoped_FlushesOnPanic(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("panic should propagate out of Scoped")
			}
		}()
		_ = Scoped(ctx, backend, func(st *Store) error {
			if err := st.Update(ctx, lead("x")); err != nil {
				return err
			}
			panic("unexpected fault")
		})
	}()

	if _, ok := backend.Snapshot()[lead("x").ID]; !ok {
		t.Error("flush must run even on panic")
	}
}
