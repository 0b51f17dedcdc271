package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/loom-cfg/loom/pkg/element"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := Open(context.Background(), Config{
		Path: filepath.Join(t.TempDir(), "state.db"),
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestBackend_LoadEmpty(t *testing.T) {
	backend := openTestBackend(t)

	elems, err := backend.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(elems) != 0 {
		t.Errorf("fresh database should be empty, got %d elements", len(elems))
	}
}

func TestBackend_SaveLoadRoundTrip(t *testing.T) {
	backend := openTestBackend(t)
	ctx := context.Background()

	typ := &element.ObjectType{
		ID: element.NewID("sf", "Lead"),
		Fields: map[string]element.FieldDef{
			"email": {Type: element.BuiltinString},
			"account": {
				Type:        element.NewID("sf", "Account"),
				Annotations: map[string]element.Value{"required": true},
			},
		},
		Annotations: map[string]element.Value{"label": "Lead"},
	}
	inst := &element.Instance{
		ID:   element.NewID("sf", "Lead", "main"),
		Type: typ.ID,
		Values: map[string]element.Value{
			"email": "x@y.z",
			"score": float64(10),
		},
	}

	if err := backend.Save(ctx, []element.Element{typ, inst}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(loaded))
	}

	byID := make(map[element.ID]element.Element)
	for _, e := range loaded {
		byID[e.EID()] = e
	}
	if !element.Equal(byID[typ.ID], typ) {
		t.Errorf("object type did not round trip: %+v", byID[typ.ID])
	}
	if !element.Equal(byID[inst.ID], inst) {
		t.Errorf("instance did not round trip: %+v", byID[inst.ID])
	}
}

func TestBackend_SaveReplacesSnapshot(t *testing.T) {
	backend := openTestBackend(t)
	ctx := context.Background()

	old := &element.ObjectType{ID: element.NewID("sf", "Old")}
	fresh := &element.ObjectType{ID: element.NewID("sf", "Fresh")}

	if err := backend.Save(ctx, []element.Element{old}); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	if err := backend.Save(ctx, []element.Element{fresh}); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := backend.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].EID() != fresh.ID {
		t.Errorf("Save should replace the snapshot wholesale, got %v", loaded)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Error("Open without a path should fail")
	}
}
