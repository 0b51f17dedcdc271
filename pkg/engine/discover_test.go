package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/loom-cfg/loom/pkg/blueprint"
	"github.com/loom-cfg/loom/pkg/element"
	"github.com/loom-cfg/loom/pkg/state"
)

func TestEngineDiscoverOverridesState(t *testing.T) {
	stale := newType("sf", "obsolete", nil)
	role := newType("sf", "role", map[string]element.ID{
		"name": element.BuiltinString,
	})
	inst := newInstance("sf", "admin", role.ID, map[string]element.Value{
		"name": "Administrator",
	})

	ad := newRecordingAdapter("sf")
	ad.discoverSet = []element.Element{role, inst}
	backend := state.NewMemoryBackend(stale)
	eng := newTestEngine(t, backend, ad)

	if _, err := eng.Discover(context.Background(), nil, nil); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	snap := backend.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("state has %d elements after discovery, want 2", len(snap))
	}
	if _, ok := snap[stale.ID]; ok {
		t.Error("stale element survived discovery override")
	}
	if _, ok := snap[role.ID]; !ok {
		t.Error("discovered type missing from state")
	}
}

func TestEngineDiscoverMergesAcrossAdapters(t *testing.T) {
	sfType := newType("sf", "role", nil)
	dbType := newType("db", "table", nil)

	sf := newRecordingAdapter("sf")
	sf.discoverSet = []element.Element{sfType}
	db := newRecordingAdapter("db")
	db.discoverSet = []element.Element{dbType}

	backend := state.NewMemoryBackend()
	eng := newTestEngine(t, backend, sf, db)

	if _, err := eng.Discover(context.Background(), nil, nil); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	snap := backend.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("state has %d elements, want one per adapter", len(snap))
	}
}

func TestEngineDiscoverAdapterErrorIsFatal(t *testing.T) {
	sf := newRecordingAdapter("sf")
	sf.discoverErr = errors.New("connection refused")
	db := newRecordingAdapter("db")
	db.discoverSet = []element.Element{newType("db", "table", nil)}

	backend := state.NewMemoryBackend(newType("sf", "keep", nil))
	eng := newTestEngine(t, backend, sf, db)

	if _, err := eng.Discover(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error when one adapter fails")
	}

	// A failed discovery never replaces the prior snapshot.
	if _, ok := backend.Snapshot()[element.NewID("sf", "keep")]; !ok {
		t.Error("prior state lost after failed discovery")
	}
}

func TestEngineDiscoverInvalidElementsAreFatal(t *testing.T) {
	dangling := newInstance("sf", "admin", element.NewID("sf", "missing"), nil)
	ad := newRecordingAdapter("sf")
	ad.discoverSet = []element.Element{dangling}

	backend := state.NewMemoryBackend()
	eng := newTestEngine(t, backend, ad)

	_, err := eng.Discover(context.Background(), nil, nil)
	if !IsValidation(err) {
		t.Fatalf("error = %v, want validation kind", err)
	}
	if len(backend.Snapshot()) != 0 {
		t.Error("invalid discovery reached state")
	}
}

func TestEngineDiscoverGroupsOutputDocuments(t *testing.T) {
	grouped := newType("sf", "role", nil)
	grouped.Path = "crm/roles.yaml"
	ungrouped := newType("sf", "account", nil)

	ad := newRecordingAdapter("sf")
	ad.discoverSet = []element.Element{grouped, ungrouped}
	eng := newTestEngine(t, state.NewMemoryBackend(), ad)

	docs, err := eng.Discover(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2: %v", len(docs), docNames(docs))
	}

	names := docNames(docs)
	if names[0] != "crm/roles.yaml" || names[1] != "sf.yaml" {
		t.Errorf("document names = %v", names)
	}

	bp, err := blueprint.Decode(names[0], docs[0].Content)
	if err != nil {
		t.Fatalf("Decode(%s): %v", names[0], err)
	}
	if len(bp.Elements) != 1 || bp.Elements[0].EID() != grouped.ID {
		t.Errorf("grouped document holds %d element(s)", len(bp.Elements))
	}
}

func TestEngineDiscoverEmitsNewConfigs(t *testing.T) {
	cfgType := newType("sf", "config", map[string]element.ID{
		"token": element.BuiltinString,
	})
	ad := newRecordingAdapter("sf")
	ad.discoverSet = []element.Element{newType("sf", "role", nil)}
	reg := newTestRegistryWithConfig(t, ad, cfgType)

	eng, err := New(Options{
		Registry: reg,
		Backend:  state.NewMemoryBackend(),
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	fill := func(_ context.Context, ct *element.ObjectType) (*element.Instance, error) {
		return &element.Instance{
			ID:     element.NewID(ct.ID.Adapter, "config", "default"),
			Type:   ct.ID,
			Values: map[string]element.Value{"token": "t-123"},
		}, nil
	}

	docs, err := eng.Discover(context.Background(), nil, fill)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(docs) == 0 || docs[0].Filename != ConfigDocumentName {
		t.Fatalf("first document = %v, want %s", docNames(docs), ConfigDocumentName)
	}

	bp, err := blueprint.Decode(ConfigDocumentName, docs[0].Content)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(bp.Elements) != 1 {
		t.Fatalf("config document holds %d element(s), want 1", len(bp.Elements))
	}
}

func docNames(docs []OutputDocument) []string {
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Filename
	}
	return names
}
