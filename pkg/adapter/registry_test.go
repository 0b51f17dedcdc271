package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/loom-cfg/loom/pkg/element"
)

type fakeAdapter struct {
	namespace string
}

func (a *fakeAdapter) Namespace() string { return a.namespace }

func (a *fakeAdapter) Discover(context.Context) ([]element.Element, error) {
	return nil, nil
}

func (a *fakeAdapter) Apply(context.Context, Change) error { return nil }

type fakeFactory struct {
	namespace  string
	configType *element.ObjectType
	gotConfig  *element.Instance
}

func (f *fakeFactory) Namespace() string                { return f.namespace }
func (f *fakeFactory) ConfigType() *element.ObjectType  { return f.configType }
func (f *fakeFactory) New(_ context.Context, config *element.Instance) (Adapter, error) {
	f.gotConfig = config
	return &fakeAdapter{namespace: f.namespace}, nil
}

func configTypeFor(ns string) *element.ObjectType {
	return &element.ObjectType{
		ID: element.NewID(ns, "config"),
		Fields: map[string]element.FieldDef{
			"token": {Type: element.BuiltinString},
		},
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeFactory{namespace: "sf"}); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(&fakeFactory{namespace: "sf"}); err == nil {
		t.Error("duplicate namespace should fail")
	}
}

func TestRegistry_LookupUnknownIsFatal(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup("nowhere"); err == nil {
		t.Error("lookup of unregistered namespace must fail, not skip")
	}
}

func TestRegistry_InitializeFillsMissingConfig(t *testing.T) {
	r := NewRegistry()
	f := &fakeFactory{namespace: "sf", configType: configTypeFor("sf")}
	if err := r.Register(f); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	want := &element.Instance{
		ID:     element.NewID("sf", "config", "main"),
		Type:   f.configType.ID,
		Values: map[string]element.Value{"token": "secret"},
	}
	fill := func(_ context.Context, ct *element.ObjectType) (*element.Instance, error) {
		if ct.ID != f.configType.ID {
			t.Errorf("fill got descriptor %s, want %s", ct.ID, f.configType.ID)
		}
		return want, nil
	}

	filled, err := r.Initialize(context.Background(), fill)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if len(filled) != 1 || filled[0] != want {
		t.Errorf("Initialize should report newly-filled configs, got %v", filled)
	}
	if f.gotConfig != want {
		t.Error("factory should receive the filled config")
	}

	if _, err := r.Lookup("sf"); err != nil {
		t.Errorf("Lookup after Initialize failed: %v", err)
	}
}

func TestRegistry_InitializeSkipsSeededConfig(t *testing.T) {
	r := NewRegistry()
	f := &fakeFactory{namespace: "sf", configType: configTypeFor("sf")}
	if err := r.Register(f); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	seeded := &element.Instance{ID: element.NewID("sf", "config", "main"), Type: f.configType.ID}
	r.SetConfig("sf", seeded)

	fill := func(context.Context, *element.ObjectType) (*element.Instance, error) {
		t.Error("fill must not be called for a seeded namespace")
		return nil, errors.New("unreachable")
	}

	filled, err := r.Initialize(context.Background(), fill)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if len(filled) != 0 {
		t.Errorf("no configs should be reported as new, got %v", filled)
	}
}

func TestRegistry_InitializeWithoutFillFails(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&fakeFactory{namespace: "sf", configType: configTypeFor("sf")}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := r.Initialize(context.Background(), nil); err == nil {
		t.Error("Initialize should fail when config is required but fill is nil")
	}
}

func TestRegistry_AllSorted(t *testing.T) {
	r := NewRegistry()
	for _, ns := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(&fakeFactory{namespace: ns}); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	if _, err := r.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	all := r.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 adapters, got %d", len(all))
	}
	want := []string{"alpha", "mid", "zeta"}
	for i, a := range all {
		if a.Namespace() != want[i] {
			t.Errorf("All()[%d] = %s, want %s", i, a.Namespace(), want[i])
		}
	}
}
