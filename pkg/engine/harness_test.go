package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/loom-cfg/loom/pkg/adapter"
	"github.com/loom-cfg/loom/pkg/element"
	"github.com/loom-cfg/loom/pkg/plan"
)

// recordingAdapter records every Apply call in order and can be told to
// fail specific elements or serve a canned discovery set.
type recordingAdapter struct {
	ns string

	mu      sync.Mutex
	applied []element.ID
	actions map[element.ID]plan.Action

	failOn      map[element.ID]error
	discoverSet []element.Element
	discoverErr error

	// onApply, when set, observes each dispatch before it is recorded.
	onApply func(id element.ID)
}

func newRecordingAdapter(ns string) *recordingAdapter {
	return &recordingAdapter{
		ns:      ns,
		actions: make(map[element.ID]plan.Action),
		failOn:  make(map[element.ID]error),
	}
}

func (a *recordingAdapter) Namespace() string { return a.ns }

func (a *recordingAdapter) Discover(context.Context) ([]element.Element, error) {
	if a.discoverErr != nil {
		return nil, a.discoverErr
	}
	return a.discoverSet, nil
}

func (a *recordingAdapter) Apply(_ context.Context, change adapter.Change) error {
	id := changeID(change)
	if a.onApply != nil {
		a.onApply(id)
	}

	a.mu.Lock()
	a.applied = append(a.applied, id)
	a.actions[id] = change.Action
	err := a.failOn[id]
	a.mu.Unlock()

	return err
}

func (a *recordingAdapter) appliedIDs() []element.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]element.ID, len(a.applied))
	copy(out, a.applied)
	return out
}

func (a *recordingAdapter) indexOf(id element.ID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, got := range a.applied {
		if got == id {
			return i
		}
	}
	return -1
}

func changeID(c adapter.Change) element.ID {
	if c.After != nil {
		return c.After.EID()
	}
	return c.Before.EID()
}

// recordingFactory hands out a pre-built recordingAdapter so tests keep
// a handle on it after registry initialization.
type recordingFactory struct {
	adapter    *recordingAdapter
	configType *element.ObjectType
}

func (f *recordingFactory) Namespace() string               { return f.adapter.ns }
func (f *recordingFactory) ConfigType() *element.ObjectType { return f.configType }
func (f *recordingFactory) New(context.Context, *element.Instance) (adapter.Adapter, error) {
	return f.adapter, nil
}

func newTestRegistry(t *testing.T, adapters ...*recordingAdapter) *adapter.Registry {
	t.Helper()
	r := adapter.NewRegistry()
	for _, a := range adapters {
		if err := r.Register(&recordingFactory{adapter: a}); err != nil {
			t.Fatalf("Register(%s): %v", a.ns, err)
		}
	}
	if _, err := r.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return r
}

// newTestRegistryWithConfig registers a config-requiring factory and
// leaves initialization to the engine, which seeds configs from the
// blueprints first.
func newTestRegistryWithConfig(t *testing.T, a *recordingAdapter, cfgType *element.ObjectType) *adapter.Registry {
	t.Helper()
	r := adapter.NewRegistry()
	if err := r.Register(&recordingFactory{adapter: a, configType: cfgType}); err != nil {
		t.Fatalf("Register(%s): %v", a.ns, err)
	}
	return r
}

func testLogger() zerolog.Logger { return zerolog.Nop() }

func newType(ns, name string, fieldTypes map[string]element.ID) *element.ObjectType {
	fields := make(map[string]element.FieldDef, len(fieldTypes))
	for fname, ft := range fieldTypes {
		fields[fname] = element.FieldDef{Type: ft}
	}
	return &element.ObjectType{ID: element.NewID(ns, name), Fields: fields}
}

func newInstance(ns, name string, typeID element.ID, values map[string]element.Value) *element.Instance {
	return &element.Instance{
		ID:     element.NewID(ns, name),
		Type:   typeID,
		Values: values,
	}
}

func elementSet(elems ...element.Element) map[element.ID]element.Element {
	set := make(map[element.ID]element.Element, len(elems))
	for _, e := range elems {
		set[e.EID()] = e
	}
	return set
}

func buildPlan(t *testing.T, prior, desired map[element.ID]element.Element) *plan.Plan {
	t.Helper()
	p, err := plan.Build(prior, desired)
	if err != nil {
		t.Fatalf("plan.Build: %v", err)
	}
	return p
}
