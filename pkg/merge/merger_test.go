package merge

import (
	"testing"

	"github.com/loom-cfg/loom/pkg/element"
)

func leadFragment(path string, fields map[string]element.FieldDef) *element.ObjectType {
	return &element.ObjectType{
		ID:     element.NewID("sf", "Lead"),
		Path:   path,
		Fields: fields,
	}
}

func TestMerge_Passthrough(t *testing.T) {
	frag := leadFragment("a.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinString},
	})

	res := Merge([]element.Element{frag})

	if len(res.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", res.Conflicts)
	}
	got, ok := res.Elements[frag.ID]
	if !ok {
		t.Fatal("merged set is missing the element")
	}
	if !element.Equal(got, frag) {
		t.Error("singleton fragment should pass through unchanged")
	}
	if got == element.Element(frag) {
		t.Error("merged element must not alias the input fragment")
	}
}

func TestMerge_UnionsFields(t *testing.T) {
	a := leadFragment("a.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinString},
	})
	b := leadFragment("b.yaml", map[string]element.FieldDef{
		"score": {Type: element.BuiltinNumber},
	})

	res := Merge([]element.Element{a, b})

	if len(res.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", res.Conflicts)
	}
	merged := res.Elements[a.ID].(*element.ObjectType)
	if len(merged.Fields) != 2 {
		t.Errorf("expected union of 2 fields, got %d", len(merged.Fields))
	}
}

func TestMerge_DeduplicatesIdenticalFields(t *testing.T) {
	a := leadFragment("a.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinString},
	})
	b := leadFragment("b.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinString},
	})

	res := Merge([]element.Element{a, b})

	if len(res.Conflicts) != 0 {
		t.Fatalf("identical definitions should deduplicate, got conflicts %v", res.Conflicts)
	}
}

func TestMerge_RecordsConflict(t *testing.T) {
	a := leadFragment("a.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinString},
	})
	b := leadFragment("b.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinNumber},
	})

	res := Merge([]element.Element{a, b})

	if len(res.Conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(res.Conflicts))
	}
	c := res.Conflicts[0]
	if c.Field != "email" {
		t.Errorf("conflict field = %q, want email", c.Field)
	}
	if c.A != "builtin.string" || c.B != "builtin.number" {
		t.Errorf("conflict should name both values, got %q vs %q", c.A, c.B)
	}
	if c.PathA != "a.yaml" || c.PathB != "b.yaml" {
		t.Errorf("conflict should name both sources, got %q vs %q", c.PathA, c.PathB)
	}
}

func TestMerge_CollectsAllConflicts(t *testing.T) {
	a := leadFragment("a.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinString},
		"score": {Type: element.BuiltinNumber},
	})
	b := leadFragment("b.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinNumber},
		"score": {Type: element.BuiltinString},
	})

	res := Merge([]element.Element{a, b})

	if len(res.Conflicts) != 2 {
		t.Fatalf("expected both conflicts collected, got %d", len(res.Conflicts))
	}
	// Sorted by field for stable reporting.
	if res.Conflicts[0].Field != "email" || res.Conflicts[1].Field != "score" {
		t.Errorf("conflicts not sorted: %v", res.Conflicts)
	}
}

func TestMerge_OrderIndependent(t *testing.T) {
	a := leadFragment("a.yaml", map[string]element.FieldDef{
		"email": {Type: element.BuiltinString},
	})
	b := leadFragment("b.yaml", map[string]element.FieldDef{
		"score": {Type: element.BuiltinNumber},
	})
	inst := &element.Instance{
		ID:     element.NewID("sf", "Lead", "main"),
		Path:   "a.yaml",
		Type:   element.NewID("sf", "Lead"),
		Values: map[string]element.Value{"email": "x@y.z"},
	}

	fwd := Merge([]element.Element{a, b, inst})
	rev := Merge([]element.Element{inst, b, a})

	if len(fwd.Elements) != len(rev.Elements) {
		t.Fatalf("element counts differ: %d vs %d", len(fwd.Elements), len(rev.Elements))
	}
	for id, e := range fwd.Elements {
		if !element.Equal(e, rev.Elements[id]) {
			t.Errorf("element %s differs depending on fragment order", id)
		}
	}
}

func TestMerge_InstanceValues(t *testing.T) {
	typeID := element.NewID("sf", "Lead")
	a := &element.Instance{
		ID:     element.NewID("sf", "Lead", "main"),
		Path:   "a.yaml",
		Type:   typeID,
		Values: map[string]element.Value{"email": "x@y.z"},
	}
	b := &element.Instance{
		ID:     element.NewID("sf", "Lead", "main"),
		Path:   "b.yaml",
		Type:   typeID,
		Values: map[string]element.Value{"score": int64(10)},
	}

	res := Merge([]element.Element{a, b})

	if len(res.Conflicts) != 0 {
		t.Fatalf("expected no conflicts, got %v", res.Conflicts)
	}
	merged := res.Elements[a.ID].(*element.Instance)
	if len(merged.Values) != 2 {
		t.Errorf("expected union of 2 values, got %d", len(merged.Values))
	}
}

func TestMerge_KindMismatchIsConflict(t *testing.T) {
	id := element.NewID("sf", "Lead")
	typ := &element.ObjectType{ID: id, Path: "a.yaml"}
	inst := &element.Instance{ID: id, Path: "b.yaml", Type: element.NewID("sf", "LeadType")}

	res := Merge([]element.Element{typ, inst})

	if len(res.Conflicts) != 1 {
		t.Fatalf("expected a kind conflict, got %v", res.Conflicts)
	}
	if res.Conflicts[0].Field != "" {
		t.Errorf("kind conflict should have empty field, got %q", res.Conflicts[0].Field)
	}
}
