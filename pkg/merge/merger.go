// Package merge combines element fragments that share an ID into one
// canonical element per ID. Merging is a pure function over its input:
// deterministic, commutative over fragment order, and side-effect free.
// Conflicting fragments never abort the pass; conflicts are collected so
// the validator can report all of them together.
package merge

import (
	"fmt"
	"sort"

	"github.com/loom-cfg/loom/pkg/element"
)

// Conflict records two fragments assigning different definitions to the
// same field of the same element. There is no override precedence:
// a conflict always fails validation.
type Conflict struct {
	// ID is the element both fragments define.
	ID element.ID

	// Field is the conflicting field name. Empty when the fragments
	// disagree on the element kind itself (type vs instance).
	Field string

	// A and B are the two divergent definitions, rendered for reporting.
	A, B string

	// PathA and PathB are the source documents the fragments came from.
	PathA, PathB string
}

func (c Conflict) String() string {
	if c.Field == "" {
		return fmt.Sprintf("%s: fragment kinds differ (%s vs %s)", c.ID, c.PathA, c.PathB)
	}
	return fmt.Sprintf("%s: field %q defined as %s (%s) and %s (%s)",
		c.ID, c.Field, c.A, c.PathA, c.B, c.PathB)
}

// Result is the outcome of one merge pass.
type Result struct {
	// Elements is the merged set, one element per ID.
	Elements map[element.ID]element.Element

	// Conflicts lists every divergent field definition found while
	// merging, sorted for stable reporting.
	Conflicts []Conflict
}

// Merge combines all fragments sharing an ID into one canonical element.
// Singleton groups pass through (deep-copied, never aliased). Larger
// groups union their field or value maps; identical definitions
// deduplicate, divergent ones are recorded as conflicts with the first
// definition kept so the merged set stays usable for further checks.
func Merge(elems []element.Element) Result {
	res := Result{Elements: make(map[element.ID]element.Element, len(elems))}

	for _, frag := range elems {
		if frag == nil {
			continue
		}
		id := frag.EID()
		base, seen := res.Elements[id]
		if !seen {
			res.Elements[id] = element.Clone(frag)
			continue
		}
		res.Conflicts = append(res.Conflicts, mergeInto(base, frag)...)
	}

	sort.Slice(res.Conflicts, func(i, j int) bool {
		a, b := res.Conflicts[i], res.Conflicts[j]
		if a.ID != b.ID {
			return a.ID.String() < b.ID.String()
		}
		return a.Field < b.Field
	})

	return res
}

// mergeInto folds fragment frag into the already-merged base in place.
func mergeInto(base element.Element, frag element.Element) []Conflict {
	switch b := base.(type) {
	case *element.ObjectType:
		f, ok := frag.(*element.ObjectType)
		if !ok {
			return []Conflict{kindConflict(base, frag)}
		}
		return mergeObjectTypes(b, f)
	case *element.Instance:
		f, ok := frag.(*element.Instance)
		if !ok {
			return []Conflict{kindConflict(base, frag)}
		}
		return mergeInstances(b, f)
	default:
		return nil
	}
}

func mergeObjectTypes(base, frag *element.ObjectType) []Conflict {
	var conflicts []Conflict

	for name, def := range frag.Fields {
		existing, ok := base.Fields[name]
		if !ok {
			if base.Fields == nil {
				base.Fields = make(map[string]element.FieldDef)
			}
			base.Fields[name] = def
			continue
		}
		if !element.FieldDefEqual(existing, def) {
			conflicts = append(conflicts, Conflict{
				ID:    base.ID,
				Field: name,
				A:     existing.Type.String(),
				B:     def.Type.String(),
				PathA: base.Path,
				PathB: frag.Path,
			})
		}
	}

	for name, v := range frag.Annotations {
		existing, ok := base.Annotations[name]
		if !ok {
			if base.Annotations == nil {
				base.Annotations = make(map[string]element.Value)
			}
			base.Annotations[name] = v
			continue
		}
		if !element.ValueEqual(existing, v) {
			conflicts = append(conflicts, Conflict{
				ID:    base.ID,
				Field: name,
				A:     fmt.Sprintf("%v", existing),
				B:     fmt.Sprintf("%v", v),
				PathA: base.Path,
				PathB: frag.Path,
			})
		}
	}

	return conflicts
}

func mergeInstances(base, frag *element.Instance) []Conflict {
	var conflicts []Conflict

	if !frag.Type.IsZero() && base.Type != frag.Type {
		if base.Type.IsZero() {
			base.Type = frag.Type
		} else {
			conflicts = append(conflicts, Conflict{
				ID:    base.ID,
				Field: "type",
				A:     base.Type.String(),
				B:     frag.Type.String(),
				PathA: base.Path,
				PathB: frag.Path,
			})
		}
	}

	for name, v := range frag.Values {
		existing, ok := base.Values[name]
		if !ok {
			if base.Values == nil {
				base.Values = make(map[string]element.Value)
			}
			base.Values[name] = v
			continue
		}
		if !element.ValueEqual(existing, v) {
			conflicts = append(conflicts, Conflict{
				ID:    base.ID,
				Field: name,
				A:     fmt.Sprintf("%v", existing),
				B:     fmt.Sprintf("%v", v),
				PathA: base.Path,
				PathB: frag.Path,
			})
		}
	}

	return conflicts
}

func kindConflict(a, b element.Element) Conflict {
	return Conflict{
		ID:    a.EID(),
		A:     kindName(a),
		B:     kindName(b),
		PathA: a.SourcePath(),
		PathB: b.SourcePath(),
	}
}

func kindName(e element.Element) string {
	switch e.(type) {
	case *element.ObjectType:
		return "object type"
	case *element.Instance:
		return "instance"
	default:
		return "unknown"
	}
}
