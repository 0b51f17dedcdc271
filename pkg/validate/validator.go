// Package validate checks a merged element set for semantic correctness:
// every type reference must resolve, merge conflicts fail the set, and
// adapters may contribute structural rules through the Rule hook.
// All problems found in one pass are reported together; the enclosing
// pipeline treats any non-empty result as fatal before side effects.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loom-cfg/loom/pkg/element"
	"github.com/loom-cfg/loom/pkg/merge"
)

// Error is a single semantic problem in the merged element set.
type Error struct {
	// ID is the element the problem was found on.
	ID element.ID

	// Field is the offending field, when the problem is field-scoped.
	Field string

	// Message describes the problem.
	Message string
}

func (e Error) String() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: field %q: %s", e.ID, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ID, e.Message)
}

// Errors aggregates every validation error from one pass into a single
// error value so callers report all of them, not just the first.
type Errors []Error

// Error implements the error interface by listing every message.
func (es Errors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.String()
	}
	return fmt.Sprintf("validation failed with %d error(s):\n  %s",
		len(es), strings.Join(msgs, "\n  "))
}

// AsError returns the aggregate as an error, or nil when the set is valid.
func (es Errors) AsError() error {
	if len(es) == 0 {
		return nil
	}
	return es
}

// Rule is the pluggable hook for adapter-specific structural checks.
// Rules run after the built-in checks and contribute to the same
// aggregated result.
type Rule func(set map[element.ID]element.Element) []Error

// Validate checks the merged set. conflicts are the merge pass's
// collected conflicts, surfaced here as errors so one run reports them
// alongside reference problems. The returned slice is sorted and empty
// exactly when the set is valid.
func Validate(set map[element.ID]element.Element, conflicts []merge.Conflict, rules ...Rule) Errors {
	var errs Errors

	for _, c := range conflicts {
		errs = append(errs, Error{ID: c.ID, Field: c.Field, Message: conflictMessage(c)})
	}

	for id, e := range set {
		switch el := e.(type) {
		case *element.ObjectType:
			errs = append(errs, checkObjectType(set, el)...)
		case *element.Instance:
			errs = append(errs, checkInstance(set, el)...)
		default:
			errs = append(errs, Error{ID: id, Message: "unknown element kind"})
		}
	}

	for _, rule := range rules {
		errs = append(errs, rule(set)...)
	}

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].ID != errs[j].ID {
			return errs[i].ID.String() < errs[j].ID.String()
		}
		if errs[i].Field != errs[j].Field {
			return errs[i].Field < errs[j].Field
		}
		return errs[i].Message < errs[j].Message
	})

	return errs
}

func checkObjectType(set map[element.ID]element.Element, t *element.ObjectType) []Error {
	var errs []Error
	for name, def := range t.Fields {
		if def.Type.IsZero() {
			errs = append(errs, Error{ID: t.ID, Field: name, Message: "field has no type"})
			continue
		}
		if def.Type.IsBuiltin() {
			if !isKnownBuiltin(def.Type) {
				errs = append(errs, Error{
					ID: t.ID, Field: name,
					Message: fmt.Sprintf("unknown builtin type %s", def.Type),
				})
			}
			continue
		}
		ref, ok := set[def.Type]
		if !ok {
			errs = append(errs, Error{
				ID: t.ID, Field: name,
				Message: fmt.Sprintf("type reference %s does not resolve", def.Type),
			})
			continue
		}
		if _, isType := ref.(*element.ObjectType); !isType {
			errs = append(errs, Error{
				ID: t.ID, Field: name,
				Message: fmt.Sprintf("type reference %s is not an object type", def.Type),
			})
		}
	}
	return errs
}

func checkInstance(set map[element.ID]element.Element, i *element.Instance) []Error {
	if i.Type.IsZero() {
		return []Error{{ID: i.ID, Message: "instance has no type reference"}}
	}
	ref, ok := set[i.Type]
	if !ok {
		return []Error{{
			ID:      i.ID,
			Message: fmt.Sprintf("instance type %s does not resolve", i.Type),
		}}
	}
	if _, isType := ref.(*element.ObjectType); !isType {
		return []Error{{
			ID:      i.ID,
			Message: fmt.Sprintf("instance type %s is not an object type", i.Type),
		}}
	}
	return nil
}

func conflictMessage(c merge.Conflict) string {
	if c.Field == "" {
		return fmt.Sprintf("conflicting fragment kinds: %s (%s) vs %s (%s)", c.A, c.PathA, c.B, c.PathB)
	}
	return fmt.Sprintf("conflicting definitions: %s (%s) vs %s (%s)", c.A, c.PathA, c.B, c.PathB)
}

func isKnownBuiltin(id element.ID) bool {
	switch id {
	case element.BuiltinString, element.BuiltinNumber, element.BuiltinBoolean, element.BuiltinUnknown:
		return true
	default:
		return false
	}
}
