// Package engine wires the reconciliation pipeline together: it merges
// and validates blueprints, diffs them against persisted state, applies
// the resulting plan through registered adapters, and resynchronizes
// state from live discovery.
package engine

import (
	"errors"
	"fmt"

	"github.com/loom-cfg/loom/pkg/element"
)

// ErrorKind classifies a pipeline error for propagation policy.
type ErrorKind string

const (
	// KindValidation is a semantic problem in the merged element set.
	// Always aggregated, always fatal before any side effect.
	KindValidation ErrorKind = "validation"

	// KindPlanning is an unresolvable ordering, e.g. a dependency cycle.
	// Fatal before any adapter call.
	KindPlanning ErrorKind = "planning"

	// KindAdapter is the failure of a single apply or discover call.
	// Contained to the affected plan item and its dependents.
	KindAdapter ErrorKind = "adapter"

	// KindState is an inability to read or flush the durable snapshot.
	KindState ErrorKind = "state"

	// KindLookup is a reference to an element identifier absent from
	// state. Carries a remediation hint for the caller.
	KindLookup ErrorKind = "lookup"
)

// Error is a classified pipeline error.
type Error struct {
	// Kind is the error classification.
	Kind ErrorKind

	// Message is the human-readable error message.
	Message string

	// Element is the element the error relates to, when applicable.
	Element element.ID

	// Hint is a user-directed remediation hint, when one exists.
	Hint string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if !e.Element.IsZero() {
		msg = fmt.Sprintf("[%s] %s (element=%s)", e.Kind, e.Message, e.Element)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Hint != "" {
		msg = msg + " (" + e.Hint + ")"
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// WithElement adds element context to the error.
func (e *Error) WithElement(id element.ID) *Error {
	e.Element = id
	return e
}

// WithHint adds a remediation hint.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// NewValidationError creates a validation-kind error.
func NewValidationError(message string, err error) *Error {
	return &Error{Kind: KindValidation, Message: message, Err: err}
}

// NewPlanningError creates a planning-kind error.
func NewPlanningError(message string, err error) *Error {
	return &Error{Kind: KindPlanning, Message: message, Err: err}
}

// NewAdapterError creates an adapter-kind error.
func NewAdapterError(message string, err error) *Error {
	return &Error{Kind: KindAdapter, Message: message, Err: err}
}

// NewStateError creates a state-kind error.
func NewStateError(message string, err error) *Error {
	return &Error{Kind: KindState, Message: message, Err: err}
}

// NewLookupError creates a lookup-kind error with the standard
// remediation hint.
func NewLookupError(id element.ID) *Error {
	return &Error{
		Kind:    KindLookup,
		Message: "element not found in state",
		Element: id,
		Hint:    "run a discover pass first to populate state",
	}
}

// IsKind reports whether err is an engine Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsKind(err, KindValidation) }

// IsPlanning reports whether err is a planning error.
func IsPlanning(err error) bool { return IsKind(err, KindPlanning) }

// IsLookup reports whether err is a lookup error.
func IsLookup(err error) bool { return IsKind(err, KindLookup) }
