// Package adapter defines the contract every backend executor satisfies
// and the registry the orchestrators resolve adapters through. Concrete
// adapters (the clients that talk to real external services) live
// outside the core; the core only dispatches single actions to them and
// asks them for their live element set.
package adapter

import (
	"context"

	"github.com/loom-cfg/loom/pkg/element"
	"github.com/loom-cfg/loom/pkg/plan"
)

// Change is one action handed to an adapter. Before is nil for add,
// After is nil for remove.
type Change struct {
	Action plan.Action
	Before element.Element
	After  element.Element
}

// Adapter applies single actions to, and discovers elements from, one
// external system namespace. An Apply call succeeds or fails as a whole;
// there is no partial per-call success.
type Adapter interface {
	// Namespace returns the element namespace this adapter owns.
	Namespace() string

	// Discover returns the adapter's complete live element set.
	Discover(ctx context.Context) ([]element.Element, error)

	// Apply executes one change against the external system.
	Apply(ctx context.Context, change Change) error
}

// FillConfigFunc supplies adapter configuration given the adapter's
// configuration-type descriptor. The front end decides how the values
// are obtained (file, prompt, environment); the core only requires that
// the returned instance matches the descriptor's type.
type FillConfigFunc func(ctx context.Context, configType *element.ObjectType) (*element.Instance, error)

// Factory constructs an adapter for one namespace.
type Factory interface {
	// Namespace returns the namespace the constructed adapter will own.
	Namespace() string

	// ConfigType describes the configuration the factory needs. Nil
	// when the adapter needs no configuration.
	ConfigType() *element.ObjectType

	// New constructs the adapter. config is nil when ConfigType is nil.
	New(ctx context.Context, config *element.Instance) (Adapter, error)
}
