package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loom-cfg/loom/pkg/element"
)

// Registry holds adapter factories and the adapters built from them,
// keyed by namespace. Lookup for a namespace nobody registered is a
// fatal error, never a silent skip: dispatching an action with no owner
// would desynchronize state from reality.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	adapters  map[string]Adapter
	configs   map[string]*element.Instance
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		adapters:  make(map[string]Adapter),
		configs:   make(map[string]*element.Instance),
	}
}

// Register adds a factory. Registering the same namespace twice is a
// programming error.
func (r *Registry) Register(f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ns := f.Namespace()
	if ns == "" {
		return fmt.Errorf("adapter factory has empty namespace")
	}
	if _, exists := r.factories[ns]; exists {
		return fmt.Errorf("adapter namespace %q registered twice", ns)
	}
	r.factories[ns] = f
	return nil
}

// SetConfig seeds a previously known configuration instance for a
// namespace, so Initialize does not need to call fill for it.
func (r *Registry) SetConfig(namespace string, config *element.Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[namespace] = config
}

// Initialize constructs an adapter from every registered factory.
// Factories whose configuration is not yet known get it from fill; the
// instances fill produced are returned so the caller can persist them
// (discover emits them as an output document). Namespaces are processed
// in sorted order so fill prompts arrive deterministically.
func (r *Registry) Initialize(ctx context.Context, fill FillConfigFunc) ([]*element.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	namespaces := make([]string, 0, len(r.factories))
	for ns := range r.factories {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var filled []*element.Instance
	for _, ns := range namespaces {
		if _, built := r.adapters[ns]; built {
			continue
		}
		f := r.factories[ns]

		config := r.configs[ns]
		if config == nil && f.ConfigType() != nil {
			if fill == nil {
				return nil, fmt.Errorf("adapter %q requires configuration but no fill callback was supplied", ns)
			}
			var err error
			config, err = fill(ctx, f.ConfigType())
			if err != nil {
				return nil, fmt.Errorf("filling configuration for adapter %q: %w", ns, err)
			}
			r.configs[ns] = config
			filled = append(filled, config)
		}

		a, err := f.New(ctx, config)
		if err != nil {
			return nil, fmt.Errorf("constructing adapter %q: %w", ns, err)
		}
		r.adapters[ns] = a
	}

	return filled, nil
}

// Lookup resolves the adapter owning a namespace.
func (r *Registry) Lookup(namespace string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[namespace]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for namespace %q", namespace)
	}
	return a, nil
}

// All returns every initialized adapter in sorted namespace order.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	namespaces := make([]string, 0, len(r.adapters))
	for ns := range r.adapters {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	out := make([]Adapter, 0, len(namespaces))
	for _, ns := range namespaces {
		out = append(out, r.adapters[ns])
	}
	return out
}
