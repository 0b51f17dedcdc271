package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/loom-cfg/loom/pkg/adapter"
	"github.com/loom-cfg/loom/pkg/element"
)

// discoverAll asks every adapter for its complete live element set,
// concurrently, and waits for all of them. Discovery never reads prior
// state; the caller merges, validates and overrides.
func discoverAll(ctx context.Context, adapters []adapter.Adapter) ([]element.Element, error) {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	var all []element.Element

	for _, ad := range adapters {
		g.Go(func() error {
			elems, err := ad.Discover(ctx)
			if err != nil {
				return NewAdapterError("discovery failed for namespace "+ad.Namespace(), err)
			}
			mu.Lock()
			all = append(all, elems...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return all, nil
}
