package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/loom-cfg/loom/pkg/adapter"
	"github.com/loom-cfg/loom/pkg/element"
	"github.com/loom-cfg/loom/pkg/plan"
)

// ProgressFunc observes each item that an adapter successfully applied.
// It runs before the item's commit and never blocks dependents for long;
// front ends use it for progress reporting.
type ProgressFunc func(item *plan.Item)

// CommitFunc records a successfully applied item into the state store.
// It runs strictly after the adapter call succeeds and strictly before
// any dependent item is dispatched.
type CommitFunc func(ctx context.Context, item *plan.Item) error

// Result reports the outcome of one apply run.
type Result struct {
	// PlanID identifies the executed plan.
	PlanID string

	// Committed lists items that were applied and committed, sorted.
	Committed []element.ID

	// Failed maps each failed item to its error.
	Failed map[element.ID]error

	// Blocked lists items never dispatched because a transitive
	// dependency failed, sorted.
	Blocked []element.ID
}

// Succeeded reports whether every item committed.
func (r *Result) Succeeded() bool {
	return len(r.Failed) == 0 && len(r.Blocked) == 0
}

// Err returns an aggregate error describing failures and blocked items,
// or nil on full success.
func (r *Result) Err() error {
	if r.Succeeded() {
		return nil
	}
	failed := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		failed = append(failed, id.String())
	}
	sort.Strings(failed)
	return NewAdapterError(
		fmt.Sprintf("apply incomplete: %d item(s) failed (%v), %d blocked",
			len(r.Failed), failed, len(r.Blocked)), nil)
}

// Applier executes a plan against registered adapters. Independent
// subgraphs run concurrently on a bounded worker pool; items joined by
// a dependency edge run strictly in order. A failed item stops only its
// own dependents; everything else runs to completion. There is no
// mid-apply cancellation and no automatic retry.
type Applier struct {
	registry    *adapter.Registry
	maxParallel int
	logger      zerolog.Logger
}

// NewApplier creates an applier dispatching through registry with at
// most maxParallel concurrent adapter calls.
func NewApplier(registry *adapter.Registry, maxParallel int, logger zerolog.Logger) *Applier {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &Applier{
		registry:    registry,
		maxParallel: maxParallel,
		logger:      logger.With().Str("component", "applier").Logger(),
	}
}

// Run executes the plan. Every item's namespace must resolve to an
// adapter before anything is dispatched; an unregistered namespace
// aborts the run with no side effects.
func (a *Applier) Run(ctx context.Context, p *plan.Plan, onProgress ProgressFunc, onCommit CommitFunc) (*Result, error) {
	if onCommit == nil {
		return nil, fmt.Errorf("onCommit is required")
	}

	// Resolve all adapters up front: dispatching half a plan and then
	// discovering an unowned namespace would leave state inconsistent.
	adapters := make(map[string]adapter.Adapter, len(p.Items))
	for _, it := range p.Items {
		if _, ok := adapters[it.ID.Adapter]; ok {
			continue
		}
		ad, err := a.registry.Lookup(it.ID.Adapter)
		if err != nil {
			return nil, NewAdapterError("cannot apply plan", err).WithElement(it.ID)
		}
		adapters[it.ID.Adapter] = ad
	}

	run := &applyRun{
		applier:    a,
		plan:       p,
		adapters:   adapters,
		onProgress: onProgress,
		onCommit:   onCommit,
		inDegree:   make(map[element.ID]int, len(p.Items)),
		dependents: make(map[element.ID][]element.ID, len(p.Items)),
		remaining:  len(p.Items),
		ready:      make(chan *plan.Item, len(p.Items)),
		result: &Result{
			PlanID: p.ID,
			Failed: make(map[element.ID]error),
		},
	}
	run.execute(ctx)

	sort.Slice(run.result.Committed, func(i, j int) bool {
		return run.result.Committed[i].String() < run.result.Committed[j].String()
	})
	sort.Slice(run.result.Blocked, func(i, j int) bool {
		return run.result.Blocked[i].String() < run.result.Blocked[j].String()
	})

	return run.result, nil
}

// applyRun is the mutable state of one Run invocation.
type applyRun struct {
	applier    *Applier
	plan       *plan.Plan
	adapters   map[string]adapter.Adapter
	onProgress ProgressFunc
	onCommit   CommitFunc

	mu         sync.Mutex
	inDegree   map[element.ID]int
	dependents map[element.ID][]element.ID
	remaining  int
	result     *Result

	ready chan *plan.Item
}

func (r *applyRun) execute(ctx context.Context) {
	if len(r.plan.Items) == 0 {
		return
	}

	r.mu.Lock()
	for _, it := range r.plan.Items {
		r.inDegree[it.ID] = len(it.DependsOn)
		for _, dep := range it.DependsOn {
			r.dependents[dep] = append(r.dependents[dep], it.ID)
		}
	}
	for _, it := range r.plan.Items {
		if r.inDegree[it.ID] == 0 {
			r.ready <- it
		}
	}
	r.mu.Unlock()

	workers := r.applier.maxParallel
	if len(r.plan.Items) < workers {
		workers = len(r.plan.Items)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range r.ready {
				r.runItem(ctx, it)
			}
		}()
	}
	wg.Wait()
}

// runItem dispatches one item whose predecessors are all committed.
func (r *applyRun) runItem(ctx context.Context, it *plan.Item) {
	it.Status = plan.StatusDispatched

	log := r.applier.logger.With().
		Str("element", it.ID.String()).
		Str("action", string(it.Action)).
		Logger()
	log.Debug().Msg("dispatching plan item")

	ad := r.adapters[it.ID.Adapter]
	if err := ad.Apply(ctx, changeFor(it)); err != nil {
		log.Error().Err(err).Msg("plan item failed")
		r.complete(it, NewAdapterError("adapter call failed", err).WithElement(it.ID))
		return
	}

	if r.onProgress != nil {
		r.onProgress(it)
	}
	if err := r.onCommit(ctx, it); err != nil {
		// Applied but not recorded: treat as failure so dependents do
		// not build on unrecorded state.
		log.Error().Err(err).Msg("plan item commit failed")
		r.complete(it, NewStateError("committing applied item", err).WithElement(it.ID))
		return
	}

	log.Info().Msg("plan item committed")
	r.complete(it, nil)
}

// complete finalizes one item and releases or blocks its dependents.
func (r *applyRun) complete(it *plan.Item, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		it.Status = plan.StatusFailed
		r.result.Failed[it.ID] = err
		r.remaining--
		r.blockDependentsLocked(it.ID)
	} else {
		it.Status = plan.StatusCommitted
		r.result.Committed = append(r.result.Committed, it.ID)
		r.remaining--
		for _, depID := range r.dependents[it.ID] {
			dep := r.plan.Item(depID)
			if dep.Status != plan.StatusPending {
				continue
			}
			r.inDegree[depID]--
			if r.inDegree[depID] == 0 {
				r.ready <- dep
			}
		}
	}

	if r.remaining == 0 {
		close(r.ready)
	}
}

// blockDependentsLocked marks the transitive dependents of a failed or
// blocked item as blocked. Callers hold r.mu.
func (r *applyRun) blockDependentsLocked(id element.ID) {
	for _, depID := range r.dependents[id] {
		dep := r.plan.Item(depID)
		if dep.Status != plan.StatusPending {
			continue
		}
		dep.Status = plan.StatusBlocked
		r.result.Blocked = append(r.result.Blocked, depID)
		r.remaining--
		r.blockDependentsLocked(depID)
	}
}

// changeFor maps a plan item to the adapter change. An action outside
// the closed set is a programming error, not a recoverable condition.
func changeFor(it *plan.Item) adapter.Change {
	switch it.Action {
	case plan.ActionAdd, plan.ActionModify, plan.ActionRemove:
		return adapter.Change{Action: it.Action, Before: it.Before, After: it.After}
	default:
		panic(fmt.Sprintf("unsupported plan action %q", it.Action))
	}
}
