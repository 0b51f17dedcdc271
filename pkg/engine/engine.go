package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/loom-cfg/loom/pkg/adapter"
	"github.com/loom-cfg/loom/pkg/blueprint"
	"github.com/loom-cfg/loom/pkg/element"
	"github.com/loom-cfg/loom/pkg/merge"
	"github.com/loom-cfg/loom/pkg/plan"
	"github.com/loom-cfg/loom/pkg/state"
	"github.com/loom-cfg/loom/pkg/telemetry"
	"github.com/loom-cfg/loom/pkg/validate"
)

// ShouldApplyFunc reviews a computed plan and decides whether apply
// proceeds. It is the only cancellation point: once dispatching begins
// the run executes to completion.
type ShouldApplyFunc func(p *plan.Plan) bool

// OutputDocument is one file-shaped result of a discovery pass.
type OutputDocument struct {
	// Filename is the target name or path for the document.
	Filename string

	// Content is the document payload.
	Content []byte
}

// ConfigDocumentName is the filename of the adapter-configuration
// document a discovery pass emits for newly configured adapters.
const ConfigDocumentName = "adapter-configs.yaml"

// Options configures an Engine.
type Options struct {
	// Registry holds the adapter factories.
	Registry *adapter.Registry

	// Backend is the durable state layer.
	Backend state.Backend

	// Rules are extra validation rules (adapter-specific structure,
	// policy checks).
	Rules []validate.Rule

	// MaxParallel bounds concurrent adapter calls during apply.
	MaxParallel int

	// Logger is the structured logger; defaults to a nop logger.
	Logger zerolog.Logger

	// Metrics collects pipeline metrics; nil is a no-op.
	Metrics *telemetry.Metrics

	// Tracer traces pipeline operations; nil disables tracing.
	Tracer *telemetry.Tracer
}

// Engine exposes the boundary operations of the reconciliation core:
// Plan, Apply, Discover and state lookup. One Engine serves one tracked
// external system; concurrent operations against it must be serialized
// by the caller.
type Engine struct {
	registry *adapter.Registry
	backend  state.Backend
	rules    []validate.Rule
	applier  *Applier
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("adapter registry is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("state backend is required")
	}

	tracer := opts.Tracer
	if tracer == nil {
		var err error
		tracer, err = telemetry.NewTracer(telemetry.TracingConfig{}, "loom", "dev")
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		registry: opts.Registry,
		backend:  opts.Backend,
		rules:    opts.Rules,
		applier:  NewApplier(opts.Registry, opts.MaxParallel, opts.Logger),
		logger:   opts.Logger.With().Str("component", "engine").Logger(),
		metrics:  opts.Metrics,
		tracer:   tracer,
	}, nil
}

// Plan computes the change plan for the given blueprints without
// applying anything. Read-only: state is loaded but never mutated.
func (e *Engine) Plan(ctx context.Context, blueprints []blueprint.Blueprint) (*plan.Plan, error) {
	ctx, span := e.tracer.Start(ctx, "engine.plan")
	defer span.End()

	desired, err := e.desired(ctx, blueprints)
	if err != nil {
		return nil, err
	}

	var p *plan.Plan
	err = state.Scoped(ctx, e.backend, func(st *state.Store) error {
		prior, err := st.Get(ctx)
		if err != nil {
			return NewStateError("reading prior state", err)
		}
		p, err = plan.Build(prior, desired)
		if err != nil {
			return NewPlanningError("cannot order plan", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.PlanComputed(p.Summary.Add, p.Summary.Modify, p.Summary.Remove)
	e.logger.Info().
		Str("plan_id", p.ID).
		Int("add", p.Summary.Add).
		Int("modify", p.Summary.Modify).
		Int("remove", p.Summary.Remove).
		Msg("plan computed")

	return p, nil
}

// Apply computes a plan and executes it through the registered
// adapters. fill supplies configuration for adapters that need it,
// shouldApply reviews the plan before anything is dispatched, and force
// bypasses that gate entirely. The computed plan is returned whether or
// not it was applied; every committed item is mirrored into the state
// store before its dependents dispatch, and the store is flushed on
// every exit path.
func (e *Engine) Apply(
	ctx context.Context,
	blueprints []blueprint.Blueprint,
	fill adapter.FillConfigFunc,
	shouldApply ShouldApplyFunc,
	onProgress ProgressFunc,
	force bool,
) (*plan.Plan, error) {
	ctx, span := e.tracer.Start(ctx, "engine.apply", attribute.Bool("force", force))
	defer span.End()

	if err := e.initAdapters(ctx, blueprints, fill); err != nil {
		return nil, err
	}

	desired, err := e.desired(ctx, blueprints)
	if err != nil {
		return nil, err
	}

	var p *plan.Plan
	err = state.Scoped(ctx, e.backend, func(st *state.Store) error {
		prior, err := st.Get(ctx)
		if err != nil {
			return NewStateError("reading prior state", err)
		}
		p, err = plan.Build(prior, desired)
		if err != nil {
			return NewPlanningError("cannot order plan", err)
		}
		e.metrics.PlanComputed(p.Summary.Add, p.Summary.Modify, p.Summary.Remove)

		if p.Empty() {
			e.logger.Info().Msg("nothing to apply")
			return nil
		}
		if !force && shouldApply != nil && !shouldApply(p) {
			e.logger.Info().Str("plan_id", p.ID).Msg("apply declined")
			return nil
		}

		start := time.Now()
		result, err := e.applier.Run(ctx, p, onProgress, commitTo(st, e.metrics))
		if err != nil {
			return err
		}
		e.metrics.ObserveApplyDuration(time.Since(start))

		e.logger.Info().
			Str("plan_id", p.ID).
			Int("committed", len(result.Committed)).
			Int("failed", len(result.Failed)).
			Int("blocked", len(result.Blocked)).
			Msg("apply finished")

		return result.Err()
	})

	return p, err
}

// commitTo mirrors a committed item into the state store.
func commitTo(st *state.Store, metrics *telemetry.Metrics) CommitFunc {
	return func(ctx context.Context, it *plan.Item) error {
		var err error
		switch it.Action {
		case plan.ActionAdd, plan.ActionModify:
			err = st.Update(ctx, it.After)
		case plan.ActionRemove:
			err = st.Remove(ctx, it.ID)
		}
		if err == nil {
			metrics.ItemApplied(string(it.Action), "committed")
		}
		return err
	}
}

// Discover asks every adapter for its live element set, validates the
// merged result and overrides state with it. It returns output
// documents: newly filled adapter configurations first, then the
// discovered elements grouped by their original source grouping, or by
// owning-adapter namespace when ungrouped.
func (e *Engine) Discover(
	ctx context.Context,
	blueprints []blueprint.Blueprint,
	fill adapter.FillConfigFunc,
) ([]OutputDocument, error) {
	ctx, span := e.tracer.Start(ctx, "engine.discover")
	defer span.End()

	newConfigs, err := e.initAdaptersCollect(ctx, blueprints, fill)
	if err != nil {
		return nil, err
	}

	elems, err := discoverAll(ctx, e.registry.All())
	if err != nil {
		return nil, err
	}

	merged := merge.Merge(elems)
	if errs := validate.Validate(merged.Elements, merged.Conflicts, e.rules...); len(errs) > 0 {
		e.metrics.ValidationFailed()
		return nil, NewValidationError("discovered elements are invalid", errs.AsError())
	}

	canonical := make([]element.Element, 0, len(merged.Elements))
	for _, el := range merged.Elements {
		canonical = append(canonical, el)
	}

	err = state.Scoped(ctx, e.backend, func(st *state.Store) error {
		st.Override(canonical)
		return nil
	})
	if err != nil {
		return nil, NewStateError("overriding state after discovery", err)
	}

	e.metrics.DiscoverCompleted(len(canonical))
	e.logger.Info().Int("elements", len(canonical)).Msg("discovery complete")

	return buildOutputDocuments(newConfigs, canonical)
}

// LookupStateType resolves an object type from persisted state. Record
// tooling (import/export) depends on types a discovery pass stored;
// asking for an absent one is fatal with a remediation hint and makes
// no adapter calls.
func (e *Engine) LookupStateType(ctx context.Context, id element.ID) (*element.ObjectType, error) {
	var typ *element.ObjectType
	err := state.Scoped(ctx, e.backend, func(st *state.Store) error {
		set, err := st.Get(ctx)
		if err != nil {
			return NewStateError("reading state", err)
		}
		el, ok := set[id]
		if !ok {
			return NewLookupError(id)
		}
		typ, ok = el.(*element.ObjectType)
		if !ok {
			return NewLookupError(id).WithHint("element exists but is not a type")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return typ, nil
}

// desired merges and validates the blueprints into the canonical
// desired element set. Any validation error is fatal before side
// effects.
func (e *Engine) desired(ctx context.Context, blueprints []blueprint.Blueprint) (map[element.ID]element.Element, error) {
	_, span := e.tracer.Start(ctx, "engine.merge_validate")
	defer span.End()

	merged := merge.Merge(blueprint.Flatten(blueprints))
	if errs := validate.Validate(merged.Elements, merged.Conflicts, e.rules...); len(errs) > 0 {
		e.metrics.ValidationFailed()
		return nil, NewValidationError("blueprints are invalid", errs.AsError())
	}
	return merged.Elements, nil
}

// initAdapters constructs adapters, seeding configurations found in the
// blueprints so fill is only consulted for genuinely new adapters.
func (e *Engine) initAdapters(ctx context.Context, blueprints []blueprint.Blueprint, fill adapter.FillConfigFunc) error {
	_, err := e.initAdaptersCollect(ctx, blueprints, fill)
	return err
}

func (e *Engine) initAdaptersCollect(ctx context.Context, blueprints []blueprint.Blueprint, fill adapter.FillConfigFunc) ([]*element.Instance, error) {
	e.seedConfigs(blueprints)
	filled, err := e.registry.Initialize(ctx, fill)
	if err != nil {
		return nil, NewAdapterError("initializing adapters", err)
	}
	return filled, nil
}

// seedConfigs forwards adapter-configuration instances present in the
// blueprints to the registry.
func (e *Engine) seedConfigs(blueprints []blueprint.Blueprint) {
	for _, bp := range blueprints {
		for _, el := range bp.Elements {
			inst, ok := el.(*element.Instance)
			if !ok || inst.Type.IsZero() {
				continue
			}
			if inst.Type.Name == "config" {
				e.registry.SetConfig(inst.Type.Adapter, inst)
			}
		}
	}
}

// buildOutputDocuments renders discovery results: one document for new
// adapter configurations (when any), then one per source grouping.
func buildOutputDocuments(configs []*element.Instance, elems []element.Element) ([]OutputDocument, error) {
	var docs []OutputDocument

	if len(configs) > 0 {
		configElems := make([]element.Element, len(configs))
		for i, c := range configs {
			configElems[i] = c
		}
		content, err := blueprint.Encode(configElems)
		if err != nil {
			return nil, fmt.Errorf("encoding adapter configurations: %w", err)
		}
		docs = append(docs, OutputDocument{Filename: ConfigDocumentName, Content: content})
	}

	groups := make(map[string][]element.Element)
	for _, el := range elems {
		name := el.SourcePath()
		if name == "" {
			name = el.EID().Adapter + ".yaml"
		}
		groups[name] = append(groups[name], el)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		group := groups[name]
		sort.Slice(group, func(i, j int) bool {
			return group[i].EID().String() < group[j].EID().String()
		})
		content, err := blueprint.Encode(group)
		if err != nil {
			return nil, fmt.Errorf("encoding discovered elements for %s: %w", name, err)
		}
		docs = append(docs, OutputDocument{Filename: name, Content: content})
	}

	return docs, nil
}
