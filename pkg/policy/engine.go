package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/loom-cfg/loom/pkg/element"
	"github.com/loom-cfg/loom/pkg/validate"
)

// Engine holds compiled policies and evaluates them per element.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates an engine preloaded with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy").Logger(),
	}
	for _, p := range BuiltinPolicies() {
		if err := e.compile(context.Background(), p); err != nil {
			return nil, fmt.Errorf("compiling built-in policy %s: %w", p.Name, err)
		}
	}
	return e, nil
}

// Add compiles and registers a policy, replacing any previous policy of
// the same name.
func (e *Engine) Add(ctx context.Context, p Policy) error {
	return e.compile(ctx, p)
}

// LoadPaths loads .rego policy files from files or directories and
// registers them.
func (e *Engine) LoadPaths(ctx context.Context, paths []string) error {
	policies, err := loadFromPaths(paths)
	if err != nil {
		return err
	}
	for _, p := range policies {
		if err := e.compile(ctx, p); err != nil {
			return fmt.Errorf("compiling policy %s: %w", p.Name, err)
		}
	}
	e.logger.Info().Int("count", len(policies)).Msg("policies loaded")
	return nil
}

// Policies returns the registered policies sorted by name.
func (e *Engine) Policies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		out = append(out, cp.policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEnabled toggles a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp, ok := e.policies[name]
	if !ok {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	return nil
}

// Evaluate runs every enabled policy against every element and returns
// the violations sorted by element, then policy.
func (e *Engine) Evaluate(ctx context.Context, set map[element.ID]element.Element) ([]Violation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var violations []Violation
	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}
		for id, el := range set {
			found, err := e.evalOne(ctx, cp, el)
			if err != nil {
				return nil, fmt.Errorf("evaluating policy %s on %s: %w", cp.policy.Name, id, err)
			}
			violations = append(violations, found...)
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].Element != violations[j].Element {
			return violations[i].Element.String() < violations[j].Element.String()
		}
		return violations[i].Policy < violations[j].Policy
	})
	return violations, nil
}

// Rule adapts the engine into a validation rule: blocking violations
// become validation errors, the rest are logged.
func (e *Engine) Rule() validate.Rule {
	return func(set map[element.ID]element.Element) []validate.Error {
		violations, err := e.Evaluate(context.Background(), set)
		if err != nil {
			return []validate.Error{{Message: "policy evaluation failed: " + err.Error()}}
		}

		var errs []validate.Error
		for _, v := range violations {
			if !v.Severity.Blocking() {
				e.logger.Warn().
					Str("policy", v.Policy).
					Str("element", v.Element.String()).
					Str("severity", string(v.Severity)).
					Msg(v.Message)
				continue
			}
			errs = append(errs, validate.Error{
				ID:      v.Element,
				Message: fmt.Sprintf("policy %s: %s", v.Policy, v.Message),
			})
		}
		return errs
	}
}

func (e *Engine) evalOne(ctx context.Context, cp *compiledPolicy, el element.Element) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(inputFor(el)))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			members, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, m := range members {
				violations = append(violations, violationFrom(cp.policy, el.EID(), m))
			}
		}
	}
	return violations, nil
}

// inputFor flattens an element into the document shape policies match
// against.
func inputFor(el element.Element) map[string]interface{} {
	input := map[string]interface{}{
		"id":      el.EID().String(),
		"adapter": el.EID().Adapter,
		"name":    el.EID().Name,
	}
	switch e := el.(type) {
	case *element.ObjectType:
		input["kind"] = "object_type"
		fields := make(map[string]interface{}, len(e.Fields))
		for name, f := range e.Fields {
			fields[name] = f.Type.String()
		}
		input["fields"] = fields
		input["annotations"] = map[string]element.Value(e.Annotations)
	case *element.Instance:
		input["kind"] = "instance"
		input["type"] = e.Type.String()
		input["values"] = map[string]element.Value(e.Values)
	}
	return input
}

func violationFrom(p Policy, id element.ID, member interface{}) Violation {
	v := Violation{Policy: p.Name, Element: id, Severity: p.Severity}
	switch m := member.(type) {
	case string:
		v.Message = m
	case map[string]interface{}:
		if msg, ok := m["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := m["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", member)
	}
	return v
}

func (e *Engine) compile(ctx context.Context, p Policy) error {
	pkg := packageName(p.Rego)
	if pkg == "" {
		return fmt.Errorf("policy %s declares no package", p.Name)
	}

	query, err := rego.New(
		rego.Module(p.Name+".rego", p.Rego),
		rego.Query("data."+pkg+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[p.Name] = &compiledPolicy{policy: p, query: query}
	e.mu.Unlock()

	e.logger.Debug().Str("policy", p.Name).Msg("policy compiled")
	return nil
}

func packageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "package "))
		}
	}
	return ""
}
