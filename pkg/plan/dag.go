package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/loom-cfg/loom/pkg/element"
)

// CycleError reports a dependency cycle among plan items. A cycle cannot
// be resolved without external intervention, so planning aborts instead
// of guessing an order.
type CycleError struct {
	// Members are the element IDs on the cycle, in walk order.
	Members []element.ID
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Members))
	for i, id := range e.Members {
		ids[i] = id.String()
	}
	return fmt.Sprintf("dependency cycle: %s", strings.Join(ids, " -> "))
}

// order topologically sorts the plan's items using Kahn's algorithm with
// level tracking. The ready set is processed in sorted ID order within
// each level so the same inputs always produce the same plan. Items left
// unprocessed form a cycle, reported via CycleError.
func order(p *Plan) ([]*Item, error) {
	inDegree := make(map[element.ID]int, len(p.byID))
	dependents := make(map[element.ID][]element.ID, len(p.byID))

	for id, it := range p.byID {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, dep := range it.DependsOn {
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var current []element.ID
	for id, deg := range inDegree {
		if deg == 0 {
			current = append(current, id)
		}
	}

	ordered := make([]*Item, 0, len(p.byID))
	level := 0
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool {
			return current[i].String() < current[j].String()
		})

		var next []element.ID
		for _, id := range current {
			it := p.byID[id]
			it.Level = level
			ordered = append(ordered, it)
			for _, dep := range dependents[id] {
				inDegree[dep]--
				if inDegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
		level++
	}

	if len(ordered) != len(p.byID) {
		return nil, &CycleError{Members: findCycle(p, inDegree)}
	}

	return ordered, nil
}

// findCycle walks the unprocessed remainder of the graph to surface one
// concrete cycle for the error message.
func findCycle(p *Plan, inDegree map[element.ID]int) []element.ID {
	remaining := make(map[element.ID]bool)
	for id, deg := range inDegree {
		if deg > 0 {
			remaining[id] = true
		}
	}

	var start element.ID
	for id := range remaining {
		if start.IsZero() || id.String() < start.String() {
			start = id
		}
	}

	// Follow DependsOn edges inside the remainder until a node repeats.
	seen := make(map[element.ID]int)
	var walk []element.ID
	cur := start
	for {
		if at, ok := seen[cur]; ok {
			return walk[at:]
		}
		seen[cur] = len(walk)
		walk = append(walk, cur)

		next := element.ID{}
		for _, dep := range p.byID[cur].DependsOn {
			if remaining[dep] {
				next = dep
				break
			}
		}
		if next.IsZero() {
			return walk
		}
		cur = next
	}
}
