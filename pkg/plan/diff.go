package plan

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/loom-cfg/loom/pkg/element"
)

// Build computes the plan transforming prior into desired.
//
// Elements present only in desired become adds, elements present in both
// with structurally different payloads become modifies (provenance is
// ignored), and elements present only in prior become removes. Dependency
// edges follow element references: for add/modify the referenced element
// commits first, for remove the referencing element is removed first.
// A dependency cycle is a fatal planning error; Build reports the cycle
// members instead of guessing an order.
func Build(prior, desired map[element.ID]element.Element) (*Plan, error) {
	p := &Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		byID:      make(map[element.ID]*Item),
	}

	for id, want := range desired {
		have, ok := prior[id]
		switch {
		case !ok:
			p.add(&Item{ID: id, Action: ActionAdd, After: want, Status: StatusPending})
		case !element.Equal(have, want):
			p.add(&Item{ID: id, Action: ActionModify, Before: have, After: want, Status: StatusPending})
		}
	}
	for id, have := range prior {
		if _, ok := desired[id]; !ok {
			p.add(&Item{ID: id, Action: ActionRemove, Before: have, Status: StatusPending})
		}
	}

	buildEdges(p)

	ordered, err := order(p)
	if err != nil {
		return nil, err
	}
	p.Items = ordered

	return p, nil
}

func (p *Plan) add(it *Item) {
	p.byID[it.ID] = it
	p.Items = append(p.Items, it)
	switch it.Action {
	case ActionAdd:
		p.Summary.Add++
	case ActionModify:
		p.Summary.Modify++
	case ActionRemove:
		p.Summary.Remove++
	}
}

// buildEdges populates each item's DependsOn from element references.
// Edges exist only between items that are both in the plan: a reference
// to an element that needs no change imposes no ordering.
func buildEdges(p *Plan) {
	for _, it := range p.byID {
		switch it.Action {
		case ActionAdd, ActionModify:
			for _, ref := range element.Refs(it.After) {
				if ref.IsBuiltin() {
					continue
				}
				dep, ok := p.byID[ref]
				if !ok || dep.Action == ActionRemove {
					continue
				}
				it.DependsOn = append(it.DependsOn, ref)
			}
		case ActionRemove:
			// Reverse order on deletion: this item references ref, so it
			// must be gone before ref can be removed.
			for _, ref := range element.Refs(it.Before) {
				if ref.IsBuiltin() {
					continue
				}
				dep, ok := p.byID[ref]
				if !ok || dep.Action != ActionRemove {
					continue
				}
				dep.DependsOn = append(dep.DependsOn, it.ID)
			}
		}
	}

	for _, it := range p.byID {
		sort.Slice(it.DependsOn, func(i, j int) bool {
			return it.DependsOn[i].String() < it.DependsOn[j].String()
		})
	}
}
