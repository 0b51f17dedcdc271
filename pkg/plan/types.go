// Package plan computes the ordered set of change actions that transform
// a prior element set into a desired one, and carries the dependency
// graph the apply orchestrator executes.
package plan

import (
	"time"

	"github.com/loom-cfg/loom/pkg/element"
)

// Action is the kind of change a plan item performs.
type Action string

const (
	// ActionAdd creates an element that is not in prior state.
	ActionAdd Action = "add"

	// ActionModify replaces an element whose payload differs from prior
	// state.
	ActionModify Action = "modify"

	// ActionRemove deletes an element absent from the desired set.
	ActionRemove Action = "remove"
)

// Status is the execution state of a plan item. Items start Pending,
// become Dispatched when handed to an adapter, and end Committed or
// Failed. Dependents of a failed item end Blocked and are never
// dispatched.
type Status string

const (
	StatusPending    Status = "pending"
	StatusDispatched Status = "dispatched"
	StatusCommitted  Status = "committed"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// IsTerminal reports whether the status is final for this run.
func (s Status) IsTerminal() bool {
	return s == StatusCommitted || s == StatusFailed || s == StatusBlocked
}

// Item is one change action in a plan.
type Item struct {
	// ID is the affected element's identifier; unique within the plan.
	ID element.ID

	// Action is the change kind.
	Action Action

	// Before is the prior-state element. Nil for add.
	Before element.Element

	// After is the desired element. Nil for remove.
	After element.Element

	// DependsOn lists the plan items (by element ID) whose action must
	// commit before this item may be dispatched.
	DependsOn []element.ID

	// Level is the item's topological level; items sharing a level have
	// no ordering constraint between them.
	Level int

	// Status is the execution state, owned by the apply orchestrator.
	Status Status
}

// Summary counts plan items per action.
type Summary struct {
	Add    int `json:"add"`
	Modify int `json:"modify"`
	Remove int `json:"remove"`
}

// Total returns the number of items in the plan.
func (s Summary) Total() int { return s.Add + s.Modify + s.Remove }

// Plan is an ordered sequence of items. Items appear in a topological
// order consistent with their dependency edges; executing them in order
// (or concurrently within levels) transforms the prior element set into
// the desired one.
type Plan struct {
	// ID identifies this plan for logging and result reporting.
	ID string

	// CreatedAt is when the plan was computed.
	CreatedAt time.Time

	// Items in dependency-consistent order.
	Items []*Item

	// Summary counts items per action.
	Summary Summary

	byID map[element.ID]*Item
}

// Empty reports whether the plan contains no items (prior already equals
// desired).
func (p *Plan) Empty() bool { return len(p.Items) == 0 }

// Item returns the plan item for an element ID, or nil.
func (p *Plan) Item(id element.ID) *Item { return p.byID[id] }

// Depth returns the number of topological levels.
func (p *Plan) Depth() int {
	if len(p.Items) == 0 {
		return 0
	}
	return p.Items[len(p.Items)-1].Level + 1
}
