// SPDX-License-Identifier: Apache-2.0

// Package explore implements the Explorer (C7): a priority-ordered worklist
// over live contexts, plus statement/branch coverage tracking (§4.4).
package explore

import (
	"stflow/ir"
	"stflow/state"
)

// Heuristic selects the worklist's pop order (§6.2 exploration_heuristic).
type Heuristic int

const (
	// DepthFirst pops the most recently pushed context first (a stack).
	DepthFirst Heuristic = iota
	// BreadthFirst pops the earliest pushed context first (a queue).
	BreadthFirst
)

// Worklist is a priority-ordered collection of live contexts.
type Worklist struct {
	heuristic Heuristic
	items     []*state.Context
}

// New builds an empty Worklist ordered by heuristic.
func New(heuristic Heuristic) *Worklist {
	return &Worklist{heuristic: heuristic}
}

// Push adds contexts to the worklist.
func (w *Worklist) Push(contexts ...*state.Context) {
	w.items = append(w.items, contexts...)
}

// Pop removes and returns the next context to explore, in the order
// heuristic dictates. ok is false when the worklist is empty.
func (w *Worklist) Pop() (*state.Context, bool) {
	if len(w.items) == 0 {
		return nil, false
	}
	switch w.heuristic {
	case DepthFirst:
		last := len(w.items) - 1
		ctx := w.items[last]
		w.items = w.items[:last]
		return ctx, true
	default:
		ctx := w.items[0]
		w.items = w.items[1:]
		return ctx, true
	}
}

// Len reports the number of live contexts still queued.
func (w *Worklist) Len() int { return len(w.items) }

// Location identifies a single covered vertex.
type Location struct {
	Graph  string
	Vertex ir.Label
}

// Coverage tracks which vertices (statement coverage) and which branch
// targets (branch coverage) have been reached at least once.
type Coverage struct {
	statements map[Location]bool
	branches   map[Location]bool
}

// NewCoverage builds an empty Coverage tracker.
func NewCoverage() *Coverage {
	return &Coverage{statements: make(map[Location]bool), branches: make(map[Location]bool)}
}

// VisitStatement records that a vertex was reached, returning true if this
// is the first time (a "newly covered" signal, §4.4).
func (c *Coverage) VisitStatement(graph string, vertex ir.Label) bool {
	loc := Location{Graph: graph, Vertex: vertex}
	if c.statements[loc] {
		return false
	}
	c.statements[loc] = true
	return true
}

// VisitBranch records that a specific branch target was taken, returning
// true if this is the first time.
func (c *Coverage) VisitBranch(graph string, target ir.Label) bool {
	loc := Location{Graph: graph, Vertex: target}
	if c.branches[loc] {
		return false
	}
	c.branches[loc] = true
	return true
}

// StatementCount reports how many distinct vertices have been covered.
func (c *Coverage) StatementCount() int { return len(c.statements) }

// BranchCount reports how many distinct branch targets have been covered.
func (c *Coverage) BranchCount() int { return len(c.branches) }

// Ratio computes covered/total, used by the Engine's coverage-based
// termination criterion (§6.2 "terminate within epsilon of full coverage").
func Ratio(covered, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(covered) / float64(total)
}
