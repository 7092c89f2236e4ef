// SPDX-License-Identifier: Apache-2.0

// Package merge implements the Merger (C8): merge-point buffering and the
// ϕ-selection operation that recombines two forked contexts back into one
// (§4.5). Buffering is keyed by (scope, return-label, vertex-label) so that
// contexts returning from different call depths or different graphs never
// merge with each other by accident.
package merge

import (
	"stflow/diagnostic"
	"stflow/smt"
	"stflow/state"
)

// Policy selects when buffered contexts at a merge point are flushed
// (§6.2 merge_strategy).
type Policy int

const (
	// AtAllJoinPoints merges as soon as two contexts reach the same key,
	// giving the smallest number of live contexts at the cost of more
	// frequent ϕ-term growth.
	AtAllJoinPoints Policy = iota
	// OnlyAtCycleEnd defers every merge until the end of the current cycle,
	// trading a larger live context set for fewer, coarser merges.
	OnlyAtCycleEnd
)

// Key identifies a merge point: the scope a context is executing within,
// the label its current frame will return to, and the vertex at which
// contexts are being buffered for merge.
type Key struct {
	Scope       string
	ReturnLabel int
	Vertex      int
}

// KeyFor derives a context's current merge key.
func KeyFor(ctx *state.Context) Key {
	frame := ctx.CurrentFrame()
	return Key{Scope: frame.ScopePrefix, ReturnLabel: int(frame.ReturnLabel), Vertex: int(ctx.State.Vertex)}
}

// Merger buffers contexts by merge key and flushes them per Policy.
type Merger struct {
	Facade  *smt.Facade
	Policy  Policy
	buffers map[Key][]*state.Context
}

// New builds an empty Merger.
func New(facade *smt.Facade, policy Policy) *Merger {
	return &Merger{Facade: facade, Policy: policy, buffers: make(map[Key][]*state.Context)}
}

// Offer buffers ctx at its merge key. Under AtAllJoinPoints, Offer merges
// and drains the buffer as soon as it holds two or more contexts, returning
// the merged result (or results, if buffering held more than two already).
// Under OnlyAtCycleEnd, Offer always buffers and returns nil; call Flush at
// the end of the cycle to merge everything at once.
func (m *Merger) Offer(ctx *state.Context) ([]*state.Context, error) {
	key := KeyFor(ctx)
	m.buffers[key] = append(m.buffers[key], ctx)
	if m.Policy != AtAllJoinPoints {
		return nil, nil
	}
	if len(m.buffers[key]) < 2 {
		return nil, nil
	}
	merged, err := m.mergeAll(m.buffers[key])
	if err != nil {
		return nil, err
	}
	delete(m.buffers, key)
	return []*state.Context{merged}, nil
}

// Flush merges every buffered key's contexts and clears the buffer,
// returning one merged (or singleton, if only one context ever reached that
// key) context per key. Used at the end of a cycle under OnlyAtCycleEnd, and
// by the Engine to drain any residual starved buffers (§4.5 "Starvation").
func (m *Merger) Flush() ([]*state.Context, error) {
	var out []*state.Context
	for key, contexts := range m.buffers {
		merged, err := m.mergeAll(contexts)
		if err != nil {
			return nil, err
		}
		out = append(out, merged)
		delete(m.buffers, key)
	}
	return out, nil
}

func (m *Merger) mergeAll(contexts []*state.Context) (*state.Context, error) {
	acc := contexts[0]
	for _, c := range contexts[1:] {
		merged, err := m.Merge(acc, c)
		if err != nil {
			return nil, err
		}
		acc = merged
	}
	return acc, nil
}

// Merge combines two contexts reached at the same vertex into one, building
// ϕ-disjunction terms for every contextualized name the two states disagree
// on, guarded by each side's path constraint (§4.5). Merge requires equal
// call stacks (the "Different frame stacks" supplemented scenario): contexts
// at different call depths or scopes are a structural error, since there is
// no sound way to pick a single resulting frame.
func (m *Merger) Merge(a, b *state.Context) (*state.Context, error) {
	if !state.CallStackEqual(a.CallStack, b.CallStack) {
		return nil, diagnostic.Structural(a.CurrentFrame().Graph,
			"merge precondition violated: call stacks of the two contexts differ")
	}
	if a.Cycle != b.Cycle {
		return nil, diagnostic.Structural(a.CurrentFrame().Graph,
			"merge precondition violated: contexts are at different cycles")
	}

	guardA := conjunction(m.Facade, a.State.PathConstraint)
	guardB := conjunction(m.Facade, b.State.PathConstraint)

	merged := &state.Context{
		Cycle:     a.Cycle,
		CallStack: state.CloneCallStack(a.CallStack),
		State: &state.State{
			Vertex:   a.State.Vertex,
			Versions: state.Max(a.State.Versions, b.State.Versions),
		},
	}
	merged.State.Concrete, merged.State.Symbolic = m.mergeStores(a, b, guardA, guardB)
	merged.State.PathConstraint = []smt.Term{m.Facade.Binary(smt.OpOr, guardA, guardB)}
	if a.State.Assumptions != nil || b.State.Assumptions != nil {
		merged.State.Assumptions = state.Disjoin(nonNilAssumptions(a), nonNilAssumptions(b))
	}
	return merged, nil
}

// conjunction builds the AND of terms, defaulting to literal true for an
// empty path constraint (the root context before any branch is taken).
func conjunction(f *smt.Facade, terms []smt.Term) smt.Term {
	if len(terms) == 0 {
		return f.MakeBooleanValue(true)
	}
	acc := terms[0]
	for _, t := range terms[1:] {
		acc = f.Binary(smt.OpAnd, acc, t)
	}
	return acc
}

func nonNilAssumptions(ctx *state.Context) *state.AssumptionGraph {
	if ctx.State.Assumptions != nil {
		return ctx.State.Assumptions
	}
	return state.NewAssumptionGraph()
}

// mergeStores builds the merged concrete and symbolic stores: every
// contextualized name present in either input's symbolic store gets a
// ϕ-term `ite(guardA, valueInA, valueInB)` (or, when the name is only bound
// on one side, that side's value passes through unguarded — a "don't care"
// binding on the other side is preserved rather than lost, per §4.1's
// don't-care preservation rule). The concrete store takes a deterministic
// tie-break: A's concrete value wins whenever both sides bind the name.
func (m *Merger) mergeStores(a, b *state.Context, guardA, guardB smt.Term) (*state.Store, *state.Store) {
	concrete := state.NewStore()
	symbolic := state.NewStore()
	seen := make(map[string]bool)

	visit := func(name string, _ smt.Term) bool {
		if seen[name] {
			return true
		}
		seen[name] = true

		symA, okA := a.State.Symbolic.Get(name)
		symB, okB := b.State.Symbolic.Get(name)
		switch {
		case okA && okB:
			symbolic = symbolic.With(name, m.Facade.Ite(guardA, symA, symB))
		case okA:
			symbolic = symbolic.With(name, symA)
		case okB:
			symbolic = symbolic.With(name, symB)
		}

		concA, hasConcA := a.State.Concrete.Get(name)
		concB, hasConcB := b.State.Concrete.Get(name)
		switch {
		case hasConcA:
			concrete = concrete.With(name, concA)
		case hasConcB:
			concrete = concrete.With(name, concB)
		}
		return true
	}

	a.State.Symbolic.OrderedRange(visit)
	b.State.Symbolic.OrderedRange(visit)
	return concrete, symbolic
}
