// SPDX-License-Identifier: Apache-2.0

package state

import (
	"stflow/smt"
	"stflow/util/orderedmap"
)

// AssumptionGraph is the CBMC-style flavor's alternative state
// representation (§3 "State... In the CBMC-style flavor it instead
// carries..."; §4.3 "CBMC-style flavor (alternative)"): verification
// conditions reified as named boolean literals rather than forked path
// constraints.
type AssumptionGraph struct {
	// Predecessors maps an assumption literal to the literals that must
	// hold for it to have been reached.
	Predecessors *orderedmap.OrderedMap[string, []string]
	// GuardedAssumptions maps an assumption literal to the list of guarded
	// assumption terms (`literal => phi`) introduced at that block.
	GuardedAssumptions *orderedmap.OrderedMap[string, []smt.Term]
	// HardConstraints maps an assumption literal to the hard (unconditional
	// once the literal is asserted) contextualized-name -> term bindings
	// recorded at that block.
	HardConstraints *orderedmap.OrderedMap[string, map[string]smt.Term]
}

// NewAssumptionGraph builds an empty graph.
func NewAssumptionGraph() *AssumptionGraph {
	return &AssumptionGraph{
		Predecessors:       orderedmap.New[string, []string](),
		GuardedAssumptions: orderedmap.New[string, []smt.Term](),
		HardConstraints:    orderedmap.New[string, map[string]smt.Term](),
	}
}

// Clone returns an independent copy.
func (g *AssumptionGraph) Clone() *AssumptionGraph {
	out := NewAssumptionGraph()
	g.Predecessors.OrderedRange(func(k string, v []string) bool {
		cp := append([]string(nil), v...)
		out.Predecessors.Store(k, cp)
		return true
	})
	g.GuardedAssumptions.OrderedRange(func(k string, v []smt.Term) bool {
		cp := append([]smt.Term(nil), v...)
		out.GuardedAssumptions.Store(k, cp)
		return true
	})
	g.HardConstraints.OrderedRange(func(k string, v map[string]smt.Term) bool {
		cp := make(map[string]smt.Term, len(v))
		for n, t := range v {
			cp[n] = t
		}
		out.HardConstraints.Store(k, cp)
		return true
	})
	return out
}

// AddLiteral records a fresh assumption literal with its predecessor
// literals, guarded assumption, and the hard constraints asserted alongside
// it. AddLiteral is deletion-free; the de-duplication open question (§9 on
// whether predecessor literals should be de-duplicated as a set or kept as
// a multiset) is resolved here as set semantics — see DESIGN.md.
func (g *AssumptionGraph) AddLiteral(literal string, predecessors []string, guarded smt.Term, hard map[string]smt.Term) *AssumptionGraph {
	out := g.Clone()
	out.Predecessors.Store(literal, dedupeStrings(predecessors))
	existing := out.GuardedAssumptions.Value(literal)
	out.GuardedAssumptions.Store(literal, append(existing, guarded))
	out.HardConstraints.Store(literal, hard)
	return out
}

func dedupeStrings(xs []string) []string {
	seen := make(map[string]bool, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	return out
}

// Disjoin merges two assumption graphs (used by the CBMC-flavor Merger
// path): the resulting graph's entries are the union, keyed by literal; a
// literal present in both keeps A's guarded assumptions/hard constraints
// (arbitrary deterministic choice, mirroring the concrete-store tie-break
// rule of §4.5) but its predecessor sets are unioned.
func Disjoin(a, b *AssumptionGraph) *AssumptionGraph {
	out := a.Clone()
	b.Predecessors.OrderedRange(func(literal string, preds []string) bool {
		if existing, ok := out.Predecessors.Load(literal); ok {
			merged := append(append([]string(nil), existing...), preds...)
			out.Predecessors.Store(literal, dedupeStrings(merged))
		} else {
			out.Predecessors.Store(literal, append([]string(nil), preds...))
			if ga, ok := b.GuardedAssumptions.Load(literal); ok {
				out.GuardedAssumptions.Store(literal, append([]smt.Term(nil), ga...))
			}
			if hc, ok := b.HardConstraints.Load(literal); ok {
				cp := make(map[string]smt.Term, len(hc))
				for n, t := range hc {
					cp[n] = t
				}
				out.HardConstraints.Store(literal, cp)
			}
		}
		return true
	})
	return out
}
