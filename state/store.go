// SPDX-License-Identifier: Apache-2.0

// Package state implements per-context data (C5): versioned concrete and
// symbolic stores, the path constraint, the call stack, and the CBMC-style
// assumption-literal graph, plus the Context that ties them together with
// a cycle counter (the engine configuration is not part of it).
package state

import (
	"fmt"

	"stflow/smt"
	"stflow/util/orderedmap"
)

// Contextualize builds the solver symbol identity for a flattened name at a
// given version and cycle: "<flat>_<version>__<cycle>" (§3 "Versions and
// naming"). This scheme yields implicit SSA: a store is a pure function of
// the (name, version, cycle) triple.
func Contextualize(flattenedName string, version, cycle int) string {
	return fmt.Sprintf("%s_%d__%d", flattenedName, version, cycle)
}

// Store maps contextualized names to solver terms. Both the concrete and
// the symbolic store share this representation (§3 "Symbolic stores and
// concrete stores map contextualized names to solver terms"); which one a
// given Store instance plays is a matter of which values are written into
// it (concrete literals vs. free symbols/compound terms), not a type-level
// distinction.
type Store struct {
	values *orderedmap.OrderedMap[string, smt.Term]
}

// NewStore builds an empty store.
func NewStore() *Store {
	return &Store{values: orderedmap.New[string, smt.Term]()}
}

// Get returns the term bound to a contextualized name.
func (s *Store) Get(contextualizedName string) (smt.Term, bool) {
	return s.values.Load(contextualizedName)
}

// Clone returns an independent copy of the store: mutating the clone never
// affects the original, and vice versa (the "fresh copy" fork semantics of
// §4.3, and the general rule that every State-producing step in this
// engine treats stores as copy-on-write rather than in-place mutable state
// shared across contexts, §5 "Contexts own their own stores").
func (s *Store) Clone() *Store {
	return &Store{values: s.values.Clone()}
}

// With returns a new Store identical to s except contextualizedName is
// (re)bound to term. s itself is left untouched.
func (s *Store) With(contextualizedName string, term smt.Term) *Store {
	c := s.Clone()
	c.values.Store(contextualizedName, term)
	return c
}

// OrderedRange iterates bindings in insertion order, for deterministic
// dumps, test-suite derivation, and round-trip comparisons.
func (s *Store) OrderedRange(f func(contextualizedName string, term smt.Term) bool) {
	s.values.OrderedRange(f)
}

// Len reports the number of bindings.
func (s *Store) Len() int { return s.values.Len() }
