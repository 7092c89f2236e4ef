// SPDX-License-Identifier: Apache-2.0

// Package randvalue generates deterministic "don't-care" concrete values,
// grounded on the random-number-generator fields of the original ahorn
// Manager (se/experimental/z3/manager.h: `_random_number_generator`,
// `_int_distribution`, `_bool_distribution`, `_time_distribution`). Random
// valuations are deterministic given a fixed seed and are used only to
// populate entries a model left unconstrained, never to invent a value the
// solver constrained (§4.1).
package randvalue

import (
	"math/rand"

	"stflow/ir"
)

// Source produces deterministic random concrete values for a given data
// type, seeded once at construction.
type Source struct {
	rng *rand.Rand
}

// NewSource builds a Source seeded deterministically. Two Sources built
// from the same seed produce the same sequence of values.
func NewSource(seed int64) *Source {
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// Bool returns a random boolean value.
func (s *Source) Bool() bool { return s.rng.Intn(2) == 1 }

// Int returns a random integer value in a small bounded range. The range is
// intentionally modest: this source only ever fills "don't care" slots, and
// a bounded range keeps derived test cases readable (§4.7).
func (s *Source) Int() int { return s.rng.Intn(2001) - 1000 }

// TimeMillis returns a random non-negative millisecond duration.
func (s *Source) TimeMillis() int { return s.rng.Intn(100000) }

// Enum returns a random enumerated index in [0, cardinality).
func (s *Source) Enum(cardinality int) int {
	if cardinality <= 0 {
		return 0
	}
	return s.rng.Intn(cardinality)
}

// Default returns the zero-like default value for a data type: false,
// 0, 0ms, or the 0th enumerator, matching Manager::makeDefaultValue.
func Default(dt ir.DataType) int {
	return 0
}

// Value returns a random value for dt, encoded uniformly as an int (0/1 for
// Boolean). Enumerated types use cardinality to bound the index; pass 0 for
// non-enumerated types.
func (s *Source) Value(dt ir.DataType, cardinality int) int {
	switch dt {
	case ir.Boolean:
		if s.Bool() {
			return 1
		}
		return 0
	case ir.Time:
		return s.TimeMillis()
	case ir.Enumerated:
		return s.Enum(cardinality)
	default:
		return s.Int()
	}
}
