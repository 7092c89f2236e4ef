// SPDX-License-Identifier: Apache-2.0

package smt_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stflow/smt"
)

func TestFacade_CheckSatisfiable(t *testing.T) {
	t.Parallel()
	f := smt.NewFacade(1)

	x := f.MakeConstant("x_0__0", smt.IntSort)
	cond := f.Binary(smt.OpGt, x, f.MakeIntegerValue(0))

	res, model := f.Check([]smt.Term{cond})
	require.Equal(t, smt.Sat, res)
	assert.Greater(t, model["x_0__0"], 0)
}

func TestFacade_CheckUnsatisfiable(t *testing.T) {
	t.Parallel()
	f := smt.NewFacade(1)

	x := f.MakeConstant("x_0__0", smt.IntSort)
	gt := f.Binary(smt.OpGt, x, f.MakeIntegerValue(0))
	lte := f.Binary(smt.OpLte, x, f.MakeIntegerValue(0))

	res, model := f.Check([]smt.Term{gt, lte})
	require.Equal(t, smt.Unsat, res)
	assert.Nil(t, model)
}

func TestFacade_CheckUnderAssumptions_UnsatCore(t *testing.T) {
	t.Parallel()
	f := smt.NewFacade(1)

	x := f.MakeConstant("x_0__0", smt.IntSort)
	a := f.MakeConstant("b_P_1__0", smt.BoolSort)
	b := f.MakeConstant("b_P_2__0", smt.BoolSort)

	// a => x > 0, b => x <= 0: together with both a and b asserted true,
	// this is unsat, and both assumptions are needed to derive it (without
	// one, the other alone is satisfiable).
	implA := f.Binary(smt.OpOr, f.Not(a), f.Binary(smt.OpGt, x, f.MakeIntegerValue(0)))
	implB := f.Binary(smt.OpOr, f.Not(b), f.Binary(smt.OpLte, x, f.MakeIntegerValue(0)))

	res, model, core := f.CheckUnderAssumptions([]smt.Term{implA, implB}, []smt.Term{a, b})
	require.Equal(t, smt.Unsat, res)
	assert.Nil(t, model)
	assert.Len(t, core, 2)
}

func TestFacade_FreeSymbols_Deduplicates(t *testing.T) {
	t.Parallel()
	f := smt.NewFacade(1)

	x := f.MakeConstant("x_0__0", smt.IntSort)
	expr := f.Binary(smt.OpAdd, x, x)

	syms := f.FreeSymbols(expr)
	require.Len(t, syms, 1)
	assert.Equal(t, "x_0__0", syms[0].Name)
}

func TestFacade_Substitute(t *testing.T) {
	t.Parallel()
	f := smt.NewFacade(1)

	x := f.MakeConstant("x_0__0", smt.IntSort)
	expr := f.Binary(smt.OpGt, x, f.MakeIntegerValue(0))

	replaced := f.Substitute(expr, "x_0__0", f.MakeIntegerValue(5))
	lit, ok := replaced.(*smt.BoolLit)
	require.True(t, ok, "substitution plus folding should yield a literal")
	assert.True(t, lit.Value)
}

func TestFacade_Simplify_BooleanShortCircuit(t *testing.T) {
	t.Parallel()
	f := smt.NewFacade(1)

	x := f.MakeConstant("x_0__0", smt.IntSort)
	cond := f.Binary(smt.OpGt, x, f.MakeIntegerValue(0))

	andResult, ok := f.Binary(smt.OpAnd, f.MakeBooleanValue(false), cond).(*smt.BoolLit)
	require.True(t, ok, "a false conjunct must fold the conjunction to a literal")
	assert.False(t, andResult.Value)
	orResult, ok := f.Binary(smt.OpOr, f.MakeBooleanValue(true), cond).(*smt.BoolLit)
	require.True(t, ok, "a true disjunct must fold the disjunction to a literal")
	assert.True(t, orResult.Value)
}

func TestFacade_MaxSearchSymbolsReturnsUnknown(t *testing.T) {
	t.Parallel()
	f := smt.NewFacade(1)

	var terms []smt.Term
	for i := 0; i < 20; i++ {
		sym := f.MakeConstant(string(rune('a'+i))+"_0__0", smt.BoolSort)
		terms = append(terms, sym)
	}
	res, model := f.Check(terms)
	assert.Equal(t, smt.Unknown, res)
	assert.Nil(t, model)
}
