// SPDX-License-Identifier: Apache-2.0

package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stflow/ir"
	"stflow/smt"
	"stflow/state"
)

func newTestContext(facade *smt.Facade) *state.Context {
	concrete := state.NewStore().With(state.Contextualize("P.a", 0, 0), facade.MakeIntegerValue(7))
	return &state.Context{
		Cycle: 0,
		State: &state.State{
			Vertex:   1,
			Concrete: concrete,
			Symbolic: state.NewStore(),
			Versions: state.NewVersionMap(),
		},
		CallStack: []state.Frame{{Graph: "P", ScopePrefix: "P"}},
	}
}

func TestEvaluator_VariableAccess(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	ev := New()

	v, err := ev.Eval(ctx, "P", &ir.VariableAccess{Name: "a", DataType: ir.Integer})
	require.NoError(t, err)
	assert.Equal(t, 7, v.AsInt())
}

func TestEvaluator_RejectsModulo(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	ev := New()

	expr := &ir.BinaryExpr{Op: ir.Mod, Left: ir.Constant{DataType: ir.Integer, IntValue: 5}, Right: ir.Constant{DataType: ir.Integer, IntValue: 2}}
	_, err := ev.Eval(ctx, "P", expr)
	require.Error(t, err)
}

func TestEvaluator_BinaryExpr_Arithmetic(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	ev := New()

	expr := &ir.BinaryExpr{
		Op:    ir.Mul,
		Left:  &ir.VariableAccess{Name: "a", DataType: ir.Integer},
		Right: ir.Constant{DataType: ir.Integer, IntValue: 3},
	}
	v, err := ev.Eval(ctx, "P", expr)
	require.NoError(t, err)
	assert.Equal(t, 21, v.AsInt())
}

func TestEvaluator_BooleanShortCircuitFreeEvaluation(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	ev := New()

	// Both sides are evaluated even though the left alone already
	// determines the result (§4.2: no short-circuit evaluation); this
	// test only verifies the boolean answer: both operands are bound
	// constants, so it does not observe whether the right-hand side was
	// evaluated.
	expr := &ir.BinaryExpr{
		Op:    ir.Or,
		Left:  ir.Constant{DataType: ir.Boolean, BoolValue: true},
		Right: ir.Constant{DataType: ir.Boolean, BoolValue: false},
	}
	v, err := ev.Eval(ctx, "P", expr)
	require.NoError(t, err)
	assert.True(t, v.AsBool())
}

func TestEvaluator_CastExpr_BoolToInt(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(smt.NewFacade(1))
	ev := New()

	expr := &ir.CastExpr{Operand: ir.Constant{DataType: ir.Boolean, BoolValue: true}, To: ir.ArithmeticType}
	v, err := ev.Eval(ctx, "P", expr)
	require.NoError(t, err)
	assert.Equal(t, 1, v.AsInt())
}

func TestEvaluator_PhiExpr_SelectsBranch(t *testing.T) {
	t.Parallel()
	ctx := newTestContext(smt.NewFacade(1))
	ev := New()

	expr := &ir.PhiExpr{
		Guard: ir.Constant{DataType: ir.Boolean, BoolValue: false},
		Then:  ir.Constant{DataType: ir.Integer, IntValue: 1},
		Else:  ir.Constant{DataType: ir.Integer, IntValue: 2},
	}
	v, err := ev.Eval(ctx, "P", expr)
	require.NoError(t, err)
	assert.Equal(t, 2, v.AsInt())
}
