// SPDX-License-Identifier: Apache-2.0

package encode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stflow/ir"
	"stflow/smt"
	"stflow/state"
)

func newTestContext(facade *smt.Facade) *state.Context {
	sym := facade.MakeConstant(state.Contextualize("P.a", 0, 0), smt.IntSort)
	symbolic := state.NewStore().With(state.Contextualize("P.a", 0, 0), sym)
	return &state.Context{
		Cycle: 0,
		State: &state.State{
			Vertex:   1,
			Concrete: state.NewStore(),
			Symbolic: symbolic,
			Versions: state.NewVersionMap(),
		},
		CallStack: []state.Frame{{Graph: "P", ScopePrefix: "P"}},
	}
}

func TestEncoder_VariableAccess_ResolvesCurrentVersion(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	enc := New(facade)

	term, err := enc.Encode(ctx, "P", &ir.VariableAccess{Name: "a", DataType: ir.Integer})
	require.NoError(t, err)
	sym, ok := term.(*smt.Symbol)
	require.True(t, ok)
	assert.Equal(t, "P.a_0__0", sym.Name)
}

func TestEncoder_VariableAccess_MissingBindingIsStructuralError(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	enc := New(facade)

	_, err := enc.Encode(ctx, "P", &ir.VariableAccess{Name: "unbound", DataType: ir.Integer})
	require.Error(t, err)
}

func TestEncoder_RejectsDivision(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	enc := New(facade)

	expr := &ir.BinaryExpr{Op: ir.Div, Left: ir.Constant{DataType: ir.Integer, IntValue: 4}, Right: ir.Constant{DataType: ir.Integer, IntValue: 2}}
	_, err := enc.Encode(ctx, "P", expr)
	require.Error(t, err)
}

func TestEncoder_RejectsNestedNondeterministicConstant(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	enc := New(facade)

	expr := &ir.BinaryExpr{
		Op:    ir.Add,
		Left:  ir.Constant{DataType: ir.Integer, IntValue: 1},
		Right: ir.NondeterministicConstant{DataType: ir.Integer},
	}
	_, err := enc.Encode(ctx, "P", expr)
	require.Error(t, err)
}

func TestEncoder_BinaryExpr_FoldsConstants(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	enc := New(facade)

	expr := &ir.BinaryExpr{
		Op:    ir.Add,
		Left:  ir.Constant{DataType: ir.Integer, IntValue: 2},
		Right: ir.Constant{DataType: ir.Integer, IntValue: 3},
	}
	term, err := enc.Encode(ctx, "P", expr)
	require.NoError(t, err)
	lit, ok := term.(*smt.IntLit)
	require.True(t, ok)
	assert.Equal(t, 5, lit.Value)
}

func TestEncoder_CastExpr_IntToBool(t *testing.T) {
	t.Parallel()
	facade := smt.NewFacade(1)
	ctx := newTestContext(facade)
	enc := New(facade)

	expr := &ir.CastExpr{Operand: ir.Constant{DataType: ir.Integer, IntValue: 0}, To: ir.BooleanType}
	term, err := enc.Encode(ctx, "P", expr)
	require.NoError(t, err)
	lit, ok := term.(*smt.BoolLit)
	require.True(t, ok)
	assert.False(t, lit.Value)
}
