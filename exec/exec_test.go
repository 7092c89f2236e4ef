// SPDX-License-Identifier: Apache-2.0

package exec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stflow/ir"
	"stflow/smt"
	"stflow/state"
	"stflow/util/randvalue"
)

// buildProgram constructs a minimal program graph P:
//
//	0: x := havoc(int)
//	1: if x > 0 goto 2 else goto 3
//	2: y := 1; goto 4
//	3: y := 2; goto 4
//	4: exit
func buildProgram(t *testing.T) *ir.Program {
	t.Helper()
	graph := &ir.Graph{
		Name:  "P",
		Kind:  ir.ProgramKind,
		Entry: 0,
		Exit:  4,
		Interface: []ir.InterfaceEntry{
			{Name: "P.x", DataType: ir.Integer, StorageClass: ir.Local},
			{Name: "P.y", DataType: ir.Integer, StorageClass: ir.Local},
		},
		Instructions: map[ir.Label]ir.Instr{
			0: &ir.HavocInstr{Lhs: "x", Type: ir.Integer, Goto: 1},
			1: &ir.IfInstr{
				Cond:      &ir.BinaryExpr{Op: ir.Gt, Left: &ir.VariableAccess{Name: "x", DataType: ir.Integer}, Right: ir.Constant{DataType: ir.Integer, IntValue: 0}},
				GotoTrue:  2,
				GotoFalse: 3,
			},
			2: &ir.AssignInstr{Lhs: "y", Expr: ir.Constant{DataType: ir.Integer, IntValue: 1}, Goto: 4},
			3: &ir.AssignInstr{Lhs: "y", Expr: ir.Constant{DataType: ir.Integer, IntValue: 2}, Goto: 4},
		},
	}
	program, err := ir.NewProgram([]*ir.Graph{graph})
	require.NoError(t, err)
	return program
}

func initialContext() *state.Context {
	return &state.Context{
		Cycle: 0,
		State: &state.State{
			Vertex:   0,
			Concrete: state.NewStore(),
			Symbolic: state.NewStore(),
			Versions: state.NewVersionMap(),
		},
		CallStack: []state.Frame{{Graph: "P", ScopePrefix: "P"}},
	}
}

func TestExecutor_Havoc_BindsBothStores(t *testing.T) {
	t.Parallel()
	program := buildProgram(t)
	facade := smt.NewFacade(1)
	executor := New(program, facade, randvalue.NewSource(1), ForkFlavor, nil)

	result, err := executor.Step(initialContext())
	require.NoError(t, err)
	require.Equal(t, Continuing, result.Outcome)
	require.Len(t, result.Successors, 1)

	next := result.Successors[0]
	assert.Equal(t, ir.Label(1), next.State.Vertex)

	name := state.Contextualize("P.x", 1, 0)
	_, symOK := next.State.Symbolic.Get(name)
	_, concOK := next.State.Concrete.Get(name)
	assert.True(t, symOK)
	assert.True(t, concOK)
}

func TestExecutor_IfInstr_ForksBothBranchesWhenBothSat(t *testing.T) {
	t.Parallel()
	program := buildProgram(t)
	facade := smt.NewFacade(1)
	executor := New(program, facade, randvalue.NewSource(1), ForkFlavor, nil)

	ctx := initialContext()
	havocResult, err := executor.Step(ctx)
	require.NoError(t, err)
	ctx = havocResult.Successors[0]

	branchResult, err := executor.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, Continuing, branchResult.Outcome)
	require.Len(t, branchResult.Successors, 2, "an unconstrained x should make both branches satisfiable")

	vertices := []ir.Label{branchResult.Successors[0].State.Vertex, branchResult.Successors[1].State.Vertex}
	assert.Contains(t, vertices, ir.Label(2))
	assert.Contains(t, vertices, ir.Label(3))

	name := state.Contextualize("P.x", 1, 0)
	for _, c := range branchResult.Successors {
		lit, ok := c.State.Concrete.Get(name)
		require.True(t, ok)
		xValue, ok := lit.(*smt.IntLit)
		require.True(t, ok)
		if c.State.Vertex == ir.Label(2) {
			assert.Greater(t, xValue.Value, 0, "the branch taken to the true target must carry a concrete x that actually satisfies x>0")
		} else {
			assert.LessOrEqual(t, xValue.Value, 0, "the branch taken to the false target must carry a concrete x that actually satisfies x<=0")
		}
	}
}

// TestExecutor_IfInstr_TieBreak_PreservesConcretelyImpliedStore exercises
// §4.3's Tie-break rule directly with a deterministic concrete x: the
// concretely-implied branch must keep its parent's concrete store
// byte-for-byte (I4), while the forked branch gets a fresh concrete
// witness honoring its own path constraint.
func TestExecutor_IfInstr_TieBreak_PreservesConcretelyImpliedStore(t *testing.T) {
	t.Parallel()
	program := buildProgram(t)
	facade := smt.NewFacade(1)
	executor := New(program, facade, randvalue.NewSource(1), ForkFlavor, nil)

	name := state.Contextualize("P.x", 0, 0)
	xTerm := facade.MakeIntegerValue(5)
	ctx := &state.Context{
		Cycle: 0,
		State: &state.State{
			Vertex:   1,
			Concrete: state.NewStore().With(name, xTerm),
			Symbolic: state.NewStore().With(name, facade.MakeConstant(name, smt.IntSort)),
			Versions: state.NewVersionMap(),
		},
		CallStack: []state.Frame{{Graph: "P", ScopePrefix: "P"}},
	}

	result, err := executor.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, Continuing, result.Outcome)
	require.Len(t, result.Successors, 2)

	var trueCtx, falseCtx *state.Context
	for _, c := range result.Successors {
		switch c.State.Vertex {
		case ir.Label(2):
			trueCtx = c
		case ir.Label(3):
			falseCtx = c
		}
	}
	require.NotNil(t, trueCtx)
	require.NotNil(t, falseCtx)

	trueLit, ok := trueCtx.State.Concrete.Get(name)
	require.True(t, ok)
	assert.Same(t, xTerm, trueLit, "the concretely-implied branch (x=5 already satisfies x>0) keeps its parent's concrete store untouched")

	falseLit, ok := falseCtx.State.Concrete.Get(name)
	require.True(t, ok)
	falseValue, ok := falseLit.(*smt.IntLit)
	require.True(t, ok)
	assert.LessOrEqual(t, falseValue.Value, 0, "the forked branch must carry a concrete witness that actually models its own path constraint")
}

func TestExecutor_IfInstr_AntivalentFastPath(t *testing.T) {
	t.Parallel()
	graph := &ir.Graph{
		Name:  "Q",
		Kind:  ir.ProgramKind,
		Entry: 0,
		Exit:  2,
		Instructions: map[ir.Label]ir.Instr{
			0: &ir.IfInstr{
				Cond:      ir.Constant{DataType: ir.Boolean, BoolValue: true},
				GotoTrue:  1,
				GotoFalse: 2,
			},
			1: &ir.GotoInstr{Target: 2},
		},
	}
	program, err := ir.NewProgram([]*ir.Graph{graph})
	require.NoError(t, err)

	facade := smt.NewFacade(1)
	executor := New(program, facade, randvalue.NewSource(1), ForkFlavor, nil)

	ctx := &state.Context{
		State:     &state.State{Vertex: 0, Concrete: state.NewStore(), Symbolic: state.NewStore(), Versions: state.NewVersionMap()},
		CallStack: []state.Frame{{Graph: "Q", ScopePrefix: "Q"}},
	}
	result, err := executor.Step(ctx)
	require.NoError(t, err)
	require.Len(t, result.Successors, 1, "a literally-true condition must not fork")
	assert.Equal(t, ir.Label(1), result.Successors[0].State.Vertex)
}

func TestExecutor_CycleEnd_AdvanceCycleRefreshesInputs(t *testing.T) {
	t.Parallel()
	graph := &ir.Graph{
		Name:  "R",
		Kind:  ir.ProgramKind,
		Entry: 0,
		Exit:  1,
		Interface: []ir.InterfaceEntry{
			{Name: "R.in", DataType: ir.Integer, StorageClass: ir.Input},
		},
		Instructions: map[ir.Label]ir.Instr{
			0: &ir.GotoInstr{Target: 1},
		},
	}
	program, err := ir.NewProgram([]*ir.Graph{graph})
	require.NoError(t, err)

	facade := smt.NewFacade(1)
	executor := New(program, facade, randvalue.NewSource(1), ForkFlavor, nil)

	ctx := &state.Context{
		State:     &state.State{Vertex: 0, Concrete: state.NewStore(), Symbolic: state.NewStore(), Versions: state.NewVersionMap()},
		CallStack: []state.Frame{{Graph: "R", ScopePrefix: "R"}},
	}
	result, err := executor.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, Continuing, result.Outcome)
	ctx = result.Successors[0]

	result, err = executor.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, CycleEnded, result.Outcome)

	next, err := executor.AdvanceCycle(result.Successors[0])
	require.NoError(t, err)
	assert.Equal(t, 1, next.Cycle)
	assert.Equal(t, ir.Label(0), next.State.Vertex)

	name := state.Contextualize("R.in", 1, 1)
	_, ok := next.State.Symbolic.Get(name)
	assert.True(t, ok, "whole-program input must receive a fresh symbol at the new cycle")
}

func TestExecutor_Call_PushesAndPopsFrame(t *testing.T) {
	t.Parallel()
	callee := &ir.Graph{
		Name:  "F",
		Kind:  ir.FunctionKind,
		Entry: 0,
		Exit:  1,
		Instructions: map[ir.Label]ir.Instr{
			0: &ir.GotoInstr{Target: 1},
		},
	}
	caller := &ir.Graph{
		Name:  "P",
		Kind:  ir.ProgramKind,
		Entry: 0,
		Exit:  2,
		Instructions: map[ir.Label]ir.Instr{
			0: &ir.CallInstr{CalleeAccess: "f", CalleeGraph: "F", GotoIntra: 1, GotoInter: 0},
			1: &ir.GotoInstr{Target: 2},
		},
	}
	program, err := ir.NewProgram([]*ir.Graph{caller, callee})
	require.NoError(t, err)

	facade := smt.NewFacade(1)
	executor := New(program, facade, randvalue.NewSource(1), ForkFlavor, nil)

	ctx := &state.Context{
		State:     &state.State{Vertex: 0, Concrete: state.NewStore(), Symbolic: state.NewStore(), Versions: state.NewVersionMap()},
		CallStack: []state.Frame{{Graph: "P", ScopePrefix: "P"}},
	}
	result, err := executor.Step(ctx)
	require.NoError(t, err)
	require.Len(t, result.Successors, 1)
	ctx = result.Successors[0]
	assert.Len(t, ctx.CallStack, 2)
	assert.Equal(t, ir.Label(0), ctx.State.Vertex)
	assert.Equal(t, "P.f", ctx.CurrentFrame().ScopePrefix)

	// step through the callee body to its exit, then pop back to the caller.
	result, err = executor.Step(ctx)
	require.NoError(t, err)
	ctx = result.Successors[0]
	assert.Equal(t, ir.Label(1), ctx.State.Vertex)

	result, err = executor.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, Continuing, result.Outcome)
	ctx = result.Successors[0]
	assert.Len(t, ctx.CallStack, 1)
	assert.Equal(t, ir.Label(1), ctx.State.Vertex)
}
