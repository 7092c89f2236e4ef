// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"stflow/config"
	"stflow/ir"
)

// buildLoopProgram builds a tiny one-cycle program: havoc x, branch on
// x>0, assign y on either side, exit.
func buildLoopProgram(t *testing.T) *ir.Program {
	t.Helper()
	graph := &ir.Graph{
		Name:  "P",
		Kind:  ir.ProgramKind,
		Entry: 0,
		Exit:  4,
		Interface: []ir.InterfaceEntry{
			{Name: "P.x", DataType: ir.Integer, StorageClass: ir.Input},
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

func TestNew_BuildsInitialContextFromEntryInterface(t *testing.T) {
	t.Parallel()
	program := buildLoopProgram(t)
	cfg := config.Default()
	cfg.CycleBound = 1

	e, err := New(program, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, e.Worklist.Len())
}

func TestRun_ExploresBothBranchesAndTerminatesAtCycleBound(t *testing.T) {
	t.Parallel()
	program := buildLoopProgram(t)
	cfg := config.Default()
	cfg.CycleBound = 1

	e, err := New(program, cfg)
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Diagnostics)
	require.NotEmpty(t, report.Terminated, "the cycle bound must eventually terminate every live context")
	require.Positive(t, report.Cycles)
	require.Positive(t, report.StatementCoverage)
	require.Equal(t, report.TotalStatements, len(program.Graphs["P"].Instructions))
}

// buildShadowProgram builds a one-instruction program whose branch condition
// is a ChangeExpr: old always takes the true edge, new always takes the
// false edge, forcing a divergence on the very first step.
func buildShadowProgram(t *testing.T) *ir.Program {
	t.Helper()
	change := &ir.ChangeExpr{
		Old: ir.Constant{DataType: ir.Boolean, BoolValue: true},
		New: ir.Constant{DataType: ir.Boolean, BoolValue: false},
	}
	graph := &ir.Graph{
		Name: "P", Kind: ir.ProgramKind, Entry: 0, Exit: 3,
		Instructions: map[ir.Label]ir.Instr{
			0: &ir.IfInstr{Cond: change, GotoTrue: 1, GotoFalse: 2},
			1: &ir.AssignInstr{Lhs: "y", Expr: ir.Constant{DataType: ir.Integer, IntValue: 1}, Goto: 3},
			2: &ir.AssignInstr{Lhs: "y", Expr: ir.Constant{DataType: ir.Integer, IntValue: 2}, Goto: 3},
		},
	}
	program, err := ir.NewProgram([]*ir.Graph{graph})
	require.NoError(t, err)
	return program
}

func TestRun_ShadowBoth_ForkedOnDivergenceRunsBothSidesToTermination(t *testing.T) {
	t.Parallel()
	program := buildShadowProgram(t)
	cfg := config.Default()
	cfg.EngineMode = config.ModeShadow
	cfg.ShadowProcessingMode = config.ShadowBoth
	cfg.CycleBound = 1

	e, err := New(program, cfg)
	require.NoError(t, err)
	require.NotNil(t, e.ShadowExecutor)
	require.NotNil(t, e.OldExecutor)
	require.NotNil(t, e.NewExecutor)
	require.Len(t, e.shadowQueue, 1)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Diagnostics)
	require.Len(t, report.Terminated, 2, "both the old and new forked lines must reach the cycle bound independently")

	var vertices []ir.Label
	for _, c := range report.Terminated {
		vertices = append(vertices, c.State.Vertex)
	}
	require.ElementsMatch(t, []ir.Label{3, 3}, vertices, "both lines must have run their assignment through to exit")
}

func TestRun_ShadowOld_ProjectsWholeProgramOnce(t *testing.T) {
	t.Parallel()
	program := buildShadowProgram(t)
	cfg := config.Default()
	cfg.EngineMode = config.ModeShadow
	cfg.ShadowProcessingMode = config.ShadowOld
	cfg.CycleBound = 1

	e, err := New(program, cfg)
	require.NoError(t, err)
	require.Nil(t, e.ShadowExecutor, "single-sided processing modes never need the dual-step shadow machinery")
	require.Equal(t, 1, e.Worklist.Len())

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Diagnostics)
	require.NotEmpty(t, report.Terminated)
}

func TestRun_OverApproximating_PrunesHintedUnreachableBranch(t *testing.T) {
	t.Parallel()
	program := buildLoopProgram(t)
	cfg := config.Default()
	cfg.EngineMode = config.ModeOverApproximating
	cfg.CycleBound = 1
	cfg.UnreachableBranches = []string{"P:3"}

	e, err := New(program, cfg)
	require.NoError(t, err)

	report, err := e.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, report.Diagnostics)
	require.Len(t, report.Terminated, 1, "the branch hinted unreachable must be pruned before it ever terminates, leaving only the other side")
}

func TestRun_RespectsContextCancellation(t *testing.T) {
	t.Parallel()
	program := buildLoopProgram(t)
	cfg := config.Default()
	cfg.CycleBound = 0

	e, err := New(program, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := e.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)
}
