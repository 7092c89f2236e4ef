// SPDX-License-Identifier: Apache-2.0

package shadow

import (
	"stflow/diagnostic"
	"stflow/encode"
	"stflow/eval"
	"stflow/ir"
	"stflow/logging"
	"stflow/smt"
	"stflow/state"
)

// StepOutcome classifies what a shadow Step produced.
type StepOutcome int

const (
	// Continuing means Successors holds the single live shadow context,
	// old and new having taken the same branch at every decision so far.
	Continuing StepOutcome = iota
	// CycleEnded means both sides reached the entry graph's exit together.
	CycleEnded
	// ForkedOnDivergence means old and new took different branches at an
	// if/while: Forked holds exactly two independent, ordinary (non-shadow)
	// contexts for the Engine to continue exploring separately (§4.6).
	ForkedOnDivergence
)

// Result is the outcome of one shadow Step.
type Result struct {
	Outcome    StepOutcome
	Successors []*Context
	Forked     []*state.Context
}

// Executor runs the old and new revisions of a single shared instruction
// stream side by side, splitting `change(old, new)` expressions per branch
// via Project (§4.6). It only implements Mode Both; Mode None/Old/New run
// the ordinary (non-shadow) exec.Executor against a once-projected program
// instead (see ProjectProgram).
type Executor struct {
	Program *ir.Program
	Facade  *smt.Facade
	Encoder *encode.Encoder
	Eval    *eval.Evaluator
}

// New builds a shadow Executor.
func New(program *ir.Program, facade *smt.Facade) *Executor {
	return &Executor{Program: program, Facade: facade, Encoder: encode.New(facade), Eval: eval.New()}
}

// Step executes the instruction at the shared current vertex against both
// revisions.
func (x *Executor) Step(ctx *Context) (Result, error) {
	frame := ctx.CurrentFrame()
	graph, ok := x.Program.Graphs[frame.Graph]
	if !ok {
		return Result{}, diagnostic.Structural(frame.Graph, "shadow executor: unknown graph")
	}

	if ctx.Old.Vertex == graph.Exit && ctx.New.Vertex == graph.Exit {
		return Result{Outcome: CycleEnded, Successors: []*Context{ctx}}, nil
	}

	instr, ok := graph.Instructions[ctx.Old.Vertex]
	if !ok {
		return Result{}, diagnostic.StructuralAt(frame.Graph, int(ctx.Old.Vertex), "no instruction at vertex")
	}

	switch in := instr.(type) {
	case *ir.AssignInstr:
		return x.dispatchAssign(ctx, graph.Name, in)
	case *ir.GotoInstr:
		next := ctx.Clone()
		next.Old.Vertex = in.Target
		next.New.Vertex = in.Target
		return Result{Outcome: Continuing, Successors: []*Context{next}}, nil
	case *ir.HavocInstr:
		return x.dispatchHavoc(ctx, in)
	case *ir.IfInstr:
		return x.dispatchBranch(ctx, graph.Name, in.Cond, in.GotoTrue, in.GotoFalse)
	case *ir.WhileInstr:
		return x.dispatchBranch(ctx, graph.Name, in.Cond, in.GotoBody, in.GotoExit)
	case *ir.CallInstr:
		return x.dispatchCall(ctx, in)
	default:
		return Result{}, diagnostic.Structural(graph.Name, "shadow executor: unknown instruction kind %T", instr)
	}
}

func (x *Executor) dispatchAssign(ctx *Context, graph string, in *ir.AssignInstr) (Result, error) {
	oldExpr := Project(in.Expr, Old)
	newExpr := Project(in.Expr, New)
	qualified := ctx.CurrentFrame().Qualify(in.Lhs)

	next := ctx.Clone()

	oldTerm, oldValue, err := x.encodeAndEval(&state.Context{Cycle: ctx.Cycle, State: next.Old, CallStack: next.CallStack}, graph, oldExpr)
	if err != nil {
		return Result{}, err
	}
	newTerm, newValue, err := x.encodeAndEval(&state.Context{Cycle: ctx.Cycle, State: next.New, CallStack: next.CallStack}, graph, newExpr)
	if err != nil {
		return Result{}, err
	}

	if containsChange(in.Expr) {
		diverged := x.checkDivergence(oldTerm, newTerm, next)
		logging.L.Debug().Str("graph", graph).Str("name", qualified).Bool("diverged", diverged).
			Log("evaluated a change() assignment")
	}

	oldVersions, oldVer := next.Old.Versions.Bump(qualified)
	next.Old.Versions = oldVersions
	oldName := state.Contextualize(qualified, oldVer, next.Cycle)
	next.Old.Symbolic = next.Old.Symbolic.With(oldName, oldTerm)
	next.Old.Concrete = next.Old.Concrete.With(oldName, literal(x.Facade, oldValue))

	newVersions, newVer := next.New.Versions.Bump(qualified)
	next.New.Versions = newVersions
	newName := state.Contextualize(qualified, newVer, next.Cycle)
	next.New.Symbolic = next.New.Symbolic.With(newName, newTerm)
	next.New.Concrete = next.New.Concrete.With(newName, literal(x.Facade, newValue))

	next.Old.Vertex = in.Goto
	next.New.Vertex = in.Goto
	return Result{Outcome: Continuing, Successors: []*Context{next}}, nil
}

func (x *Executor) encodeAndEval(view *state.Context, graph string, expr ir.Expr) (smt.Term, eval.Value, error) {
	term, err := x.Encoder.Encode(view, graph, expr)
	if err != nil {
		return nil, eval.Value{}, err
	}
	value, err := x.Eval.Eval(view, graph, expr)
	if err != nil {
		return nil, eval.Value{}, err
	}
	return term, value, nil
}

// checkDivergence runs the two-phase satisfiability check (§4.6): phase one
// folds away the trivial case where both sides produced the identical term
// (no solver call needed); phase two asks the façade whether old and new
// could actually differ under the combined path constraint. A provably-
// equal pair is not worth tracking as a divergence even though the
// assignment carried a `change`.
func (x *Executor) checkDivergence(oldTerm, newTerm smt.Term, ctx *Context) bool {
	if oldTerm.ID() == newTerm.ID() {
		return false
	}
	combined := append(append([]smt.Term(nil), ctx.Old.PathConstraint...), ctx.New.PathConstraint...)
	combined = append(combined, x.Facade.Binary(smt.OpNeq, oldTerm, newTerm))
	result, _ := x.Facade.Check(combined)
	return result == smt.Sat
}

func (x *Executor) dispatchHavoc(ctx *Context, in *ir.HavocInstr) (Result, error) {
	next := ctx.Clone()
	qualified := next.CallStack[len(next.CallStack)-1].Qualify(in.Lhs)
	sort := smt.IntSort
	if in.Type == ir.Boolean {
		sort = smt.BoolSort
	}

	oldVersions, oldVer := next.Old.Versions.Bump(qualified)
	next.Old.Versions = oldVersions
	oldName := state.Contextualize(qualified, oldVer, next.Cycle)
	next.Old.Symbolic = next.Old.Symbolic.With(oldName, x.Facade.MakeConstant(oldName, sort))
	next.Old.Concrete = next.Old.Concrete.With(oldName, x.Facade.MakeRandomValue(in.Type, 0))

	newVersions, newVer := next.New.Versions.Bump(qualified)
	next.New.Versions = newVersions
	newName := state.Contextualize(qualified, newVer, next.Cycle)
	next.New.Symbolic = next.New.Symbolic.With(newName, x.Facade.MakeConstant(newName, sort))
	next.New.Concrete = next.New.Concrete.With(newName, x.Facade.MakeRandomValue(in.Type, 0))

	next.Old.Vertex = in.Goto
	next.New.Vertex = in.Goto
	return Result{Outcome: Continuing, Successors: []*Context{next}}, nil
}

// dispatchBranch evaluates the projected condition concretely on each side
// (shadow divergence detection cares about which branch each revision
// takes, not exhaustive symbolic case-splitting, which the ordinary
// Executor already covers once a fork hands a side back to it) and forks
// into two independent contexts the moment the two sides disagree.
func (x *Executor) dispatchBranch(ctx *Context, graph string, cond ir.Expr, gotoTrue, gotoFalse ir.Label) (Result, error) {
	oldExpr := Project(cond, Old)
	newExpr := Project(cond, New)

	oldValue, err := x.Eval.Eval(&state.Context{Cycle: ctx.Cycle, State: ctx.Old, CallStack: ctx.CallStack}, graph, oldExpr)
	if err != nil {
		return Result{}, err
	}
	newValue, err := x.Eval.Eval(&state.Context{Cycle: ctx.Cycle, State: ctx.New, CallStack: ctx.CallStack}, graph, newExpr)
	if err != nil {
		return Result{}, err
	}

	oldTarget, newTarget := gotoFalse, gotoFalse
	if oldValue.AsBool() {
		oldTarget = gotoTrue
	}
	if newValue.AsBool() {
		newTarget = gotoTrue
	}

	if oldTarget == newTarget {
		next := ctx.Clone()
		next.Old.Vertex = oldTarget
		next.New.Vertex = newTarget
		return Result{Outcome: Continuing, Successors: []*Context{next}}, nil
	}

	logging.L.Info().Str("graph", graph).Int("vertex", int(ctx.Old.Vertex)).
		Log("old and new revisions diverge in control flow, forking into independent contexts")

	oldCtx := ctx.AsOldContext()
	oldCtx.State.Vertex = oldTarget
	newCtx := ctx.AsNewContext()
	newCtx.State.Vertex = newTarget
	return Result{Outcome: ForkedOnDivergence, Forked: []*state.Context{oldCtx, newCtx}}, nil
}

func (x *Executor) dispatchCall(ctx *Context, in *ir.CallInstr) (Result, error) {
	next := ctx.Clone()
	frame := state.Frame{Graph: in.CalleeGraph, ScopePrefix: ctx.CurrentFrame().Qualify(in.CalleeAccess), ReturnLabel: in.GotoIntra}
	next.CallStack = append(next.CallStack, frame)
	callee, ok := x.Program.Graphs[in.CalleeGraph]
	if !ok {
		return Result{}, diagnostic.StructuralAt(ctx.CurrentFrame().Graph, int(ctx.Old.Vertex), "call to unknown graph %q", in.CalleeGraph)
	}
	next.Old.Vertex = callee.Entry
	next.New.Vertex = callee.Entry
	return Result{Outcome: Continuing, Successors: []*Context{next}}, nil
}

func containsChange(expr ir.Expr) bool {
	switch n := expr.(type) {
	case *ir.ChangeExpr:
		return true
	case *ir.BinaryExpr:
		return containsChange(n.Left) || containsChange(n.Right)
	case *ir.UnaryExpr:
		return containsChange(n.Operand)
	case *ir.CastExpr:
		return containsChange(n.Operand)
	case *ir.PhiExpr:
		return containsChange(n.Guard) || containsChange(n.Then) || containsChange(n.Else)
	default:
		return false
	}
}

func literal(f *smt.Facade, v eval.Value) smt.Term {
	if v.Type == ir.BooleanType {
		return f.MakeBooleanValue(v.Bool)
	}
	return f.MakeIntegerValue(v.Int)
}

// ProjectProgram rewrites every instruction's expression fields across every
// graph in program, replacing `change(old, new)` with its Old or New side,
// used to run Mode Old/New/None against the ordinary (non-shadow)
// exec.Executor.
func ProjectProgram(program *ir.Program, branch Mode) (*ir.Program, error) {
	graphs := make([]*ir.Graph, 0, len(program.Graphs))
	for _, g := range program.Graphs {
		graphs = append(graphs, projectGraph(g, branch))
	}
	return ir.NewProgram(graphs)
}

func projectGraph(g *ir.Graph, branch Mode) *ir.Graph {
	instructions := make(map[ir.Label]ir.Instr, len(g.Instructions))
	for label, instr := range g.Instructions {
		switch in := instr.(type) {
		case *ir.AssignInstr:
			instructions[label] = &ir.AssignInstr{Lhs: in.Lhs, Expr: Project(in.Expr, branch), Goto: in.Goto, ParamKind: in.ParamKind}
		case *ir.IfInstr:
			instructions[label] = &ir.IfInstr{Cond: Project(in.Cond, branch), GotoTrue: in.GotoTrue, GotoFalse: in.GotoFalse}
		case *ir.WhileInstr:
			instructions[label] = &ir.WhileInstr{Cond: Project(in.Cond, branch), GotoBody: in.GotoBody, GotoExit: in.GotoExit}
		default:
			instructions[label] = instr
		}
	}
	return &ir.Graph{Name: g.Name, Kind: g.Kind, Entry: g.Entry, Exit: g.Exit, Interface: g.Interface, Instructions: instructions}
}
