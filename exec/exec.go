// SPDX-License-Identifier: Apache-2.0

// Package exec implements the Executor (C6): per-instruction dispatch over
// a context, producing the successor context(s) reached by executing the
// instruction at the context's current vertex (§4.3). Assign and havoc
// advance a single context; if/while may fork into up to two; call pushes a
// frame; reaching a callee's exit pops one; reaching the entry graph's exit
// at call-stack depth one signals the end of a cycle, left for the Engine
// (C9) to advance via AdvanceCycle.
package exec

import (
	"fmt"

	"stflow/diagnostic"
	"stflow/encode"
	"stflow/eval"
	"stflow/ir"
	"stflow/logging"
	"stflow/smt"
	"stflow/state"
	"stflow/util/randvalue"
)

// Flavor selects the alternative state representations the Executor must
// choose between at a data-dependent branch (§4.3, §6.2 engine_mode).
type Flavor int

const (
	// ForkFlavor forks into independent per-branch contexts, each carrying
	// its own extended path constraint. Baseline, over-approximating, and
	// compositional engine modes all execute this way; they differ only in
	// what the Engine does around the Executor (over-approximating prunes
	// successors hinted unreachable), not in how the Executor forks them.
	ForkFlavor Flavor = iota
	// CBMCFlavor records branches as guarded assumption literals in the
	// context's AssumptionGraph instead of growing the path constraint,
	// matching §4.3 "CBMC-style flavor (alternative)".
	CBMCFlavor
)

// Executor dispatches instructions against contexts.
type Executor struct {
	Program  *ir.Program
	Facade   *smt.Facade
	Encoder  *encode.Encoder
	Eval     *eval.Evaluator
	Rand     *randvalue.Source
	Flavor   Flavor
	Cardinality func(graph, name string) int
}

// New builds an Executor. cardinality resolves the enumerated-type domain
// size for a flattened name, used for havoc/random-value generation; pass
// nil to always use cardinality 0 (no enumerated types in play).
func New(program *ir.Program, facade *smt.Facade, rnd *randvalue.Source, flavor Flavor, cardinality func(graph, name string) int) *Executor {
	if cardinality == nil {
		cardinality = func(string, string) int { return 0 }
	}
	return &Executor{
		Program:     program,
		Facade:      facade,
		Encoder:     encode.New(facade),
		Eval:        eval.New(),
		Rand:        rnd,
		Flavor:      flavor,
		Cardinality: cardinality,
	}
}

// StepOutcome classifies what Step produced.
type StepOutcome int

const (
	// Continuing means Successors holds one or more live contexts still
	// within the current cycle.
	Continuing StepOutcome = iota
	// CycleEnded means the (sole) successor reached the entry graph's exit
	// at call-stack depth one; the Engine must call AdvanceCycle on it.
	CycleEnded
	// Infeasible means every branch of a fork was unsatisfiable: the
	// context is pruned with no successors (§4.3 "neither branch is
	// satisfiable").
	Infeasible
)

// StepResult is the outcome of executing one instruction.
type StepResult struct {
	Outcome     StepOutcome
	Successors  []*state.Context
}

// Step executes the instruction at ctx's current vertex and returns the
// resulting successor context(s).
func (x *Executor) Step(ctx *state.Context) (StepResult, error) {
	frame := ctx.CurrentFrame()
	graph, ok := x.Program.Graphs[frame.Graph]
	if !ok {
		return StepResult{}, diagnostic.Structural(frame.Graph, "executor: unknown graph")
	}

	if ctx.State.Vertex == graph.Exit {
		if len(ctx.CallStack) > 1 {
			return StepResult{Outcome: Continuing, Successors: []*state.Context{ctx.PopFrame()}}, nil
		}
		return StepResult{Outcome: CycleEnded, Successors: []*state.Context{ctx}}, nil
	}

	instr, ok := graph.Instructions[ctx.State.Vertex]
	if !ok {
		return StepResult{}, diagnostic.StructuralAt(frame.Graph, int(ctx.State.Vertex), "no instruction at vertex")
	}

	switch in := instr.(type) {
	case *ir.AssignInstr:
		return x.dispatchAssign(ctx, graph.Name, in)
	case *ir.HavocInstr:
		return x.dispatchHavoc(ctx, graph.Name, in)
	case *ir.GotoInstr:
		next := ctx.Clone()
		next.State.Vertex = in.Target
		return StepResult{Outcome: Continuing, Successors: []*state.Context{next}}, nil
	case *ir.IfInstr:
		return x.dispatchBranch(ctx, graph.Name, in.Cond, in.GotoTrue, in.GotoFalse)
	case *ir.WhileInstr:
		return x.dispatchBranch(ctx, graph.Name, in.Cond, in.GotoBody, in.GotoExit)
	case *ir.CallInstr:
		return x.dispatchCall(ctx, graph.Name, in)
	default:
		return StepResult{}, diagnostic.Structural(graph.Name, "executor: unknown instruction kind %T", instr)
	}
}

// dispatchAssign handles the explicit `nondet()` RHS shape (§9 open
// question: treated as an implicit havoc) and ordinary assigns uniformly.
func (x *Executor) dispatchAssign(ctx *state.Context, graph string, in *ir.AssignInstr) (StepResult, error) {
	if nondet, ok := in.Expr.(ir.NondeterministicConstant); ok {
		return x.havoc(ctx, graph, in.Lhs, nondet.DataType, in.Goto)
	}

	qualified := ctx.Qualify(in.Lhs)
	term, err := x.Encoder.Encode(ctx, graph, in.Expr)
	if err != nil {
		return StepResult{}, err
	}
	value, err := x.Eval.Eval(ctx, graph, in.Expr)
	if err != nil {
		return StepResult{}, err
	}

	next := ctx.Clone()
	versions, version := next.State.Versions.Bump(qualified)
	next.State.Versions = versions
	name := state.Contextualize(qualified, version, next.Cycle)
	next.State.Symbolic = next.State.Symbolic.With(name, term)
	next.State.Concrete = next.State.Concrete.With(name, concreteLiteral(x.Facade, value))
	next.State.Vertex = in.Goto
	return StepResult{Outcome: Continuing, Successors: []*state.Context{next}}, nil
}

func (x *Executor) dispatchHavoc(ctx *state.Context, graph string, in *ir.HavocInstr) (StepResult, error) {
	return x.havoc(ctx, graph, in.Lhs, in.Type, in.Goto)
}

// havoc binds an unconstrained value: a fresh free symbol in the symbolic
// store, and a deterministically-random concrete value, matching the
// "don't care" random-valuation policy (§4.1). The fresh symbol is never
// reused across havocs of the same name: each bump of the version counter
// yields a distinct contextualized name, and MakeConstant interns strictly
// by that name, so successive havocs never alias.
func (x *Executor) havoc(ctx *state.Context, graph string, lhs string, dt ir.DataType, goto_ ir.Label) (StepResult, error) {
	qualified := ctx.Qualify(lhs)
	next := ctx.Clone()
	versions, version := next.State.Versions.Bump(qualified)
	next.State.Versions = versions
	name := state.Contextualize(qualified, version, next.Cycle)

	sort := smt.IntSort
	if dt == ir.Boolean {
		sort = smt.BoolSort
	}
	sym := x.Facade.MakeConstant(name, sort)
	next.State.Symbolic = next.State.Symbolic.With(name, sym)
	next.State.Concrete = next.State.Concrete.With(name, x.Facade.MakeRandomValue(dt, x.Cardinality(graph, qualified)))
	next.State.Vertex = goto_
	return StepResult{Outcome: Continuing, Successors: []*state.Context{next}}, nil
}

// dispatchBranch implements the shared if/while forking logic (§4.3
// "while ... Identical to if"). The antivalent fast path (a supplemented
// feature beyond the distilled spec) skips the solver call entirely when
// the condition encodes to a literal, since the branch taken is then
// already fully determined and checking satisfiability would only ever
// confirm what folding already proved.
//
// Otherwise cond is additionally evaluated concretely (§4.3 Tie-break
// rule): the branch that evaluation already picks is "concretely-implied"
// and keeps the parent's concrete store completely untouched, while the
// other, forked branch needs a fresh concrete witness for its own,
// differently-constrained path, obtained from tryBranch's model.
func (x *Executor) dispatchBranch(ctx *state.Context, graph string, cond ir.Expr, gotoTrue, gotoFalse ir.Label) (StepResult, error) {
	term, err := x.Encoder.Encode(ctx, graph, cond)
	if err != nil {
		return StepResult{}, err
	}

	if lit, ok := term.(*smt.BoolLit); ok {
		next := ctx.Clone()
		if lit.Value {
			next.State.Vertex = gotoTrue
		} else {
			next.State.Vertex = gotoFalse
		}
		return StepResult{Outcome: Continuing, Successors: []*state.Context{next}}, nil
	}

	concrete, err := x.Eval.Eval(ctx, graph, cond)
	if err != nil {
		return StepResult{}, err
	}
	concreteTrue := concrete.AsBool()

	trueCtx, trueOK, err := x.tryBranch(ctx, graph, term, true, gotoTrue, concreteTrue)
	if err != nil {
		return StepResult{}, err
	}
	falseCtx, falseOK, err := x.tryBranch(ctx, graph, term, false, gotoFalse, !concreteTrue)
	if err != nil {
		return StepResult{}, err
	}

	var successors []*state.Context
	if trueOK {
		successors = append(successors, trueCtx)
	}
	if falseOK {
		successors = append(successors, falseCtx)
	}
	if len(successors) == 0 {
		logging.L.Debug().Str("graph", graph).Int("vertex", int(ctx.State.Vertex)).
			Log("neither branch satisfiable, pruning context")
		return StepResult{Outcome: Infeasible}, nil
	}
	return StepResult{Outcome: Continuing, Successors: successors}, nil
}

// tryBranch checks whether taking one branch keeps the path constraint
// satisfiable and, if so, builds the resulting context. concretelyImplied
// marks the branch the concrete store already agrees with: that context's
// concrete store is left exactly as the parent's (I4, §8); the other
// branch's concrete store is rewritten only at the contextualized names
// the model actually disagrees with the parent on, preserving every other
// "don't care" binding (§4.1, §4.3 Tie-break rule).
func (x *Executor) tryBranch(ctx *state.Context, graph string, cond smt.Term, takeTrue bool, target ir.Label, concretelyImplied bool) (*state.Context, bool, error) {
	guard := cond
	if !takeTrue {
		guard = x.Facade.Not(cond)
	}

	if x.Flavor == CBMCFlavor {
		return x.tryBranchCBMC(ctx, graph, guard, target, concretelyImplied)
	}

	exprs := append(append([]smt.Term(nil), ctx.State.PathConstraint...), guard)
	result, model := x.Facade.Check(exprs)
	if result == smt.Unknown {
		return nil, false, diagnostic.Solver(graph, int(ctx.State.Vertex), fmt.Errorf("branch satisfiability is unknown"))
	}
	if result != smt.Sat {
		return nil, false, nil
	}

	next := ctx.Clone()
	next.State.PathConstraint = exprs
	next.State.Vertex = target
	if !concretelyImplied {
		next.State.Concrete = x.applyModel(next.State.Concrete, model, x.Facade.FreeSymbols(exprs...))
	}
	return next, true, nil
}

// tryBranchCBMC records the branch as a fresh assumption literal instead of
// growing the path constraint (§4.3 CBMC-style flavor). The literal name is
// derived deterministically from the branch's location so that re-deriving
// the same branch on an identical context always yields the same literal,
// matching the engine's need for reproducible runs. Satisfiability itself
// is deferred to the assumption graph (no Check call gates forking), but
// the forked branch still needs a concrete witness honoring the Tie-break
// rule, so a best-effort Check is made solely to harvest a model; an
// unsatisfiable or unknown result here leaves the concrete store
// untouched, since the assumption graph will account for infeasibility
// later regardless.
func (x *Executor) tryBranchCBMC(ctx *state.Context, graph string, guard smt.Term, target ir.Label, concretelyImplied bool) (*state.Context, bool, error) {
	literal := fmt.Sprintf("%s:%d@%d", graph, target, ctx.Cycle)

	next := ctx.Clone()
	if next.State.Assumptions == nil {
		next.State.Assumptions = state.NewAssumptionGraph()
	}
	predecessors := assumptionPredecessors(ctx.State.Assumptions)
	next.State.Assumptions = next.State.Assumptions.AddLiteral(literal, predecessors, guard, nil)
	next.State.Vertex = target

	if !concretelyImplied {
		exprs := append(append([]smt.Term(nil), ctx.State.PathConstraint...), guard)
		if result, model := x.Facade.Check(exprs); result == smt.Sat {
			next.State.Concrete = x.applyModel(next.State.Concrete, model, x.Facade.FreeSymbols(exprs...))
		}
	}
	return next, true, nil
}

// applyModel rewrites store at exactly the symbols whose model value
// disagrees with what store already holds, leaving every other "don't
// care" binding untouched (§4.1's don't-care preservation rule).
func (x *Executor) applyModel(store *state.Store, model smt.Model, symbols []*smt.Symbol) *state.Store {
	for _, sym := range symbols {
		modelValue, ok := model[sym.Name]
		if !ok {
			continue
		}
		if current, ok := store.Get(sym.Name); ok {
			if currentValue, ok := concreteInt(current); ok && currentValue == modelValue {
				continue
			}
		}
		store = store.With(sym.Name, literalFromModelValue(x.Facade, sym.Sort(), modelValue))
	}
	return store
}

// concreteInt decodes a literal term's value the same way smt.Model values
// are encoded (booleans as 0/1), so it can be compared against a model
// value directly.
func concreteInt(term smt.Term) (int, bool) {
	switch t := term.(type) {
	case *smt.IntLit:
		return t.Value, true
	case *smt.BoolLit:
		if t.Value {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func literalFromModelValue(f *smt.Facade, sort smt.Sort, value int) smt.Term {
	if sort == smt.BoolSort {
		return f.MakeBooleanValue(value != 0)
	}
	return f.MakeIntegerValue(value)
}

// assumptionPredecessors collects every literal already recorded in g, used
// as the predecessor set for the next literal added (§4.3).
func assumptionPredecessors(g *state.AssumptionGraph) []string {
	if g == nil {
		return nil
	}
	var out []string
	g.Predecessors.OrderedRange(func(literal string, _ []string) bool {
		out = append(out, literal)
		return true
	})
	return out
}

// dispatchCall pushes a frame for the callee; parameter coupling (in/out)
// is carried entirely by ordinary ParamIn/ParamOut-tagged assigns already
// present in the caller/callee instruction streams, so the call itself is
// pure control flow (§4.3 "call(x)").
func (x *Executor) dispatchCall(ctx *state.Context, graph string, in *ir.CallInstr) (StepResult, error) {
	callee, ok := x.Program.Graphs[in.CalleeGraph]
	if !ok {
		return StepResult{}, diagnostic.StructuralAt(graph, int(ctx.State.Vertex), "call to unknown graph %q", in.CalleeGraph)
	}
	frame := state.Frame{
		Graph:       in.CalleeGraph,
		ScopePrefix: ctx.Qualify(in.CalleeAccess),
		ReturnLabel: in.GotoIntra,
	}
	next := ctx.PushFrame(frame, callee.Entry)
	return StepResult{Outcome: Continuing, Successors: []*state.Context{next}}, nil
}

// AdvanceCycle moves a cycle-ended context into the next cycle: the vertex
// resets to the entry graph's Entry label, the cycle counter increments,
// and every whole-program input (an Input-class interface entry on the
// entry graph) receives a fresh symbol and a fresh random concrete value,
// matching §3 "Whole-program input... receives a fresh symbol at the start
// of every cycle".
func (x *Executor) AdvanceCycle(ctx *state.Context) (*state.Context, error) {
	entryGraph, ok := x.Program.Graphs[x.Program.Entry]
	if !ok {
		return nil, diagnostic.Structural(x.Program.Entry, "advance cycle: missing entry graph")
	}

	next := &state.Context{
		Cycle:     ctx.Cycle + 1,
		State:     ctx.State.Clone(),
		CallStack: []state.Frame{{Graph: x.Program.Entry, ScopePrefix: x.Program.Entry}},
	}
	next.State.Vertex = entryGraph.Entry

	for _, entry := range entryGraph.Interface {
		if entry.StorageClass != ir.Input {
			continue
		}
		versions, version := next.State.Versions.Bump(entry.Name)
		next.State.Versions = versions
		name := state.Contextualize(entry.Name, version, next.Cycle)
		sort := smt.IntSort
		if entry.DataType == ir.Boolean {
			sort = smt.BoolSort
		}
		sym := x.Facade.MakeConstant(name, sort)
		next.State.Symbolic = next.State.Symbolic.With(name, sym)
		next.State.Concrete = next.State.Concrete.With(name, x.Facade.MakeRandomValue(entry.DataType, x.Cardinality(x.Program.Entry, entry.Name)))
	}
	return next, nil
}

func concreteLiteral(f *smt.Facade, v eval.Value) smt.Term {
	if v.Type == ir.BooleanType {
		return f.MakeBooleanValue(v.Bool)
	}
	return f.MakeIntegerValue(v.Int)
}
