// SPDX-License-Identifier: Apache-2.0

// Package engine implements the Engine loop (C9): the driving
// fetch-dispatch-merge cycle over the Explorer's worklist, selecting the
// Executor/Merger flavor pairing from configuration (§6.2 engine_mode) and
// enforcing the cycle-bound, time-out, and coverage-based termination
// criteria.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stflow/config"
	"stflow/diagnostic"
	"stflow/explore"
	"stflow/ir"
	"stflow/logging"
	"stflow/merge"
	"stflow/shadow"
	"stflow/smt"
	"stflow/state"
	"stflow/util/randvalue"

	"stflow/exec"
)

// Report is the outcome of a completed (or budget-terminated) run: the
// contexts that reached a terminal cycle bound, the final coverage
// snapshot, and the non-fatal diagnostics accumulated along the way,
// aggregated with errors.Join exactly as the ambient error-handling
// convention requires (one error value, inspectable with errors.Is/As,
// rather than a side channel of warnings).
type Report struct {
	Terminated        []*state.Context
	StatementCoverage int
	BranchCoverage    int
	TotalStatements   int
	Cycles            int
	Diagnostics       error
}

// Engine ties the components together and drives exploration.
type Engine struct {
	Program  *ir.Program
	Config   config.Config
	Facade   *smt.Facade
	Executor *exec.Executor
	Merger   *merge.Merger
	Worklist *explore.Worklist
	Coverage *explore.Coverage

	// ShadowExecutor is non-nil only under ModeShadow with
	// shadow_processing_mode "both" (§4.6, §6.2): Run then drives
	// shadowQueue with it instead of Executor, handing each
	// ForkedOnDivergence off to a dedicated old/new queue the moment old and
	// new disagree on control flow. OldExecutor/NewExecutor run the program
	// as ProjectProgram(program, Old/New) rewrote it, since the shared
	// instruction stream's remaining `change` expressions are otherwise
	// unencodable outside shadow execution (eval/encode both reject
	// ir.ChangeExpr) — a forked-off side must keep following its own
	// projection for whatever's left of the cycle, not the raw program.
	ShadowExecutor *shadow.Executor
	OldExecutor    *exec.Executor
	NewExecutor    *exec.Executor
	shadowQueue    []*shadow.Context
	oldQueue       []*state.Context
	newQueue       []*state.Context

	// unreachableLabels/unreachableBranches back the over-approximating
	// flavor's worklist pruning (§6.2 unreachable_labels/unreachable_branches,
	// supplemented feature); both nil outside ModeOverApproximating.
	unreachableLabels   map[string]bool
	unreachableBranches map[string]bool
}

// New constructs an Engine ready to Run, building its initial context from
// the program's entry graph interface (§3 "Initial context").
func New(program *ir.Program, cfg config.Config) (*Engine, error) {
	facade := smt.NewFacade(cfg.Seed)
	rnd := randvalue.NewSource(cfg.Seed)

	flavor := exec.ForkFlavor
	if cfg.EngineMode == config.ModeCBMC {
		flavor = exec.CBMCFlavor
	}

	var shadowExecutor *shadow.Executor
	var oldExecutor, newExecutor *exec.Executor
	if cfg.EngineMode == config.ModeShadow {
		switch cfg.ShadowProcessingMode {
		case config.ShadowBoth:
			shadowExecutor = shadow.New(program, facade)
			oldProgram, err := shadow.ProjectProgram(program, shadow.Old)
			if err != nil {
				return nil, err
			}
			newProgram, err := shadow.ProjectProgram(program, shadow.New)
			if err != nil {
				return nil, err
			}
			oldExecutor = exec.New(oldProgram, facade, rnd, flavor, nil)
			newExecutor = exec.New(newProgram, facade, rnd, flavor, nil)
		case config.ShadowOld:
			projected, err := shadow.ProjectProgram(program, shadow.Old)
			if err != nil {
				return nil, err
			}
			program = projected
		case config.ShadowNew:
			projected, err := shadow.ProjectProgram(program, shadow.New)
			if err != nil {
				return nil, err
			}
			program = projected
		default:
			projected, err := shadow.ProjectProgram(program, shadow.None)
			if err != nil {
				return nil, err
			}
			program = projected
		}
	}

	executor := exec.New(program, facade, rnd, flavor, nil)

	policy := merge.OnlyAtCycleEnd
	if cfg.MergeStrategy == config.MergeAtAllJoinPoints {
		policy = merge.AtAllJoinPoints
	}
	merger := merge.New(facade, policy)

	heuristic := explore.DepthFirst
	if cfg.ExplorationHeuristic == config.HeuristicBreadthFirst {
		heuristic = explore.BreadthFirst
	}
	worklist := explore.New(heuristic)

	e := &Engine{
		Program:        program,
		Config:         cfg,
		Facade:         facade,
		Executor:       executor,
		Merger:         merger,
		Worklist:       worklist,
		Coverage:       explore.NewCoverage(),
		ShadowExecutor: shadowExecutor,
		OldExecutor:    oldExecutor,
		NewExecutor:    newExecutor,
	}

	if cfg.EngineMode == config.ModeOverApproximating {
		e.unreachableLabels = locationSet(cfg.UnreachableLabels)
		e.unreachableBranches = locationSet(cfg.UnreachableBranches)
	}

	if shadowExecutor != nil {
		initial, err := e.initialShadowContext()
		if err != nil {
			return nil, err
		}
		e.shadowQueue = append(e.shadowQueue, initial)
		return e, nil
	}

	initial, err := e.initialContext()
	if err != nil {
		return nil, err
	}
	worklist.Push(initial)
	return e, nil
}

// locationSet builds a membership set out of a list of "Graph:Label"
// strings (§6.2 unreachable_labels/unreachable_branches).
func locationSet(locations []string) map[string]bool {
	if len(locations) == 0 {
		return nil
	}
	m := make(map[string]bool, len(locations))
	for _, l := range locations {
		m[l] = true
	}
	return m
}

func locationKey(graph string, vertex ir.Label) string {
	return fmt.Sprintf("%s:%d", graph, vertex)
}

// hintedUnreachable reports whether the over-approximating flavor's
// configuration hints mark graph/vertex as unreachable.
func (e *Engine) hintedUnreachable(graph string, vertex ir.Label) bool {
	key := locationKey(graph, vertex)
	return e.unreachableLabels[key] || e.unreachableBranches[key]
}

// initialContext binds every flattened interface entry of the entry graph
// to its initializer (or default, or a fresh symbol for whole-program
// inputs) at cycle 0, version 0 (§3 "Initial context").
func (e *Engine) initialContext() (*state.Context, error) {
	entryGraph, ok := e.Program.Graphs[e.Program.Entry]
	if !ok {
		return nil, diagnostic.Structural(e.Program.Entry, "engine: missing entry graph")
	}

	concrete := state.NewStore()
	symbolic := state.NewStore()
	versions := state.NewVersionMap()

	for _, entry := range entryGraph.Interface {
		name := state.Contextualize(entry.Name, 0, 0)
		sort := smt.IntSort
		if entry.DataType == ir.Boolean {
			sort = smt.BoolSort
		}
		if entry.StorageClass == ir.Input {
			symbolic = symbolic.With(name, e.Facade.MakeConstant(name, sort))
			concrete = concrete.With(name, e.Facade.MakeRandomValue(entry.DataType, 0))
			continue
		}
		var value smt.Term
		if entry.HasInitializer {
			value = e.Facade.MakeValue(entry.Initializer)
		} else {
			value = e.Facade.MakeDefaultValue(entry.DataType)
		}
		concrete = concrete.With(name, value)
		symbolic = symbolic.With(name, value)
	}

	return &state.Context{
		Cycle: 0,
		State: &state.State{
			Vertex:   entryGraph.Entry,
			Concrete: concrete,
			Symbolic: symbolic,
			Versions: versions,
		},
		CallStack: []state.Frame{{Graph: e.Program.Entry, ScopePrefix: e.Program.Entry}},
	}, nil
}

// initialShadowContext builds the shadow counterpart of initialContext: old
// and new start out identically bound, since divergence can only appear
// once a `change` assignment's two projections actually differ (§4.6).
func (e *Engine) initialShadowContext() (*shadow.Context, error) {
	oldSide, err := e.initialContext()
	if err != nil {
		return nil, err
	}
	newSide, err := e.initialContext()
	if err != nil {
		return nil, err
	}
	return &shadow.Context{Cycle: 0, Old: oldSide.State, New: newSide.State, CallStack: oldSide.CallStack}, nil
}

// Run drives the worklist to exhaustion or until a termination criterion
// fires: cycle_bound, the ctx deadline/cancellation (time_out, a
// supplemented feature beyond the distilled spec, surfaced the idiomatic Go
// way via context.Context rather than a bespoke timer), or statement
// coverage within epsilon 0.01 of every known statement (§6.2); the
// coverage check ends the loop only once the Worklist and the shadow, old
// and new queues are all empty. Under ModeShadow with
// shadow_processing_mode "both", Run first drives the shadow queue via
// runShadowStep; a divergent fork hands its two sides off to the
// independent oldQueue/newQueue, each driven by runSideStep against that
// side's own projected-program executor until the ordinary Worklist loop
// below finally empties every queue.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	total := e.totalStatements()
	var terminated []*state.Context
	var diagnostics error
	cycles := 0

	for {
		select {
		case <-ctx.Done():
			logging.L.Info().Err(ctx.Err()).Log("exploration stopped: time budget exhausted")
			return e.report(terminated, diagnostics, total, cycles), nil
		default:
		}

		if e.ShadowExecutor != nil && len(e.shadowQueue) > 0 {
			last := len(e.shadowQueue) - 1
			shadowCtx := e.shadowQueue[last]
			e.shadowQueue = e.shadowQueue[:last]

			if err := e.runShadowStep(shadowCtx, &cycles, &terminated); err != nil {
				var diag *diagnostic.Error
				if errors.As(err, &diag) && diag.Kind == diagnostic.KindSolver {
					diagnostics = errors.Join(diagnostics, diag)
					continue
				}
				return nil, err
			}
			continue
		}

		if len(e.oldQueue) > 0 {
			if err := e.runSideStep(e.OldExecutor, &e.oldQueue, &cycles, &terminated); err != nil {
				var diag *diagnostic.Error
				if errors.As(err, &diag) && diag.Kind == diagnostic.KindSolver {
					diagnostics = errors.Join(diagnostics, diag)
					continue
				}
				return nil, err
			}
			continue
		}

		if len(e.newQueue) > 0 {
			if err := e.runSideStep(e.NewExecutor, &e.newQueue, &cycles, &terminated); err != nil {
				var diag *diagnostic.Error
				if errors.As(err, &diag) && diag.Kind == diagnostic.KindSolver {
					diagnostics = errors.Join(diagnostics, diag)
					continue
				}
				return nil, err
			}
			continue
		}

		current, ok := e.Worklist.Pop()
		if !ok {
			flushed, err := e.Merger.Flush()
			if err != nil {
				return nil, err
			}
			if len(flushed) == 0 {
				break
			}
			e.Worklist.Push(flushed...)
			continue
		}

		if e.Coverage.VisitStatement(current.CurrentFrame().Graph, current.State.Vertex) {
			if explore.Ratio(e.Coverage.StatementCount(), total) >= 1-0.01 {
				logging.L.Debug().Log("coverage termination criterion reached")
			}
		}

		result, err := e.Executor.Step(current)
		if err != nil {
			var diag *diagnostic.Error
			if errors.As(err, &diag) && diag.Kind == diagnostic.KindSolver {
				diagnostics = errors.Join(diagnostics, diag)
				continue
			}
			return nil, err
		}

		if result.Outcome == exec.Continuing {
			e.recordBranchCoverage(current, result.Successors)
		}

		switch result.Outcome {
		case exec.Infeasible:
			continue
		case exec.CycleEnded:
			cycles++
			sole := result.Successors[0]
			if e.Config.CycleBound > 0 && sole.Cycle+1 >= e.Config.CycleBound {
				terminated = append(terminated, sole)
				continue
			}
			flushed, err := e.Merger.Flush()
			if err != nil {
				return nil, err
			}
			for _, c := range flushed {
				advanced, err := e.Executor.AdvanceCycle(c)
				if err != nil {
					return nil, err
				}
				e.Worklist.Push(advanced)
			}
			advanced, err := e.Executor.AdvanceCycle(sole)
			if err != nil {
				return nil, err
			}
			e.Worklist.Push(advanced)
		default:
			e.offer(result.Successors)
		}

		if explore.Ratio(e.Coverage.StatementCount(), total) >= 1-0.01 &&
			e.Worklist.Len() == 0 && len(e.shadowQueue) == 0 && len(e.oldQueue) == 0 && len(e.newQueue) == 0 {
			break
		}
	}

	return e.report(terminated, diagnostics, total, cycles), nil
}

// recordBranchCoverage marks every target a branch instruction's successors
// reached as covered (§4.4). current.State.Vertex is the branch instruction
// the step just dispatched from.
func (e *Engine) recordBranchCoverage(current *state.Context, successors []*state.Context) {
	graph := current.CurrentFrame().Graph
	g, ok := e.Program.Graphs[graph]
	if !ok {
		return
	}
	switch g.Instructions[current.State.Vertex].(type) {
	case *ir.IfInstr, *ir.WhileInstr:
		for _, succ := range successors {
			e.Coverage.VisitBranch(graph, succ.State.Vertex)
		}
	}
}

// runShadowStep advances one shadow context by a single shadow Step,
// re-queuing it (Continuing), advancing and re-queuing it at the next cycle
// or terminating it (CycleEnded), or handing its two sides off to oldQueue
// and newQueue (ForkedOnDivergence, §4.6).
func (e *Engine) runShadowStep(shadowCtx *shadow.Context, cycles *int, terminated *[]*state.Context) error {
	graph := shadowCtx.CurrentFrame().Graph
	e.Coverage.VisitStatement(graph, shadowCtx.Old.Vertex)

	result, err := e.ShadowExecutor.Step(shadowCtx)
	if err != nil {
		return err
	}

	switch result.Outcome {
	case shadow.CycleEnded:
		*cycles = *cycles + 1
		sole := result.Successors[0]
		if e.Config.CycleBound > 0 && sole.Cycle+1 >= e.Config.CycleBound {
			*terminated = append(*terminated, sole.AsOldContext(), sole.AsNewContext())
			return nil
		}
		oldCtx, err := e.OldExecutor.AdvanceCycle(sole.AsOldContext())
		if err != nil {
			return err
		}
		newCtx, err := e.NewExecutor.AdvanceCycle(sole.AsNewContext())
		if err != nil {
			return err
		}
		advanced := &shadow.Context{Cycle: oldCtx.Cycle, Old: oldCtx.State, New: newCtx.State, CallStack: oldCtx.CallStack}
		e.shadowQueue = append(e.shadowQueue, advanced)
		return nil
	case shadow.ForkedOnDivergence:
		logging.L.Info().Str("graph", graph).Log("shadow context forked into independent old/new queues on divergence")
		e.oldQueue = append(e.oldQueue, result.Forked[0])
		e.newQueue = append(e.newQueue, result.Forked[1])
		return nil
	default:
		e.shadowQueue = append(e.shadowQueue, result.Successors...)
		return nil
	}
}

// runSideStep advances one context belonging to a forked-off old/new line
// (§4.6) using that line's own projected-program executor, re-queuing its
// continuation or terminating it at the cycle bound exactly as the ordinary
// Worklist loop does, minus merging: once old and new have diverged in
// control flow there is no join point shared between the two lines to merge
// at, so each line runs to its own termination independently.
func (e *Engine) runSideStep(executor *exec.Executor, queue *[]*state.Context, cycles *int, terminated *[]*state.Context) error {
	last := len(*queue) - 1
	current := (*queue)[last]
	*queue = (*queue)[:last]

	e.Coverage.VisitStatement(current.CurrentFrame().Graph, current.State.Vertex)

	result, err := executor.Step(current)
	if err != nil {
		return err
	}

	if result.Outcome == exec.Continuing {
		e.recordBranchCoverage(current, result.Successors)
	}

	switch result.Outcome {
	case exec.Infeasible:
		return nil
	case exec.CycleEnded:
		*cycles = *cycles + 1
		sole := result.Successors[0]
		if e.Config.CycleBound > 0 && sole.Cycle+1 >= e.Config.CycleBound {
			*terminated = append(*terminated, sole)
			return nil
		}
		advanced, err := executor.AdvanceCycle(sole)
		if err != nil {
			return err
		}
		*queue = append(*queue, advanced)
		return nil
	default:
		*queue = append(*queue, result.Successors...)
		return nil
	}
}

// offer routes successor contexts onto the Worklist. Under AtAllJoinPoints
// each successor goes through Merger.Offer and whatever the Merger hands
// back is pushed; under OnlyAtCycleEnd successors are pushed directly and
// never reach the Merger, so no contexts are merged under that policy. Under
// ModeOverApproximating, a successor hinted unreachable by configuration is
// pruned here rather than pushed (§6.2 unreachable_labels/unreachable_branches).
func (e *Engine) offer(successors []*state.Context) {
	for _, c := range successors {
		if e.hintedUnreachable(c.CurrentFrame().Graph, c.State.Vertex) {
			logging.L.Debug().Str("graph", c.CurrentFrame().Graph).Int("vertex", int(c.State.Vertex)).
				Log("pruning worklist entry hinted unreachable by configuration")
			continue
		}
		if e.Merger.Policy == merge.AtAllJoinPoints {
			merged, err := e.Merger.Offer(c)
			if err != nil {
				logging.L.Warning().Err(err).Log("merge failed, keeping contexts unmerged")
				e.Worklist.Push(c)
				continue
			}
			e.Worklist.Push(merged...)
			continue
		}
		e.Worklist.Push(c)
	}
}

func (e *Engine) totalStatements() int {
	total := 0
	for _, g := range e.Program.Graphs {
		total += len(g.Instructions)
	}
	return total
}

func (e *Engine) report(terminated []*state.Context, diagnostics error, total, cycles int) *Report {
	return &Report{
		Terminated:        terminated,
		StatementCoverage: e.Coverage.StatementCount(),
		BranchCoverage:    e.Coverage.BranchCount(),
		TotalStatements:   total,
		Cycles:            cycles,
		Diagnostics:       diagnostics,
	}
}

// WithTimeout is a convenience wrapper around context.WithTimeout for
// callers driving Run from a config.Duration (§6.2 time_out).
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, d)
}
