// SPDX-License-Identifier: Apache-2.0

package smt

import (
	"sort"

	"stflow/ir"
	"stflow/logging"
	"stflow/util/randvalue"
)

// Result is the outcome of a satisfiability check.
type Result int

const (
	Sat Result = iota
	Unsat
	Unknown
)

func (r Result) String() string {
	switch r {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return "unknown"
	}
}

// Model maps a free symbol's name to its concrete value, encoded uniformly
// as an int (0/1 for Bool-sorted symbols), exactly as a solver model would.
type Model map[string]int

// Facade is the process-wide SMT object (§9 "Global solver state"): it owns
// term identity assignment and the random source used for don't-care
// valuations. Contexts reference it by handle; terms it creates are cheap,
// immutable values safe to share across contexts (§5 "Shared resources").
type Facade struct {
	nextID  uint64
	symbols map[string]*Symbol
	rand    *randvalue.Source

	// maxSearchSymbols bounds the bounded decision procedure's search: a
	// Check or CheckUnderAssumptions call referencing more free symbols
	// than this returns Unknown rather than silently taking exponential
	// time, surfaced by callers as a KindSolver diagnostic (§7).
	maxSearchSymbols int
}

// NewFacade constructs a Facade. seed deterministically drives don't-care
// concrete valuations (§4.1 "Random valuations are deterministic given a
// fixed seed").
func NewFacade(seed int64) *Facade {
	return &Facade{
		symbols:          make(map[string]*Symbol),
		rand:             randvalue.NewSource(seed),
		maxSearchSymbols: 10,
	}
}

func (f *Facade) newID() uint64 {
	f.nextID++
	return f.nextID
}

// MakeBooleanValue builds a literal boolean term.
func (f *Facade) MakeBooleanValue(v bool) Term {
	return &BoolLit{base: base{id: f.newID(), s: BoolSort}, Value: v}
}

// MakeIntegerValue builds a literal integer term.
func (f *Facade) MakeIntegerValue(v int) Term {
	return &IntLit{base: base{id: f.newID(), s: IntSort}, Value: v}
}

// MakeDefaultValue builds the zero-like default value term for a data type.
func (f *Facade) MakeDefaultValue(dt ir.DataType) Term {
	if dt == ir.Boolean {
		return f.MakeBooleanValue(false)
	}
	return f.MakeIntegerValue(0)
}

// MakeRandomValue builds a deterministic random-but-fixed-seed value term
// for a data type, used to fill "don't care" concrete store entries after a
// model has specified the entries it actually constrains (§4.1). cardinality
// bounds Enumerated domains and is ignored for other data types.
func (f *Facade) MakeRandomValue(dt ir.DataType, cardinality int) Term {
	if dt == ir.Boolean {
		return f.MakeBooleanValue(f.rand.Bool())
	}
	return f.MakeIntegerValue(f.rand.Value(dt, cardinality))
}

// MakeValue builds the term for an ir.Constant.
func (f *Facade) MakeValue(c ir.Constant) Term {
	if c.DataType == ir.Boolean {
		return f.MakeBooleanValue(c.BoolValue)
	}
	return f.MakeIntegerValue(c.IntValue)
}

// MakeConstant returns the (interned) free symbol for a contextualized
// name. Repeated calls with the same name return the identical *Symbol
// value, which is what lets FreeSymbols' identity-keyed visited set and the
// shadow divergence check's term-ID comparison work.
func (f *Facade) MakeConstant(contextualizedName string, sort Sort) *Symbol {
	if s, ok := f.symbols[contextualizedName]; ok {
		return s
	}
	s := &Symbol{base: base{id: f.newID(), s: sort}, Name: contextualizedName}
	f.symbols[contextualizedName] = s
	return s
}

// Binary builds a binary term, folding away trivial identities the
// Encoder/Evaluator would otherwise hand the solver verbatim.
func (f *Facade) Binary(op Op, l, r Term) Term {
	s := BoolSort
	if op != OpAnd && op != OpOr && op != OpEq && op != OpNeq &&
		op != OpLt && op != OpLte && op != OpGt && op != OpGte {
		s = IntSort
	}
	return f.Simplify(&BinaryTerm{base: base{id: f.newID(), s: s}, Op: op, Left: l, Right: r})
}

// Not builds a boolean negation term.
func (f *Facade) Not(x Term) Term {
	return f.Simplify(&NotTerm{base: base{id: f.newID(), s: BoolSort}, Operand: x})
}

// Neg builds an arithmetic negation term.
func (f *Facade) Neg(x Term) Term {
	return f.Simplify(&NegTerm{base: base{id: f.newID(), s: IntSort}, Operand: x})
}

// Ite builds an if-then-else term, used by the Merger (§4.5).
func (f *Facade) Ite(cond, then, els Term) Term {
	if then.ID() == els.ID() {
		return then
	}
	return &IteTerm{base: base{id: f.newID(), s: then.Sort()}, Cond: cond, Then: then, Else: els}
}

// FreeSymbols walks term structurally, collecting the free symbols it
// references, deduplicated and visited via an identity-keyed set (§4.1
// "structural walk with visited bitset"). The returned slice is ordered by
// symbol name for determinism.
func (f *Facade) FreeSymbols(terms ...Term) []*Symbol {
	visited := make(map[uint64]bool)
	found := make(map[string]*Symbol)
	var walk func(t Term)
	walk = func(t Term) {
		if t == nil || visited[t.ID()] {
			return
		}
		visited[t.ID()] = true
		switch n := t.(type) {
		case *Symbol:
			found[n.Name] = n
		case *BinaryTerm:
			walk(n.Left)
			walk(n.Right)
		case *NotTerm:
			walk(n.Operand)
		case *NegTerm:
			walk(n.Operand)
		case *IteTerm:
			walk(n.Cond)
			walk(n.Then)
			walk(n.Else)
		}
	}
	for _, t := range terms {
		walk(t)
	}
	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Symbol, len(names))
	for i, name := range names {
		out[i] = found[name]
	}
	return out
}

// Substitute replaces every occurrence of the free symbol named `name` with
// replacement within t, recursively and with constant-folding. The shadow
// subsystem does not use it: it projects `change` expressions at the IR
// level (shadow.Project) before encoding.
func (f *Facade) Substitute(t Term, name string, replacement Term) Term {
	return f.SubstituteMap(t, map[string]Term{name: replacement})
}

// SubstituteMap replaces every free symbol named in repl with its mapped
// replacement, recursively and with constant-folding.
func (f *Facade) SubstituteMap(t Term, repl map[string]Term) Term {
	memo := make(map[uint64]Term)
	var walk func(t Term) Term
	walk = func(t Term) Term {
		if t == nil {
			return nil
		}
		if v, ok := memo[t.ID()]; ok {
			return v
		}
		var out Term
		switch n := t.(type) {
		case *Symbol:
			if r, ok := repl[n.Name]; ok {
				out = r
			} else {
				out = n
			}
		case *BinaryTerm:
			out = f.Binary(n.Op, walk(n.Left), walk(n.Right))
		case *NotTerm:
			out = f.Not(walk(n.Operand))
		case *NegTerm:
			out = f.Neg(walk(n.Operand))
		case *IteTerm:
			out = f.Ite(walk(n.Cond), walk(n.Then), walk(n.Else))
		default:
			out = t
		}
		memo[t.ID()] = out
		return out
	}
	return walk(t)
}

// Simplify performs constant-folding simplification on a single-level term
// constructor, called by Binary/Not/Neg/Substitute. It never recurses into
// already-simplified children; callers that need a whole-tree simplify pass
// use SubstituteMap with an empty map, which rebuilds every node through
// the smart constructors.
func (f *Facade) Simplify(t Term) Term {
	switch n := t.(type) {
	case *BinaryTerm:
		lb, lIsBool := n.Left.(*BoolLit)
		rb, rIsBool := n.Right.(*BoolLit)
		li, lIsInt := n.Left.(*IntLit)
		ri, rIsInt := n.Right.(*IntLit)
		if lIsInt && rIsInt {
			switch n.Op {
			case OpAdd:
				return f.MakeIntegerValue(li.Value + ri.Value)
			case OpSub:
				return f.MakeIntegerValue(li.Value - ri.Value)
			case OpMul:
				return f.MakeIntegerValue(li.Value * ri.Value)
			case OpEq:
				return f.MakeBooleanValue(li.Value == ri.Value)
			case OpNeq:
				return f.MakeBooleanValue(li.Value != ri.Value)
			case OpLt:
				return f.MakeBooleanValue(li.Value < ri.Value)
			case OpLte:
				return f.MakeBooleanValue(li.Value <= ri.Value)
			case OpGt:
				return f.MakeBooleanValue(li.Value > ri.Value)
			case OpGte:
				return f.MakeBooleanValue(li.Value >= ri.Value)
			}
		}
		if lIsBool && rIsBool {
			switch n.Op {
			case OpAnd:
				return f.MakeBooleanValue(lb.Value && rb.Value)
			case OpOr:
				return f.MakeBooleanValue(lb.Value || rb.Value)
			case OpEq:
				return f.MakeBooleanValue(lb.Value == rb.Value)
			case OpNeq:
				return f.MakeBooleanValue(lb.Value != rb.Value)
			}
		}
		// Short-circuit-free algebraic identities that are still always
		// safe to fold regardless of the other operand's satisfiability
		// (both sub-expressions are always encoded per §4.2, so folding
		// here never skips evaluating the other side at the caller).
		if n.Op == OpAnd {
			if lIsBool && !lb.Value {
				return n.Left
			}
			if rIsBool && !rb.Value {
				return n.Right
			}
		}
		if n.Op == OpOr {
			if lIsBool && lb.Value {
				return n.Left
			}
			if rIsBool && rb.Value {
				return n.Right
			}
		}
		return n
	case *NotTerm:
		if b, ok := n.Operand.(*BoolLit); ok {
			return f.MakeBooleanValue(!b.Value)
		}
		if inner, ok := n.Operand.(*NotTerm); ok {
			return inner.Operand
		}
		return n
	case *NegTerm:
		if i, ok := n.Operand.(*IntLit); ok {
			return f.MakeIntegerValue(-i.Value)
		}
		return n
	default:
		return t
	}
}

// Check determines satisfiability of the conjunction of exprs, returning a
// model when Sat. See CheckUnderAssumptions for the assumption-literal
// variant used by the CBMC-style flavor (§4.3).
func (f *Facade) Check(exprs []Term) (Result, Model) {
	res, model, _ := f.CheckUnderAssumptions(exprs, nil)
	return res, model
}

// CheckUnderAssumptions checks satisfiability of the conjunction of exprs
// plus every assumption literal (each additionally constrained to true),
// returning an unsat core (a subset of the assumption symbols sufficient to
// explain unsatisfiability) when the result is Unsat. If resolving
// satisfiability would require searching more free symbols than
// maxSearchSymbols allows, the result is Unknown (§7 "Solver: `unknown`
// return from the solver").
func (f *Facade) CheckUnderAssumptions(exprs []Term, assumptions []Term) (Result, Model, []Term) {
	all := make([]Term, 0, len(exprs)+len(assumptions))
	all = append(all, exprs...)
	all = append(all, assumptions...)

	syms := f.FreeSymbols(all...)
	if len(syms) > f.maxSearchSymbols {
		logging.L.Debug().Int("symbols", len(syms)).Int("limit", f.maxSearchSymbols).
			Log("check exceeds bounded search limit, returning unknown")
		return Unknown, nil, nil
	}

	domains := f.candidateDomains(all, syms)
	model, ok := search(all, syms, domains, Model{})
	if !ok {
		core := f.minimizeUnsatCore(exprs, assumptions, syms, domains)
		return Unsat, nil, core
	}
	return Sat, model, nil
}

// minimizeUnsatCore finds a (not necessarily minimum, but locally minimal)
// subset of assumptions whose conjunction with exprs is still unsat, via
// deletion-based minimization: an assumption is kept in the core if
// removing it alone flips the remaining set back to sat.
func (f *Facade) minimizeUnsatCore(exprs []Term, assumptions []Term, syms []*Symbol, domains map[string][]int) []Term {
	core := append([]Term(nil), assumptions...)
	for i := 0; i < len(core); {
		trial := append(append([]Term(nil), core[:i]...), core[i+1:]...)
		all := append(append([]Term(nil), exprs...), trial...)
		trialSyms := f.FreeSymbols(all...)
		if len(trialSyms) > f.maxSearchSymbols {
			i++
			continue
		}
		trialDomains := f.candidateDomains(all, trialSyms)
		if _, ok := search(all, trialSyms, trialDomains, Model{}); ok {
			// dropping this assumption makes it sat again: it belongs in
			// the core, keep it and move on.
			i++
		} else {
			// still unsat without it: it was not needed.
			core = trial
		}
	}
	return core
}
