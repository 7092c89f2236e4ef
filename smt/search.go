// SPDX-License-Identifier: Apache-2.0

package smt

// candidateDomains builds, for every free symbol referenced across terms, a
// small finite candidate domain the bounded search enumerates over. Boolean
// symbols always get {0, 1}. Integer/Time/Enumerated symbols get every
// integer literal that appears anywhere in the constraints (the values most
// likely to matter for satisfying or violating a comparison), padded with
// {-1, 0, 1} and a one-step shift to either side of every literal so that
// strict-vs-non-strict boundary cases (`< ` vs `<=`) remain reachable.
func (f *Facade) candidateDomains(terms []Term, syms []*Symbol) map[string][]int {
	literals := map[int]bool{-1: true, 0: true, 1: true}
	var collect func(t Term)
	visited := make(map[uint64]bool)
	collect = func(t Term) {
		if t == nil || visited[t.ID()] {
			return
		}
		visited[t.ID()] = true
		switch n := t.(type) {
		case *IntLit:
			literals[n.Value] = true
			literals[n.Value-1] = true
			literals[n.Value+1] = true
		case *BinaryTerm:
			collect(n.Left)
			collect(n.Right)
		case *NotTerm:
			collect(n.Operand)
		case *NegTerm:
			collect(n.Operand)
		case *IteTerm:
			collect(n.Cond)
			collect(n.Then)
			collect(n.Else)
		}
	}
	for _, t := range terms {
		collect(t)
	}

	ints := make([]int, 0, len(literals))
	for v := range literals {
		ints = append(ints, v)
	}
	sortInts(ints)

	domains := make(map[string][]int, len(syms))
	for _, s := range syms {
		if s.Sort() == BoolSort {
			domains[s.Name] = []int{0, 1}
		} else {
			domains[s.Name] = ints
		}
	}
	return domains
}

func sortInts(xs []int) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && xs[j-1] > xs[j]; j-- {
			xs[j-1], xs[j] = xs[j], xs[j-1]
		}
	}
}

// search performs the bounded backtracking decision procedure: it assigns
// every symbol in syms a value from its candidate domain, in order, and
// checks the full conjunction once all symbols are bound. It returns the
// first satisfying assignment found (model, true) or (nil, false) if none
// of the (bounded) candidate combinations satisfy the conjunction.
func search(terms []Term, syms []*Symbol, domains map[string][]int, partial Model) (Model, bool) {
	if len(syms) == 0 {
		if evalAllTrue(terms, partial) {
			return cloneModel(partial), true
		}
		return nil, false
	}
	sym := syms[0]
	rest := syms[1:]
	for _, v := range domains[sym.Name] {
		partial[sym.Name] = v
		if m, ok := search(terms, rest, domains, partial); ok {
			return m, true
		}
	}
	delete(partial, sym.Name)
	return nil, false
}

func cloneModel(m Model) Model {
	out := make(Model, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func evalAllTrue(terms []Term, model Model) bool {
	for _, t := range terms {
		v, ok := evalConcrete(t, model)
		if !ok || v == 0 {
			return false
		}
	}
	return true
}

// evalConcrete evaluates t under a complete model, returning the integer
// encoding of the result (0/1 for booleans) and false if t references a
// symbol missing from model.
func evalConcrete(t Term, model Model) (int, bool) {
	switch n := t.(type) {
	case *BoolLit:
		if n.Value {
			return 1, true
		}
		return 0, true
	case *IntLit:
		return n.Value, true
	case *Symbol:
		v, ok := model[n.Name]
		return v, ok
	case *NotTerm:
		v, ok := evalConcrete(n.Operand, model)
		if !ok {
			return 0, false
		}
		if v == 0 {
			return 1, true
		}
		return 0, true
	case *NegTerm:
		v, ok := evalConcrete(n.Operand, model)
		if !ok {
			return 0, false
		}
		return -v, true
	case *IteTerm:
		c, ok := evalConcrete(n.Cond, model)
		if !ok {
			return 0, false
		}
		if c != 0 {
			return evalConcrete(n.Then, model)
		}
		return evalConcrete(n.Else, model)
	case *BinaryTerm:
		l, ok := evalConcrete(n.Left, model)
		if !ok {
			return 0, false
		}
		r, ok := evalConcrete(n.Right, model)
		if !ok {
			return 0, false
		}
		switch n.Op {
		case OpAdd:
			return l + r, true
		case OpSub:
			return l - r, true
		case OpMul:
			return l * r, true
		case OpEq:
			return boolInt(l == r), true
		case OpNeq:
			return boolInt(l != r), true
		case OpLt:
			return boolInt(l < r), true
		case OpLte:
			return boolInt(l <= r), true
		case OpGt:
			return boolInt(l > r), true
		case OpGte:
			return boolInt(l >= r), true
		case OpAnd:
			return boolInt(l != 0 && r != 0), true
		case OpOr:
			return boolInt(l != 0 || r != 0), true
		}
	}
	return 0, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
