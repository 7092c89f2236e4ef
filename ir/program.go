// SPDX-License-Identifier: Apache-2.0

package ir

import "stflow/diagnostic"

// Program is a set of sub-program graphs keyed by qualified name, exactly
// one of which has GraphKind ProgramKind (§3, §6.1).
type Program struct {
	Graphs map[string]*Graph
	// Entry is the name of the single program-kind graph.
	Entry string
}

// NewProgram builds a Program from a set of graphs, validating the §6.1
// "exactly one graph of kind program" requirement and each graph's own
// structural invariants, and rejecting recursion between sub-programs
// (forbidden by the input language, §1 Non-goals; detected here as a
// semantic error per §7).
func NewProgram(graphs []*Graph) (*Program, error) {
	p := &Program{Graphs: make(map[string]*Graph, len(graphs))}
	for _, g := range graphs {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if _, dup := p.Graphs[g.Name]; dup {
			return nil, diagnostic.Structural(g.Name, "duplicate graph name")
		}
		p.Graphs[g.Name] = g
		if g.Kind == ProgramKind {
			if p.Entry != "" {
				return nil, diagnostic.Structural(g.Name, "more than one graph of kind program: %s and %s", p.Entry, g.Name)
			}
			p.Entry = g.Name
		}
	}
	if p.Entry == "" {
		return nil, diagnostic.Structural("<program>", "no graph of kind program found")
	}
	if err := p.checkNoRecursion(); err != nil {
		return nil, err
	}
	return p, nil
}

// calleeGraphs returns the set of graph names directly called from g.
func (g *Graph) calleeGraphs() []string {
	var callees []string
	for _, instr := range g.Instructions {
		if call, ok := instr.(*CallInstr); ok {
			callees = append(callees, call.CalleeGraph)
		}
	}
	return callees
}

// checkNoRecursion walks the call graph depth-first from every graph,
// reporting a semantic error (§7) if a cycle is found, since recursion is
// forbidden by the input language (§1 Non-goals) and the Executor's call
// stack has no mechanism to bound it.
func (p *Program) checkNoRecursion() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.Graphs))
	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return diagnostic.Semantic(name, "recursive call cycle detected: %v", append(path, name))
		}
		color[name] = gray
		g, ok := p.Graphs[name]
		if ok {
			for _, callee := range g.calleeGraphs() {
				if err := visit(callee, append(path, name)); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	for name := range p.Graphs {
		if err := visit(name, nil); err != nil {
			return err
		}
	}
	return nil
}
