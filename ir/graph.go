// SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"

	"stflow/diagnostic"
)

// Graph is a single sub-program's compiled control-flow representation: a
// flattened interface, an entry/exit label pair, and a label->instruction
// table (§6.1). Graphs are arena-owned: vertices and edges are implicit in
// instruction shape rather than explicit pointer-linked nodes, per the
// "cyclic object graphs" design note (§9).
type Graph struct {
	Name  string
	Kind  GraphKind
	Entry Label
	Exit  Label

	// Interface is the ordered flattened interface; order matters for
	// deterministic test-case derivation (§4.7, §6.3).
	Interface []InterfaceEntry

	// Instructions maps every reachable label to its instruction. The exit
	// label itself maps to nothing (it is a sentinel, not an instruction).
	Instructions map[Label]Instr
}

// InterfaceEntryByName looks up an interface entry by its flattened name,
// returning ok=false if absent.
func (g *Graph) InterfaceEntryByName(name string) (InterfaceEntry, bool) {
	for _, e := range g.Interface {
		if e.Name == name {
			return e, true
		}
	}
	return InterfaceEntry{}, false
}

// Validate checks the structural invariants an externally-supplied graph
// must satisfy before the engine will consume it (§7 "Structural" errors
// are fatal at graph construction): every instruction's label targets
// resolve to either the exit label or another instruction in the same
// graph, and there is no direct self-loop on a goto (a trivial but easy to
// produce authoring mistake that the engine would otherwise spin on).
func (g *Graph) Validate() error {
	resolves := func(l Label) bool {
		if l == g.Exit {
			return true
		}
		_, ok := g.Instructions[l]
		return ok
	}
	if !resolves(g.Entry) {
		return diagnostic.StructuralAt(g.Name, int(g.Entry), "entry label does not resolve to an instruction")
	}
	for l, instr := range g.Instructions {
		switch in := instr.(type) {
		case *AssignInstr:
			if !resolves(in.Goto) {
				return diagnostic.StructuralAt(g.Name, int(l), "assign goto target %d is dangling", in.Goto)
			}
		case *HavocInstr:
			if !resolves(in.Goto) {
				return diagnostic.StructuralAt(g.Name, int(l), "havoc goto target %d is dangling", in.Goto)
			}
		case *GotoInstr:
			if in.Target == l {
				return diagnostic.StructuralAt(g.Name, int(l), "goto is a self-loop")
			}
			if !resolves(in.Target) {
				return diagnostic.StructuralAt(g.Name, int(l), "goto target %d is dangling", in.Target)
			}
		case *IfInstr:
			if !resolves(in.GotoTrue) {
				return diagnostic.StructuralAt(g.Name, int(l), "if true-target %d is dangling", in.GotoTrue)
			}
			if !resolves(in.GotoFalse) {
				return diagnostic.StructuralAt(g.Name, int(l), "if false-target %d is dangling", in.GotoFalse)
			}
		case *WhileInstr:
			if !resolves(in.GotoBody) {
				return diagnostic.StructuralAt(g.Name, int(l), "while body-target %d is dangling", in.GotoBody)
			}
			if !resolves(in.GotoExit) {
				return diagnostic.StructuralAt(g.Name, int(l), "while exit-target %d is dangling", in.GotoExit)
			}
		case *CallInstr:
			if !resolves(in.GotoIntra) {
				return diagnostic.StructuralAt(g.Name, int(l), "call intra-target %d is dangling", in.GotoIntra)
			}
		default:
			return diagnostic.StructuralAt(g.Name, int(l), fmt.Sprintf("unknown instruction kind %T", instr))
		}
	}
	return nil
}
