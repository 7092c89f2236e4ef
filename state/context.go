// SPDX-License-Identifier: Apache-2.0

package state

import (
	"stflow/ir"
	"stflow/smt"
)

// State is the per-context data of §3: vertex, concrete-store, symbolic-
// store, path-constraint, and local version map, plus the CBMC-flavor's
// AssumptionGraph (nil when the engine is not running in the CBMC flavor).
type State struct {
	Vertex         ir.Label
	Concrete       *Store
	Symbolic       *Store
	PathConstraint []smt.Term
	Versions       *VersionMap

	// Assumptions is non-nil only for the CBMC engine flavor (§4.3).
	Assumptions *AssumptionGraph
}

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	clone := &State{
		Vertex:         s.Vertex,
		Concrete:       s.Concrete,
		Symbolic:       s.Symbolic,
		PathConstraint: append([]smt.Term(nil), s.PathConstraint...),
		Versions:       s.Versions,
	}
	if s.Assumptions != nil {
		clone.Assumptions = s.Assumptions.Clone()
	}
	return clone
}

// Context is the quadruple (cycle, state, call-stack, configuration) of §3.
// Configuration is not stored per-context (it is process-wide for a given
// engine run); Context instead holds only what genuinely varies per
// execution path: the cycle counter, the state, and the call stack. The
// call stack is never empty: index 0 is always the implicit root frame for
// the graph the context is currently executing at the top level (§4.3
// "call(x)" pushes additional frames on top of it).
type Context struct {
	Cycle     int
	State     *State
	CallStack []Frame
}

// CurrentFrame returns the top of the call stack: the frame whose scope and
// graph the context is currently executing within.
func (c *Context) CurrentFrame() Frame {
	return c.CallStack[len(c.CallStack)-1]
}

// Qualify resolves an unqualified local name within the current frame's
// scope to its flattened dotted path.
func (c *Context) Qualify(name string) string {
	return c.CurrentFrame().Qualify(name)
}

// Clone returns an independent copy of the context: a new State clone and
// a new call-stack slice, safe to mutate without affecting c.
func (c *Context) Clone() *Context {
	return &Context{
		Cycle:     c.Cycle,
		State:     c.State.Clone(),
		CallStack: CloneCallStack(c.CallStack),
	}
}

// PushFrame returns a new Context with frame pushed onto the call stack,
// used by the Executor's call-instruction handling (§4.3 "call(x)").
func (c *Context) PushFrame(frame Frame, entry ir.Label) *Context {
	clone := c.Clone()
	clone.CallStack = append(clone.CallStack, frame)
	clone.State.Vertex = entry
	return clone
}

// PopFrame returns a new Context with the top call-stack frame removed and
// the vertex set to that frame's return label, used when execution reaches
// a callee's exit label (§4.3 "exit of callee").
func (c *Context) PopFrame() *Context {
	clone := c.Clone()
	returnLabel := clone.CurrentFrame().ReturnLabel
	clone.CallStack = clone.CallStack[:len(clone.CallStack)-1]
	clone.State.Vertex = returnLabel
	return clone
}
