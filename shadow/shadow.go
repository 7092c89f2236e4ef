// SPDX-License-Identifier: Apache-2.0

// Package shadow implements the divergence-aware dual execution subsystem
// (C10, §4.6): running two program revisions — "old" and "new" — side by
// side over a single shared instruction stream annotated with `change(old,
// new)` expressions at the points the revisions differ, so that a
// regression between them surfaces as a control-flow divergence rather than
// requiring two separately-maintained graphs.
package shadow

import (
	"stflow/ir"
	"stflow/state"
)

// Mode selects how much of the dual execution actually runs (§6.2
// shadow_processing_mode).
type Mode int

const (
	// None disables shadow execution entirely; only the old revision's
	// ordinary (non-shadow) semantics apply.
	None Mode = iota
	// Old runs only the old revision, taking every `change(old, _)` branch.
	Old
	// New runs only the new revision, taking every `change(_, new)` branch.
	New
	// Both runs old and new side by side, the mode that can actually detect
	// divergence.
	Both
)

// Context pairs the old and new revisions' independent states under a
// shared call stack and cycle counter (they execute the same instruction
// stream, so control-flow position before a divergence is always
// identical).
type Context struct {
	Cycle     int
	Old       *state.State
	New       *state.State
	CallStack []state.Frame
}

// Clone returns an independent copy.
func (c *Context) Clone() *Context {
	return &Context{
		Cycle:     c.Cycle,
		Old:       c.Old.Clone(),
		New:       c.New.Clone(),
		CallStack: state.CloneCallStack(c.CallStack),
	}
}

// CurrentFrame returns the shared call stack's top frame.
func (c *Context) CurrentFrame() state.Frame {
	return c.CallStack[len(c.CallStack)-1]
}

// AsOldContext projects the shadow context's old side into an ordinary,
// independent state.Context, used to hand off one side of a
// fork-on-divergence (§4.6 "fork into two independent non-shadow
// contexts") and, at the end of a shadow cycle, to carry each side on
// separately.
func (c *Context) AsOldContext() *state.Context {
	return &state.Context{Cycle: c.Cycle, State: c.Old.Clone(), CallStack: state.CloneCallStack(c.CallStack)}
}

// AsNewContext projects the shadow context's new side the same way.
func (c *Context) AsNewContext() *state.Context {
	return &state.Context{Cycle: c.Cycle, State: c.New.Clone(), CallStack: state.CloneCallStack(c.CallStack)}
}

// Project rewrites expr, replacing every ChangeExpr node with its Old or New
// sub-expression according to branch, recursively (a `change` may appear
// nested inside a larger expression, not only as a whole right-hand side).
// The result is an ordinary ir.Expr safe to hand to the plain Encoder or
// Evaluator, which both reject ChangeExpr outright.
func Project(expr ir.Expr, branch Mode) ir.Expr {
	switch n := expr.(type) {
	case *ir.ChangeExpr:
		if branch == Old || branch == None {
			return Project(n.Old, branch)
		}
		return Project(n.New, branch)
	case *ir.BinaryExpr:
		return &ir.BinaryExpr{Op: n.Op, Left: Project(n.Left, branch), Right: Project(n.Right, branch)}
	case *ir.UnaryExpr:
		return &ir.UnaryExpr{Op: n.Op, Operand: Project(n.Operand, branch)}
	case *ir.CastExpr:
		return &ir.CastExpr{Operand: Project(n.Operand, branch), To: n.To}
	case *ir.PhiExpr:
		return &ir.PhiExpr{Guard: Project(n.Guard, branch), Then: Project(n.Then, branch), Else: Project(n.Else, branch)}
	default:
		return expr
	}
}
