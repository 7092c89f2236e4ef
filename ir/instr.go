// SPDX-License-Identifier: Apache-2.0

package ir

// Instr is the sum type over instruction kinds (§3 "Instruction kinds").
// Like Expr, it is a closed variant: the Executor type-switches on the
// concrete type rather than dispatching through an open interface method.
type Instr interface {
	isInstr()
}

// AssignInstr assigns the value of Expr to Lhs and advances to Goto. The
// lowerer tags assigns synthesized to complete a call's parameter coupling
// via ParamKind.
type AssignInstr struct {
	Lhs  string
	Expr Expr
	Goto Label
	ParamKind
}

func (*AssignInstr) isInstr() {}

// ParamKind marks whether an assign was synthesized by the lowerer to
// complete a call's interface (§3 "parameter-in/out markers").
type ParamKind int

const (
	// NotParam is an ordinary, explicitly-written assign.
	NotParam ParamKind = iota
	// ParamIn is a synthesized callee-input binding assign.
	ParamIn
	// ParamOut is a synthesized callee-output binding assign.
	ParamOut
)

// HavocInstr assigns an unconstrained value (fresh symbolic, random
// concrete) to Lhs and advances to Goto.
type HavocInstr struct {
	Lhs  string
	Type DataType
	Goto Label
}

func (*HavocInstr) isInstr() {}

// GotoInstr unconditionally advances to Target.
type GotoInstr struct {
	Target Label
}

func (*GotoInstr) isInstr() {}

// IfInstr is a data-dependent branch: GotoTrue is taken when Cond evaluates
// true, GotoFalse otherwise.
type IfInstr struct {
	Cond               Expr
	GotoTrue, GotoFalse Label
}

func (*IfInstr) isInstr() {}

// WhileInstr is an if-shaped loop header: GotoBody is the loop body entry,
// GotoExit the post-loop successor (§3, §4.3 "while ... Identical to if").
type WhileInstr struct {
	Cond               Expr
	GotoBody, GotoExit Label
}

func (*WhileInstr) isInstr() {}

// CallInstr invokes the instance CalleeAccess (a dotted instance name that
// becomes the callee frame's scope) of the graph named CalleeGraph and, on
// return, advances to GotoIntra in the caller. GotoInter records the
// callee's entry label; the Executor pushes the frame at the callee graph's
// own Entry label and does not read GotoInter (§4.3).
type CallInstr struct {
	CalleeAccess string
	CalleeGraph  string
	GotoIntra    Label
	GotoInter    Label
}

func (*CallInstr) isInstr() {}
