// SPDX-License-Identifier: Apache-2.0

// Package eval implements the Evaluator (C4): it concretely evaluates an IR
// expression under a state's concrete store by constant folding, mirroring
// the Encoder's traversal and operator-rejection rules but working over
// plain Go ints/bools instead of solver terms. Short-circuit evaluation is
// not implemented, matching the Encoder (§4.2).
package eval

import (
	"stflow/diagnostic"
	"stflow/ir"
	"stflow/smt"
	"stflow/state"
)

// Value is a concrete evaluation result: either a boolean or an integer,
// tagged by the expression's static type.
type Value struct {
	Type ir.ExprType
	Bool bool
	Int  int
}

// BoolValue builds a boolean Value.
func BoolValue(b bool) Value { return Value{Type: ir.BooleanType, Bool: b} }

// IntValue builds an integer Value.
func IntValue(i int) Value { return Value{Type: ir.ArithmeticType, Int: i} }

// AsBool coerces a Value to a boolean truth value (non-zero integers are
// true, matching the Encoder's `!= 0` cast to boolean).
func (v Value) AsBool() bool {
	if v.Type == ir.BooleanType {
		return v.Bool
	}
	return v.Int != 0
}

// AsInt coerces a Value to an integer (booleans are 0/1).
func (v Value) AsInt() int {
	if v.Type == ir.ArithmeticType {
		return v.Int
	}
	if v.Bool {
		return 1
	}
	return 0
}

// Evaluator concretely evaluates IR expressions against a context's
// concrete store.
type Evaluator struct{}

// New builds an Evaluator.
func New() *Evaluator { return &Evaluator{} }

// Eval evaluates expr under ctx's current concrete store.
func (e *Evaluator) Eval(ctx *state.Context, graph string, expr ir.Expr) (Value, error) {
	switch n := expr.(type) {
	case *ir.BinaryExpr:
		return e.evalBinary(ctx, graph, n)
	case *ir.UnaryExpr:
		return e.evalUnary(ctx, graph, n)
	case ir.Constant:
		if n.DataType == ir.Boolean {
			return BoolValue(n.BoolValue), nil
		}
		return IntValue(n.IntValue), nil
	case ir.NondeterministicConstant:
		return Value{}, diagnostic.Typing(graph, int(ctx.State.Vertex),
			"non-deterministic constant may only appear as the sole right-hand side of an assign")
	case *ir.VariableAccess:
		return e.resolve(ctx, graph, ctx.Qualify(n.Name))
	case *ir.FieldAccess:
		return e.resolve(ctx, graph, ctx.Qualify(n.Record+"."+n.Field))
	case *ir.ChangeExpr:
		return Value{}, diagnostic.Typing(graph, int(ctx.State.Vertex),
			"change expression encountered outside shadow execution mode")
	case *ir.PhiExpr:
		cond, err := e.Eval(ctx, graph, n.Guard)
		if err != nil {
			return Value{}, err
		}
		if cond.AsBool() {
			return e.Eval(ctx, graph, n.Then)
		}
		return e.Eval(ctx, graph, n.Else)
	case *ir.CastExpr:
		operand, err := e.Eval(ctx, graph, n.Operand)
		if err != nil {
			return Value{}, err
		}
		return castValue(operand, n.To), nil
	default:
		return Value{}, diagnostic.Structural(graph, "evaluator: unknown expression kind %T", expr)
	}
}

func (e *Evaluator) evalBinary(ctx *state.Context, graph string, n *ir.BinaryExpr) (Value, error) {
	if err := checkBinaryOp(graph, int(ctx.State.Vertex), n.Op); err != nil {
		return Value{}, err
	}
	left, err := e.Eval(ctx, graph, n.Left)
	if err != nil {
		return Value{}, err
	}
	right, err := e.Eval(ctx, graph, n.Right)
	if err != nil {
		return Value{}, err
	}
	return applyBinary(n.Op, left, right), nil
}

func (e *Evaluator) evalUnary(ctx *state.Context, graph string, n *ir.UnaryExpr) (Value, error) {
	operand, err := e.Eval(ctx, graph, n.Operand)
	if err != nil {
		return Value{}, err
	}
	switch n.Op {
	case ir.Neg:
		return IntValue(-operand.AsInt()), nil
	case ir.Not:
		return BoolValue(!operand.AsBool()), nil
	case ir.Pos:
		return operand, nil
	default:
		return Value{}, diagnostic.Typing(graph, int(ctx.State.Vertex), "unsupported unary operator %v", n.Op)
	}
}

func (e *Evaluator) resolve(ctx *state.Context, graph string, flattenedName string) (Value, error) {
	version := ctx.State.Versions.Current(flattenedName)
	name := state.Contextualize(flattenedName, version, ctx.Cycle)
	term, ok := ctx.State.Concrete.Get(name)
	if !ok {
		return Value{}, diagnostic.StructuralAt(graph, int(ctx.State.Vertex),
			"no concrete binding for %q (resolved to %q)", flattenedName, name)
	}
	switch t := term.(type) {
	case *smt.BoolLit:
		return BoolValue(t.Value), nil
	case *smt.IntLit:
		return IntValue(t.Value), nil
	default:
		return Value{}, diagnostic.Structural(graph,
			"concrete store held a non-literal term for %q", flattenedName)
	}
}

func checkBinaryOp(graph string, label int, op ir.BinaryOp) error {
	switch op {
	case ir.Div, ir.Mod, ir.Pow:
		return diagnostic.Typing(graph, label, "operator %v is not implemented", op)
	default:
		return nil
	}
}

func applyBinary(op ir.BinaryOp, l, r Value) Value {
	switch op {
	case ir.Add:
		return IntValue(l.AsInt() + r.AsInt())
	case ir.Sub:
		return IntValue(l.AsInt() - r.AsInt())
	case ir.Mul:
		return IntValue(l.AsInt() * r.AsInt())
	case ir.Eq:
		return BoolValue(equalValue(l, r))
	case ir.Neq:
		return BoolValue(!equalValue(l, r))
	case ir.Lt:
		return BoolValue(l.AsInt() < r.AsInt())
	case ir.Lte:
		return BoolValue(l.AsInt() <= r.AsInt())
	case ir.Gt:
		return BoolValue(l.AsInt() > r.AsInt())
	case ir.Gte:
		return BoolValue(l.AsInt() >= r.AsInt())
	case ir.And:
		return BoolValue(l.AsBool() && r.AsBool())
	case ir.Or:
		return BoolValue(l.AsBool() || r.AsBool())
	default:
		return Value{}
	}
}

func equalValue(l, r Value) bool {
	if l.Type == ir.BooleanType || r.Type == ir.BooleanType {
		return l.AsBool() == r.AsBool()
	}
	return l.AsInt() == r.AsInt()
}

func castValue(v Value, to ir.ExprType) Value {
	if to == ir.BooleanType {
		return BoolValue(v.AsBool())
	}
	if to == ir.ArithmeticType {
		return IntValue(v.AsInt())
	}
	return v
}
