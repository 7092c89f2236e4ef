// SPDX-License-Identifier: Apache-2.0

// Package encode implements the Encoder (C3): it lowers an IR expression to
// a solver term under a given execution state, resolving the current
// version of every accessed variable. Short-circuit evaluation is not
// implemented: both sub-expressions of a binary operator are always
// encoded (§4.2).
package encode

import (
	"stflow/diagnostic"
	"stflow/ir"
	"stflow/smt"
	"stflow/state"
)

// Encoder lowers IR expressions to solver terms.
type Encoder struct {
	Facade *smt.Facade
}

// New builds an Encoder over the given façade.
func New(facade *smt.Facade) *Encoder {
	return &Encoder{Facade: facade}
}

// Encode lowers expr to a symbolic solver term under ctx. Variable and
// field accesses resolve to the current (highest) version's free symbol;
// constants become literal terms.
func (e *Encoder) Encode(ctx *state.Context, graph string, expr ir.Expr) (smt.Term, error) {
	switch n := expr.(type) {
	case *ir.BinaryExpr:
		return e.encodeBinary(ctx, graph, n)
	case *ir.UnaryExpr:
		return e.encodeUnary(ctx, graph, n)
	case ir.Constant:
		return e.Facade.MakeValue(n), nil
	case ir.NondeterministicConstant:
		return nil, diagnostic.Typing(graph, int(ctx.State.Vertex),
			"non-deterministic constant may only appear as the sole right-hand side of an assign")
	case *ir.VariableAccess:
		return e.resolve(ctx, graph, ctx.Qualify(n.Name))
	case *ir.FieldAccess:
		return e.resolve(ctx, graph, ctx.Qualify(n.Record+"."+n.Field))
	case *ir.ChangeExpr:
		return nil, diagnostic.Typing(graph, int(ctx.State.Vertex),
			"change expression encountered outside shadow execution mode")
	case *ir.PhiExpr:
		cond, err := e.Encode(ctx, graph, n.Guard)
		if err != nil {
			return nil, err
		}
		then, err := e.Encode(ctx, graph, n.Then)
		if err != nil {
			return nil, err
		}
		els, err := e.Encode(ctx, graph, n.Else)
		if err != nil {
			return nil, err
		}
		return e.Facade.Ite(cond, then, els), nil
	case *ir.CastExpr:
		operand, err := e.Encode(ctx, graph, n.Operand)
		if err != nil {
			return nil, err
		}
		return castTerm(e.Facade, operand, n.To), nil
	default:
		return nil, diagnostic.Structural(graph, "encoder: unknown expression kind %T", expr)
	}
}

func (e *Encoder) encodeBinary(ctx *state.Context, graph string, n *ir.BinaryExpr) (smt.Term, error) {
	op, err := binaryOp(graph, int(ctx.State.Vertex), n.Op)
	if err != nil {
		return nil, err
	}
	left, err := e.Encode(ctx, graph, n.Left)
	if err != nil {
		return nil, err
	}
	right, err := e.Encode(ctx, graph, n.Right)
	if err != nil {
		return nil, err
	}
	return e.Facade.Binary(op, left, right), nil
}

func (e *Encoder) encodeUnary(ctx *state.Context, graph string, n *ir.UnaryExpr) (smt.Term, error) {
	operand, err := e.Encode(ctx, graph, n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case ir.Neg:
		return e.Facade.Neg(operand), nil
	case ir.Not:
		return e.Facade.Not(operand), nil
	case ir.Pos:
		return operand, nil
	default:
		return nil, diagnostic.Typing(graph, int(ctx.State.Vertex), "unsupported unary operator %v", n.Op)
	}
}

// resolve looks up the current version's free symbol for a flattened name.
func (e *Encoder) resolve(ctx *state.Context, graph string, flattenedName string) (smt.Term, error) {
	version := ctx.State.Versions.Current(flattenedName)
	name := state.Contextualize(flattenedName, version, ctx.Cycle)
	term, ok := ctx.State.Symbolic.Get(name)
	if !ok {
		return nil, diagnostic.StructuralAt(graph, int(ctx.State.Vertex),
			"no symbolic binding for %q (resolved to %q)", flattenedName, name)
	}
	return term, nil
}

// binaryOp maps an ir.BinaryOp to the solver-level smt.Op, rejecting
// division, modulo, and exponentiation as "not implemented" per §4.2.
func binaryOp(graph string, label int, op ir.BinaryOp) (smt.Op, error) {
	switch op {
	case ir.Add:
		return smt.OpAdd, nil
	case ir.Sub:
		return smt.OpSub, nil
	case ir.Mul:
		return smt.OpMul, nil
	case ir.Eq:
		return smt.OpEq, nil
	case ir.Neq:
		return smt.OpNeq, nil
	case ir.Lt:
		return smt.OpLt, nil
	case ir.Lte:
		return smt.OpLte, nil
	case ir.Gt:
		return smt.OpGt, nil
	case ir.Gte:
		return smt.OpGte, nil
	case ir.And:
		return smt.OpAnd, nil
	case ir.Or:
		return smt.OpOr, nil
	case ir.Div, ir.Mod, ir.Pow:
		return 0, diagnostic.Typing(graph, label, "operator %v is not implemented", op)
	default:
		return 0, diagnostic.Typing(graph, label, "unsupported binary operator %v", op)
	}
}

// castTerm applies an explicit boolean<->integer coercion at the solver
// level.
func castTerm(f *smt.Facade, operand smt.Term, to ir.ExprType) smt.Term {
	if to == ir.BooleanType && operand.Sort() == smt.IntSort {
		return f.Binary(smt.OpNeq, operand, f.MakeIntegerValue(0))
	}
	if to == ir.ArithmeticType && operand.Sort() == smt.BoolSort {
		return f.Ite(operand, f.MakeIntegerValue(1), f.MakeIntegerValue(0))
	}
	return operand
}
