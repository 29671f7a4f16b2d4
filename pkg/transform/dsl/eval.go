package dsl

import (
	"fmt"
	"math"

	"github.com/alecthomas/participle/v2/lexer"

	"github.com/datafold/datafold/pkg/types"
)

// Env binds identifiers visible to an expression: dependency keys of shape
// "Schema.field" bound to their resolved JSON value, plus any names
// introduced by `let`.
type Env map[string]any

// Eval evaluates expr against env. Values are the Go representation of
// JSON: float64, bool, string, nil, map[string]any, []any.
func Eval(expr *Expr, env Env) (any, error) {
	return evalExpr(expr, env)
}

func evalExpr(e *Expr, env Env) (any, error) {
	switch {
	case e.Let != nil:
		val, err := evalExpr(e.Let.Value, env)
		if err != nil {
			return nil, err
		}
		child := make(Env, len(env)+1)
		for k, v := range env {
			child[k] = v
		}
		child[e.Let.Name] = val
		return evalExpr(e.Let.Body, child)

	case e.If != nil:
		cond, err := evalExpr(e.If.Cond, env)
		if err != nil {
			return nil, err
		}
		b, ok := cond.(bool)
		if !ok {
			return nil, evalErr(e.If.Pos, "if condition must be boolean")
		}
		if b {
			return evalExpr(e.If.Then, env)
		}
		return evalExpr(e.If.Else, env)

	case e.Return != nil:
		return evalExpr(e.Return.Value, env)

	case e.Or != nil:
		return evalOr(e.Or, env)

	default:
		return nil, evalErr(lexer.Position{}, "empty expression")
	}
}

func evalOr(n *OrExpr, env Env) (any, error) {
	left, err := evalAnd(n.Left, env)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Right {
		if asBool(left) {
			left = true
			continue
		}
		right, err := evalAnd(r, env)
		if err != nil {
			return nil, err
		}
		left = asBool(left) || asBool(right)
	}
	return left, nil
}

func evalAnd(n *AndExpr, env Env) (any, error) {
	left, err := evalEquality(n.Left, env)
	if err != nil {
		return nil, err
	}
	for _, r := range n.Right {
		right, err := evalEquality(r, env)
		if err != nil {
			return nil, err
		}
		left = asBool(left) && asBool(right)
	}
	return left, nil
}

func evalEquality(n *EqualityExpr, env Env) (any, error) {
	left, err := evalRel(n.Left, env)
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		right, err := evalRel(n.Right[i], env)
		if err != nil {
			return nil, err
		}
		eq := valuesEqual(left, right)
		if op == "==" {
			left = eq
		} else {
			left = !eq
		}
	}
	return left, nil
}

func evalRel(n *RelExpr, env Env) (any, error) {
	left, err := evalAdd(n.Left, env)
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		right, err := evalAdd(n.Right[i], env)
		if err != nil {
			return nil, err
		}
		lf, lok := asNumber(left)
		rf, rok := asNumber(right)
		if !lok || !rok {
			return nil, evalErr(n.Pos, "relational operator %s requires numeric operands", op)
		}
		switch op {
		case "<":
			left = lf < rf
		case "<=":
			left = lf <= rf
		case ">":
			left = lf > rf
		case ">=":
			left = lf >= rf
		}
	}
	return left, nil
}

func evalAdd(n *AddExpr, env Env) (any, error) {
	left, err := evalMul(n.Left, env)
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		right, err := evalMul(n.Right[i], env)
		if err != nil {
			return nil, err
		}
		lf, lok := asNumber(left)
		rf, rok := asNumber(right)
		if !lok || !rok {
			return nil, evalErr(n.Pos, "operator %s requires numeric operands (string concatenation is not defined on +)", op)
		}
		if op == "+" {
			left = lf + rf
		} else {
			left = lf - rf
		}
	}
	return left, nil
}

func evalMul(n *MulExpr, env Env) (any, error) {
	left, err := evalPow(n.Left, env)
	if err != nil {
		return nil, err
	}
	for i, op := range n.Ops {
		right, err := evalPow(n.Right[i], env)
		if err != nil {
			return nil, err
		}
		lf, lok := asNumber(left)
		rf, rok := asNumber(right)
		if !lok || !rok {
			return nil, evalErr(n.Pos, "operator %s requires numeric operands", op)
		}
		if op == "*" {
			left = lf * rf
		} else {
			if rf == 0 {
				return nil, evalErr(n.Pos, "division by zero")
			}
			left = lf / rf
		}
	}
	return left, nil
}

// evalPow evaluates right-associatively: a^b^c == a^(b^c).
func evalPow(n *PowExpr, env Env) (any, error) {
	left, err := evalUnary(n.Left, env)
	if err != nil {
		return nil, err
	}
	if n.Right == nil {
		return left, nil
	}
	right, err := evalPow(n.Right, env)
	if err != nil {
		return nil, err
	}
	lf, lok := asNumber(left)
	rf, rok := asNumber(right)
	if !lok || !rok {
		return nil, evalErr(n.Pos, "operator ^ requires numeric operands")
	}
	return math.Pow(lf, rf), nil
}

func evalUnary(n *UnaryExpr, env Env) (any, error) {
	if n.Operand != nil {
		val, err := evalPrimary(n.Operand, env)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "-":
			f, ok := asNumber(val)
			if !ok {
				return nil, evalErr(n.Pos, "unary - requires a numeric operand")
			}
			return -f, nil
		case "!":
			return !asBool(val), nil
		}
	}
	return evalPrimary(n.Simple, env)
}

func evalPrimary(n *Primary, env Env) (any, error) {
	switch {
	case n.Float != nil:
		return *n.Float, nil
	case n.Int != nil:
		return float64(*n.Int), nil
	case n.Bool != nil:
		return *n.Bool == "true", nil
	case n.Null:
		return nil, nil
	case n.Str != nil:
		return *n.Str, nil
	case n.Ident != nil:
		return evalIdentChain(n.Ident, env)
	case n.Sub != nil:
		return evalExpr(n.Sub, env)
	default:
		return nil, evalErr(n.Pos, "empty primary expression")
	}
}

func evalIdentChain(n *IdentChain, env Env) (any, error) {
	if len(n.Trail) == 0 {
		val, ok := env[n.Base]
		if !ok {
			return nil, evalErr(n.Pos, "unknown identifier %q", n.Base)
		}
		return val, nil
	}

	first := n.Trail[0]
	switch {
	case first.Field != nil:
		key := n.Base + "." + *first.Field
		val, ok := env[key]
		if !ok {
			return nil, evalErr(n.Pos, "unknown identifier %q", key)
		}
		return evalTrailRemainder(val, n.Trail[1:], n.Pos, env)

	case first.Call != nil:
		args := make([]any, len(first.Call.Args))
		for i, a := range first.Call.Args {
			v, err := evalExpr(a, env)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		val, err := callBuiltin(n.Base, args, n.Pos)
		if err != nil {
			return nil, err
		}
		return evalTrailRemainder(val, n.Trail[1:], n.Pos, env)

	default:
		return nil, evalErr(n.Pos, "malformed identifier chain")
	}
}

func evalTrailRemainder(val any, rest []*Trail, pos lexer.Position, _ Env) (any, error) {
	if len(rest) > 0 {
		return nil, evalErr(pos, "chained field access/calls beyond schema.field are not supported")
	}
	return val, nil
}

func callBuiltin(name string, args []any, pos lexer.Position) (any, error) {
	switch name {
	case "abs":
		if len(args) != 1 {
			return nil, evalErr(pos, "abs expects 1 argument, got %d", len(args))
		}
		f, ok := asNumber(args[0])
		if !ok {
			return nil, evalErr(pos, "abs expects a numeric argument")
		}
		return math.Abs(f), nil

	case "min":
		if len(args) < 1 {
			return nil, evalErr(pos, "min expects at least 1 argument, got %d", len(args))
		}
		return foldNumeric(args, pos, math.Min)

	case "max":
		if len(args) < 1 {
			return nil, evalErr(pos, "max expects at least 1 argument, got %d", len(args))
		}
		return foldNumeric(args, pos, math.Max)

	default:
		return nil, evalErr(pos, "unknown function %q", name)
	}
}

func foldNumeric(args []any, pos lexer.Position, combine func(a, b float64) float64) (any, error) {
	acc, ok := asNumber(args[0])
	if !ok {
		return nil, evalErr(pos, "argument 0 is not numeric")
	}
	for i, a := range args[1:] {
		f, ok := asNumber(a)
		if !ok {
			return nil, evalErr(pos, "argument %d is not numeric", i+1)
		}
		acc = combine(acc, f)
	}
	return acc, nil
}

func asNumber(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func asBool(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	default:
		return false
	}
}

func evalErr(pos lexer.Position, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return types.NewError(types.ErrEval, "%s (at %d:%d)", msg, pos.Line, pos.Column)
}
