package dsl

// Dependencies walks expr's AST and collects every identifier of shape
// "Schema.field" it references, deterministically and without evaluating
// the expression (spec.md §4.I's static analysis pass). The result is
// cached by the transform manager on the Transform record.
func Dependencies(expr *Expr) []string {
	seen := map[string]bool{}
	var out []string
	add := func(key string) {
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	walkExpr(expr, add)
	return out
}

func walkExpr(e *Expr, add func(string)) {
	if e == nil {
		return
	}
	switch {
	case e.Let != nil:
		walkExpr(e.Let.Value, add)
		walkExpr(e.Let.Body, add)
	case e.If != nil:
		walkExpr(e.If.Cond, add)
		walkExpr(e.If.Then, add)
		walkExpr(e.If.Else, add)
	case e.Return != nil:
		walkExpr(e.Return.Value, add)
	case e.Or != nil:
		walkOr(e.Or, add)
	}
}

func walkOr(n *OrExpr, add func(string)) {
	if n == nil {
		return
	}
	walkAnd(n.Left, add)
	for _, r := range n.Right {
		walkAnd(r, add)
	}
}

func walkAnd(n *AndExpr, add func(string)) {
	if n == nil {
		return
	}
	walkEquality(n.Left, add)
	for _, r := range n.Right {
		walkEquality(r, add)
	}
}

func walkEquality(n *EqualityExpr, add func(string)) {
	if n == nil {
		return
	}
	walkRel(n.Left, add)
	for _, r := range n.Right {
		walkRel(r, add)
	}
}

func walkRel(n *RelExpr, add func(string)) {
	if n == nil {
		return
	}
	walkAdd(n.Left, add)
	for _, r := range n.Right {
		walkAdd(r, add)
	}
}

func walkAdd(n *AddExpr, add func(string)) {
	if n == nil {
		return
	}
	walkMul(n.Left, add)
	for _, r := range n.Right {
		walkMul(r, add)
	}
}

func walkMul(n *MulExpr, add func(string)) {
	if n == nil {
		return
	}
	walkPow(n.Left, add)
	for _, r := range n.Right {
		walkPow(r, add)
	}
}

func walkPow(n *PowExpr, add func(string)) {
	if n == nil {
		return
	}
	walkUnary(n.Left, add)
	walkPow(n.Right, add)
}

func walkUnary(n *UnaryExpr, add func(string)) {
	if n == nil {
		return
	}
	walkPrimary(n.Operand, add)
	walkPrimary(n.Simple, add)
}

func walkPrimary(n *Primary, add func(string)) {
	if n == nil {
		return
	}
	if n.Ident != nil {
		walkIdentChain(n.Ident, add)
	}
	if n.Sub != nil {
		walkExpr(n.Sub, add)
	}
}

func walkIdentChain(n *IdentChain, add func(string)) {
	if n == nil || len(n.Trail) == 0 {
		return
	}
	first := n.Trail[0]
	if first.Field != nil {
		add(n.Base + "." + *first.Field)
		return
	}
	if first.Call != nil {
		for _, a := range first.Call.Args {
			walkExpr(a, add)
		}
	}
}
