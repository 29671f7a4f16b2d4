// Package dsl implements the transform expression language (spec.md
// §4.I): literals, variables, field access, arithmetic and comparison
// operators, calls, let-bindings, if/else, and return.
//
// The grammar is expressed as participle/v2 struct tags, grounded on
// original_source's fold_node/src/transform/ast.rs for the node shapes
// (Value/Operator/UnaryOperator/Expression) and re-expressed as an
// idiomatic Go parser-combinator grammar rather than a hand-rolled
// recursive-descent parser.
package dsl

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var dslLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\n\r]+`},
	{Name: "Float", Pattern: `\d+\.\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "String", Pattern: `"(\\"|[^"])*"`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Op", Pattern: `==|!=|<=|>=|&&|\|\||[-+*/^(),.!<>=;]`},
})

var parser = participle.MustBuild[Expr](
	participle.Lexer(dslLexer),
	participle.Unquote("String"),
	participle.UseLookahead(4),
	participle.Elide("Whitespace"),
)

// Parse compiles source into an expression tree.
func Parse(source string) (*Expr, error) {
	expr, err := parser.ParseString("", source)
	if err != nil {
		return nil, wrapParseError(err)
	}
	return expr, nil
}

// Expr is the top-level alternation: a let-binding, an if/else, a return,
// or (falling through) a plain operator expression.
type Expr struct {
	Pos lexer.Position

	Let    *LetExpr `  @@`
	If     *IfExpr  `| @@`
	Return *RetExpr `| @@`
	Or     *OrExpr  `| @@`
}

// LetExpr is `let name = value; body`.
type LetExpr struct {
	Pos lexer.Position

	Name  string `"let" @Ident "="`
	Value *Expr  `@@ ";"`
	Body  *Expr  `@@`
}

// IfExpr is `if cond then thenBranch else elseBranch`.
type IfExpr struct {
	Pos lexer.Position

	Cond *Expr `"if" @@`
	Then *Expr `"then" @@`
	Else *Expr `"else" @@`
}

// RetExpr is `return value`.
type RetExpr struct {
	Pos lexer.Position

	Value *Expr `"return" @@`
}

// OrExpr is left-associative `||`.
type OrExpr struct {
	Pos lexer.Position

	Left  *AndExpr   `@@`
	Right []*AndExpr `( "||" @@ )*`
}

// AndExpr is left-associative `&&`.
type AndExpr struct {
	Pos lexer.Position

	Left  *EqualityExpr   `@@`
	Right []*EqualityExpr `( "&&" @@ )*`
}

// EqualityExpr handles `==` and `!=`, left-associative.
type EqualityExpr struct {
	Pos lexer.Position

	Left  *RelExpr   `@@`
	Ops   []string   `( @( "==" | "!=" )`
	Right []*RelExpr `  @@ )*`
}

// RelExpr handles `< <= > >=`, left-associative.
type RelExpr struct {
	Pos lexer.Position

	Left  *AddExpr   `@@`
	Ops   []string   `( @( "<=" | ">=" | "<" | ">" )`
	Right []*AddExpr `  @@ )*`
}

// AddExpr handles `+ -`, left-associative.
type AddExpr struct {
	Pos lexer.Position

	Left  *MulExpr   `@@`
	Ops   []string   `( @( "+" | "-" )`
	Right []*MulExpr `  @@ )*`
}

// MulExpr handles `* /`, left-associative.
type MulExpr struct {
	Pos lexer.Position

	Left  *PowExpr   `@@`
	Ops   []string   `( @( "*" | "/" )`
	Right []*PowExpr `  @@ )*`
}

// PowExpr handles `^`, right-associative via self-recursion on Right.
type PowExpr struct {
	Pos lexer.Position

	Left  *UnaryExpr `@@`
	Right *PowExpr   `( "^" @@ )?`
}

// UnaryExpr handles prefix `-` and `!`.
type UnaryExpr struct {
	Pos lexer.Position

	Op      string   `( @( "-" | "!" )`
	Operand *Primary `  @@`
	Simple  *Primary `| @@ )`
}

// Primary is a literal, an identifier chain (variable, field access, or
// call), or a parenthesized sub-expression.
type Primary struct {
	Pos lexer.Position

	Float  *float64    `  @Float`
	Int    *int64      `| @Int`
	Bool   *string     `| @( "true" | "false" )`
	Null   bool        `| @"null"`
	Str    *string     `| @String`
	Ident  *IdentChain `| @@`
	Sub    *Expr       `| "(" @@ ")"`
}

// IdentChain is a base identifier optionally followed by `.field` accesses
// or `(args)` call parens, e.g. `Schema.field`, `min(a, b)`.
type IdentChain struct {
	Pos lexer.Position

	Base  string   `@Ident`
	Trail []*Trail `@@*`
}

// Trail is one suffix of an IdentChain.
type Trail struct {
	Pos lexer.Position

	Field *string  `  "." @Ident`
	Call  *CallArg `| @@`
}

// CallArg is the `(arg, arg, ...)` suffix of a function call.
type CallArg struct {
	Pos lexer.Position

	Args []*Expr `"(" ( @@ ( "," @@ )* )? ")"`
}
