// Package iql implements the declarative graph query language: a
// participle/v2 grammar and parser (this file), an AST executor
// (executor.go) that compiles parsed queries into store.Store calls, and
// structured syntax errors carrying the offending token's offset.
package iql

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var iqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Number", Pattern: `[-+]?\d+(?:\.\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Operator", Pattern: `!=|>=|<=|=|>|<`},
	{Name: "Punct", Pattern: `[(),\[\]\.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// Value is a literal in a compare expression or a call argument.
type Value struct {
	Str  *string  `parser:"  @String"`
	Num  *float64 `parser:"| @Number"`
	Bool *string  `parser:"| @(\"true\"|\"false\")"`
	List []*Value `parser:"| \"[\" ( @@ ( \",\" @@ )* )? \"]\""`
}

// Call is a predicate function invocation such as tagged("env", "prod").
type Call struct {
	Func string   `parser:"@(\"tagged\"|\"drifted_since\"|\"has_edge\"|\"created_after\"|\"created_before\")"`
	Args []*Value `parser:"\"(\" ( @@ ( \",\" @@ )* )? \")\""`
}

// Compare is a field/operator/value predicate, e.g. tag.env = 'prod'.
type Compare struct {
	Field []string `parser:"@Ident ( \".\" @Ident )*"`
	Op    string   `parser:"@(\"=\"|\"!=\"|\">=\"|\"<=\"|\">\"|\"<\"|\"LIKE\"|\"IN\"|\"MATCHES\")"`
	Value *Value   `parser:"@@"`
}

// Primary is a parenthesized expression, a function call, or a comparison.
type Primary struct {
	Sub     *Expr    `parser:"  \"(\" @@ \")\""`
	Call    *Call    `parser:"| @@"`
	Compare *Compare `parser:"| @@"`
}

// NotExpr is an optionally-negated Primary.
type NotExpr struct {
	Not     bool     `parser:"( @\"NOT\" )?"`
	Primary *Primary `parser:"@@"`
}

// AndExpr is a conjunction of NotExprs.
type AndExpr struct {
	And []*NotExpr `parser:"@@ ( \"AND\" @@ )*"`
}

// Expr is a disjunction of AndExprs: the full WHERE predicate.
type Expr struct {
	Or []*AndExpr `parser:"@@ ( \"OR\" @@ )*"`
}

// PathTarget captures the "FROM x TO y" clause of a PATH query.
type PathTarget struct {
	From string `parser:"@String \"TO\""`
	To   string `parser:"@String"`
}

// FindQuery is the FIND branch of a query.
type FindQuery struct {
	Resources  bool        `parser:"\"FIND\" ( @\"resources\""`
	Downstream *string     `parser:"  | \"DOWNSTREAM\" \"OF\" @String"`
	Upstream   *string     `parser:"  | \"UPSTREAM\" \"OF\" @String"`
	Path       *PathTarget `parser:"  | \"PATH\" \"FROM\" @@ )"`
	Where      *Expr       `parser:"( \"WHERE\" @@ )?"`
	Depth      *float64    `parser:"( \"DEPTH\" @Number )?"`
	Limit      *float64    `parser:"( \"LIMIT\" @Number )?"`
}

// SummarizeQuery is the SUMMARIZE branch of a query.
type SummarizeQuery struct {
	Field   string `parser:"\"SUMMARIZE\" @Ident"`
	GroupBy string `parser:"\"BY\" @Ident"`
	Where   *Expr  `parser:"( \"WHERE\" @@ )?"`
}

// Query is the top-level parse result: exactly one of Find or Summarize.
type Query struct {
	Find      *FindQuery      `parser:"(  @@"`
	Summarize *SummarizeQuery `parser:" | @@ )"`
}

var parser = participle.MustBuild[Query](
	participle.Lexer(iqlLexer),
	participle.Unquote("String"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(1024),
	participle.Elide("Whitespace"),
)

// Parse compiles src into a Query AST, or a *SyntaxError with the offending
// token's offset if src is malformed.
func Parse(src string) (*Query, error) {
	q, err := parser.ParseString("", src)
	if err != nil {
		return nil, toSyntaxError(err, src)
	}
	return q, nil
}
