// Package sqlfront is the tiny SQL statement surface: it parses
// INSERT/SELECT/DELETE/UPDATE text into the same expression-tree node
// kinds internal/predicate already evaluates and plans over, so the
// engine never has to know a statement was typed by a human.
package sqlfront

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "String", Pattern: `'(\\.|[^'])*'`},
	{Name: "Number", Pattern: `-?\d+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `<=|>=|<>|!=|[,()*=<>]`},
})

// Statement is the parsed shape of exactly one of the four supported
// statement kinds; callers switch on which pointer field is non-nil.
type Statement struct {
	Insert *InsertStmt `parser:"  @@"`
	Select *SelectStmt `parser:"| @@"`
	Delete *DeleteStmt `parser:"| @@"`
	Update *UpdateStmt `parser:"| @@"`
}

// InsertStmt is INSERT INTO table VALUES (lit, lit, ...).
type InsertStmt struct {
	Table  string    `parser:"\"insert\" \"into\" @Ident"`
	Values []*Literal `parser:"\"values\" \"(\" @@ ( \",\" @@ )* \")\""`
}

// SelectStmt is SELECT (* | col, col, ...) FROM table [WHERE expr].
type SelectStmt struct {
	Star    bool     `parser:"\"select\" ( @\"*\""`
	Columns []string `parser:"  | @Ident ( \",\" @Ident )* )"`
	Table   string   `parser:"\"from\" @Ident"`
	Where   *OrExpr  `parser:"( \"where\" @@ )?"`
}

// DeleteStmt is DELETE FROM table [WHERE expr].
type DeleteStmt struct {
	Table string  `parser:"\"delete\" \"from\" @Ident"`
	Where *OrExpr `parser:"( \"where\" @@ )?"`
}

// UpdateStmt is UPDATE table SET col = lit, ... [WHERE expr].
type UpdateStmt struct {
	Table       string        `parser:"\"update\" @Ident \"set\""`
	Assignments []*Assignment `parser:"@@ ( \",\" @@ )*"`
	Where       *OrExpr       `parser:"( \"where\" @@ )?"`
}

// Assignment is one column = literal pair inside a SET clause.
type Assignment struct {
	Column string   `parser:"@Ident \"=\""`
	Value  *Literal `parser:"@@"`
}

// Literal is either an integer or a single-quoted string constant.
type Literal struct {
	Int    *int32  `parser:"  @Number"`
	String *string `parser:"| @String"`
}

// OrExpr / AndExpr / NotExpr / Comparison implement standard precedence:
// OR binds loosest, then AND, then an optional NOT, then a comparison.
type OrExpr struct {
	Left  *AndExpr `parser:"@@"`
	Right *OrExpr  `parser:"( \"or\" @@ )?"`
}

type AndExpr struct {
	Left  *NotExpr `parser:"@@"`
	Right *AndExpr `parser:"( \"and\" @@ )?"`
}

type NotExpr struct {
	Negated    bool        `parser:"( @\"not\" )?"`
	Comparison *Comparison `parser:"@@"`
}

// Comparison is operand OP operand, where each operand is a column
// reference or a literal; at least one side must be a column for the
// result to be plannable, but the grammar itself accepts any combination.
type Comparison struct {
	Left  *Operand `parser:"@@"`
	Op    string   `parser:"@( \"<=\" | \">=\" | \"<>\" | \"!=\" | \"=\" | \"<\" | \">\" )"`
	Right *Operand `parser:"@@"`
}

// Operand is a column reference or a literal constant.
type Operand struct {
	Column  *string `parser:"(  @Ident"`
	Literal *Literal `parser:" | @@ )"`
}

var parser = participle.MustBuild[Statement](
	participle.Lexer(sqlLexer),
	participle.Unquote("String"),
	participle.CaseInsensitive("Ident"),
)

// Parse parses one SQL statement. The returned Statement has exactly one
// of Insert/Select/Delete/Update set.
func Parse(src string) (*Statement, error) {
	return parser.ParseString("", src)
}
