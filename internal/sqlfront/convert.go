package sqlfront

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/recordstore/internal/predicate"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

// ErrUnsupportedOperator is returned for a comparison operator the
// predicate package has no Op for (there are none today, kept for
// forward compatibility with the grammar).
var ErrUnsupportedOperator = errors.New("sqlfront: unsupported operator")

// ToExpr converts a parsed WHERE clause into the predicate.Expr tree
// internal/engine consumes. A nil OrExpr (no WHERE clause) converts to a
// nil Expr, matching engine.Select/Delete/Update's "no predicate" sentinel.
func ToExpr(or *OrExpr) (predicate.Expr, error) {
	if or == nil {
		return nil, nil
	}

	return convertOr(or)
}

func convertOr(or *OrExpr) (predicate.Expr, error) {
	left, err := convertAnd(or.Left)
	if err != nil {
		return nil, err
	}

	if or.Right == nil {
		return left, nil
	}

	right, err := convertOr(or.Right)
	if err != nil {
		return nil, err
	}

	return predicate.BinaryExpr{Op: predicate.Or, Left: left, Right: right}, nil
}

func convertAnd(and *AndExpr) (predicate.Expr, error) {
	left, err := convertNot(and.Left)
	if err != nil {
		return nil, err
	}

	if and.Right == nil {
		return left, nil
	}

	right, err := convertAnd(and.Right)
	if err != nil {
		return nil, err
	}

	return predicate.BinaryExpr{Op: predicate.And, Left: left, Right: right}, nil
}

func convertNot(not *NotExpr) (predicate.Expr, error) {
	cmp, err := convertComparison(not.Comparison)
	if err != nil {
		return nil, err
	}

	if not.Negated {
		return predicate.NotExpr{Operand: cmp}, nil
	}

	return cmp, nil
}

func convertComparison(c *Comparison) (predicate.Expr, error) {
	left, err := convertOperand(c.Left)
	if err != nil {
		return nil, err
	}

	right, err := convertOperand(c.Right)
	if err != nil {
		return nil, err
	}

	op, err := convertOp(c.Op)
	if err != nil {
		return nil, err
	}

	return predicate.BinaryExpr{Op: op, Left: left, Right: right}, nil
}

func convertOperand(o *Operand) (predicate.Expr, error) {
	if o.Column != nil {
		return predicate.ColumnRef{Name: *o.Column}, nil
	}

	return convertLiteral(o.Literal)
}

func convertLiteral(l *Literal) (predicate.Expr, error) {
	if l.Int != nil {
		return predicate.LiteralInt{Value: *l.Int}, nil
	}

	return predicate.LiteralString{Value: *l.String}, nil
}

func convertOp(tok string) (predicate.Op, error) {
	switch tok {
	case "=":
		return predicate.Eq, nil
	case "<":
		return predicate.Lt, nil
	case ">":
		return predicate.Gt, nil
	case "<=":
		return predicate.Le, nil
	case ">=":
		return predicate.Ge, nil
	case "<>", "!=":
		return predicate.Ne, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedOperator, tok)
	}
}

// LiteralToColumnValue converts a literal into a storage value typed for
// column col (Int32 verbatim, Varchar at capacity tier). Used for INSERT
// values and UPDATE assignments, which must carry real ColumnValues rather
// than the untyped scalars the predicate evaluator uses for WHERE clauses.
func LiteralToColumnValue(l *Literal, capacity int) (value.ColumnValue, error) {
	if l.Int != nil {
		return value.NewInt32(*l.Int), nil
	}

	return value.NewVarchar(capacity, []byte(*l.String))
}
