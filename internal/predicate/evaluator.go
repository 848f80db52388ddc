package predicate

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/record"
)

// ErrTypeMismatch is returned when a comparison combines incompatible
// scalar kinds (spec.md §7's TypeMismatch error kind).
var ErrTypeMismatch = errors.New("predicate: type mismatch")

// ErrMalformed is returned when an expression tree has an unrecognized
// node shape (spec.md §7's Malformed error kind).
var ErrMalformed = errors.New("predicate: malformed expression")

// ErrUnknownColumn is returned when a ColumnRef names a column absent from the schema.
var ErrUnknownColumn = errors.New("predicate: unknown column")

type scalarKind int

const (
	scalarInt scalarKind = iota
	scalarString
)

type scalar struct {
	kind scalarKind
	i    int32
	s    []byte
}

// Evaluate walks expr against tup (decoded per sch) and reports its
// boolean value, per spec.md §4.F.
func Evaluate(expr Expr, tup record.Tuple, sch *schema.Schema) (bool, error) {
	switch e := expr.(type) {
	case NotExpr:
		v, err := Evaluate(e.Operand, tup, sch)
		if err != nil {
			return false, err
		}

		return !v, nil

	case BinaryExpr:
		if isBooleanCombinator(e.Op) {
			left, err := Evaluate(e.Left, tup, sch)
			if err != nil {
				return false, err
			}

			if e.Op == And && !left {
				return false, nil
			}

			if e.Op == Or && left {
				return true, nil
			}

			return Evaluate(e.Right, tup, sch)
		}

		return evaluateComparison(e, tup, sch)

	default:
		return false, fmt.Errorf("%w: expression is not a boolean node", ErrMalformed)
	}
}

func evaluateComparison(e BinaryExpr, tup record.Tuple, sch *schema.Schema) (bool, error) {
	left, err := resolveScalar(e.Left, tup, sch)
	if err != nil {
		return false, err
	}

	right, err := resolveScalar(e.Right, tup, sch)
	if err != nil {
		return false, err
	}

	if left.kind != right.kind {
		return false, fmt.Errorf("%w: comparing %v to %v", ErrTypeMismatch, e.Left, e.Right)
	}

	var cmp int

	switch left.kind {
	case scalarInt:
		switch {
		case left.i < right.i:
			cmp = -1
		case left.i > right.i:
			cmp = 1
		}
	case scalarString:
		cmp = compareBytes(left.s, right.s)
	}

	switch e.Op {
	case Eq:
		return cmp == 0, nil
	case Ne:
		return cmp != 0, nil
	case Lt:
		return cmp < 0, nil
	case Gt:
		return cmp > 0, nil
	case Le:
		return cmp <= 0, nil
	case Ge:
		return cmp >= 0, nil
	default:
		return false, fmt.Errorf("%w: not a comparison operator: %s", ErrMalformed, e.Op)
	}
}

func compareBytes(a, b []byte) int {
	switch {
	case string(a) < string(b):
		return -1
	case string(a) > string(b):
		return 1
	default:
		return 0
	}
}

// resolveScalar resolves a leaf Expr to its scalar value. ColumnRef reads
// from tup via sch's column ordinal; null values resolve to the same
// zero/empty representation value.ColumnValue uses (ColumnValue.Print's
// legacy null convention), so comparisons against null behave as
// comparisons against zero/empty rather than raising an error.
func resolveScalar(e Expr, tup record.Tuple, sch *schema.Schema) (scalar, error) {
	switch n := e.(type) {
	case LiteralInt:
		return scalar{kind: scalarInt, i: n.Value}, nil

	case LiteralString:
		return scalar{kind: scalarString, s: []byte(n.Value)}, nil

	case ColumnRef:
		idx, ok := sch.ColumnIndex(n.Name)
		if !ok {
			return scalar{}, fmt.Errorf("%w: %q", ErrUnknownColumn, n.Name)
		}

		col := tup[idx]

		if iv, isInt := col.Int32Value(); isInt {
			return scalar{kind: scalarInt, i: iv}, nil
		}

		b, _ := col.Bytes()

		return scalar{kind: scalarString, s: b}, nil

	default:
		return scalar{}, fmt.Errorf("%w: operand is not a leaf value", ErrMalformed)
	}
}
