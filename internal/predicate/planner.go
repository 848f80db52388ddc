package predicate

import (
	"sort"

	"github.com/calvinalkan/recordstore/internal/index"
	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/table"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

// RIDSet is a candidate record-id set produced by the planner, supporting
// the intersection/union composition AND/OR require.
type RIDSet map[table.RID]struct{}

func newRIDSet(rids []table.RID) RIDSet {
	s := make(RIDSet, len(rids))
	for _, r := range rids {
		s[r] = struct{}{}
	}

	return s
}

// Intersect returns the set of RIDs present in both s and other.
func (s RIDSet) Intersect(other RIDSet) RIDSet {
	out := make(RIDSet)

	for r := range s {
		if _, ok := other[r]; ok {
			out[r] = struct{}{}
		}
	}

	return out
}

// Union returns the set of RIDs present in either s or other.
func (s RIDSet) Union(other RIDSet) RIDSet {
	out := make(RIDSet, len(s)+len(other))

	for r := range s {
		out[r] = struct{}{}
	}

	for r := range other {
		out[r] = struct{}{}
	}

	return out
}

// Subtract returns the set of RIDs in s that are not in other.
func (s RIDSet) Subtract(other RIDSet) RIDSet {
	out := make(RIDSet)

	for r := range s {
		if _, ok := other[r]; !ok {
			out[r] = struct{}{}
		}
	}

	return out
}

// Slice returns the set's members in ascending (page, slot) order, giving
// deterministic iteration for callers (e.g. delete must materialize
// before mutating, per spec.md §9).
func (s RIDSet) Slice() []table.RID {
	out := make([]table.RID, 0, len(s))
	for r := range s {
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })

	return out
}

// Indexes is the set of per-column indexes the planner may consult,
// keyed by column name.
type Indexes map[string]*index.Index

// Plan recursively transforms expr into a candidate RID set, per
// spec.md §4.G. The boolean return reports plannability: false means
// "fall back to a full scan", and the returned set is then meaningless.
//
// Plannable: `col OP literal` on an indexed column with OP in
// {=,<,>,<=,>=}, and AND/OR of two plannable children (intersection /
// union respectively). Unplannable: NOT, `col OP col`, `literal OP
// literal`, `<>`, and AND/OR with any unplannable child — no partial
// planning, matching spec.md §9's corrected union/intersection contract.
func Plan(expr Expr, sch *schema.Schema, indexes Indexes) (RIDSet, bool, error) {
	e, ok := expr.(BinaryExpr)
	if !ok {
		return nil, false, nil
	}

	switch e.Op {
	case And:
		left, leftOK, err := Plan(e.Left, sch, indexes)
		if err != nil || !leftOK {
			return nil, false, err
		}

		right, rightOK, err := Plan(e.Right, sch, indexes)
		if err != nil || !rightOK {
			return nil, false, err
		}

		return left.Intersect(right), true, nil

	case Or:
		left, leftOK, err := Plan(e.Left, sch, indexes)
		if err != nil || !leftOK {
			return nil, false, err
		}

		right, rightOK, err := Plan(e.Right, sch, indexes)
		if err != nil || !rightOK {
			return nil, false, err
		}

		return left.Union(right), true, nil

	case Ne:
		return nil, false, nil

	default:
		return planComparison(e, sch, indexes)
	}
}

// planComparison handles `col OP literal` (or `literal OP col`, with the
// operator flipped to the equivalent column-first form). Any other shape
// — col OP col, literal OP literal, or a reference to a non-indexed
// column — is unplannable.
func planComparison(e BinaryExpr, sch *schema.Schema, indexes Indexes) (RIDSet, bool, error) {
	col, lit, op, ok := normalizeComparison(e)
	if !ok {
		return nil, false, nil
	}

	colIdx, found := sch.ColumnIndex(col.Name)
	if !found {
		return nil, false, nil
	}

	def := sch.Columns[colIdx]
	if !def.Indexed {
		return nil, false, nil
	}

	ix, ok := indexes[col.Name]
	if !ok {
		return nil, false, nil
	}

	key, err := literalToColumnValue(lit, def)
	if err != nil {
		return nil, false, err
	}

	switch op {
	case Eq:
		rids, _ := ix.LookupEq(key)

		return newRIDSet(rids), true, nil

	case Lt:
		return newRIDSet(ix.LookupRange(nil, &key)), true, nil

	case Ge:
		return newRIDSet(ix.LookupRange(&key, nil)), true, nil

	case Le:
		below := newRIDSet(ix.LookupRange(nil, &key))
		eq, _ := ix.LookupEq(key)

		return below.Union(newRIDSet(eq)), true, nil

	case Gt:
		atOrAbove := newRIDSet(ix.LookupRange(&key, nil))
		eq, _ := ix.LookupEq(key)

		return atOrAbove.Subtract(newRIDSet(eq)), true, nil

	default:
		return nil, false, nil
	}
}

// normalizeComparison extracts the (column, literal, operator) triple
// from a comparison node, flipping the operator when the literal appears
// on the left. Reports ok=false for any other shape.
func normalizeComparison(e BinaryExpr) (col ColumnRef, lit Expr, op Op, ok bool) {
	if c, isCol := e.Left.(ColumnRef); isCol {
		if isLiteral(e.Right) {
			return c, e.Right, e.Op, true
		}

		return ColumnRef{}, nil, 0, false
	}

	if c, isCol := e.Right.(ColumnRef); isCol {
		if isLiteral(e.Left) {
			return c, e.Left, flipOp(e.Op), true
		}
	}

	return ColumnRef{}, nil, 0, false
}

func isLiteral(e Expr) bool {
	switch e.(type) {
	case LiteralInt, LiteralString:
		return true
	default:
		return false
	}
}

// flipOp rewrites `literal OP col` into the equivalent `col OP' literal`.
func flipOp(op Op) Op {
	switch op {
	case Lt:
		return Gt
	case Gt:
		return Lt
	case Le:
		return Ge
	case Ge:
		return Le
	default:
		return op
	}
}

func literalToColumnValue(lit Expr, def schema.ColumnDef) (value.ColumnValue, error) {
	switch l := lit.(type) {
	case LiteralInt:
		return value.NewInt32(l.Value), nil
	case LiteralString:
		return value.NewVarchar(def.Capacity, []byte(l.Value))
	default:
		return value.ColumnValue{}, ErrMalformed
	}
}
