package predicate_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recordstore/internal/index"
	"github.com/calvinalkan/recordstore/internal/predicate"
	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/table"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

func schemaWithIndexedID(t *testing.T) *schema.Schema {
	t.Helper()

	src := "2\nid\nINT 0 1 1 1\nname\nVARCHAR 32 0 1 0\n"
	sch, err := schema.Parse(strings.NewReader(src))
	require.NoError(t, err)

	return sch
}

func buildIndexes(t *testing.T) predicate.Indexes {
	t.Helper()

	idIdx := index.New(true)
	for i, n := range []int32{1, 2, 3, 4, 5} {
		require.NoError(t, idIdx.Insert(value.NewInt32(n), table.RID{Page: 1, Slot: uint16(i + 1)}))
	}

	nameIdx := index.New(false)
	namev, err := value.NewVarchar(32, []byte("bob"))
	require.NoError(t, err)
	require.NoError(t, nameIdx.Insert(namev, table.RID{Page: 1, Slot: 2}))

	return predicate.Indexes{"id": idIdx, "name": nameIdx}
}

func TestPlanEqualityOnIndexedColumn(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	expr := predicate.BinaryExpr{Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 2}}

	set, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []table.RID{{Page: 1, Slot: 2}}, set.Slice())
}

func TestPlanAndIntersects(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	expr := predicate.BinaryExpr{
		Op:   predicate.And,
		Left: predicate.BinaryExpr{Op: predicate.Gt, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1}},
		Right: predicate.BinaryExpr{
			Op: predicate.Eq, Left: predicate.ColumnRef{Name: "name"}, Right: predicate.LiteralString{Value: "bob"},
		},
	}

	set, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []table.RID{{Page: 1, Slot: 2}}, set.Slice())
}

func TestPlanOrUnions(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	expr := predicate.BinaryExpr{
		Op:   predicate.Or,
		Left: predicate.BinaryExpr{Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1}},
		Right: predicate.BinaryExpr{
			Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 5},
		},
	}

	set, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []table.RID{{Page: 1, Slot: 1}, {Page: 1, Slot: 5}}, set.Slice())
}

func TestPlanNotIsUnplannable(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	expr := predicate.NotExpr{
		Operand: predicate.BinaryExpr{Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1}},
	}

	_, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlanNotEqualsIsUnplannable(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	expr := predicate.BinaryExpr{Op: predicate.Ne, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1}}

	_, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlanColOpColIsUnplannable(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	expr := predicate.BinaryExpr{Op: predicate.Lt, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.ColumnRef{Name: "name"}}

	_, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlanAndWithUnplannableChildIsUnplannable(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	expr := predicate.BinaryExpr{
		Op:   predicate.And,
		Left: predicate.NotExpr{Operand: predicate.BinaryExpr{Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1}}},
		Right: predicate.BinaryExpr{
			Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 2},
		},
	}

	_, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPlanStrictInequalitiesExcludeEndpoint(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	gt := predicate.BinaryExpr{Op: predicate.Gt, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 3}}

	set, ok, err := predicate.Plan(gt, sch, indexes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []table.RID{{Page: 1, Slot: 4}, {Page: 1, Slot: 5}}, set.Slice())

	lt := predicate.BinaryExpr{Op: predicate.Lt, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 3}}

	set, ok, err = predicate.Plan(lt, sch, indexes)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []table.RID{{Page: 1, Slot: 1}, {Page: 1, Slot: 2}}, set.Slice())
}

// TestPlanOrUnionMatchesRegardlessOfOrder compares the planned RID set
// against an expected list written in a different order than Slice()
// produces, using cmpopts.SortSlices since testify's reflect-based
// Equal would otherwise fail on the ordering difference alone.
func TestPlanOrUnionMatchesRegardlessOfOrder(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := buildIndexes(t)

	expr := predicate.BinaryExpr{
		Op:   predicate.Or,
		Left: predicate.BinaryExpr{Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 5}},
		Right: predicate.BinaryExpr{
			Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1},
		},
	}

	set, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.True(t, ok)

	expected := []table.RID{{Page: 1, Slot: 5}, {Page: 1, Slot: 1}}

	less := func(a, b table.RID) bool { return a.Less(b) }
	if diff := cmp.Diff(expected, set.Slice(), cmpopts.SortSlices(less)); diff != "" {
		t.Errorf("RID set mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanColumnWithoutBuiltIndexIsUnplannable(t *testing.T) {
	sch := schemaWithIndexedID(t)
	indexes := predicate.Indexes{} // no indexes built at all

	expr := predicate.BinaryExpr{Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1}}

	_, ok, err := predicate.Plan(expr, sch, indexes)
	require.NoError(t, err)
	require.False(t, ok)
}
