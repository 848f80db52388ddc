package engine_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recordstore/internal/engine"
	"github.com/calvinalkan/recordstore/internal/predicate"
	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/record"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

const testPageSize = 512

func newTestTable(t *testing.T) *engine.Table {
	t.Helper()

	dir := t.TempDir()

	src := "3\nid\nINT 0 1 1 1\nname\nVARCHAR 32 0 1 0\nage\nINT 0 0 0 0\n"
	sch, err := schema.Parse(strings.NewReader(src))
	require.NoError(t, err)

	maxPages := uint32(testPageSize/4 - 1)

	tb, err := engine.Create(filepath.Join(dir, "people"), sch, testPageSize, maxPages)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tb.Close() })

	return tb
}

func row(t *testing.T, id int32, name string, age int32) record.Tuple {
	t.Helper()

	n, err := value.NewVarchar(32, []byte(name))
	require.NoError(t, err)

	return record.Tuple{value.NewInt32(id), n, value.NewInt32(age)}
}

func idEq(v int32) predicate.Expr {
	return predicate.BinaryExpr{Op: predicate.Eq, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: v}}
}

func nameEq(s string) predicate.Expr {
	return predicate.BinaryExpr{Op: predicate.Eq, Left: predicate.ColumnRef{Name: "name"}, Right: predicate.LiteralString{Value: s}}
}

func requireTuple(t *testing.T, rows []record.Tuple, id int32, name string, age int32) {
	t.Helper()

	require.Len(t, rows, 1)

	idv, _ := rows[0][0].Int32Value()
	require.Equal(t, id, idv)

	nb, _ := rows[0][1].Bytes()
	require.Equal(t, name, string(nb))

	agev, _ := rows[0][2].Int32Value()
	require.Equal(t, age, agev)
}

// Scenario 1: insert two rows, select by indexed equality.
func TestScenarioInsertAndSelectByID(t *testing.T) {
	tb := newTestTable(t)

	_, err := tb.Insert(row(t, 1, "ada", 37))
	require.NoError(t, err)

	_, err = tb.Insert(row(t, 2, "bob", 24))
	require.NoError(t, err)

	rows, err := tb.Select(nil, idEq(2))
	require.NoError(t, err)
	requireTuple(t, rows, 2, "bob", 24)
}

// Scenario 2: a duplicate primary key is rejected and nothing changes.
func TestScenarioDuplicatePrimaryKeyRejected(t *testing.T) {
	tb := newTestTable(t)

	_, err := tb.Insert(row(t, 1, "ada", 37))
	require.NoError(t, err)

	_, err = tb.Insert(row(t, 2, "bob", 24))
	require.NoError(t, err)

	_, err = tb.Insert(row(t, 1, "x", 0))
	require.ErrorIs(t, err, engine.ErrUniquenessViolation)

	rows, err := tb.Select(nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

// Scenario 3: delete by a secondary index; bob stays reachable by a full
// scan and through the primary index.
func TestScenarioDeleteBySecondaryIndex(t *testing.T) {
	tb := newTestTable(t)

	_, err := tb.Insert(row(t, 1, "ada", 37))
	require.NoError(t, err)

	_, err = tb.Insert(row(t, 2, "bob", 24))
	require.NoError(t, err)

	n, err := tb.Delete(nameEq("ada"))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := tb.Select(nil, idEq(1))
	require.NoError(t, err)
	require.Empty(t, rows)

	rows, err = tb.Select(nil, nil)
	require.NoError(t, err)
	requireTuple(t, rows, 2, "bob", 24)

	rows, err = tb.Select(nil, idEq(2))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

// Scenario 4: update a field in place, the secondary index stays queryable.
func TestScenarioUpdateInPlace(t *testing.T) {
	tb := newTestTable(t)

	_, err := tb.Insert(row(t, 1, "ada", 37))
	require.NoError(t, err)

	_, err = tb.Insert(row(t, 2, "bob", 24))
	require.NoError(t, err)

	n, err := tb.Update([]engine.Assignment{{Column: "age", Value: value.NewInt32(25)}}, idEq(2))
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := tb.Select([]string{"age"}, idEq(2))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	agev, _ := rows[0][0].Int32Value()
	require.Equal(t, int32(25), agev)

	rows, err = tb.Select(nil, nameEq("bob"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

// Updating a primary key to another live row's value takes the same
// in-place overwrite path as TestScenarioUpdateInPlace (id is a fixed-width
// Int32, so the new encoded tuple is always the same size as the old one),
// and must be rejected without corrupting the base table or either row's
// primary index entry.
func TestScenarioUpdateToExistingPrimaryKeyRejected(t *testing.T) {
	tb := newTestTable(t)

	_, err := tb.Insert(row(t, 1, "ada", 37))
	require.NoError(t, err)

	_, err = tb.Insert(row(t, 2, "bob", 24))
	require.NoError(t, err)

	n, err := tb.Update([]engine.Assignment{{Column: "id", Value: value.NewInt32(2)}}, idEq(1))
	require.ErrorIs(t, err, engine.ErrUniquenessViolation)
	require.Equal(t, 0, n)

	rows, err := tb.Select(nil, nil)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = tb.Select(nil, idEq(1))
	require.NoError(t, err)
	requireTuple(t, rows, 1, "ada", 37)

	rows, err = tb.Select(nil, idEq(2))
	require.NoError(t, err)
	requireTuple(t, rows, 2, "bob", 24)
}

// Scenario 5: a long alternating insert/delete run keeps the table consistent.
func TestScenarioAlternatingInsertDelete(t *testing.T) {
	tb := newTestTable(t)

	live := map[int32]bool{}

	for i := int32(0); i < 100; i++ {
		name := strings.Repeat("x", 1+int(i%20))

		id := i % 17
		if live[id] {
			n, err := tb.Delete(idEq(id))
			require.NoError(t, err)
			require.Equal(t, 1, n)
			live[id] = false

			continue
		}

		_, err := tb.Insert(row(t, id, name, i))
		require.NoError(t, err)
		live[id] = true
	}

	rows, err := tb.Select(nil, nil)
	require.NoError(t, err)

	wantCount := 0
	for _, v := range live {
		if v {
			wantCount++
		}
	}

	require.Len(t, rows, wantCount)
}

// Scenario 6: AND across two indexed columns plans via intersection; NOT
// falls back to a scan but returns the same rows as the equivalent <>.
func TestScenarioPlannableAndUnplannableAgree(t *testing.T) {
	tb := newTestTable(t)

	_, err := tb.Insert(row(t, 1, "ada", 37))
	require.NoError(t, err)

	_, err = tb.Insert(row(t, 2, "bob", 24))
	require.NoError(t, err)

	and := predicate.BinaryExpr{
		Op:    predicate.And,
		Left:  predicate.BinaryExpr{Op: predicate.Gt, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1}},
		Right: nameEq("bob"),
	}

	rows, err := tb.Select(nil, and)
	require.NoError(t, err)
	requireTuple(t, rows, 2, "bob", 24)

	notExpr := predicate.NotExpr{Operand: idEq(1)}

	rowsNot, err := tb.Select(nil, notExpr)
	require.NoError(t, err)

	neExpr := predicate.BinaryExpr{Op: predicate.Ne, Left: predicate.ColumnRef{Name: "id"}, Right: predicate.LiteralInt{Value: 1}}

	rowsNe, err := tb.Select(nil, neExpr)
	require.NoError(t, err)

	require.ElementsMatch(t, rowsNot, rowsNe)
	requireTuple(t, rowsNot, 2, "bob", 24)
}

func TestInsertStringAtExactCapacitySucceeds(t *testing.T) {
	tb := newTestTable(t)

	full, err := value.NewVarchar(32, []byte(strings.Repeat("a", 32)))
	require.NoError(t, err)

	_, err = tb.Insert(record.Tuple{value.NewInt32(1), full, value.NewInt32(0)})
	require.NoError(t, err)
}

func TestInsertSchemaViolationKindMismatch(t *testing.T) {
	tb := newTestTable(t)

	// "name" is VARCHAR; handing it an Int32 value is a kind mismatch,
	// not something the value package itself rejects at construction.
	tup := record.Tuple{value.NewInt32(1), value.NewInt32(99), value.NewInt32(0)}

	_, err := tb.Insert(tup)
	require.ErrorIs(t, err, engine.ErrSchemaViolation)
}

func TestReopenRebuildsIndexes(t *testing.T) {
	dir := t.TempDir()
	tableDir := filepath.Join(dir, "people")

	src := "3\nid\nINT 0 1 1 1\nname\nVARCHAR 32 0 1 0\nage\nINT 0 0 0 0\n"
	sch, err := schema.Parse(strings.NewReader(src))
	require.NoError(t, err)

	maxPages := uint32(testPageSize/4 - 1)

	tb, err := engine.Create(tableDir, sch, testPageSize, maxPages)
	require.NoError(t, err)

	_, err = tb.Insert(row(t, 1, "ada", 37))
	require.NoError(t, err)
	require.NoError(t, tb.Close())

	reopened, err := engine.Open(tableDir, testPageSize, maxPages)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	rows, err := reopened.Select(nil, nameEq("ada"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
