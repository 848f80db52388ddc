package schema_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

const exampleSchema = `3
id
INT 0 1 1 1
name
VARCHAR 32 0 1 0
age
INT 0 0 0 0
`

func TestParseExampleSchema(t *testing.T) {
	sch, err := schema.Parse(strings.NewReader(exampleSchema))
	require.NoError(t, err)
	require.Len(t, sch.Columns, 3)

	require.Equal(t, "id", sch.Columns[0].Name)
	require.Equal(t, value.Int32, sch.Columns[0].Kind)
	require.True(t, sch.Columns[0].Primary)
	require.True(t, sch.Columns[0].Indexed)

	require.Equal(t, "name", sch.Columns[1].Name)
	require.Equal(t, value.Varchar, sch.Columns[1].Kind)
	require.Equal(t, 32, sch.Columns[1].Capacity)
	require.True(t, sch.Columns[1].Indexed)

	idx, ok := sch.ColumnIndex("age")
	require.True(t, ok)
	require.Equal(t, 2, idx)

	_, ok = sch.ColumnIndex("nope")
	require.False(t, ok)
}

func TestParseRejectsMissingPrimaryKey(t *testing.T) {
	src := "1\nid\nINT 0 1 1 0\n"
	_, err := schema.Parse(strings.NewReader(src))
	require.ErrorIs(t, err, schema.ErrNoPrimaryKey)
}

func TestParseRejectsUnknownType(t *testing.T) {
	src := "1\nid\nFLOAT 0 1 1 1\n"
	_, err := schema.Parse(strings.NewReader(src))
	require.ErrorIs(t, err, schema.ErrUnknownType)
}

func TestParseAllowsMultipleVarcharColumns(t *testing.T) {
	src := "3\nid\nINT 0 1 1 1\nname\nVARCHAR 32 0 1 0\nbio\nVARCHAR 64 0 0 0\n"
	sch, err := schema.Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 2, sch.VarcharColumnCount())
}

func TestCapacityTierSelection(t *testing.T) {
	src := "2\nid\nINT 0 1 1 1\nname\nVARCHAR 40 0 0 0\n"
	sch, err := schema.Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.Equal(t, 64, sch.Columns[1].Capacity)
}
