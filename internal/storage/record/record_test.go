package record_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/record"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

func exampleSchema(t *testing.T) *schema.Schema {
	t.Helper()

	src := "3\nid\nINT 0 1 1 1\nname\nVARCHAR 32 0 1 0\nage\nINT 0 0 0 0\n"
	sch, err := schema.Parse(strings.NewReader(src))
	require.NoError(t, err)

	return sch
}

func TestRoundTrip(t *testing.T) {
	sch := exampleSchema(t)
	name, err := value.NewVarchar(32, []byte("ada"))
	require.NoError(t, err)

	tup := record.Tuple{value.NewInt32(1), name, value.NewInt32(37)}

	buf, err := record.Encode(tup, sch)
	require.NoError(t, err)

	got, err := record.Decode(buf, sch)
	require.NoError(t, err)
	require.Len(t, got, 3)

	idv, _ := got[0].Int32Value()
	require.Equal(t, int32(1), idv)

	nameBytes, _ := got[1].Bytes()
	require.Equal(t, "ada", string(nameBytes))

	ageV, _ := got[2].Int32Value()
	require.Equal(t, int32(37), ageV)
}

func TestRoundTripEmptyString(t *testing.T) {
	sch := exampleSchema(t)
	name, err := value.NewNullVarchar(32)
	require.NoError(t, err)

	tup := record.Tuple{value.NewInt32(2), name, value.NewInt32(0)}

	buf, err := record.Encode(tup, sch)
	require.NoError(t, err)

	got, err := record.Decode(buf, sch)
	require.NoError(t, err)
	require.True(t, got[1].IsNull())
}

func multiVarcharSchema(t *testing.T) *schema.Schema {
	t.Helper()

	src := "3\nid\nINT 0 1 1 1\nname\nVARCHAR 32 0 1 0\nbio\nVARCHAR 64 0 0 0\n"
	sch, err := schema.Parse(strings.NewReader(src))
	require.NoError(t, err)

	return sch
}

// TestRoundTripMultipleVarcharColumns drives the length-prefix path in
// Encode/Decode: with two Varchar columns, neither can be inferred from
// the trailing fixed-width bytes alone, so both must round-trip via their
// 2-byte length prefixes.
func TestRoundTripMultipleVarcharColumns(t *testing.T) {
	sch := multiVarcharSchema(t)

	name, err := value.NewVarchar(32, []byte("ada"))
	require.NoError(t, err)

	bio, err := value.NewVarchar(64, []byte("wrote the first algorithm"))
	require.NoError(t, err)

	tup := record.Tuple{value.NewInt32(1), name, bio}

	buf, err := record.Encode(tup, sch)
	require.NoError(t, err)

	got, err := record.Decode(buf, sch)
	require.NoError(t, err)
	require.Len(t, got, 3)

	nameBytes, _ := got[1].Bytes()
	require.Equal(t, "ada", string(nameBytes))

	bioBytes, _ := got[2].Bytes()
	require.Equal(t, "wrote the first algorithm", string(bioBytes))
}

func TestEncodeColumnCountMismatch(t *testing.T) {
	sch := exampleSchema(t)
	tup := record.Tuple{value.NewInt32(1)}

	_, err := record.Encode(tup, sch)
	require.ErrorIs(t, err, record.ErrColumnCount)
}

func TestDecodeTruncated(t *testing.T) {
	sch := exampleSchema(t)
	_, err := record.Decode([]byte{1, 2, 3}, sch)
	require.ErrorIs(t, err, record.ErrTruncated)
}
