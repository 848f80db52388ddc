// Package record implements the typed-tuple byte codec: deterministic
// serialization of an ordered ColumnValue sequence to/from a byte run,
// given the owning schema.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

// Tuple is an ordered sequence of column values matching schema column order.
type Tuple []value.ColumnValue

// ErrColumnCount is returned when a tuple's column count does not match the schema.
var ErrColumnCount = errors.New("record: tuple column count does not match schema")

// ErrTruncated is returned when the byte run ends before every column has been decoded.
var ErrTruncated = errors.New("record: payload truncated")

// Encode serializes a tuple into a byte run per sch's column order.
//
// A schema with at most one variable-width column needs no length prefix:
// that column's length is inferable from the payload's total length minus
// the fixed-width columns after it. A schema with more than one Varchar
// column prefixes every Varchar value with its 2-byte length, since
// otherwise two variable-width runs in sequence would be ambiguous to
// split apart on decode. Both encodings are permitted by spec.md §3's
// "either choice is acceptable" escape hatch; this picks per-schema
// instead of committing to one globally.
func Encode(t Tuple, sch *schema.Schema) ([]byte, error) {
	if len(t) != len(sch.Columns) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrColumnCount, len(t), len(sch.Columns))
	}

	size := 0
	for _, v := range t {
		size += v.SerializedSize()
	}

	buf := make([]byte, 0, size)

	for i, v := range t {
		col := sch.Columns[i]
		if col.Kind == value.Varchar && sch.VarcharColumnCount() > 1 {
			n := v.SerializedSize()

			var lenBuf [2]byte
			binary.LittleEndian.PutUint16(lenBuf[:], uint16(n))
			buf = append(buf, lenBuf[:]...)
		}

		buf = v.Serialize(buf)
	}

	return buf, nil
}

// Decode deserializes a byte run into a tuple per sch's column order. The
// round-trip law Decode(Encode(t, S), S) == t holds for every tuple t
// conforming to S (modulo the Int32-null erasure documented on
// value.ColumnValue).
func Decode(buf []byte, sch *schema.Schema) (Tuple, error) {
	t := make(Tuple, len(sch.Columns))
	multiVarchar := sch.VarcharColumnCount() > 1
	off := 0

	for i, col := range sch.Columns {
		switch col.Kind {
		case value.Int32:
			if off+4 > len(buf) {
				return nil, fmt.Errorf("%w: column %q", ErrTruncated, col.Name)
			}

			v, err := value.DeserializeInt32(buf[off : off+4])
			if err != nil {
				return nil, fmt.Errorf("record: column %q: %w", col.Name, err)
			}

			t[i] = v
			off += 4

		case value.Varchar:
			var n int

			if multiVarchar {
				if off+2 > len(buf) {
					return nil, fmt.Errorf("%w: column %q length prefix", ErrTruncated, col.Name)
				}

				n = int(binary.LittleEndian.Uint16(buf[off : off+2]))
				off += 2
			} else {
				n = len(buf) - off - sch.FixedBytesAfter(i)
			}

			if n < 0 || off+n > len(buf) {
				return nil, fmt.Errorf("%w: column %q", ErrTruncated, col.Name)
			}

			v, err := value.DeserializeVarchar(col.Capacity, buf[off:off+n])
			if err != nil {
				return nil, fmt.Errorf("record: column %q: %w", col.Name, err)
			}

			t[i] = v
			off += n

		default:
			return nil, fmt.Errorf("record: column %q: unknown kind", col.Name)
		}
	}

	return t, nil
}
