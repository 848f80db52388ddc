// Package value implements the tagged-sum column value: the uniform
// compare/print/size/serialize surface every column kind in the engine
// supports, replacing runtime-type dispatch over a pointer hierarchy with
// pattern-matching over a closed set of kinds.
package value

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind identifies which variant a ColumnValue holds.
type Kind int

const (
	Int32 Kind = iota
	Varchar
)

func (k Kind) String() string {
	switch k {
	case Int32:
		return "INT"
	case Varchar:
		return "VARCHAR"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// CapacityTiers are the only declared-length tiers a Varchar column may use.
var CapacityTiers = [...]int{32, 64, 128, 256}

// ValidCapacity reports whether capacity is one of the declared tiers.
func ValidCapacity(capacity int) bool {
	for _, c := range CapacityTiers {
		if c == capacity {
			return true
		}
	}

	return false
}

// ErrKindMismatch is returned when two ColumnValues of different kinds are compared.
var ErrKindMismatch = errors.New("value: kind mismatch")

// ErrCapacityExceeded is returned when a Varchar's byte length exceeds its declared capacity.
var ErrCapacityExceeded = errors.New("value: capacity exceeded")

// ErrInvalidCapacity is returned when a Varchar capacity is not one of CapacityTiers.
var ErrInvalidCapacity = errors.New("value: invalid capacity tier")

// ColumnValue is a tagged-sum over Int32(i32) | Varchar(capacity_tier, bytes),
// with a per-value null flag.
//
// Int32 nulls serialize to zero and are not recoverable on decode (matching
// the legacy record format this engine ports); Varchar nulls serialize as
// the empty byte run and decode back to null.
type ColumnValue struct {
	kind     Kind
	isNull   bool
	i32      int32
	capacity int
	str      []byte
}

// NewInt32 returns a non-null Int32 value.
func NewInt32(v int32) ColumnValue {
	return ColumnValue{kind: Int32, i32: v}
}

// NewNullInt32 returns a null Int32 value.
func NewNullInt32() ColumnValue {
	return ColumnValue{kind: Int32, isNull: true}
}

// NewVarchar returns a non-null Varchar value with the given declared capacity.
// It fails with ErrInvalidCapacity or ErrCapacityExceeded.
func NewVarchar(capacity int, s []byte) (ColumnValue, error) {
	if !ValidCapacity(capacity) {
		return ColumnValue{}, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	if len(s) > capacity {
		return ColumnValue{}, fmt.Errorf("%w: length %d exceeds capacity %d", ErrCapacityExceeded, len(s), capacity)
	}

	cp := make([]byte, len(s))
	copy(cp, s)

	return ColumnValue{kind: Varchar, capacity: capacity, str: cp}, nil
}

// NewNullVarchar returns a null Varchar value with the given declared capacity.
func NewNullVarchar(capacity int) (ColumnValue, error) {
	if !ValidCapacity(capacity) {
		return ColumnValue{}, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	return ColumnValue{kind: Varchar, capacity: capacity, isNull: true}, nil
}

// Kind reports the variant tag.
func (v ColumnValue) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v ColumnValue) IsNull() bool { return v.isNull }

// Capacity reports the declared Varchar capacity tier. Zero for Int32.
func (v ColumnValue) Capacity() int { return v.capacity }

// Int32Value returns the underlying int32 and whether the value is of kind Int32.
// A null Int32 reports value 0.
func (v ColumnValue) Int32Value() (int32, bool) {
	if v.kind != Int32 {
		return 0, false
	}

	return v.i32, true
}

// Bytes returns the underlying string bytes and whether the value is of kind Varchar.
// A null Varchar reports an empty (non-nil) slice.
func (v ColumnValue) Bytes() ([]byte, bool) {
	if v.kind != Varchar {
		return nil, false
	}

	if v.str == nil {
		return []byte{}, true
	}

	return v.str, true
}

// SerializedSize returns the on-disk payload length for this value: 4 for
// Int32, or the current string length for Varchar (0 when null).
func (v ColumnValue) SerializedSize() int {
	switch v.kind {
	case Int32:
		return 4
	case Varchar:
		return len(v.str)
	default:
		return 0
	}
}

// Serialize appends the value's payload bytes to dst and returns the result.
// Nulls serialize per the rules documented on ColumnValue.
func (v ColumnValue) Serialize(dst []byte) []byte {
	switch v.kind {
	case Int32:
		var buf [4]byte

		val := v.i32
		if v.isNull {
			val = 0
		}

		binary.LittleEndian.PutUint32(buf[:], uint32(val))

		return append(dst, buf[:]...)
	case Varchar:
		if v.isNull {
			return dst
		}

		return append(dst, v.str...)
	default:
		return dst
	}
}

// DeserializeInt32 decodes 4 little-endian bytes into a non-null Int32 value.
// The null flag cannot be recovered from the wire format; see ColumnValue doc.
func DeserializeInt32(src []byte) (ColumnValue, error) {
	if len(src) != 4 {
		return ColumnValue{}, fmt.Errorf("value: int32 payload must be 4 bytes, got %d", len(src))
	}

	return ColumnValue{kind: Int32, i32: int32(binary.LittleEndian.Uint32(src))}, nil
}

// DeserializeVarchar decodes a raw byte run into a Varchar value of the given
// declared capacity. An empty run decodes to null.
func DeserializeVarchar(capacity int, src []byte) (ColumnValue, error) {
	if !ValidCapacity(capacity) {
		return ColumnValue{}, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	if len(src) > capacity {
		return ColumnValue{}, fmt.Errorf("%w: length %d exceeds capacity %d", ErrCapacityExceeded, len(src), capacity)
	}

	if len(src) == 0 {
		return ColumnValue{kind: Varchar, capacity: capacity, isNull: true}, nil
	}

	cp := make([]byte, len(src))
	copy(cp, src)

	return ColumnValue{kind: Varchar, capacity: capacity, str: cp}, nil
}

// Compare returns -1, 0, or 1 comparing v to other. Comparison across
// differing kinds is forbidden and reports ErrKindMismatch.
func (v ColumnValue) Compare(other ColumnValue) (int, error) {
	if v.kind != other.kind {
		return 0, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, v.kind, other.kind)
	}

	switch v.kind {
	case Int32:
		a, b := v.i32, other.i32
		if v.isNull {
			a = 0
		}

		if other.isNull {
			b = 0
		}

		switch {
		case a < b:
			return -1, nil
		case a > b:
			return 1, nil
		default:
			return 0, nil
		}
	case Varchar:
		a, _ := v.Bytes()
		b, _ := other.Bytes()

		switch {
		case string(a) < string(b):
			return -1, nil
		case string(a) > string(b):
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("%w: unknown kind", ErrKindMismatch)
	}
}

// Equals reports whether v and other compare equal. Kind mismatches report false.
func (v ColumnValue) Equals(other ColumnValue) bool {
	c, err := v.Compare(other)

	return err == nil && c == 0
}

// Print writes a human-readable representation of v. A null Varchar prints
// as a blank field and a null Int32 prints as "0".
func (v ColumnValue) Print() string {
	if v.isNull {
		if v.kind == Int32 {
			return "0"
		}

		return ""
	}

	switch v.kind {
	case Int32:
		return fmt.Sprintf("%d", v.i32)
	case Varchar:
		return string(v.str)
	default:
		return ""
	}
}
