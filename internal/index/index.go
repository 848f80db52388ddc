// Package index implements the Index Set: one ordered map per indexed
// column from column value to the multi-set of RIDs holding that value,
// supporting equality and half-open range lookup.
//
// Grounded on github.com/google/btree's generic BTreeG, the ordered-map
// B-tree carried over from the perkeep-perkeep example's indirect
// dependency. A single B-tree per column holds (key, RID) pairs ordered
// first by key then by RID, which gives the multi-set for free: every
// RID sharing a key sits in a contiguous run an ascending walk can
// collect.
package index

import (
	"errors"

	"github.com/google/btree"

	"github.com/calvinalkan/recordstore/internal/storage/table"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

// degree is the B-tree branching factor; btree.New's doc recommends values
// in the 32-256 range for in-memory workloads.
const degree = 32

// ErrDuplicateKey is returned by Insert on a unique index when the key is
// already present under a different RID.
var ErrDuplicateKey = errors.New("index: duplicate key violates uniqueness")

type entry struct {
	key value.ColumnValue
	rid table.RID
}

func entryLess(a, b entry) bool {
	c, err := a.key.Compare(b.key)
	if err != nil {
		// Values in one Index are always the same column's kind; a
		// mismatch here would be a programmer error upstream.
		panic(err)
	}

	if c != 0 {
		return c < 0
	}

	return a.rid.Less(b.rid)
}

// Index is the ordered map for a single indexed column.
type Index struct {
	tree   *btree.BTreeG[entry]
	unique bool
}

// New creates an empty index. unique enforces at most one RID per key
// (used for the primary key column); a non-unique index is a multi-set.
func New(unique bool) *Index {
	return &Index{tree: btree.NewG(degree, entryLess), unique: unique}
}

// Insert adds (key, rid) to the index. For a unique index, Insert returns
// ErrDuplicateKey without modifying the index if key is already present
// under a different RID.
func (ix *Index) Insert(key value.ColumnValue, rid table.RID) error {
	if ix.unique {
		if existing, ok := ix.LookupEq(key); ok && len(existing) > 0 && existing[0] != rid {
			return ErrDuplicateKey
		}
	}

	ix.tree.ReplaceOrInsert(entry{key: key, rid: rid})

	return nil
}

// Remove deletes (key, rid) from the index. A no-op if absent.
func (ix *Index) Remove(key value.ColumnValue, rid table.RID) {
	ix.tree.Delete(entry{key: key, rid: rid})
}

// LookupEq returns every RID stored under key, in RID order, and whether
// any exist.
func (ix *Index) LookupEq(key value.ColumnValue) ([]table.RID, bool) {
	var rids []table.RID

	ix.tree.AscendGreaterOrEqual(entry{key: key, rid: table.RID{}}, func(e entry) bool {
		if c, _ := e.key.Compare(key); c != 0 {
			return false
		}

		rids = append(rids, e.rid)

		return true
	})

	return rids, len(rids) > 0
}

// LookupRange returns every RID whose key k satisfies lo <= k < hi, a
// half-open range per spec.md §4.E. A nil lo means unbounded below; a nil
// hi means unbounded above.
func (ix *Index) LookupRange(lo, hi *value.ColumnValue) []table.RID {
	var rids []table.RID

	visit := func(e entry) bool {
		if hi != nil {
			if c, _ := e.key.Compare(*hi); c >= 0 {
				return false
			}
		}

		rids = append(rids, e.rid)

		return true
	}

	if lo == nil {
		ix.tree.Ascend(visit)
	} else {
		ix.tree.AscendGreaterOrEqual(entry{key: *lo, rid: table.RID{}}, visit)
	}

	return rids
}

// Len reports the number of (key, RID) pairs stored.
func (ix *Index) Len() int { return ix.tree.Len() }
