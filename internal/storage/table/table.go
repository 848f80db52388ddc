// Package table implements the File Handle: slot-addressed insert / get /
// delete / scan at record granularity, and maintenance of the page-0
// free-space directory. This is the closest 1:1 port target of
// original_source/rm_filehandle.h, with the find-page and
// deletion-during-iteration bugs spec.md §9 calls out fixed.
package table

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/recordstore/internal/pager"
	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/page"
	"github.com/calvinalkan/recordstore/internal/storage/record"
)

// RID is a record-id, a stable (page_no, slot_no) pair. Stable across
// compactions within a page; only invalidated when the record itself is
// deleted.
type RID struct {
	Page uint32
	Slot uint16
}

func (r RID) String() string { return fmt.Sprintf("(%d,%d)", r.Page, r.Slot) }

// Less provides a total order over RIDs, used by package index to order
// multi-set entries deterministically.
func (r RID) Less(other RID) bool {
	if r.Page != other.Page {
		return r.Page < other.Page
	}

	return r.Slot < other.Slot
}

var (
	// ErrOutOfSpace is returned when no page admits a new record of the requested size.
	ErrOutOfSpace = errors.New("table: out of space")
	// ErrNotFound is returned when a RID references a tombstoned or out-of-range slot.
	ErrNotFound = errors.New("table: record not found")
)

// Table is the File Handle over one table's data file.
type Table struct {
	pager *pager.Pager
	sch   *schema.Schema
}

// Open wraps an already-opened Pager with the schema governing record
// encoding. The Pager's lifetime is owned by the caller.
func Open(p *pager.Pager, sch *schema.Schema) *Table {
	return &Table{pager: p, sch: sch}
}

// Schema returns the schema this table encodes and decodes records with.
func (t *Table) Schema() *schema.Schema { return t.sch }

// Insert encodes tup and writes it to the first page with sufficient
// room, per spec.md §4.D.1: find-page by linear scan of the page-0
// directory (lowest page number wins), reuse the lowest tombstoned slot
// if the payload still fits, otherwise append a new slot.
func (t *Table) Insert(tup record.Tuple) (RID, error) {
	payload, err := record.Encode(tup, t.sch)
	if err != nil {
		return RID{}, err
	}

	pageNo, err := t.findPage(len(payload))
	if err != nil {
		return RID{}, err
	}

	pg, err := t.pager.GetPage(pageNo)
	if err != nil {
		return RID{}, err
	}

	defer pg.Release()

	buf := pg.Bytes()
	num, freePtr := page.ReadHeader(buf)

	slot, newNum, newFreePtr, err := insertIntoPage(buf, num, freePtr, payload)
	if err != nil {
		return RID{}, err
	}

	page.WriteHeader(buf, newNum, newFreePtr)
	pg.MarkDirty()

	if dirErr := t.updateDirEntry(pageNo, newNum, newFreePtr); dirErr != nil {
		return RID{}, dirErr
	}

	return RID{Page: pageNo, Slot: slot}, nil
}

// insertIntoPage performs the slot-selection logic of spec.md §4.D.1 step 3
// over an already-pinned page buffer. Tie-break: lowest tombstoned slot
// before appending a new one.
func insertIntoPage(buf []byte, num, freePtr uint16, payload []byte) (slot uint16, newNum uint16, newFreePtr uint16, err error) {
	length := uint16(len(payload))

	for i := uint16(1); i <= num; i++ {
		off, _ := page.ReadSlot(buf, i)
		if !page.IsTombstone(off) {
			continue
		}

		if !page.Fits(buf, num, freePtr, len(payload)) {
			return 0, 0, 0, fmt.Errorf("%w: page full", ErrOutOfSpace)
		}

		writeOff, advanced, appendErr := page.AppendPayload(buf, freePtr, num, payload)
		if appendErr != nil {
			return 0, 0, 0, appendErr
		}

		page.WriteSlot(buf, i, writeOff, length)

		return i, num, advanced, nil
	}

	if !page.Fits(buf, num, freePtr, len(payload)) {
		return 0, 0, 0, fmt.Errorf("%w: page full", ErrOutOfSpace)
	}

	writeOff, advanced, appendErr := page.AppendPayload(buf, freePtr, num, payload)
	if appendErr != nil {
		return 0, 0, 0, appendErr
	}

	newSlot := num + 1
	page.WriteSlot(buf, newSlot, writeOff, length)

	return newSlot, newSlot, advanced, nil
}

// findPage linearly scans the page-0 directory for the first page with
// room for a payload of the given length plus one new slot directory
// entry, per spec.md §4.D.1 step 2. Bounded by MaxPages, fixing the
// original's non-terminating loop (spec.md §9 "Find-page bug").
func (t *Table) findPage(payloadLen int) (uint32, error) {
	dirPage, err := t.pager.GetPage(0)
	if err != nil {
		return 0, err
	}

	defer dirPage.Release()

	dir := dirPage.Bytes()
	pageSize := t.pager.PageSize()
	maxPages := t.pager.MaxPages()

	for k := uint32(1); k <= maxPages; k++ {
		used, _ := page.ReadDirEntry(dir, k)
		if pageSize-int(used) >= payloadLen+page.SlotBytes {
			return k, nil
		}
	}

	return 0, fmt.Errorf("%w: no page admits %d bytes", ErrOutOfSpace, payloadLen)
}

func (t *Table) updateDirEntry(pageNo uint32, num, freePtr uint16) error {
	dirPage, err := t.pager.GetPage(0)
	if err != nil {
		return err
	}

	defer dirPage.Release()

	page.WriteDirEntry(dirPage.Bytes(), pageNo, page.Used(num, freePtr), num)
	dirPage.MarkDirty()

	return nil
}

// Get pins rid.Page, bounds-checks rid.Slot, and decodes the payload.
// Fails ErrNotFound if the slot is tombstoned or out of range.
func (t *Table) Get(rid RID) (record.Tuple, error) {
	pg, err := t.pager.GetPage(rid.Page)
	if err != nil {
		return nil, err
	}

	defer pg.Release()

	buf := pg.Bytes()
	num, _ := page.ReadHeader(buf)

	if rid.Slot < 1 || rid.Slot > num {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rid)
	}

	off, length := page.ReadSlot(buf, rid.Slot)
	if page.IsTombstone(off) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rid)
	}

	payload := page.ReadPayload(buf, off, length)

	return record.Decode(payload, t.sch)
}

// Delete compacts rid's page, per spec.md §4.D.3: shift bytes above the
// deleted payload down, fix up every other live slot's offset, tombstone
// the slot, and update the page-0 directory (num unchanged).
func (t *Table) Delete(rid RID) error {
	pg, err := t.pager.GetPage(rid.Page)
	if err != nil {
		return err
	}

	defer pg.Release()

	buf := pg.Bytes()
	num, freePtr := page.ReadHeader(buf)

	if rid.Slot < 1 || rid.Slot > num {
		return fmt.Errorf("%w: %s", ErrNotFound, rid)
	}

	off, length := page.ReadSlot(buf, rid.Slot)
	if page.IsTombstone(off) {
		return fmt.Errorf("%w: %s", ErrNotFound, rid)
	}

	newFreePtr := page.Compact(buf, off, length, freePtr)
	page.FixUpOffsets(buf, num, rid.Slot, off+length, -int(length))
	page.WriteSlot(buf, rid.Slot, page.Tombstone, 0)
	page.WriteHeader(buf, num, newFreePtr)
	pg.MarkDirty()

	return t.updateDirEntry(rid.Page, num, newFreePtr)
}

// Overwrite attempts to replace rid's payload with newPayload without
// changing its RID, per spec.md §9's "Update atomicity" design note. It
// succeeds in place when the new payload is the same size, shorter (via
// the same compaction machinery Delete uses, parameterized by the size
// delta), or longer but fits in the page's current slack (grown via the
// mirror-image of Compact). It reports ok=false, making no change, when
// the page has no room to grow the slot in place; the caller then falls
// back to Delete+Insert, accepting a new RID.
func (t *Table) Overwrite(rid RID, newPayload []byte) (ok bool, err error) {
	pg, err := t.pager.GetPage(rid.Page)
	if err != nil {
		return false, err
	}

	defer pg.Release()

	buf := pg.Bytes()
	num, freePtr := page.ReadHeader(buf)

	if rid.Slot < 1 || rid.Slot > num {
		return false, fmt.Errorf("%w: %s", ErrNotFound, rid)
	}

	off, oldLength := page.ReadSlot(buf, rid.Slot)
	if page.IsTombstone(off) {
		return false, fmt.Errorf("%w: %s", ErrNotFound, rid)
	}

	newLength := uint16(len(newPayload))

	switch {
	case newLength == oldLength:
		copy(buf[off:off+oldLength], newPayload)
		pg.MarkDirty()

		return true, nil

	case newLength < oldLength:
		delta := oldLength - newLength
		// Shift everything after this record down by the shrink amount,
		// identical to Delete's compaction math but only by the delta.
		newFreePtr := page.Compact(buf, off+newLength, delta, freePtr)
		page.FixUpOffsets(buf, num, rid.Slot, off+oldLength, -int(delta))
		copy(buf[off:off+newLength], newPayload)
		page.WriteSlot(buf, rid.Slot, off, newLength)
		page.WriteHeader(buf, num, newFreePtr)
		pg.MarkDirty()

		if dirErr := t.updateDirEntry(rid.Page, num, newFreePtr); dirErr != nil {
			return false, dirErr
		}

		return true, nil

	default: // newLength > oldLength
		delta := newLength - oldLength
		if !page.Fits(buf, num, freePtr, int(delta)) {
			return false, nil
		}

		newFreePtr := page.MakeRoom(buf, off+oldLength, freePtr, delta)
		page.FixUpOffsets(buf, num, rid.Slot, off+oldLength, int(delta))
		copy(buf[off:off+newLength], newPayload)
		page.WriteSlot(buf, rid.Slot, off, newLength)
		page.WriteHeader(buf, num, newFreePtr)
		pg.MarkDirty()

		if dirErr := t.updateDirEntry(rid.Page, num, newFreePtr); dirErr != nil {
			return false, dirErr
		}

		return true, nil
	}
}

// Scan walks every live record in ascending (page, slot) order, per
// spec.md §4.D.4. It is finite and restartable (a fresh call re-walks
// from page 1).
func (t *Table) Scan(yield func(RID, record.Tuple) bool) error {
	dirPage, err := t.pager.GetPage(0)
	if err != nil {
		return err
	}

	dir := dirPage.Bytes()
	maxPages := t.pager.MaxPages()

	for k := uint32(1); k <= maxPages; k++ {
		_, num := page.ReadDirEntry(dir, k)
		if num == 0 {
			continue
		}

		pg, pgErr := t.pager.GetPage(k)
		if pgErr != nil {
			dirPage.Release()

			return pgErr
		}

		buf := pg.Bytes()

		for s := uint16(1); s <= num; s++ {
			off, length := page.ReadSlot(buf, s)
			if page.IsTombstone(off) {
				continue
			}

			payload := page.ReadPayload(buf, off, length)

			tup, decErr := record.Decode(payload, t.sch)
			if decErr != nil {
				pg.Release()
				dirPage.Release()

				return decErr
			}

			if !yield(RID{Page: k, Slot: s}, tup) {
				pg.Release()
				dirPage.Release()

				return nil
			}
		}

		pg.Release()
	}

	dirPage.Release()

	return nil
}
