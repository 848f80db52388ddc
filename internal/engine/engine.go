// Package engine implements the Table Manager (component H): it
// orchestrates the File Handle, Index Set, and Predicate
// Evaluator/Planner into Insert/Select/Delete/Update, matching
// spec.md §4.H's glue contract and §7's error-handling and rollback
// rules.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/recordstore/internal/index"
	"github.com/calvinalkan/recordstore/internal/pager"
	"github.com/calvinalkan/recordstore/internal/predicate"
	"github.com/calvinalkan/recordstore/internal/schema"
	"github.com/calvinalkan/recordstore/internal/storage/record"
	"github.com/calvinalkan/recordstore/internal/storage/table"
	"github.com/calvinalkan/recordstore/internal/storage/value"
)

// Sentinel errors surfaced by the table manager, per spec.md §7's error
// kind table. OutOfSpace, NotFound, TypeMismatch, and Malformed are the
// same sentinels the lower layers raise; SchemaViolation and
// UniquenessViolation are new at this layer since only the table manager
// validates a mutation's values against the schema and primary index.
var (
	ErrOutOfSpace          = table.ErrOutOfSpace
	ErrNotFound            = table.ErrNotFound
	ErrTypeMismatch        = predicate.ErrTypeMismatch
	ErrMalformed           = predicate.ErrMalformed
	ErrSchemaViolation     = errors.New("engine: schema violation")
	ErrUniquenessViolation = errors.New("engine: uniqueness violation")
)

const (
	schemaFileName = "schema.txt"
	dataFileName   = "data.db"
)

// Table is the open handle for one table directory: its schema, data
// file, and the full set of secondary indexes declared by the schema.
type Table struct {
	dir     string
	sch     *schema.Schema
	pgr     *pager.Pager
	file    *table.Table
	indexes map[string]*index.Index
}

// Schema returns the table's schema.
func (t *Table) Schema() *schema.Schema { return t.sch }

// Create lays out a new table directory: writes the schema file
// atomically (github.com/natefinch/atomic, the same temp-file+rename
// pattern the teacher's pkg/fs/atomic_write.go uses), then creates the
// backing data file via the pager.
func Create(dir string, sch *schema.Schema, pageSize int, maxPages uint32) (*Table, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create table dir: %w", err)
	}

	var buf bytes.Buffer
	writeSchemaText(&buf, sch)

	if err := atomic.WriteFile(filepath.Join(dir, schemaFileName), &buf); err != nil {
		return nil, fmt.Errorf("engine: write schema file: %w", err)
	}

	pgr, err := pager.Create(filepath.Join(dir, dataFileName), pageSize, maxPages)
	if err != nil {
		return nil, fmt.Errorf("engine: create data file: %w", err)
	}

	return &Table{dir: dir, sch: sch, pgr: pgr, file: table.Open(pgr, sch), indexes: buildEmptyIndexes(sch)}, nil
}

// Open opens an existing table directory, reading its schema and
// rebuilding every declared index by scanning the base table once — the
// backfill behavior spec.md §8' carries forward from
// original_source/tm_manager.h's createIndex.
func Open(dir string, pageSize int, maxPages uint32) (*Table, error) {
	f, err := os.Open(filepath.Join(dir, schemaFileName))
	if err != nil {
		return nil, fmt.Errorf("engine: open schema file: %w", err)
	}

	defer f.Close()

	sch, err := schema.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("engine: parse schema: %w", err)
	}

	pgr, err := pager.Open(filepath.Join(dir, dataFileName), pageSize, maxPages)
	if err != nil {
		return nil, fmt.Errorf("engine: open data file: %w", err)
	}

	tb := &Table{dir: dir, sch: sch, pgr: pgr, file: table.Open(pgr, sch), indexes: buildEmptyIndexes(sch)}

	if backfillErr := tb.backfillIndexes(); backfillErr != nil {
		_ = pgr.Close()

		return nil, backfillErr
	}

	return tb, nil
}

// Close releases the table's backing file.
func (t *Table) Close() error {
	return t.pgr.Close()
}

func buildEmptyIndexes(sch *schema.Schema) map[string]*index.Index {
	indexes := make(map[string]*index.Index)

	for _, col := range sch.Columns {
		if col.Indexed {
			indexes[col.Name] = index.New(col.Primary)
		}
	}

	return indexes
}

func (t *Table) backfillIndexes() error {
	return t.file.Scan(func(rid table.RID, tup record.Tuple) bool {
		for name, ix := range t.indexes {
			colIdx, _ := t.sch.ColumnIndex(name)
			_ = ix.Insert(tup[colIdx], rid)
		}

		return true
	})
}

func writeSchemaText(buf *bytes.Buffer, sch *schema.Schema) {
	fmt.Fprintf(buf, "%d\n", len(sch.Columns))

	for _, c := range sch.Columns {
		fmt.Fprintf(buf, "%s\n", c.Name)
		fmt.Fprintf(buf, "%s %d %s %s %s\n", typeToken(c), c.Capacity, boolToken(c.NotNull), boolToken(c.Indexed), boolToken(c.Primary))
	}
}

func typeToken(c schema.ColumnDef) string {
	if c.Kind == value.Varchar {
		return "VARCHAR"
	}

	return "INT"
}

func boolToken(b bool) string {
	if b {
		return "1"
	}

	return "0"
}

// Insert type-checks values against the schema, enforces primary
// uniqueness via the index set, writes the base row, then fans the
// insert out to every index, per spec.md §4.H. Any failure after the
// base-row write rolls back: the partially inserted row and any
// already-added index entries are removed before the error is returned,
// per spec.md §7's rollback rule.
func (t *Table) Insert(values record.Tuple) (table.RID, error) {
	if err := t.checkValues(values); err != nil {
		return table.RID{}, err
	}

	for _, col := range t.sch.Columns {
		if !col.Primary {
			continue
		}

		colIdx, _ := t.sch.ColumnIndex(col.Name)
		ix := t.indexes[col.Name]

		if _, exists := ix.LookupEq(values[colIdx]); exists {
			return table.RID{}, fmt.Errorf("%w: column %q", ErrUniquenessViolation, col.Name)
		}
	}

	rid, err := t.file.Insert(values)
	if err != nil {
		return table.RID{}, err
	}

	inserted := make([]string, 0, len(t.indexes))

	for name, ix := range t.indexes {
		colIdx, _ := t.sch.ColumnIndex(name)
		if err := ix.Insert(values[colIdx], rid); err != nil {
			t.rollbackInsert(rid, inserted, values)

			return table.RID{}, fmt.Errorf("%w: column %q", ErrUniquenessViolation, name)
		}

		inserted = append(inserted, name)
	}

	return rid, nil
}

func (t *Table) rollbackInsert(rid table.RID, insertedIndexes []string, values record.Tuple) {
	for _, name := range insertedIndexes {
		colIdx, _ := t.sch.ColumnIndex(name)
		t.indexes[name].Remove(values[colIdx], rid)
	}

	_ = t.file.Delete(rid)
}

// checkValues verifies column count, kind, and (for Varchar) capacity,
// surfacing every mismatch as ErrSchemaViolation.
func (t *Table) checkValues(values record.Tuple) error {
	if len(values) != len(t.sch.Columns) {
		return fmt.Errorf("%w: got %d values, want %d", ErrSchemaViolation, len(values), len(t.sch.Columns))
	}

	for i, col := range t.sch.Columns {
		v := values[i]
		if v.Kind() != col.Kind {
			return fmt.Errorf("%w: column %q expects %s, got %s", ErrSchemaViolation, col.Name, col.Kind, v.Kind())
		}

		if col.Kind == value.Varchar {
			b, _ := v.Bytes()
			if len(b) > col.Capacity {
				return fmt.Errorf("%w: column %q: length %d exceeds declared capacity %d", ErrSchemaViolation, col.Name, len(b), col.Capacity)
			}
		}

		if col.NotNull && v.IsNull() {
			return fmt.Errorf("%w: column %q is not_null", ErrSchemaViolation, col.Name)
		}
	}

	return nil
}

// Select runs the planner against where; if plannable, it fetches only
// the candidate RIDs, else it scans every row and filters with the
// evaluator. fields, in schema-column order, selects a projection; a nil
// fields means every column.
func (t *Table) Select(fields []string, where predicate.Expr) ([]record.Tuple, error) {
	rows, err := t.matchingRows(where)
	if err != nil {
		return nil, err
	}

	if fields == nil {
		return rows, nil
	}

	projected := make([]record.Tuple, len(rows))

	for i, row := range rows {
		out := make(record.Tuple, len(fields))

		for j, name := range fields {
			colIdx, ok := t.sch.ColumnIndex(name)
			if !ok {
				return nil, fmt.Errorf("%w: unknown column %q", ErrMalformed, name)
			}

			out[j] = row[colIdx]
		}

		projected[i] = out
	}

	return projected, nil
}

// matchingRows returns every tuple satisfying where, in ascending RID
// order regardless of whether the planner or a full scan produced the
// candidate set.
func (t *Table) matchingRows(where predicate.Expr) ([]record.Tuple, error) {
	if where == nil {
		var rows []record.Tuple

		err := t.file.Scan(func(_ table.RID, tup record.Tuple) bool {
			rows = append(rows, tup)

			return true
		})

		return rows, err
	}

	rids, err := t.candidateRIDs(where)
	if err != nil {
		return nil, err
	}

	rows := make([]record.Tuple, 0, len(rids))

	for _, rid := range rids {
		tup, getErr := t.file.Get(rid)
		if getErr != nil {
			if errors.Is(getErr, table.ErrNotFound) {
				continue
			}

			return nil, getErr
		}

		rows = append(rows, tup)
	}

	return rows, nil
}

// candidateRIDs materializes the RID list a where clause selects, via
// the planner when possible and a full scan plus evaluator otherwise. A
// nil where matches every row. Always returns a fully materialized
// slice (never a live iterator), per spec.md §9's "materialize before
// mutating" rule.
func (t *Table) candidateRIDs(where predicate.Expr) ([]table.RID, error) {
	if where == nil {
		var rids []table.RID

		err := t.file.Scan(func(rid table.RID, _ record.Tuple) bool {
			rids = append(rids, rid)

			return true
		})

		return rids, err
	}

	set, plannable, err := predicate.Plan(where, t.sch, t.indexes)
	if err != nil {
		return nil, err
	}

	if plannable {
		return set.Slice(), nil
	}

	var rids []table.RID

	err = t.file.Scan(func(rid table.RID, tup record.Tuple) bool {
		ok, evalErr := predicate.Evaluate(where, tup, t.sch)
		if evalErr != nil {
			err = evalErr

			return false
		}

		if ok {
			rids = append(rids, rid)
		}

		return true
	})
	if err != nil {
		return nil, err
	}

	return rids, nil
}

// Delete materializes every candidate RID before mutating anything (the
// fix spec.md §9 requires for "deletion during iteration"), then for
// each one removes every index entry before deleting the base row.
func (t *Table) Delete(where predicate.Expr) (int, error) {
	rids, err := t.candidateRIDs(where)
	if err != nil {
		return 0, err
	}

	for _, rid := range rids {
		tup, getErr := t.file.Get(rid)
		if getErr != nil {
			if errors.Is(getErr, table.ErrNotFound) {
				continue
			}

			return 0, getErr
		}

		t.removeFromIndexes(rid, tup)

		if delErr := t.file.Delete(rid); delErr != nil {
			return 0, delErr
		}
	}

	return len(rids), nil
}

func (t *Table) removeFromIndexes(rid table.RID, tup record.Tuple) {
	for name, ix := range t.indexes {
		colIdx, _ := t.sch.ColumnIndex(name)
		ix.Remove(tup[colIdx], rid)
	}
}

// Assignment overlays a new value onto one column of a matched row.
type Assignment struct {
	Column string
	Value  value.ColumnValue
}

// Update materializes candidates, then for each one builds the new tuple
// by overlaying assignments onto the old one and attempts an in-place
// slot overwrite (preserving the RID); when the new encoding does not fit
// the old slot, it falls back to remove+delete+insert with a new RID, per
// spec.md §9's update-atomicity recommendation. On the in-place path, index
// entries for changed columns are swapped and unchanged columns are left
// untouched; the reinsert path removes and re-adds every index entry.
func (t *Table) Update(assignments []Assignment, where predicate.Expr) (int, error) {
	rids, err := t.candidateRIDs(where)
	if err != nil {
		return 0, err
	}

	for _, rid := range rids {
		if updateErr := t.updateOne(rid, assignments); updateErr != nil {
			if errors.Is(updateErr, table.ErrNotFound) {
				continue
			}

			return 0, updateErr
		}
	}

	return len(rids), nil
}

func (t *Table) updateOne(rid table.RID, assignments []Assignment) error {
	oldTup, err := t.file.Get(rid)
	if err != nil {
		return err
	}

	newTup := make(record.Tuple, len(oldTup))
	copy(newTup, oldTup)

	changed := make(map[string]bool, len(assignments))

	for _, a := range assignments {
		colIdx, ok := t.sch.ColumnIndex(a.Column)
		if !ok {
			return fmt.Errorf("%w: unknown column %q", ErrMalformed, a.Column)
		}

		newTup[colIdx] = a.Value
		changed[a.Column] = true
	}

	if err := t.checkValues(newTup); err != nil {
		return err
	}

	if err := t.checkUpdateUniqueness(rid, newTup, changed); err != nil {
		return err
	}

	newPayload, err := record.Encode(newTup, t.sch)
	if err != nil {
		return err
	}

	ok, err := t.file.Overwrite(rid, newPayload)
	if err != nil {
		return err
	}

	if ok {
		return t.swapChangedIndexEntries(rid, oldTup, newTup, changed)
	}

	return t.updateViaReinsert(rid, oldTup, newTup)
}

// checkUpdateUniqueness rejects an update whose new primary-column value
// already belongs to a different row, mirroring Insert's pre-write
// uniqueness check (engine.go Insert) above. Without this, the in-place
// overwrite path below would commit the new row before discovering the
// primary index rejects it, leaving two base rows sharing a primary value
// and the updated row with no primary index entry.
func (t *Table) checkUpdateUniqueness(rid table.RID, newTup record.Tuple, changed map[string]bool) error {
	for _, col := range t.sch.Columns {
		if !col.Primary || !changed[col.Name] {
			continue
		}

		colIdx, _ := t.sch.ColumnIndex(col.Name)
		ix := t.indexes[col.Name]

		if existing, ok := ix.LookupEq(newTup[colIdx]); ok && existing[0] != rid {
			return fmt.Errorf("%w: column %q", ErrUniquenessViolation, col.Name)
		}
	}

	return nil
}

// swapChangedIndexEntries removes each changed column's old index entry
// and inserts the new one. checkUpdateUniqueness has already ruled out a
// primary-key collision, but if Insert still rejects an entry (a
// non-primary unique index, or an invariant violation), the old entry is
// restored for every column already swapped and the overwritten base row
// is rolled back to oldTup so the table is left exactly as before Update
// was called.
func (t *Table) swapChangedIndexEntries(rid table.RID, oldTup, newTup record.Tuple, changed map[string]bool) error {
	swapped := make([]string, 0, len(changed))

	for name, ix := range t.indexes {
		if !changed[name] {
			continue
		}

		colIdx, _ := t.sch.ColumnIndex(name)
		ix.Remove(oldTup[colIdx], rid)

		if err := ix.Insert(newTup[colIdx], rid); err != nil {
			for _, done := range swapped {
				doneIdx, _ := t.sch.ColumnIndex(done)
				t.indexes[done].Remove(newTup[doneIdx], rid)
				_ = t.indexes[done].Insert(oldTup[doneIdx], rid)
			}

			_ = ix.Insert(oldTup[colIdx], rid)

			if oldPayload, encErr := record.Encode(oldTup, t.sch); encErr == nil {
				_, _ = t.file.Overwrite(rid, oldPayload)
			}

			return fmt.Errorf("%w: column %q", ErrUniquenessViolation, name)
		}

		swapped = append(swapped, name)
	}

	return nil
}

// updateViaReinsert handles the no-room-in-place case: remove every old
// index entry, delete the old row, insert the new one (a fresh RID), and
// add every new index entry. A duplicate-key violation on the new
// primary value rolls back to the original row and its original index
// entries, leaving the table as if the update never happened.
func (t *Table) updateViaReinsert(rid table.RID, oldTup, newTup record.Tuple) error {
	t.removeFromIndexes(rid, oldTup)

	if err := t.file.Delete(rid); err != nil {
		t.reinsertIntoIndexes(rid, oldTup)

		return err
	}

	newRID, err := t.file.Insert(newTup)
	if err != nil {
		t.rollbackReinsertDelete(oldTup)

		return err
	}

	inserted := make([]string, 0, len(t.indexes))

	for name, ix := range t.indexes {
		colIdx, _ := t.sch.ColumnIndex(name)
		if insErr := ix.Insert(newTup[colIdx], newRID); insErr != nil {
			for _, done := range inserted {
				doneIdx, _ := t.sch.ColumnIndex(done)
				t.indexes[done].Remove(newTup[doneIdx], newRID)
			}

			_ = t.file.Delete(newRID)
			t.rollbackReinsertDelete(oldTup)

			return fmt.Errorf("%w: column %q", ErrUniquenessViolation, name)
		}

		inserted = append(inserted, name)
	}

	return nil
}

// rollbackReinsertDelete restores the original row at a best-effort new
// RID and its original index entries, used when the reinsert half of an
// update fails after the old row was already removed.
func (t *Table) rollbackReinsertDelete(oldTup record.Tuple) {
	restoredRID, err := t.file.Insert(oldTup)
	if err != nil {
		return
	}

	t.reinsertIntoIndexes(restoredRID, oldTup)
}

func (t *Table) reinsertIntoIndexes(rid table.RID, tup record.Tuple) {
	for name, ix := range t.indexes {
		colIdx, _ := t.sch.ColumnIndex(name)
		_ = ix.Insert(tup[colIdx], rid)
	}
}
