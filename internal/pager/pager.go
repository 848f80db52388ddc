// Package pager implements the buffer/page manager that spec.md treats as
// an external collaborator: get_page(file_id, page_no) -> (buffer,
// pin_handle), mark_dirty(pin_handle), release(pin_handle).
//
// Grounded on the teacher's pkg/slotcache (open.go's create/mmap sequence:
// temp file + Ftruncate + Pwrite + Fsync + rename, then syscall.Mmap) but
// simplified for spec.md §5's single-threaded cooperative model: there is
// exactly one mutator and no concurrent reader, so the seqlock
// generation-counter protocol slotcache needs to let readers retry past an
// in-flight writer has no caller here and is not ported. Page 0 is the
// free-space directory (see package page); pages 1..max_pages are data
// pages. The file is sized at creation time for page 0 plus the caller's
// maxPages data pages and never grows, same as slotcache fixing
// SlotCapacity at creation.
package pager

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by any operation on a closed Pager.
var ErrClosed = errors.New("pager: closed")

// ErrPageOutOfRange is returned for a page number outside [0, max_pages].
var ErrPageOutOfRange = errors.New("pager: page number out of range")

// Pager owns an mmap'd, fixed-capacity table data file.
type Pager struct {
	file     *os.File
	data     []byte
	pageSize int
	maxPages uint32
	closed   bool
}

// Page is a pinned view over one page-sized region of the mapping.
type Page struct {
	pager *Pager
	no    uint32
	buf   []byte
}

// Create creates a new backing file sized for pageSize*(maxPages+1) bytes
// (page 0 plus maxPages data pages), zero-filled, and maps it.
//
// Grounded on slotcache's createNewCache: temp file, Ftruncate to the
// full computed size, Fsync, atomic rename into place, then mmap.
func Create(path string, pageSize int, maxPages uint32) (*Pager, error) {
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("pager: create temp file: %w", err)
	}

	size := int64(pageSize) * int64(maxPages+1)

	if truncErr := f.Truncate(size); truncErr != nil {
		_ = f.Close()
		_ = os.Remove(tmp)

		return nil, fmt.Errorf("pager: truncate: %w", truncErr)
	}

	if syncErr := f.Sync(); syncErr != nil {
		_ = f.Close()
		_ = os.Remove(tmp)

		return nil, fmt.Errorf("pager: fsync: %w", syncErr)
	}

	if closeErr := f.Close(); closeErr != nil {
		_ = os.Remove(tmp)

		return nil, fmt.Errorf("pager: close temp file: %w", closeErr)
	}

	if renameErr := os.Rename(tmp, path); renameErr != nil {
		_ = os.Remove(tmp)

		return nil, fmt.Errorf("pager: rename: %w", renameErr)
	}

	return openMapped(path, pageSize, maxPages)
}

// Open maps an existing backing file created by Create.
func Open(path string, pageSize int, maxPages uint32) (*Pager, error) {
	return openMapped(path, pageSize, maxPages)
}

func openMapped(path string, pageSize int, maxPages uint32) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("pager: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("pager: stat: %w", err)
	}

	want := int64(pageSize) * int64(maxPages+1)
	if info.Size() != want {
		_ = f.Close()

		return nil, fmt.Errorf("pager: file size %d does not match expected %d", info.Size(), want)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(want), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("pager: mmap: %w", err)
	}

	return &Pager{file: f, data: data, pageSize: pageSize, maxPages: maxPages}, nil
}

// PageSize returns the configured page size.
func (p *Pager) PageSize() int { return p.pageSize }

// MaxPages returns the largest addressable data page number.
func (p *Pager) MaxPages() uint32 { return p.maxPages }

// GetPage pins and returns the page at pageNo (0 is the free-space
// directory page). The returned Page's buffer aliases the mapping
// directly; mutations are visible immediately but are only durable after
// Sync.
func (p *Pager) GetPage(pageNo uint32) (*Page, error) {
	if p.closed {
		return nil, ErrClosed
	}

	if pageNo > p.maxPages {
		return nil, fmt.Errorf("%w: %d", ErrPageOutOfRange, pageNo)
	}

	start := int(pageNo) * p.pageSize

	return &Page{pager: p, no: pageNo, buf: p.data[start : start+p.pageSize]}, nil
}

// Sync flushes the mapping to disk.
func (p *Pager) Sync() error {
	if p.closed {
		return ErrClosed
	}

	return unix.Msync(p.data, unix.MS_SYNC)
}

// Close unmaps and closes the backing file. Safe to call once.
func (p *Pager) Close() error {
	if p.closed {
		return nil
	}

	p.closed = true

	var errs []error

	if err := unix.Msync(p.data, unix.MS_SYNC); err != nil {
		errs = append(errs, fmt.Errorf("msync: %w", err))
	}

	if err := unix.Munmap(p.data); err != nil {
		errs = append(errs, fmt.Errorf("munmap: %w", err))
	}

	if err := p.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close: %w", err))
	}

	return errors.Join(errs...)
}

// Bytes returns the page's buffer. The slice aliases the mapping.
func (pg *Page) Bytes() []byte { return pg.buf }

// No returns the page number.
func (pg *Page) No() uint32 { return pg.no }

// MarkDirty is a bookkeeping no-op over a shared mmap (writes are already
// visible in the mapping); it exists to keep the call sites symmetric with
// the get_page/mark_dirty/release interface spec.md §6 names, and as the
// seam a future durability mode (msync-per-commit, as slotcache's
// WritebackSync does) would hook into.
func (pg *Page) MarkDirty() {}

// Release is a bookkeeping no-op in the single-threaded model; kept for
// symmetry with the consumed interface and as a discipline marker at call
// sites (every GetPage is paired with a Release on all control-flow exits,
// per spec.md §5).
func (pg *Page) Release() {}
