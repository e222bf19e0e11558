// Package pager is the sole reader/writer of a SawitDB file: it caches
// pages, allocates new ones, and owns the header page. Every other
// layer speaks page-ids and byte buffers through this package; it is
// the only thing that ever touches the *os.File.
//
// Opening the same file from two processes is unsupported and may
// corrupt the catalog — the pager takes no OS-level lock to prevent
// this, the hazard is simply documented here per the spec's open
// question on concurrent writers.
package pager

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"sawitdb/internal/errs"
	"sawitdb/internal/page"
)

// Magic is the 4-byte ASCII signature at the start of every SawitDB file.
var Magic = [4]byte{'W', 'O', 'W', 'O'}

const (
	defaultCacheCapacity = 1000

	headerMagicOff      = 0
	headerTotalPagesOff = 4
	headerTableCountOff = 8
	headerEntriesOff    = 12
)

// Pager owns the open file descriptor, the LRU page cache, and page
// allocation. One Pager per open database; callers must Close exactly
// once.
type Pager struct {
	mu   sync.Mutex
	file *os.File
	path string

	cache *lruCache
	log   *logrus.Entry
}

// Option configures a Pager at Open time.
type Option func(*Pager)

// WithCacheCapacity overrides the default 1000-page cache cap.
func WithCacheCapacity(n int) Option {
	return func(p *Pager) { p.cache = newLRUCache(n) }
}

// WithLogger attaches a logrus entry used for cache/allocation tracing.
func WithLogger(entry *logrus.Entry) Option {
	return func(p *Pager) { p.log = entry }
}

// Open opens path for read+write, creating and initializing it (a
// zeroed header page with magic/total-pages=1/table-count=0) if it
// does not exist. It fails with errs.ErrCorruptFile if an existing
// file's magic does not match.
func Open(path string, opts ...Option) (*Pager, error) {
	_, statErr := os.Stat(path)
	creating := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errs.Wrapf(err, "open %s", path)
	}

	p := &Pager{
		file:  f,
		path:  path,
		cache: newLRUCache(defaultCacheCapacity),
		log:   logrus.WithField("component", "pager"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if creating {
		if err := p.initHeader(); err != nil {
			f.Close()
			return nil, err
		}
		return p, nil
	}

	if err := p.verifyMagic(); err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pager) initHeader() error {
	var hdr page.Page
	hdr.ID = page.HeaderPageID
	copy(hdr.Data[headerMagicOff:headerMagicOff+4], Magic[:])
	binary.LittleEndian.PutUint32(hdr.Data[headerTotalPagesOff:headerTotalPagesOff+4], 1)
	binary.LittleEndian.PutUint32(hdr.Data[headerTableCountOff:headerTableCountOff+4], 0)

	if _, err := p.file.WriteAt(hdr.Data[:], 0); err != nil {
		return errs.Wrap(err, "write header page")
	}
	p.cache.put(page.HeaderPageID, &hdr)
	p.log.Debug("initialized new header page")
	return nil
}

func (p *Pager) verifyMagic() error {
	var buf [4]byte
	if _, err := p.file.ReadAt(buf[:], 0); err != nil {
		return errs.Wrap(err, "read header magic")
	}
	if buf != Magic {
		return errs.ErrCorruptFile
	}
	return nil
}

// TotalPages returns the header's total-allocated-pages counter.
func (p *Pager) TotalPages() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalPagesLocked()
}

func (p *Pager) totalPagesLocked() (uint32, error) {
	hdr, err := p.readPageLocked(page.HeaderPageID)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(hdr.Data[headerTotalPagesOff : headerTotalPagesOff+4]), nil
}

// ReadPage returns the 4 KiB buffer for pid, promoting it to MRU in
// the cache. A read at or past total-pages fails with
// errs.ErrInvalidPageID.
func (p *Pager) ReadPage(pid page.ID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readPageLocked(pid)
}

func (p *Pager) readPageLocked(pid page.ID) (*page.Page, error) {
	if pg, ok := p.cache.get(pid); ok {
		p.log.WithField("page", pid).Trace("cache hit")
		return pg, nil
	}

	if pid != page.HeaderPageID {
		total, err := p.totalPagesLocked()
		if err != nil {
			return nil, err
		}
		if uint32(pid) >= total {
			return nil, errs.Wrapf(errs.ErrInvalidPageID, "page %d (total=%d)", pid, total)
		}
	}

	var pg page.Page
	pg.ID = pid
	n, err := p.file.ReadAt(pg.Data[:], int64(pid)*page.Size)
	if err != nil && err != io.EOF {
		return nil, errs.Wrapf(err, "read page %d", pid)
	}
	if n < page.Size {
		for i := n; i < page.Size; i++ {
			pg.Data[i] = 0
		}
	}

	p.log.WithField("page", pid).Trace("cache miss, loaded from disk")
	if evicted := p.cache.put(pid, &pg); evicted != nil {
		if err := p.flushLocked(evicted); err != nil {
			return nil, err
		}
	}
	return &pg, nil
}

// WritePage writes buf (which must be exactly page.Size bytes) at
// pid's offset, updates the cache, and promotes the entry to MRU.
func (p *Pager) WritePage(pid page.ID, buf []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(buf) != page.Size {
		return errs.Wrapf(errs.ErrIO, "writePage: buffer is %d bytes, want %d", len(buf), page.Size)
	}

	var pg page.Page
	pg.ID = pid
	copy(pg.Data[:], buf)
	pg.Dirty = true

	if err := p.flushPageData(pid, pg.Data[:]); err != nil {
		return err
	}
	pg.Dirty = false

	if evicted := p.cache.put(pid, &pg); evicted != nil {
		if err := p.flushLocked(evicted); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pager) flushPageData(pid page.ID, data []byte) error {
	if _, err := p.file.WriteAt(data, int64(pid)*page.Size); err != nil {
		return errs.Wrapf(err, "write page %d", pid)
	}
	return nil
}

func (p *Pager) flushLocked(pg *page.Page) error {
	if !pg.Dirty {
		return nil
	}
	return p.flushPageData(pg.ID, pg.Data[:])
}

// AllocPage bumps the header's total-pages counter and writes an
// initialized empty data page (next=0, slotCount=0, freeOffset=8) at
// the new id, returning that id.
func (p *Pager) AllocPage() (page.ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	hdr, err := p.readPageLocked(page.HeaderPageID)
	if err != nil {
		return 0, err
	}

	total := binary.LittleEndian.Uint32(hdr.Data[headerTotalPagesOff : headerTotalPagesOff+4])
	newID := page.ID(total)

	binary.LittleEndian.PutUint32(hdr.Data[headerTotalPagesOff:headerTotalPagesOff+4], total+1)
	hdr.Dirty = true
	if err := p.flushPageData(page.HeaderPageID, hdr.Data[:]); err != nil {
		return 0, err
	}
	hdr.Dirty = false
	p.cache.put(page.HeaderPageID, hdr)

	var data page.Page
	data.ID = newID
	binary.LittleEndian.PutUint32(data.Data[0:4], 0)  // next = 0
	binary.LittleEndian.PutUint16(data.Data[4:6], 0)  // slotCount = 0
	binary.LittleEndian.PutUint16(data.Data[6:8], 8)  // freeOffset = 8
	if err := p.flushPageData(newID, data.Data[:]); err != nil {
		return 0, err
	}
	if evicted := p.cache.put(newID, &data); evicted != nil {
		if err := p.flushLocked(evicted); err != nil {
			return 0, err
		}
	}

	p.log.WithField("page", newID).Debug("allocated page")
	return newID, nil
}

// Close flushes the cache's dirty pages (belt-and-suspenders; writes
// are already synchronous) and closes the file descriptor.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pg := range p.cache.all() {
		if err := p.flushLocked(pg); err != nil {
			return err
		}
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// HeaderEntriesOffset is the byte offset in the header page where the
// catalog's variable-length table entries begin.
const HeaderEntriesOffset = headerEntriesOff

// TableCountOffset/TotalPagesOffset are exported so the catalog
// package can read/write the adjoining header fields without
// reimplementing the layout constants.
const (
	TableCountOffset = headerTableCountOff
	TotalPagesOffset = headerTotalPagesOff
)
