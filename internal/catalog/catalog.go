// Package catalog is the schema directory persisted on the pager's
// header page: a table-count field plus a run of variable-length
// entries (name, head page-id, is-system flag) packed after the
// pager's own fixed fields.
package catalog

import (
	"encoding/binary"
	"sync"

	"sawitdb/internal/errs"
	"sawitdb/internal/page"
	"sawitdb/internal/pager"
)

// Entry describes one table's catalog record. IsSystem marks tables
// the engine itself creates for its own bookkeeping (e.g. "_indexes"),
// distinguishing them on disk from ordinary user tables.
type Entry struct {
	Name     string
	Head     page.ID
	IsSystem bool
}

// Catalog guards header-page reads/writes with its own mutex; the
// pager's mutex only protects individual page I/O, not this
// read-modify-write sequence across several of them.
type Catalog struct {
	mu sync.Mutex
	p  *pager.Pager
}

// New wraps p's header page as a catalog.
func New(p *pager.Pager) *Catalog {
	return &Catalog{p: p}
}

// entryBytes renders name/head/isSystem as (u8 name-len, name bytes,
// u32 head page-id LE, u8 is-system flag) for storage after
// pager.HeaderEntriesOffset.
func entryBytes(e Entry) []byte {
	buf := make([]byte, 0, 1+len(e.Name)+4+1)
	buf = append(buf, byte(len(e.Name)))
	buf = append(buf, e.Name...)
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], uint32(e.Head))
	buf = append(buf, idBuf[:]...)
	if e.IsSystem {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func readEntries(buf []byte, count uint32) ([]Entry, error) {
	entries := make([]Entry, 0, count)
	offset := pager.HeaderEntriesOffset
	for i := uint32(0); i < count; i++ {
		if offset+1 > page.Size {
			return nil, errs.Wrap(errs.ErrCorruptFile, "catalog entry run truncated")
		}
		nameLen := int(buf[offset])
		offset++
		if offset+nameLen+4+1 > page.Size {
			return nil, errs.Wrap(errs.ErrCorruptFile, "catalog entry truncated")
		}
		name := string(buf[offset : offset+nameLen])
		offset += nameLen
		head := page.ID(binary.LittleEndian.Uint32(buf[offset : offset+4]))
		offset += 4
		isSystem := buf[offset] != 0
		offset++
		entries = append(entries, Entry{Name: name, Head: head, IsSystem: isSystem})
	}
	return entries, nil
}

// ListTables returns every entry currently in the catalog.
func (c *Catalog) ListTables() ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listLocked()
}

func (c *Catalog) listLocked() ([]Entry, error) {
	hdr, err := c.p.ReadPage(page.HeaderPageID)
	if err != nil {
		return nil, err
	}
	count := binary.LittleEndian.Uint32(hdr.Data[pager.TableCountOffset : pager.TableCountOffset+4])
	return readEntries(hdr.Data[:], count)
}

// FindTableEntry returns the entry named name, or errs.ErrTableNotFound.
func (c *Catalog) FindTableEntry(name string) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := c.listLocked()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return Entry{}, errs.Wrapf(errs.ErrTableNotFound, "table %q", name)
}

// CreateTable allocates a fresh head page for name and appends a
// catalog entry for it, failing with errs.ErrTableExists if the name
// is already taken or errs.ErrCatalogFull if the new entry run would
// overflow the header page. isSystem marks the table as engine-owned
// bookkeeping rather than user data.
func (c *Catalog) CreateTable(name string, isSystem bool) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.listLocked()
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if e.Name == name {
			return Entry{}, errs.Wrapf(errs.ErrTableExists, "table %q", name)
		}
	}

	head, err := c.p.AllocPage()
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Name: name, Head: head, IsSystem: isSystem}

	if err := c.appendLocked(entries, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (c *Catalog) appendLocked(existing []Entry, entry Entry) error {
	hdr, err := c.p.ReadPage(page.HeaderPageID)
	if err != nil {
		return err
	}

	offset := pager.HeaderEntriesOffset
	for _, e := range existing {
		offset += len(entryBytes(e))
	}
	newBytes := entryBytes(entry)
	if offset+len(newBytes) > page.Size {
		return errs.Wrapf(errs.ErrCatalogFull, "header page has no room for table %q", entry.Name)
	}

	copy(hdr.Data[offset:offset+len(newBytes)], newBytes)
	binary.LittleEndian.PutUint32(hdr.Data[pager.TableCountOffset:pager.TableCountOffset+4], uint32(len(existing)+1))

	return c.p.WritePage(page.HeaderPageID, hdr.Data[:])
}

// DropTable removes name's catalog entry, rewriting the entry run
// without it. The table's pages are left allocated (the pager is a
// bump allocator; it never frees pages), matching the spec's
// no-compaction design decision.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.listLocked()
	if err != nil {
		return err
	}

	kept := make([]Entry, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.Name == name {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return errs.Wrapf(errs.ErrTableNotFound, "table %q", name)
	}

	hdr, err := c.p.ReadPage(page.HeaderPageID)
	if err != nil {
		return err
	}

	offset := pager.HeaderEntriesOffset
	for _, e := range kept {
		b := entryBytes(e)
		copy(hdr.Data[offset:offset+len(b)], b)
		offset += len(b)
	}
	// zero the stale tail so a future read never misparses leftover bytes
	for i := offset; i < page.Size; i++ {
		hdr.Data[i] = 0
	}
	binary.LittleEndian.PutUint32(hdr.Data[pager.TableCountOffset:pager.TableCountOffset+4], uint32(len(kept)))

	return c.p.WritePage(page.HeaderPageID, hdr.Data[:])
}
