// Package heap implements the table heap: a logical table is a
// singly-linked chain of data pages using a slotted record layout.
// Insert walks the chain for room before allocating a new page; scan
// walks the chain and then the page's slots in order. Delete
// tombstones a slot and only physically drops a trailing run of
// tombstones; an update that fits is rewritten in place, and one that
// grows tombstones the old slot and re-inserts the row.
package heap

import (
	"sync"

	"sawitdb/internal/errs"
	"sawitdb/internal/page"
	"sawitdb/internal/pager"
	"sawitdb/internal/recordcache"
	"sawitdb/internal/rowcodec"
)

// maxRecordBytes is the largest encoded record that can ever fit a
// fresh page: 4096 - 8 (page header) - 2 (its own length prefix).
const maxRecordBytes = page.Size - dataPageHeaderSize - 2

// RowID addresses one record within a table's page chain.
type RowID struct {
	Page page.ID
	Slot uint16
}

// Heap is a table's page chain. Head is the table's head page-id, as
// resolved by the catalog.
type Heap struct {
	pager *pager.Pager
	cache *recordcache.Cache
	head  page.ID

	genMu sync.Mutex
	gens  map[RowID]uint64 // per-slot decoded-record cache generation
}

// New wraps an existing page chain rooted at head.
func New(p *pager.Pager, cache *recordcache.Cache, head page.ID) *Heap {
	return &Heap{pager: p, cache: cache, head: head, gens: make(map[RowID]uint64)}
}

// Insert encodes record and appends it to the first page in the chain
// with room, allocating and linking a new page if none has space. It
// returns the record's new RowID.
func (h *Heap) Insert(record rowcodec.Record) (RowID, error) {
	encoded := rowcodec.Encode(record)
	if len(encoded)+2 > maxRecordBytes+2 {
		return RowID{}, errs.Wrapf(errs.ErrRecordTooLarge, "%d bytes (max %d)", len(encoded), maxRecordBytes)
	}

	pid := h.head

	for {
		pg, err := h.pager.ReadPage(pid)
		if err != nil {
			return RowID{}, err
		}
		hdr := decodeHeader(pg.Data[:])

		if int(hdr.freeOffset)+2+len(encoded) <= page.Size {
			slot := hdr.slotCount
			writeAt := int(hdr.freeOffset)
			writeSlotLength(pg.Data[:], writeAt, uint16(len(encoded)), false)
			copy(pg.Data[writeAt+2:writeAt+2+len(encoded)], encoded)

			hdr.slotCount++
			hdr.freeOffset += uint16(2 + len(encoded))
			encodeHeader(pg.Data[:], hdr)

			if err := h.pager.WritePage(pid, pg.Data[:]); err != nil {
				return RowID{}, err
			}
			return RowID{Page: pid, Slot: slot}, nil
		}

		if hdr.next == 0 {
			newID, err := h.pager.AllocPage()
			if err != nil {
				return RowID{}, err
			}
			hdr.next = uint32(newID)
			encodeHeader(pg.Data[:], hdr)
			if err := h.pager.WritePage(pid, pg.Data[:]); err != nil {
				return RowID{}, err
			}
			pid = newID
			continue
		}
		pid = page.ID(hdr.next)
	}
}

// Scan walks the chain in order and yields every live (non-tombstoned)
// record, in chain-then-slot order, to fn. Each yielded record carries
// a "_id" field set to its serial position (0-based) across the whole
// scan, in addition to whatever fields the row itself stores.
// Returning false from fn stops the scan early.
func (h *Heap) Scan(fn func(RowID, rowcodec.Record) (bool, error)) error {
	var serial int64
	pid := h.head
	for {
		cont, err := h.scanPage(pid, &serial, fn)
		if err != nil || !cont {
			return err
		}
		pg, err := h.pager.ReadPage(pid)
		if err != nil {
			return err
		}
		hdr := decodeHeader(pg.Data[:])
		if hdr.next == 0 {
			return nil
		}
		pid = page.ID(hdr.next)
	}
}

// scanPage yields pid's live slots to fn; the bool return says whether
// the overall scan should continue to the next page.
func (h *Heap) scanPage(pid page.ID, serial *int64, fn func(RowID, rowcodec.Record) (bool, error)) (bool, error) {
	pg, err := h.pager.ReadPage(pid)
	if err != nil {
		return false, err
	}
	hdr := decodeHeader(pg.Data[:])

	offset := dataPageHeaderSize
	for slot := uint16(0); slot < hdr.slotCount; slot++ {
		length, tombstoned := readSlotLength(pg.Data[:], offset)
		payload := pg.Data[offset+2 : offset+2+int(length)]
		offset += 2 + int(length)

		if tombstoned {
			continue
		}

		id := RowID{Page: pid, Slot: slot}
		rec, err := h.decodeCached(id, payload)
		if err != nil {
			return false, err
		}

		// Clone before stamping _id: rec may be a shared cache entry,
		// and _id's value (a scan-order position) must never be baked
		// into a cached record that a later, differently-shaped scan
		// would read back unchanged.
		out := rec.Clone()
		out.Set("_id", rowcodec.IntVal(*serial))
		*serial++

		keepGoing, err := fn(id, out)
		if err != nil {
			return false, err
		}
		if !keepGoing {
			return false, nil
		}
	}
	return true, nil
}

func (h *Heap) decodeCached(id RowID, payload []byte) (rowcodec.Record, error) {
	if h.cache == nil {
		return rowcodec.Decode(payload)
	}
	key := recordcache.Key{Page: id.Page, Slot: id.Slot, Gen: h.currentGen(id)}
	if v, ok := h.cache.Get(key); ok {
		return v.(rowcodec.Record), nil
	}
	rec, err := rowcodec.Decode(payload)
	if err != nil {
		return rowcodec.Record{}, err
	}
	h.cache.Set(key, rec)
	return rec, nil
}

func (h *Heap) currentGen(id RowID) uint64 {
	h.genMu.Lock()
	defer h.genMu.Unlock()
	return h.gens[id]
}

// invalidateRow bumps id's decoded-record cache generation and drops
// its previous cache entry, so a Scan performed after a same-length
// in-place rewrite (or a delete) can never return the pre-write
// decoded record.
func (h *Heap) invalidateRow(id RowID) {
	h.genMu.Lock()
	oldGen := h.gens[id]
	h.gens[id] = oldGen + 1
	h.genMu.Unlock()

	if h.cache != nil {
		h.cache.Invalidate(recordcache.Key{Page: id.Page, Slot: id.Slot, Gen: oldGen})
	}
}

// Get reads and decodes the single record at id.
func (h *Heap) Get(id RowID) (rowcodec.Record, error) {
	pg, err := h.pager.ReadPage(id.Page)
	if err != nil {
		return rowcodec.Record{}, err
	}
	hdr := decodeHeader(pg.Data[:])
	if id.Slot >= hdr.slotCount {
		return rowcodec.Record{}, errs.Wrapf(errs.ErrInvalidPageID, "slot %d >= count %d", id.Slot, hdr.slotCount)
	}

	offset := dataPageHeaderSize
	for slot := uint16(0); slot < id.Slot; slot++ {
		length, _ := readSlotLength(pg.Data[:], offset)
		offset += 2 + int(length)
	}
	length, tombstoned := readSlotLength(pg.Data[:], offset)
	if tombstoned {
		return rowcodec.Record{}, errs.Wrap(errs.ErrInvalidPageID, "row is tombstoned")
	}
	return rowcodec.Decode(pg.Data[offset+2 : offset+2+int(length)])
}

// Delete tombstones id's slot (sets the high bit of its length
// prefix) and best-effort compacts trailing tombstoned slots off the
// end of the page.
func (h *Heap) Delete(id RowID) error {
	pg, err := h.pager.ReadPage(id.Page)
	if err != nil {
		return err
	}
	hdr := decodeHeader(pg.Data[:])
	if id.Slot >= hdr.slotCount {
		return errs.Wrapf(errs.ErrInvalidPageID, "slot %d >= count %d", id.Slot, hdr.slotCount)
	}

	offset := dataPageHeaderSize
	for slot := uint16(0); slot < id.Slot; slot++ {
		length, _ := readSlotLength(pg.Data[:], offset)
		offset += 2 + int(length)
	}
	length, _ := readSlotLength(pg.Data[:], offset)
	writeSlotLength(pg.Data[:], offset, length, true)

	compactTrailingTombstones(pg.Data[:], &hdr)
	encodeHeader(pg.Data[:], hdr)

	if err := h.pager.WritePage(id.Page, pg.Data[:]); err != nil {
		return err
	}
	h.invalidateRow(id)
	return nil
}

// Update decodes id's current encoding, applies fn, and re-encodes.
// An equal-or-smaller result is rewritten in place and the page is
// compacted so the tightly-packed invariant holds; a larger result
// tombstones the old slot and inserts the new encoding as a fresh
// row, possibly on a different page, returning its new RowID.
func (h *Heap) Update(id RowID, fn func(rowcodec.Record) rowcodec.Record) (RowID, error) {
	old, err := h.Get(id)
	if err != nil {
		return RowID{}, err
	}
	newRec := fn(old)
	encoded := rowcodec.Encode(newRec)
	if len(encoded) > maxRecordBytes {
		return RowID{}, errs.Wrapf(errs.ErrRecordTooLarge, "%d bytes (max %d)", len(encoded), maxRecordBytes)
	}

	pg, err := h.pager.ReadPage(id.Page)
	if err != nil {
		return RowID{}, err
	}
	hdr := decodeHeader(pg.Data[:])

	offset := dataPageHeaderSize
	for slot := uint16(0); slot < id.Slot; slot++ {
		length, _ := readSlotLength(pg.Data[:], offset)
		offset += 2 + int(length)
	}
	oldLength, _ := readSlotLength(pg.Data[:], offset)

	if len(encoded) <= int(oldLength) {
		copy(pg.Data[offset+2:offset+2+len(encoded)], encoded)
		writeSlotLength(pg.Data[:], offset, uint16(len(encoded)), false)
		shiftTrailingLeft(pg.Data[:], &hdr, offset+2+len(encoded), offset+2+int(oldLength))
		encodeHeader(pg.Data[:], hdr)
		if err := h.pager.WritePage(id.Page, pg.Data[:]); err != nil {
			return RowID{}, err
		}
		h.invalidateRow(id)
		return id, nil
	}

	// Tombstone in place without Delete's trailing compaction, so the
	// new encoding lands in a fresh slot rather than reusing this one.
	writeSlotLength(pg.Data[:], offset, oldLength, true)
	if err := h.pager.WritePage(id.Page, pg.Data[:]); err != nil {
		return RowID{}, err
	}
	h.invalidateRow(id)
	return h.Insert(newRec)
}
