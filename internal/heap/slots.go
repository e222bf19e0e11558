package heap

import "encoding/binary"

// dataPageHeaderSize is the 8-byte data-page header: next page-id (4
// bytes LE), slot count (2 bytes LE), free offset (2 bytes LE).
const dataPageHeaderSize = 8

// tombstoneBit marks a slot's length prefix as logically deleted. It
// leaves 15 bits for the length, far above the largest record a page
// can ever hold.
const tombstoneBit = uint16(0x8000)

type pageHeader struct {
	next       uint32
	slotCount  uint16
	freeOffset uint16
}

func decodeHeader(buf []byte) pageHeader {
	return pageHeader{
		next:       binary.LittleEndian.Uint32(buf[0:4]),
		slotCount:  binary.LittleEndian.Uint16(buf[4:6]),
		freeOffset: binary.LittleEndian.Uint16(buf[6:8]),
	}
}

func encodeHeader(buf []byte, h pageHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.next)
	binary.LittleEndian.PutUint16(buf[4:6], h.slotCount)
	binary.LittleEndian.PutUint16(buf[6:8], h.freeOffset)
}

// readSlotLength reads the two-byte length prefix at offset and splits
// out the tombstone flag from the 15-bit length.
func readSlotLength(buf []byte, offset int) (length uint16, tombstoned bool) {
	raw := binary.LittleEndian.Uint16(buf[offset : offset+2])
	return raw &^ tombstoneBit, raw&tombstoneBit != 0
}

// writeSlotLength writes length with the tombstone flag set as given.
func writeSlotLength(buf []byte, offset int, length uint16, tombstoned bool) {
	raw := length
	if tombstoned {
		raw |= tombstoneBit
	}
	binary.LittleEndian.PutUint16(buf[offset:offset+2], raw)
}

// shiftTrailingLeft moves the byte run [oldEnd, hdr.freeOffset) down to
// start at newEnd, closing the gap left by an in-place update that
// shrank a slot, and shrinks freeOffset by the delta. Slot indices are
// positional (a walk from the page header), so none of them change;
// only the bytes they point past move.
func shiftTrailingLeft(buf []byte, hdr *pageHeader, newEnd, oldEnd int) {
	if newEnd == oldEnd {
		return
	}
	tail := append([]byte(nil), buf[oldEnd:hdr.freeOffset]...)
	copy(buf[newEnd:], tail)
	hdr.freeOffset -= uint16(oldEnd - newEnd)
}

// compactTrailingTombstones drops any run of tombstoned slots at the
// very end of the page's slot sequence, shrinking slotCount and
// freeOffset to match. This is a best-effort reclaim: tombstoned slots
// in the middle of the page are left in place until every slot after
// them is tombstoned too and a later Delete drops the whole trailing
// run, per the heap's "tombstone, don't compact-eagerly" delete
// semantics.
func compactTrailingTombstones(buf []byte, hdr *pageHeader) {
	offsets := make([]int, 0, hdr.slotCount)
	lengths := make([]uint16, 0, hdr.slotCount)
	tomb := make([]bool, 0, hdr.slotCount)

	offset := dataPageHeaderSize
	for slot := uint16(0); slot < hdr.slotCount; slot++ {
		length, t := readSlotLength(buf, offset)
		offsets = append(offsets, offset)
		lengths = append(lengths, length)
		tomb = append(tomb, t)
		offset += 2 + int(length)
	}

	count := hdr.slotCount
	for count > 0 && tomb[count-1] {
		count--
	}
	if count == hdr.slotCount {
		return
	}

	hdr.slotCount = count
	if count == 0 {
		hdr.freeOffset = dataPageHeaderSize
		return
	}
	hdr.freeOffset = uint16(offsets[count-1] + 2 + int(lengths[count-1]))
}
