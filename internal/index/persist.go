package index

import (
	"sawitdb/internal/heap"
	"sawitdb/internal/page"
	"sawitdb/internal/rowcodec"
)

func pageIDFromValue(v rowcodec.Value) page.ID { return page.ID(v.Int) }

// systemTable is the name of the system table that holds a flat
// snapshot of every built index, so indexes survive a close/reopen
// without needing a durable B+Tree structure.
const systemTable = "_indexes"

// SystemTableName returns the reserved table name indexes are
// persisted under.
func SystemTableName() string { return systemTable }

// toRows renders idx's current snapshot as system-table rows: one row
// per (value, RowID) pair, plus the table/column it belongs to.
func toRows(idx *Index) []rowcodec.Record {
	rows := make([]rowcodec.Record, 0)
	for _, e := range idx.snapshot() {
		var rec rowcodec.Record
		rec.Set("table", rowcodec.StringVal(idx.Table))
		rec.Set("column", rowcodec.StringVal(idx.Column))
		rec.Set("value", e.value)
		rec.Set("page", rowcodec.IntVal(int64(e.id.Page)))
		rec.Set("slot", rowcodec.IntVal(int64(e.id.Slot)))
		rows = append(rows, rec)
	}
	return rows
}

// Persist rewrites every row of the "_indexes" system table heap to
// reflect the manager's current in-memory state. It is a full
// overwrite, not an incremental append: simplicity over write
// amplification, acceptable given the spec's embedded, single-process
// scale.
func Persist(m *Manager, truncate func() error, insert func(rowcodec.Record) (heap.RowID, error)) error {
	if err := truncate(); err != nil {
		return err
	}
	for _, idx := range m.All() {
		for _, row := range toRows(idx) {
			if _, err := insert(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// Load rebuilds the manager's indexes from the rows currently stored
// in the "_indexes" system table.
func Load(m *Manager, scan func(fn func(heap.RowID, rowcodec.Record) (bool, error)) error) error {
	built := make(map[string]*Index)

	err := scan(func(id heap.RowID, rec rowcodec.Record) (bool, error) {
		tableVal, _ := rec.Get("table")
		columnVal, _ := rec.Get("column")
		value, _ := rec.Get("value")
		pageVal, _ := rec.Get("page")
		slotVal, _ := rec.Get("slot")

		k := key(tableVal.Str, columnVal.Str)
		idx, ok := built[k]
		if !ok {
			idx = newIndex(tableVal.Str, columnVal.Str)
			built[k] = idx
		}
		rowID := heap.RowID{Page: pageIDFromValue(pageVal), Slot: uint16(slotVal.Int)}
		idx.entries[value] = append(idx.entries[value], rowID)
		return true, nil
	})
	if err != nil {
		return err
	}

	for _, idx := range built {
		m.Register(idx)
	}
	return nil
}
