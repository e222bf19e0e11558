// Package index implements the secondary index map: for one
// table/column pair, an in-memory map from value to the RowIDs of
// every row currently carrying that value. Indexes are not a durable
// B+Tree like the teacher's bplustree package; SawitDB rebuilds them
// with a full table scan on CREATE INDEX and persists only a flat
// snapshot to the "_indexes" system table for reload on reopen.
package index

import (
	"sync"

	"sawitdb/internal/heap"
	"sawitdb/internal/rowcodec"
)

// Index maps one table column's values to the RowIDs of rows carrying
// them. rowcodec.Value is comparable (all of its fields are), so it
// can be used directly as a map key without a separate encoding step.
type Index struct {
	Table  string
	Column string

	mu      sync.RWMutex
	entries map[rowcodec.Value][]heap.RowID
}

func newIndex(table, column string) *Index {
	return &Index{Table: table, Column: column, entries: make(map[rowcodec.Value][]heap.RowID)}
}

// Lookup returns every RowID currently recorded under value.
func (idx *Index) Lookup(value rowcodec.Value) []heap.RowID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]heap.RowID(nil), idx.entries[value]...)
}

// Insert records that id now carries value.
func (idx *Index) Insert(value rowcodec.Value, id heap.RowID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries[value] = append(idx.entries[value], id)
}

// Remove drops id from value's bucket, if present.
func (idx *Index) Remove(value rowcodec.Value, id heap.RowID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	bucket := idx.entries[value]
	for i, existing := range bucket {
		if existing == id {
			idx.entries[value] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// snapshot returns every (value, RowID) pair currently indexed, for
// persistence to the system table.
func (idx *Index) snapshot() []entry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]entry, 0, len(idx.entries))
	for v, ids := range idx.entries {
		for _, id := range ids {
			out = append(out, entry{value: v, id: id})
		}
	}
	return out
}

type entry struct {
	value rowcodec.Value
	id    heap.RowID
}

// Manager owns every index currently built in the database, keyed by
// "table.column".
type Manager struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewManager returns an empty index manager.
func NewManager() *Manager {
	return &Manager{indexes: make(map[string]*Index)}
}

func key(table, column string) string { return table + "." + column }

// Get returns the index for table.column, if one has been built.
func (m *Manager) Get(table, column string) (*Index, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indexes[key(table, column)]
	return idx, ok
}

// Build performs a full scan of the table (via scan) and constructs a
// fresh index over column, replacing any prior index for the same
// table/column.
func (m *Manager) Build(table, column string, scan func(fn func(heap.RowID, rowcodec.Record) (bool, error)) error) (*Index, error) {
	idx := newIndex(table, column)
	err := scan(func(id heap.RowID, record rowcodec.Record) (bool, error) {
		if v, ok := record.Get(column); ok {
			idx.entries[v] = append(idx.entries[v], id)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.indexes[key(table, column)] = idx
	m.mu.Unlock()
	return idx, nil
}

// MaintainInsert updates every index on table to account for a newly
// inserted row.
func (m *Manager) MaintainInsert(table string, id heap.RowID, record rowcodec.Record) {
	for _, idx := range m.indexesForTable(table) {
		if v, ok := record.Get(idx.Column); ok {
			idx.Insert(v, id)
		}
	}
}

// MaintainDelete updates every index on table to account for a
// removed row.
func (m *Manager) MaintainDelete(table string, id heap.RowID, record rowcodec.Record) {
	for _, idx := range m.indexesForTable(table) {
		if v, ok := record.Get(idx.Column); ok {
			idx.Remove(v, id)
		}
	}
}

// MaintainUpdate updates every index on table to move oldID/oldRecord
// to newID/newRecord. Callers pass oldID == newID when the update was
// rewritten in place.
func (m *Manager) MaintainUpdate(table string, oldID heap.RowID, oldRecord rowcodec.Record, newID heap.RowID, newRecord rowcodec.Record) {
	m.MaintainDelete(table, oldID, oldRecord)
	m.MaintainInsert(table, newID, newRecord)
}

func (m *Manager) indexesForTable(table string) []*Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Index
	for _, idx := range m.indexes {
		if idx.Table == table {
			out = append(out, idx)
		}
	}
	return out
}

// All returns every index currently registered, for persistence.
func (m *Manager) All() []*Index {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Index, 0, len(m.indexes))
	for _, idx := range m.indexes {
		out = append(out, idx)
	}
	return out
}

// Register installs idx directly, used when reloading from the
// "_indexes" system table on reopen.
func (m *Manager) Register(idx *Index) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes[key(idx.Table, idx.Column)] = idx
}
