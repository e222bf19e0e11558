// Package engine wires the pager, catalog, table heaps, index
// manager, and event bus into the single entry point the CLI (and any
// future embedder) drives. It plays the role the teacher's
// storage_engine package and query_executor VM play together, but
// dispatches a small fixed set of table operations instead of
// executing parsed SQL.
package engine

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"sawitdb/internal/catalog"
	"sawitdb/internal/config"
	"sawitdb/internal/events"
	"sawitdb/internal/heap"
	"sawitdb/internal/index"
	"sawitdb/internal/pager"
	"sawitdb/internal/predicate"
	"sawitdb/internal/recordcache"
	"sawitdb/internal/rowcodec"
)

// Engine is an open SawitDB database.
type Engine struct {
	mu sync.Mutex

	pager   *pager.Pager
	catalog *catalog.Catalog
	cache   *recordcache.Cache
	indexes *index.Manager
	bus     *events.Bus
	log     *logrus.Entry

	heaps map[string]*heap.Heap
}

// Open opens (creating if absent) the database file named by cfg.Path
// and brings up every ambient subsystem: the page cache, the decoded
// record cache, and the index manager, the latter reloaded from the
// "_indexes" system table if one already exists.
func Open(cfg config.Config) (*Engine, error) {
	log := logrus.WithField("component", "engine")
	log.Logger.SetLevel(cfg.LogLevel)

	p, err := pager.Open(cfg.Path,
		pager.WithCacheCapacity(cfg.CachePages),
		pager.WithLogger(logrus.WithField("component", "pager")))
	if err != nil {
		return nil, err
	}

	rc, err := recordcache.New(cfg.RecordCacheEntries)
	if err != nil {
		p.Close()
		return nil, err
	}

	e := &Engine{
		pager:   p,
		catalog: catalog.New(p),
		cache:   rc,
		indexes: index.NewManager(),
		bus:     events.NewBus(),
		log:     log,
		heaps:   make(map[string]*heap.Heap),
	}

	if _, err := e.catalog.FindTableEntry(index.SystemTableName()); err == nil {
		if err := e.reloadIndexes(); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// Close flushes and closes the underlying file. The engine is unusable
// afterwards.
func (e *Engine) Close() error {
	e.cache.Close()
	return e.pager.Close()
}

// Subscribe registers fn for every future Inserted/Updated/Deleted
// event and returns an unsubscribe function.
func (e *Engine) Subscribe(fn events.Subscriber) func() {
	return e.bus.Subscribe(fn)
}

func (e *Engine) tableHeap(name string) (*heap.Heap, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h, ok := e.heaps[name]; ok {
		return h, nil
	}
	entry, err := e.catalog.FindTableEntry(name)
	if err != nil {
		return nil, err
	}
	h := heap.New(e.pager, e.cache, entry.Head)
	e.heaps[name] = h
	return h, nil
}

// CreateTable registers a new, empty table named name. isSystem marks
// it as engine-owned bookkeeping rather than user data.
func (e *Engine) CreateTable(name string, isSystem bool) error {
	_, err := e.catalog.CreateTable(name, isSystem)
	if err != nil {
		return err
	}
	e.log.WithField("table", name).Info("created table")
	return nil
}

// DropTable removes name's catalog entry (its pages stay allocated;
// the pager never frees pages) and forgets its cached heap and
// indexes.
func (e *Engine) DropTable(name string) error {
	if err := e.catalog.DropTable(name); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.heaps, name)
	e.mu.Unlock()
	e.log.WithField("table", name).Info("dropped table")
	return nil
}

// ListTables returns every table name currently registered.
func (e *Engine) ListTables() ([]string, error) {
	entries, err := e.catalog.ListTables()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names, nil
}

// Insert appends record to table, maintains any indexes built on it,
// and emits an Inserted event.
func (e *Engine) Insert(table string, record rowcodec.Record) (heap.RowID, error) {
	h, err := e.tableHeap(table)
	if err != nil {
		return heap.RowID{}, err
	}
	id, err := h.Insert(record)
	if err != nil {
		return heap.RowID{}, err
	}

	e.indexes.MaintainInsert(table, id, record)
	e.bus.Emit(events.Event{Kind: events.Inserted, Table: table, Row: id, Record: record})
	return id, nil
}

// OrderBy names one ORDER BY key of a SelectQuery, applied after
// earlier keys as a tiebreaker.
type OrderBy struct {
	Column     string
	Descending bool
}

// SelectQuery describes a SELECT: the table to scan, an optional
// column projection (nil/empty means every column), an optional
// filter tree (nil matches everything), optional sort keys applied in
// order, and an optional offset/limit slice of the filtered, sorted
// result.
type SelectQuery struct {
	Table    string
	Columns  []string
	Criteria *predicate.Node
	OrderBy  []OrderBy
	Limit    *int
	Offset   *int
}

// Select runs q and returns the matching rows, sorted, sliced, and
// projected as q describes. If an index exists on an equality
// criteria column, the lookup uses it instead of a full scan.
func (e *Engine) Select(q SelectQuery) ([]rowcodec.Record, error) {
	var out []rowcodec.Record
	var err error

	if eqCol, eqVal, ok := equalityLeaf(q.Criteria); ok {
		if idx, found := e.indexes.Get(q.Table, eqCol); found {
			out, err = e.selectByIndex(q.Table, idx, eqVal, q.Criteria)
		} else {
			out, err = e.scanAll(q.Table, q.Criteria)
		}
	} else {
		out, err = e.scanAll(q.Table, q.Criteria)
	}
	if err != nil {
		return nil, err
	}

	sortRows(out, q.OrderBy)
	out = sliceRows(out, q.Offset, q.Limit)
	return projectColumns(out, q.Columns), nil
}

func (e *Engine) scanAll(table string, pred *predicate.Node) ([]rowcodec.Record, error) {
	h, err := e.tableHeap(table)
	if err != nil {
		return nil, err
	}
	var out []rowcodec.Record
	err = h.Scan(func(_ heap.RowID, record rowcodec.Record) (bool, error) {
		if predicate.Eval(pred, record) {
			out = append(out, record)
		}
		return true, nil
	})
	return out, err
}

// sortRows stable-sorts rows by each OrderBy key in turn, so earlier
// keys take precedence and later keys only break ties. Rows missing a
// key column, or a key whose values aren't mutually comparable, fall
// through to the next key unchanged.
func sortRows(rows []rowcodec.Record, keys []OrderBy) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			vi, pi := rows[i].Get(k.Column)
			vj, pj := rows[j].Get(k.Column)
			if !pi || !pj {
				continue
			}
			c, ok := predicate.Compare(vi, vj)
			if !ok || c == 0 {
				continue
			}
			if k.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

// sliceRows applies offset then limit to rows, clamping offset to the
// slice's length and ignoring a negative limit.
func sliceRows(rows []rowcodec.Record, offset, limit *int) []rowcodec.Record {
	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start > len(rows) {
		start = len(rows)
	}
	rows = rows[start:]
	if limit != nil && *limit >= 0 && *limit < len(rows) {
		rows = rows[:*limit]
	}
	return rows
}

// projectColumns returns rows with only the named columns kept, in
// the order given. A nil or empty columns list means "*": every
// column, unchanged.
func projectColumns(rows []rowcodec.Record, columns []string) []rowcodec.Record {
	if len(columns) == 0 {
		return rows
	}
	out := make([]rowcodec.Record, len(rows))
	for i, r := range rows {
		var proj rowcodec.Record
		for _, col := range columns {
			if v, ok := r.Get(col); ok {
				proj.Set(col, v)
			}
		}
		out[i] = proj
	}
	return out
}

func (e *Engine) selectByIndex(table string, idx *index.Index, eqVal rowcodec.Value, pred *predicate.Node) ([]rowcodec.Record, error) {
	h, err := e.tableHeap(table)
	if err != nil {
		return nil, err
	}
	var out []rowcodec.Record
	for _, id := range idx.Lookup(eqVal) {
		record, err := h.Get(id)
		if err != nil {
			continue // tombstoned since the index was last maintained
		}
		if predicate.Eval(pred, record) {
			out = append(out, record)
		}
	}
	return out, nil
}

// equalityLeaf reports whether pred is exactly a single "column = value"
// leaf, the only shape an index lookup can serve.
func equalityLeaf(pred *predicate.Node) (column string, value rowcodec.Value, ok bool) {
	if pred == nil || !pred.IsLeaf || pred.Op != predicate.Eq {
		return "", rowcodec.Value{}, false
	}
	return pred.Column, pred.Value, true
}

// Update applies mutate to every row of table matching pred, maintains
// indexes, and emits an Updated event per changed row. It returns the
// number of rows changed.
func (e *Engine) Update(table string, pred *predicate.Node, mutate func(rowcodec.Record) rowcodec.Record) (int, error) {
	h, err := e.tableHeap(table)
	if err != nil {
		return 0, err
	}

	var matches []heap.RowID
	var oldRecords []rowcodec.Record
	err = h.Scan(func(id heap.RowID, record rowcodec.Record) (bool, error) {
		if predicate.Eval(pred, record) {
			matches = append(matches, id)
			oldRecords = append(oldRecords, record)
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	for i, oldID := range matches {
		newID, err := h.Update(oldID, mutate)
		if err != nil {
			return i, err
		}
		newRecord, err := h.Get(newID)
		if err != nil {
			return i, err
		}
		e.indexes.MaintainUpdate(table, oldID, oldRecords[i], newID, newRecord)
		e.bus.Emit(events.Event{Kind: events.Updated, Table: table, Row: newID, Record: newRecord})
	}
	return len(matches), nil
}

// Delete tombstones every row of table matching pred, maintains
// indexes, and emits a Deleted event per removed row. It returns the
// number of rows removed.
func (e *Engine) Delete(table string, pred *predicate.Node) (int, error) {
	h, err := e.tableHeap(table)
	if err != nil {
		return 0, err
	}

	var matches []heap.RowID
	var records []rowcodec.Record
	err = h.Scan(func(id heap.RowID, record rowcodec.Record) (bool, error) {
		if predicate.Eval(pred, record) {
			matches = append(matches, id)
			records = append(records, record)
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}

	for i, id := range matches {
		if err := h.Delete(id); err != nil {
			return i, err
		}
		e.indexes.MaintainDelete(table, id, records[i])
		e.bus.Emit(events.Event{Kind: events.Deleted, Table: table, Row: id, Record: records[i]})
	}
	return len(matches), nil
}

// CreateIndex performs a full scan of table and builds an in-memory
// index over column, then persists a snapshot of every index to the
// "_indexes" system table (created on first use).
func (e *Engine) CreateIndex(table, column string) error {
	h, err := e.tableHeap(table)
	if err != nil {
		return err
	}

	if _, err := e.indexes.Build(table, column, h.Scan); err != nil {
		return err
	}
	return e.persistIndexes()
}

func (e *Engine) persistIndexes() error {
	if _, err := e.catalog.FindTableEntry(index.SystemTableName()); err != nil {
		if _, err := e.catalog.CreateTable(index.SystemTableName(), true); err != nil {
			return err
		}
	}
	sysHeap, err := e.tableHeap(index.SystemTableName())
	if err != nil {
		return err
	}

	truncate := func() error {
		var ids []heap.RowID
		if err := sysHeap.Scan(func(id heap.RowID, _ rowcodec.Record) (bool, error) {
			ids = append(ids, id)
			return true, nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			if err := sysHeap.Delete(id); err != nil {
				return err
			}
		}
		return nil
	}
	insert := func(rec rowcodec.Record) (heap.RowID, error) { return sysHeap.Insert(rec) }

	return index.Persist(e.indexes, truncate, insert)
}

func (e *Engine) reloadIndexes() error {
	sysHeap, err := e.tableHeap(index.SystemTableName())
	if err != nil {
		return err
	}
	return index.Load(e.indexes, sysHeap.Scan)
}
