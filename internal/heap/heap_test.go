package heap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sawitdb/internal/catalog"
	"sawitdb/internal/page"
	"sawitdb/internal/pager"
	"sawitdb/internal/recordcache"
	"sawitdb/internal/rowcodec"
)

func openHeap(t *testing.T) *Heap {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sawit")
	p, err := pager.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	c := catalog.New(p)
	entry, err := c.CreateTable("t", false)
	require.NoError(t, err)

	return New(p, nil, entry.Head)
}

func openHeapWithCache(t *testing.T) *Heap {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sawit")
	p, err := pager.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })

	c := catalog.New(p)
	entry, err := c.CreateTable("t", false)
	require.NoError(t, err)

	rc, err := recordcache.New(128)
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	return New(p, rc, entry.Head)
}

func record(fields ...rowcodec.Field) rowcodec.Record {
	return rowcodec.Record{Fields: fields}
}

func f(name string, v rowcodec.Value) rowcodec.Field { return rowcodec.Field{Name: name, Val: v} }

func TestInsertAndScan(t *testing.T) {
	h := openHeap(t)

	id1, err := h.Insert(record(f("id", rowcodec.IntVal(1))))
	require.NoError(t, err)
	id2, err := h.Insert(record(f("id", rowcodec.IntVal(2))))
	require.NoError(t, err)

	var seen []int64
	err = h.Scan(func(id RowID, r rowcodec.Record) (bool, error) {
		v, _ := r.Get("id")
		seen = append(seen, v.Int)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, id1.Page, id2.Page)
	assert.NotEqual(t, id1.Slot, id2.Slot)
}

func TestGetReturnsInsertedRecord(t *testing.T) {
	h := openHeap(t)
	id, err := h.Insert(record(f("name", rowcodec.StringVal("sawit"))))
	require.NoError(t, err)

	got, err := h.Get(id)
	require.NoError(t, err)
	v, ok := got.Get("name")
	require.True(t, ok)
	assert.Equal(t, "sawit", v.Str)
}

func TestDeleteTombstonesRow(t *testing.T) {
	h := openHeap(t)
	id, err := h.Insert(record(f("id", rowcodec.IntVal(1))))
	require.NoError(t, err)
	require.NoError(t, h.Delete(id))

	_, err = h.Get(id)
	assert.Error(t, err)

	var count int
	err = h.Scan(func(RowID, rowcodec.Record) (bool, error) {
		count++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestUpdateInPlaceWhenSmallerOrEqual(t *testing.T) {
	h := openHeap(t)
	id, err := h.Insert(record(f("name", rowcodec.StringVal("original"))))
	require.NoError(t, err)

	newID, err := h.Update(id, func(r rowcodec.Record) rowcodec.Record {
		r.Set("name", rowcodec.StringVal("short"))
		return r
	})
	require.NoError(t, err)
	assert.Equal(t, id, newID, "an equal-or-smaller update rewrites in place")

	got, err := h.Get(newID)
	require.NoError(t, err)
	v, _ := got.Get("name")
	assert.Equal(t, "short", v.Str)
}

func TestUpdateRelocatesWhenLarger(t *testing.T) {
	h := openHeap(t)
	id, err := h.Insert(record(f("name", rowcodec.StringVal("x"))))
	require.NoError(t, err)

	newID, err := h.Update(id, func(r rowcodec.Record) rowcodec.Record {
		r.Set("name", rowcodec.StringVal("a much, much longer replacement value"))
		return r
	})
	require.NoError(t, err)
	assert.NotEqual(t, id, newID)

	_, err = h.Get(id)
	assert.Error(t, err, "the old slot must be tombstoned")

	got, err := h.Get(newID)
	require.NoError(t, err)
	v, _ := got.Get("name")
	assert.Equal(t, "a much, much longer replacement value", v.Str)
}

func TestInsertSpillsToNewPageWhenFull(t *testing.T) {
	h := openHeap(t)
	big := make([]byte, 3000)
	for i := range big {
		big[i] = 'a'
	}

	var lastIDs []RowID
	for i := 0; i < 3; i++ {
		id, err := h.Insert(record(f("blob", rowcodec.StringVal(string(big)))))
		require.NoError(t, err)
		lastIDs = append(lastIDs, id)
	}

	assert.NotEqual(t, lastIDs[0].Page, lastIDs[2].Page, "three ~3KB rows must not fit on one 4KB page")

	var count int
	err := h.Scan(func(RowID, rowcodec.Record) (bool, error) {
		count++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestScanStampsSerialIDAndSkipsDeletedSlots(t *testing.T) {
	h := openHeap(t)
	_, err := h.Insert(record(f("id", rowcodec.IntVal(1))))
	require.NoError(t, err)
	second, err := h.Insert(record(f("id", rowcodec.IntVal(2))))
	require.NoError(t, err)
	_, err = h.Insert(record(f("id", rowcodec.IntVal(3))))
	require.NoError(t, err)
	require.NoError(t, h.Delete(second))

	var serials []int64
	err = h.Scan(func(_ RowID, r rowcodec.Record) (bool, error) {
		v, ok := r.Get("_id")
		require.True(t, ok)
		serials = append(serials, v.Int)
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1}, serials, "serial position counts only live rows, in scan order")
}

func TestScanAfterSameLengthUpdateIsNotStale(t *testing.T) {
	h := openHeapWithCache(t)
	id, err := h.Insert(record(f("flag", rowcodec.BoolVal(false))))
	require.NoError(t, err)

	// Warm the decoded-record cache with the pre-update value.
	err = h.Scan(func(RowID, rowcodec.Record) (bool, error) { return true, nil })
	require.NoError(t, err)

	_, err = h.Update(id, func(r rowcodec.Record) rowcodec.Record {
		r.Set("flag", rowcodec.BoolVal(true))
		return r
	})
	require.NoError(t, err)

	var got rowcodec.Value
	err = h.Scan(func(_ RowID, r rowcodec.Record) (bool, error) {
		got, _ = r.Get("flag")
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, got.Bool, "a same-length in-place update must invalidate the decoded-record cache")
}

func TestInsertRejectsOversizedRecord(t *testing.T) {
	h := openHeap(t)
	huge := make([]byte, page.Size)
	_, err := h.Insert(record(f("blob", rowcodec.StringVal(string(huge)))))
	assert.Error(t, err)
}
