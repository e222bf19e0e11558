package engine

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sawitdb/internal/config"
	"sawitdb/internal/events"
	"sawitdb/internal/predicate"
	"sawitdb/internal/rowcodec"
)

func openEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db.sawit")
	e, err := Open(config.Config{Path: path, CachePages: 16, RecordCacheEntries: 128})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, path
}

func row(fields ...rowcodec.Field) rowcodec.Record { return rowcodec.Record{Fields: fields} }
func fld(name string, v rowcodec.Value) rowcodec.Field {
	return rowcodec.Field{Name: name, Val: v}
}

func TestCreateInsertSelectAll(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))

	_, err := e.Insert("users", row(fld("name", rowcodec.StringVal("ada"))))
	require.NoError(t, err)
	_, err = e.Insert("users", row(fld("name", rowcodec.StringVal("grace"))))
	require.NoError(t, err)

	rows, err := e.Select(SelectQuery{Table: "users"})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestSelectWithWhereFilter(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))
	_, _ = e.Insert("users", row(fld("age", rowcodec.IntVal(20))))
	_, _ = e.Insert("users", row(fld("age", rowcodec.IntVal(40))))

	rows, err := e.Select(SelectQuery{Table: "users", Criteria: predicate.Leaf("age", predicate.Gt, rowcodec.IntVal(30))})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, _ := rows[0].Get("age")
	assert.Equal(t, int64(40), v.Int)
}

func TestUpdateAppliesToMatchingRows(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))
	_, _ = e.Insert("users", row(fld("name", rowcodec.StringVal("ada")), fld("active", rowcodec.BoolVal(false))))

	n, err := e.Update("users", predicate.Leaf("name", predicate.Eq, rowcodec.StringVal("ada")),
		func(r rowcodec.Record) rowcodec.Record {
			r.Set("active", rowcodec.BoolVal(true))
			return r
		})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := e.Select(SelectQuery{Table: "users"})
	require.NoError(t, err)
	v, _ := rows[0].Get("active")
	assert.True(t, v.Bool)
}

func TestCreateIndexEqualityLookup(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))
	_, _ = e.Insert("users", row(fld("email", rowcodec.StringVal("a@example.com"))))
	_, _ = e.Insert("users", row(fld("email", rowcodec.StringVal("b@example.com"))))

	require.NoError(t, e.CreateIndex("users", "email"))

	rows, err := e.Select(SelectQuery{Table: "users", Criteria: predicate.Leaf("email", predicate.Eq, rowcodec.StringVal("b@example.com"))})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, _ := rows[0].Get("email")
	assert.Equal(t, "b@example.com", v.Str)
}

func TestPersistenceAcrossCloseReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db.sawit")
	e, err := Open(config.Config{Path: path, CachePages: 16, RecordCacheEntries: 128})
	require.NoError(t, err)
	require.NoError(t, e.CreateTable("users", false))
	_, err = e.Insert("users", row(fld("name", rowcodec.StringVal("ada"))))
	require.NoError(t, err)
	require.NoError(t, e.CreateIndex("users", "name"))
	require.NoError(t, e.Close())

	e2, err := Open(config.Config{Path: path, CachePages: 16, RecordCacheEntries: 128})
	require.NoError(t, err)
	defer e2.Close()

	rows, err := e2.Select(SelectQuery{Table: "users", Criteria: predicate.Leaf("name", predicate.Eq, rowcodec.StringVal("ada"))})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestDeleteThenCountRemaining(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))
	_, _ = e.Insert("users", row(fld("id", rowcodec.IntVal(1))))
	_, _ = e.Insert("users", row(fld("id", rowcodec.IntVal(2))))
	_, _ = e.Insert("users", row(fld("id", rowcodec.IntVal(3))))

	n, err := e.Delete("users", predicate.Leaf("id", predicate.Lt, rowcodec.IntVal(3)))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err := e.Select(SelectQuery{Table: "users"})
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestUpdateSameLengthEncodingIsVisibleToNextSelect(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))
	_, _ = e.Insert("users", row(fld("name", rowcodec.StringVal("ada")), fld("active", rowcodec.BoolVal(false))))

	// Populate the decoded-record cache with the pre-update row.
	rows, err := e.Select(SelectQuery{Table: "users"})
	require.NoError(t, err)
	v, _ := rows[0].Get("active")
	assert.False(t, v.Bool)

	_, err = e.Update("users", predicate.Leaf("name", predicate.Eq, rowcodec.StringVal("ada")),
		func(r rowcodec.Record) rowcodec.Record {
			r.Set("active", rowcodec.BoolVal(true))
			return r
		})
	require.NoError(t, err)

	rows, err = e.Select(SelectQuery{Table: "users"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	v, _ = rows[0].Get("active")
	assert.True(t, v.Bool, "select after a same-length update must not return the cached pre-update row")
}

func TestSelectStampsHiddenSerialID(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))
	_, _ = e.Insert("users", row(fld("name", rowcodec.StringVal("ada"))))
	_, _ = e.Insert("users", row(fld("name", rowcodec.StringVal("grace"))))

	rows, err := e.Select(SelectQuery{Table: "users"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	id0, ok := rows[0].Get("_id")
	require.True(t, ok)
	assert.Equal(t, int64(0), id0.Int)
	id1, ok := rows[1].Get("_id")
	require.True(t, ok)
	assert.Equal(t, int64(1), id1.Int)
}

func TestSelectOrderByLimitOffsetAndColumns(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))
	_, _ = e.Insert("users", row(fld("name", rowcodec.StringVal("carol")), fld("age", rowcodec.IntVal(30))))
	_, _ = e.Insert("users", row(fld("name", rowcodec.StringVal("ada")), fld("age", rowcodec.IntVal(40))))
	_, _ = e.Insert("users", row(fld("name", rowcodec.StringVal("bob")), fld("age", rowcodec.IntVal(20))))

	limit := 1
	offset := 1
	rows, err := e.Select(SelectQuery{
		Table:   "users",
		Columns: []string{"name"},
		OrderBy: []OrderBy{{Column: "name"}},
		Offset:  &offset,
		Limit:   &limit,
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	name, ok := rows[0].Get("name")
	require.True(t, ok)
	assert.Equal(t, "bob", name.Str)
	_, hasAge := rows[0].Get("age")
	assert.False(t, hasAge, "projected row must not carry columns outside the requested list")
}

func TestSubscribersReceiveCommittedEvents(t *testing.T) {
	e, _ := openEngine(t)
	require.NoError(t, e.CreateTable("users", false))

	var kinds []string
	unsub := e.Subscribe(func(evt events.Event) {
		kinds = append(kinds, evt.Kind.String())
	})
	defer unsub()

	_, err := e.Insert("users", row(fld("id", rowcodec.IntVal(1))))
	require.NoError(t, err)

	assert.Equal(t, []string{"inserted"}, kinds)
}
