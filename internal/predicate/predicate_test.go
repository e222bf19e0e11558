package predicate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sawitdb/internal/rowcodec"
)

func rec(fields ...rowcodec.Field) rowcodec.Record {
	return rowcodec.Record{Fields: fields}
}

func f(name string, v rowcodec.Value) rowcodec.Field { return rowcodec.Field{Name: name, Val: v} }

func TestNilTreeMatchesEverything(t *testing.T) {
	assert.True(t, Eval(nil, rec()))
}

func TestEqAndNe(t *testing.T) {
	r := rec(f("age", rowcodec.IntVal(30)))
	assert.True(t, Eval(Leaf("age", Eq, rowcodec.IntVal(30)), r))
	assert.False(t, Eval(Leaf("age", Eq, rowcodec.IntVal(31)), r))
	assert.True(t, Eval(Leaf("age", Ne, rowcodec.IntVal(31)), r))
}

func TestOrdering(t *testing.T) {
	r := rec(f("age", rowcodec.IntVal(30)))
	assert.True(t, Eval(Leaf("age", Gt, rowcodec.IntVal(20)), r))
	assert.True(t, Eval(Leaf("age", Le, rowcodec.IntVal(30)), r))
	assert.False(t, Eval(Leaf("age", Lt, rowcodec.IntVal(30)), r))
	assert.True(t, Eval(Leaf("age", Ge, rowcodec.IntVal(30)), r))
}

func TestAndBindsTighterThanOr(t *testing.T) {
	// a=1 AND b=2 OR c=3 must parse as (a=1 AND b=2) OR c=3
	r := rec(f("a", rowcodec.IntVal(1)), f("b", rowcodec.IntVal(99)), f("c", rowcodec.IntVal(3)))
	tree := Or(
		And(Leaf("a", Eq, rowcodec.IntVal(1)), Leaf("b", Eq, rowcodec.IntVal(2))),
		Leaf("c", Eq, rowcodec.IntVal(3)),
	)
	assert.True(t, Eval(tree, r), "c=3 alone should satisfy the OR branch")
}

func TestInAndNotIn(t *testing.T) {
	r := rec(f("status", rowcodec.StringVal("active")))
	in := LeafIn("status", In, []rowcodec.Value{rowcodec.StringVal("active"), rowcodec.StringVal("pending")})
	assert.True(t, Eval(in, r))

	notIn := LeafIn("status", NotIn, []rowcodec.Value{rowcodec.StringVal("banned")})
	assert.True(t, Eval(notIn, r))
}

func TestBetween(t *testing.T) {
	r := rec(f("score", rowcodec.FloatVal(5.5)))
	between := LeafBetween("score", rowcodec.FloatVal(1), rowcodec.FloatVal(10))
	assert.True(t, Eval(between, r))

	outside := LeafBetween("score", rowcodec.FloatVal(6), rowcodec.FloatVal(10))
	assert.False(t, Eval(outside, r))
}

func TestIsNullAndIsNotNull(t *testing.T) {
	withNull := rec(f("deleted_at", rowcodec.Null()))
	missing := rec()
	present := rec(f("deleted_at", rowcodec.TimestampVal("2026-01-01T00:00:00Z")))

	assert.True(t, Eval(Leaf("deleted_at", IsNull, rowcodec.Value{}), withNull))
	assert.True(t, Eval(Leaf("deleted_at", IsNull, rowcodec.Value{}), missing))
	assert.False(t, Eval(Leaf("deleted_at", IsNull, rowcodec.Value{}), present))
	assert.True(t, Eval(Leaf("deleted_at", IsNotNull, rowcodec.Value{}), present))
}

func TestLikeWildcards(t *testing.T) {
	r := rec(f("name", rowcodec.StringVal("sawitdb")))
	assert.True(t, Eval(Leaf("name", Like, rowcodec.StringVal("sawit%")), r))
	assert.True(t, Eval(Leaf("name", Like, rowcodec.StringVal("sa_itdb")), r))
	assert.False(t, Eval(Leaf("name", Like, rowcodec.StringVal("postgres%")), r))
}

func TestEscapedLiteralEquality(t *testing.T) {
	r := rec(f("quote", rowcodec.StringVal(`it's a "test"`)))
	assert.True(t, Eval(Leaf("quote", Eq, rowcodec.StringVal(`it's a "test"`)), r))
}
