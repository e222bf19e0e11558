// Package rowcodec encodes and decodes schemaless records to and from
// the byte runs stored in table-heap slots.
package rowcodec

// Kind tags the dynamic type carried by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindString
	KindTimestamp
)

// Value is a tagged union over the record field types the spec
// allows: null, boolean, 64-bit signed integer, 64-bit float, UTF-8
// string, and an ISO-8601 timestamp carried as a string.
type Value struct {
	Kind Kind
	Bool bool
	Int  int64
	Flt  float64
	Str  string // also holds Kind == KindTimestamp's ISO-8601 text
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// BoolVal wraps b as a Value.
func BoolVal(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IntVal wraps i as a Value.
func IntVal(i int64) Value { return Value{Kind: KindInt64, Int: i} }

// FloatVal wraps f as a Value.
func FloatVal(f float64) Value { return Value{Kind: KindFloat64, Flt: f} }

// StringVal wraps s as a Value.
func StringVal(s string) Value { return Value{Kind: KindString, Str: s} }

// TimestampVal wraps an ISO-8601 timestamp string as a Value.
func TimestampVal(s string) Value { return Value{Kind: KindTimestamp, Str: s} }

// IsNull reports whether v is the null value.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Equal reports value equality between v and other (not byte-exact
// encoding equality — round-tripping two equivalently-typed values
// must compare Equal even if their source representation differed).
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == other.Bool
	case KindInt64:
		return v.Int == other.Int
	case KindFloat64:
		return v.Flt == other.Flt
	case KindString, KindTimestamp:
		return v.Str == other.Str
	default:
		return false
	}
}

// Field is one (name, value) pair of a Record.
type Field struct {
	Name string
	Val  Value
}

// Record is an ordered sequence of fields. Records are schemaless:
// different rows of the same table may carry different field sets.
type Record struct {
	Fields []Field
}

// Get returns the value for name and whether it was present.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Val, true
		}
	}
	return Value{}, false
}

// Set overwrites the value of an existing field named name, or
// appends a new field if none exists.
func (r *Record) Set(name string, v Value) {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			r.Fields[i].Val = v
			return
		}
	}
	r.Fields = append(r.Fields, Field{Name: name, Val: v})
}

// EqualByValue reports whether r and other carry the same (name,
// value) pairs, independent of field order — the property required
// by the codec's round-trip invariant.
func (r Record) EqualByValue(other Record) bool {
	if len(r.Fields) != len(other.Fields) {
		return false
	}
	for _, f := range r.Fields {
		ov, ok := other.Get(f.Name)
		if !ok || !f.Val.Equal(ov) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := Record{Fields: make([]Field, len(r.Fields))}
	copy(out.Fields, r.Fields)
	return out
}
