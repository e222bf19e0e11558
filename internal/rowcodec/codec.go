package rowcodec

import (
	"encoding/binary"
	"math"

	"sawitdb/internal/errs"
)

// Encode serializes r as a length-prefixed sequence of typed field
// entries: per field, u8 name-length, name bytes, u8 type tag, then a
// type-specific payload. This is the "tagged binary" encoding named
// in the spec (the alternative "textual JSON-like" encoding is also
// admissible; this core picks tagged binary because it is a direct
// generalization of the teacher's ValueToBytes/BytesToValue pair to a
// self-describing, variant-aware field set).
func Encode(r Record) []byte {
	buf := make([]byte, 0, 64)
	for _, f := range r.Fields {
		buf = append(buf, byte(len(f.Name)))
		buf = append(buf, f.Name...)
		buf = append(buf, byte(f.Val.Kind))
		buf = appendValuePayload(buf, f.Val)
	}
	return buf
}

func appendValuePayload(buf []byte, v Value) []byte {
	switch v.Kind {
	case KindNull:
		return buf
	case KindBool:
		if v.Bool {
			return append(buf, 1)
		}
		return append(buf, 0)
	case KindInt64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.Int))
		return append(buf, tmp[:]...)
	case KindFloat64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v.Flt))
		return append(buf, tmp[:]...)
	case KindString, KindTimestamp:
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(v.Str)))
		buf = append(buf, lenBuf[:]...)
		return append(buf, v.Str...)
	default:
		return buf
	}
}

// Decode parses bytes produced by Encode back into a Record. It
// returns errs.ErrCorruptFile if the byte run is truncated or carries
// an unknown type tag.
func Decode(buf []byte) (Record, error) {
	var rec Record
	i := 0
	for i < len(buf) {
		if i+1 > len(buf) {
			return Record{}, errs.Wrap(errs.ErrCorruptFile, "truncated field name length")
		}
		nameLen := int(buf[i])
		i++
		if i+nameLen+1 > len(buf) {
			return Record{}, errs.Wrap(errs.ErrCorruptFile, "truncated field name/tag")
		}
		name := string(buf[i : i+nameLen])
		i += nameLen
		kind := Kind(buf[i])
		i++

		val, n, err := decodeValuePayload(kind, buf[i:])
		if err != nil {
			return Record{}, err
		}
		i += n
		rec.Fields = append(rec.Fields, Field{Name: name, Val: val})
	}
	return rec, nil
}

func decodeValuePayload(kind Kind, buf []byte) (Value, int, error) {
	switch kind {
	case KindNull:
		return Null(), 0, nil
	case KindBool:
		if len(buf) < 1 {
			return Value{}, 0, errs.Wrap(errs.ErrCorruptFile, "truncated bool")
		}
		return BoolVal(buf[0] != 0), 1, nil
	case KindInt64:
		if len(buf) < 8 {
			return Value{}, 0, errs.Wrap(errs.ErrCorruptFile, "truncated int64")
		}
		return IntVal(int64(binary.LittleEndian.Uint64(buf[:8]))), 8, nil
	case KindFloat64:
		if len(buf) < 8 {
			return Value{}, 0, errs.Wrap(errs.ErrCorruptFile, "truncated float64")
		}
		bits := binary.LittleEndian.Uint64(buf[:8])
		return FloatVal(math.Float64frombits(bits)), 8, nil
	case KindString, KindTimestamp:
		if len(buf) < 2 {
			return Value{}, 0, errs.Wrap(errs.ErrCorruptFile, "truncated string length")
		}
		strLen := int(binary.LittleEndian.Uint16(buf[:2]))
		if len(buf) < 2+strLen {
			return Value{}, 0, errs.Wrap(errs.ErrCorruptFile, "truncated string payload")
		}
		s := string(buf[2 : 2+strLen])
		if kind == KindTimestamp {
			return TimestampVal(s), 2 + strLen, nil
		}
		return StringVal(s), 2 + strLen, nil
	default:
		return Value{}, 0, errs.Wrapf(errs.ErrCorruptFile, "unknown type tag %d", kind)
	}
}
