// Package keyorder defines the total ordering over heterogeneous key values
// used by tabcache tables: numbers sort before atoms, atoms before strings,
// strings before composite values, and composites compare element-wise with
// the same rules applied recursively.
//
// The package offers two equivalent views of that order:
//
//   - Compare(a, b) for in-memory comparisons, and
//   - Encode(v) / Append(dst, v), an order-preserving byte encoding such that
//     bytes.Compare(Encode(a), Encode(b)) == Compare(a, b). Byte-backed stores
//     use the encoding to keep a sorted key space (e.g. a lexicographic index).
//
// All numeric kinds are normalized to float64 before comparing or encoding, so
// integers beyond 2^53 lose precision in the ordering. Keys of that magnitude
// should be stored as strings.
package keyorder

import (
	"bytes"
	"fmt"
	"math"
)

// Atom is a short symbolic constant, ordered after numbers and before strings.
type Atom string

// Unset marks a field value that was never written, e.g. fields appended by a
// schema upgrade. It participates in the ordering like any other atom.
const Unset = Atom("unset")

// Type tags double as rank bytes in the encoded form. Higher tag => later in
// the total order. 0x00 is reserved as the composite terminator and string
// escape lead-in, so every tag must be non-zero.
const (
	tagNil    byte = 0x01
	tagNumber byte = 0x10
	tagAtom   byte = 0x20
	tagString byte = 0x30
	tagList   byte = 0x40
	tagOther  byte = 0x7f // fallback: formatted representation
)

// Compare returns -1, 0, or 1 ordering a relative to b under the universal
// key order. It never fails: values of unknown dynamic type fall back to
// their formatted representation and order last.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case tagNil:
		return 0
	case tagNumber:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case tagAtom, tagString, tagOther:
		return bytes.Compare(textOf(a), textOf(b))
	case tagList:
		la, lb := a.([]any), b.([]any)
		for i := 0; i < len(la) && i < len(lb); i++ {
			if c := Compare(la[i], lb[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(la) < len(lb):
			return -1
		case len(la) > len(lb):
			return 1
		}
		return 0
	}
	return 0
}

func rank(v any) byte {
	switch v.(type) {
	case nil:
		return tagNil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return tagNumber
	case bool, Atom:
		return tagAtom
	case string, []byte:
		return tagString
	case []any:
		return tagList
	default:
		return tagOther
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		if math.IsNaN(x) {
			return math.MaxFloat64
		}
		return x
	}
	return 0
}

func textOf(v any) []byte {
	switch x := v.(type) {
	case bool:
		if x {
			return []byte("true")
		}
		return []byte("false")
	case Atom:
		return []byte(x)
	case string:
		return []byte(x)
	case []byte:
		return x
	default:
		return []byte(fmt.Sprintf("%v", x))
	}
}

// Equal reports whether a and b occupy the same position in the key order.
func Equal(a, b any) bool { return Compare(a, b) == 0 }

// Encode returns the order-preserving byte form of v.
func Encode(v any) []byte { return Append(nil, v) }

// Append appends the order-preserving byte form of v to dst.
func Append(dst []byte, v any) []byte {
	switch x := v.(type) {
	case nil:
		return append(dst, tagNil)
	case bool:
		// booleans order as the atoms they abbreviate
		if x {
			return appendEscaped(append(dst, tagAtom), []byte("true"))
		}
		return appendEscaped(append(dst, tagAtom), []byte("false"))
	case int:
		return appendNumber(dst, float64(x))
	case int8:
		return appendNumber(dst, float64(x))
	case int16:
		return appendNumber(dst, float64(x))
	case int32:
		return appendNumber(dst, float64(x))
	case int64:
		return appendNumber(dst, float64(x))
	case uint:
		return appendNumber(dst, float64(x))
	case uint8:
		return appendNumber(dst, float64(x))
	case uint16:
		return appendNumber(dst, float64(x))
	case uint32:
		return appendNumber(dst, float64(x))
	case uint64:
		return appendNumber(dst, float64(x))
	case float32:
		return appendNumber(dst, float64(x))
	case float64:
		return appendNumber(dst, x)
	case Atom:
		return appendEscaped(append(dst, tagAtom), []byte(x))
	case string:
		return appendEscaped(append(dst, tagString), []byte(x))
	case []byte:
		return appendEscaped(append(dst, tagString), x)
	case []any:
		dst = append(dst, tagList)
		for _, el := range x {
			dst = Append(dst, el)
		}
		// 0x00 sorts before every element tag, so a prefix list orders first
		return append(dst, 0x00)
	default:
		return appendEscaped(append(dst, tagOther), []byte(fmt.Sprintf("%v", x)))
	}
}

// appendNumber writes a float64 so that the byte order matches the numeric
// order: flip all bits for negatives, flip only the sign bit for positives.
func appendNumber(dst []byte, f float64) []byte {
	if math.IsNaN(f) {
		// NaN has no meaningful order; pin it after every real number
		f = math.MaxFloat64
	}
	bits := math.Float64bits(f)
	if bits&(1<<63) != 0 {
		bits = ^bits
	} else {
		bits |= 1 << 63
	}
	return append(append(dst, tagNumber),
		byte(bits>>56), byte(bits>>48), byte(bits>>40), byte(bits>>32),
		byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
}

// appendEscaped writes b with 0x00 escaped as 0x00 0xFF and a 0x00 0x01
// terminator. The terminator orders below any escaped byte, so "ab" < "ab\x00c".
func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		if c == 0x00 {
			dst = append(dst, 0x00, 0xFF)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, 0x00, 0x01)
}
