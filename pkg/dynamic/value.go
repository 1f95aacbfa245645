// Package dynamic implements the value model exchanged between host
// accessors and scripts.
//
// A Value is a tagged variant: null, bool, arbitrary-precision integer,
// text, byte array, sequence or ordered map. Integers travel in their
// canonical base-10 form and byte arrays as 0x-prefixed lowercase hex, so
// both survive any round-trip through a script runtime that only knows
// strings.
//
// Conversions out of the model (AsBigInt, AsBytes, AsAddress, ...) never
// fail loudly: a shape mismatch returns ok == false and the caller decides
// what "empty" means at its boundary.
package dynamic

import (
	"math/big"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindBigInt
	KindText
	KindBytes
	KindSequence
	KindMap
)

var kindNames = [...]string{
	KindNull:     "null",
	KindBool:     "bool",
	KindBigInt:   "bigint",
	KindText:     "text",
	KindBytes:    "bytes",
	KindSequence: "sequence",
	KindMap:      "map",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is an immutable dynamic value. The zero Value is null.
type Value struct {
	kind  Kind
	b     bool
	str   string // canonical integer or text
	bytes []byte
	seq   []Value
	m     *OrderedMap
}

// Null returns the empty value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Text wraps a UTF-8 string.
func Text(s string) Value { return Value{kind: KindText, str: s} }

// BigInt wraps an integer. A nil pointer yields Null.
func BigInt(x *big.Int) Value {
	if x == nil {
		return Null()
	}
	return Value{kind: KindBigInt, str: FormatBigInt(x)}
}

// Int64 is a shorthand for BigInt(big.NewInt(x)).
func Int64(x int64) Value { return BigInt(big.NewInt(x)) }

// Bytes wraps a copy of b.
func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytes: cp}
}

// Sequence wraps the given elements in order.
func Sequence(elems ...Value) Value {
	cp := make([]Value, len(elems))
	copy(cp, elems)
	return Value{kind: KindSequence, seq: cp}
}

// Map wraps an ordered map. A nil map yields an empty map value.
func Map(m *OrderedMap) Value {
	if m == nil {
		m = NewOrderedMap()
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Len reports the number of elements of a sequence or entries of a map.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMap:
		return v.m.Len()
	default:
		return 0
	}
}

// String renders the value in its canonical external form. Integers are
// decimal, byte arrays are 0x hex, null is the empty string and composite
// values are rendered as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindBigInt, KindText:
		return v.str
	case KindBytes:
		return FormatBytes(v.bytes)
	default:
		var sb strings.Builder
		writeJSON(&sb, v)
		return sb.String()
	}
}

// Equal reports whether a and b hold the same variant and content.
// Map equality is order sensitive.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.b == b.b
	case KindBigInt, KindText:
		return a.str == b.str
	case KindBytes:
		return string(a.bytes) == string(b.bytes)
	case KindSequence:
		if len(a.seq) != len(b.seq) {
			return false
		}
		for i := range a.seq {
			if !Equal(a.seq[i], b.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return a.m.equal(b.m)
	}
	return false
}
