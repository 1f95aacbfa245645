package dynamic

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// AddressLength is the only byte length accepted by AsAddress.
const AddressLength = common.AddressLength

// FormatBigInt renders x in canonical form: base 10, optional leading '-',
// no leading zeros.
func FormatBigInt(x *big.Int) string {
	return x.Text(10)
}

// ParseBigInt parses an optionally signed base-10 integer.
func ParseBigInt(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}

// FormatBytes renders b as 0x-prefixed lowercase hex.
func FormatBytes(b []byte) string {
	return hexutil.Encode(b)
}

// ParseBytes parses 0x-prefixed hex of even length, in either case.
func ParseBytes(s string) ([]byte, bool) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, false
	}
	return b, true
}

func AsBool(v Value) (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

func AsText(v Value) (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.str, true
}

// AsBigInt accepts an integer value or text holding a decimal integer,
// since scripts exchange integers as strings.
func AsBigInt(v Value) (*big.Int, bool) {
	switch v.kind {
	case KindBigInt, KindText:
		return ParseBigInt(v.str)
	default:
		return nil, false
	}
}

// AsBytes accepts a byte array value or text holding 0x hex.
func AsBytes(v Value) ([]byte, bool) {
	switch v.kind {
	case KindBytes:
		cp := make([]byte, len(v.bytes))
		copy(cp, v.bytes)
		return cp, true
	case KindText:
		return ParseBytes(v.str)
	default:
		return nil, false
	}
}

// AsAddress succeeds only for byte arrays of exactly 20 bytes.
func AsAddress(v Value) (common.Address, bool) {
	b, ok := AsBytes(v)
	if !ok || len(b) != AddressLength {
		return common.Address{}, false
	}
	return common.BytesToAddress(b), true
}

func AsSequence(v Value) ([]Value, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	cp := make([]Value, len(v.seq))
	copy(cp, v.seq)
	return cp, true
}

func AsMap(v Value) (*OrderedMap, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.m, true
}

// Address returns v as a canonical 20-byte array value, or Null when v is
// not convertible.
func Address(v Value) Value {
	a, ok := AsAddress(v)
	if !ok {
		return Null()
	}
	return Bytes(a.Bytes())
}

// Uint returns v as an integer value, or Null when v does not hold one.
func Uint(v Value) Value {
	x, ok := AsBigInt(v)
	if !ok {
		return Null()
	}
	return BigInt(x)
}

// Expect returns v when it holds kind k, and Null otherwise.
func Expect(v Value, k Kind) (Value, bool) {
	if v.kind != k {
		return Null(), false
	}
	return v, true
}

// ParseUint parses s as a decimal integer value, or returns Null.
func ParseUint(s string) Value {
	x, ok := ParseBigInt(s)
	if !ok {
		return Null()
	}
	return BigInt(x)
}
