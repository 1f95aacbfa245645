package dynamic

import (
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	bigIntType  = reflect.TypeOf((*big.Int)(nil))
	hashType    = reflect.TypeOf(common.Hash{})
	addressType = reflect.TypeOf(common.Address{})
)

// FromABI converts a value produced by the go-ethereum ABI decoder into
// the dynamic model, guided by its declared type.
//
// Every integer width becomes a BigInt. Addresses, bytes, fixed bytes and
// function pointers become byte arrays. Tuples become ordered maps keyed by
// their raw component names. A common.Hash is always treated as a byte
// array, which covers indexed parameters that only survive as their topic
// hash.
func FromABI(t abi.Type, v any) Value {
	return fromABI(t, reflect.ValueOf(v))
}

func fromABI(t abi.Type, rv reflect.Value) Value {
	for rv.IsValid() && rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return Null()
	}
	switch rv.Type() {
	case hashType:
		h := rv.Interface().(common.Hash)
		return Bytes(h[:])
	case addressType:
		a := rv.Interface().(common.Address)
		return Bytes(a[:])
	case bigIntType:
		return BigInt(rv.Interface().(*big.Int))
	}

	switch t.T {
	case abi.IntTy, abi.UintTy:
		return integer(rv)
	case abi.BoolTy:
		if rv.Kind() != reflect.Bool {
			return Null()
		}
		return Bool(rv.Bool())
	case abi.StringTy:
		if rv.Kind() != reflect.String {
			return Null()
		}
		return Text(rv.String())
	case abi.AddressTy, abi.BytesTy, abi.FixedBytesTy, abi.HashTy, abi.FunctionTy:
		b, ok := byteSlice(rv)
		if !ok {
			return Null()
		}
		return Bytes(b)
	case abi.SliceTy, abi.ArrayTy:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return Null()
		}
		elems := make([]Value, rv.Len())
		for i := range elems {
			elems[i] = fromABI(*t.Elem, rv.Index(i))
		}
		return Sequence(elems...)
	case abi.TupleTy:
		for rv.Kind() == reflect.Ptr {
			if rv.IsNil() {
				return Null()
			}
			rv = rv.Elem()
		}
		if rv.Kind() != reflect.Struct || rv.NumField() < len(t.TupleElems) {
			return Null()
		}
		m := NewOrderedMap()
		for i, elem := range t.TupleElems {
			m.Set(fieldKey(t.TupleRawNames, i), fromABI(*elem, rv.Field(i)))
		}
		return Map(m)
	default:
		return Null()
	}
}

func integer(rv reflect.Value) Value {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return BigInt(new(big.Int).SetUint64(rv.Uint()))
	default:
		return Null()
	}
}

func byteSlice(rv reflect.Value) ([]byte, bool) {
	if k := rv.Kind(); (k != reflect.Slice && k != reflect.Array) || rv.Type().Elem().Kind() != reflect.Uint8 {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.Slice:
		return rv.Bytes(), true
	case reflect.Array:
		b := make([]byte, rv.Len())
		for i := range b {
			b[i] = byte(rv.Index(i).Uint())
		}
		return b, true
	default:
		return nil, false
	}
}

func fieldKey(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return strconv.Itoa(i)
}
