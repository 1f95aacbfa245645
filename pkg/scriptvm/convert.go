package scriptvm

import (
	"math"
	"math/big"
	"strconv"

	"github.com/dop251/goja"

	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
)

const (
	// maxDepth bounds the nesting accepted from scripts, which also stops
	// cyclic objects.
	maxDepth = 64
	// maxElements bounds the array elements and object properties accepted
	// from scripts in one conversion. Array lengths are script controlled
	// and sparse arrays cost the script nothing.
	maxElements = 1 << 20
)

// toJS converts a dynamic value for a script. Integers and byte arrays are
// handed over as strings.
func toJS(vm *goja.Runtime, v dynamic.Value) goja.Value {
	switch v.Kind() {
	case dynamic.KindNull:
		return goja.Null()
	case dynamic.KindBool:
		b, _ := dynamic.AsBool(v)
		return vm.ToValue(b)
	case dynamic.KindSequence:
		elems, _ := dynamic.AsSequence(v)
		items := make([]any, len(elems))
		for i, e := range elems {
			items[i] = toJS(vm, e)
		}
		return vm.NewArray(items...)
	case dynamic.KindMap:
		m, _ := dynamic.AsMap(v)
		obj := vm.NewObject()
		m.Range(func(k string, e dynamic.Value) bool {
			_ = obj.Set(k, toJS(vm, e))
			return true
		})
		return obj
	default:
		return vm.ToValue(v.String())
	}
}

// fromJS converts a script value. undefined and null both become Null.
// Functions, symbols and numbers with a fractional part cannot be
// converted; neither can a composite holding one of them or one over
// maxElements.
func fromJS(v goja.Value) (dynamic.Value, bool) {
	budget := int64(maxElements)
	return fromJSDepth(v, 0, &budget)
}

func fromJSDepth(v goja.Value, depth int, budget *int64) (dynamic.Value, bool) {
	if depth > maxDepth {
		return dynamic.Null(), false
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return dynamic.Null(), true
	}

	if obj, ok := v.(*goja.Object); ok {
		if _, isFn := goja.AssertFunction(obj); isFn {
			return dynamic.Null(), false
		}
		if obj.ClassName() == "Array" {
			n := obj.Get("length").ToInteger()
			if n < 0 || n > *budget {
				return dynamic.Null(), false
			}
			*budget -= n
			var elems []dynamic.Value
			for i := int64(0); i < n; i++ {
				e, ok := fromJSDepth(obj.Get(strconv.FormatInt(i, 10)), depth+1, budget)
				if !ok {
					return dynamic.Null(), false
				}
				elems = append(elems, e)
			}
			return dynamic.Sequence(elems...), true
		}
		keys := obj.Keys()
		if int64(len(keys)) > *budget {
			return dynamic.Null(), false
		}
		*budget -= int64(len(keys))
		m := dynamic.NewOrderedMap()
		for _, k := range keys {
			e, ok := fromJSDepth(obj.Get(k), depth+1, budget)
			if !ok {
				return dynamic.Null(), false
			}
			m.Set(k, e)
		}
		return dynamic.Map(m), true
	}

	switch x := v.Export().(type) {
	case bool:
		return dynamic.Bool(x), true
	case string:
		return dynamic.Text(x), true
	case int64:
		return dynamic.Int64(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || math.Trunc(x) != x {
			return dynamic.Null(), false
		}
		i, _ := new(big.Float).SetFloat64(x).Int(nil)
		return dynamic.BigInt(i), true
	case *big.Int:
		return dynamic.BigInt(x), true
	default:
		return dynamic.Null(), false
	}
}
