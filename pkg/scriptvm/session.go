package scriptvm

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/bindings"
	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
	"github.com/ava-labs/avalanche-streamline/pkg/store"
)

// Property names of a contract object that are not event accessors.
const (
	callsProperty  = "calls"
	eventsProperty = "events"
)

type jsFunc = func(goja.FunctionCall) goja.Value

// session is the state of one evaluation.
type session struct {
	ctx    context.Context
	vm     *goja.Runtime
	blk    *chain.Block
	handle *goja.Object
	env    bindings.Env
	log    *zap.SugaredLogger
	stores map[*goja.Object]*store.Accessor
}

func (s *session) install(registry *bindings.Registry) {
	s.handle = s.blockHandle()

	for _, contract := range registry.Contracts() {
		table, _ := registry.Table(contract)
		obj := s.vm.NewObject()
		evs := s.vm.NewObject()
		calls := s.vm.NewObject()

		for _, acc := range table.Events {
			name := acc.Spec().Name
			fn := s.eventFunc(acc)
			_ = evs.Set(name, fn)
			if name == callsProperty || name == eventsProperty {
				continue
			}
			_ = obj.Set(name, fn)
		}
		for _, acc := range table.Calls {
			_ = calls.Set(acc.Spec().Name, s.callFunc(acc))
		}
		_ = obj.Set(eventsProperty, evs)
		_ = obj.Set(callsProperty, calls)
		_ = s.vm.Set(contract, obj)
	}

	_ = s.vm.Set("address", s.helper("address", dynamic.Address))
	_ = s.vm.Set("uint", s.helper("uint", dynamic.Uint))
	_ = s.vm.Set("deltas", func(call goja.FunctionCall) goja.Value {
		obj, ok := call.Argument(0).(*goja.Object)
		if !ok {
			return goja.Null()
		}
		acc, ok := s.stores[obj]
		if !ok {
			return goja.Null()
		}
		return toJS(s.vm, acc.Deltas())
	})
}

// blockHandle is the object passed as the first argument of every module
// function. Event accessors only accept this exact object.
func (s *session) blockHandle() *goja.Object {
	obj := s.vm.NewObject()
	if s.blk == nil {
		return obj
	}
	if s.blk.Number != nil {
		_ = obj.Set("number", s.blk.Number.String())
	}
	_ = obj.Set("hash", s.blk.Hash.Hex())
	_ = obj.Set("parentHash", s.blk.ParentHash.Hex())
	_ = obj.Set("timestamp", strconv.FormatUint(s.blk.Timestamp, 10))
	_ = obj.Set("logCount", len(s.blk.Logs))
	return obj
}

func (s *session) eventFunc(acc bindings.Accessor) jsFunc {
	return func(call goja.FunctionCall) goja.Value {
		if !call.Argument(0).StrictEquals(s.handle) {
			spec := acc.Spec()
			s.log.Debugw("event accessor called without the block handle",
				"contract", spec.Contract,
				"accessor", spec.Name,
			)
			s.env.Metrics.IncConversionFailure("block_handle")
			return goja.Null()
		}
		filter := s.fromJS("address_filter", call.Argument(1))
		return toJS(s.vm, acc.Invoke(s.ctx, s.env, s.blk, filter))
	}
}

func (s *session) callFunc(acc bindings.Accessor) jsFunc {
	return func(call goja.FunctionCall) goja.Value {
		target := s.fromJS("call_target", call.Argument(0))
		return toJS(s.vm, acc.Invoke(s.ctx, s.env, s.blk, target))
	}
}

func (s *session) helper(name string, convert func(dynamic.Value) dynamic.Value) jsFunc {
	return func(call goja.FunctionCall) goja.Value {
		return toJS(s.vm, convert(s.fromJS(name, call.Argument(0))))
	}
}

// storeObject builds the capability object for policy and remembers it so
// deltas() can find the accessor behind it.
func (s *session) storeObject(acc *store.Accessor, policy store.Policy) *goja.Object {
	obj := s.vm.NewObject()
	switch policy {
	case store.PolicySet:
		_ = obj.Set("set", s.write2("set", acc.Set))
		_ = obj.Set("setMany", s.write2("setMany", acc.SetMany))
		_ = obj.Set("deletePrefix", s.write1("deletePrefix", acc.DeletePrefix))
	case store.PolicySetIfNotExists:
		_ = obj.Set("setIfNotExists", s.write2("setIfNotExists", acc.SetIfNotExists))
		_ = obj.Set("setIfNotExistsMany", s.write2("setIfNotExistsMany", acc.SetIfNotExistsMany))
		_ = obj.Set("deletePrefix", s.write1("deletePrefix", acc.DeletePrefix))
	case store.PolicyGet:
		_ = obj.Set("get", s.read1("get", acc.Get))
		_ = obj.Set("getFirst", s.read1("getFirst", acc.GetFirst))
		_ = obj.Set("getAt", s.read2("getAt", acc.GetAt))
	}
	s.stores[obj] = acc
	return obj
}

func (s *session) write1(name string, fn func(dynamic.Value)) jsFunc {
	return func(call goja.FunctionCall) goja.Value {
		fn(s.fromJS(name, call.Argument(0)))
		return goja.Undefined()
	}
}

func (s *session) write2(name string, fn func(a, b dynamic.Value)) jsFunc {
	return func(call goja.FunctionCall) goja.Value {
		fn(s.fromJS(name, call.Argument(0)), s.fromJS(name, call.Argument(1)))
		return goja.Undefined()
	}
}

func (s *session) read1(name string, fn func(dynamic.Value) dynamic.Value) jsFunc {
	return func(call goja.FunctionCall) goja.Value {
		return toJS(s.vm, fn(s.fromJS(name, call.Argument(0))))
	}
}

func (s *session) read2(name string, fn func(a, b dynamic.Value) dynamic.Value) jsFunc {
	return func(call goja.FunctionCall) goja.Value {
		return toJS(s.vm, fn(s.fromJS(name, call.Argument(0)), s.fromJS(name, call.Argument(1))))
	}
}

// fromJS converts v and records a conversion failure at site.
func (s *session) fromJS(site string, v goja.Value) dynamic.Value {
	out, ok := fromJS(v)
	if !ok {
		s.log.Debugw("script value cannot be converted", "site", site, "value", describe(v))
		s.env.Metrics.IncConversionFailure(site)
	}
	return out
}

// describe renders v for logs without calling into the script, so huge or
// cyclic composites stay cheap.
func describe(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		return obj.ClassName()
	}
	return v.String()
}

func (s *session) call(fn string, args ...goja.Value) (goja.Value, error) {
	f, ok := goja.AssertFunction(s.vm.Get(fn))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, fn)
	}
	res, err := f(goja.Undefined(), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScript, fn, err)
	}
	return res, nil
}
