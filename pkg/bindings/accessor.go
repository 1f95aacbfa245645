package bindings

import (
	"context"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
	"github.com/ava-labs/avalanche-streamline/pkg/events"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
)

// Kind separates the event and call namespaces of a contract.
type Kind string

const (
	KindEvent Kind = "event"
	KindCall  Kind = "call"
)

// ContractCaller performs read-only calls at a given block.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Env carries the collaborators an accessor needs at invocation time.
// Every field is optional.
type Env struct {
	Log     *zap.SugaredLogger
	Caller  ContractCaller
	Metrics *metrics.Metrics
}

func (e Env) log() *zap.SugaredLogger {
	if e.Log == nil {
		return zap.NewNop().Sugar()
	}
	return e.Log
}

// Spec is the declarative description of one generated accessor.
type Spec struct {
	Contract   string `json:"contract"`
	Name       string `json:"name"`
	Kind       Kind   `json:"kind"`
	Descriptor string `json:"descriptor"`
	Signature  string `json:"signature"`
	// Selector is the topic-0 hash for events and the 4-byte selector for
	// calls.
	Selector string `json:"selector"`
}

// Accessor is a generated, script-callable binding. Invoke never fails:
// any problem yields the empty value.
type Accessor interface {
	Spec() Spec
	Invoke(ctx context.Context, env Env, blk *chain.Block, arg dynamic.Value) dynamic.Value
}

// EventAccessor returns the decoded occurrences of one event in a block.
// arg is the optional address filter.
type EventAccessor struct {
	spec    Spec
	decoder *events.Decoder
}

func (a *EventAccessor) Spec() Spec { return a.spec }

func (a *EventAccessor) Invoke(_ context.Context, env Env, blk *chain.Block, arg dynamic.Value) dynamic.Value {
	var logs []*chain.Log
	if blk != nil {
		logs = blk.Logs
	}
	matches := a.decoder.Decode(logs, a.addressFilter(env, arg))

	env.Metrics.RecordAccessorCall(string(KindEvent), a.spec.Contract, a.spec.Name, len(matches) == 0)
	env.Metrics.AddEventsDecoded(a.spec.Contract, a.spec.Name, len(matches))
	if len(matches) == 0 {
		return dynamic.Null()
	}
	return dynamic.Sequence(matches...)
}

// addressFilter converts the script's address list. An absent or empty list
// disables filtering; entries that are not addresses are dropped, so a list
// with no valid entry matches nothing.
func (a *EventAccessor) addressFilter(env Env, arg dynamic.Value) events.AddressSet {
	var elems []dynamic.Value
	switch arg.Kind() {
	case dynamic.KindNull:
		return nil
	case dynamic.KindSequence:
		elems, _ = dynamic.AsSequence(arg)
	default:
		elems = []dynamic.Value{arg}
	}
	if len(elems) == 0 {
		return nil
	}

	addrs := make([]common.Address, 0, len(elems))
	for i, e := range elems {
		addr, ok := dynamic.AsAddress(e)
		if !ok {
			env.log().Warnw("dropping address filter entry",
				"contract", a.spec.Contract,
				"accessor", a.spec.Name,
				"position", i,
				"value", e.String(),
			)
			env.Metrics.IncConversionFailure("address_filter")
			continue
		}
		addrs = append(addrs, addr)
	}
	return events.NewAddressSet(addrs...)
}

// CallAccessor performs a zero-argument read-only call. arg is the target
// address.
type CallAccessor struct {
	spec   Spec
	method abi.Method
}

func (a *CallAccessor) Spec() Spec { return a.spec }

func (a *CallAccessor) Invoke(ctx context.Context, env Env, blk *chain.Block, arg dynamic.Value) dynamic.Value {
	out := a.call(ctx, env, blk, arg)
	env.Metrics.RecordAccessorCall(string(KindCall), a.spec.Contract, a.spec.Name, out.IsNull())
	return out
}

func (a *CallAccessor) call(ctx context.Context, env Env, blk *chain.Block, arg dynamic.Value) dynamic.Value {
	target, ok := dynamic.AsAddress(arg)
	if !ok {
		env.log().Debugw("call target is not an address",
			"contract", a.spec.Contract,
			"accessor", a.spec.Name,
			"target", arg.String(),
		)
		env.Metrics.IncConversionFailure("call_target")
		return dynamic.Null()
	}
	if env.Caller == nil {
		env.log().Debugw("no contract caller configured", "accessor", a.spec.Name)
		return dynamic.Null()
	}

	var number *big.Int
	if blk != nil && blk.Number != nil {
		number = new(big.Int).Set(blk.Number)
	}
	raw, err := env.Caller.CallContract(ctx, ethereum.CallMsg{To: &target, Data: a.method.ID}, number)
	if err != nil {
		env.log().Debugw("contract call failed",
			"contract", a.spec.Contract,
			"accessor", a.spec.Name,
			"target", target.Hex(),
			"error", err,
		)
		return dynamic.Null()
	}
	values, err := a.method.Outputs.Unpack(raw)
	if err != nil || len(values) != len(a.method.Outputs) {
		env.log().Debugw("failed to unpack call result",
			"contract", a.spec.Contract,
			"accessor", a.spec.Name,
			"target", target.Hex(),
			"error", err,
		)
		return dynamic.Null()
	}
	return callResult(a.method.Outputs, values)
}

// callResult returns a single output as is and several outputs as a map in
// declaration order.
func callResult(outputs abi.Arguments, values []any) dynamic.Value {
	switch len(outputs) {
	case 0:
		return dynamic.Null()
	case 1:
		return dynamic.FromABI(outputs[0].Type, values[0])
	}
	m := dynamic.NewOrderedMap()
	for i, out := range outputs {
		key := out.Name
		if key == "" {
			key = "arg" + strconv.Itoa(i)
		}
		m.Set(key, dynamic.FromABI(out.Type, values[i]))
	}
	return dynamic.Map(m)
}
