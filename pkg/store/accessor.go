package store

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
	"github.com/ava-labs/avalanche-streamline/pkg/metrics"
)

// Setter is the capability set of a store module with the "set" policy.
type Setter interface {
	Set(key, value dynamic.Value)
	SetMany(keys, value dynamic.Value)
	DeletePrefix(prefix dynamic.Value)
}

// OnceSetter is the capability set of a store module with the
// "set_if_not_exists" policy.
type OnceSetter interface {
	SetIfNotExists(key, value dynamic.Value)
	SetIfNotExistsMany(keys, value dynamic.Value)
	DeletePrefix(prefix dynamic.Value)
}

// Getter is the read-only capability set handed to consumers of a store.
// Values come back in their external form: a BigInt or Bytes value that was
// written reads back as Text holding its decimal or hex string, which
// dynamic.AsBigInt and dynamic.AsBytes still accept.
type Getter interface {
	Get(key dynamic.Value) dynamic.Value
	GetFirst(key dynamic.Value) dynamic.Value
	GetAt(ordinal, key dynamic.Value) dynamic.Value
}

// Policy selects the capability set a script receives.
type Policy string

const (
	PolicySet            Policy = "set"
	PolicySetIfNotExists Policy = "set_if_not_exists"
	PolicyGet            Policy = "get"
)

func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicySet, PolicySetIfNotExists, PolicyGet:
		return p, nil
	default:
		return "", fmt.Errorf("unknown store policy %q", s)
	}
}

// Accessor exposes a Store to scripts. It owns the ordinal counter of the
// current block, which starts at 1. Inputs that cannot be converted are
// logged and dropped without consuming an ordinal.
type Accessor struct {
	store   *Store
	next    uint64
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

var (
	_ Setter     = (*Accessor)(nil)
	_ OnceSetter = (*Accessor)(nil)
	_ Getter     = (*Accessor)(nil)
)

func NewAccessor(st *Store, log *zap.SugaredLogger, m *metrics.Metrics) *Accessor {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Accessor{store: st, next: 1, log: log, metrics: m}
}

func (a *Accessor) Set(key, value dynamic.Value) {
	a.write("set", key, value, false)
}

func (a *Accessor) SetMany(keys, value dynamic.Value) {
	for _, k := range a.keys("set_many", keys) {
		a.write("set_many", k, value, false)
	}
}

func (a *Accessor) SetIfNotExists(key, value dynamic.Value) {
	a.write("set_if_not_exists", key, value, true)
}

func (a *Accessor) SetIfNotExistsMany(keys, value dynamic.Value) {
	for _, k := range a.keys("set_if_not_exists_many", keys) {
		a.write("set_if_not_exists", k, value, true)
	}
}

func (a *Accessor) DeletePrefix(prefix dynamic.Value) {
	const op = "delete_prefix"
	p, ok := dynamic.AsText(prefix)
	if !ok {
		a.drop(op, "prefix is not text", "prefix", prefix.String())
		return
	}
	last, err := a.store.DeletePrefix(a.next, p)
	if err != nil {
		a.fail(op, err)
		return
	}
	a.next = last + 1
	a.metrics.RecordStoreWrite(op, false)
}

func (a *Accessor) write(op string, key, value dynamic.Value, onlyIfAbsent bool) {
	k, ok := dynamic.AsText(key)
	if !ok {
		a.drop(op, "key is not text", "key", key.String())
		return
	}
	encoded, ok := encode(value)
	if !ok {
		a.drop(op, "value cannot be stored", "key", k, "kind", value.Kind().String())
		return
	}

	ord := a.next
	a.next++
	var err error
	if onlyIfAbsent {
		_, err = a.store.SetIfNotExists(ord, k, encoded)
	} else {
		err = a.store.Set(ord, k, encoded)
	}
	if err != nil {
		a.fail(op, err)
		return
	}
	a.metrics.RecordStoreWrite(op, false)
}

// keys unwraps a key list. Non-text entries are dropped later by write.
func (a *Accessor) keys(op string, keys dynamic.Value) []dynamic.Value {
	elems, ok := dynamic.AsSequence(keys)
	if !ok {
		a.drop(op, "keys is not a sequence", "kind", keys.Kind().String())
		return nil
	}
	return elems
}

func (a *Accessor) drop(op, reason string, kv ...any) {
	a.log.Warnw("dropping store write", append([]any{"operation", op, "reason", reason}, kv...)...)
	a.metrics.RecordStoreWrite(op, true)
	a.metrics.IncConversionFailure("store_" + op)
}

func (a *Accessor) fail(op string, err error) {
	a.log.Errorw("store write failed", "operation", op, "error", err)
	a.metrics.IncError(metrics.ErrTypeStoreCommit)
}

func (a *Accessor) Get(key dynamic.Value) dynamic.Value {
	return a.read("get", key, a.store.GetLast)
}

// GetFirst returns the value key had when the block started. A key first
// written in this block reads as Null.
func (a *Accessor) GetFirst(key dynamic.Value) dynamic.Value {
	return a.read("get_first", key, a.store.GetFirst)
}

func (a *Accessor) GetAt(ordinal, key dynamic.Value) dynamic.Value {
	ord, ok := dynamic.AsBigInt(ordinal)
	if !ok || !ord.IsUint64() {
		a.log.Debugw("ordinal is not an unsigned integer", "ordinal", ordinal.String())
		return dynamic.Null()
	}
	return a.read("get_at", key, func(k string) ([]byte, bool, error) {
		return a.store.GetAt(ord.Uint64(), k)
	})
}

func (a *Accessor) read(op string, key dynamic.Value, get func(string) ([]byte, bool, error)) dynamic.Value {
	k, ok := dynamic.AsText(key)
	if !ok {
		a.log.Debugw("store key is not text", "operation", op, "key", key.String())
		return dynamic.Null()
	}
	raw, exists, err := get(k)
	if err != nil {
		a.log.Errorw("store read failed", "operation", op, "key", k, "error", err)
		return dynamic.Null()
	}
	if !exists {
		return dynamic.Null()
	}
	return decode(raw)
}

// Deltas projects the deltas written so far in this block.
func (a *Accessor) Deltas() dynamic.Value {
	return ProjectDeltas(a.store.Deltas())
}

// encode stores values in their external JSON form. Null has no stored
// representation.
func encode(v dynamic.Value) ([]byte, bool) {
	if v.IsNull() {
		return nil, false
	}
	b, err := v.MarshalJSON()
	if err != nil {
		return nil, false
	}
	return b, true
}

func decode(raw []byte) dynamic.Value {
	if raw == nil {
		return dynamic.Null()
	}
	v, err := dynamic.Decode(raw)
	if err != nil {
		return dynamic.Null()
	}
	return v
}
