// Package bindings turns contract interface descriptors into a table of
// script-callable accessors: one per event and one per zero-argument view
// or pure function.
package bindings

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ava-labs/avalanche-streamline/pkg/descriptor"
	"github.com/ava-labs/avalanche-streamline/pkg/events"
)

var (
	ErrAccessorCollision = errors.New("accessor name collision")
	ErrDuplicateContract = errors.New("duplicate contract")
)

// Skip records a function that did not get an accessor.
type Skip struct {
	Function string `json:"function"`
	Reason   string `json:"reason"`
}

// Table holds the accessors generated for one contract, sorted by name.
type Table struct {
	Contract string
	Events   []*EventAccessor
	Calls    []*CallAccessor
	Skipped  []Skip
}

// Generate derives the accessor table of ci. The result depends only on the
// descriptor content. A malformed descriptor aborts generation.
func Generate(ci *descriptor.ContractInterface) (*Table, error) {
	t := &Table{Contract: ci.Name}

	eventNames := make(map[string]string, len(ci.Events))
	for _, ev := range ci.Events {
		name := AccessorName(ev.Name)
		if prev, ok := eventNames[name]; ok {
			return nil, collision(ci.Name, ev.Path, KindEvent, name, prev, ev.Name)
		}
		eventNames[name] = ev.Name

		acc, err := newEventAccessor(ci.Name, name, ev)
		if err != nil {
			return nil, err
		}
		t.Events = append(t.Events, acc)
	}

	callNames := make(map[string]string)
	for _, fn := range ci.Functions {
		// Functions without an accessor are still type checked.
		if err := checkParams(ci.Name, fn.Inputs, fn.Outputs); err != nil {
			return nil, err
		}

		switch {
		case !fn.IsReadOnly():
			t.Skipped = append(t.Skipped, Skip{Function: fn.Name, Reason: "state mutability " + string(fn.StateMutability)})
			continue
		case len(fn.Inputs) > 0:
			t.Skipped = append(t.Skipped, Skip{Function: fn.Name, Reason: fmt.Sprintf("takes %d inputs", len(fn.Inputs))})
			continue
		}

		name := AccessorName(fn.Name)
		if prev, ok := callNames[name]; ok {
			return nil, collision(ci.Name, fn.Path, KindCall, name, prev, fn.Name)
		}
		callNames[name] = fn.Name

		acc, err := newCallAccessor(ci.Name, name, fn)
		if err != nil {
			return nil, err
		}
		t.Calls = append(t.Calls, acc)
	}

	sort.Slice(t.Events, func(i, j int) bool { return t.Events[i].spec.Name < t.Events[j].spec.Name })
	sort.Slice(t.Calls, func(i, j int) bool { return t.Calls[i].spec.Name < t.Calls[j].spec.Name })
	sort.SliceStable(t.Skipped, func(i, j int) bool { return t.Skipped[i].Function < t.Skipped[j].Function })
	return t, nil
}

func checkParams(contract string, lists ...[]descriptor.Param) error {
	for _, params := range lists {
		if _, _, err := projectArgs(contract, params); err != nil {
			return err
		}
	}
	return nil
}

func collision(contract, path string, kind Kind, name, first, second string) error {
	return fmt.Errorf("%w: %w", ErrAccessorCollision,
		descriptor.Fatalf(contract, path, "%s %q and %q both map to accessor %q", kind, first, second, name))
}

func newEventAccessor(contract, name string, ev descriptor.Event) (*EventAccessor, error) {
	args, fields, err := projectArgs(contract, ev.Inputs)
	if err != nil {
		return nil, err
	}
	event := abi.NewEvent(ev.Name, ev.Name, ev.Anonymous, args)

	return &EventAccessor{
		spec: Spec{
			Contract:   contract,
			Name:       name,
			Kind:       KindEvent,
			Descriptor: event.Sig,
			Signature:  "(block, addresses?) -> sequence<" + renderFields(fields) + "> | empty",
			Selector:   event.ID.Hex(),
		},
		decoder: events.NewDecoder(event),
	}, nil
}

func newCallAccessor(contract, name string, fn descriptor.Function) (*CallAccessor, error) {
	outputs, fields, err := projectArgs(contract, fn.Outputs)
	if err != nil {
		return nil, err
	}
	method := abi.NewMethod(fn.Name, fn.Name, abi.Function, string(fn.StateMutability),
		false, fn.StateMutability == descriptor.Payable, nil, outputs)

	return &CallAccessor{
		spec: Spec{
			Contract:   contract,
			Name:       name,
			Kind:       KindCall,
			Descriptor: method.Sig,
			Signature:  "(address) -> " + outputSignature(fields) + " | empty",
			Selector:   hexutil.Encode(method.ID),
		},
		method: method,
	}, nil
}

func outputSignature(fields []Field) string {
	switch len(fields) {
	case 0:
		return "empty"
	case 1:
		return fields[0].Type.String()
	default:
		return renderFields(fields)
	}
}

// Lookup finds an accessor by kind and name. The name is folded first.
func (t *Table) Lookup(kind Kind, name string) (Accessor, bool) {
	name = AccessorName(name)
	switch kind {
	case KindEvent:
		i := sort.Search(len(t.Events), func(i int) bool { return t.Events[i].spec.Name >= name })
		if i < len(t.Events) && t.Events[i].spec.Name == name {
			return t.Events[i], true
		}
	case KindCall:
		i := sort.Search(len(t.Calls), func(i int) bool { return t.Calls[i].spec.Name >= name })
		if i < len(t.Calls) && t.Calls[i].spec.Name == name {
			return t.Calls[i], true
		}
	}
	return nil, false
}

// Describe lists the specs of every accessor, events first.
func (t *Table) Describe() []Spec {
	out := make([]Spec, 0, len(t.Events)+len(t.Calls))
	for _, a := range t.Events {
		out = append(out, a.spec)
	}
	for _, a := range t.Calls {
		out = append(out, a.spec)
	}
	return out
}

func (t *Table) String() string {
	var sb strings.Builder
	for _, s := range t.Describe() {
		fmt.Fprintf(&sb, "%s.%s %s %s\n", s.Contract, s.Name, s.Kind, s.Signature)
	}
	return sb.String()
}
