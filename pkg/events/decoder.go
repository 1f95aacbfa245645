// Package events matches a block's logs against an event descriptor and
// decodes the matches into dynamic values.
package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ava-labs/avalanche-streamline/pkg/chain"
	"github.com/ava-labs/avalanche-streamline/pkg/dynamic"
)

// AddressSet filters logs by emitting contract. A nil set matches every
// address; an empty non-nil set matches none.
type AddressSet map[common.Address]struct{}

func NewAddressSet(addrs ...common.Address) AddressSet {
	s := make(AddressSet, len(addrs))
	for _, a := range addrs {
		s[a] = struct{}{}
	}
	return s
}

func (s AddressSet) Contains(a common.Address) bool {
	if s == nil {
		return true
	}
	_, ok := s[a]
	return ok
}

type field struct {
	key     string
	typ     abi.Type
	indexed bool
	// pos is the position within the indexed or non-indexed arguments.
	pos int
}

// Decoder decodes logs of a single event. It is immutable and safe to share.
type Decoder struct {
	event      abi.Event
	indexed    abi.Arguments
	nonIndexed abi.Arguments
	fields     []field
}

func NewDecoder(ev abi.Event) *Decoder {
	d := &Decoder{event: ev}
	for i, in := range ev.Inputs {
		f := field{key: in.Name, typ: in.Type, indexed: in.Indexed}
		if f.key == "" {
			f.key = "arg" + strconv.Itoa(i)
		}
		if in.Indexed {
			f.pos = len(d.indexed)
			d.indexed = append(d.indexed, topicArgument(i, in))
		} else {
			f.pos = len(d.nonIndexed)
			d.nonIndexed = append(d.nonIndexed, in)
		}
		d.fields = append(d.fields, f)
	}
	return d
}

// topicArgument renames the argument so map keys cannot collide, and retypes
// tuples, which only survive in a topic as their hash.
func topicArgument(i int, in abi.Argument) abi.Argument {
	arg := abi.Argument{Name: "t" + strconv.Itoa(i), Type: in.Type, Indexed: true}
	if in.Type.T == abi.TupleTy {
		arg.Type = abi.Type{T: abi.BytesTy}
	}
	return arg
}

// ID is the topic-0 signature hash of the event.
func (d *Decoder) ID() common.Hash { return d.event.ID }

func (d *Decoder) Event() abi.Event { return d.event }

// DecodeLog attempts to decode l. It returns false when the log belongs to a
// different event or its layout does not match.
func (d *Decoder) DecodeLog(l *chain.Log) (dynamic.Value, bool) {
	if l == nil {
		return dynamic.Null(), false
	}
	topics := l.Topics
	if !d.event.Anonymous {
		if len(topics) == 0 || topics[0] != d.event.ID {
			return dynamic.Null(), false
		}
		topics = topics[1:]
	}
	if len(topics) != len(d.indexed) {
		return dynamic.Null(), false
	}

	data, err := d.nonIndexed.Unpack(l.Data)
	if err != nil || len(data) != len(d.nonIndexed) {
		return dynamic.Null(), false
	}
	indexed := make(map[string]any, len(d.indexed))
	if err := abi.ParseTopicsIntoMap(indexed, d.indexed, topics); err != nil {
		return dynamic.Null(), false
	}

	out := dynamic.NewOrderedMap()
	for _, f := range d.fields {
		var raw any
		if f.indexed {
			raw = indexed[d.indexed[f.pos].Name]
		} else {
			raw = data[f.pos]
		}
		out.Set(f.key, dynamic.FromABI(f.typ, raw))
	}
	return dynamic.Map(out), true
}

// Decode scans logs in order and returns every decoded match whose address
// is in filter. Order is preserved and nothing is deduplicated; logs that
// fail to decode are skipped.
func (d *Decoder) Decode(logs []*chain.Log, filter AddressSet) []dynamic.Value {
	var out []dynamic.Value
	for _, l := range logs {
		ev, ok := d.DecodeLog(l)
		if !ok || !filter.Contains(l.Address) {
			continue
		}
		out = append(out, ev)
	}
	return out
}
