package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	entryEvent    = "event"
	entryFunction = "function"
)

// Parse reads the JSON array form of a contract interface descriptor.
//
// Entries other than events and functions (constructor, fallback, receive,
// error) are accepted and ignored. Any missing or wrong-typed required
// field is reported as a *GenerationError.
func Parse(contract string, raw []byte) (*ContractInterface, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, Fatalf(contract, contract, "descriptor must be a JSON array: %v", err)
	}

	ci := &ContractInterface{Name: contract}
	for i, rawEntry := range entries {
		path := fmt.Sprintf("%s[%d]", contract, i)
		obj, err := object(contract, path, rawEntry)
		if err != nil {
			return nil, err
		}

		typ, ok, err := obj.str("type")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, Fatalf(contract, path, "missing type")
		}

		switch typ {
		case entryEvent:
			ev, err := obj.event()
			if err != nil {
				return nil, err
			}
			ci.Events = append(ci.Events, ev)
		case entryFunction:
			fn, err := obj.function()
			if err != nil {
				return nil, err
			}
			ci.Functions = append(ci.Functions, fn)
		}
	}
	return ci, nil
}

type fields struct {
	contract string
	path     string
	m        map[string]json.RawMessage
}

func object(contract, path string, raw json.RawMessage) (fields, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil || m == nil {
		return fields{}, Fatalf(contract, path, "entry must be a JSON object")
	}
	return fields{contract: contract, path: path, m: m}, nil
}

func (f fields) raw(key string) (json.RawMessage, bool) {
	v, ok := f.m[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (f fields) str(key string) (string, bool, error) {
	v, ok := f.raw(key)
	if !ok {
		return "", false, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false, Fatalf(f.contract, f.path+"."+key, "must be a string")
	}
	return s, true, nil
}

func (f fields) boolean(key string) (bool, error) {
	v, ok := f.raw(key)
	if !ok {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, Fatalf(f.contract, f.path+"."+key, "must be a boolean")
	}
	return b, nil
}

func (f fields) name() (string, error) {
	name, ok, err := f.str("name")
	if err != nil {
		return "", err
	}
	if !ok || name == "" {
		return "", Fatalf(f.contract, f.path, "missing name")
	}
	return name, nil
}

func (f fields) params(key string) ([]Param, error) {
	v, ok := f.raw(key)
	if !ok {
		return nil, Fatalf(f.contract, f.path, "missing %s", key)
	}
	var list []json.RawMessage
	if err := json.Unmarshal(v, &list); err != nil {
		return nil, Fatalf(f.contract, f.path+"."+key, "must be an array")
	}

	params := make([]Param, 0, len(list))
	for i, rawParam := range list {
		p, err := f.param(fmt.Sprintf("%s.%s[%d]", f.path, key, i), rawParam)
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	return params, nil
}

func (f fields) param(path string, raw json.RawMessage) (Param, error) {
	obj, err := object(f.contract, path, raw)
	if err != nil {
		return Param{}, err
	}

	name, _, err := obj.str("name")
	if err != nil {
		return Param{}, err
	}
	typ, ok, err := obj.str("type")
	if err != nil {
		return Param{}, err
	}
	if !ok || typ == "" {
		return Param{}, Fatalf(f.contract, path, "missing type")
	}
	internalType, _, err := obj.str("internalType")
	if err != nil {
		return Param{}, err
	}
	indexed, err := obj.boolean("indexed")
	if err != nil {
		return Param{}, err
	}

	p := Param{
		Name:         name,
		Type:         typ,
		InternalType: internalType,
		Indexed:      indexed,
		Path:         path,
	}
	if strings.HasPrefix(typ, "tuple") {
		if _, ok := obj.raw("components"); !ok {
			return Param{}, Fatalf(f.contract, path, "tuple without components")
		}
		if p.Components, err = obj.params("components"); err != nil {
			return Param{}, err
		}
	}
	return p, nil
}

func (f fields) event() (Event, error) {
	name, err := f.name()
	if err != nil {
		return Event{}, err
	}
	inputs, err := f.params("inputs")
	if err != nil {
		return Event{}, err
	}
	anonymous, err := f.boolean("anonymous")
	if err != nil {
		return Event{}, err
	}
	return Event{Name: name, Inputs: inputs, Anonymous: anonymous, Path: f.path}, nil
}

func (f fields) function() (Function, error) {
	name, err := f.name()
	if err != nil {
		return Function{}, err
	}
	inputs, err := f.params("inputs")
	if err != nil {
		return Function{}, err
	}
	outputs, err := f.params("outputs")
	if err != nil {
		return Function{}, err
	}
	mutability, err := f.mutability()
	if err != nil {
		return Function{}, err
	}
	return Function{
		Name:            name,
		Inputs:          inputs,
		Outputs:         outputs,
		StateMutability: mutability,
		Path:            f.path,
	}, nil
}

// mutability falls back to the legacy constant/payable flags when
// stateMutability is absent.
func (f fields) mutability() (StateMutability, error) {
	s, ok, err := f.str("stateMutability")
	if err != nil {
		return "", err
	}
	if ok {
		switch m := StateMutability(s); m {
		case Pure, View, NonPayable, Payable:
			return m, nil
		default:
			return "", Fatalf(f.contract, f.path+".stateMutability", "unknown mutability %q", s)
		}
	}

	constant, err := f.boolean("constant")
	if err != nil {
		return "", err
	}
	if constant {
		return View, nil
	}
	payable, err := f.boolean("payable")
	if err != nil {
		return "", err
	}
	if payable {
		return Payable, nil
	}
	return NonPayable, nil
}
