package bindings

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/ava-labs/avalanche-streamline/pkg/descriptor"
)

// HostKind is the script-side representation of a descriptor type.
type HostKind uint8

const (
	HostAddress HostKind = iota
	HostBytes
	HostText
	HostBool
	HostBigInt
	HostSequence
	HostTuple
)

// HostType is the projection of a descriptor type. Integer widths are not
// preserved.
type HostType struct {
	Kind   HostKind
	Elem   *HostType // HostSequence only
	Fields []Field   // HostTuple only, declaration order
}

type Field struct {
	Name string
	Type HostType
}

func (h HostType) String() string {
	switch h.Kind {
	case HostAddress:
		return "address"
	case HostBytes:
		return "bytes"
	case HostText:
		return "text"
	case HostBool:
		return "bool"
	case HostBigInt:
		return "bigint"
	case HostSequence:
		return "sequence<" + h.Elem.String() + ">"
	case HostTuple:
		return renderFields(h.Fields)
	default:
		return "unknown"
	}
}

func renderFields(fields []Field) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Type.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

// Project maps a descriptor param to its host type. Unknown primitives,
// out-of-range widths and tuples without components are fatal.
func Project(contract string, p descriptor.Param) (HostType, error) {
	return project(contract, p, p.Type)
}

func project(contract string, p descriptor.Param, typ string) (HostType, error) {
	if base, ok := arrayBase(typ); ok {
		if base == "" {
			return HostType{}, descriptor.Fatalf(contract, p.Path, "malformed array type %q", p.Type)
		}
		elem, err := project(contract, p, base)
		if err != nil {
			return HostType{}, err
		}
		return HostType{Kind: HostSequence, Elem: &elem}, nil
	}

	switch {
	case typ == "address":
		return HostType{Kind: HostAddress}, nil
	case typ == "bool":
		return HostType{Kind: HostBool}, nil
	case typ == "string":
		return HostType{Kind: HostText}, nil
	case typ == "bytes", typ == "function":
		return HostType{Kind: HostBytes}, nil
	case strings.HasPrefix(typ, "bytes"):
		n, err := strconv.Atoi(strings.TrimPrefix(typ, "bytes"))
		if err != nil || n < 1 || n > 32 {
			return HostType{}, descriptor.Fatalf(contract, p.Path, "unrecognized type %q", typ)
		}
		return HostType{Kind: HostBytes}, nil
	case strings.HasPrefix(typ, "uint"), strings.HasPrefix(typ, "int"):
		if !validIntWidth(strings.TrimPrefix(strings.TrimPrefix(typ, "u"), "int")) {
			return HostType{}, descriptor.Fatalf(contract, p.Path, "unrecognized type %q", typ)
		}
		return HostType{Kind: HostBigInt}, nil
	case typ == "tuple":
		if len(p.Components) == 0 {
			return HostType{}, descriptor.Fatalf(contract, p.Path, "tuple without components")
		}
		fields := make([]Field, len(p.Components))
		for i, c := range p.Components {
			ft, err := Project(contract, c)
			if err != nil {
				return HostType{}, err
			}
			fields[i] = Field{Name: fieldName(c.Name, i), Type: ft}
		}
		return HostType{Kind: HostTuple, Fields: fields}, nil
	default:
		return HostType{}, descriptor.Fatalf(contract, p.Path, "unrecognized type %q", typ)
	}
}

// arrayBase strips the outermost array suffix, "T[]" or "T[k]".
func arrayBase(typ string) (string, bool) {
	if !strings.HasSuffix(typ, "]") {
		return "", false
	}
	open := strings.LastIndexByte(typ, '[')
	if open < 0 {
		return "", true
	}
	if size := typ[open+1 : len(typ)-1]; size != "" {
		if n, err := strconv.Atoi(size); err != nil || n <= 0 {
			return "", true
		}
	}
	return typ[:open], true
}

func validIntWidth(width string) bool {
	if width == "" {
		return true
	}
	n, err := strconv.Atoi(width)
	return err == nil && n >= 8 && n <= 256 && n%8 == 0 && strconv.Itoa(n) == width
}

// fieldName follows the ABI decoder's naming of unnamed params.
func fieldName(name string, i int) string {
	if name == "" {
		return "arg" + strconv.Itoa(i)
	}
	return name
}

// ABIType builds the decoding type for p. It must only be called after
// Project accepted p.
func ABIType(contract string, p descriptor.Param) (abi.Type, error) {
	t, err := abi.NewType(canonicalType(p.Type), p.InternalType, marshalComponents(p.Components))
	if err != nil {
		return abi.Type{}, descriptor.Fatalf(contract, p.Path, "%v", err)
	}
	return t, nil
}

func marshalComponents(params []descriptor.Param) []abi.ArgumentMarshaling {
	if len(params) == 0 {
		return nil
	}
	out := make([]abi.ArgumentMarshaling, len(params))
	for i, c := range params {
		out[i] = abi.ArgumentMarshaling{
			Name:         c.Name,
			Type:         canonicalType(c.Type),
			InternalType: c.InternalType,
			Components:   marshalComponents(c.Components),
			Indexed:      c.Indexed,
		}
	}
	return out
}

// canonicalType expands the bare int and uint aliases, which the ABI type
// parser rejects.
func canonicalType(typ string) string {
	base, suffix := typ, ""
	if i := strings.IndexByte(typ, '['); i >= 0 {
		base, suffix = typ[:i], typ[i:]
	}
	if base == "int" || base == "uint" {
		base += "256"
	}
	return base + suffix
}

// projectArgs projects params and builds their decoding arguments.
func projectArgs(contract string, params []descriptor.Param) (abi.Arguments, []Field, error) {
	args := make(abi.Arguments, len(params))
	fields := make([]Field, len(params))
	for i, p := range params {
		host, err := Project(contract, p)
		if err != nil {
			return nil, nil, err
		}
		t, err := ABIType(contract, p)
		if err != nil {
			return nil, nil, err
		}
		args[i] = abi.Argument{Name: p.Name, Type: t, Indexed: p.Indexed}
		fields[i] = Field{Name: fieldName(p.Name, i), Type: host}
	}
	return args, fields, nil
}
