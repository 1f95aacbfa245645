package dynamic

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var (
	ErrNonIntegralNumber = errors.New("dynamic: non-integral number")
	ErrTrailingData      = errors.New("dynamic: trailing data after value")
)

// MarshalJSON encodes v using the external forms: integers and byte arrays
// as JSON strings, maps as objects in insertion order.
func (v Value) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	writeJSON(&sb, v)
	return []byte(sb.String()), nil
}

func writeJSON(sb *strings.Builder, v Value) {
	switch v.kind {
	case KindNull:
		sb.WriteString("null")
	case KindBool:
		sb.WriteString(strconv.FormatBool(v.b))
	case KindBigInt, KindText:
		writeString(sb, v.str)
	case KindBytes:
		writeString(sb, FormatBytes(v.bytes))
	case KindSequence:
		sb.WriteByte('[')
		for i, e := range v.seq {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSON(sb, e)
		}
		sb.WriteByte(']')
	case KindMap:
		sb.WriteByte('{')
		i := 0
		v.m.Range(func(k string, e Value) bool {
			if i > 0 {
				sb.WriteByte(',')
			}
			i++
			writeString(sb, k)
			sb.WriteByte(':')
			writeJSON(sb, e)
			return true
		})
		sb.WriteByte('}')
	}
}

func writeString(sb *strings.Builder, s string) {
	b, _ := json.Marshal(s)
	sb.Write(b)
}

// UnmarshalJSON decodes a JSON document keeping object key order. Strings
// decode to text, integral numbers to BigInt. Fractional numbers are
// rejected with ErrNonIntegralNumber.
func (v *Value) UnmarshalJSON(data []byte) error {
	out, err := Decode(data)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Decode parses a single JSON value.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return Null(), err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Null(), ErrTrailingData
	}
	return out, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return Text(t), nil
	case json.Number:
		x, ok := ParseBigInt(t.String())
		if !ok {
			return Null(), fmt.Errorf("%w: %s", ErrNonIntegralNumber, t)
		}
		return BigInt(x), nil
	case json.Delim:
		switch t {
		case '[':
			var elems []Value
			for dec.More() {
				e, err := decodeValue(dec)
				if err != nil {
					return Null(), err
				}
				elems = append(elems, e)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return Sequence(elems...), nil
		case '{':
			m := NewOrderedMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Null(), fmt.Errorf("dynamic: unexpected object key %v", keyTok)
				}
				e, err := decodeValue(dec)
				if err != nil {
					return Null(), err
				}
				m.Set(key, e)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return Map(m), nil
		}
	}
	return Null(), fmt.Errorf("dynamic: unexpected token %v", tok)
}
