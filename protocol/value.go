package protocol

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Kind identifies the type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindVector
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindVector:
		return "vector"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a tagged union for command arguments and response payload fields.
// Supported kinds: string, integer, float, boolean, numeric vector, and
// nested mapping. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool
	vec  []float64
	m    map[string]Value
}

func String(s string) Value        { return Value{kind: KindString, str: s} }
func Int(i int64) Value            { return Value{kind: KindInt, i: i} }
func Float(f float64) Value        { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value            { return Value{kind: KindBool, b: b} }
func Vector(v []float64) Value     { return Value{kind: KindVector, vec: v} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string value. ok is false for any other kind.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsInt returns the integer value. ok is false for any other kind.
func (v Value) AsInt() (int64, bool) {
	return v.i, v.kind == KindInt
}

// AsFloat returns the numeric value. Integers are widened to float64.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// AsBool returns the boolean value. ok is false for any other kind.
func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

// AsVector returns the numeric vector. The returned slice is not copied;
// callers must not mutate it.
func (v Value) AsVector() ([]float64, bool) {
	return v.vec, v.kind == KindVector
}

// AsMap returns the nested mapping. The returned map is not copied.
func (v Value) AsMap() (map[string]Value, bool) {
	return v.m, v.kind == KindMap
}

// MarshalJSON encodes the value as its natural JSON form. Map keys are
// emitted in sorted order so encoding is deterministic.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindInt:
		return strconv.AppendInt(nil, v.i, 10), nil
	case KindFloat:
		return json.Marshal(v.f)
	case KindBool:
		return strconv.AppendBool(nil, v.b), nil
	case KindVector:
		if v.vec == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.vec)
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := v.m[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes a JSON literal into the matching kind. Arrays must
// contain only numbers (vectors); integer literals without a fraction or
// exponent decode as KindInt, every other number as KindFloat.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &ProtocolError{Message: "empty value literal"}
	}

	switch data[0] {
	case 'n':
		if !bytes.Equal(data, []byte("null")) {
			return &ProtocolError{Message: "invalid literal: " + string(data)}
		}
		*v = Value{}
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return &ProtocolError{Message: "invalid string literal", Err: err}
		}
		*v = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return &ProtocolError{Message: "invalid boolean literal", Err: err}
		}
		*v = Bool(b)
		return nil
	case '[':
		var vec []float64
		if err := json.Unmarshal(data, &vec); err != nil {
			return &ProtocolError{Message: "vector elements must be numbers", Err: err}
		}
		*v = Vector(vec)
		return nil
	case '{':
		var m map[string]Value
		if err := json.Unmarshal(data, &m); err != nil {
			return &ProtocolError{Message: "invalid nested mapping", Err: err}
		}
		*v = Map(m)
		return nil
	default:
		lit := string(data)
		if strings.ContainsAny(lit, ".eE") {
			f, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return &ProtocolError{Message: "invalid number literal: " + lit, Err: err}
			}
			*v = Float(f)
			return nil
		}
		i, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			// Out of int64 range, fall back to float.
			f, ferr := strconv.ParseFloat(lit, 64)
			if ferr != nil {
				return &ProtocolError{Message: "invalid number literal: " + lit, Err: err}
			}
			*v = Float(f)
			return nil
		}
		*v = Int(i)
		return nil
	}
}
