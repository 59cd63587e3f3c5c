package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the scalar and collection values the rule
// tree can compute. Only Int, Str, Bool, Token and List implement it.
// There is no float variant: every number is an int64 so evaluation is
// reproducible across platforms.
type Value interface {
	isValue()
}

// Int is a 64-bit integer value.
type Int int64

func (Int) isValue() {}

// Str is a string value (zone ids, player-facing enums, marker states).
type Str string

func (Str) isValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) isValue() {}

// List is an ordered collection of values, produced by queries.
type List []Value

func (List) isValue() {}

// Token is a game piece snapshot. Tokens are values so queries can return
// them and forEach can bind them.
type Token struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Props Object `json:"props,omitempty"`
}

func (Token) isValue() {}

// Object maps names to values. It is used for variable maps, token props and
// binding exports; it is not itself a Value.
// Use SortedKeys for deterministic iteration.
type Object map[string]Value

// Kind names the dynamic type of a value for type checks and diagnostics.
type Kind string

const (
	KindInt    Kind = "int"
	KindString Kind = "string"
	KindBool   Kind = "boolean"
	KindToken  Kind = "token"
	KindList   Kind = "list"
)

// KindOf returns the kind of v. A nil value reports an empty kind.
func KindOf(v Value) Kind {
	switch v.(type) {
	case Int:
		return KindInt
	case Str:
		return KindString
	case Bool:
		return KindBool
	case Token:
		return KindToken
	case List:
		return KindList
	default:
		return ""
	}
}

// Equal reports deep equality of two values. Values of different kinds are
// never equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Token:
		bv, ok := b.(Token)
		return ok && av.ID == bv.ID && av.Type == bv.Type && av.Props.Equal(bv.Props)
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Equal reports whether two objects hold the same keys with equal values.
func (obj Object) Equal(other Object) bool {
	if len(obj) != len(other) {
		return false
	}
	for k, v := range obj {
		ov, ok := other[k]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of obj. Values are immutable so a shallow copy
// is enough for copy-on-write updates.
func (obj Object) Clone() Object {
	out := make(Object, len(obj)+1)
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// With returns a copy of obj with key set to v.
func (obj Object) With(key string, v Value) Object {
	out := obj.Clone()
	out[key] = v
	return out
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

// compareUTF16 orders strings by UTF-16 code units as RFC 8785 requires.
// Go's native string order is by UTF-8 bytes, which differs for code points
// above U+FFFF.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// FormatValue renders a value for diagnostics and error details.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Str:
		return string(val)
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	case Token:
		return "token:" + val.ID
	case List:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return "<nil>"
	}
}

// MarshalJSON encodes the object with sorted keys.
func (obj Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := MarshalValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object whose values must all be valid Values.
func (obj *Object) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*obj = make(Object, len(raw))
	for k, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("object key %q: %w", k, err)
		}
		(*obj)[k] = val
	}
	return nil
}

// MarshalJSON encodes the list element by element.
func (l List) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalValue(item)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a list of Values.
func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*l = make(List, len(raw))
	for i, v := range raw {
		val, err := UnmarshalValue(v)
		if err != nil {
			return fmt.Errorf("list[%d]: %w", i, err)
		}
		(*l)[i] = val
	}
	return nil
}

// MarshalValue encodes a Value as JSON. Tokens encode as objects.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Int:
		return json.Marshal(int64(val))
	case Str:
		return json.Marshal(string(val))
	case Bool:
		return json.Marshal(bool(val))
	case List:
		return val.MarshalJSON()
	case Token:
		return json.Marshal(val)
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// UnmarshalValue decodes JSON into a Value. Floats and null are rejected;
// objects decode as tokens.
func UnmarshalValue(data []byte) (Value, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return Str(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case 'n':
		return nil, fmt.Errorf("null is not a value")
	case '[':
		var l List
		if err := json.Unmarshal(data, &l); err != nil {
			return nil, err
		}
		return l, nil
	case '{':
		var tok Token
		if err := json.Unmarshal(data, &tok); err != nil {
			return nil, err
		}
		if tok.ID == "" {
			return nil, fmt.Errorf("object values must be tokens with an id")
		}
		return tok, nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed: %s", string(data))
		}
		return Int(i), nil
	}
}

// FromGo converts decoded JSON/YAML/CUE data into a Value. Maps with an "id"
// key become tokens.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a value")
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return Str(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		return Int(int64(val)), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not allowed: %v", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		i, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are not allowed: %s", val)
		}
		return Int(i), nil
	case []any:
		out := make(List, len(val))
		for i, item := range val {
			iv, err := FromGo(item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = iv
		}
		return out, nil
	case map[string]any:
		id, _ := val["id"].(string)
		if id == "" {
			return nil, fmt.Errorf("object values must be tokens with an id")
		}
		tok := Token{ID: id}
		tok.Type, _ = val["type"].(string)
		if props, ok := val["props"].(map[string]any); ok {
			obj, err := ObjectFromGo(props)
			if err != nil {
				return nil, fmt.Errorf("token %s props: %w", id, err)
			}
			tok.Props = obj
		}
		return tok, nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// ObjectFromGo converts a decoded map into an Object.
func ObjectFromGo(m map[string]any) (Object, error) {
	obj := make(Object, len(m))
	for k, v := range m {
		val, err := FromGo(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}
