// Package jsonvalue decodes arbitrary JSON documents into a small closed set of
// variants (Scalar, Object and Array) so that consumers can switch exhaustively
// over the shape of a value instead of probing map[string]any at runtime.
package jsonvalue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrNotAnObject = fmt.Errorf("not a json object")

// Value is implemented by Scalar, Object and Array only.
type Value interface {
	json.Marshaler
	isValue()
}

// Scalar holds a string, a json.Number, a bool or nil
type Scalar struct {
	v any
}

func String(s string) Scalar      { return Scalar{v: s} }
func Number(n json.Number) Scalar { return Scalar{v: n} }
func Bool(b bool) Scalar          { return Scalar{v: b} }
func Null() Scalar                { return Scalar{} }

func (Scalar) isValue() {}

func (s Scalar) IsNull() bool {
	return s.v == nil
}

// String renders the scalar the way it would be written as a query parameter
// or an identifier. Null renders as the empty string.
func (s Scalar) String() string {
	switch v := s.v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.v)
}

type Member struct {
	Key   string
	Value Value
}

// Object keeps its members in the order they appeared in the source document
type Object struct {
	members []Member
}

func NewObject(members ...Member) Object {
	return Object{members: members}
}

func (Object) isValue() {}

func (o Object) Members() []Member {
	return o.members
}

func (o Object) Len() int {
	return len(o.members)
}

func (o Object) Get(key string) (Value, bool) {
	for _, m := range o.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return nil, false
}

// GetString returns the string form of a scalar member, or "" if the member is
// missing or not a scalar.
func (o Object) GetString(key string) string {
	v, ok := o.Get(key)
	if !ok {
		return ""
	}
	if s, ok := v.(Scalar); ok {
		return s.String()
	}
	return ""
}

func (o Object) GetObject(key string) (Object, bool) {
	v, ok := o.Get(key)
	if !ok {
		return Object{}, false
	}
	obj, ok := v.(Object)
	return obj, ok
}

func (o Object) GetArray(key string) (Array, bool) {
	v, ok := o.Get(key)
	if !ok {
		return nil, false
	}
	arr, ok := v.(Array)
	return arr, ok
}

// Without returns a copy of the object with the named member removed
func (o Object) Without(key string) Object {
	members := make([]Member, 0, len(o.members))
	for _, m := range o.members {
		if m.Key != key {
			members = append(members, m)
		}
	}
	return Object{members: members}
}

func (o Object) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')

	for idx, m := range o.members {
		if idx > 0 {
			buf.WriteByte(',')
		}

		key, err := json.Marshal(m.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		if m.Value == nil {
			buf.WriteString("null")
			continue
		}

		value, err := m.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (o *Object) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	v, err := Parse(data)
	if err != nil {
		return err
	}

	obj, ok := v.(Object)
	if !ok {
		return ErrNotAnObject
	}

	*o = obj
	return nil
}

type Array []Value

func (Array) isValue() {}

func (a Array) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('[')

	for idx, v := range a {
		if idx > 0 {
			buf.WriteByte(',')
		}

		if v == nil {
			buf.WriteString("null")
			continue
		}

		b, err := v.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (a *Array) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}

	arr, ok := v.(Array)
	if !ok {
		return fmt.Errorf("not a json array")
	}

	*a = arr
	return nil
}

// Parse decodes a complete JSON document. Trailing data after the first value
// is an error.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decode(dec)
	if err != nil {
		return nil, err
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after json value")
	}

	return v, nil
}

func ParseObject(data []byte) (Object, error) {
	v, err := Parse(data)
	if err != nil {
		return Object{}, err
	}

	obj, ok := v.(Object)
	if !ok {
		return Object{}, ErrNotAnObject
	}

	return obj, nil
}

func decode(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("unexpected delimiter %s", t)
		}
	case string:
		return String(t), nil
	case json.Number:
		return Number(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func decodeObject(dec *json.Decoder) (Object, error) {
	obj := Object{members: []Member{}}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Object{}, err
		}

		key, ok := tok.(string)
		if !ok {
			return Object{}, fmt.Errorf("object key is not a string: %v", tok)
		}

		value, err := decode(dec)
		if err != nil {
			return Object{}, err
		}

		obj.members = append(obj.members, Member{Key: key, Value: value})
	}

	// consume the closing brace
	if _, err := dec.Token(); err != nil {
		return Object{}, err
	}

	return obj, nil
}

func decodeArray(dec *json.Decoder) (Array, error) {
	arr := Array{}

	for dec.More() {
		v, err := decode(dec)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	return arr, nil
}

// TrailingNumericSegment returns the last path segment of a resource locator
// such as "/api/v1/route/42/" that consists only of digits.
func TrailingNumericSegment(locator string) (string, bool) {
	segments := strings.Split(strings.SplitN(locator, "?", 2)[0], "/")

	for idx := len(segments) - 1; idx >= 0; idx-- {
		s := segments[idx]
		if s == "" {
			continue
		}
		if isDigits(s) {
			return s, true
		}
	}

	return "", false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
