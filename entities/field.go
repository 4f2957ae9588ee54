package entities

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

type fieldState uint8

const (
	fieldAbsent fieldState = iota
	fieldNull
	fieldString
	fieldNumber
	fieldBool
)

// Field is one raw payload value: absent, null, a string, a number or a bool.
type Field struct {
	state fieldState
	str   string
	num   float64
	b     bool
}

func Num(v float64) Field { return Field{state: fieldNumber, num: v} }
func Str(s string) Field  { return Field{state: fieldString, str: s} }
func Null() Field         { return Field{state: fieldNull} }
func Bool(v bool) Field   { return Field{state: fieldBool, b: v} }

func fieldFromAny(v any) (Field, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case string:
		return Str(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Str(t.String()), nil
		}
		return Num(f), nil
	case float64:
		return Num(t), nil
	}
	return Field{}, fmt.Errorf("unsupported payload value %T", v)
}

func (f Field) IsAbsent() bool { return f.state == fieldAbsent }

// IsEmpty reports whether the value carries no information: absent, null,
// blank, or one of the textual null markers exported by upstream tooling.
func (f Field) IsEmpty() bool {
	switch f.state {
	case fieldAbsent, fieldNull:
		return true
	case fieldString:
		switch strings.ToLower(strings.TrimSpace(f.str)) {
		case "", "nan", "null", "none":
			return true
		}
	case fieldNumber:
		return math.IsNaN(f.num)
	}
	return false
}

// Float returns the numeric value, parsing strings. ok is false for empty,
// non-numeric or non-finite values.
func (f Field) Float() (float64, bool) {
	var v float64
	switch f.state {
	case fieldNumber:
		v = f.num
	case fieldString:
		if f.IsEmpty() {
			return 0, false
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(f.str), 64)
		if err != nil {
			return 0, false
		}
		v = p
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Text returns the value as a trimmed string.
func (f Field) Text() (string, bool) {
	if f.IsEmpty() {
		return "", false
	}
	switch f.state {
	case fieldString:
		return strings.TrimSpace(f.str), true
	case fieldNumber:
		return strconv.FormatFloat(f.num, 'f', -1, 64), true
	case fieldBool:
		return strconv.FormatBool(f.b), true
	}
	return "", false
}

func (f Field) MarshalJSON() ([]byte, error) {
	switch f.state {
	case fieldString:
		return json.Marshal(f.str)
	case fieldNumber:
		if math.IsNaN(f.num) || math.IsInf(f.num, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(f.num)
	case fieldBool:
		return json.Marshal(f.b)
	}
	return []byte("null"), nil
}

// Payload is the flattened key/value body of an envelope. Nested objects are
// flattened with dotted keys and arrays with [i] suffixes, so both
// "object.co2" and {"object":{"co2":...}} land on the same key.
type Payload map[string]Field

func (p *Payload) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("payload must be a JSON object: %w", err)
	}
	out := make(Payload, len(raw))
	if err := flatten(out, "", raw); err != nil {
		return err
	}
	*p = out
	return nil
}

func flatten(out Payload, prefix string, v any) error {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flatten(out, key, child); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range t {
			if err := flatten(out, fmt.Sprintf("%s[%d]", prefix, i), child); err != nil {
				return err
			}
		}
	default:
		f, err := fieldFromAny(t)
		if err != nil {
			return fmt.Errorf("key %q: %w", prefix, err)
		}
		out[prefix] = f
	}
	return nil
}

// Get returns the value under the first alias that is present.
func (p Payload) Get(aliases ...string) Field {
	for _, a := range aliases {
		if f, ok := p[a]; ok && !f.IsAbsent() {
			return f
		}
	}
	return Field{}
}

// First is like Get but skips aliases whose value is empty.
func (p Payload) First(aliases ...string) Field {
	for _, a := range aliases {
		if f, ok := p[a]; ok && !f.IsEmpty() {
			return f
		}
	}
	return p.Get(aliases...)
}

// IsEmpty reports whether every value in the payload is empty.
func (p Payload) IsEmpty() bool {
	for _, f := range p {
		if !f.IsEmpty() {
			return false
		}
	}
	return true
}

// Keys returns the sorted key set.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
