package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// badKey is the key used for a value that was not preceded by a string key,
// following the log/slog convention.
const badKey = "!BADKEY"

// Field is one key/value pair of event context.
type Field struct {
	Key   string
	Value any
}

// Fields is an insertion-ordered set of context values. The zero value is
// empty and ready to use. Fields is never modified in place: With and Merge
// return new values, so a Fields stored in an Event stays unchanged.
type Fields struct {
	list []Field
}

// F builds Fields from alternating key/value arguments, slog style.
// A Field argument is taken as-is. A repeated key keeps its first position and
// takes the last value.
func F(kv ...any) Fields {
	var f Fields
	return f.with(kv)
}

// FromMap builds Fields from a map. Keys are sorted since maps carry no order.
func FromMap(m map[string]any) Fields {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]Field, 0, len(keys))
	for _, k := range keys {
		list = append(list, Field{Key: k, Value: m[k]})
	}
	return Fields{list: list}
}

// With returns a copy of f extended with kv.
func (f Fields) With(kv ...any) Fields {
	return f.with(kv)
}

// Merge returns a copy of f with every field of other applied after it.
func (f Fields) Merge(other Fields) Fields {
	out := f.clone(len(other.list))
	for _, fld := range other.list {
		out.set(fld.Key, fld.Value)
	}
	return out
}

// Len returns the number of fields.
func (f Fields) Len() int { return len(f.list) }

// Get returns the value stored under key.
func (f Fields) Get(key string) (any, bool) {
	for _, fld := range f.list {
		if fld.Key == key {
			return fld.Value, true
		}
	}
	return nil, false
}

// Keys returns the keys in insertion order.
func (f Fields) Keys() []string {
	keys := make([]string, len(f.list))
	for i, fld := range f.list {
		keys[i] = fld.Key
	}
	return keys
}

// All returns a copy of the fields in insertion order.
func (f Fields) All() []Field {
	out := make([]Field, len(f.list))
	copy(out, f.list)
	return out
}

// Map returns the fields as an unordered map.
func (f Fields) Map() map[string]any {
	m := make(map[string]any, len(f.list))
	for _, fld := range f.list {
		m[fld.Key] = fld.Value
	}
	return m
}

// MarshalJSON encodes the fields as a JSON object preserving key order.
// Values that cannot be encoded are rendered with fmt.
func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fld := range f.list {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(fld.Key)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(fld.Value)
		if err != nil {
			val, _ = json.Marshal(fmt.Sprint(fld.Value))
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f Fields) with(kv []any) Fields {
	out := f.clone(len(kv) / 2)
	for i := 0; i < len(kv); i++ {
		switch k := kv[i].(type) {
		case Field:
			out.set(k.Key, k.Value)
		case string:
			if i+1 < len(kv) {
				out.set(k, kv[i+1])
				i++
			} else {
				out.set(badKey, k)
			}
		default:
			out.set(badKey, k)
		}
	}
	return out
}

func (f Fields) clone(extra int) Fields {
	list := make([]Field, len(f.list), len(f.list)+extra)
	copy(list, f.list)
	return Fields{list: list}
}

func (f *Fields) set(key string, value any) {
	for i := range f.list {
		if f.list[i].Key == key {
			f.list[i].Value = value
			return
		}
	}
	f.list = append(f.list, Field{Key: key, Value: value})
}
