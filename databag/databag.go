// Package databag provides the ordered key/value parameter container used
// for client metadata, token parameters and token metadata throughout the
// authorization server.
package databag

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// DataBag is an ordered string-keyed map of JSON-like values (scalars,
// arrays, nested objects). Keys keep their insertion order, which is
// preserved across JSON round trips.
//
// A DataBag is mutable while it is being built (Set). Once handed to a
// rule or extension chain it must be treated as a snapshot: chains derive
// new bags via With/Without instead of mutating the one they received.
type DataBag struct {
	keys   []string
	values map[string]any
}

// New returns an empty DataBag.
func New() *DataBag {
	return &DataBag{values: make(map[string]any)}
}

// FromMap builds a DataBag from a plain map. Key order follows the order
// of the keys argument; keys absent from the map are skipped.
func FromMap(values map[string]any, keys ...string) *DataBag {
	bag := New()
	for _, k := range keys {
		if v, ok := values[k]; ok {
			bag.Set(k, v)
		}
	}
	return bag
}

// Has reports whether the key is present.
func (b *DataBag) Has(key string) bool {
	if b == nil {
		return false
	}
	_, ok := b.values[key]
	return ok
}

// Get returns the value for key, or nil when absent.
func (b *DataBag) Get(key string) any {
	if b == nil {
		return nil
	}
	return b.values[key]
}

// GetString returns the value for key as a string, or "" when the key is
// absent or holds a non-string value.
func (b *DataBag) GetString(key string) string {
	s, _ := b.Get(key).(string)
	return s
}

// GetStringSlice returns the value for key as a []string. Both []string
// and []any-of-strings (the shape produced by JSON unmarshalling) are
// accepted.
func (b *DataBag) GetStringSlice(key string) []string {
	switch v := b.Get(key).(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// GetInt64 returns the value for key as an int64, handling the float64
// shape produced by JSON unmarshalling. Returns 0 when absent.
func (b *DataBag) GetInt64(key string) int64 {
	switch v := b.Get(key).(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Set stores a value, appending the key to the order if it is new.
func (b *DataBag) Set(key string, value any) {
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = value
}

// With returns a copy of the bag with key set. The receiver is unchanged.
func (b *DataBag) With(key string, value any) *DataBag {
	out := b.Copy()
	out.Set(key, value)
	return out
}

// Without returns a copy of the bag with key removed. The receiver is
// unchanged.
func (b *DataBag) Without(key string) *DataBag {
	out := New()
	for _, k := range b.Keys() {
		if k == key {
			continue
		}
		out.Set(k, b.values[k])
	}
	return out
}

// Copy returns a shallow copy preserving key order.
func (b *DataBag) Copy() *DataBag {
	out := New()
	if b == nil {
		return out
	}
	for _, k := range b.keys {
		out.Set(k, b.values[k])
	}
	return out
}

// Merge returns a copy of the bag with every entry of other applied on
// top, keeping the receiver's order for keys present in both.
func (b *DataBag) Merge(other *DataBag) *DataBag {
	out := b.Copy()
	if other == nil {
		return out
	}
	for _, k := range other.keys {
		out.Set(k, other.values[k])
	}
	return out
}

// Keys returns the keys in insertion order.
func (b *DataBag) Keys() []string {
	if b == nil {
		return nil
	}
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// Len returns the number of entries.
func (b *DataBag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// MarshalJSON encodes the bag as a JSON object in insertion order.
func (b *DataBag) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range b.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return nil, errors.Wrap(err, "[DataBag.MarshalJSON] key")
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valueJSON, err := json.Marshal(b.values[k])
		if err != nil {
			return nil, errors.Wrapf(err, "[DataBag.MarshalJSON] value for %q", k)
		}
		buf.Write(valueJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the document's key order.
func (b *DataBag) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "[DataBag.UnmarshalJSON] read open brace")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("[DataBag.UnmarshalJSON] expected JSON object")
	}

	b.keys = nil
	b.values = make(map[string]any)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "[DataBag.UnmarshalJSON] read key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return errors.New("[DataBag.UnmarshalJSON] non-string key")
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return errors.Wrapf(err, "[DataBag.UnmarshalJSON] value for %q", key)
		}
		b.Set(key, normalize(value))
	}
	// Consume the closing brace
	if _, err := dec.Token(); err != nil {
		return errors.Wrap(err, "[DataBag.UnmarshalJSON] read close brace")
	}
	return nil
}

// normalize converts json.Number values into int64 or float64 so callers
// see the same shapes whether the bag was built in code or decoded.
func normalize(value any) any {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	case map[string]any:
		for k := range v {
			v[k] = normalize(v[k])
		}
		return v
	}
	return value
}
