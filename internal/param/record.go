package param

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Record maps option names to scalar values (float64, string, bool) or lists
// of scalars. Numbers are always stored as float64 so that records decoded
// from YAML, JSON and msgpack compare equal.
type Record map[string]any

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case Record:
		return t.Clone()
	case map[string]any:
		return Record(t).Clone()
	default:
		return v
	}
}

// Merge returns base overlaid with over. Neither input is modified.
func Merge(base, over Record) Record {
	out := make(Record, len(base)+len(over))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, v := range over {
		out[k] = cloneValue(v)
	}
	return out
}

// Equal reports whether a and b hold the same keys and values.
func Equal(a, b Record) bool {
	if len(a) != len(b) {
		return false
	}
	return Canonical(a) == Canonical(b)
}

// Keys returns the record keys in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonical renders r as a stable string: sorted keys, JSON-encoded values.
// Two records have the same canonical form iff they are equal.
func Canonical(r Record) string {
	var sb strings.Builder
	for i, k := range r.Keys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		data, err := json.Marshal(r[k])
		if err != nil {
			fmt.Fprintf(&sb, "%v", r[k])
			continue
		}
		sb.Write(data)
	}
	return sb.String()
}

// Normalize converts every numeric value in r to float64 and nested maps to
// Records, in place. It returns r for chaining.
func (r Record) Normalize() Record {
	for k, v := range r {
		r[k] = NormalizeValue(v)
	}
	return r
}

// NormalizeValue converts integer and float32 values to float64 and
// recurses into lists and maps.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case []any:
		for i := range t {
			t[i] = NormalizeValue(t[i])
		}
		return t
	case map[string]any:
		return Record(t).Normalize()
	case Record:
		return t.Normalize()
	default:
		return v
	}
}

// Float returns the value at key as a float64.
func (r Record) Float(key string) (float64, bool) {
	f, ok := NormalizeValue(r[key]).(float64)
	return f, ok
}

// Int returns the value at key truncated to an int, or def when absent or
// not numeric.
func (r Record) Int(key string, def int) int {
	if f, ok := r.Float(key); ok {
		return int(f)
	}
	return def
}
