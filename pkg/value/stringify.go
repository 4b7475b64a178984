package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const redactedMarker = "[REDACTED]"

// String renders a Value the way CSML's `to_string` does: scalars render
// plainly, Array/Object render as their JSON form, Closure renders as a
// fixed placeholder, Null as "null".
func (v Value) String() string {
	switch v.Kind {
	case Null:
		return "null"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case String:
		return v.s
	case Array, Object:
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	case Closure:
		return "[closure]"
	default:
		return ""
	}
}

// Redacted renders v for logging: Secure values never appear in the clear,
// mirroring the teacher's masking posture (return a safe placeholder, never
// panic, never fail the log call). See pkg/masking/masker.go for the
// defensive convention this follows.
func (v Value) Redacted() string {
	if v.Secure {
		return redactedMarker
	}
	switch v.Kind {
	case Array:
		parts := make([]string, len(v.arr))
		for i, item := range v.arr {
			parts[i] = item.Redacted()
		}
		return "[" + strings.Join(parts, ",") + "]"
	case Object:
		keys := v.ObjectKeys()
		parts := make([]string, len(keys))
		for i, k := range keys {
			item, _ := v.ObjectGet(k)
			parts[i] = fmt.Sprintf("%q:%s", k, item.Redacted())
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return v.String()
	}
}

// MarshalJSON renders a Value as JSON, used both for `to_json`/to_string on
// collections and for persisting message payloads.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(v.b)
	case Int:
		return json.Marshal(v.i)
	case Float:
		return json.Marshal(v.f)
	case String:
		return json.Marshal(v.s)
	case Array:
		parts := make([]json.RawMessage, len(v.arr))
		for i, item := range v.arr {
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			parts[i] = b
		}
		return json.Marshal(parts)
	case Object:
		keys := v.ObjectKeys()
		sort.Strings(keys) // stable output; key order is preserved separately for keys()/values()
		m := make(map[string]json.RawMessage, len(keys))
		for _, k := range keys {
			item, _ := v.ObjectGet(k)
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			m[k] = b
		}
		return json.Marshal(m)
	case Closure:
		return nil, &OpError{Op: "to_json", Message: "closures are not JSON-serializable"}
	default:
		return []byte("null"), nil
	}
}

// FromJSON parses arbitrary JSON text into a Value tree (used by
// String.from_json and by the driver when loading persisted payloads).
func FromJSON(data []byte) (Value, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, err
	}
	return fromAny(raw), nil
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return NewNull()
	case bool:
		return NewBool(t)
	case float64:
		if t == float64(int64(t)) {
			return NewInt(int64(t))
		}
		return NewFloat(t)
	case string:
		return NewString(t)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = fromAny(item)
		}
		return NewArray(items)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make(map[string]Value, len(t))
		for _, k := range keys {
			fields[k] = fromAny(t[k])
		}
		return NewObject(fields, keys)
	default:
		return NewNull()
	}
}
