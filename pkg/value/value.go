// Package value implements the CSML dynamic value system: a closed sum
// type of primitives, each carrying equality, ordering, arithmetic,
// boolean coercion, string/JSON rendering, and a method-dispatch table.
package value

import "fmt"

// Kind tags the variant held by a Value.
type Kind int

const (
	Null Kind = iota
	Bool
	Int
	Float
	String
	Array
	Object
	Closure
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	case Closure:
		return "closure"
	default:
		return "unknown"
	}
}

// Interval marks the source span a Value (or the expression producing it)
// came from. Zero value means "synthetic" (no source position).
type Interval struct {
	Line, Column int
	Offset       int
}

// ClosureBody is implemented by pkg/eval to avoid an import cycle between
// pkg/value and the AST/evaluator packages. Evaluator supplies the concrete
// type; Value only ever stores and forwards it.
type ClosureBody interface {
	Arity() int
	ParamNames() []string
}

// Value is the tagged sum type every CSML expression evaluates to.
type Value struct {
	Kind Kind

	b   bool
	i   int64
	f   float64
	s   string
	arr []Value
	obj *object
	clo *ClosureValue

	Interval Interval

	// Secure taints values derived from secure inputs (e.g. a hold marked
	// secure, or a secure event payload). Secure values must never be
	// logged in the clear.
	Secure bool

	// ContentType drives rendering when a Value is emitted as an outbound
	// message ("text", "image", "error", or a component's own tag).
	ContentType string

	// AdditionalInfo is attached only to carry error context; it has no
	// effect on equality, ordering, or arithmetic.
	AdditionalInfo map[string]any
}

// ClosureValue is the runtime representation of a declared function or an
// anonymous closure: parameter names, a reference to its body (owned by
// pkg/eval), and a captured-environment snapshot.
type ClosureValue struct {
	Params  []string
	Body    ClosureBody
	Capture map[string]Value
}

// object is an insertion-ordered string-keyed map, used so Object.keys()/
// values() are deterministic (ordinary Go maps are not).
type object struct {
	keys   []string
	values map[string]Value
}

func newObject() *object {
	return &object{values: make(map[string]Value)}
}

func (o *object) clone() *object {
	n := &object{
		keys:   append([]string(nil), o.keys...),
		values: make(map[string]Value, len(o.values)),
	}
	for k, v := range o.values {
		n.values[k] = v
	}
	return n
}

func (o *object) get(key string) (Value, bool) {
	v, ok := o.values[key]
	return v, ok
}

func (o *object) set(key string, v Value) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *object) remove(key string) bool {
	if _, ok := o.values[key]; !ok {
		return false
	}
	delete(o.values, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Constructors.

func NewNull() Value { return Value{Kind: Null} }

func NewBool(b bool) Value { return Value{Kind: Bool, b: b} }

func NewInt(i int64) Value { return Value{Kind: Int, i: i} }

func NewFloat(f float64) Value { return Value{Kind: Float, f: f} }

func NewString(s string) Value { return Value{Kind: String, s: s, ContentType: "text"} }

func NewArray(items []Value) Value { return Value{Kind: Array, arr: items} }

func NewObject(fields map[string]Value, order []string) Value {
	o := newObject()
	if order != nil {
		for _, k := range order {
			if v, ok := fields[k]; ok {
				o.set(k, v)
			}
		}
	} else {
		for k, v := range fields {
			o.set(k, v)
		}
	}
	return Value{Kind: Object, obj: o}
}

func NewEmptyObject() Value { return Value{Kind: Object, obj: newObject()} }

func NewClosure(c *ClosureValue) Value { return Value{Kind: Closure, clo: c} }

// Accessors. Each returns its field as stored, without checking Kind, so
// against the wrong Kind it yields that field's zero value; evaluator code
// checks Kind before calling these.

func (v Value) AsBool() bool { return v.b }

func (v Value) AsInt() int64 { return v.i }

func (v Value) AsFloat() float64 { return v.f }

func (v Value) AsString() string { return v.s }

func (v Value) AsArray() []Value { return v.arr }

func (v Value) AsClosure() *ClosureValue { return v.clo }

func (v Value) ObjectKeys() []string {
	if v.obj == nil {
		return nil
	}
	return append([]string(nil), v.obj.keys...)
}

func (v Value) ObjectGet(key string) (Value, bool) {
	if v.obj == nil {
		return Value{}, false
	}
	return v.obj.get(key)
}

func (v Value) ObjectLen() int {
	if v.obj == nil {
		return 0
	}
	return len(v.obj.keys)
}

// WithObjectSet returns a copy of v (which must be Kind == Object) with key
// set to val. Values are immutable from the evaluator's point of view;
// mutation methods (insert, push, ...) build a new Value via this helper.
func (v Value) WithObjectSet(key string, val Value) Value {
	o := v.obj
	if o == nil {
		o = newObject()
	} else {
		o = o.clone()
	}
	o.set(key, val)
	v.obj = o
	return v
}

func (v Value) WithObjectRemove(key string) (Value, bool) {
	if v.obj == nil {
		return v, false
	}
	o := v.obj.clone()
	removed := o.remove(key)
	v.obj = o
	return v, removed
}

func (v Value) WithArray(items []Value) Value {
	v.arr = items
	return v
}

// Clone returns a deep-enough copy: Array/Object are copied so that
// mutation methods never alias a caller's slice/map.
func (v Value) Clone() Value {
	switch v.Kind {
	case Array:
		cp := make([]Value, len(v.arr))
		for i, item := range v.arr {
			cp[i] = item.Clone()
		}
		v.arr = cp
	case Object:
		if v.obj != nil {
			v.obj = v.obj.clone()
		}
	}
	return v
}

func (v Value) TypeName() string { return v.Kind.String() }

func (v Value) GoString() string {
	return fmt.Sprintf("Value{Kind:%s, %s}", v.Kind, v.String())
}
