package value

// Access marks whether a method may mutate its receiver binding. pkg/eval's
// evalMethodCall consults MethodAccess to reject Write calls on identifiers
// resolved from a constant (metadata) binding before dispatch reaches Call.
type Access int

const (
	Read Access = iota
	Write
)

// Method is one entry in a Kind's dispatch table.
type Method struct {
	Access Access
	Call   func(recv *Value, args []Value) (Value, error)
}

type table map[string]Method

// tables holds one dispatch table per Kind, registered by each methods_*.go
// file's init() and merged with the common table below.
var tables = map[Kind]table{}

func register(k Kind, t table) {
	merged := make(table, len(t)+len(commonMethods))
	for name, m := range commonMethods {
		merged[name] = m
	}
	for name, m := range t {
		merged[name] = m
	}
	tables[k] = merged
}

// Call looks up name in recv.Kind's dispatch table and invokes it. Returns
// an error if the method doesn't exist for this Kind (spec §4.1: "not-found
// is an error").
func (v Value) Call(name string, args []Value) (Value, error) {
	t, ok := tables[v.Kind]
	if !ok {
		return Value{}, errMethodNotFound(v.Kind, name)
	}
	m, ok := t[name]
	if !ok {
		return Value{}, errMethodNotFound(v.Kind, name)
	}
	return m.Call(&v, args)
}

// MethodAccess reports the access right of name on Kind k, for callers
// (pkg/eval) that need to reject Write calls on constant bindings before
// dispatch.
func MethodAccess(k Kind, name string) (Access, bool) {
	t, ok := tables[k]
	if !ok {
		return Read, false
	}
	m, ok := t[name]
	return m.Access, ok
}

var commonMethods = table{
	"type_of": {Read, func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("type_of", args, 0); err != nil {
			return Value{}, err
		}
		return NewString(recv.Kind.String()), nil
	}},
	"is_number": {Read, func(recv *Value, args []Value) (Value, error) {
		return NewBool(recv.Kind == Int || recv.Kind == Float), nil
	}},
	"is_int": {Read, func(recv *Value, args []Value) (Value, error) {
		return NewBool(recv.Kind == Int), nil
	}},
	"is_float": {Read, func(recv *Value, args []Value) (Value, error) {
		return NewBool(recv.Kind == Float), nil
	}},
	"is_error": {Read, func(recv *Value, args []Value) (Value, error) {
		return NewBool(recv.ContentType == "error"), nil
	}},
	"get_info": {Read, func(recv *Value, args []Value) (Value, error) {
		fields := map[string]Value{
			"type":         NewString(recv.Kind.String()),
			"content_type": NewString(recv.ContentType),
			"secure":       NewBool(recv.Secure),
		}
		return NewObject(fields, []string{"type", "content_type", "secure"}), nil
	}},
	"to_string": {Read, func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("to_string", args, 0); err != nil {
			return Value{}, err
		}
		return NewString(recv.String()), nil
	}},
}

func checkArity(name string, args []Value, want int) error {
	if len(args) != want {
		return errArity(name, want, len(args))
	}
	return nil
}

func checkArityRange(name string, args []Value, min, max int) error {
	if len(args) < min || len(args) > max {
		return &OpError{Op: name, Message: "unexpected number of arguments"}
	}
	return nil
}
