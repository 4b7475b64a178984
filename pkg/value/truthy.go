package value

// Truthy implements CSML's boolean coercion rule (spec §4.1):
//
//	Null    -> false
//	Bool    -> itself
//	Int     -> value > 0
//	Float   -> value > 0
//	String  -> true, INCLUDING the empty string
//	Array   -> true
//	Object  -> true
//	Closure -> false
func (v Value) Truthy() bool {
	switch v.Kind {
	case Null:
		return false
	case Bool:
		return v.b
	case Int:
		return v.i > 0
	case Float:
		return v.f > 0
	case String:
		// Deviation preserved from the original engine: "" is truthy.
		// See DESIGN.md Open Question #1.
		return true
	case Array, Object:
		return true
	case Closure:
		return false
	default:
		return false
	}
}
