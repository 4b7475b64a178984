package value

// Equal implements CSML's structural equality with the one numeric
// promotion rule from spec §4.1: if either side is a String that parses
// as a number, compare numerically against the other side; otherwise
// compare lexicographically for strings, structurally for collections.
// Int/Float compare by promoting Int to float64.
func (a Value) Equal(b Value) bool {
	an, bn := a.numeric(), b.numeric()
	if (a.Kind == String || b.Kind == String) && an.ok && bn.ok {
		return an.asFloat() == bn.asFloat()
	}
	if (a.Kind == Int || a.Kind == Float) && (b.Kind == Int || b.Kind == Float) {
		return an.asFloat() == bn.asFloat()
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case Null:
		return true
	case Bool:
		return a.b == b.b
	case Int:
		return a.i == b.i
	case Float:
		return a.f == b.f
	case String:
		return a.s == b.s
	case Array:
		if len(a.arr) != len(b.arr) {
			return false
		}
		for i := range a.arr {
			if !a.arr[i].Equal(b.arr[i]) {
				return false
			}
		}
		return true
	case Object:
		ak, bk := a.ObjectKeys(), b.ObjectKeys()
		if len(ak) != len(bk) {
			return false
		}
		for _, k := range ak {
			av, _ := a.ObjectGet(k)
			bv, ok := b.ObjectGet(k)
			if !ok || !av.Equal(bv) {
				return false
			}
		}
		return true
	case Closure:
		return a.clo == b.clo
	default:
		return false
	}
}
