package value

import (
	"math"
)

type binOp func(a, b int64) (int64, bool) // bool = overflowed

// Add implements CSML's `+` operator: numeric addition with Int/Float
// promotion, or string concatenation when either side is a non-numeric
// String (spec §4.1).
func Add(a, b Value) (Value, error) {
	if r, ok, err := tryNumeric(a, b, "+",
		func(x, y int64) (int64, bool) {
			s := x + y
			overflow := ((x ^ s) & (y ^ s)) < 0
			return s, overflow
		},
		func(x, y float64) float64 { return x + y }); ok {
		return r, err
	}
	if a.Kind == String || b.Kind == String {
		return NewString(a.String() + b.String()), nil
	}
	return Value{}, illegalOp("+", a.Kind, b.Kind)
}

// Sub implements `-`.
func Sub(a, b Value) (Value, error) {
	if r, ok, err := tryNumeric(a, b, "-",
		func(x, y int64) (int64, bool) {
			s := x - y
			overflow := (y < 0 && s < x) || (y > 0 && s > x)
			return s, overflow
		},
		func(x, y float64) float64 { return x - y }); ok {
		return r, err
	}
	return Value{}, illegalOp("-", a.Kind, b.Kind)
}

// Mul implements `*`.
func Mul(a, b Value) (Value, error) {
	if r, ok, err := tryNumeric(a, b, "*",
		func(x, y int64) (int64, bool) {
			if x == 0 || y == 0 {
				return 0, false
			}
			p := x * y
			overflow := p/y != x
			return p, overflow
		},
		func(x, y float64) float64 { return x * y }); ok {
		return r, err
	}
	return Value{}, illegalOp("*", a.Kind, b.Kind)
}

// Div implements `/`. Division by zero is always an error regardless of
// operand Kind.
func Div(a, b Value) (Value, error) {
	an, bn := a.numeric(), b.numeric()
	if !an.ok || !bn.ok {
		return Value{}, illegalOp("/", a.Kind, b.Kind)
	}
	if an.isFloat || bn.isFloat {
		if bn.asFloat() == 0 {
			return Value{}, errDivByZero("/")
		}
		return NewFloat(an.asFloat() / bn.asFloat()), nil
	}
	if bn.i == 0 {
		return Value{}, errDivByZero("/")
	}
	if bn.i == -1 && an.i == math.MinInt64 {
		return Value{}, errOverflow("/")
	}
	return NewInt(an.i / bn.i), nil
}

// Mod implements `%`. Float `%` uses IEEE remainder (math.Remainder), per
// spec §4.1.
func Mod(a, b Value) (Value, error) {
	an, bn := a.numeric(), b.numeric()
	if !an.ok || !bn.ok {
		return Value{}, illegalOp("%", a.Kind, b.Kind)
	}
	if an.isFloat || bn.isFloat {
		if bn.asFloat() == 0 {
			return Value{}, errDivByZero("%")
		}
		return NewFloat(math.Remainder(an.asFloat(), bn.asFloat())), nil
	}
	if bn.i == 0 {
		return Value{}, errDivByZero("%")
	}
	return NewInt(an.i % bn.i), nil
}

func tryNumeric(a, b Value, op string, intOp binOp, floatOp func(x, y float64) float64) (Value, bool, error) {
	an, bn := a.numeric(), b.numeric()
	if !an.ok || !bn.ok {
		return Value{}, false, nil
	}
	if an.isFloat || bn.isFloat {
		return NewFloat(floatOp(an.asFloat(), bn.asFloat())), true, nil
	}
	r, overflow := intOp(an.i, bn.i)
	if overflow {
		return Value{}, true, errOverflow(op)
	}
	return NewInt(r), true, nil
}
