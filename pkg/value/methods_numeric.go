package value

import "math"

func init() {
	register(Int, numericTable)
	register(Float, numericTable)
}

var numericTable = table{
	"abs":      {Read, unaryNumeric(math.Abs)},
	"cos":      {Read, unaryNumeric(math.Cos)},
	"sin":      {Read, unaryNumeric(math.Sin)},
	"tan":      {Read, unaryNumeric(math.Tan)},
	"ceil":     {Read, unaryNumericToInt(math.Ceil)},
	"floor":    {Read, unaryNumericToInt(math.Floor)},
	"round":    {Read, unaryNumericToInt(math.Round)},
	"sqrt":     {Read, unaryNumeric(math.Sqrt)},
	"pow":      {Read, binaryNumeric(math.Pow)},
	"to_int":   {Read, toInt},
	"to_float": {Read, toFloat},
}

func unaryNumeric(f func(float64) float64) func(recv *Value, args []Value) (Value, error) {
	return func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("", args, 0); err != nil {
			return Value{}, err
		}
		n := recv.numeric()
		if !n.ok {
			return Value{}, illegalOp("numeric method", recv.Kind, recv.Kind)
		}
		return NewFloat(f(n.asFloat())), nil
	}
}

func unaryNumericToInt(f func(float64) float64) func(recv *Value, args []Value) (Value, error) {
	return func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("", args, 0); err != nil {
			return Value{}, err
		}
		n := recv.numeric()
		if !n.ok {
			return Value{}, illegalOp("numeric method", recv.Kind, recv.Kind)
		}
		if !n.isFloat {
			return NewInt(n.i), nil
		}
		return NewInt(int64(f(n.f))), nil
	}
}

func binaryNumeric(f func(x, y float64) float64) func(recv *Value, args []Value) (Value, error) {
	return func(recv *Value, args []Value) (Value, error) {
		if err := checkArity("pow", args, 1); err != nil {
			return Value{}, err
		}
		n := recv.numeric()
		m := args[0].numeric()
		if !n.ok || !m.ok {
			return Value{}, illegalOp("pow", recv.Kind, args[0].Kind)
		}
		return NewFloat(f(n.asFloat(), m.asFloat())), nil
	}
}

func toInt(recv *Value, args []Value) (Value, error) {
	if err := checkArity("to_int", args, 0); err != nil {
		return Value{}, err
	}
	n := recv.numeric()
	if !n.ok {
		return Value{}, &OpError{Op: "to_int", Message: "value does not parse as a number"}
	}
	if n.isFloat {
		return NewInt(int64(n.f)), nil
	}
	return NewInt(n.i), nil
}

func toFloat(recv *Value, args []Value) (Value, error) {
	if err := checkArity("to_float", args, 0); err != nil {
		return Value{}, err
	}
	n := recv.numeric()
	if !n.ok {
		return Value{}, &OpError{Op: "to_float", Message: "value does not parse as a number"}
	}
	return NewFloat(n.asFloat()), nil
}
