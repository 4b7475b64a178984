package value

import "fmt"

// OpError is returned for arithmetic/comparison/dispatch failures inside
// the value model. It carries enough context for pkg/eval to turn it into
// an Interpret-kind error (pkg/cerr) without re-deriving the message.
type OpError struct {
	Op      string
	Message string
}

func (e *OpError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func illegalOp(op string, a, b Kind) error {
	return &OpError{Op: op, Message: fmt.Sprintf("illegal operation between %s and %s", a, b)}
}

func errDivByZero(op string) error {
	return &OpError{Op: op, Message: "division by zero"}
}

func errOverflow(op string) error {
	return &OpError{Op: op, Message: "overflowing operation"}
}

func errMethodNotFound(kind Kind, name string) error {
	return &OpError{Op: name, Message: fmt.Sprintf("unknown method %q on %s", name, kind)}
}

func errArity(name string, want, got int) error {
	return &OpError{Op: name, Message: fmt.Sprintf("%s expects %d argument(s), got %d", name, want, got)}
}

func errWriteOnConstant(name string) error {
	return &OpError{Op: name, Message: fmt.Sprintf("cannot call write method %q on a constant binding", name)}
}
