package eval

import "github.com/csml-run/csml-engine/pkg/value"

// EventKind tags the events the evaluator emits to its driver over a
// channel (spec.md §4.3 "Statements"): Message, Remember, Forget, Hold,
// Next, Log, Error.
type EventKind int

const (
	EventMessage EventKind = iota
	EventRemember
	EventForget
	EventHold
	EventNext
	EventLog
	EventError
)

// ForgetMode mirrors ast.ForgetMode without importing pkg/ast here, keeping
// pkg/eval's public event surface independent of the AST package.
type ForgetMode int

const (
	ForgetOne ForgetMode = iota
	ForgetAll
	ForgetMany
)

// Next describes a `goto` transition: either an internal step/flow change
// or a multibot switch request (spec.md §4.4 "Next{flow,step,bot}").
type Next struct {
	Flow   string // "" = stay in current flow
	Step   string // "" = stay at current step (only meaningful with Bot == "")
	Bot    string // non-empty = bot switch requested
	HasBot bool
}

// Log is a structured trace line the driver forwards to its log sink
// (spec.md §4.4 debug trace supplement).
type Log struct {
	Flow    string
	Step    string
	Message string
	Level   string
}

// Event is one item the evaluator pushes onto its event channel. Only the
// fields relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind EventKind

	// EventMessage / EventError
	Message value.Value

	// EventRemember
	RememberKey   string
	RememberValue value.Value

	// EventForget
	ForgetMode ForgetMode
	ForgetKeys []string

	// EventHold
	HoldStepVars map[string]value.Value
	HoldHash     string
	HoldPrevious string // previous bot id/version marker, if any

	// EventNext
	Next Next

	// EventLog
	Log Log
}
