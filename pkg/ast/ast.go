// Package ast defines the CSML abstract syntax tree: flows, steps, and
// expressions produced by pkg/parser and walked by pkg/eval.
package ast

import "github.com/csml-run/csml-engine/pkg/value"

// Interval is re-exported from pkg/value so every node and the values it
// produces share one source-position type.
type Interval = value.Interval

// Node is implemented by every AST node so diagnostics can always report a
// source position.
type Node interface {
	Pos() Interval
}

// Bot is the top-level parsed program: a set of flows plus the metadata
// needed to select a starting flow/step.
type Bot struct {
	Name           string
	DefaultFlow    string
	Flows          map[string]*Flow
	FlowOrder      []string
	CustomComponents map[string]*ComponentSchema
	Multibot       []MultibotEntry
	Env            map[string]string

	// NoInterruptionDelay is the bot-declared cooldown, in days, during
	// which repeat requests from the same client are dropped rather than
	// re-entering the interpreter (spec.md §4.4 "No-interruption delay").
	// nil means the bot does not declare one.
	NoInterruptionDelay *int
}

// MultibotEntry names another bot this bot may hand off to, by id or name.
type MultibotEntry struct {
	ID   string
	Name string
}

func (b *Bot) FlowByName(name string) (*Flow, bool) {
	f, ok := b.Flows[name]
	return f, ok
}

// Flow is an ordered set of steps keyed by name plus trigger "commands".
type Flow struct {
	ID       string
	Name     string
	Content  string // original source text, used for hold hashing
	Commands []string
	Steps    map[string]*Step
	StepOrder []string // declaration order; also used to number steps for hold indices
	Functions map[string]*FunctionDecl
	Interval Interval
}

func (f *Flow) Pos() Interval { return f.Interval }

func (f *Flow) StepByName(name string) (*Step, bool) {
	s, ok := f.Steps[name]
	return s, ok
}

// StepIndex returns the declaration-order position of name, used to number
// steps for hold indices (spec §4.2: "index list so evaluator can number
// them for hold hashes").
func (f *Flow) StepIndex(name string) (int, bool) {
	for i, n := range f.StepOrder {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// Step is a labeled block of statements: the atomic unit of execution
// between two suspensions.
type Step struct {
	Name     string
	Body     []Statement
	Source   string // the exact source slice for this step, used for hold hashing
	Interval Interval

	// InsertedFrom is set when this step was declared as a top-level
	// `insert step X [as Y] from flow F`: the step's body is inlined from
	// FromFlow's StepName at build time, but hold hashing must still
	// attribute the hash to the origin (see StepContext).
	InsertedFrom *InsertOrigin
}

func (s *Step) Pos() Interval { return s.Interval }

// FunctionDecl is a `fn name(args) { ... }` declaration, registered in the
// owning flow's function table.
type FunctionDecl struct {
	Name     string
	Params   []string
	Body     []Statement
	Interval Interval
}

func (f *FunctionDecl) Pos() Interval { return f.Interval }

func (f *FunctionDecl) Arity() int          { return len(f.Params) }
func (f *FunctionDecl) ParamNames() []string { return f.Params }

// ComponentSchema describes a native component's field contract (required
// fields, defaults, union types) used to validate component invocations.
type ComponentSchema struct {
	Name     string
	Fields   []ComponentField
	Renders  string // content_type this component renders as
}

type ComponentField struct {
	Name     string
	Required bool
	Default  value.Value
	Union    []string // allowed kind names, empty = unconstrained
}
