// Package eval is the tree-walking evaluator over pkg/ast: it executes one
// step's statements at a time and emits Events (Message, Remember, Forget,
// Hold, Next, Log, Error) on a channel for pkg/driver to consume.
package eval

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/value"
)

// ctrl signals non-local exits out of a statement list: loop control,
// function return, or a terminal event (hold/goto/error) that ends the
// step's execution for this interaction.
type ctrl int

const (
	ctrlNone ctrl = iota
	ctrlBreak
	ctrlContinue
	ctrlReturn
	ctrlHalt
)

// Evaluator walks one step's AST, sending events to Events. Each request
// gets its own Evaluator running on its own goroutine (spec.md §5: "one
// producer, one consumer, no shared mutable state").
type Evaluator struct {
	Bot    *ast.Bot
	Events chan Event

	// DebugTrace is the trace slice the driver hands over when DEBUG=true
	// (spec.md §4.4 supplement); the evaluator does not append to it.
	DebugTrace *[]Log
}

// New creates an Evaluator bound to bot, sending events on a
// newly-allocated channel the caller should range over.
func New(bot *ast.Bot, buffer int) *Evaluator {
	return &Evaluator{Bot: bot, Events: make(chan Event, buffer)}
}

// Run executes stepCtx.Step's body in flow's lexical context and closes
// Events when the step halts (hold, goto, uncaught error, or the body runs
// to completion without a terminal statement). It must be called on its
// own goroutine; the driver ranges over e.Events concurrently.
func (e *Evaluator) Run(flow *ast.Flow, stepCtx ast.StepContext, scope *Scope) {
	defer close(e.Events)
	_, _, err := e.execBlock(stepCtx.Step.Body, scope, flow, stepCtx, 0)
	if err != nil {
		e.emit(Event{Kind: EventError, Message: errorValue(err)})
	}
}

func errorValue(err error) value.Value {
	v := value.NewString(err.Error())
	v.ContentType = "error"
	return v
}

func (e *Evaluator) emit(ev Event) { e.Events <- ev }

func (e *Evaluator) execBlock(stmts []ast.Statement, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext, loopDepth int) (ctrl, value.Value, error) {
	for _, s := range stmts {
		c, v, err := e.execStmt(s, scope, flow, stepCtx, loopDepth)
		if err != nil {
			return ctrlNone, value.Value{}, err
		}
		if c != ctrlNone {
			return c, v, nil
		}
	}
	return ctrlNone, value.Value{}, nil
}

// execStmt executes one statement. loopDepth counts the *ast.Foreach nodes
// lexically enclosing s in scope for break/continue purposes (spec.md §4.3
// "break/continue outside of any loop fail"). A function/closure call starts
// a fresh body with loopDepth 0, since its ctrl signals never escape the
// call (see callDecl/callClosure); an inserted step's body is spliced
// in-place and inherits the caller's loopDepth instead (see execInsertStep).
func (e *Evaluator) execStmt(s ast.Statement, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext, loopDepth int) (ctrl, value.Value, error) {
	switch n := s.(type) {
	case *ast.ExprStmt:
		_, err := e.eval(n.Expr, scope, flow, stepCtx)
		return ctrlNone, value.Value{}, err

	case *ast.DoAssign:
		return e.execDoAssign(n, scope, flow, stepCtx)

	case *ast.Say:
		v, err := e.eval(n.Expr, scope, flow, stepCtx)
		if err != nil {
			return ctrlNone, value.Value{}, err
		}
		e.emit(Event{Kind: EventMessage, Message: v})
		return ctrlNone, value.Value{}, nil

	case *ast.Remember:
		v, err := e.eval(n.Value, scope, flow, stepCtx)
		if err != nil {
			return ctrlNone, value.Value{}, err
		}
		scope.Remember(n.Key, v)
		e.emit(Event{Kind: EventRemember, RememberKey: n.Key, RememberValue: v})
		return ctrlNone, value.Value{}, nil

	case *ast.Forget:
		return e.execForget(n, scope)

	case *ast.Hold:
		hash := e.holdHash(stepCtx)
		e.emit(Event{Kind: EventHold, HoldStepVars: scope.Snapshot(), HoldHash: hash})
		return ctrlHalt, value.Value{}, nil

	case *ast.Goto:
		next := e.resolveGoto(n, flow, stepCtx)
		e.emit(Event{Kind: EventNext, Next: next})
		return ctrlHalt, value.Value{}, nil

	case *ast.Return:
		if n.Expr == nil {
			return ctrlReturn, value.NewNull(), nil
		}
		v, err := e.eval(n.Expr, scope, flow, stepCtx)
		if err != nil {
			return ctrlNone, value.Value{}, err
		}
		return ctrlReturn, v, nil

	case *ast.If:
		for _, b := range n.Branches {
			if b.Cond != nil {
				cv, err := e.eval(b.Cond, scope, flow, stepCtx)
				if err != nil {
					return ctrlNone, value.Value{}, err
				}
				if !cv.Truthy() {
					continue
				}
			}
			return e.execBlock(b.Body, scope, flow, stepCtx, loopDepth)
		}
		return ctrlNone, value.Value{}, nil

	case *ast.Foreach:
		return e.execForeach(n, scope, flow, stepCtx, loopDepth)

	case *ast.Break:
		if loopDepth == 0 {
			return ctrlNone, value.Value{}, fmt.Errorf("interpret: break outside of a loop")
		}
		return ctrlBreak, value.Value{}, nil

	case *ast.Continue:
		if loopDepth == 0 {
			return ctrlNone, value.Value{}, fmt.Errorf("interpret: continue outside of a loop")
		}
		return ctrlContinue, value.Value{}, nil

	case *ast.InsertStep:
		return e.execInsertStep(n, scope, flow, stepCtx, loopDepth)

	default:
		return ctrlNone, value.Value{}, fmt.Errorf("interpret: unhandled statement %T", s)
	}
}

func (e *Evaluator) execDoAssign(n *ast.DoAssign, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext) (ctrl, value.Value, error) {
	rhs, err := e.eval(n.Value, scope, flow, stepCtx)
	if err != nil {
		return ctrlNone, value.Value{}, err
	}
	if n.Op == ast.AssignSet {
		scope.Assign(n.Target, rhs)
		return ctrlNone, value.Value{}, nil
	}
	cur, ok := scope.Lookup(n.Target)
	if !ok {
		return ctrlNone, value.Value{}, fmt.Errorf("interpret: undefined variable %q", n.Target)
	}
	var result value.Value
	switch n.Op {
	case ast.AssignAdd:
		result, err = value.Add(cur, rhs)
	case ast.AssignSub:
		result, err = value.Sub(cur, rhs)
	case ast.AssignMul:
		result, err = value.Mul(cur, rhs)
	case ast.AssignDiv:
		result, err = value.Div(cur, rhs)
	case ast.AssignMod:
		result, err = value.Mod(cur, rhs)
	default:
		return ctrlNone, value.Value{}, fmt.Errorf("interpret: unknown assignment operator %q", n.Op)
	}
	if err != nil {
		return ctrlNone, value.Value{}, fmt.Errorf("interpret: %w", err)
	}
	scope.Assign(n.Target, result)
	return ctrlNone, value.Value{}, nil
}

func (e *Evaluator) execForget(n *ast.Forget, scope *Scope) (ctrl, value.Value, error) {
	switch n.Mode {
	case ast.ForgetAll:
		scope.ForgetAll()
		e.emit(Event{Kind: EventForget, ForgetMode: ForgetAll})
	case ast.ForgetMany:
		for _, k := range n.Keys {
			scope.Forget(k)
		}
		e.emit(Event{Kind: EventForget, ForgetMode: ForgetMany, ForgetKeys: n.Keys})
	default:
		scope.Forget(n.Keys[0])
		e.emit(Event{Kind: EventForget, ForgetMode: ForgetOne, ForgetKeys: n.Keys})
	}
	return ctrlNone, value.Value{}, nil
}

func (e *Evaluator) execForeach(n *ast.Foreach, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext, loopDepth int) (ctrl, value.Value, error) {
	iter, err := e.eval(n.Iterable, scope, flow, stepCtx)
	if err != nil {
		return ctrlNone, value.Value{}, err
	}
	run := func(item value.Value, idx int) (ctrl, value.Value, error) {
		scope.SetLocal(n.ItemVar, item)
		if n.IndexVar != "" {
			scope.SetLocal(n.IndexVar, value.NewInt(int64(idx)))
		}
		c, v, err := e.execBlock(n.Body, scope, flow, stepCtx, loopDepth+1)
		return c, v, err
	}

	switch iter.Kind {
	case value.Array:
		for i, item := range iter.AsArray() {
			c, v, err := run(item, i)
			if err != nil {
				return ctrlNone, value.Value{}, err
			}
			if c == ctrlBreak {
				break
			}
			if c == ctrlReturn || c == ctrlHalt {
				return c, v, nil
			}
		}
	case value.String:
		i := 0
		for _, r := range iter.AsString() {
			c, v, err := run(value.NewString(string(r)), i)
			i++
			if err != nil {
				return ctrlNone, value.Value{}, err
			}
			if c == ctrlBreak {
				break
			}
			if c == ctrlReturn || c == ctrlHalt {
				return c, v, nil
			}
		}
	case value.Object:
		for i, k := range iter.ObjectKeys() {
			c, v, err := run(value.NewString(k), i)
			if err != nil {
				return ctrlNone, value.Value{}, err
			}
			if c == ctrlBreak {
				break
			}
			if c == ctrlReturn || c == ctrlHalt {
				return c, v, nil
			}
		}
	default:
		return ctrlNone, value.Value{}, fmt.Errorf("interpret: cannot iterate %s", iter.TypeName())
	}
	return ctrlNone, value.Value{}, nil
}

// execInsertStep inlines a target step's body at this point, switching the
// lexical flow and StepContext for the duration of the nested block so that
// gotos inside it resolve against the origin flow and, should a hold occur
// mid-inline, the hash is attributed to the inserted step's own source
// (spec.md §4.3 "insert step composition"). Unlike a function call, control
// signals (break/continue/return) flow straight back out to the caller, so
// loopDepth is inherited rather than reset: a break inside an inserted step
// breaks the loop it was spliced into.
func (e *Evaluator) execInsertStep(n *ast.InsertStep, scope *Scope, flow *ast.Flow, stepCtx ast.StepContext, loopDepth int) (ctrl, value.Value, error) {
	originFlow, ok := e.Bot.FlowByName(n.FromFlow)
	if !ok {
		return ctrlNone, value.Value{}, fmt.Errorf("interpret: insert step references unknown flow %q", n.FromFlow)
	}
	target, step, err := resolveInsertTarget(originFlow, n.StepName)
	if err != nil {
		return ctrlNone, value.Value{}, err
	}
	nested := ast.StepContext{Kind: ast.ContextInsertedStep, Step: step, OriginFlow: target.Name}
	return e.execBlock(step.Body, scope, target, nested, loopDepth)
}

// resolveInsertTarget looks stepName up in flow and returns flow with that
// step. It does not follow an InsertedFrom chain: an inserted step's body
// and source were already copied from its origin by parser.BuildBot.
func resolveInsertTarget(flow *ast.Flow, stepName string) (*ast.Flow, *ast.Step, error) {
	s, ok := flow.StepByName(stepName)
	if !ok {
		return nil, nil, fmt.Errorf("interpret: unknown step %q in flow %q", stepName, flow.Name)
	}
	return flow, s, nil
}

func (e *Evaluator) resolveGoto(n *ast.Goto, flow *ast.Flow, stepCtx ast.StepContext) Next {
	switch n.Target {
	case ast.GotoStep:
		return Next{Step: n.Name}
	case ast.GotoFlow:
		return Next{Flow: n.Name, Step: "start"}
	case ast.GotoBot:
		return Next{Bot: n.Name, HasBot: true}
	default: // GotoBare: step first in the step's origin flow, else a flow name
		home := e.homeFlow(flow, stepCtx)
		if _, ok := home.StepByName(n.Name); ok {
			return Next{Flow: home.Name, Step: n.Name}
		}
		if _, ok := e.Bot.FlowByName(n.Name); ok {
			return Next{Flow: n.Name, Step: "start"}
		}
		return Next{Step: n.Name}
	}
}

// homeFlow is the flow a bare goto or hold-hash should be attributed to:
// the inserted step's origin flow when executing inside an insert, else the
// currently executing flow (spec.md §4.3 ContextStepInfo).
func (e *Evaluator) homeFlow(flow *ast.Flow, stepCtx ast.StepContext) *ast.Flow {
	if stepCtx.Kind == ast.ContextInsertedStep || stepCtx.Kind == ast.ContextUnknownFlow {
		if stepCtx.OriginFlow != "" {
			if f, ok := e.Bot.FlowByName(stepCtx.OriginFlow); ok {
				return f
			}
		}
	}
	return flow
}

// holdHash computes the MD5 of the step's attributed source text, per
// spec.md §4.3 "Hold hashing (resume safety)".
func (e *Evaluator) holdHash(stepCtx ast.StepContext) string {
	return HoldHash(e.Bot, stepCtx)
}

// HoldHash is the package-level form of the evaluator's hash computation,
// exported so pkg/driver can recompute the expected hash for a step it is
// about to resume and compare it against a persisted hold without
// duplicating the MD5-of-source logic (spec.md §3 "hash binds the hold to a
// specific compiled step; mismatch invalidates").
func HoldHash(bot *ast.Bot, stepCtx ast.StepContext) string {
	src := stepCtx.HoldSource(bot)
	sum := md5.Sum([]byte(src))
	return hex.EncodeToString(sum[:])
}

// FlowTrigger content value helpers used by the driver for start selection
// (spec.md §6 "Event content types"); kept here so both pkg/driver and
// pkg/eval share one definition of how a payload becomes a match string.
func ContentValue(contentType string, content map[string]any) string {
	switch contentType {
	case "text":
		if s, ok := content["text"].(string); ok {
			return s
		}
	case "payload", "regex":
		if s, ok := content["payload"].(string); ok {
			return s
		}
	case "image", "video", "audio", "file", "url":
		if s, ok := content["url"].(string); ok {
			return s
		}
	}
	return ""
}

// NormalizeCommand lowercases and trims a command/content_value pair for
// the exact-match comparison spec.md §4.4 requires.
func NormalizeCommand(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
