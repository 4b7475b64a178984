package eval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/eval"
	"github.com/csml-run/csml-engine/pkg/parser"
	"github.com/csml-run/csml-engine/pkg/value"
)

// runStep parses src as a single flow, runs the named step to completion,
// and returns every event it emitted plus the scope it ran in (so tests can
// inspect `current` afterwards).
func runStep(t *testing.T, src, stepName string, current map[string]value.Value, metadata map[string]value.Value) ([]eval.Event, *eval.Scope) {
	t.Helper()
	flow, errs := parser.ParseFlow("main", src)
	require.Empty(t, errs)

	bot := &ast.Bot{Name: "test", Flows: map[string]*ast.Flow{"main": flow}}
	step, ok := flow.StepByName(stepName)
	require.True(t, ok, "step %q not found", stepName)

	if current == nil {
		current = map[string]value.Value{}
	}
	scope := eval.NewScope(&current, metadata)
	ev := eval.New(bot, 16)

	var events []eval.Event
	done := make(chan struct{})
	go func() {
		ev.Run(flow, ast.StepContext{Kind: ast.ContextNormal, Step: step}, scope)
		close(done)
	}()
	for e := range ev.Events {
		events = append(events, e)
	}
	<-done
	return events, scope
}

func TestSayEmitsMessageEvent(t *testing.T) {
	events, _ := runStep(t, `main: { say "hello" }`, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventMessage, events[0].Kind)
	assert.Equal(t, "hello", events[0].Message.AsString())
}

func TestDoAssignArithmeticAndRemember(t *testing.T) {
	src := `main: {
		do x = 2
		do x += 3
		remember total = x
		say x
	}`
	events, scope := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 2)
	assert.Equal(t, eval.EventRemember, events[0].Kind)
	assert.Equal(t, "total", events[0].RememberKey)
	assert.Equal(t, int64(5), events[0].RememberValue.AsInt())
	assert.Equal(t, eval.EventMessage, events[1].Kind)
	assert.Equal(t, int64(5), scope.Current()["total"].AsInt())
}

func TestIfElifElse(t *testing.T) {
	src := `main: {
		if (1 == 2) {
			say "a"
		} elif (2 == 2) {
			say "b"
		} else {
			say "c"
		}
	}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].Message.AsString())
}

func TestForeachOverArrayWithBreak(t *testing.T) {
	src := `main: {
		foreach (item, idx) in [10, 20, 30] {
			if (idx == 2) {
				break
			}
			say item
		}
	}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 2)
	assert.Equal(t, int64(10), events[0].Message.AsInt())
	assert.Equal(t, int64(20), events[1].Message.AsInt())
}

func TestForeachContinueSkipsIteration(t *testing.T) {
	src := `main: {
		foreach (item, idx) in [1, 2, 3] {
			if (idx == 1) {
				continue
			}
			say item
		}
	}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Message.AsInt())
	assert.Equal(t, int64(3), events[1].Message.AsInt())
}

func TestFunctionDeclCallAndReturn(t *testing.T) {
	src := `
fn double(n) {
	return n * 2
}
main: {
	say double(21)
}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, int64(42), events[0].Message.AsInt())
}

func TestClosureCapturesByValueSnapshot(t *testing.T) {
	src := `main: {
		do base = 10
		do adder = fn(n) {
			return n + base
		}
		do base = 999
		say adder(5)
	}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, int64(15), events[0].Message.AsInt())
}

func TestHoldEmitsSnapshotAndHaltsStep(t *testing.T) {
	src := `main: {
		do x = 1
		hold
		say "unreachable"
	}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventHold, events[0].Kind)
	assert.Equal(t, int64(1), events[0].HoldStepVars["x"].AsInt())
	assert.NotEmpty(t, events[0].HoldHash)
}

func TestHoldHashIsStableForIdenticalSource(t *testing.T) {
	src := `main: { hold }`
	events1, _ := runStep(t, src, "main", nil, nil)
	events2, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events1, 1)
	require.Len(t, events2, 1)
	assert.Equal(t, events1[0].HoldHash, events2[0].HoldHash)
}

func TestHoldHashDiffersForDifferentSource(t *testing.T) {
	events1, _ := runStep(t, `main: { hold }`, "main", nil, nil)
	events2, _ := runStep(t, `main: { do x = 1 hold }`, "main", nil, nil)
	assert.NotEqual(t, events1[0].HoldHash, events2[0].HoldHash)
}

func TestGotoStepEmitsNextEvent(t *testing.T) {
	src := `main: {
		goto step next_step
	}
	next_step: {
		say "arrived"
	}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventNext, events[0].Kind)
	assert.Equal(t, "next_step", events[0].Next.Step)
}

func TestForgetStarClearsCurrent(t *testing.T) {
	current := map[string]value.Value{"a": value.NewInt(1), "b": value.NewInt(2)}
	events, scope := runStep(t, `main: { forget * }`, "main", current, nil)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventForget, events[0].Kind)
	assert.Equal(t, eval.ForgetAll, events[0].ForgetMode)
	assert.Empty(t, scope.Current())
}

func TestMetadataIsReadOnlyFallback(t *testing.T) {
	metadata := map[string]value.Value{"lang": value.NewString("en")}
	events, _ := runStep(t, `main: { say lang }`, "main", nil, metadata)
	require.Len(t, events, 1)
	assert.Equal(t, "en", events[0].Message.AsString())
}

func TestWriteMethodOnConstantMetadataBindingFails(t *testing.T) {
	metadata := map[string]value.Value{"items": value.NewArray([]value.Value{value.NewInt(1)})}
	events, _ := runStep(t, `main: { say items.push(2) }`, "main", nil, metadata)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventError, events[0].Kind)
	assert.Equal(t, "error", events[0].Message.ContentType)
}

func TestUndefinedVariableProducesErrorEvent(t *testing.T) {
	events, _ := runStep(t, `main: { say missing }`, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventError, events[0].Kind)
	assert.Equal(t, "error", events[0].Message.ContentType)
}

func TestBreakOutsideLoopProducesErrorEvent(t *testing.T) {
	events, _ := runStep(t, `main: { break }`, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventError, events[0].Kind)
	assert.Equal(t, "error", events[0].Message.ContentType)
}

func TestContinueOutsideLoopProducesErrorEvent(t *testing.T) {
	events, _ := runStep(t, `main: { continue }`, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventError, events[0].Kind)
	assert.Equal(t, "error", events[0].Message.ContentType)
}

func TestBreakInsideForeachExitsLoop(t *testing.T) {
	src := `main: {
		do items = [1, 2, 3]
		foreach (item) in items {
			if item == 2 {
				break
			}
			say item
		}
	}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, eval.EventMessage, events[0].Kind)
	assert.Equal(t, int64(1), events[0].Message.AsInt())
}

func TestContinueInsideForeachSkipsIteration(t *testing.T) {
	src := `main: {
		do items = [1, 2, 3]
		foreach (item) in items {
			if item == 2 {
				continue
			}
			say item
		}
	}`
	events, _ := runStep(t, src, "main", nil, nil)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Message.AsInt())
	assert.Equal(t, int64(3), events[1].Message.AsInt())
}

func TestInsertStepInlinesBodyFromAnotherFlow(t *testing.T) {
	other, errs := parser.ParseFlow("shared", `greet: { say "hi from shared" }`)
	require.Empty(t, errs)

	flow, errs := parser.ParseFlow("main", `main: {
		insert step greet from flow shared
	}`)
	require.Empty(t, errs)

	bot := &ast.Bot{Name: "test", Flows: map[string]*ast.Flow{"main": flow, "shared": other}}
	step, _ := flow.StepByName("main")
	current := map[string]value.Value{}
	scope := eval.NewScope(&current, nil)
	ev := eval.New(bot, 16)

	var events []eval.Event
	done := make(chan struct{})
	go func() {
		ev.Run(flow, ast.StepContext{Kind: ast.ContextNormal, Step: step}, scope)
		close(done)
	}()
	for e := range ev.Events {
		events = append(events, e)
	}
	<-done

	require.Len(t, events, 1)
	assert.Equal(t, "hi from shared", events[0].Message.AsString())
}

func TestMethodCallDispatchesToValueTable(t *testing.T) {
	events, _ := runStep(t, `main: { say "hello".length() }`, "main", nil, nil)
	require.Len(t, events, 1)
	assert.Equal(t, int64(5), events[0].Message.AsInt())
}

func TestComponentCallAppliesDefaultsAndContentType(t *testing.T) {
	flow, errs := parser.ParseFlow("main", `main: {
		say Button(title: "Yes")
	}`)
	require.Empty(t, errs)

	schema := &ast.ComponentSchema{
		Name:    "Button",
		Renders: "button",
		Fields: []ast.ComponentField{
			{Name: "title", Required: true},
			{Name: "value", Required: false, Default: value.NewString("default-value")},
		},
	}
	bot := &ast.Bot{
		Name:             "test",
		Flows:            map[string]*ast.Flow{"main": flow},
		CustomComponents: map[string]*ast.ComponentSchema{"Button": schema},
	}
	for _, step := range flow.Steps {
		step.Body = rewriteForTest(step.Body, bot.CustomComponents)
	}

	step, _ := flow.StepByName("main")
	current := map[string]value.Value{}
	scope := eval.NewScope(&current, nil)
	ev := eval.New(bot, 16)

	var events []eval.Event
	done := make(chan struct{})
	go func() {
		ev.Run(flow, ast.StepContext{Kind: ast.ContextNormal, Step: step}, scope)
		close(done)
	}()
	for e := range ev.Events {
		events = append(events, e)
	}
	<-done

	require.Len(t, events, 1)
	msg := events[0].Message
	assert.Equal(t, "button", msg.ContentType)
	title, ok := msg.ObjectGet("title")
	require.True(t, ok)
	assert.Equal(t, "Yes", title.AsString())
	val, ok := msg.ObjectGet("value")
	require.True(t, ok)
	assert.Equal(t, "default-value", val.AsString())
}

// rewriteForTest mirrors pkg/parser's FuncCall->ComponentCall rewrite, since
// that pass normally runs inside BuildBot rather than ParseFlow alone.
func rewriteForTest(stmts []ast.Statement, components map[string]*ast.ComponentSchema) []ast.Statement {
	for i, s := range stmts {
		if say, ok := s.(*ast.Say); ok {
			if call, ok := say.Expr.(*ast.FuncCall); ok {
				if _, known := components[call.Name]; known {
					args := call.NamedArgs
					if args == nil {
						args = map[string]ast.Expr{}
					}
					say.Expr = ast.NewComponentCall(call.Pos(), call.Name, args)
				}
			}
		}
		stmts[i] = s
	}
	return stmts
}
