package parser_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/parser"
)

func TestParseFlowBasicStep(t *testing.T) {
	src := `
start: {
    remember name = "Alice"
    say "hi {{name}}"
    goto end
}
end: {
    say "bye"
}
`
	flow, errs := parser.ParseFlow("greeting", src)
	require.Empty(t, errs)
	require.Len(t, flow.StepOrder, 2)
	start, ok := flow.StepByName("start")
	require.True(t, ok)
	require.Len(t, start.Body, 3)

	remember, ok := start.Body[0].(*ast.Remember)
	require.True(t, ok)
	assert.Equal(t, "name", remember.Key)

	say, ok := start.Body[1].(*ast.Say)
	require.True(t, ok)
	interp, ok := say.Expr.(*ast.StringInterp)
	require.True(t, ok)
	require.Len(t, interp.Exprs, 1)
	ident, ok := interp.Exprs[0].(*ast.Identifier)
	require.True(t, ok)
	assert.Equal(t, "name", ident.Name)

	g, ok := start.Body[2].(*ast.Goto)
	require.True(t, ok)
	assert.Equal(t, ast.GotoBare, g.Target)
	assert.Equal(t, "end", g.Name)
}

func TestParseExpressionPrecedence(t *testing.T) {
	flow, errs := parser.ParseFlow("f", `start: { do x = 1 + 2 * 3 == 7 && true || false }`)
	require.Empty(t, errs)
	stmt := flow.Steps["start"].Body[0].(*ast.DoAssign)
	bin, ok := stmt.Value.(*ast.BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, ast.OpOr, bin.Op)
}

func TestParseMethodCallChain(t *testing.T) {
	flow, errs := parser.ParseFlow("f", `start: { do y = payload.get("a").to_string() }`)
	require.Empty(t, errs)
	stmt := flow.Steps["start"].Body[0].(*ast.DoAssign)
	outer, ok := stmt.Value.(*ast.MethodCall)
	require.True(t, ok)
	assert.Equal(t, "to_string", outer.Name)
	inner, ok := outer.Recv.(*ast.MethodCall)
	require.True(t, ok)
	assert.Equal(t, "get", inner.Name)
	require.Len(t, inner.Args, 1)
}

func TestParseIfElifElse(t *testing.T) {
	flow, errs := parser.ParseFlow("f", `
start: {
    if x == 1 {
        say "one"
    } elif x == 2 {
        say "two"
    } else {
        say "other"
    }
}
`)
	require.Empty(t, errs)
	ifs := flow.Steps["start"].Body[0].(*ast.If)
	require.Len(t, ifs.Branches, 3)
	assert.Nil(t, ifs.Branches[2].Cond)
}

func TestParseForeachWithIndex(t *testing.T) {
	flow, errs := parser.ParseFlow("f", `start: { foreach (item, idx) in list { say item } }`)
	require.Empty(t, errs)
	fe := flow.Steps["start"].Body[0].(*ast.Foreach)
	assert.Equal(t, "item", fe.ItemVar)
	assert.Equal(t, "idx", fe.IndexVar)
}

func TestParseInsertStepTopLevelSingleAndBraced(t *testing.T) {
	flow, errs := parser.ParseFlow("f", `
insert step greet as hello from flow onboarding
insert { step a, step b as c } from flow shared
start: { say "hi" }
`)
	require.Empty(t, errs)
	hello, ok := flow.StepByName("hello")
	require.True(t, ok)
	require.NotNil(t, hello.InsertedFrom)
	assert.Equal(t, "onboarding", hello.InsertedFrom.FromFlow)
	assert.Equal(t, "greet", hello.InsertedFrom.StepName)

	a, ok := flow.StepByName("a")
	require.True(t, ok)
	assert.Equal(t, "shared", a.InsertedFrom.FromFlow)

	c, ok := flow.StepByName("c")
	require.True(t, ok)
	assert.Equal(t, "b", c.InsertedFrom.StepName)
}

func TestParseGotoForms(t *testing.T) {
	flow, errs := parser.ParseFlow("f", `
start: {
    goto step other
    goto flow billing
    goto bot support
    goto fallback
}
`)
	require.Empty(t, errs)
	body := flow.Steps["start"].Body
	assert.Equal(t, ast.GotoStep, body[0].(*ast.Goto).Target)
	assert.Equal(t, ast.GotoFlow, body[1].(*ast.Goto).Target)
	assert.Equal(t, ast.GotoBot, body[2].(*ast.Goto).Target)
	assert.Equal(t, ast.GotoBare, body[3].(*ast.Goto).Target)
}

func TestParseFunctionDeclAndClosure(t *testing.T) {
	flow, errs := parser.ParseFlow("f", `
fn add(a, b) {
    return a + b
}
start: {
    do square = fn(n) { return n * n }
}
`)
	require.Empty(t, errs)
	require.Contains(t, flow.Functions, "add")
	assert.Equal(t, []string{"a", "b"}, flow.Functions["add"].Params)

	assign := flow.Steps["start"].Body[0].(*ast.DoAssign)
	closure, ok := assign.Value.(*ast.ClosureLit)
	require.True(t, ok)
	assert.Equal(t, 1, closure.Arity())
}

func TestSyntaxErrorRecordsPosition(t *testing.T) {
	_, errs := parser.ParseFlow("f", `start: { do = 1 }`)
	require.NotEmpty(t, errs)
	var se *parser.SyntaxError
	require.ErrorAs(t, errs[0], &se)
	assert.Equal(t, 1, se.Pos.Line)
	assert.Equal(t, 13, se.Pos.Column)
}

func TestBuildBotResolvesInsertedStepAcrossFlows(t *testing.T) {
	sources := []parser.FlowSource{
		{Name: "shared", Content: `greet: { say "hello from shared" }`},
		{Name: "main", Content: `
insert step greet from flow shared
start: { goto step greet }
`},
	}
	bot, errs := parser.BuildBot("test-bot", "main", sources, nil)
	require.Empty(t, errs)
	main := bot.Flows["main"]
	greet, ok := main.StepByName("greet")
	require.True(t, ok)
	require.Len(t, greet.Body, 1)
	say, ok := greet.Body[0].(*ast.Say)
	require.True(t, ok)
	lit, ok := say.Expr.(*ast.Literal)
	require.True(t, ok)
	assert.Equal(t, "hello from shared", lit.Value.AsString())
}

func TestValidateCatchesUnknownGotoTarget(t *testing.T) {
	sources := []parser.FlowSource{
		{Name: "main", Content: `start: { goto step nope }`},
	}
	bot, errs := parser.BuildBot("test-bot", "main", sources, nil)
	require.Empty(t, errs)
	verrs := parser.Validate(bot)
	require.NotEmpty(t, verrs)
}

func TestValidateCatchesUnreachableCode(t *testing.T) {
	sources := []parser.FlowSource{
		{Name: "main", Content: `start: { return 1  say "never" }`},
	}
	bot, errs := parser.BuildBot("test-bot", "main", sources, nil)
	require.Empty(t, errs)
	verrs := parser.Validate(bot)
	require.NotEmpty(t, verrs)
}
