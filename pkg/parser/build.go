package parser

import (
	"fmt"

	"github.com/csml-run/csml-engine/pkg/ast"
)

// FlowSource is one named flow's raw CSML text, as loaded from a bot
// manifest (spec.md §6's bot.yaml module list).
type FlowSource struct {
	Name    string
	Content string
}

// BuildBot parses every flow source and assembles a *ast.Bot, resolving
// cross-flow references that a single flow's parse can't see on its own:
// `insert step` body inlining and component-call rewriting. Bare
// `goto IDENT` targets are left as written and resolved by the evaluator.
func BuildBot(name, defaultFlow string, sources []FlowSource, components map[string]*ast.ComponentSchema) (*ast.Bot, []error) {
	bot := &ast.Bot{
		Name:             name,
		DefaultFlow:      defaultFlow,
		Flows:            map[string]*ast.Flow{},
		CustomComponents: components,
	}
	var errs []error
	for _, s := range sources {
		flow, ferrs := ParseFlow(s.Name, s.Content)
		if len(ferrs) > 0 {
			for _, e := range ferrs {
				errs = append(errs, fmt.Errorf("flow %s: %w", s.Name, e))
			}
		}
		bot.Flows[s.Name] = flow
		bot.FlowOrder = append(bot.FlowOrder, s.Name)
	}
	if len(errs) > 0 {
		return bot, errs
	}

	if err := resolveInsertedSteps(bot); err != nil {
		errs = append(errs, err...)
	}
	resolveComponentCalls(bot)
	if len(errs) > 0 {
		return bot, errs
	}
	return bot, nil
}

// resolveInsertedSteps fills in the Body of every Step created by a
// top-level `insert step` directive by copying the origin step's body from
// its source flow (spec.md §4.3 "insert step" composition). The origin
// step's own InsertedFrom chain is followed so inserts-of-inserts resolve
// to the original source.
func resolveInsertedSteps(bot *ast.Bot) []error {
	var errs []error
	for _, flow := range bot.Flows {
		for _, step := range flow.Steps {
			if step.InsertedFrom == nil {
				continue
			}
			origin, body, source, err := resolveOrigin(bot, step.InsertedFrom, map[string]bool{})
			if err != nil {
				errs = append(errs, fmt.Errorf("flow %s: step %s: %w", flow.Name, step.Name, err))
				continue
			}
			step.Body = body
			step.Source = source
			_ = origin
		}
	}
	return errs
}

func resolveOrigin(bot *ast.Bot, origin *ast.InsertOrigin, seen map[string]bool) (*ast.Step, []ast.Statement, string, error) {
	key := origin.FromFlow + "::" + origin.StepName
	if seen[key] {
		return nil, nil, "", fmt.Errorf("circular insert step chain at %s", key)
	}
	seen[key] = true

	f, ok := bot.FlowByName(origin.FromFlow)
	if !ok {
		return nil, nil, "", fmt.Errorf("insert step references unknown flow %q", origin.FromFlow)
	}
	s, ok := f.StepByName(origin.StepName)
	if !ok {
		return nil, nil, "", fmt.Errorf("insert step references unknown step %q in flow %q", origin.StepName, origin.FromFlow)
	}
	if s.InsertedFrom != nil {
		return resolveOrigin(bot, s.InsertedFrom, seen)
	}
	return s, s.Body, s.Source, nil
}

// resolveComponentCalls walks every statement tree and rewrites FuncCall
// nodes whose name matches a registered custom component into
// ComponentCall nodes, so pkg/eval never has to re-check the component
// table mid-evaluation (spec.md §4.3 "native component invocation with
// schema validation").
func resolveComponentCalls(bot *ast.Bot) {
	if len(bot.CustomComponents) == 0 {
		return
	}
	for _, flow := range bot.Flows {
		for _, step := range flow.Steps {
			step.Body = rewriteStatements(step.Body, bot.CustomComponents)
		}
		for _, fn := range flow.Functions {
			fn.Body = rewriteStatements(fn.Body, bot.CustomComponents)
		}
	}
}

func rewriteStatements(stmts []ast.Statement, components map[string]*ast.ComponentSchema) []ast.Statement {
	for i, s := range stmts {
		stmts[i] = rewriteStatement(s, components)
	}
	return stmts
}

func rewriteStatement(s ast.Statement, components map[string]*ast.ComponentSchema) ast.Statement {
	switch n := s.(type) {
	case *ast.ExprStmt:
		n.Expr = rewriteExpr(n.Expr, components)
	case *ast.DoAssign:
		n.Value = rewriteExpr(n.Value, components)
	case *ast.Say:
		n.Expr = rewriteExpr(n.Expr, components)
	case *ast.Remember:
		n.Value = rewriteExpr(n.Value, components)
	case *ast.Return:
		if n.Expr != nil {
			n.Expr = rewriteExpr(n.Expr, components)
		}
	case *ast.If:
		for i := range n.Branches {
			if n.Branches[i].Cond != nil {
				n.Branches[i].Cond = rewriteExpr(n.Branches[i].Cond, components)
			}
			n.Branches[i].Body = rewriteStatements(n.Branches[i].Body, components)
		}
	case *ast.Foreach:
		n.Iterable = rewriteExpr(n.Iterable, components)
		n.Body = rewriteStatements(n.Body, components)
	}
	return s
}

func rewriteExpr(e ast.Expr, components map[string]*ast.ComponentSchema) ast.Expr {
	switch n := e.(type) {
	case *ast.FuncCall:
		if schema, ok := components[n.Name]; ok {
			args := n.NamedArgs
			if args == nil {
				args = map[string]ast.Expr{}
			}
			_ = schema
			return ast.NewComponentCall(n.Pos(), n.Name, args)
		}
		for i := range n.Args {
			n.Args[i] = rewriteExpr(n.Args[i], components)
		}
		for k, v := range n.NamedArgs {
			n.NamedArgs[k] = rewriteExpr(v, components)
		}
	case *ast.MethodCall:
		n.Recv = rewriteExpr(n.Recv, components)
		for i := range n.Args {
			n.Args[i] = rewriteExpr(n.Args[i], components)
		}
		for k, v := range n.NamedArgs {
			n.NamedArgs[k] = rewriteExpr(v, components)
		}
	case *ast.BinaryExpr:
		n.Left = rewriteExpr(n.Left, components)
		n.Right = rewriteExpr(n.Right, components)
	case *ast.UnaryExpr:
		n.Operand = rewriteExpr(n.Operand, components)
	case *ast.ArrayLit:
		for i := range n.Items {
			n.Items[i] = rewriteExpr(n.Items[i], components)
		}
	case *ast.ObjectLit:
		for i := range n.Values {
			n.Values[i] = rewriteExpr(n.Values[i], components)
		}
	case *ast.StringInterp:
		for i := range n.Exprs {
			n.Exprs[i] = rewriteExpr(n.Exprs[i], components)
		}
	}
	return e
}
