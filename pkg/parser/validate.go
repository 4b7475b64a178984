package parser

import (
	"fmt"

	"github.com/csml-run/csml-engine/pkg/ast"
)

// reservedIdents may not be used as `do`/`remember` write targets: `_event`
// is the read-only event object injected into metadata (spec.md §4.3).
var reservedIdents = map[string]bool{
	"_event": true,
}

// Validate runs the build-time diagnostics of spec.md §4.2 that need the
// whole bot: missing flow/step references, duplicate fn parameter names,
// reserved identifiers, and unreachable code after a terminal statement
// (duplicate step and function names are reported by ParseFlow). It does
// not mutate bot;
// callers should still call BuildBot first so insert-step bodies and
// component calls are resolved before validation sees them.
func Validate(bot *ast.Bot) []error {
	var errs []error
	for _, flow := range bot.Flows {
		for _, fn := range flow.Functions {
			errs = append(errs, validateParams(flow.Name, "fn "+fn.Name, fn.Params)...)
			errs = append(errs, validateBody(bot, flow, fn.Body)...)
		}
		for _, step := range flow.Steps {
			errs = append(errs, validateBody(bot, flow, step.Body)...)
		}
	}
	return errs
}

func validateParams(flowName, owner string, params []string) []error {
	var errs []error
	seen := map[string]bool{}
	for _, p := range params {
		if seen[p] {
			errs = append(errs, fmt.Errorf("flow %s: %s: duplicate parameter %q", flowName, owner, p))
		}
		seen[p] = true
	}
	return errs
}

func validateBody(bot *ast.Bot, flow *ast.Flow, body []ast.Statement) []error {
	var errs []error
	errs = append(errs, checkUnreachable(flow.Name, body)...)
	for _, s := range body {
		errs = append(errs, validateStatement(bot, flow, s)...)
	}
	return errs
}

// isTerminal reports whether a statement unconditionally leaves the
// enclosing block, making any statement after it unreachable.
func isTerminal(s ast.Statement) bool {
	switch s.(type) {
	case *ast.Return, *ast.Goto, *ast.Hold, *ast.Break, *ast.Continue:
		return true
	}
	return false
}

func checkUnreachable(flowName string, body []ast.Statement) []error {
	var errs []error
	for i, s := range body {
		if isTerminal(s) && i < len(body)-1 {
			errs = append(errs, fmt.Errorf("flow %s: unreachable code after %T at %d:%d", flowName, s, body[i+1].Pos().Line, body[i+1].Pos().Column))
			break
		}
	}
	return errs
}

func validateStatement(bot *ast.Bot, flow *ast.Flow, s ast.Statement) []error {
	var errs []error
	switch n := s.(type) {
	case *ast.DoAssign:
		if reservedIdents[n.Target] {
			errs = append(errs, fmt.Errorf("flow %s: cannot assign to reserved identifier %q", flow.Name, n.Target))
		}
	case *ast.Remember:
		if reservedIdents[n.Key] {
			errs = append(errs, fmt.Errorf("flow %s: cannot remember reserved identifier %q", flow.Name, n.Key))
		}
	case *ast.Goto:
		switch n.Target {
		case ast.GotoStep:
			if _, ok := flow.StepByName(n.Name); !ok {
				errs = append(errs, fmt.Errorf("flow %s: goto step references unknown step %q", flow.Name, n.Name))
			}
		case ast.GotoFlow:
			if _, ok := bot.FlowByName(n.Name); !ok {
				errs = append(errs, fmt.Errorf("flow %s: goto flow references unknown flow %q", flow.Name, n.Name))
			}
		case ast.GotoBot:
			if !hasMultibotEntry(bot, n.Name) {
				errs = append(errs, fmt.Errorf("flow %s: goto bot references unknown bot %q", flow.Name, n.Name))
			}
		case ast.GotoBare:
			_, isStep := flow.StepByName(n.Name)
			_, isFlow := bot.FlowByName(n.Name)
			if !isStep && !isFlow {
				errs = append(errs, fmt.Errorf("flow %s: goto references unknown step or flow %q", flow.Name, n.Name))
			}
		}
	case *ast.InsertStep:
		if f, ok := bot.FlowByName(n.FromFlow); !ok {
			errs = append(errs, fmt.Errorf("flow %s: insert step references unknown flow %q", flow.Name, n.FromFlow))
		} else if _, ok := f.StepByName(n.StepName); !ok {
			errs = append(errs, fmt.Errorf("flow %s: insert step references unknown step %q in flow %q", flow.Name, n.StepName, n.FromFlow))
		}
	case *ast.If:
		for _, b := range n.Branches {
			errs = append(errs, checkUnreachable(flow.Name, b.Body)...)
			for _, st := range b.Body {
				errs = append(errs, validateStatement(bot, flow, st)...)
			}
		}
	case *ast.Foreach:
		errs = append(errs, checkUnreachable(flow.Name, n.Body)...)
		for _, st := range n.Body {
			errs = append(errs, validateStatement(bot, flow, st)...)
		}
	}
	return errs
}

func hasMultibotEntry(bot *ast.Bot, name string) bool {
	for _, m := range bot.Multibot {
		if m.ID == name || m.Name == name {
			return true
		}
	}
	return false
}
