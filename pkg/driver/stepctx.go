package driver

import (
	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/eval"
)

// stepContextFor resolves the ast.StepContext a top-level (flow, step) pair
// should be evaluated under: steps declared via a top-level `insert step X
// [as Y] from flow F` carry their origin on Step.InsertedFrom, and hold
// hashing/goto resolution must attribute to that origin flow rather than
// the flow the step physically lives in (spec.md §4.3 "UnknownFlow(step):
// origin flow of an inserted step if present, else current flow").
func stepContextFor(step *ast.Step) ast.StepContext {
	if step.InsertedFrom != nil {
		return ast.StepContext{Kind: ast.ContextUnknownFlow, Step: step, OriginFlow: step.InsertedFrom.FromFlow}
	}
	return ast.StepContext{Kind: ast.ContextNormal, Step: step}
}

// lookupStepHash computes the hold hash a (flow, step) pair would produce,
// used both to validate a stored hold (hold.go's expectedHash) and to write
// a fresh one.
func lookupStepHash(bot *ast.Bot, flowName, stepName string) (string, bool) {
	flow, ok := bot.FlowByName(flowName)
	if !ok {
		return "", false
	}
	step, ok := flow.StepByName(stepName)
	if !ok {
		return "", false
	}
	return hashFor(bot, step), true
}

func hashFor(bot *ast.Bot, step *ast.Step) string {
	return eval.HoldHash(bot, stepContextFor(step))
}
