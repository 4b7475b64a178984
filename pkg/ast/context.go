package ast

// StepContextKind tags how a step is being executed, which matters for hold
// hashing (spec §4.3, §9 "Insert-step composition"):
//
//	Normal(step)           -> source of step in current flow
//	InsertedStep{step,flow} -> source of step in the origin flow
//	UnknownFlow(step)      -> origin flow of an inserted step if present,
//	                          else current flow
type StepContextKind int

const (
	ContextNormal StepContextKind = iota
	ContextInsertedStep
	ContextUnknownFlow
)

// StepContext carries the step together with enough information to resolve
// which flow's source text backs its hold hash and which flow a bare
// `goto` inside it should resolve against first.
type StepContext struct {
	Kind       StepContextKind
	Step       *Step
	OriginFlow string // flow the step's source should be attributed to
}

// InsertOrigin records where a Step's body was inlined from, set during
// build when a `insert step X [as Y] from flow F` top-level declaration
// creates a step in the current flow.
type InsertOrigin struct {
	FromFlow string
	StepName string
}

// HoldSource returns the source text that should be hashed for a hold
// taken while executing this step context (spec §4.3 "Hold hashing").
func (c StepContext) HoldSource(bot *Bot) string {
	switch c.Kind {
	case ContextInsertedStep:
		if f, ok := bot.FlowByName(c.OriginFlow); ok {
			if s, ok := f.StepByName(c.Step.Name); ok {
				return s.Source
			}
		}
		return c.Step.Source
	case ContextUnknownFlow:
		if c.OriginFlow != "" {
			if f, ok := bot.FlowByName(c.OriginFlow); ok {
				if s, ok := f.StepByName(c.Step.Name); ok {
					return s.Source
				}
			}
		}
		return c.Step.Source
	default:
		return c.Step.Source
	}
}
