package driver

import (
	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/eval"
)

// stepOutcome collects everything one evaluator run produced, so the
// driver's loop can apply persistence after the goroutine finishes rather
// than interleaving storage calls with event consumption. Outbound messages
// are also passed to onMessage as they are drained.
type stepOutcome struct {
	Messages []eval.Event // EventMessage / EventError, in emission order
	Forgets  []eval.Event // EventForget, in emission order
	Logs     []eval.Log
	Hold     *eval.Event // non-nil if the step suspended
	Next     eval.Next
	HaveNext bool
	HadError bool
}

// runStep spawns an Evaluator on its own goroutine for flow/stepCtx and
// drains its event channel to completion, grounded on the teacher's
// `pkg/queue/worker.go` shape: one goroutine runs the computation, the
// owning loop ranges over a channel and reacts once it closes (spec.md §5
// "one producer, one consumer, no shared mutable state between them").
func runStep(bot *ast.Bot, flow *ast.Flow, stepCtx ast.StepContext, scope *eval.Scope, trace *[]eval.Log, onMessage func(eval.Event)) stepOutcome {
	ev := eval.New(bot, 8)
	ev.DebugTrace = trace
	go ev.Run(flow, stepCtx, scope)

	var out stepOutcome
	for event := range ev.Events {
		switch event.Kind {
		case eval.EventMessage:
			out.Messages = append(out.Messages, event)
			if onMessage != nil {
				onMessage(event)
			}
		case eval.EventError:
			out.Messages = append(out.Messages, event)
			out.HadError = true
		case eval.EventForget:
			out.Forgets = append(out.Forgets, event)
		case eval.EventLog:
			out.Logs = append(out.Logs, event.Log)
		case eval.EventHold:
			e := event
			out.Hold = &e
		case eval.EventNext:
			out.Next = event.Next
			out.HaveNext = true
		}
	}
	return out
}
