package driver

import (
	"math/rand/v2"
	"regexp"
	"strings"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/eval"
)

// lookupFlow finds a flow by id or name, case-insensitively, mirroring
// original_source/csml_engine/src/future/utils.rs get_flow_by_id.
func lookupFlow(bot *ast.Bot, idOrName string) (*ast.Flow, bool) {
	want := strings.ToLower(idOrName)
	for _, name := range bot.FlowOrder {
		flow := bot.Flows[name]
		if strings.ToLower(flow.Name) == want || strings.ToLower(flow.ID) == want {
			return flow, true
		}
	}
	return nil, false
}

func defaultFlow(bot *ast.Bot) (*ast.Flow, error) {
	if flow, ok := lookupFlow(bot, bot.DefaultFlow); ok {
		return flow, nil
	}
	return nil, cerr.New(cerr.KindInterpret, "the bot's default_flow does not exist")
}

// selectStart implements spec.md §4.4 "Selecting start": flow_trigger
// events always pick a fresh (flow, step) and clear any pending hold;
// regex/exact-match events do the same when a command matches. When
// nothing matches, a pending hold is resumed (clearHold=false, flow/step
// empty: the caller falls back to the hold's own position); with neither a
// match nor a hold, a brand-new client (no prior conversation at all) has
// nothing to resume, so it falls back to the bot's default flow exactly as
// a fresh flow_trigger would — only a client with an existing, hold-less
// conversation that fails to match anything is a genuine error (spec.md §8
// scenario D; DESIGN.md documents this as the resolution of an otherwise
// underspecified interaction with scenario A, where the very first message
// to a brand-new client matches no command at all).
func selectStart(bot *ast.Bot, contentType string, content map[string]any, hasHold, isNewClient bool) (flow, step string, clearHold bool, err error) {
	switch contentType {
	case "flow_trigger":
		flowID, _ := content["flow_id"].(string)
		stepID, hasStep := content["step_id"].(string)
		if f, ok := lookupFlow(bot, flowID); ok {
			if hasStep && stepID != "" {
				return f.Name, stepID, true, nil
			}
			return f.Name, "start", true, nil
		}
		def, derr := defaultFlow(bot)
		if derr != nil {
			return "", "", true, derr
		}
		return def.Name, "start", true, nil

	case "regex":
		value := eval.ContentValue(contentType, content)
		matches := matchingFlows(bot, value, true)
		if len(matches) == 0 {
			return noMatchFallback(bot, hasHold, isNewClient, "no match found for regex: %s", value)
		}
		return matches[rand.IntN(len(matches))].Name, "start", true, nil

	default:
		value := eval.ContentValue(contentType, content)
		matches := matchingFlows(bot, value, false)
		if len(matches) == 0 {
			return noMatchFallback(bot, hasHold, isNewClient, "flow %q does not exist", value)
		}
		return matches[rand.IntN(len(matches))].Name, "start", true, nil
	}
}

func noMatchFallback(bot *ast.Bot, hasHold, isNewClient bool, errFormat, errArg string) (flow, step string, clearHold bool, err error) {
	if hasHold {
		return "", "", false, nil
	}
	if isNewClient {
		def, derr := defaultFlow(bot)
		if derr != nil {
			return "", "", true, derr
		}
		return def.Name, "start", true, nil
	}
	return "", "", false, cerr.New(cerr.KindInterpret, errFormat, errArg)
}

func matchingFlows(bot *ast.Bot, value string, isRegex bool) []*ast.Flow {
	var out []*ast.Flow
	for _, name := range bot.FlowOrder {
		flow := bot.Flows[name]
		for _, cmd := range flow.Commands {
			if isRegex {
				if matchRegexCommand(value, cmd) {
					out = append(out, flow)
					break
				}
			} else if eval.NormalizeCommand(cmd) == eval.NormalizeCommand(value) {
				out = append(out, flow)
				break
			}
		}
	}
	return out
}

// matchRegexCommand tests cmd (the flow's declared trigger string) against
// value (the event's content_value) as a regular expression, matching the
// original's own `Regex::new(&event.content_value).is_match(cmd)` —
// perhaps counter-intuitively, the *event payload* is the pattern and the
// flow's command is the candidate string.
func matchRegexCommand(pattern, candidate string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(candidate)
}
