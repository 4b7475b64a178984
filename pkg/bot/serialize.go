package bot

import (
	"encoding/json"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/cerr"
)

// Serialize renders a built *ast.Bot back to the JSON blob stored in
// bot_versions.bot-blob (spec.md §6 storage layout). It stores flow source
// text and manifest metadata, not the AST itself: pkg/parser re-derives the
// AST deterministically from source, so there is no need to teach the AST's
// interface-typed Statement/Expr trees to encoding/json (spec.md §9 "Global
// state" note's spirit applied to serialization: no hidden, hard-to-version
// binary AST format).
func Serialize(built *ast.Bot) ([]byte, error) {
	return marshalManifest(toManifest(built))
}

// Deserialize parses a version blob back into a runnable *ast.Bot,
// re-running the full parse+build+validate pipeline (spec.md §9 Open
// Question #2: a JSON-parse failure here is reported as a KindFormat error,
// never the original's unreachable!()).
func Deserialize(blob []byte) (*ast.Bot, []error) {
	var m Manifest
	if err := json.Unmarshal(blob, &m); err != nil {
		return nil, []error{cerr.Wrap(cerr.KindFormat, err, "decode bot version blob")}
	}
	return Build(&m)
}

func toManifest(b *ast.Bot) *Manifest {
	m := &Manifest{
		Name:                b.Name,
		DefaultFlow:         b.DefaultFlow,
		Env:                 b.Env,
		NoInterruptionDelay: b.NoInterruptionDelay,
		CustomComponents:    componentsToManifest(b.CustomComponents),
	}
	for _, mb := range b.Multibot {
		m.Multibot = append(m.Multibot, MultibotManifest{ID: mb.ID, Name: mb.Name})
	}
	for _, name := range b.FlowOrder {
		flow := b.Flows[name]
		m.Flows = append(m.Flows, FlowManifest{
			Name:     flow.Name,
			Commands: flow.Commands,
			Content:  flow.Content,
		})
	}
	return m
}
