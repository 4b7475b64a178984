package bot

import (
	"encoding/json"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/parser"
	"github.com/csml-run/csml-engine/pkg/value"
)

// Build parses every flow in m and assembles a validated *ast.Bot, or
// returns the accumulated build-time diagnostics (spec.md §4.2
// "Build-time validation"). Errors here abort version creation (spec.md §7
// "Build-time errors abort version creation").
func Build(m *Manifest) (*ast.Bot, []error) {
	components, cerrs := buildComponents(m.CustomComponents)
	if len(cerrs) > 0 {
		return nil, cerrs
	}

	sources := make([]parser.FlowSource, 0, len(m.Flows))
	for _, f := range m.Flows {
		sources = append(sources, parser.FlowSource{Name: f.Name, Content: f.Content})
	}

	built, errs := parser.BuildBot(m.Name, m.DefaultFlow, sources, components)
	if len(errs) > 0 {
		return nil, errs
	}

	built.Multibot = make([]ast.MultibotEntry, 0, len(m.Multibot))
	for _, mb := range m.Multibot {
		built.Multibot = append(built.Multibot, ast.MultibotEntry{ID: mb.ID, Name: mb.Name})
	}
	built.Env = m.Env
	built.NoInterruptionDelay = m.NoInterruptionDelay

	for _, f := range m.Flows {
		if flow, ok := built.Flows[f.Name]; ok {
			flow.Commands = f.Commands
		}
	}

	if _, ok := built.FlowByName(built.DefaultFlow); !ok {
		return nil, []error{cerr.New(cerr.KindParse, "default_flow %q does not exist", built.DefaultFlow)}
	}

	if errs := parser.Validate(built); len(errs) > 0 {
		return nil, errs
	}
	return built, nil
}

func buildComponents(manifests []ComponentManifest) (map[string]*ast.ComponentSchema, []error) {
	if len(manifests) == 0 {
		return nil, nil
	}
	var errs []error
	out := make(map[string]*ast.ComponentSchema, len(manifests))
	for _, cm := range manifests {
		schema := &ast.ComponentSchema{Name: cm.Name, Renders: cm.Renders}
		for _, fm := range cm.Fields {
			def := value.NewNull()
			if fm.Default != "" {
				v, err := value.FromJSON([]byte(fm.Default))
				if err != nil {
					errs = append(errs, cerr.Wrap(cerr.KindFormat, err, "component %q field %q default", cm.Name, fm.Name))
					continue
				}
				def = v
			}
			schema.Fields = append(schema.Fields, ast.ComponentField{
				Name:     fm.Name,
				Required: fm.Required,
				Default:  def,
				Union:    fm.Union,
			})
		}
		out[cm.Name] = schema
	}
	return out, errs
}

// componentsToManifest is the inverse of buildComponents, used when
// serializing a built *ast.Bot back to a Manifest for storage (see
// serialize.go).
func componentsToManifest(components map[string]*ast.ComponentSchema) []ComponentManifest {
	if len(components) == 0 {
		return nil
	}
	out := make([]ComponentManifest, 0, len(components))
	for _, schema := range components {
		cm := ComponentManifest{Name: schema.Name, Renders: schema.Renders}
		for _, f := range schema.Fields {
			def := ""
			if f.Default.Kind != value.Null {
				b, err := f.Default.MarshalJSON()
				if err == nil {
					def = string(b)
				}
			}
			cm.Fields = append(cm.Fields, ComponentFieldManifest{
				Name:     f.Name,
				Required: f.Required,
				Default:  def,
				Union:    f.Union,
			})
		}
		out = append(out, cm)
	}
	return out
}

// marshalManifest is a small helper kept here (rather than manifest.go) so
// the json tags documented on Manifest stay the single source of truth for
// the wire shape used by both bot.yaml (yaml) and version blobs (json).
func marshalManifest(m *Manifest) ([]byte, error) {
	return json.Marshal(m)
}
