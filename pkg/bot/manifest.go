// Package bot assembles a parsed *ast.Bot from an on-disk bot directory
// (spec.md §6 CLI "init"/"run") or from a stored version blob, and wraps
// pkg/store.BotVersions with the (de)serialization the driver needs to go
// from a persisted blob back to a runnable AST.
//
// Grounded on the teacher's pkg/config loader (gopkg.in/yaml.v3 manifest,
// accumulate-all-errors validation) and on
// original_source/csml_engine/src/data/models.rs's CsmlBot/CsmlFlow shape
// (name, default_flow, flows[], multibot, env, no_interruption_delay).
package bot

// Manifest is the bot.yaml shape a bot directory or inline CsmlBot request
// carries (spec.md §6 "CsmlBot{…} (inline)").
type Manifest struct {
	Name                string               `yaml:"name" json:"name"`
	DefaultFlow         string               `yaml:"default_flow" json:"default_flow"`
	Flows               []FlowManifest       `yaml:"flows" json:"flows"`
	Multibot            []MultibotManifest   `yaml:"multibot,omitempty" json:"multibot,omitempty"`
	Env                 map[string]string    `yaml:"env,omitempty" json:"env,omitempty"`
	NoInterruptionDelay *int                 `yaml:"no_interruption_delay,omitempty" json:"no_interruption_delay,omitempty"`
	CustomComponents    []ComponentManifest  `yaml:"custom_components,omitempty" json:"custom_components,omitempty"`
}

// FlowManifest names one flow source file (relative to the bot directory)
// plus its trigger commands. Content is populated by LoadDir; it is never
// read from bot.yaml itself.
type FlowManifest struct {
	Name     string   `yaml:"name" json:"name"`
	File     string   `yaml:"file" json:"file"`
	Commands []string `yaml:"commands,omitempty" json:"commands,omitempty"`
	Content  string   `yaml:"-" json:"content"`
}

type MultibotManifest struct {
	ID   string `yaml:"id,omitempty" json:"id,omitempty"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

// ComponentManifest describes one native component's field contract; the
// Default field is carried as raw JSON text so the manifest format never
// needs a custom YAML tag for value.Value (see build.go for the decode).
type ComponentManifest struct {
	Name    string                   `yaml:"name" json:"name"`
	Renders string                   `yaml:"renders" json:"renders"`
	Fields  []ComponentFieldManifest `yaml:"fields,omitempty" json:"fields,omitempty"`
}

type ComponentFieldManifest struct {
	Name     string   `yaml:"name" json:"name"`
	Required bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Default  string   `yaml:"default,omitempty" json:"default,omitempty"` // JSON-encoded literal, "" = Null
	Union    []string `yaml:"union,omitempty" json:"union,omitempty"`
}
