package bot

import (
	"os"
	"path/filepath"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"gopkg.in/yaml.v3"
)

// ManifestFileName is the file a bot directory's root manifest must use
// (spec.md §6 CLI "init": "scaffold a bot directory").
const ManifestFileName = "bot.yaml"

// LoadDir reads dir/bot.yaml and every flow file it references, returning a
// Manifest with FlowManifest.Content populated.
func LoadDir(dir string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, ManifestFileName))
	if err != nil {
		return nil, cerr.Wrap(cerr.KindIO, err, "read %s", ManifestFileName)
	}

	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, cerr.Wrap(cerr.KindFormat, err, "parse %s", ManifestFileName)
	}

	for i, f := range m.Flows {
		content, err := os.ReadFile(filepath.Join(dir, f.File))
		if err != nil {
			return nil, cerr.Wrap(cerr.KindIO, err, "read flow file %q", f.File)
		}
		m.Flows[i].Content = string(content)
	}
	return &m, nil
}
