package bot

import (
	"context"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

// Versions wraps store.BotVersions with the build/serialize step so callers
// work in terms of *ast.Bot rather than raw blobs (spec.md §3 Bot entity:
// "Created by create_bot_version; immutable thereafter").
type Versions struct {
	store         store.BotVersions
	engineVersion string
}

func NewVersions(s store.BotVersions, engineVersion string) *Versions {
	return &Versions{store: s, engineVersion: engineVersion}
}

// Create validates m, persists its serialized form, and returns the new
// version id. Build errors are returned without touching storage (spec.md
// §7 "Build-time errors abort version creation").
func (v *Versions) Create(ctx context.Context, botID string, m *Manifest) (string, *ast.Bot, []error) {
	built, errs := Build(m)
	if len(errs) > 0 {
		return "", nil, errs
	}
	blob, err := Serialize(built)
	if err != nil {
		return "", nil, []error{cerr.Wrap(cerr.KindSerde, err, "serialize bot")}
	}
	id, err := v.store.Create(ctx, botID, blob, v.engineVersion)
	if err != nil {
		return "", nil, []error{err}
	}
	return id, built, nil
}

// GetLast loads and rebuilds the most recently created version of botID
// (spec.md §4.4 "{bot_id} (latest)").
func (v *Versions) GetLast(ctx context.Context, botID string) (*ast.Bot, string, error) {
	row, err := v.store.GetLast(ctx, botID)
	if err != nil {
		return nil, "", err
	}
	if row == nil {
		return nil, "", cerr.New(cerr.KindManager, "no bot version found for bot %q", botID)
	}
	built, errs := Deserialize(row.Blob)
	if len(errs) > 0 {
		return nil, "", cerr.Wrap(cerr.KindFormat, errs[0], "rebuild bot %q version %q", botID, row.ID)
	}
	return built, row.ID, nil
}

// GetByVersionID loads and rebuilds a specific pinned version (spec.md §6
// "{bot_id, version_id} (pinned)").
func (v *Versions) GetByVersionID(ctx context.Context, versionID, botID string) (*ast.Bot, error) {
	row, err := v.store.GetByVersionID(ctx, versionID, botID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, cerr.New(cerr.KindManager, "bot version %q not found for bot %q", versionID, botID)
	}
	built, errs := Deserialize(row.Blob)
	if len(errs) > 0 {
		return nil, cerr.Wrap(cerr.KindFormat, errs[0], "rebuild bot %q version %q", botID, row.ID)
	}
	return built, nil
}
