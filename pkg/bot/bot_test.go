package bot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csml-run/csml-engine/pkg/bot"
	"github.com/csml-run/csml-engine/pkg/store/memstore"
)

func greeterManifest() *bot.Manifest {
	return &bot.Manifest{
		Name:        "greeter",
		DefaultFlow: "main",
		Flows: []bot.FlowManifest{
			{Name: "main", File: "main.csml", Commands: []string{"hi"}, Content: `start: { say "hello" }`},
		},
	}
}

func TestBuildAssemblesBotFromManifest(t *testing.T) {
	built, errs := bot.Build(greeterManifest())
	require.Empty(t, errs)
	assert.Equal(t, "greeter", built.Name)
	assert.Equal(t, "main", built.DefaultFlow)
	flow, ok := built.FlowByName("main")
	require.True(t, ok)
	assert.Equal(t, []string{"hi"}, flow.Commands)
}

func TestBuildRejectsUnknownDefaultFlow(t *testing.T) {
	m := greeterManifest()
	m.DefaultFlow = "missing"
	_, errs := bot.Build(m)
	require.NotEmpty(t, errs)
}

func TestBuildRejectsParseErrors(t *testing.T) {
	m := greeterManifest()
	m.Flows[0].Content = `start: { this is not valid csml`
	_, errs := bot.Build(m)
	require.NotEmpty(t, errs)
}

func TestSerializeDeserializeRoundTrips(t *testing.T) {
	built, errs := bot.Build(greeterManifest())
	require.Empty(t, errs)

	blob, err := bot.Serialize(built)
	require.NoError(t, err)

	rebuilt, errs := bot.Deserialize(blob)
	require.Empty(t, errs)
	assert.Equal(t, built.Name, rebuilt.Name)
	assert.Equal(t, built.DefaultFlow, rebuilt.DefaultFlow)

	_, ok := rebuilt.FlowByName("main")
	assert.True(t, ok)
}

func TestDeserializeRejectsMalformedBlob(t *testing.T) {
	_, errs := bot.Deserialize([]byte("not json"))
	require.NotEmpty(t, errs)
}

func TestLoadDirReadsManifestAndFlowFiles(t *testing.T) {
	dir := t.TempDir()
	manifestYAML := "name: greeter\ndefault_flow: main\nflows:\n  - name: main\n    file: main.csml\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, bot.ManifestFileName), []byte(manifestYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.csml"), []byte(`start: { say "hi" }`), 0o644))

	m, err := bot.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, "greeter", m.Name)
	require.Len(t, m.Flows, 1)
	assert.Contains(t, m.Flows[0].Content, `say "hi"`)
}

func TestLoadDirErrorsOnMissingManifest(t *testing.T) {
	_, err := bot.LoadDir(t.TempDir())
	require.Error(t, err)
}

func TestVersionsCreateGetLastGetByVersionID(t *testing.T) {
	ms := memstore.New()
	versions := bot.NewVersions(ms.Facade().BotVersions, "test-engine")
	ctx := context.Background()

	id, built, errs := versions.Create(ctx, "greeter-bot", greeterManifest())
	require.Empty(t, errs)
	require.NotEmpty(t, id)
	assert.Equal(t, "greeter", built.Name)

	last, lastID, err := versions.GetLast(ctx, "greeter-bot")
	require.NoError(t, err)
	assert.Equal(t, id, lastID)
	assert.Equal(t, "greeter", last.Name)

	pinned, err := versions.GetByVersionID(ctx, id, "greeter-bot")
	require.NoError(t, err)
	assert.Equal(t, "greeter", pinned.Name)
}

func TestVersionsCreateReturnsBuildErrorsWithoutPersisting(t *testing.T) {
	ms := memstore.New()
	versions := bot.NewVersions(ms.Facade().BotVersions, "test-engine")

	m := greeterManifest()
	m.Flows[0].Content = `start: { this is not valid csml`
	_, _, errs := versions.Create(context.Background(), "greeter-bot", m)
	require.NotEmpty(t, errs)

	_, _, err := versions.GetLast(context.Background(), "greeter-bot")
	assert.Error(t, err)
}

func TestVersionsGetLastReportsManagerErrorWhenNoVersionExists(t *testing.T) {
	ms := memstore.New()
	versions := bot.NewVersions(ms.Facade().BotVersions, "test-engine")
	_, _, err := versions.GetLast(context.Background(), "nonexistent-bot")
	assert.Error(t, err)
}
