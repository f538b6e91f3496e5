package bootstrap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/kickoff/internal/config"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
	"github.com/randalmurphal/kickoff/internal/state"
)

func TestRunCreatesStructure(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module test\n"), 0644))

	result, err := Run(Options{WorkDir: dir})
	require.NoError(t, err)

	paths := config.PathsFor(dir)
	assert.DirExists(t, paths.MarkersDir())
	assert.DirExists(t, paths.BackupsDir())
	assert.Equal(t, paths.ConfigFile(), result.ConfigPath)
	assert.False(t, result.Reinitialized)
	assert.True(t, result.GitignoreUpdated)

	cfg, err := config.LoadFrom(result.ConfigPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), cfg.Project.Name)
	assert.Equal(t, "go", cfg.Project.Language)
	assert.Equal(t, config.ModeConfirm, cfg.Execution.Mode)
	assert.Equal(t, "go", string(result.Detection.Language))
}

func TestRunMakesProjectInitialized(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, state.StatusNeverRun, state.Detect(state.Inputs{ConfigPresent: config.IsInitialized(dir)}))

	_, err := Run(Options{WorkDir: dir})
	require.NoError(t, err)
	assert.True(t, config.IsInitialized(dir))
	assert.Equal(t, state.StatusInitialized, state.Detect(state.Inputs{
		ConfigPresent: config.IsInitialized(dir),
		CatalogIDs:    []string{"git"},
	}))
}

func TestRunAlreadyInitialized(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(Options{WorkDir: dir})
	require.NoError(t, err)

	_, err = Run(Options{WorkDir: dir})
	require.Error(t, err)
	assert.True(t, kerrors.HasCode(err, kerrors.CodeAlreadyInitialized))
}

func TestRunForceKeepsSettingsAndState(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(Options{WorkDir: dir})
	require.NoError(t, err)

	paths := config.PathsFor(dir)
	cfg, err := config.LoadFrom(paths.ConfigFile())
	require.NoError(t, err)
	cfg.Backup.Keep = 3
	require.NoError(t, cfg.SaveTo(paths.ConfigFile()))
	require.NoError(t, state.NewMarkers(paths.MarkersDir()).Write("git", "s1"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\n"), 0644))
	result, err := Run(Options{WorkDir: dir, Force: true, Mode: config.ModeAutoApprove})
	require.NoError(t, err)
	assert.True(t, result.Reinitialized)
	assert.False(t, result.GitignoreUpdated)

	cfg, err = config.LoadFrom(paths.ConfigFile())
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Backup.Keep)
	assert.Equal(t, "rust", cfg.Project.Language)
	assert.Equal(t, config.ModeAutoApprove, cfg.Execution.Mode)
	assert.True(t, state.NewMarkers(paths.MarkersDir()).Has("git"))
}

func TestRunRejectsInvalidMode(t *testing.T) {
	_, err := Run(Options{WorkDir: t.TempDir(), Mode: "yolo"})
	assert.True(t, kerrors.HasCode(err, kerrors.CodeConfigInvalid))
}

func TestUpdateGitignore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("node_modules/\n.kickoff/run.pid\n"), 0644))

	updated, err := updateGitignore(dir)
	require.NoError(t, err)
	assert.True(t, updated)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "node_modules/\n.kickoff/run.pid\n\n# kickoff\n"))
	assert.Equal(t, 1, strings.Count(content, ".kickoff/run.pid"))
	assert.Contains(t, content, ".kickoff/backups/")
	assert.Contains(t, content, ".kickoff/state.yaml")

	updated, err = updateGitignore(dir)
	require.NoError(t, err)
	assert.False(t, updated)
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, string(again))
}
