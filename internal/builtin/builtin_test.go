package builtin

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/fsops"
	"github.com/randalmurphal/kickoff/internal/runner"
	"github.com/randalmurphal/kickoff/templates"
)

func newEnv(t *testing.T, dir string, ops fsops.Ops) (runner.Env, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	if ops == nil {
		ops = fsops.NewReal()
	}
	return runner.Env{TaskID: "test", TargetDir: dir, Ops: ops, Stdout: &out, Stderr: &out}, &out
}

func TestDefaultCatalogIsImplemented(t *testing.T) {
	cat, err := catalog.Parse("catalog.yaml", templates.Catalog)
	require.NoError(t, err)

	b := runner.NewBuiltins()
	Register(b)
	for _, task := range cat.Tasks() {
		_, ok := b.Lookup(task.ID)
		assert.True(t, ok, "no builtin for %s", task.ID)
	}
	assert.Len(t, Tasks, cat.Len())
}

func TestGitignoreForGoProject(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0644))
	env, out := newEnv(t, dir, nil)

	require.NoError(t, gitignore(context.Background(), env))
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), ".DS_Store\n")
	assert.Contains(t, string(data), "# Go\n/bin/\n")
	assert.NotContains(t, string(data), "node_modules/")

	require.NoError(t, gitignore(context.Background(), env))
	again, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
	assert.Contains(t, out.String(), "already up to date")
}

func TestGitignoreKeepsExistingRules(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".gitignore"), []byte("node_modules/\n.env"), 0644))
	env, _ := newEnv(t, dir, nil)

	require.NoError(t, gitignore(context.Background(), env))
	data, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "node_modules/\n.env\n\n"))
	assert.Equal(t, 1, strings.Count(content, "node_modules/"))
	assert.Equal(t, 1, strings.Count(content, ".env\n"))
	assert.Contains(t, content, "# Environment\n.env.*\n")
	assert.Contains(t, content, "# Node\ndist/\n")
}

func TestMergeLines(t *testing.T) {
	merged, added := mergeLines(nil, []string{"# A", "a", "", "# B", "b", ""})
	assert.Equal(t, 2, added)
	assert.Equal(t, "# A\na\n\n# B\nb\n", string(merged))

	merged, added = mergeLines([]byte("a\n"), []string{"# A", "a", "", "# B", "b"})
	assert.Equal(t, 1, added)
	assert.Equal(t, "a\n\n# B\nb\n", string(merged))
}

func TestDryRunRecordsOnly(t *testing.T) {
	dir := t.TempDir()
	sink := fsops.NewMemorySink()
	env, _ := newEnv(t, dir, fsops.NewRecorder(sink))

	for _, id := range []string{"gitignore", "editorconfig", "readme"} {
		require.NoError(t, Tasks[id](context.Background(), env), id)
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	recorded, err := sink.Entries()
	require.NoError(t, err)
	require.Len(t, recorded, 3)
	for _, e := range recorded {
		assert.Equal(t, fsops.OpCreate, e.Op)
	}
}

func TestWriteIfMissingLeavesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".editorconfig")
	require.NoError(t, os.WriteFile(path, []byte("root = false\n"), 0644))
	env, out := newEnv(t, dir, nil)

	require.NoError(t, Tasks["editorconfig"](context.Background(), env))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "root = false\n", string(data))
	assert.Contains(t, out.String(), "leaving it unchanged")
}

func TestReadmeUsesProjectConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Project.Name = "demo"
	require.NoError(t, cfg.SaveTo(config.PathsFor(dir).ConfigFile()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module demo\n"), 0644))
	env, _ := newEnv(t, dir, nil)

	require.NoError(t, Tasks["readme"](context.Background(), env))
	data, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.HasPrefix(content, "# demo\n"))
	assert.Contains(t, content, "Go project.")
	assert.Contains(t, content, "go test ./...")
}

func TestPrecommitFollowsLanguage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("[project]\nname = \"x\"\n"), 0644))
	env, _ := newEnv(t, dir, nil)

	require.NoError(t, Tasks["precommit"](context.Background(), env))
	data, err := os.ReadFile(filepath.Join(dir, ".pre-commit-config.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "ruff-pre-commit")
	assert.NotContains(t, string(data), "golangci")
}
