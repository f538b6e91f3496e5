package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

// isolateHome points KICKOFF_HOME and HOME at empty directories so a real
// user config never leaks into a test.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	t.Setenv("HOME", home)
	t.Setenv(HomeEnvVar, filepath.Join(home, ".kickoff"))
	for env := range EnvVarMapping {
		t.Setenv(env, "")
	}
	return home
}

func writeProjectConfig(t *testing.T, root, content string) {
	t.Helper()
	path := PathsFor(root).ConfigFile()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeConfirm, cfg.Execution.Mode)
	assert.Equal(t, 10, cfg.Backup.Keep)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad mode", func(c *Config) { c.Execution.Mode = "yolo" }, "execution.mode"},
		{"negative keep", func(c *Config) { c.Backup.Keep = -1 }, "backup.keep"},
		{"negative timeout", func(c *Config) { c.Execution.PrescanTimeout = -time.Second }, "execution.prescan_timeout"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, kerrors.HasCode(err, kerrors.CodeConfigInvalid))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".kickoff", "config.yaml")

	cfg := Default()
	cfg.Project.Name = "demo"
	cfg.Execution.PrescanTimeout = 5 * time.Second
	cfg.Backup.Include = []string{"Makefile"}
	require.NoError(t, cfg.SaveTo(path))

	loaded, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromMissingReturnsDefault(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestRequireInit(t *testing.T) {
	root := t.TempDir()
	err := RequireInit(root)
	require.Error(t, err)
	assert.True(t, kerrors.HasCode(err, kerrors.CodeNotInitialized))
	assert.False(t, IsInitialized(root))

	writeProjectConfig(t, root, "version: 1\n")
	assert.NoError(t, RequireInit(root))
	assert.True(t, IsInitialized(root))
}

func TestCatalogAndTasksPaths(t *testing.T) {
	isolateHome(t)
	t.Setenv(HomeEnvVar, "/opt/kickoff")
	root := "/work/project"

	cfg := Default()
	assert.Equal(t, "/opt/kickoff/catalog.yaml", cfg.CatalogPath(root))
	assert.Equal(t, "/opt/kickoff/tasks", cfg.TasksPath(root))

	cfg.Catalog = "catalog.yaml"
	cfg.TasksDir = "/srv/tasks"
	assert.Equal(t, "/work/project/catalog.yaml", cfg.CatalogPath(root))
	assert.Equal(t, "/srv/tasks", cfg.TasksPath(root))
}

func TestLoadWithSources_DefaultsOnly(t *testing.T) {
	isolateHome(t)

	tc, err := LoadWithSources(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ModeConfirm, tc.Config.Execution.Mode)
	for _, key := range ConfigPaths() {
		assert.Equal(t, SourceDefault, tc.GetSource(key), key)
	}
}

func TestLoadWithSources_Layers(t *testing.T) {
	home := isolateHome(t)
	root := t.TempDir()

	userDir := filepath.Join(home, ".kickoff")
	require.NoError(t, os.MkdirAll(userDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "config.yaml"), []byte(`
catalog: /home/me/catalog.yaml
logging:
  level: info
`), 0644))

	writeProjectConfig(t, root, `
project:
  name: demo
execution:
  mode: auto-approve
logging:
  level: debug
`)
	t.Setenv("KICKOFF_BACKUP_KEEP", "3")

	tc, err := LoadWithSources(root)
	require.NoError(t, err)

	assert.Equal(t, "/home/me/catalog.yaml", tc.Config.Catalog)
	assert.Equal(t, SourceUser, tc.GetSource("catalog"))

	assert.Equal(t, "debug", tc.Config.Logging.Level)
	assert.Equal(t, SourceProject, tc.GetSource("logging.level"))
	assert.Equal(t, ModeAutoApprove, tc.Config.Execution.Mode)
	assert.Equal(t, PathsFor(root).ConfigFile(), tc.GetTrackedSource("execution.mode").Path)

	assert.Equal(t, 3, tc.Config.Backup.Keep)
	assert.Equal(t, SourceEnv, tc.GetSource("backup.keep"))

	assert.Equal(t, SourceDefault, tc.GetSource("execution.shell"))
}

func TestLoadWithSources_InvalidProjectConfigIsFatal(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()
	writeProjectConfig(t, root, "execution: [unclosed\n")

	_, err := LoadWithSources(root)
	assert.Error(t, err)
}

func TestLoadWithSources_RejectsInvalidValues(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()
	writeProjectConfig(t, root, "execution:\n  mode: sometimes\n")

	_, err := LoadWithSources(root)
	require.Error(t, err)
	assert.True(t, kerrors.HasCode(err, kerrors.CodeConfigInvalid))
}

func TestApplyEnvVars(t *testing.T) {
	isolateHome(t)
	t.Setenv("KICKOFF_MODE", "dry-run")
	t.Setenv("KICKOFF_PRESCAN_TIMEOUT", "750ms")
	t.Setenv("KICKOFF_BACKUP_KEEP", "not-a-number")

	tc := NewTrackedConfig()
	overridden := ApplyEnvVars(tc)

	assert.Equal(t, []string{"execution.mode", "execution.prescan_timeout"}, overridden)
	assert.Equal(t, ModeDryRun, tc.Config.Execution.Mode)
	assert.Equal(t, 750*time.Millisecond, tc.Config.Execution.PrescanTimeout)
	assert.Equal(t, 10, tc.Config.Backup.Keep, "unparseable value must be ignored")
}

func TestTrackedSourceString(t *testing.T) {
	assert.Equal(t, "env", TrackedSource{Source: SourceEnv}.String())
	assert.Equal(t, "project: /p/.kickoff/config.yaml",
		TrackedSource{Source: SourceProject, Path: "/p/.kickoff/config.yaml"}.String())
}

func TestValueMirrorsSetValue(t *testing.T) {
	cfg := Default()
	for path, value := range map[string]string{
		"catalog":                   "/srv/catalog.yaml",
		"execution.mode":            "auto-approve",
		"execution.prescan_timeout": "1.5s",
		"backup.keep":               "4",
		"backup.include":            "Justfile,docs/*.md",
		"logging.level":             "debug",
	} {
		require.True(t, SetValue(cfg, path, value), path)
		assert.Equal(t, value, Value(cfg, path), path)
	}
	assert.Equal(t, []string{"Justfile", "docs/*.md"}, cfg.Backup.Include)
	assert.Equal(t, "1", Value(cfg, "version"))
	assert.Empty(t, Value(cfg, "no.such.key"))
}
