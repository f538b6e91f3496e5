package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		file string
		want ProjectType
	}{
		{"go.mod", ProjectTypeGo},
		{"pyproject.toml", ProjectTypePython},
		{"requirements.txt", ProjectTypePython},
		{"tsconfig.json", ProjectTypeTypeScript},
		{"package.json", ProjectTypeJavaScript},
		{"Cargo.toml", ProjectTypeRust},
		{"README.md", ProjectTypeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			dir := t.TempDir()
			write(t, dir, tt.file, "")
			if got := detectLanguage(dir); got != tt.want {
				t.Errorf("detectLanguage with %s = %s, want %s", tt.file, got, tt.want)
			}
		})
	}
}

func TestDetectGoFrameworks(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "go.mod", "module test\n\ngo 1.22\n\nrequire (\n\tgithub.com/spf13/cobra v1.8.0\n\tgithub.com/gin-gonic/gin v1.9.0\n)\n")

	assert.Equal(t, []Framework{FrameworkCobra, FrameworkGin}, detectFrameworks(dir, ProjectTypeGo))
}

func TestDetectJSFrameworks(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "package.json", `{"dependencies": {"next": "^14.0.0", "react": "^18.0.0"}, "devDependencies": {"vue": "3"}}`)

	assert.Equal(t, []Framework{FrameworkNextJS, FrameworkReact, FrameworkVue}, detectFrameworks(dir, ProjectTypeJavaScript))
}

func TestDetectJSFrameworksInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "package.json", `{"dependencies": `)

	assert.Empty(t, detectFrameworks(dir, ProjectTypeJavaScript))
}

func TestDetectPythonFrameworks(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "pyproject.toml", "[project]\nname = \"svc\"\ndependencies = [\"FastAPI>=0.110\", \"uvicorn[standard]\"]\n\n[tool.poetry.dependencies]\nDjango = \"^5\"\n")
	write(t, dir, "requirements.txt", "# pinned\nflask==3.0.0\n-r dev.txt\n")

	assert.Equal(t, []Framework{FrameworkDjango, FrameworkFastAPI, FrameworkFlask}, detectFrameworks(dir, ProjectTypePython))
}

func TestRequirementName(t *testing.T) {
	assert.Equal(t, "fastapi", requirementName("FastAPI>=0.110"))
	assert.Equal(t, "uvicorn", requirementName("uvicorn[standard]"))
	assert.Equal(t, "requests", requirementName("requests ; python_version > '3.8'"))
	assert.Equal(t, "flask", requirementName("flask"))
}

func TestDetectBuildTools(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "Makefile", "")
	write(t, dir, "package.json", "{}")
	write(t, dir, "pnpm-lock.yaml", "")
	write(t, dir, "uv.lock", "")

	assert.Equal(t, []BuildTool{BuildToolMake, BuildToolPnpm, BuildToolUV}, detectBuildTools(dir))
}

func TestDetectTests(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, detectTests(dir, ProjectTypeGo))

	write(t, dir, "internal/pkg/pkg_test.go", "package pkg\n")
	assert.True(t, detectTests(dir, ProjectTypeGo))

	py := t.TempDir()
	write(t, py, "tests/unit/test_api.py", "")
	assert.True(t, detectTests(py, ProjectTypePython))

	js := t.TempDir()
	write(t, js, "vitest.config.ts", "")
	assert.True(t, detectTests(js, ProjectTypeTypeScript))
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "package.json", `{"dependencies": {"express": "4"}}`)
	write(t, dir, "yarn.lock", "")
	write(t, dir, "Dockerfile", "FROM node\n")
	write(t, dir, ".github/workflows/ci.yml", "on: push\n")
	write(t, dir, "src/app.test.js", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))

	d, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, ProjectTypeJavaScript, d.Language)
	assert.Equal(t, []Framework{FrameworkExpress}, d.Frameworks)
	assert.Equal(t, []BuildTool{BuildToolYarn}, d.BuildTools)
	assert.True(t, d.HasGit)
	assert.True(t, d.HasDocker)
	assert.True(t, d.HasCI)
	assert.True(t, d.HasTests)
	assert.Equal(t, "yarn test", d.TestCommand)
	assert.Equal(t, "yarn run lint", d.LintCommand)
	assert.Equal(t, "javascript project with express", Describe(d))
}

func TestDetectEmptyDir(t *testing.T) {
	d, err := Detect(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ProjectTypeUnknown, d.Language)
	assert.Empty(t, d.TestCommand)
	assert.Equal(t, "unknown project type", Describe(d))
	assert.Equal(t, "unknown project type", Describe(nil))
}
