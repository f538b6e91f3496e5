// Package detect identifies the language and tooling of an existing project.
// The result is recorded in the project config at init.
package detect

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
)

// ProjectType represents the detected project type.
type ProjectType string

const (
	ProjectTypeGo         ProjectType = "go"
	ProjectTypePython     ProjectType = "python"
	ProjectTypeTypeScript ProjectType = "typescript"
	ProjectTypeJavaScript ProjectType = "javascript"
	ProjectTypeRust       ProjectType = "rust"
	ProjectTypeUnknown    ProjectType = "unknown"
)

// Framework represents a detected framework.
type Framework string

const (
	FrameworkGin   Framework = "gin"
	FrameworkCobra Framework = "cobra"
	FrameworkEcho  Framework = "echo"

	FrameworkReact   Framework = "react"
	FrameworkNextJS  Framework = "nextjs"
	FrameworkVue     Framework = "vue"
	FrameworkSvelte  Framework = "svelte"
	FrameworkExpress Framework = "express"

	FrameworkFastAPI Framework = "fastapi"
	FrameworkFlask   Framework = "flask"
	FrameworkDjango  Framework = "django"
)

// BuildTool represents a detected build/package tool.
type BuildTool string

const (
	BuildToolMake   BuildTool = "make"
	BuildToolNPM    BuildTool = "npm"
	BuildToolYarn   BuildTool = "yarn"
	BuildToolPnpm   BuildTool = "pnpm"
	BuildToolBun    BuildTool = "bun"
	BuildToolPoetry BuildTool = "poetry"
	BuildToolUV     BuildTool = "uv"
	BuildToolPip    BuildTool = "pip"
	BuildToolCargo  BuildTool = "cargo"
)

// Detection contains the results of project detection.
type Detection struct {
	Language   ProjectType `yaml:"language" json:"language"`
	Frameworks []Framework `yaml:"frameworks,omitempty" json:"frameworks,omitempty"`
	BuildTools []BuildTool `yaml:"build_tools,omitempty" json:"build_tools,omitempty"`
	HasGit     bool        `yaml:"has_git" json:"has_git"`
	HasDocker  bool        `yaml:"has_docker" json:"has_docker"`
	HasCI      bool        `yaml:"has_ci" json:"has_ci"`
	HasTests   bool        `yaml:"has_tests" json:"has_tests"`

	TestCommand string `yaml:"test_command,omitempty" json:"test_command,omitempty"`
	LintCommand string `yaml:"lint_command,omitempty" json:"lint_command,omitempty"`
}

// Detect analyzes the project at path. A missing or empty directory
// yields an unknown project, not an error.
func Detect(path string) (*Detection, error) {
	d := &Detection{Language: detectLanguage(path)}
	d.Frameworks = detectFrameworks(path, d.Language)
	d.BuildTools = detectBuildTools(path)

	d.HasGit = exists(filepath.Join(path, ".git"))
	d.HasDocker = exists(filepath.Join(path, "Dockerfile")) ||
		exists(filepath.Join(path, "docker-compose.yml")) ||
		exists(filepath.Join(path, "docker-compose.yaml"))
	d.HasCI = exists(filepath.Join(path, ".github", "workflows")) ||
		exists(filepath.Join(path, ".gitlab-ci.yml")) ||
		exists(filepath.Join(path, ".circleci"))
	d.HasTests = detectTests(path, d.Language)

	d.TestCommand = inferTestCommand(d)
	d.LintCommand = inferLintCommand(d)
	return d, nil
}

func detectLanguage(path string) ProjectType {
	switch {
	case exists(filepath.Join(path, "go.mod")):
		return ProjectTypeGo
	case exists(filepath.Join(path, "pyproject.toml")),
		exists(filepath.Join(path, "setup.py")),
		exists(filepath.Join(path, "requirements.txt")):
		return ProjectTypePython
	case exists(filepath.Join(path, "tsconfig.json")):
		return ProjectTypeTypeScript
	case exists(filepath.Join(path, "package.json")):
		return ProjectTypeJavaScript
	case exists(filepath.Join(path, "Cargo.toml")):
		return ProjectTypeRust
	}
	return ProjectTypeUnknown
}

var (
	goFrameworks = map[string]Framework{
		"github.com/gin-gonic/gin": FrameworkGin,
		"github.com/spf13/cobra":   FrameworkCobra,
		"github.com/labstack/echo": FrameworkEcho,
	}
	jsFrameworks = map[string]Framework{
		"react":   FrameworkReact,
		"next":    FrameworkNextJS,
		"vue":     FrameworkVue,
		"svelte":  FrameworkSvelte,
		"express": FrameworkExpress,
	}
	pyFrameworks = map[string]Framework{
		"fastapi": FrameworkFastAPI,
		"flask":   FrameworkFlask,
		"django":  FrameworkDjango,
	}
)

func detectFrameworks(path string, lang ProjectType) []Framework {
	var found []Framework
	switch lang {
	case ProjectTypeGo:
		data, err := os.ReadFile(filepath.Join(path, "go.mod"))
		if err != nil {
			return nil
		}
		for mod, fw := range goFrameworks {
			if strings.Contains(string(data), mod) {
				found = append(found, fw)
			}
		}
	case ProjectTypeTypeScript, ProjectTypeJavaScript:
		deps := packageDependencies(path)
		for name, fw := range jsFrameworks {
			if deps[name] {
				found = append(found, fw)
			}
		}
	case ProjectTypePython:
		deps := pythonDependencies(path)
		for name, fw := range pyFrameworks {
			if deps[name] {
				found = append(found, fw)
			}
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
	return found
}

// packageDependencies returns the names in package.json dependencies and
// devDependencies.
func packageDependencies(path string) map[string]bool {
	data, err := os.ReadFile(filepath.Join(path, "package.json"))
	if err != nil || !gjson.ValidBytes(data) {
		return nil
	}
	deps := make(map[string]bool)
	for _, key := range []string{"dependencies", "devDependencies"} {
		gjson.GetBytes(data, key).ForEach(func(name, _ gjson.Result) bool {
			deps[name.String()] = true
			return true
		})
	}
	return deps
}

type pyproject struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// pythonDependencies collects lowercased distribution names from
// pyproject.toml (PEP 621 and poetry tables) and requirements.txt.
func pythonDependencies(path string) map[string]bool {
	deps := make(map[string]bool)
	var doc pyproject
	if _, err := toml.DecodeFile(filepath.Join(path, "pyproject.toml"), &doc); err == nil {
		for _, req := range doc.Project.Dependencies {
			deps[requirementName(req)] = true
		}
		for name := range doc.Tool.Poetry.Dependencies {
			deps[strings.ToLower(name)] = true
		}
	}
	if data, err := os.ReadFile(filepath.Join(path, "requirements.txt")); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
				continue
			}
			deps[requirementName(line)] = true
		}
	}
	return deps
}

// requirementName strips version specifiers, extras and markers.
func requirementName(req string) string {
	end := strings.IndexAny(req, " <>=!~[;@")
	if end >= 0 {
		req = req[:end]
	}
	return strings.ToLower(strings.TrimSpace(req))
}

func detectBuildTools(path string) []BuildTool {
	var tools []BuildTool
	if exists(filepath.Join(path, "Makefile")) {
		tools = append(tools, BuildToolMake)
	}
	if exists(filepath.Join(path, "package.json")) {
		switch {
		case exists(filepath.Join(path, "bun.lockb")), exists(filepath.Join(path, "bun.lock")):
			tools = append(tools, BuildToolBun)
		case exists(filepath.Join(path, "pnpm-lock.yaml")):
			tools = append(tools, BuildToolPnpm)
		case exists(filepath.Join(path, "yarn.lock")):
			tools = append(tools, BuildToolYarn)
		default:
			tools = append(tools, BuildToolNPM)
		}
	}
	switch {
	case exists(filepath.Join(path, "poetry.lock")):
		tools = append(tools, BuildToolPoetry)
	case exists(filepath.Join(path, "uv.lock")):
		tools = append(tools, BuildToolUV)
	case exists(filepath.Join(path, "requirements.txt")):
		tools = append(tools, BuildToolPip)
	}
	if exists(filepath.Join(path, "Cargo.toml")) {
		tools = append(tools, BuildToolCargo)
	}
	return tools
}

func detectTests(path string, lang ProjectType) bool {
	fsys := os.DirFS(path)
	var patterns []string
	switch lang {
	case ProjectTypeGo:
		patterns = []string{"**/*_test.go"}
	case ProjectTypeTypeScript, ProjectTypeJavaScript:
		patterns = []string{"{jest,vitest,playwright}.config.{js,ts,mjs}", "**/*.{test,spec}.{js,ts,jsx,tsx}"}
	case ProjectTypePython:
		patterns = []string{"pytest.ini", "conftest.py", "tests/**/test_*.py", "test_*.py"}
	case ProjectTypeRust:
		patterns = []string{"tests/*.rs"}
	}
	for _, p := range patterns {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err == nil && len(matches) > 0 {
			return true
		}
	}
	return false
}

func packageRunner(d *Detection) string {
	for _, tool := range d.BuildTools {
		switch tool {
		case BuildToolBun, BuildToolPnpm, BuildToolYarn, BuildToolNPM:
			return string(tool)
		}
	}
	return string(BuildToolNPM)
}

func inferTestCommand(d *Detection) string {
	switch d.Language {
	case ProjectTypeGo:
		return "go test ./..."
	case ProjectTypeTypeScript, ProjectTypeJavaScript:
		return packageRunner(d) + " test"
	case ProjectTypePython:
		return "pytest"
	case ProjectTypeRust:
		return "cargo test"
	}
	return ""
}

func inferLintCommand(d *Detection) string {
	switch d.Language {
	case ProjectTypeGo:
		return "golangci-lint run"
	case ProjectTypeTypeScript, ProjectTypeJavaScript:
		return packageRunner(d) + " run lint"
	case ProjectTypePython:
		return "ruff check ."
	case ProjectTypeRust:
		return "cargo clippy"
	}
	return ""
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Describe returns a one-line summary such as "go project with cobra".
func Describe(d *Detection) string {
	if d == nil || d.Language == ProjectTypeUnknown {
		return "unknown project type"
	}
	desc := string(d.Language) + " project"
	if len(d.Frameworks) > 0 {
		names := make([]string, len(d.Frameworks))
		for i, fw := range d.Frameworks {
			names[i] = string(fw)
		}
		desc += " with " + strings.Join(names, ", ")
	}
	return desc
}
