// Package builtin holds the in-process implementations of the default
// catalog's tasks. Every task writes only through env.Ops, so dry runs
// record instead of mutate, and every task is safe to re-run.
package builtin

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/detect"
	"github.com/randalmurphal/kickoff/internal/runner"
	"github.com/randalmurphal/kickoff/templates"
)

// Tasks maps builtin task ids to their implementations.
var Tasks = map[string]runner.Func{
	"gitignore":     gitignore,
	"gitattributes": copyTemplate("files/gitattributes", ".gitattributes"),
	"editorconfig":  copyTemplate("files/editorconfig", ".editorconfig"),
	"precommit":     renderTemplate("files/pre-commit-config.yaml.tmpl", ".pre-commit-config.yaml"),
	"readme":        renderTemplate("files/README.md.tmpl", "README.md"),
}

// Register adds every builtin task to b. Scripts in the tasks directory
// cannot override them.
func Register(b *runner.Builtins) {
	for id, fn := range Tasks {
		b.Register(id, fn)
	}
}

// languageIgnore maps detected languages to gitignore templates.
var languageIgnore = map[detect.ProjectType]string{
	detect.ProjectTypeGo:         "go",
	detect.ProjectTypePython:     "python",
	detect.ProjectTypeTypeScript: "node",
	detect.ProjectTypeJavaScript: "node",
	detect.ProjectTypeRust:       "rust",
}

// gitignore merges the common and language rules into .gitignore, keeping
// existing lines and appending only missing ones.
func gitignore(_ context.Context, env runner.Env) error {
	facts := projectFacts(env.TargetDir)
	parts := []string{"files/gitignore/common.gitignore"}
	if name, ok := languageIgnore[detect.ProjectType(facts.Language)]; ok {
		parts = append(parts, "files/gitignore/"+name+".gitignore")
	}
	var want []string
	for _, p := range parts {
		data, err := fs.ReadFile(templates.Files, p)
		if err != nil {
			return fmt.Errorf("read template %s: %w", p, err)
		}
		want = append(want, strings.Split(string(data), "\n")...)
		want = append(want, "")
	}

	path := filepath.Join(env.TargetDir, ".gitignore")
	existing, err := env.Ops.ReadFile(path)
	if err != nil && env.Ops.Exists(path) {
		return fmt.Errorf("read .gitignore: %w", err)
	}
	merged, added := mergeLines(existing, want)
	if added == 0 {
		fmt.Fprintln(env.Stdout, ".gitignore already up to date")
		return nil
	}
	return env.Ops.WriteFile(path, merged, 0644)
}

// mergeLines appends the rules of want missing from existing. want is read
// as blank-line separated sections; a section's comments are written only
// when at least one of its rules is added.
func mergeLines(existing []byte, want []string) ([]byte, int) {
	have := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		have[strings.TrimSpace(line)] = true
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && !bytes.HasSuffix(existing, []byte("\n")) {
		buf.WriteByte('\n')
	}

	added := 0
	for _, section := range sections(want) {
		var comments, rules []string
		for _, line := range section {
			trimmed := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(trimmed, "#"):
				if !have[trimmed] {
					comments = append(comments, line)
				}
			case !have[trimmed]:
				rules = append(rules, line)
				have[trimmed] = true
			}
		}
		if len(rules) == 0 {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		for _, line := range append(comments, rules...) {
			buf.WriteString(line + "\n")
		}
		added += len(rules)
	}
	return buf.Bytes(), added
}

func sections(lines []string) [][]string {
	var out [][]string
	var cur []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// copyTemplate writes a static template unless the target already exists.
func copyTemplate(name, target string) runner.Func {
	return func(_ context.Context, env runner.Env) error {
		data, err := fs.ReadFile(templates.Files, name)
		if err != nil {
			return fmt.Errorf("read template %s: %w", name, err)
		}
		return writeIfMissing(env, target, data)
	}
}

// renderTemplate renders a text/template with the project facts unless the
// target already exists.
func renderTemplate(name, target string) runner.Func {
	return func(_ context.Context, env runner.Env) error {
		tmpl, err := template.ParseFS(templates.Files, name)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, projectFacts(env.TargetDir)); err != nil {
			return fmt.Errorf("render %s: %w", target, err)
		}
		return writeIfMissing(env, target, buf.Bytes())
	}
}

func writeIfMissing(env runner.Env, target string, data []byte) error {
	path := filepath.Join(env.TargetDir, target)
	if env.Ops.Exists(path) {
		fmt.Fprintf(env.Stdout, "%s exists, leaving it unchanged\n", target)
		return nil
	}
	return env.Ops.WriteFile(path, data, 0644)
}

// Facts are the template inputs for one project.
type Facts struct {
	Name        string
	Language    string
	Description string
	TestCommand string
	LintCommand string
}

// projectFacts combines the project config with a fresh detection. The
// config wins for name and language when it sets them.
func projectFacts(dir string) Facts {
	facts := Facts{Name: filepath.Base(dir)}
	d, err := detect.Detect(dir)
	if err == nil {
		desc := detect.Describe(d)
		facts.Language = string(d.Language)
		facts.Description = strings.ToUpper(desc[:1]) + desc[1:] + "."
		facts.TestCommand = d.TestCommand
		facts.LintCommand = d.LintCommand
	}
	if cfg, err := config.LoadFrom(config.PathsFor(dir).ConfigFile()); err == nil {
		if cfg.Project.Name != "" {
			facts.Name = cfg.Project.Name
		}
		if cfg.Project.Language != "" {
			facts.Language = cfg.Project.Language
		}
	}
	return facts
}
