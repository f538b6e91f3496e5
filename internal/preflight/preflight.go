// Package preflight checks that a resolved task list can run before the
// engine touches anything.
package preflight

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/randalmurphal/kickoff/internal/catalog"
)

// Severity of a finding. Blocking findings stop a non-forced run.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityAdvisory Severity = "advisory"
)

// Kind classifies a finding.
type Kind string

const (
	KindMissingTool           Kind = "missing_tool"
	KindMissingImplementation Kind = "missing_implementation"
	KindUnmetDependency       Kind = "unmet_dependency"
	KindDependencyOrder       Kind = "dependency_order"
	KindSoftDependency        Kind = "soft_dependency"
)

// Finding is one problem with one task.
type Finding struct {
	TaskID   string   `json:"task_id"`
	Severity Severity `json:"severity"`
	Kind     Kind     `json:"kind"`
	Subject  string   `json:"subject,omitempty"`
	Message  string   `json:"message"`
}

// Summary counts findings.
type Summary struct {
	Tasks    int `json:"tasks"`
	Blocking int `json:"blocking"`
	Advisory int `json:"advisory"`
}

// Report is the result of checking a task list.
type Report struct {
	Findings []Finding `json:"findings"`
	Summary  Summary   `json:"summary"`
}

// HasBlocking reports whether any finding is blocking.
func (r Report) HasBlocking() bool {
	return r.Summary.Blocking > 0
}

// ForTask returns the findings for one task.
func (r Report) ForTask(id string) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.TaskID == id {
			out = append(out, f)
		}
	}
	return out
}

// Blocking returns only the blocking findings.
func (r Report) Blocking() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Severity == SeverityBlocking {
			out = append(out, f)
		}
	}
	return out
}

// BlockingSummary is a one-line description of the blocking findings.
func (r Report) BlockingSummary() string {
	var parts []string
	for _, f := range r.Blocking() {
		parts = append(parts, fmt.Sprintf("%s: %s", f.TaskID, f.Message))
	}
	return strings.Join(parts, "; ")
}

// MarkerSet reports which tasks have completion markers.
type MarkerSet interface {
	Has(id string) bool
}

// Checker runs the preflight checks.
type Checker struct {
	markers  MarkerSet
	lookPath func(string) (string, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithLookPath replaces the PATH probe (exec.LookPath by default).
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Checker) { c.lookPath = fn }
}

// NewChecker creates a checker that consults markers for dependency state.
func NewChecker(markers MarkerSet, opts ...Option) *Checker {
	c := &Checker{
		markers:  markers,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check inspects tasks in execution order. A hard dependency is satisfied
// when it has a marker or is scheduled earlier in the same list.
func (c *Checker) Check(tasks []catalog.Task) Report {
	position := make(map[string]int, len(tasks))
	for i, t := range tasks {
		position[t.ID] = i
	}

	tools := make(map[string]bool)
	hasTool := func(name string) bool {
		ok, seen := tools[name]
		if !seen {
			_, err := c.lookPath(name)
			ok = err == nil
			tools[name] = ok
		}
		return ok
	}

	var report Report
	add := func(f Finding) {
		report.Findings = append(report.Findings, f)
		if f.Severity == SeverityBlocking {
			report.Summary.Blocking++
		} else {
			report.Summary.Advisory++
		}
	}

	for i, t := range tasks {
		for _, tool := range t.RequiredTools {
			if !hasTool(tool) {
				add(Finding{
					TaskID:   t.ID,
					Severity: SeverityBlocking,
					Kind:     KindMissingTool,
					Subject:  tool,
					Message:  fmt.Sprintf("required tool %q not found on PATH", tool),
				})
			}
		}

		for _, dep := range t.Dependencies {
			if c.markers.Has(dep) {
				continue
			}
			pos, scheduled := position[dep]
			switch {
			case scheduled && pos < i:
			case scheduled:
				add(Finding{
					TaskID:   t.ID,
					Severity: SeverityBlocking,
					Kind:     KindDependencyOrder,
					Subject:  dep,
					Message:  fmt.Sprintf("dependency %q is scheduled after this task", dep),
				})
			default:
				add(Finding{
					TaskID:   t.ID,
					Severity: SeverityBlocking,
					Kind:     KindUnmetDependency,
					Subject:  dep,
					Message:  fmt.Sprintf("dependency %q is not complete; run 'kickoff run %s' first", dep, dep),
				})
			}
		}

		for _, dep := range t.SoftDependencies {
			if c.markers.Has(dep) {
				continue
			}
			if pos, ok := position[dep]; ok && pos < i {
				continue
			}
			add(Finding{
				TaskID:   t.ID,
				Severity: SeverityAdvisory,
				Kind:     KindSoftDependency,
				Subject:  dep,
				Message:  fmt.Sprintf("recommended task %q has not run", dep),
			})
		}

		if !t.Implemented {
			add(Finding{
				TaskID:   t.ID,
				Severity: SeverityBlocking,
				Kind:     KindMissingImplementation,
				Message:  "no implementation found",
			})
		}
	}

	report.Summary.Tasks = len(tasks)
	sort.SliceStable(report.Findings, func(a, b int) bool {
		return position[report.Findings[a].TaskID] < position[report.Findings[b].TaskID]
	})
	return report
}
