package preflight

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/kickoff/internal/catalog"
)

type markerSet map[string]bool

func (m markerSet) Has(id string) bool { return m[id] }

func lookPathWith(tools ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, t := range tools {
			if t == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func task(id string, phase int, deps ...string) catalog.Task {
	return catalog.Task{ID: id, Phase: phase, Dependencies: deps, Implemented: true}
}

func TestCheckClean(t *testing.T) {
	git := task("git", 1)
	git.RequiredTools = []string{"git"}
	tasks := []catalog.Task{git, task("packages", 1, "git")}

	report := NewChecker(markerSet{}, WithLookPath(lookPathWith("git"))).Check(tasks)
	assert.False(t, report.HasBlocking())
	assert.Empty(t, report.Findings)
	assert.Equal(t, 2, report.Summary.Tasks)
}

// codex depends on claude; claude has no marker and is not scheduled.
func TestUnmetDependencyBlocks(t *testing.T) {
	tasks := []catalog.Task{task("codex", 3, "claude")}

	report := NewChecker(markerSet{"git": true}).Check(tasks)
	require.True(t, report.HasBlocking())
	findings := report.ForTask("codex")
	require.Len(t, findings, 1)
	assert.Equal(t, KindUnmetDependency, findings[0].Kind)
	assert.Equal(t, "claude", findings[0].Subject)
	assert.Equal(t, SeverityBlocking, findings[0].Severity)
	assert.Contains(t, report.BlockingSummary(), "claude")
}

func TestDependencySatisfiedByMarker(t *testing.T) {
	report := NewChecker(markerSet{"claude": true}).Check([]catalog.Task{task("codex", 3, "claude")})
	assert.False(t, report.HasBlocking())
}

func TestDependencyScheduledLaterBlocks(t *testing.T) {
	tasks := []catalog.Task{task("codex", 3, "claude"), task("claude", 3)}
	report := NewChecker(markerSet{}).Check(tasks)
	require.Len(t, report.Blocking(), 1)
	assert.Equal(t, KindDependencyOrder, report.Blocking()[0].Kind)
}

func TestMissingToolAndImplementation(t *testing.T) {
	node := task("node", 2)
	node.RequiredTools = []string{"node", "npm"}
	node.Implemented = false

	report := NewChecker(markerSet{}, WithLookPath(lookPathWith("npm"))).Check([]catalog.Task{node})
	kinds := []Kind{}
	for _, f := range report.Findings {
		kinds = append(kinds, f.Kind)
	}
	assert.Equal(t, []Kind{KindMissingTool, KindMissingImplementation}, kinds)
	assert.Equal(t, 2, report.Summary.Blocking)
}

func TestToolProbedOnce(t *testing.T) {
	calls := 0
	probe := func(string) (string, error) {
		calls++
		return "", errors.New("missing")
	}
	a := task("a", 1)
	a.RequiredTools = []string{"docker"}
	b := task("b", 1)
	b.RequiredTools = []string{"docker"}

	report := NewChecker(markerSet{}, WithLookPath(probe)).Check([]catalog.Task{a, b})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, report.Summary.Blocking)
}

func TestSoftDependencyIsAdvisory(t *testing.T) {
	lint := task("linting", 2)
	lint.SoftDependencies = []string{"editorconfig"}

	report := NewChecker(markerSet{}).Check([]catalog.Task{lint})
	assert.False(t, report.HasBlocking())
	require.Len(t, report.Findings, 1)
	assert.Equal(t, SeverityAdvisory, report.Findings[0].Severity)
	assert.Equal(t, 1, report.Summary.Advisory)

	report = NewChecker(markerSet{}).Check([]catalog.Task{task("editorconfig", 2), lint})
	assert.Empty(t, report.Findings)
}

func TestFindingsFollowTaskOrder(t *testing.T) {
	first := task("first", 1, "ghost")
	second := task("second", 1)
	second.Implemented = false

	report := NewChecker(markerSet{}).Check([]catalog.Task{first, second})
	require.Len(t, report.Findings, 2)
	assert.Equal(t, "first", report.Findings[0].TaskID)
	assert.Equal(t, "second", report.Findings[1].TaskID)
}
