package progress

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/fsops"
	"github.com/randalmurphal/kickoff/internal/preflight"
	"github.com/randalmurphal/kickoff/internal/recommend"
	"github.com/randalmurphal/kickoff/internal/session"
	"github.com/randalmurphal/kickoff/internal/state"
)

var gitTask = catalog.Task{ID: "git", Phase: 1, Description: "Initialize git repository", Outputs: []string{".git/"}}

func TestTaskLines(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)

	d.TaskStart(gitTask, 0, 3)
	d.TaskComplete(gitTask, 1500*time.Millisecond)
	d.Suggestions(gitTask, []recommend.Suggestion{{TaskID: "packages"}, {TaskID: "claude"}})
	d.TaskSkipped(catalog.Task{ID: "linting"}, "upstream failed")
	d.TaskFailed(catalog.Task{ID: "packages"}, errors.New("npm missing"))

	out := buf.String()
	assert.Contains(t, out, "[1/3] git Initialize git repository")
	assert.Contains(t, out, "✓ git 1.5s")
	assert.Contains(t, out, "next: packages, claude")
	assert.Contains(t, out, "- linting skipped (upstream failed)")
	assert.Contains(t, out, "✗ packages: npm missing")
}

func TestQuietKeepsFailures(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, WithQuiet(true))

	d.TaskStart(gitTask, 0, 1)
	d.TaskComplete(gitTask, time.Second)
	d.TaskSkipped(gitTask, "declined")
	d.TaskFailed(gitTask, errors.New("boom"))

	assert.Equal(t, "  ✗ git: boom\n", buf.String())
}

func TestPhaseHeaders(t *testing.T) {
	cat, err := catalog.Parse("inline", []byte(`
phases:
  1: {name: Foundation, color: "33"}
  2: {name: Quality}
tasks:
  git:     {phase: 1, description: git}
  linting: {phase: 2, description: linting}
`))
	require.NoError(t, err)

	var buf bytes.Buffer
	d := New(&buf, WithCatalog(cat))
	git, _ := cat.Task("git")
	linting, _ := cat.Task("linting")
	d.TaskStart(git, 0, 2)
	d.TaskStart(git, 0, 2)
	d.TaskStart(linting, 1, 2)

	out := buf.String()
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("Phase 1: Foundation")))
	assert.Contains(t, out, "Phase 2: Quality")
}

func TestSummary(t *testing.T) {
	s := session.New("all", "auto-approve", 3)
	s.Record("git", session.OutcomeSucceeded, "", time.Second)
	s.Record("packages", session.OutcomeFailed, "exit 1", time.Second)
	s.Record("linting", session.OutcomeSkipped, "upstream failed", 0)

	var buf bytes.Buffer
	New(&buf).Summary(s, false)
	out := buf.String()
	assert.Contains(t, out, "✓ 1 succeeded")
	assert.Contains(t, out, "✗ 1 failed")
	assert.Contains(t, out, "- 1 skipped")
	assert.Contains(t, out, "kickoff repair status")
	assert.NotContains(t, out, "interrupted")

	clean := session.New("all", "auto-approve", 1)
	clean.Record("git", session.OutcomeSucceeded, "", time.Second)
	buf.Reset()
	New(&buf).Summary(clean, true)
	assert.NotContains(t, buf.String(), "repair status")
	assert.Contains(t, buf.String(), "interrupted")
}

func TestPreflight(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.Preflight(preflight.Report{})
	assert.Empty(t, buf.String())

	d.Preflight(preflight.Report{
		Findings: []preflight.Finding{
			{TaskID: "packages", Severity: preflight.SeverityBlocking, Message: "requires git which has not completed"},
			{TaskID: "linting", Severity: preflight.SeverityAdvisory, Message: "works best after formatting"},
		},
		Summary: preflight.Summary{Tasks: 2, Blocking: 1, Advisory: 1},
	})
	out := buf.String()
	assert.Contains(t, out, "✗ packages: requires git")
	assert.Contains(t, out, "⚠ linting: works best")
	assert.Contains(t, out, "1 blocking, 1 advisory")
}

func TestDryRun(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	d.DryRun(nil)
	assert.Empty(t, buf.String())

	empty := fsops.Analyze(nil)
	d.DryRun(&empty)
	assert.Contains(t, buf.String(), "no filesystem changes")

	buf.Reset()
	report := fsops.Analyze([]fsops.Entry{
		{Op: fsops.OpCreate, Path: "/p/.gitignore"},
		{Op: fsops.OpDelete, Path: "/p/old.txt"},
	})
	d.DryRun(&report)
	out := buf.String()
	assert.Contains(t, out, "create=1")
	assert.Contains(t, out, "delete=1")
	assert.Contains(t, out, "destructive: 1 high-risk")
	assert.Contains(t, out, "rollback plan:")
}

func TestStatus(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	New(&buf).Status(state.Report{
		Status:          state.StatusFailed,
		CatalogSize:     3,
		Completed:       []string{"git"},
		Pending:         []string{"packages", "linting"},
		Orphaned:        []string{"retired"},
		LastFailed:      "packages",
		LastFailedAt:    &at,
		LastFailedError: "exit status 2",
		LastSession:     &state.SessionSummary{Selector: "phase 1", Run: 1, Failed: 1},
	})
	out := buf.String()
	assert.Contains(t, out, "STATE failed")
	assert.Contains(t, out, "1/3 tasks complete")
	assert.Contains(t, out, "last failed: packages")
	assert.Contains(t, out, "exit status 2")
	assert.Contains(t, out, "next: packages")
	assert.Contains(t, out, "last run: phase 1 (1 succeeded, 1 failed, 0 skipped)")
	assert.Contains(t, out, "retired")
}

func TestConfirmPrompt(t *testing.T) {
	prompt := New(&bytes.Buffer{}).ConfirmPrompt(gitTask)
	assert.Contains(t, prompt, "git Initialize git repository")
	assert.Contains(t, prompt, "creates: .git/")
	assert.Contains(t, prompt, "[y/N]")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "2.0s", formatDuration(2*time.Second))
	assert.Equal(t, "1m05s", formatDuration(65*time.Second))
}
