// Package recommend suggests what to run after a task completes.
//
// Suggestions are advisory. Nothing here feeds back into execution.
package recommend

import (
	"github.com/randalmurphal/kickoff/internal/catalog"
)

// MaxSuggestions is how many suggestions are shown after a task.
const MaxSuggestions = 3

// Source says which rule produced a suggestion.
type Source string

const (
	SourceDependent Source = "dependent"
	SourceTable     Source = "known-good"
	SourcePhase     Source = "same phase"
)

// Suggestion is one recommended next task.
type Suggestion struct {
	TaskID string
	Source Source
	Reason string
}

// DefaultNextSteps maps a task id to known-good follow-ups.
var DefaultNextSteps = map[string][]string{
	"git":          {"gitignore", "precommit", "editorconfig"},
	"packages":     {"linting", "formatting", "testing"},
	"editorconfig": {"formatting", "linting"},
	"linting":      {"formatting", "precommit"},
	"formatting":   {"precommit"},
	"testing":      {"coverage", "ci"},
	"docker":       {"compose", "ci"},
	"ci":           {"release"},
	"claude":       {"codex"},
}

// Engine builds suggestions from a catalog.
type Engine struct {
	catalog *catalog.Catalog
	table   map[string][]string
	limit   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTable replaces the known-good table.
func WithTable(table map[string][]string) Option {
	return func(e *Engine) { e.table = table }
}

// WithLimit changes the maximum number of suggestions. Zero means unlimited.
func WithLimit(n int) Option {
	return func(e *Engine) { e.limit = n }
}

// New creates a recommendation engine for cat.
func New(cat *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		catalog: cat,
		table:   DefaultNextSteps,
		limit:   MaxSuggestions,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Suggest returns de-duplicated suggestions for a completed task, in
// priority order: dependents, the known-good table, then the next task in
// the same phase. Tasks in done, the task itself and ids missing from the
// catalog are dropped.
func (e *Engine) Suggest(taskID string, done map[string]bool) []Suggestion {
	if e == nil || e.catalog == nil {
		return nil
	}
	seen := map[string]bool{taskID: true}
	var out []Suggestion
	add := func(id string, src Source, reason string) bool {
		if seen[id] || done[id] || !e.catalog.Has(id) {
			return true
		}
		seen[id] = true
		out = append(out, Suggestion{TaskID: id, Source: src, Reason: reason})
		return e.limit <= 0 || len(out) < e.limit
	}

	for _, dep := range e.catalog.Dependents(taskID) {
		if !add(dep.ID, SourceDependent, "depends on "+taskID) {
			return out
		}
	}
	for _, id := range e.table[taskID] {
		if !add(id, SourceTable, "commonly follows "+taskID) {
			return out
		}
	}
	if next, ok := e.nextInPhase(taskID); ok {
		add(next, SourcePhase, "next in phase")
	}
	return out
}

func (e *Engine) nextInPhase(taskID string) (string, bool) {
	task, ok := e.catalog.Task(taskID)
	if !ok {
		return "", false
	}
	found := false
	for _, t := range e.catalog.PhaseTasks(task.Phase) {
		if found {
			return t.ID, true
		}
		found = t.ID == taskID
	}
	return "", false
}
