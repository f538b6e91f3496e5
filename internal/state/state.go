// Package state persists bootstrap progress: the state document, one
// completion marker per task, and status detection over both.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/kickoff/internal/lock"
	"github.com/randalmurphal/kickoff/internal/util"
)

// CurrentVersion is the state document schema version.
const CurrentVersion = 1

// MaxHistory caps the session summaries kept in the document.
const MaxHistory = 20

// ActiveRun is present while an engine is executing tasks.
type ActiveRun struct {
	PID       int       `yaml:"pid" json:"pid"`
	SessionID string    `yaml:"session_id" json:"session_id"`
	StartedAt time.Time `yaml:"started_at" json:"started_at"`
	Task      string    `yaml:"task,omitempty" json:"task,omitempty"`
}

// SessionSummary is the persisted outcome of one run.
type SessionSummary struct {
	ID          string    `yaml:"id" json:"id"`
	Selector    string    `yaml:"selector" json:"selector"`
	Mode        string    `yaml:"mode" json:"mode"`
	StartedAt   time.Time `yaml:"started_at" json:"started_at"`
	FinishedAt  time.Time `yaml:"finished_at" json:"finished_at"`
	Total       int       `yaml:"total" json:"total"`
	Run         int       `yaml:"run" json:"run"`
	Failed      int       `yaml:"failed" json:"failed"`
	Skipped     int       `yaml:"skipped" json:"skipped"`
	Interrupted bool      `yaml:"interrupted,omitempty" json:"interrupted,omitempty"`
}

// Document is the single state document. It is always written whole.
type Document struct {
	Version         int        `yaml:"version"`
	LastFailed      string     `yaml:"last_failed,omitempty"`
	LastFailedAt    *time.Time `yaml:"last_failed_at,omitempty"`
	LastFailedError string     `yaml:"last_failed_error,omitempty"`
	LastSession     string     `yaml:"last_session,omitempty"`

	CompletedThisRun []string `yaml:"completed_this_run,omitempty"`
	FailedThisRun    []string `yaml:"failed_this_run,omitempty"`
	SkippedThisRun   []string `yaml:"skipped_this_run,omitempty"`

	Active  *ActiveRun       `yaml:"active,omitempty"`
	History []SessionSummary `yaml:"history,omitempty"`
}

// New returns an empty document.
func New() *Document {
	return &Document{Version: CurrentVersion}
}

// BeginSession clears the per-run lists and marks a run as active.
func (d *Document) BeginSession(sessionID string, pid int) {
	d.LastSession = sessionID
	d.CompletedThisRun = nil
	d.FailedThisRun = nil
	d.SkippedThisRun = nil
	d.Active = &ActiveRun{PID: pid, SessionID: sessionID, StartedAt: time.Now()}
}

// StartTask records the task currently executing.
func (d *Document) StartTask(taskID string) {
	if d.Active != nil {
		d.Active.Task = taskID
	}
}

// RecordSuccess records a completed task and clears a matching last failure.
func (d *Document) RecordSuccess(taskID string) {
	d.CompletedThisRun = appendUnique(d.CompletedThisRun, taskID)
	if d.LastFailed == taskID {
		d.ClearFailure()
	}
}

// RecordFailure records a failed task as the last failure.
func (d *Document) RecordFailure(taskID string, cause error) {
	now := time.Now()
	d.FailedThisRun = appendUnique(d.FailedThisRun, taskID)
	d.LastFailed = taskID
	d.LastFailedAt = &now
	d.LastFailedError = ""
	if cause != nil {
		d.LastFailedError = cause.Error()
	}
}

// RecordSkip records a skipped task.
func (d *Document) RecordSkip(taskID string) {
	d.SkippedThisRun = appendUnique(d.SkippedThisRun, taskID)
}

// ClearFailure forgets the last failure.
func (d *Document) ClearFailure() {
	d.LastFailed = ""
	d.LastFailedAt = nil
	d.LastFailedError = ""
}

// EndSession clears the active run and appends the summary to history.
func (d *Document) EndSession(summary SessionSummary) {
	d.Active = nil
	d.History = append(d.History, summary)
	if len(d.History) > MaxHistory {
		d.History = d.History[len(d.History)-MaxHistory:]
	}
}

// LastSummary returns the most recent session summary.
func (d *Document) LastSummary() (SessionSummary, bool) {
	if len(d.History) == 0 {
		return SessionSummary{}, false
	}
	return d.History[len(d.History)-1], true
}

// CheckInterrupted reports a run still marked active whose process is
// gone. A live PID is never reported, however long it has been running.
func (d *Document) CheckInterrupted() (*ActiveRun, bool) {
	if d.Active == nil || lock.Alive(d.Active.PID) {
		return nil, false
	}
	run := *d.Active
	return &run, true
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}

// Store reads and writes the state document.
type Store struct {
	path string
}

// NewStore returns a store for the document at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the document location.
func (s *Store) Path() string { return s.path }

// Exists reports whether the document has been written.
func (s *Store) Exists() bool { return util.FileExists(s.path) }

// Load reads the document. A missing document loads as New().
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	doc := New()
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", s.path, err)
	}
	if doc.Version > CurrentVersion {
		return nil, fmt.Errorf("state %s has version %d, newer than supported version %d", s.path, doc.Version, CurrentVersion)
	}
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	return doc, nil
}

// Save replaces the document on disk.
func (s *Store) Save(doc *Document) error {
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := util.AtomicWriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
