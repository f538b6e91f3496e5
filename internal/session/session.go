// Package session records what happened to each task in one invocation.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome of one task in a session.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Skip reasons used by the engine.
const (
	ReasonUpstreamFailed  = "upstream failed"
	ReasonUpstreamSkipped = "upstream skipped"
	ReasonDeclined        = "declined"
	ReasonInterrupted     = "interrupted"
	ReasonDryRun          = "dry-run"
)

// Entry is the outcome of one task.
type Entry struct {
	TaskID  string        `json:"task_id" yaml:"task_id"`
	Outcome Outcome       `json:"outcome" yaml:"outcome"`
	Reason  string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	At      time.Time     `json:"at" yaml:"at"`
	Elapsed time.Duration `json:"elapsed,omitempty" yaml:"elapsed,omitempty"`
}

// Session is the per-invocation outcome record. Counters never exceed Total.
type Session struct {
	mu sync.Mutex

	ID        string
	Selector  string
	Mode      string
	Total     int
	StartedAt time.Time

	entries []Entry
	run     int
	failed  int
	skipped int
}

// New starts a session for total resolved tasks.
func New(selector, mode string, total int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Selector:  selector,
		Mode:      mode,
		Total:     total,
		StartedAt: time.Now(),
	}
}

// Record appends an outcome. Recording beyond Total is ignored so the
// counters stay bounded.
func (s *Session) Record(taskID string, outcome Outcome, reason string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) >= s.Total {
		return
	}
	s.entries = append(s.entries, Entry{
		TaskID:  taskID,
		Outcome: outcome,
		Reason:  reason,
		At:      time.Now(),
		Elapsed: elapsed,
	})
	switch outcome {
	case OutcomeSucceeded:
		s.run++
	case OutcomeFailed:
		s.failed++
	case OutcomeSkipped:
		s.skipped++
	}
}

// Entries returns the recorded outcomes in order.
func (s *Session) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Run is the number of tasks that succeeded.
func (s *Session) Run() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// Failed is the number of tasks that failed.
func (s *Session) Failed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// Skipped is the number of tasks that were skipped.
func (s *Session) Skipped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Outcome returns the recorded outcome of a task, if any.
func (s *Session) Outcome(taskID string) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.TaskID == taskID {
			return e.Outcome, true
		}
	}
	return "", false
}

// IDs returns the task ids with the given outcome, in order.
func (s *Session) IDs(outcome Outcome) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.entries {
		if e.Outcome == outcome {
			out = append(out, e.TaskID)
		}
	}
	return out
}

// Completed returns the set of task ids that succeeded.
func (s *Session) Completed() map[string]bool {
	out := make(map[string]bool)
	for _, id := range s.IDs(OutcomeSucceeded) {
		out[id] = true
	}
	return out
}
