package fsops

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Sink receives recorded operations.
type Sink interface {
	Record(Entry) error
	Entries() ([]Entry, error)
}

// MemorySink keeps entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Record(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemorySink) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// FileSink appends entries as JSON lines. Script tasks in a separate
// process share it through EnvOpsLog.
type FileSink struct {
	path string
	mu   sync.Mutex
}

// NewFileSink returns a sink appending to path. The file is created on
// first write.
func NewFileSink(path string) *FileSink { return &FileSink{path: path} }

// Path returns the log file.
func (s *FileSink) Path() string { return s.path }

func (s *FileSink) Record(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open ops log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("append ops log: %w", err)
	}
	return f.Close()
}

// Entries reads the log back. Unparseable lines are skipped; a log that
// cannot be opened or scanned is an error.
func (s *FileSink) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := ReadLog(s.path)
	if err != nil {
		return entries, fmt.Errorf("read ops log: %w", err)
	}
	return entries, nil
}

// ReadLog parses a JSONL operations log. A missing file has no entries.
func ReadLog(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil || e.Op == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// FromEnv returns a Recorder logging to $KICKOFF_OPS_LOG when it is set,
// and Real otherwise.
func FromEnv() Ops {
	if path := os.Getenv(EnvOpsLog); path != "" {
		return NewRecorder(NewFileSink(path))
	}
	return NewReal()
}
