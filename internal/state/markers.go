package state

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/kickoff/internal/util"
)

// MarkerExt is the suffix of completion marker files.
const MarkerExt = ".done"

// Marker records that a task completed.
type Marker struct {
	TaskID      string    `yaml:"task"`
	CompletedAt time.Time `yaml:"completed_at"`
	SessionID   string    `yaml:"session,omitempty"`
}

// Markers manages the completion marker directory.
type Markers struct {
	dir string
}

// NewMarkers returns a marker store rooted at dir.
func NewMarkers(dir string) *Markers {
	return &Markers{dir: dir}
}

// Dir returns the marker directory.
func (m *Markers) Dir() string { return m.dir }

func (m *Markers) path(id string) string {
	return filepath.Join(m.dir, id+MarkerExt)
}

// Has reports whether id has a marker.
func (m *Markers) Has(id string) bool {
	return util.FileExists(m.path(id))
}

// Write creates the marker for id. An existing marker is left untouched.
func (m *Markers) Write(id, sessionID string) error {
	if m.Has(id) {
		return nil
	}
	data, err := yaml.Marshal(Marker{TaskID: id, CompletedAt: time.Now().UTC(), SessionID: sessionID})
	if err != nil {
		return fmt.Errorf("marshal marker: %w", err)
	}
	if err := util.AtomicWriteFile(m.path(id), data, 0644); err != nil {
		return fmt.Errorf("write marker %s: %w", id, err)
	}
	return nil
}

// Read returns the marker for id.
func (m *Markers) Read(id string) (Marker, error) {
	data, err := os.ReadFile(m.path(id))
	if err != nil {
		return Marker{}, err
	}
	var mk Marker
	if err := yaml.Unmarshal(data, &mk); err != nil {
		return Marker{}, fmt.Errorf("parse marker %s: %w", id, err)
	}
	if mk.TaskID == "" {
		mk.TaskID = id
	}
	return mk, nil
}

// List returns the ids with markers, sorted.
func (m *Markers) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list markers: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), MarkerExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), MarkerExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Set returns the marker ids as a set.
func (m *Markers) Set() (map[string]bool, error) {
	ids, err := m.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// Remove deletes the marker for id, if present.
func (m *Markers) Remove(id string) error {
	err := os.Remove(m.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes every marker and returns how many were removed.
func (m *Markers) Clear() (int, error) {
	ids, err := m.List()
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := m.Remove(id); err != nil {
			return i, fmt.Errorf("remove marker %s: %w", id, err)
		}
	}
	return len(ids), nil
}
