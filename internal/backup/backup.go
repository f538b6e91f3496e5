// Package backup snapshots, verifies, restores and prunes the project's
// critical files.
//
// A snapshot lives in .kickoff/backups/<id>/ as a files/ tree mirroring the
// project plus a metadata.json. Snapshots are never modified after creation;
// they are only deleted by Prune.
package backup

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/blake3"

	"github.com/randalmurphal/kickoff/internal/config"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
	"github.com/randalmurphal/kickoff/internal/util"
)

const (
	// IDLayout is the timestamp layout of snapshot ids.
	IDLayout = "20060102-150405"

	metadataFile = "metadata.json"
	filesDir     = "files"
)

// RequiredFiles must be present for a snapshot to be complete.
var RequiredFiles = []string{
	filepath.ToSlash(filepath.Join(config.KickoffDir, config.ConfigFileName)),
}

// DefaultCriticalFiles is the fixed critical-file set. Entries are
// doublestar patterns relative to the project root.
var DefaultCriticalFiles = []string{
	".kickoff/config.yaml",
	".kickoff/state.yaml",
	".kickoff/markers/*.done",
	".gitignore",
	".gitattributes",
	".editorconfig",
	".pre-commit-config.yaml",
	".flake8",
	".pylintrc",
	"setup.cfg",
	"tox.ini",
	"package.json",
	"go.mod",
	"pyproject.toml",
	"Cargo.toml",
	"Makefile",
	"Dockerfile",
	"docker-compose.yml",
	".github/workflows/*.yml",
	".github/workflows/*.yaml",
	".vscode/settings.json",
}

// FileEntry describes one captured file.
type FileEntry struct {
	Path   string      `json:"path"`
	Size   int64       `json:"size"`
	Mode   fs.FileMode `json:"mode"`
	Blake3 string      `json:"blake3"`
}

// Metadata is stored next to the captured files.
type Metadata struct {
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	User      string      `json:"user,omitempty"`
	Host      string      `json:"host,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Files     []FileEntry `json:"files"`
	// Missing lists literal critical paths that did not exist.
	Missing []string `json:"missing,omitempty"`
	// Failed lists files that existed but could not be copied.
	Failed []string `json:"failed,omitempty"`
}

// Manager owns the snapshots of one project.
type Manager struct {
	root     string
	dir      string
	pidFile  string
	patterns []string
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithInclude appends patterns to the critical-file set.
func WithInclude(patterns ...string) Option {
	return func(m *Manager) { m.patterns = append(m.patterns, patterns...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a manager for the project at root.
func NewManager(paths config.Paths, opts ...Option) *Manager {
	m := &Manager{
		root:     paths.Root,
		dir:      paths.BackupsDir(),
		pidFile:  paths.PIDFile(),
		patterns: append([]string(nil), DefaultCriticalFiles...),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	valid := m.patterns[:0]
	for _, p := range m.patterns {
		if !doublestar.ValidatePattern(p) {
			m.logger.Warn("ignoring invalid backup pattern", "pattern", p)
			continue
		}
		valid = append(valid, p)
	}
	m.patterns = valid
	return m
}

// Dir returns the backups directory.
func (m *Manager) Dir() string { return m.dir }

// Patterns returns the critical-file patterns.
func (m *Manager) Patterns() []string { return append([]string(nil), m.patterns...) }

// CriticalFiles expands the patterns against the project. It returns the
// matching regular files and the literal paths that are absent, both sorted.
func (m *Manager) CriticalFiles() (present, missing []string, err error) {
	fsys := os.DirFS(m.root)
	seen := make(map[string]bool)
	for _, pattern := range m.patterns {
		if !hasMeta(pattern) {
			info, statErr := os.Stat(filepath.Join(m.root, filepath.FromSlash(pattern)))
			if statErr != nil || !info.Mode().IsRegular() {
				missing = append(missing, pattern)
				continue
			}
			if !seen[pattern] {
				seen[pattern] = true
				present = append(present, pattern)
			}
			continue
		}
		matches, globErr := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if globErr != nil {
			return nil, nil, fmt.Errorf("expand %s: %w", pattern, globErr)
		}
		for _, match := range matches {
			if strings.HasPrefix(match, config.KickoffDir+"/"+config.BackupsDirName+"/") || seen[match] {
				continue
			}
			seen[match] = true
			present = append(present, match)
		}
	}
	sort.Strings(present)
	sort.Strings(missing)
	return present, missing, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// CreateSnapshot copies the critical files into a new snapshot and returns
// its metadata. A SNAPSHOT_CAPTURE_INCOMPLETE warning is returned alongside
// a usable snapshot when required files are absent or some copies failed.
func (m *Manager) CreateSnapshot(reason string) (Metadata, error) {
	present, missing, err := m.CriticalFiles()
	if err != nil {
		return Metadata{}, err
	}

	id, dir, err := m.reserveID()
	if err != nil {
		return Metadata{}, err
	}

	meta := Metadata{
		ID:        id,
		CreatedAt: m.now().UTC(),
		User:      currentUser(),
		Host:      hostname(),
		Reason:    reason,
		Files:     []FileEntry{},
		Missing:   missing,
	}

	for _, rel := range present {
		entry, err := m.capture(dir, rel)
		if err != nil {
			m.logger.Warn("snapshot capture failed", "snapshot", id, "path", rel, "error", err)
			meta.Failed = append(meta.Failed, rel)
			continue
		}
		meta.Files = append(meta.Files, entry)
	}

	if err := writeMetadata(dir, meta); err != nil {
		_ = os.RemoveAll(dir)
		return Metadata{}, err
	}
	m.logger.Info("snapshot created", "snapshot", id, "files", len(meta.Files), "reason", reason)

	if incomplete := meta.incomplete(); len(incomplete) > 0 {
		m.logger.Warn("snapshot incomplete", "snapshot", id, "paths", incomplete)
		return meta, kerrors.ErrSnapshotCaptureIncomplete(id, incomplete)
	}
	return meta, nil
}

func (meta Metadata) incomplete() []string {
	var out []string
	for _, req := range RequiredFiles {
		for _, miss := range meta.Missing {
			if miss == req {
				out = append(out, req)
			}
		}
	}
	return append(out, meta.Failed...)
}

// reserveID creates the snapshot directory. Mkdir fails on an existing
// directory, so two snapshots never share an id.
func (m *Manager) reserveID() (string, string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", "", fmt.Errorf("create backups dir: %w", err)
	}
	base := m.now().Format(IDLayout)
	for n := 0; ; n++ {
		id := base
		if n > 0 {
			id = base + "-" + strconv.Itoa(n)
		}
		dir := filepath.Join(m.dir, id)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return id, dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("create snapshot dir: %w", err)
		}
	}
}

func (m *Manager) capture(dir, rel string) (FileEntry, error) {
	src := filepath.Join(m.root, filepath.FromSlash(rel))
	dst := filepath.Join(dir, filesDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return FileEntry{}, err
	}
	if err := util.AtomicCopyFile(src, dst); err != nil {
		return FileEntry{}, err
	}
	info, err := os.Stat(dst)
	if err != nil {
		return FileEntry{}, err
	}
	sum, err := digest(dst)
	if err != nil {
		return FileEntry{}, err
	}
	return FileEntry{Path: rel, Size: info.Size(), Mode: info.Mode().Perm(), Blake3: sum}, nil
}

func digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeMetadata(dir string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot metadata: %w", err)
	}
	return util.AtomicWriteFile(filepath.Join(dir, metadataFile), append(data, '\n'), 0644)
}

// Metadata reads the metadata of snapshot id.
func (m *Manager) Metadata(id string) (Metadata, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return Metadata{}, kerrors.ErrSnapshotNotFound(id)
	}
	dir := filepath.Join(m.dir, id)
	if !util.DirExists(dir) {
		return Metadata{}, kerrors.ErrSnapshotNotFound(id)
	}
	data, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return Metadata{}, fmt.Errorf("read snapshot %s metadata: %w", id, err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse snapshot %s metadata: %w", id, err)
	}
	if meta.ID == "" {
		meta.ID = id
	}
	return meta, nil
}

// List returns all snapshots, newest first. Snapshots with unreadable
// metadata are listed with only their id and a zero time.
func (m *Manager) List() ([]Metadata, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var out []Metadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := m.Metadata(e.Name())
		if err != nil {
			m.logger.Debug("unreadable snapshot metadata", "snapshot", e.Name(), "error", err)
			meta = Metadata{ID: e.Name()}
		}
		out = append(out, meta)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return newerID(out[i].ID, out[j].ID)
	})
	return out, nil
}

// newerID orders ids of the same second by their collision suffix.
func newerID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

// Latest returns the newest snapshot.
func (m *Manager) Latest() (Metadata, bool, error) {
	all, err := m.List()
	if err != nil || len(all) == 0 {
		return Metadata{}, false, err
	}
	return all[0], true, nil
}

// PrunePlan lists the snapshots Prune(keep) would delete.
func (m *Manager) PrunePlan(keep int) ([]Metadata, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep must be >= 0, got %d", keep)
	}
	all, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(all) <= keep {
		return nil, nil
	}
	return all[keep:], nil
}

// Prune deletes all but the keep most recent snapshots and returns the
// deleted ids.
func (m *Manager) Prune(keep int) ([]string, error) {
	plan, err := m.PrunePlan(keep)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, meta := range plan {
		if err := os.RemoveAll(filepath.Join(m.dir, meta.ID)); err != nil {
			return removed, fmt.Errorf("remove snapshot %s: %w", meta.ID, err)
		}
		removed = append(removed, meta.ID)
		m.logger.Info("snapshot pruned", "snapshot", meta.ID)
	}
	return removed, nil
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

func hostname() string {
	h, _ := os.Hostname()
	return h
}
