// Package lock keeps two kickoff runs from working on the same project at
// once.
//
// The guard is a plain PID file inside .kickoff/. There is no cross-host or
// cross-user coordination: a stale file left by a dead process is removed on
// the next Check.
package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"

	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

// PIDGuard owns the run PID file of one project.
type PIDGuard struct {
	path string
}

// NewPIDGuard creates a guard backed by pidFile.
func NewPIDGuard(pidFile string) *PIDGuard {
	return &PIDGuard{path: pidFile}
}

// Path returns the PID file location.
func (g *PIDGuard) Path() string { return g.path }

// Check returns RUN_IN_PROGRESS when another live process holds the guard.
// Unreadable or stale PID files are cleaned up.
func (g *PIDGuard) Check() error {
	pid, ok, err := g.read()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if pid != os.Getpid() && Alive(pid) {
		return kerrors.ErrRunInProgress(pid)
	}
	if pid != os.Getpid() {
		_ = os.Remove(g.path)
	}
	return nil
}

// Acquire takes the guard for the current process. Check, stale cleanup
// and publish run under an flock on a sidecar file; the PID file itself is
// published with a hard link so it appears complete and exactly one
// creator wins.
func (g *PIDGuard) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(g.path), 0755); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	fl := flock.New(g.path + lockSuffix)
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock pid file: %w", err)
	}
	defer func() { _ = fl.Unlock() }()

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		err := g.create(os.Getpid())
		if err == nil {
			return nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return err
		}
		if err := g.Check(); err != nil {
			return err
		}
		if pid, ok, _ := g.read(); ok && pid == os.Getpid() {
			return nil
		}
	}
	pid, _, _ := g.read()
	return kerrors.ErrRunInProgress(pid)
}

const (
	acquireAttempts = 3
	// lockSuffix names the flock sidecar. It is never removed.
	lockSuffix = ".lock"
)

// create publishes pid as the guard. It fails with fs.ErrExist when the
// file is already present.
func (g *PIDGuard) create(pid int) error {
	tmp, err := os.CreateTemp(filepath.Dir(g.path), ".run-*.pid")
	if err != nil {
		return fmt.Errorf("create pid file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, werr := tmp.WriteString(strconv.Itoa(pid))
	if err := errors.Join(werr, tmp.Close()); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := os.Link(tmpPath, g.path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("publish pid file: %w", err)
	}
	return nil
}

// Release removes the PID file if this process owns it.
// Safe to call more than once.
func (g *PIDGuard) Release() {
	pid, ok, _ := g.read()
	if ok && pid != os.Getpid() {
		return
	}
	_ = os.Remove(g.path)
}

// Holder returns the PID recorded in the guard, if any process is alive
// behind it.
func (g *PIDGuard) Holder() (int, bool) {
	pid, ok, err := g.read()
	if err != nil || !ok || !Alive(pid) {
		return 0, false
	}
	return pid, true
}

func (g *PIDGuard) read() (int, bool, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		_ = os.Remove(g.path)
		return 0, false, nil
	}
	return pid, true, nil
}

// Alive reports whether a process with pid exists. Signal 0 only probes.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
