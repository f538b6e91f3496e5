// Package runner executes one task implementation.
//
// Implementations are either scripts found in the tasks directory or Go
// functions registered as builtins. Scripts run with the target directory
// as their only argument and the KICKOFF_* environment described below.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/kickoff/internal/fsops"
)

// Environment passed to script implementations.
const (
	EnvTaskID    = "KICKOFF_TASK_ID"
	EnvTargetDir = "KICKOFF_TARGET_DIR"
	EnvDryRun    = "KICKOFF_DRY_RUN"
	EnvBin       = "KICKOFF_BIN"
)

// ErrNoImplementation is returned when a task has neither a script nor a builtin.
var ErrNoImplementation = errors.New("no implementation found")

// Env is what an in-process task receives.
type Env struct {
	TaskID    string
	TargetDir string
	DryRun    bool
	Ops       fsops.Ops
	Stdout    io.Writer
	Stderr    io.Writer
}

// Func is an in-process task implementation. It must mutate the project
// only through env.Ops.
type Func func(ctx context.Context, env Env) error

// Builtins holds in-process implementations by task id.
type Builtins struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewBuiltins returns an empty builtin set.
func NewBuiltins() *Builtins {
	return &Builtins{funcs: make(map[string]Func)}
}

// Register adds or replaces the implementation for id.
func (b *Builtins) Register(id string, fn Func) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.funcs[id] = fn
}

// Lookup returns the implementation for id.
func (b *Builtins) Lookup(id string) (Func, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn, ok := b.funcs[id]
	return fn, ok
}

// Implementation is a located task implementation.
type Implementation struct {
	TaskID  string
	Path    string // script path; empty for builtins
	Builtin Func
	// Shell is set when the script is not executable and must be run
	// through the configured shell.
	Shell bool
}

// Locator finds implementations. Builtins win over scripts.
type Locator struct {
	Dir      string
	Builtins *Builtins
}

// Find looks for a builtin, then <dir>/<id>, <dir>/<id>.sh and <dir>/<id>/run.
func (l *Locator) Find(id string) (Implementation, bool) {
	if fn, ok := l.Builtins.Lookup(id); ok {
		return Implementation{TaskID: id, Builtin: fn}, true
	}
	if l.Dir == "" {
		return Implementation{}, false
	}
	candidates := []string{
		filepath.Join(l.Dir, id),
		filepath.Join(l.Dir, id+".sh"),
		filepath.Join(l.Dir, id, "run"),
	}
	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		executable := info.Mode().Perm()&0111 != 0
		if !executable && !strings.HasSuffix(path, ".sh") {
			continue
		}
		return Implementation{TaskID: id, Path: path, Shell: !executable}, true
	}
	return Implementation{}, false
}

// Has reports whether id has an implementation.
func (l *Locator) Has(id string) bool {
	_, ok := l.Find(id)
	return ok
}

// Request describes one execution.
type Request struct {
	TargetDir string
	DryRun    bool
	Ops       fsops.Ops
	// OpsLog is the JSONL log scripts append to in dry-run mode.
	OpsLog string
}

// Result is the outcome of one execution.
type Result struct {
	TaskID   string
	Duration time.Duration
	ExitCode int
	Err      error
}

// Runner executes implementations.
type Runner struct {
	locator *Locator
	shell   string
	bin     string
	stdout  io.Writer
	stderr  io.Writer
	logger  *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithShell sets the shell for non-executable *.sh scripts (default "sh").
func WithShell(shell string) Option {
	return func(r *Runner) { r.shell = shell }
}

// WithOutput sets where task output goes.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// New creates a runner using locator.
func New(locator *Locator, opts ...Option) *Runner {
	bin, _ := os.Executable()
	r := &Runner{
		locator: locator,
		shell:   "sh",
		bin:     bin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Locator returns the runner's locator.
func (r *Runner) Locator() *Locator { return r.locator }

// Run executes the implementation of taskID. A running task is never
// cancelled: ctx cancellation is not propagated to scripts or builtins.
func (r *Runner) Run(ctx context.Context, taskID string, req Request) Result {
	start := time.Now()
	res := Result{TaskID: taskID}

	impl, ok := r.locator.Find(taskID)
	if !ok {
		res.Err = ErrNoImplementation
		res.ExitCode = -1
		res.Duration = time.Since(start)
		return res
	}

	if impl.Builtin != nil {
		res.Err = r.runBuiltin(context.WithoutCancel(ctx), impl, req)
	} else {
		res.ExitCode, res.Err = r.runScript(impl, req)
	}
	res.Duration = time.Since(start)

	r.logger.Debug("task finished", "task", taskID, "duration", res.Duration, "exit", res.ExitCode, "error", res.Err)
	return res
}

func (r *Runner) runBuiltin(ctx context.Context, impl Implementation, req Request) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task %s panicked: %v", impl.TaskID, p)
		}
	}()
	ops := req.Ops
	if ops == nil {
		ops = fsops.NewReal()
	}
	return impl.Builtin(ctx, Env{
		TaskID:    impl.TaskID,
		TargetDir: req.TargetDir,
		DryRun:    req.DryRun,
		Ops:       ops,
		Stdout:    r.stdout,
		Stderr:    r.stderr,
	})
}

func (r *Runner) runScript(impl Implementation, req Request) (int, error) {
	var cmd *exec.Cmd
	if impl.Shell {
		cmd = exec.Command(r.shell, impl.Path, req.TargetDir)
	} else {
		cmd = exec.Command(impl.Path, req.TargetDir)
	}
	cmd.Dir = req.TargetDir
	cmd.Env = append(os.Environ(), r.scriptEnv(impl.TaskID, req)...)

	tail := newTailBuffer(2048)
	cmd.Stdout = r.stdout
	cmd.Stderr = io.MultiWriter(r.stderr, tail)

	r.logger.Debug("running task script", "task", impl.TaskID, "path", impl.Path, "dry_run", req.DryRun)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := fmt.Sprintf("%s exited with status %d", filepath.Base(impl.Path), exitErr.ExitCode())
		if last := tail.LastLine(); last != "" {
			msg += ": " + last
		}
		return exitErr.ExitCode(), errors.New(msg)
	}
	return -1, fmt.Errorf("start %s: %w", impl.Path, err)
}

func (r *Runner) scriptEnv(taskID string, req Request) []string {
	dry := "0"
	if req.DryRun {
		dry = "1"
	}
	env := []string{
		EnvTaskID + "=" + taskID,
		EnvTargetDir + "=" + req.TargetDir,
		EnvDryRun + "=" + dry,
	}
	if r.bin != "" {
		env = append(env, EnvBin+"="+r.bin)
	}
	if req.DryRun && req.OpsLog != "" {
		env = append(env, fsops.EnvOpsLog+"="+req.OpsLog)
	}
	return env
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer { return &tailBuffer{max: max} }

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

// LastLine returns the last non-empty line written.
func (t *tailBuffer) LastLine() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := bytes.Split(bytes.TrimRight(t.buf, "\r\n"), []byte("\n"))
	return strings.TrimSpace(string(lines[len(lines)-1]))
}
