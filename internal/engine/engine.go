// Package engine runs resolved task lists.
//
// Tasks run strictly one at a time in the order given. A failing task never
// aborts its siblings; only tasks that hard-depend on it are skipped. A
// running task is never cancelled: cancellation of ctx is observed between
// tasks, and the remaining tasks are recorded as interrupted.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/config"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
	"github.com/randalmurphal/kickoff/internal/fsops"
	"github.com/randalmurphal/kickoff/internal/lock"
	"github.com/randalmurphal/kickoff/internal/preflight"
	"github.com/randalmurphal/kickoff/internal/recommend"
	"github.com/randalmurphal/kickoff/internal/runner"
	"github.com/randalmurphal/kickoff/internal/session"
	"github.com/randalmurphal/kickoff/internal/state"
)

// Confirmer asks whether a task may run. Used in confirm mode.
type Confirmer interface {
	Confirm(task catalog.Task) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(task catalog.Task) (bool, error)

func (f ConfirmFunc) Confirm(task catalog.Task) (bool, error) { return f(task) }

// Reporter receives progress events.
type Reporter interface {
	TaskStart(task catalog.Task, index, total int)
	TaskComplete(task catalog.Task, elapsed time.Duration)
	TaskFailed(task catalog.Task, err error)
	TaskSkipped(task catalog.Task, reason string)
	Suggestions(task catalog.Task, suggestions []recommend.Suggestion)
}

type nopReporter struct{}

func (nopReporter) TaskStart(catalog.Task, int, int) {}
func (nopReporter) TaskComplete(catalog.Task, time.Duration) {}
func (nopReporter) TaskFailed(catalog.Task, error) {}
func (nopReporter) TaskSkipped(catalog.Task, string) {}
func (nopReporter) Suggestions(catalog.Task, []recommend.Suggestion) {}

// Options select how a run behaves.
type Options struct {
	Mode config.ExecutionMode
	// Force runs despite blocking preflight findings and ignores skipped
	// (but not failed) upstream tasks.
	Force    bool
	Selector string
}

// Result is the outcome of a run.
type Result struct {
	Session     *session.Session
	Preflight   preflight.Report
	DryRun      *fsops.Report
	Interrupted bool
}

// ExitCode is the number of failed tasks.
func (r *Result) ExitCode() int {
	if r == nil || r.Session == nil {
		return 0
	}
	return r.Session.Failed()
}

// Engine executes tasks against one project.
type Engine struct {
	paths       config.Paths
	catalog     *catalog.Catalog
	runner      *runner.Runner
	tracker     *state.Tracker
	guard       *lock.PIDGuard
	confirmer   Confirmer
	reporter    Reporter
	recommender *recommend.Engine
	lookPath    func(string) (string, error)
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfirmer sets the confirm-mode prompt.
func WithConfirmer(c Confirmer) Option {
	return func(e *Engine) { e.confirmer = c }
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithRecommender replaces the recommendation engine.
func WithRecommender(r *recommend.Engine) Option {
	return func(e *Engine) { e.recommender = r }
}

// WithLookPath replaces the PATH probe used by preflight.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(e *Engine) { e.lookPath = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine for the project at paths.
func New(paths config.Paths, cat *catalog.Catalog, r *runner.Runner, opts ...Option) *Engine {
	e := &Engine{
		paths:    paths,
		catalog:  cat,
		runner:   r,
		tracker:  state.NewTracker(paths),
		guard:    lock.NewPIDGuard(paths.PIDFile()),
		reporter: nopReporter{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.recommender == nil {
		e.recommender = recommend.New(cat)
	}
	return e
}

// Tracker returns the state tracker.
func (e *Engine) Tracker() *state.Tracker { return e.tracker }

// Preflight checks tasks against the current markers.
func (e *Engine) Preflight(tasks []catalog.Task) preflight.Report {
	var opts []preflight.Option
	if e.lookPath != nil {
		opts = append(opts, preflight.WithLookPath(e.lookPath))
	}
	return preflight.NewChecker(e.tracker.Markers(), opts...).Check(tasks)
}

// Run executes tasks in order under opts.Mode.
func (e *Engine) Run(ctx context.Context, tasks []catalog.Task, opts Options) (*Result, error) {
	if opts.Mode == "" {
		opts.Mode = config.ModeConfirm
	}
	if !opts.Mode.Valid() {
		return nil, kerrors.ErrConfigInvalid("execution.mode", fmt.Sprintf("unknown mode %q", opts.Mode))
	}
	if opts.Mode == config.ModeConfirm && e.confirmer == nil {
		return nil, errors.New("confirm mode needs an interactive terminal; use --yes or --dry-run")
	}
	dryRun := opts.Mode == config.ModeDryRun

	if !dryRun {
		if err := e.guard.Acquire(); err != nil {
			return nil, err
		}
		defer e.guard.Release()
	}

	res := &Result{Preflight: e.Preflight(tasks)}
	if res.Preflight.HasBlocking() {
		if !opts.Force {
			return res, kerrors.ErrPreflightBlocking(res.Preflight.Summary.Blocking, res.Preflight.BlockingSummary())
		}
		e.logger.Warn("running despite blocking preflight findings", "blocking", res.Preflight.Summary.Blocking)
	}

	res.Session = session.New(opts.Selector, string(opts.Mode), len(tasks))
	r := &run{
		engine: e,
		opts:   opts,
		res:    res,
		dryRun: dryRun,
	}
	if err := r.begin(); err != nil {
		return res, err
	}
	defer r.cleanup()

	for i, task := range tasks {
		if ctx.Err() != nil {
			res.Interrupted = true
			for _, rest := range tasks[i:] {
				r.skip(rest, session.ReasonInterrupted)
			}
			e.logger.Info("run interrupted", "remaining", len(tasks)-i)
			break
		}
		r.step(ctx, task, i, len(tasks))
	}

	return res, r.finish()
}

// RunOne runs a single task without prompting. Preflight still applies.
func (e *Engine) RunOne(ctx context.Context, task catalog.Task, selector string) (*Result, error) {
	return e.Run(ctx, []catalog.Task{task}, Options{Mode: config.ModeAutoApprove, Selector: selector})
}

// run holds the mutable state of one Run call.
type run struct {
	engine *Engine
	opts   Options
	res    *Result
	dryRun bool

	doc    *state.Document
	ops    fsops.Ops
	sink   *fsops.FileSink
	tmpDir string

	// saveErr is the first failed intermediate save. The run keeps going
	// and finish reports it.
	saveErr error
}

func (r *run) begin() error {
	if r.dryRun {
		dir, err := os.MkdirTemp("", "kickoff-dry-run-*")
		if err != nil {
			return fmt.Errorf("create dry-run log: %w", err)
		}
		r.tmpDir = dir
		r.sink = fsops.NewFileSink(filepath.Join(dir, "ops.jsonl"))
		r.ops = fsops.NewRecorder(r.sink)
		return nil
	}

	doc, err := r.engine.tracker.Store().Load()
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	doc.BeginSession(r.res.Session.ID, os.Getpid())
	r.doc = doc
	r.ops = fsops.NewReal()
	return r.save()
}

func (r *run) cleanup() {
	if r.tmpDir != "" {
		_ = os.RemoveAll(r.tmpDir)
	}
}

func (r *run) save() error {
	if r.doc == nil {
		return nil
	}
	if err := r.engine.tracker.Store().Save(r.doc); err != nil {
		r.engine.logger.Error("save state", "error", err)
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// checkpoint saves between tasks and remembers the first failure.
func (r *run) checkpoint() {
	if err := r.save(); err != nil && r.saveErr == nil {
		r.saveErr = err
	}
}

func (r *run) step(ctx context.Context, task catalog.Task, index, total int) {
	e := r.engine
	if reason, skip := r.upstream(task); skip {
		r.skip(task, reason)
		return
	}

	if r.opts.Mode == config.ModeConfirm {
		ok, err := e.confirmer.Confirm(task)
		if err != nil {
			e.logger.Warn("confirmation failed, skipping", "task", task.ID, "error", err)
		}
		if err != nil || !ok {
			r.skip(task, session.ReasonDeclined)
			return
		}
	}

	e.reporter.TaskStart(task, index, total)
	if r.doc != nil {
		r.doc.StartTask(task.ID)
		r.checkpoint()
	}

	req := runner.Request{
		TargetDir: e.paths.Root,
		DryRun:    r.dryRun,
		Ops:       r.ops,
	}
	if r.sink != nil {
		req.OpsLog = r.sink.Path()
	}
	out := e.runner.Run(ctx, task.ID, req)

	if out.Err == nil && !r.dryRun {
		if err := e.tracker.Markers().Write(task.ID, r.res.Session.ID); err != nil {
			out.Err = fmt.Errorf("write completion marker: %w", err)
		}
	}

	if out.Err != nil {
		err := kerrors.ErrTaskExecutionFailed(task.ID, out.Err)
		r.res.Session.Record(task.ID, session.OutcomeFailed, out.Err.Error(), out.Duration)
		if r.doc != nil {
			r.doc.RecordFailure(task.ID, out.Err)
			r.checkpoint()
		}
		e.logger.Warn("task failed", "task", task.ID, "exit", out.ExitCode, "error", out.Err)
		e.reporter.TaskFailed(task, err)
		return
	}

	reason := ""
	if r.dryRun {
		reason = session.ReasonDryRun
	}
	r.res.Session.Record(task.ID, session.OutcomeSucceeded, reason, out.Duration)
	if r.doc != nil {
		r.doc.RecordSuccess(task.ID)
		r.checkpoint()
	}
	e.reporter.TaskComplete(task, out.Duration)

	if suggestions := e.recommender.Suggest(task.ID, r.res.Session.Completed()); len(suggestions) > 0 {
		e.reporter.Suggestions(task, suggestions)
	}
}

// upstream reports whether a hard dependency failed or was skipped
// earlier in this run. Skips propagate transitively through the session.
func (r *run) upstream(task catalog.Task) (string, bool) {
	for _, dep := range task.Dependencies {
		outcome, ok := r.res.Session.Outcome(dep)
		if !ok {
			continue
		}
		switch outcome {
		case session.OutcomeFailed:
			return session.ReasonUpstreamFailed, true
		case session.OutcomeSkipped:
			if !r.opts.Force {
				return session.ReasonUpstreamSkipped, true
			}
		}
	}
	return "", false
}

func (r *run) skip(task catalog.Task, reason string) {
	r.res.Session.Record(task.ID, session.OutcomeSkipped, reason, 0)
	if r.doc != nil {
		r.doc.RecordSkip(task.ID)
	}
	r.engine.logger.Debug("task skipped", "task", task.ID, "reason", reason)
	r.engine.reporter.TaskSkipped(task, reason)
}

func (r *run) finish() error {
	s := r.res.Session
	if r.dryRun {
		entries, err := r.sink.Entries()
		report := fsops.Analyze(entries)
		r.res.DryRun = &report
		if err != nil {
			r.engine.logger.Error("dry-run impact incomplete", "error", err)
			return fmt.Errorf("dry-run impact: %w", err)
		}
		return nil
	}
	r.doc.EndSession(state.SessionSummary{
		ID:          s.ID,
		Selector:    s.Selector,
		Mode:        s.Mode,
		StartedAt:   s.StartedAt,
		FinishedAt:  time.Now(),
		Total:       s.Total,
		Run:         s.Run(),
		Failed:      s.Failed(),
		Skipped:     s.Skipped(),
		Interrupted: r.res.Interrupted,
	})
	if err := r.save(); err != nil {
		return err
	}
	return r.saveErr
}
