// Package repair diagnoses a project's bootstrap state and recovers from
// failed or unwanted runs.
//
// Retry and Reset are the only actions that change anything. Reset always
// takes a snapshot first. Continue is deliberately a report: it names the
// next task but never runs it.
package repair

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/kickoff/internal/backup"
	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/engine"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
	"github.com/randalmurphal/kickoff/internal/lock"
	"github.com/randalmurphal/kickoff/internal/state"
)

// ReasonReset is recorded on the snapshot taken before a reset.
const ReasonReset = "reset"

// StatusReport is the aggregate view behind 'repair status'.
type StatusReport struct {
	state.Report
	LatestSnapshot *backup.Metadata `json:"latest_snapshot,omitempty"`
}

// ExitCode maps the status to the command's exit code.
func (r StatusReport) ExitCode() int { return r.Status.ExitCode() }

// RetryResult describes a retry.
type RetryResult struct {
	TaskID   string
	Declined bool
	Run      *engine.Result
}

// ContinueReport is what the continue stub reports.
type ContinueReport struct {
	// Next is the first unresolved task after the highest-phase marker.
	Next string
	// AfterPhase is the highest phase with a marker, 0 when none.
	AfterPhase int
	// Gaps are unresolved tasks ordered before Next.
	Gaps []string
	// Executed is always false.
	Executed bool
}

// ResetResult describes a reset.
type ResetResult struct {
	SnapshotID     string
	MarkersRemoved int
}

// Repairer runs repair actions for one project.
type Repairer struct {
	paths     config.Paths
	catalog   *catalog.Catalog
	engine    *engine.Engine
	backups   *backup.Manager
	tracker   *state.Tracker
	confirmer engine.Confirmer
	logger    *slog.Logger
}

// Option configures a Repairer.
type Option func(*Repairer)

// WithConfirmer sets the prompt used before retrying.
func WithConfirmer(c engine.Confirmer) Option {
	return func(r *Repairer) { r.confirmer = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repairer) { r.logger = l }
}

// New creates a repairer. eng runs retried tasks and backups takes the
// reset snapshot.
func New(paths config.Paths, cat *catalog.Catalog, eng *engine.Engine, backups *backup.Manager, opts ...Option) *Repairer {
	r := &Repairer{
		paths:   paths,
		catalog: cat,
		engine:  eng,
		backups: backups,
		tracker: state.NewTracker(paths),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status gathers the current state.
func (r *Repairer) Status() (StatusReport, error) {
	report, err := r.tracker.Report(r.catalog)
	if err != nil {
		return StatusReport{}, fmt.Errorf("detect state: %w", err)
	}
	out := StatusReport{Report: report}
	if r.backups != nil {
		latest, ok, err := r.backups.Latest()
		if err != nil {
			r.logger.Warn("list snapshots", "error", err)
		} else if ok {
			out.LatestSnapshot = &latest
		}
	}
	return out, nil
}

// Retry re-runs the last failed task after confirmation.
func (r *Repairer) Retry(ctx context.Context) (RetryResult, error) {
	doc, err := r.tracker.Store().Load()
	if err != nil {
		return RetryResult{}, kerrors.ErrRepairFailed("retry", err)
	}
	if doc.LastFailed == "" {
		return RetryResult{}, kerrors.ErrNothingToRetry()
	}
	res := RetryResult{TaskID: doc.LastFailed}

	task, ok := r.catalog.Task(doc.LastFailed)
	if !ok {
		return res, kerrors.ErrRepairFailed("retry", fmt.Errorf("task %q is no longer in the catalog", doc.LastFailed))
	}

	if r.confirmer != nil {
		yes, err := r.confirmer.Confirm(task)
		if err != nil || !yes {
			res.Declined = true
			return res, nil
		}
	}

	r.logger.Info("retrying task", "task", task.ID)
	run, err := r.engine.RunOne(ctx, task, "retry:"+task.ID)
	res.Run = run
	if err != nil {
		return res, kerrors.ErrRepairFailed("retry", err)
	}
	if run.ExitCode() > 0 {
		return res, kerrors.ErrRepairFailed("retry", kerrors.ErrTaskExecutionFailed(task.ID, fmt.Errorf("still failing")))
	}
	return res, nil
}

// Continue reports the next unresolved task after the highest-phase
// marker. It never executes anything.
func (r *Repairer) Continue() (ContinueReport, error) {
	markers, err := r.tracker.Markers().Set()
	if err != nil {
		return ContinueReport{}, fmt.Errorf("read markers: %w", err)
	}

	ordered := r.catalog.Ordered()
	last := -1
	var out ContinueReport
	for i, t := range ordered {
		if markers[t.ID] && t.Phase >= out.AfterPhase {
			out.AfterPhase = t.Phase
			last = i
		}
	}
	for i, t := range ordered {
		if markers[t.ID] {
			continue
		}
		if i < last {
			out.Gaps = append(out.Gaps, t.ID)
			continue
		}
		out.Next = t.ID
		break
	}
	return out, nil
}

// Reset snapshots the project, then clears the state document and every
// completion marker. Task side effects are left alone.
func (r *Repairer) Reset() (ResetResult, error) {
	guard := lock.NewPIDGuard(r.paths.PIDFile())
	if err := guard.Acquire(); err != nil {
		return ResetResult{}, err
	}
	defer guard.Release()

	snap, err := r.backups.CreateSnapshot(ReasonReset)
	if err != nil && !kerrors.HasCode(err, kerrors.CodeSnapshotCaptureIncomplete) {
		return ResetResult{}, kerrors.ErrRepairFailed("reset", fmt.Errorf("snapshot before reset: %w", err))
	}
	res := ResetResult{SnapshotID: snap.ID}

	if err := r.tracker.Store().Save(state.New()); err != nil {
		return res, kerrors.ErrRepairFailed("reset", err)
	}
	n, err := r.tracker.Markers().Clear()
	res.MarkersRemoved = n
	if err != nil {
		return res, kerrors.ErrRepairFailed("reset", err)
	}
	r.logger.Info("project reset", "snapshot", snap.ID, "markers", n)
	return res, nil
}
