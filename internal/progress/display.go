// Package progress renders run progress, preflight findings, dry-run
// impact and status reports.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/fsops"
	"github.com/randalmurphal/kickoff/internal/preflight"
	"github.com/randalmurphal/kickoff/internal/recommend"
	"github.com/randalmurphal/kickoff/internal/session"
	"github.com/randalmurphal/kickoff/internal/state"
)

// Display writes progress for one run. Failures and the final summary
// are printed even when quiet.
type Display struct {
	mu     sync.Mutex
	w      io.Writer
	quiet  bool
	styles Styles
	width  int
	phases map[int]catalog.Phase
	phase  int
}

// Option configures a Display.
type Option func(*Display)

// WithQuiet suppresses per-task progress lines.
func WithQuiet(quiet bool) Option {
	return func(d *Display) { d.quiet = quiet }
}

// WithCatalog enables phase headers in the catalog's phase colors.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(d *Display) {
		d.phases = make(map[int]catalog.Phase)
		for _, p := range cat.Phases() {
			d.phases[p.Number] = p
		}
	}
}

// New creates a display writing to w.
func New(w io.Writer, opts ...Option) *Display {
	d := &Display{
		w:      w,
		styles: NewStyles(w),
		width:  Width(w),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Styles returns the display's styles.
func (d *Display) Styles() Styles { return d.styles }

func (d *Display) printf(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.w, format, args...)
}

// TaskStart announces a task, with a phase header when the phase changes.
func (d *Display) TaskStart(task catalog.Task, index, total int) {
	if d.quiet {
		return
	}
	if p, ok := d.phases[task.Phase]; ok && task.Phase != d.phase {
		d.phase = task.Phase
		d.printf("\n%s\n", d.styles.Phase(p.Color).Render(fmt.Sprintf("Phase %d: %s", p.Number, p.Name)))
	}
	counter := d.styles.Muted.Render(fmt.Sprintf("[%d/%d]", index+1, total))
	d.printf("%s %s %s\n", counter, d.styles.Accent.Render(task.ID), d.truncate(task.Description, len(task.ID)+10))
}

// TaskComplete reports a successful task.
func (d *Display) TaskComplete(task catalog.Task, elapsed time.Duration) {
	if d.quiet {
		return
	}
	d.printf("  %s %s %s\n", d.styles.Pass.Render(IconPass), task.ID, d.styles.Muted.Render(formatDuration(elapsed)))
}

// TaskFailed reports a failed task.
func (d *Display) TaskFailed(task catalog.Task, err error) {
	d.printf("  %s %s: %v\n", d.styles.Fail.Render(IconFail), task.ID, err)
}

// TaskSkipped reports a skipped task.
func (d *Display) TaskSkipped(task catalog.Task, reason string) {
	if d.quiet {
		return
	}
	d.printf("  %s %s %s\n", d.styles.Muted.Render(IconSkip), task.ID, d.styles.Muted.Render("skipped ("+reason+")"))
}

// Suggestions lists recommended next tasks.
func (d *Display) Suggestions(task catalog.Task, suggestions []recommend.Suggestion) {
	if d.quiet || len(suggestions) == 0 {
		return
	}
	ids := make([]string, len(suggestions))
	for i, s := range suggestions {
		ids[i] = s.TaskID
	}
	d.printf("    %s %s\n", d.styles.Muted.Render("next:"), strings.Join(ids, ", "))
}

// Summary prints the run totals. Failures point at repair status.
func (d *Display) Summary(s *session.Session, interrupted bool) {
	if s == nil {
		return
	}
	line := fmt.Sprintf("%s %d succeeded  %s %d failed  %s %d skipped",
		d.styles.Pass.Render(IconPass), s.Run(),
		d.styles.Fail.Render(IconFail), s.Failed(),
		d.styles.Muted.Render(IconSkip), s.Skipped())
	d.printf("\n%s\n%s\n", d.separator(), line)
	if interrupted {
		d.printf("%s run interrupted; remaining tasks were not started\n", d.styles.Warn.Render(IconWarn))
	}
	if s.Failed() > 0 {
		d.printf("%s run 'kickoff repair status' for details, 'kickoff repair retry' to retry the last failure\n",
			d.styles.Muted.Render(IconInfo))
	}
}

// Preflight prints findings grouped by task.
func (d *Display) Preflight(r preflight.Report) {
	if len(r.Findings) == 0 {
		return
	}
	d.printf("%s\n", d.styles.Header.Render("PREFLIGHT"))
	for _, f := range r.Findings {
		icon := d.styles.Warn.Render(IconWarn)
		if f.Severity == preflight.SeverityBlocking {
			icon = d.styles.Fail.Render(IconFail)
		}
		d.printf("  %s %s: %s\n", icon, f.TaskID, f.Message)
	}
	d.printf("  %s\n", d.styles.Muted.Render(fmt.Sprintf("%d blocking, %d advisory", r.Summary.Blocking, r.Summary.Advisory)))
}

// DryRun prints the impact report of a dry run.
func (d *Display) DryRun(r *fsops.Report) {
	if r == nil {
		return
	}
	d.printf("\n%s\n", d.styles.Header.Render("DRY RUN"))
	if r.Total() == 0 {
		d.printf("  %s\n", d.styles.Muted.Render("no filesystem changes"))
		return
	}
	var counts []string
	for _, op := range fsops.AllOps {
		if n := r.Count(op); n > 0 {
			counts = append(counts, fmt.Sprintf("%s=%d", op, n))
		}
	}
	d.printf("  %s\n", strings.Join(counts, " "))
	for _, e := range r.Entries {
		style := d.styles.Muted
		if fsops.RiskOf(e.Op) == fsops.RiskHigh {
			style = d.styles.Warn
		}
		d.printf("  %s\n", style.Render(e.String()))
	}
	if r.Destructive {
		d.printf("%s destructive: %d high-risk operation(s)\n", d.styles.Warn.Render(IconWarn), len(r.Risks))
	}
	if len(r.Rollback) > 0 {
		d.printf("%s\n", d.styles.Muted.Render("rollback plan:"))
		for _, step := range r.Rollback {
			mark := d.styles.Pass.Render(IconPass)
			if !step.Recoverable {
				mark = d.styles.Fail.Render(IconFail)
			}
			d.printf("  %s %s\n", mark, step.Action)
		}
	}
}

// Status prints a state report.
func (d *Display) Status(r state.Report) {
	style := d.styles.Warn
	switch r.Status {
	case state.StatusComplete:
		style = d.styles.Pass
	case state.StatusFailed:
		style = d.styles.Fail
	}
	d.printf("%s %s\n", d.styles.Header.Render("STATE"), style.Render(string(r.Status)))
	d.printf("  %d/%d tasks complete\n", len(r.Completed), r.CatalogSize)
	if r.LastFailed != "" {
		d.printf("  %s last failed: %s", d.styles.Fail.Render(IconFail), r.LastFailed)
		if r.LastFailedAt != nil {
			d.printf(" at %s", r.LastFailedAt.Local().Format(time.DateTime))
		}
		d.printf("\n")
		if r.LastFailedError != "" {
			d.printf("    %s\n", d.styles.Muted.Render(r.LastFailedError))
		}
	}
	if next, ok := r.NextPending(); ok {
		d.printf("  next: %s\n", next)
	}
	if r.LastSession != nil {
		d.printf("  last run: %s (%d succeeded, %d failed, %d skipped)\n",
			r.LastSession.Selector, r.LastSession.Run, r.LastSession.Failed, r.LastSession.Skipped)
	}
	if r.Interrupted != nil {
		d.printf("  %s run %s (pid %d) ended without finishing\n",
			d.styles.Warn.Render(IconWarn), r.Interrupted.SessionID, r.Interrupted.PID)
	}
	if len(r.Orphaned) > 0 {
		d.printf("  %s markers for unknown tasks: %s\n", d.styles.Muted.Render(IconInfo), strings.Join(r.Orphaned, ", "))
	}
}

// ConfirmPrompt is the question shown before a task in confirm mode.
func (d *Display) ConfirmPrompt(task catalog.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", d.styles.Accent.Render(task.ID), task.Description)
	if len(task.Outputs) > 0 {
		fmt.Fprintf(&b, "  %s %s\n", d.styles.Muted.Render("creates:"), strings.Join(task.Outputs, ", "))
	}
	b.WriteString("Run this task? [y/N]: ")
	return b.String()
}

func (d *Display) separator() string {
	n := d.width
	if n > 60 {
		n = 60
	}
	return d.styles.Muted.Render(strings.Repeat("─", n))
}

func (d *Display) truncate(s string, used int) string {
	limit := d.width - used
	if limit < 10 || len(s) <= limit {
		return s
	}
	return s[:limit-1] + "…"
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
}
