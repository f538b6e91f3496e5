package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/engine"
	"github.com/randalmurphal/kickoff/internal/progress"
	"github.com/randalmurphal/kickoff/internal/recommend"
	"github.com/randalmurphal/kickoff/internal/repair"
)

func newRepairCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Inspect and recover from failed or interrupted runs",
		Long: `Inspect and recover from failed or interrupted runs.

  status    show the derived state (exit 0 complete, 1 never run, 2 otherwise)
  retry     re-run the last failed task
  continue  show which task to run next
  reset     snapshot the project, then clear state and completion markers`,
	}
	cmd.AddCommand(
		newRepairStatusCmd(a),
		newRepairRetryCmd(a),
		newRepairContinueCmd(a),
		newRepairResetCmd(a),
	)
	return cmd
}

// repairer builds a repairer whose engine reports through display.
func (a *app) repairer(display *progress.Display, opts ...repair.Option) (*repair.Repairer, error) {
	if err := config.RequireInit(a.root); err != nil {
		return nil, err
	}
	p, err := a.openProject()
	if err != nil {
		return nil, err
	}
	cat, err := p.registry.Catalog()
	if err != nil {
		return nil, err
	}
	eng := engine.New(p.paths, cat, p.runner,
		engine.WithReporter(display),
		engine.WithRecommender(recommend.New(cat)),
		engine.WithLogger(a.logger))
	opts = append(opts, repair.WithLogger(a.logger))
	return repair.New(p.paths, cat, eng, p.backups, opts...), nil
}

func newRepairStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the derived project state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			display := progress.New(a.stdout)
			r, err := a.repairer(display)
			if err != nil {
				return err
			}
			report, err := r.Status()
			if err != nil {
				return err
			}
			if a.jsonOut {
				if err := a.printJSON(report); err != nil {
					return err
				}
			} else {
				display.Status(report.Report)
				if s := report.LatestSnapshot; s != nil {
					fmt.Fprintf(a.stdout, "  latest snapshot: %s (%s, %d files)\n", s.ID, s.Reason, len(s.Files))
				}
			}
			if code := report.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func newRepairRetryCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Re-run the last failed task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			display := progress.New(a.stdout, progress.WithQuiet(a.quiet))
			var opts []repair.Option
			if !yes {
				if !a.interactive() {
					return errors.New("retry asks for confirmation; pass --yes when not running on a terminal")
				}
				opts = append(opts, repair.WithConfirmer(promptConfirmer(a.stdin, a.stdout, display.ConfirmPrompt)))
			}
			r, err := a.repairer(display, opts...)
			if err != nil {
				return err
			}
			res, err := r.Retry(cmd.Context())
			if res.Run != nil {
				display.Summary(res.Run.Session, res.Run.Interrupted)
			}
			if err != nil {
				return err
			}
			if res.Declined {
				fmt.Fprintf(a.stdout, "Skipped retry of %s\n", res.TaskID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "retry without asking")
	return cmd
}

func newRepairContinueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "continue",
		Short: "Show the next task to run after the last completed phase",
		Long: `Show the next task to run after the last completed phase.

Nothing is executed. Tasks before that point that never completed are
listed as gaps.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := a.repairer(progress.New(a.stdout))
			if err != nil {
				return err
			}
			rep, err := r.Continue()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{
					"next":        rep.Next,
					"after_phase": rep.AfterPhase,
					"gaps":        rep.Gaps,
				})
			}
			if rep.Next == "" {
				fmt.Fprintln(a.stdout, "Nothing left to run.")
			} else {
				fmt.Fprintf(a.stdout, "Next: %s\n", rep.Next)
				fmt.Fprintf(a.stdout, "  kickoff run task:%s\n", rep.Next)
			}
			if len(rep.Gaps) > 0 {
				fmt.Fprintf(a.stdout, "Not completed earlier: %s\n", strings.Join(rep.Gaps, ", "))
			}
			return nil
		},
	}
}

func newRepairResetCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Snapshot the project, then clear state and markers",
		Long: `Snapshot the project, then clear the state document and every
completion marker so all tasks run again. Files written by tasks are not
touched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				ok, err := a.ask("Reset kickoff state for " + a.root + "?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.stdout, "Reset cancelled")
					return nil
				}
			}
			r, err := a.repairer(progress.New(a.stdout))
			if err != nil {
				return err
			}
			res, err := r.Reset()
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{
					"snapshot":        res.SnapshotID,
					"markers_removed": res.MarkersRemoved,
				})
			}
			fmt.Fprintf(a.stdout, "Reset complete: %d markers removed, snapshot %s\n", res.MarkersRemoved, res.SnapshotID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "reset without asking")
	return cmd
}

// ask poses a y/N question. It refuses to guess when no terminal is attached.
func (a *app) ask(question string) (bool, error) {
	if !a.interactive() {
		return false, errors.New("confirmation needed; pass --yes when not running on a terminal")
	}
	confirm := promptConfirmer(a.stdin, a.stdout, func(catalog.Task) string { return question + " [y/N]: " })
	return confirm(catalog.Task{})
}
