package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/engine"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
	"github.com/randalmurphal/kickoff/internal/progress"
	"github.com/randalmurphal/kickoff/internal/recommend"
	"github.com/randalmurphal/kickoff/internal/wizard"
)

func newRunCmd(a *app) *cobra.Command {
	var yes, dryRun, force bool
	cmd := &cobra.Command{
		Use:   "run [selector]",
		Short: "Run tasks selected by phase, task id, profile or 'all'",
		Long: `Run tasks from the catalog in dependency order.

The selector is 'all', a phase number, a task id or a profile name. Use a
task:, phase: or profile: prefix when a name is ambiguous. Without a
selector on a terminal, an interactive menu is shown.

Examples:
  kickoff run all --yes          # Everything, no prompts
  kickoff run 1                  # Phase 1, confirming each task
  kickoff run profile:minimal    # A named profile
  kickoff run all --dry-run      # Show what would change`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RequireInit(a.root); err != nil {
				return err
			}
			p, err := a.openProject()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p.registry.Prescan(ctx)

			mode := p.cfg.Execution.Mode
			switch {
			case dryRun:
				mode = config.ModeDryRun
			case yes:
				mode = config.ModeAutoApprove
			}

			var selector string
			if len(args) == 1 {
				selector = args[0]
			} else {
				if !a.interactive() {
					return fmt.Errorf("a selector is required when not running on a terminal (all, a phase number, a task id or a profile)")
				}
				choice, err := wizard.Choose(p.registry, p.cfg.Execution.PrescanTimeout, a.logger,
					tea.WithInput(a.stdin), tea.WithOutput(a.stdout))
				if errors.Is(err, wizard.ErrCancelled) {
					fmt.Fprintln(a.stderr, "Cancelled")
					return nil
				}
				if err != nil {
					return err
				}
				selector = choice.Selector
				if !dryRun && !yes {
					mode = choice.Mode
				}
			}

			sel, err := p.registry.ResolveSelection(selector)
			if err != nil {
				return err
			}
			cat, err := p.registry.Catalog()
			if err != nil {
				return err
			}

			display := progress.New(a.stdout, progress.WithQuiet(a.quiet), progress.WithCatalog(cat))
			opts := []engine.Option{
				engine.WithReporter(display),
				engine.WithRecommender(recommend.New(cat)),
				engine.WithLogger(a.logger),
			}
			if mode == config.ModeConfirm {
				if !a.interactive() {
					return kerrors.ErrConfigInvalid("execution.mode", "confirm mode needs a terminal; pass --yes or --dry-run")
				}
				opts = append(opts, engine.WithConfirmer(promptConfirmer(a.stdin, a.stdout, display.ConfirmPrompt)))
			}
			eng := engine.New(p.paths, cat, p.runner, opts...)

			display.Preflight(eng.Preflight(sel.Tasks))
			res, err := eng.Run(ctx, sel.Tasks, engine.Options{Mode: mode, Force: force, Selector: sel.Selector})
			if res != nil {
				display.DryRun(res.DryRun)
				display.Summary(res.Session, res.Interrupted)
			}
			if err != nil {
				return err
			}
			if code := res.ExitCode(); code > 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "run every task without asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record filesystem changes instead of applying them")
	cmd.Flags().BoolVar(&force, "force", false, "run despite blocking preflight findings")
	return cmd
}

// promptConfirmer asks a y/N question per task. Anything but y or yes,
// including end of input, declines.
func promptConfirmer(in io.Reader, out io.Writer, prompt func(catalog.Task) string) engine.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(task catalog.Task) (bool, error) {
		fmt.Fprint(out, prompt(task))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
