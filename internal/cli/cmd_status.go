package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/lock"
	"github.com/randalmurphal/kickoff/internal/progress"
	"github.com/randalmurphal/kickoff/internal/state"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show bootstrap progress for the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.openProject()
			if err != nil {
				return err
			}
			cat, err := p.registry.Catalog()
			if err != nil {
				return err
			}
			report, err := state.NewTracker(p.paths).Report(cat)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(report)
			}
			progress.New(a.stdout).Status(report)
			return nil
		},
	}
}

type checkLevel string

const (
	checkOK   checkLevel = "ok"
	checkWarn checkLevel = "warn"
	checkFail checkLevel = "fail"
)

type healthCheck struct {
	Name    string     `json:"name"`
	Level   checkLevel `json:"level"`
	Message string     `json:"message"`
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check config, catalog, tools and snapshots",
		Long: `Check that kickoff can run in this project.

Exits 0 when every check passes, 2 when only warnings were found and 1
when a check failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checks := a.healthChecks()
			code := 0
			for _, c := range checks {
				switch c.Level {
				case checkFail:
					code = 1
				case checkWarn:
					if code == 0 {
						code = 2
					}
				}
			}
			if a.jsonOut {
				if err := a.printJSON(checks); err != nil {
					return err
				}
			} else {
				st := progress.NewStyles(a.stdout)
				for _, c := range checks {
					icon := st.Pass.Render(progress.IconPass)
					switch c.Level {
					case checkWarn:
						icon = st.Warn.Render(progress.IconWarn)
					case checkFail:
						icon = st.Fail.Render(progress.IconFail)
					}
					fmt.Fprintf(a.stdout, "%s %-15s %s\n", icon, c.Name, c.Message)
				}
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func (a *app) healthChecks() []healthCheck {
	var checks []healthCheck
	add := func(name string, level checkLevel, format string, args ...any) {
		checks = append(checks, healthCheck{Name: name, Level: level, Message: fmt.Sprintf(format, args...)})
	}

	p, err := a.openProject()
	if err != nil {
		add("config", checkFail, "%v", err)
		return checks
	}
	add("config", checkOK, "loaded")

	if config.IsInitialized(a.root) {
		add("initialized", checkOK, "%s", p.paths.Dir())
	} else {
		add("initialized", checkWarn, "run 'kickoff init'")
	}

	cat, err := p.registry.Catalog()
	if err != nil {
		add("catalog", checkFail, "%v", err)
		return checks
	}
	add("catalog", checkOK, "%d tasks in %s", cat.Len(), cat.Path())

	var missingImpl []string
	tools := map[string]bool{}
	var toolOrder []string
	for _, t := range cat.Ordered() {
		if !t.Implemented {
			missingImpl = append(missingImpl, t.ID)
		}
		for _, tool := range t.RequiredTools {
			if !tools[tool] {
				tools[tool] = true
				toolOrder = append(toolOrder, tool)
			}
		}
	}
	if len(missingImpl) > 0 {
		add("implementations", checkWarn, "missing for %v", missingImpl)
	} else {
		add("implementations", checkOK, "all tasks implemented")
	}

	var missingTools []string
	for _, tool := range toolOrder {
		if _, err := exec.LookPath(tool); err != nil {
			missingTools = append(missingTools, tool)
		}
	}
	switch {
	case len(missingTools) > 0:
		add("tools", checkWarn, "not on PATH: %v", missingTools)
	case len(toolOrder) > 0:
		add("tools", checkOK, "%d required tools found", len(toolOrder))
	default:
		add("tools", checkOK, "none required")
	}

	if pid, alive := lock.NewPIDGuard(p.paths.PIDFile()).Holder(); alive {
		add("run guard", checkWarn, "a run is in progress (pid %d)", pid)
	} else {
		add("run guard", checkOK, "free")
	}

	report, err := state.NewTracker(p.paths).Report(cat)
	switch {
	case err != nil:
		add("state", checkFail, "%v", err)
	case report.Interrupted != nil:
		add("state", checkWarn, "run %s was interrupted; see 'kickoff repair status'", report.Interrupted.SessionID)
	default:
		add("state", checkOK, "%s", report.Status)
	}

	latest, ok, err := p.backups.Latest()
	switch {
	case err != nil:
		add("snapshots", checkFail, "%v", err)
	case !ok:
		add("snapshots", checkOK, "none taken")
	default:
		v, err := p.backups.Verify(latest.ID)
		switch {
		case err != nil:
			add("snapshots", checkFail, "%v", err)
		case !v.OK():
			add("snapshots", checkFail, "latest %s: %v", latest.ID, v.Problems)
		default:
			add("snapshots", checkOK, "latest %s verified (%d files)", latest.ID, v.Files)
		}
	}
	return checks
}
