// Package cli implements the kickoff command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

// exitError carries a non-zero exit status that has already been reported.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	ctx, cancel := SetupSignalHandler(os.Stderr)
	defer cancel()
	return newApp(os.Stdin, os.Stdout, os.Stderr).execute(ctx, os.Args[1:])
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	PrintError(a.stderr, err, a.verbose)
	return kerrors.ExitCode(err)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "kickoff",
		Short: "Bootstrap projects from a catalog of idempotent setup tasks",
		Long: `kickoff runs setup tasks from a catalog against a project directory.

Tasks are grouped in phases and profiles, run in dependency order, and
leave a completion marker so re-running is always safe.

Quick start:
  kickoff init              Initialize kickoff in the current project
  kickoff run               Pick tasks from an interactive menu
  kickoff run all --yes     Run every task without prompting
  kickoff status            Show what has been done`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initGlobals(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("dir", "C", ".", "project directory")
	flags.String("config", "", "extra config file layered over the project config")
	flags.String("catalog", "", "task catalog (default $KICKOFF_HOME/catalog.yaml)")
	flags.String("tasks-dir", "", "task implementations directory (default $KICKOFF_HOME/tasks)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.BoolP("quiet", "q", false, "suppress non-essential output")
	flags.Bool("json", false, "output as JSON")
	for _, name := range []string{"dir", "config", "verbose", "quiet", "json"} {
		_ = a.v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(
		newInitCmd(a),
		newRunCmd(a),
		newListCmd(a),
		newValidateCmd(a),
		newStatusCmd(a),
		newHealthCmd(a),
		newRepairCmd(a),
		newBackupCmd(a),
		newConfigCmd(a),
		newFsCmd(a),
		newVersionCmd(a),
	)
	return root
}

// initGlobals resolves the global flags. Flags win over KICKOFF_* env vars.
func (a *app) initGlobals(cmd *cobra.Command) error {
	a.verbose = a.v.GetBool("verbose")
	a.quiet = a.v.GetBool("quiet")
	a.jsonOut = a.v.GetBool("json")
	a.configFile = a.v.GetString("config")

	flags := cmd.Flags()
	if f := flags.Lookup("catalog"); f != nil && f.Changed {
		a.catalogPath = f.Value.String()
	}
	if f := flags.Lookup("tasks-dir"); f != nil && f.Changed {
		a.tasksDir = f.Value.String()
	}

	root, err := filepath.Abs(a.v.GetString("dir"))
	if err != nil {
		return fmt.Errorf("resolve project directory: %w", err)
	}
	a.root = root
	a.logger = newLogger(a.stderr, "warn", "text", a.verbose)
	return nil
}
