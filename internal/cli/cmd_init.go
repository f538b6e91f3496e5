package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/bootstrap"
	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/detect"
	"github.com/randalmurphal/kickoff/internal/util"
	"github.com/randalmurphal/kickoff/templates"
)

func newInitCmd(a *app) *cobra.Command {
	var force bool
	var mode string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize kickoff in the project directory",
		Long: `Initialize kickoff in the project directory.

Creates .kickoff/ with a default config, records the detected project
language, and adds kickoff's local files to .gitignore. When no catalog
exists yet, the default catalog is installed to $KICKOFF_HOME.

Examples:
  kickoff init                     # Initialize the current directory
  kickoff init --mode auto-approve # Run tasks without prompting by default
  kickoff init --force             # Rewrite an existing config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := bootstrap.Run(bootstrap.Options{
				WorkDir: a.root,
				Force:   force,
				Mode:    config.ExecutionMode(mode),
				Logger:  a.logger,
			})
			if err != nil {
				return err
			}
			catalogPath, seeded, err := a.seedCatalog()
			if err != nil {
				return err
			}

			if a.jsonOut {
				return a.printJSON(map[string]any{
					"config":            res.ConfigPath,
					"catalog":           catalogPath,
					"catalog_installed": seeded,
					"detection":         res.Detection,
					"reinitialized":     res.Reinitialized,
				})
			}
			verb := "Initialized"
			if res.Reinitialized {
				verb = "Reinitialized"
			}
			fmt.Fprintf(a.stdout, "%s kickoff in %s (%v)\n", verb, a.root, res.Duration.Round(time.Millisecond))
			if res.Detection != nil && res.Detection.Language != detect.ProjectTypeUnknown {
				fmt.Fprintf(a.stdout, "  Detected: %s\n", detect.Describe(res.Detection))
			}
			fmt.Fprintf(a.stdout, "  Config:   %s\n", res.ConfigPath)
			if seeded {
				fmt.Fprintf(a.stdout, "  Catalog:  %s (installed default)\n", catalogPath)
			} else {
				fmt.Fprintf(a.stdout, "  Catalog:  %s\n", catalogPath)
			}
			if res.GitignoreUpdated {
				fmt.Fprintln(a.stdout, "  Added kickoff entries to .gitignore")
			}
			fmt.Fprintf(a.stdout, "\nNext steps:\n")
			fmt.Fprintf(a.stdout, "  kickoff list            # See available tasks\n")
			fmt.Fprintf(a.stdout, "  kickoff run             # Choose what to run\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "rewrite an existing config")
	cmd.Flags().StringVar(&mode, "mode", "", "default execution mode (confirm, auto-approve, dry-run)")
	return cmd
}

// seedCatalog writes the embedded catalog when the config does not name a
// catalog and the default location is empty.
func (a *app) seedCatalog() (string, bool, error) {
	tc, err := a.loadConfig()
	if err != nil {
		return "", false, err
	}
	path := tc.Config.CatalogPath(a.root)
	if tc.Config.Catalog != "" || util.FileExists(path) {
		return path, false, nil
	}
	if err := util.AtomicWriteFile(path, templates.Catalog, 0644); err != nil {
		return path, false, fmt.Errorf("install default catalog: %w", err)
	}
	return path, true, nil
}
