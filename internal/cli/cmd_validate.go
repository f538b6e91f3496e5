package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/catalog"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalog.yaml]",
		Short: "Check a catalog file for errors",
		Long: `Check a catalog file for schema and reference errors.

Without an argument the configured catalog is checked. Tasks without an
implementation in the tasks directory are reported but do not fail
validation.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openProject()
			if err != nil {
				return err
			}
			path := p.registry.Path()
			if len(args) == 1 {
				path = args[0]
			}
			cat, err := catalog.Load(path)
			if err != nil {
				if a.jsonOut {
					_ = a.printJSON(map[string]any{"path": path, "valid": false, "error": err.Error()})
				}
				return err
			}
			cat = cat.WithImplementations(p.runner.Locator().Has)

			var missing []string
			for _, t := range cat.Ordered() {
				if !t.Implemented {
					missing = append(missing, t.ID)
				}
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{
					"path":          path,
					"valid":         true,
					"tasks":         cat.Len(),
					"phases":        len(cat.Phases()),
					"profiles":      len(cat.Profiles()),
					"unimplemented": missing,
				})
			}
			fmt.Fprintf(a.stdout, "%s is valid: %d tasks, %d phases, %d profiles\n",
				path, cat.Len(), len(cat.Phases()), len(cat.Profiles()))
			for _, id := range missing {
				fmt.Fprintf(a.stdout, "  warning: %s has no implementation\n", id)
			}
			return nil
		},
	}
}
