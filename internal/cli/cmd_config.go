package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/config"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

type configEntry struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Show or change configuration.

Values are layered: defaults, ~/.kickoff/config.yaml, the project's
.kickoff/config.yaml, KICKOFF_* environment variables, --config and
finally command-line flags. 'config show' prints where each value came
from.`,
	}
	cmd.AddCommand(newConfigShowCmd(a), newConfigGetCmd(a), newConfigSetCmd(a))
	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print every setting with its source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tc, err := a.loadConfig()
			if err != nil {
				return err
			}
			entries := make([]configEntry, 0, len(config.ConfigPaths()))
			for _, key := range config.ConfigPaths() {
				entries = append(entries, configEntry{
					Key:    key,
					Value:  config.Value(tc.Config, key),
					Source: tc.GetTrackedSource(key).String(),
				})
			}
			if a.jsonOut {
				return a.printJSON(entries)
			}
			for _, e := range entries {
				fmt.Fprintf(a.stdout, "%-26s = %-20s (%s)\n", e.Key, e.Value, e.Source)
			}
			return nil
		},
	}
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print one setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !knownKey(args[0]) {
				return kerrors.ErrConfigInvalid(args[0], "unknown key")
			}
			tc, err := a.loadConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, config.Value(tc.Config, args[0]))
			return nil
		},
	}
}

func newConfigSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a setting in the project config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]
			if err := config.RequireInit(a.root); err != nil {
				return err
			}
			path := config.PathsFor(a.root).ConfigFile()
			cfg, err := config.LoadFrom(path)
			if err != nil {
				return err
			}
			if !config.SetValue(cfg, key, value) {
				return kerrors.ErrConfigInvalid(key, fmt.Sprintf("unknown key or bad value %q", value))
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s = %s\n", key, config.Value(cfg, key))
			return nil
		},
	}
}

func knownKey(key string) bool {
	for _, k := range config.ConfigPaths() {
		if k == key {
			return true
		}
	}
	return false
}
