package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/fsops"
)

// newFsCmd exposes the filesystem capability to task scripts. Scripts call
// "$KICKOFF_BIN fs ..." so that dry runs record instead of write.
func newFsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "fs",
		Short:  "Filesystem operations for task scripts (recorded during dry runs)",
		Hidden: true,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:  "mkdir <path>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fsops.FromEnv().MkdirAll(args[0], 0755)
			},
		},
		newFsWriteCmd(a),
		&cobra.Command{
			Use:  "copy <src> <dst>",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fsops.FromEnv().Copy(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:  "move <src> <dst>",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fsops.FromEnv().Move(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:  "rm <path>",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fsops.FromEnv().Remove(args[0])
			},
		},
		&cobra.Command{
			Use:   "sub <path> <old> <new>",
			Short: "Replace every occurrence of old with new",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return fsops.FromEnv().Substitute(args[0], args[1], args[2])
			},
		},
		&cobra.Command{
			Use:  "chmod <mode> <path>",
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				mode, err := parseMode(args[0])
				if err != nil {
					return err
				}
				return fsops.FromEnv().Chmod(args[1], mode)
			},
		},
		&cobra.Command{
			Use:  "chown <uid> <gid> <path>",
			Args: cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				uid, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("uid: %w", err)
				}
				gid, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("gid: %w", err)
				}
				return fsops.FromEnv().Chown(args[2], uid, gid)
			},
		},
	)
	return cmd
}

func newFsWriteCmd(a *app) *cobra.Command {
	var content, mode string
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "write <path>",
		Short: "Write --content, or stdin, to path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			perm, err := parseMode(mode)
			if err != nil {
				return err
			}
			data := []byte(content)
			if !cmd.Flags().Changed("content") || fromStdin {
				data, err = io.ReadAll(a.stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			return fsops.FromEnv().WriteFile(args[0], data, perm)
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "file content (default: read stdin)")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "read content from stdin")
	cmd.Flags().StringVar(&mode, "mode", "0644", "file mode in octal")
	return cmd
}

func parseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mode %q: %w", s, err)
	}
	return os.FileMode(v), nil
}
