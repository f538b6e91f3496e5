package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/backup"
	"github.com/randalmurphal/kickoff/internal/config"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

func newBackupCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Manage snapshots of the project's critical files",
		Long: `Manage snapshots of the project's critical files.

Snapshots live in .kickoff/backups/<timestamp>/ with a metadata.json that
records a BLAKE3 digest per file. The critical set is the project's
kickoff config and dotfiles plus any backup.include patterns.`,
	}
	cmd.AddCommand(
		newBackupCreateCmd(a),
		newBackupListCmd(a),
		newBackupVerifyCmd(a),
		newBackupRestoreCmd(a),
		newBackupPruneCmd(a),
	)
	return cmd
}

func (a *app) initializedProject() (*project, error) {
	if err := config.RequireInit(a.root); err != nil {
		return nil, err
	}
	return a.openProject()
}

// snapshotID resolves an optional id argument, defaulting to the latest.
func snapshotID(m *backup.Manager, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	latest, ok, err := m.Latest()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", kerrors.ErrSnapshotNotFound("latest")
	}
	return latest.ID, nil
}

func newBackupCreateCmd(a *app) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the critical files now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.initializedProject()
			if err != nil {
				return err
			}
			meta, err := p.backups.CreateSnapshot(reason)
			if err != nil && !kerrors.HasCode(err, kerrors.CodeSnapshotCaptureIncomplete) {
				return err
			}
			if a.jsonOut {
				if jerr := a.printJSON(meta); jerr != nil {
					return jerr
				}
			} else {
				fmt.Fprintf(a.stdout, "Created snapshot %s (%d files)\n", meta.ID, len(meta.Files))
			}
			// An incomplete capture still produced a snapshot; err carries the warning.
			return err
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "manual", "note stored with the snapshot")
	return cmd
}

func newBackupListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.initializedProject()
			if err != nil {
				return err
			}
			metas, err := p.backups.List()
			if err != nil {
				return err
			}
			if a.jsonOut {
				if metas == nil {
					metas = []backup.Metadata{}
				}
				return a.printJSON(metas)
			}
			if len(metas) == 0 {
				fmt.Fprintln(a.stdout, "No snapshots.")
				return nil
			}
			rows := make([][]string, 0, len(metas))
			for _, m := range metas {
				rows = append(rows, []string{
					m.ID,
					m.CreatedAt.Local().Format(time.DateTime),
					strconv.Itoa(len(m.Files)),
					m.Reason,
				})
			}
			a.printTable([]string{"ID", "CREATED", "FILES", "REASON"}, rows)
			return nil
		},
	}
}

func newBackupVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [id]",
		Short: "Check a snapshot's digests and file syntax (default: latest)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.initializedProject()
			if err != nil {
				return err
			}
			id, err := snapshotID(p.backups, args)
			if err != nil {
				return err
			}
			v, err := p.backups.Verify(id)
			if err != nil {
				return err
			}
			if a.jsonOut {
				if err := a.printJSON(map[string]any{"id": v.ID, "files": v.Files, "ok": v.OK(), "problems": v.Problems}); err != nil {
					return err
				}
			} else if v.OK() {
				fmt.Fprintf(a.stdout, "Snapshot %s verified: %d files\n", v.ID, v.Files)
			} else {
				fmt.Fprintf(a.stdout, "Snapshot %s has %d problem(s):\n", v.ID, len(v.Problems))
				for _, problem := range v.Problems {
					fmt.Fprintf(a.stdout, "  %s\n", problem)
				}
			}
			if !v.OK() {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func newBackupRestoreCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "restore [id]",
		Short: "Restore a snapshot over the current files (default: latest)",
		Long: `Restore a snapshot over the current files.

The snapshot is verified first and nothing is written if it fails. The
current files are snapshotted before anything is overwritten, so a
restore can itself be undone.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.initializedProject()
			if err != nil {
				return err
			}
			id, err := snapshotID(p.backups, args)
			if err != nil {
				return err
			}
			if !yes {
				ok, err := a.ask(fmt.Sprintf("Restore snapshot %s into %s?", id, a.root))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.stdout, "Restore cancelled")
					return nil
				}
			}
			res, err := p.backups.Restore(id)
			if res.PreRestoreID != "" && !a.jsonOut {
				fmt.Fprintf(a.stdout, "Current files saved as snapshot %s\n", res.PreRestoreID)
			}
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{"id": res.ID, "pre_restore": res.PreRestoreID, "files": len(res.Files)})
			}
			fmt.Fprintf(a.stdout, "Restored %d files from %s\n", len(res.Files), res.ID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "restore without asking")
	return cmd
}

func newBackupPruneCmd(a *app) *cobra.Command {
	var keep int
	var yes, dryRun bool
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.initializedProject()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = p.cfg.Backup.Keep
			}
			if keep < 0 {
				return kerrors.ErrConfigInvalid("--keep", "must not be negative")
			}
			plan, err := p.backups.PrunePlan(keep)
			if err != nil {
				return err
			}
			if len(plan) == 0 {
				fmt.Fprintf(a.stdout, "Nothing to prune (keeping %d)\n", keep)
				return nil
			}
			for _, m := range plan {
				fmt.Fprintf(a.stdout, "  %s  %s\n", m.ID, m.Reason)
			}
			if dryRun {
				fmt.Fprintf(a.stdout, "Would delete %d snapshot(s)\n", len(plan))
				return nil
			}
			if !yes {
				ok, err := a.ask(fmt.Sprintf("Delete %d snapshot(s)?", len(plan)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.stdout, "Prune cancelled")
					return nil
				}
			}
			removed, err := p.backups.Prune(keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted %d snapshot(s)\n", len(removed))
			return nil
		},
	}
	cmd.Flags().IntVar(&keep, "keep", 0, "snapshots to keep (default: backup.keep)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "delete without asking")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only show what would be deleted")
	return cmd
}
