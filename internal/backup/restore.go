package backup

import (
	"fmt"
	"os"
	"path/filepath"

	kerrors "github.com/randalmurphal/kickoff/internal/errors"
	"github.com/randalmurphal/kickoff/internal/lock"
	"github.com/randalmurphal/kickoff/internal/util"
)

// ReasonPreRestore marks the snapshot taken before a restore.
const ReasonPreRestore = "pre-restore"

// FileResult is the outcome of restoring one file.
type FileResult struct {
	Path string
	Err  error
}

// RestoreResult describes a restore.
type RestoreResult struct {
	ID           string
	PreRestoreID string
	Files        []FileResult
}

// Failed returns the paths that could not be restored.
func (r RestoreResult) Failed() []string {
	var out []string
	for _, f := range r.Files {
		if f.Err != nil {
			out = append(out, f.Path)
		}
	}
	return out
}

// Restore copies snapshot id back into the project. It holds the run
// guard, so it fails with RUN_IN_PROGRESS while a run is live. The
// snapshot is verified first and nothing is touched if verification
// fails. A pre-restore snapshot of the current files is taken before any
// file is overwritten; a partial restore points at it.
func (m *Manager) Restore(id string) (RestoreResult, error) {
	res := RestoreResult{ID: id}

	guard := lock.NewPIDGuard(m.pidFile)
	if err := guard.Acquire(); err != nil {
		return res, err
	}
	defer guard.Release()

	v, err := m.Verify(id)
	if err != nil {
		return res, err
	}
	if !v.OK() {
		m.logger.Warn("restore refused", "snapshot", id, "problems", v.Problems)
		return res, kerrors.ErrRestoreVerificationFailed(id, v.Problems)
	}

	meta, err := m.Metadata(id)
	if err != nil {
		return res, err
	}

	pre, err := m.CreateSnapshot(fmt.Sprintf("%s %s", ReasonPreRestore, id))
	if err != nil && !kerrors.HasCode(err, kerrors.CodeSnapshotCaptureIncomplete) {
		return res, fmt.Errorf("pre-restore snapshot: %w", err)
	}
	res.PreRestoreID = pre.ID

	src := filepath.Join(m.dir, meta.ID, filesDir)
	for _, f := range meta.Files {
		rel := filepath.FromSlash(f.Path)
		err := restoreFile(filepath.Join(src, rel), filepath.Join(m.root, rel))
		if err != nil {
			m.logger.Warn("restore file failed", "snapshot", id, "path", f.Path, "error", err)
		}
		res.Files = append(res.Files, FileResult{Path: f.Path, Err: err})
	}

	if failed := res.Failed(); len(failed) > 0 {
		return res, kerrors.ErrRestorePartial(id, res.PreRestoreID, failed)
	}
	m.logger.Info("snapshot restored", "snapshot", id, "files", len(res.Files), "pre_restore", res.PreRestoreID)
	return res, nil
}

func restoreFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return util.AtomicCopyFile(src, dst)
}
