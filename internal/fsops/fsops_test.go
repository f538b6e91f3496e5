package fsops

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scaffold is a small task body: two new files and one deletion.
func scaffold(ops Ops, dir string) error {
	if err := ops.WriteFile(filepath.Join(dir, "README.md"), []byte("# demo\n"), 0644); err != nil {
		return err
	}
	if err := ops.WriteFile(filepath.Join(dir, ".editorconfig"), []byte("root = true\n"), 0644); err != nil {
		return err
	}
	return ops.Remove(filepath.Join(dir, "legacy.cfg"))
}

func TestRecorderDoesNotMutate(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "legacy.cfg")
	require.NoError(t, os.WriteFile(legacy, []byte("[old]\n"), 0644))

	sink := NewMemorySink()
	require.NoError(t, scaffold(NewRecorder(sink), dir))

	recorded, err := sink.Entries()
	require.NoError(t, err)
	report := Analyze(recorded)
	assert.Equal(t, 2, report.Count(OpCreate))
	assert.Equal(t, 1, report.Count(OpDelete))
	assert.Equal(t, 3, report.Total())
	assert.True(t, report.Destructive)
	require.Len(t, report.Risks, 1)
	assert.Equal(t, legacy, report.Risks[0].Entry.Path)

	assert.FileExists(t, legacy)
	assert.NoFileExists(t, filepath.Join(dir, "README.md"))
	assert.NoFileExists(t, filepath.Join(dir, ".editorconfig"))
}

func TestRealApplies(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "legacy.cfg")
	require.NoError(t, os.WriteFile(legacy, []byte("[old]\n"), 0644))

	require.NoError(t, scaffold(NewReal(), dir))
	assert.NoFileExists(t, legacy)
	assert.FileExists(t, filepath.Join(dir, "README.md"))
}

func TestRecorderClassifiesWrites(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "package.json")
	require.NoError(t, os.WriteFile(existing, []byte(`{"name":"x"}`), 0644))

	sink := NewMemorySink()
	rec := NewRecorder(sink)
	require.NoError(t, rec.WriteFile(existing, []byte("{}"), 0644))
	require.NoError(t, rec.Substitute(existing, `"x"`, `"y"`))
	require.NoError(t, rec.Substitute(existing, "absent", "z"))
	require.NoError(t, rec.MkdirAll(dir, 0755))
	require.NoError(t, rec.MkdirAll(filepath.Join(dir, "src"), 0755))
	require.NoError(t, rec.Remove(filepath.Join(dir, "never-existed")))
	require.NoError(t, rec.Chmod(existing, 0600))

	entries, err := sink.Entries()
	require.NoError(t, err)
	ops := []Op{}
	for _, e := range entries {
		ops = append(ops, e.Op)
	}
	assert.Equal(t, []Op{OpModify, OpModify, OpCreate, OpChmod}, ops)
	assert.Equal(t, "replace 1 occurrence(s)", entries[1].Detail)
}

func TestRecorderCopyMoveRequireSource(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(NewMemorySink())
	assert.Error(t, rec.Copy(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")))
	assert.Error(t, rec.Move(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")))
}

func TestRealSubstituteAndMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tsconfig.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"target":"es5"}`), 0640))

	ops := NewReal()
	require.NoError(t, ops.Substitute(src, "es5", "es2022"))
	data, err := ops.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, `{"target":"es2022"}`, string(data))

	info, err := ops.Stat(src)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	dst := filepath.Join(dir, "config", "tsconfig.json")
	require.NoError(t, ops.MkdirAll(filepath.Dir(dst), 0755))
	require.NoError(t, ops.Move(src, dst))
	assert.False(t, ops.Exists(src))
	assert.True(t, ops.Exists(dst))
}

func TestRollbackPlan(t *testing.T) {
	report := Analyze([]Entry{
		{Op: OpCreate, Path: "a"},
		{Op: OpCopy, Path: "b", Target: "c"},
		{Op: OpMove, Path: "d", Target: "e"},
		{Op: OpDelete, Path: "f"},
		{Op: OpModify, Path: "g"},
	})

	require.Len(t, report.Rollback, 5)
	assert.Equal(t, "g", report.Rollback[0].Entry.Path, "rollback runs in reverse")
	assert.Contains(t, report.Rollback[0].Action, "snapshot")
	assert.False(t, report.Rollback[1].Recoverable)
	assert.Equal(t, "move e back to d", report.Rollback[2].Action)
	assert.Equal(t, "remove c", report.Rollback[3].Action)
	assert.Equal(t, "remove a", report.Rollback[4].Action)
	assert.Len(t, report.Risks, 2)
}

func TestAnalyzeEmpty(t *testing.T) {
	report := Analyze(nil)
	assert.False(t, report.Destructive)
	assert.Zero(t, report.Total())
	assert.Empty(t, report.Rollback)
}

func TestFileSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.jsonl")
	sink := NewFileSink(path)
	require.NoError(t, sink.Record(Entry{Op: OpCreate, Path: "/p/a"}))
	require.NoError(t, sink.Record(Entry{Op: OpMove, Path: "/p/a", Target: "/p/b"}))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, _ = f.WriteString("garbage line\n")
	require.NoError(t, f.Close())

	entries, err := ReadLog(path)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Op: OpCreate, Path: "/p/a"},
		{Op: OpMove, Path: "/p/a", Target: "/p/b"},
	}, entries)
	fromSink, err := sink.Entries()
	require.NoError(t, err)
	assert.Len(t, fromSink, 2)

	missing, err := ReadLog(filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestFileSinkUnreadableLog(t *testing.T) {
	// A directory opens but cannot be scanned.
	sink := NewFileSink(t.TempDir())
	_, err := sink.Entries()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read ops log")
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvOpsLog, "")
	_, isReal := FromEnv().(*Real)
	assert.True(t, isReal)

	t.Setenv(EnvOpsLog, filepath.Join(t.TempDir(), "ops.jsonl"))
	_, isRecorder := FromEnv().(*Recorder)
	assert.True(t, isRecorder)
}
