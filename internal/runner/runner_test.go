package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/kickoff/internal/fsops"
)

func writeScript(t *testing.T, dir, name, body string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), perm))
	return path
}

func newTestRunner(t *testing.T, tasksDir string, builtins *Builtins) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	r := New(&Locator{Dir: tasksDir, Builtins: builtins}, WithOutput(&stdout, &stderr))
	return r, &stdout, &stderr
}

func TestLocatorFind(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "git", "exit 0\n", 0755)
	writeScript(t, dir, "packages.sh", "exit 0\n", 0644)
	writeScript(t, dir, filepath.Join("linting", "run"), "exit 0\n", 0755)
	writeScript(t, dir, "notexec", "exit 0\n", 0644)

	builtins := NewBuiltins()
	builtins.Register("git", func(context.Context, Env) error { return nil })
	l := &Locator{Dir: dir, Builtins: builtins}

	impl, ok := l.Find("git")
	require.True(t, ok)
	assert.NotNil(t, impl.Builtin, "builtin wins over script")

	impl, ok = l.Find("packages")
	require.True(t, ok)
	assert.True(t, impl.Shell)
	assert.Equal(t, filepath.Join(dir, "packages.sh"), impl.Path)

	impl, ok = l.Find("linting")
	require.True(t, ok)
	assert.False(t, impl.Shell)

	assert.False(t, l.Has("notexec"))
	assert.False(t, l.Has("missing"))
	assert.False(t, (&Locator{}).Has("git"))
}

func TestRunScriptEnvironment(t *testing.T) {
	tasksDir := t.TempDir()
	target := t.TempDir()
	writeScript(t, tasksDir, "git", `echo "$KICKOFF_TASK_ID|$KICKOFF_TARGET_DIR|$KICKOFF_DRY_RUN|$1|$(pwd)|${KICKOFF_OPS_LOG:-none}"`+"\n", 0755)

	r, stdout, _ := newTestRunner(t, tasksDir, nil)
	res := r.Run(context.Background(), "git", Request{TargetDir: target})
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.ExitCode)

	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	fields := strings.Split(strings.TrimSpace(stdout.String()), "|")
	require.Len(t, fields, 6)
	assert.Equal(t, "git", fields[0])
	assert.Equal(t, target, fields[1])
	assert.Equal(t, "0", fields[2])
	assert.Equal(t, target, fields[3])
	assert.Equal(t, resolved, fields[4])
	assert.Equal(t, "none", fields[5])
}

func TestRunScriptDryRunPassesOpsLog(t *testing.T) {
	tasksDir := t.TempDir()
	writeScript(t, tasksDir, "git", `echo "$KICKOFF_DRY_RUN $KICKOFF_OPS_LOG"`+"\n", 0755)

	r, stdout, _ := newTestRunner(t, tasksDir, nil)
	res := r.Run(context.Background(), "git", Request{TargetDir: t.TempDir(), DryRun: true, OpsLog: "/tmp/ops.jsonl"})
	require.NoError(t, res.Err)
	assert.Equal(t, "1 /tmp/ops.jsonl", strings.TrimSpace(stdout.String()))
}

func TestRunScriptFailure(t *testing.T) {
	tasksDir := t.TempDir()
	writeScript(t, tasksDir, "packages.sh", "echo 'npm: not found' >&2\nexit 3\n", 0644)

	r, _, stderr := newTestRunner(t, tasksDir, nil)
	res := r.Run(context.Background(), "packages", Request{TargetDir: t.TempDir()})
	require.Error(t, res.Err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Err.Error(), "status 3")
	assert.Contains(t, res.Err.Error(), "npm: not found")
	assert.Contains(t, stderr.String(), "npm: not found")
}

func TestRunIgnoresCancelledContext(t *testing.T) {
	builtins := NewBuiltins()
	var sawCancel bool
	builtins.Register("slow", func(ctx context.Context, env Env) error {
		sawCancel = ctx.Err() != nil
		return nil
	})
	r, _, _ := newTestRunner(t, "", builtins)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Run(ctx, "slow", Request{TargetDir: t.TempDir()})
	require.NoError(t, res.Err)
	assert.False(t, sawCancel)
}

func TestRunBuiltinUsesOps(t *testing.T) {
	builtins := NewBuiltins()
	builtins.Register("readme", func(ctx context.Context, env Env) error {
		return env.Ops.WriteFile(filepath.Join(env.TargetDir, "README.md"), []byte("# x\n"), 0644)
	})
	r, _, _ := newTestRunner(t, "", builtins)
	target := t.TempDir()

	sink := fsops.NewMemorySink()
	res := r.Run(context.Background(), "readme", Request{TargetDir: target, DryRun: true, Ops: fsops.NewRecorder(sink)})
	require.NoError(t, res.Err)
	assert.NoFileExists(t, filepath.Join(target, "README.md"))
	recorded, err := sink.Entries()
	require.NoError(t, err)
	assert.Len(t, recorded, 1)

	res = r.Run(context.Background(), "readme", Request{TargetDir: target})
	require.NoError(t, res.Err)
	assert.FileExists(t, filepath.Join(target, "README.md"))
}

func TestRunBuiltinPanicBecomesError(t *testing.T) {
	builtins := NewBuiltins()
	builtins.Register("boom", func(context.Context, Env) error { panic("kaboom") })
	r, _, _ := newTestRunner(t, "", builtins)

	res := r.Run(context.Background(), "boom", Request{TargetDir: t.TempDir()})
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestRunMissingImplementation(t *testing.T) {
	r, _, _ := newTestRunner(t, t.TempDir(), nil)
	res := r.Run(context.Background(), "ghost", Request{TargetDir: t.TempDir()})
	assert.True(t, errors.Is(res.Err, ErrNoImplementation))
}

func TestTailBuffer(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("first line\nsecond\n"))
	assert.Equal(t, "second", tb.LastLine())
	assert.LessOrEqual(t, len(tb.buf), 8)
}
