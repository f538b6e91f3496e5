// Package fsops is the filesystem capability handed to tasks.
//
// Tasks mutate the project only through Ops. The engine passes Real for
// normal runs and a Recorder for dry runs; the Recorder logs each mutation
// instead of applying it while reads still hit the real filesystem.
package fsops

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/randalmurphal/kickoff/internal/util"
)

// EnvOpsLog names the JSONL log that script tasks append to during a dry run.
const EnvOpsLog = "KICKOFF_OPS_LOG"

// Op is the kind of a filesystem mutation.
type Op string

const (
	OpCreate Op = "create"
	OpCopy   Op = "copy"
	OpMove   Op = "move"
	OpDelete Op = "delete"
	OpModify Op = "modify"
	OpChmod  Op = "chmod"
	OpChown  Op = "chown"
)

// AllOps lists every op in report order.
var AllOps = []Op{OpCreate, OpCopy, OpMove, OpDelete, OpModify, OpChmod, OpChown}

// Entry is one recorded mutation.
type Entry struct {
	Op     Op     `json:"op"`
	Path   string `json:"path"`
	Target string `json:"target,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func (e Entry) String() string {
	s := fmt.Sprintf("%-6s %s", e.Op, e.Path)
	if e.Target != "" {
		s += " -> " + e.Target
	}
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	return s
}

// Ops is the filesystem capability. Mutating methods are intercepted in
// dry-run mode; ReadFile, Stat and Exists always read the real filesystem.
type Ops interface {
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(path string, data []byte, perm os.FileMode) error
	Copy(src, dst string) error
	Move(src, dst string) error
	Remove(path string) error
	Substitute(path, old, replacement string) error
	Chmod(path string, mode os.FileMode) error
	Chown(path string, uid, gid int) error

	ReadFile(path string) ([]byte, error)
	Stat(path string) (os.FileInfo, error)
	Exists(path string) bool
}

// reader implements the pass-through half of Ops.
type reader struct{}

func (reader) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }
func (reader) Stat(path string) (os.FileInfo, error) { return os.Stat(path) }
func (reader) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Real applies every operation to the filesystem.
type Real struct{ reader }

// NewReal returns the applying implementation.
func NewReal() *Real { return &Real{} }

func (*Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (*Real) WriteFile(path string, data []byte, perm os.FileMode) error {
	return util.AtomicWriteFile(path, data, perm)
}

func (*Real) Copy(src, dst string) error {
	return util.AtomicCopyFile(src, dst)
}

// Move renames src to dst, falling back to copy and delete across devices.
func (*Real) Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}
	if err := util.AtomicCopyFile(src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	return os.Remove(src)
}

func (*Real) Remove(path string) error {
	return os.RemoveAll(path)
}

func (*Real) Substitute(path, old, replacement string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	updated := strings.ReplaceAll(string(data), old, replacement)
	if updated == string(data) {
		return nil
	}
	return util.AtomicWriteFile(path, []byte(updated), info.Mode().Perm())
}

func (*Real) Chmod(path string, mode os.FileMode) error {
	return os.Chmod(path, mode)
}

func (*Real) Chown(path string, uid, gid int) error {
	return os.Chown(path, uid, gid)
}

// Recorder logs mutations to a sink without applying them.
type Recorder struct {
	reader
	sink Sink
}

// NewRecorder returns a recording implementation writing to sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Sink returns the recorder's sink.
func (r *Recorder) Sink() Sink { return r.sink }

func (r *Recorder) MkdirAll(path string, perm os.FileMode) error {
	if r.Exists(path) {
		return nil
	}
	return r.sink.Record(Entry{Op: OpCreate, Path: path, Detail: fmt.Sprintf("directory %#o", perm)})
}

// WriteFile records a create for a new file and a modify for an existing one.
func (r *Recorder) WriteFile(path string, data []byte, perm os.FileMode) error {
	op := OpCreate
	if r.Exists(path) {
		op = OpModify
	}
	return r.sink.Record(Entry{Op: op, Path: path, Detail: fmt.Sprintf("%d bytes", len(data))})
}

func (r *Recorder) Copy(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return r.sink.Record(Entry{Op: OpCopy, Path: src, Target: dst})
}

func (r *Recorder) Move(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return err
	}
	return r.sink.Record(Entry{Op: OpMove, Path: src, Target: dst})
}

func (r *Recorder) Remove(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return r.sink.Record(Entry{Op: OpDelete, Path: path})
}

func (r *Recorder) Substitute(path, old, replacement string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	n := strings.Count(string(data), old)
	if n == 0 {
		return nil
	}
	return r.sink.Record(Entry{Op: OpModify, Path: path, Detail: fmt.Sprintf("replace %d occurrence(s)", n)})
}

func (r *Recorder) Chmod(path string, mode os.FileMode) error {
	return r.sink.Record(Entry{Op: OpChmod, Path: path, Detail: fmt.Sprintf("%#o", mode)})
}

func (r *Recorder) Chown(path string, uid, gid int) error {
	return r.sink.Record(Entry{Op: OpChown, Path: path, Detail: fmt.Sprintf("%d:%d", uid, gid)})
}

var (
	_ Ops = (*Real)(nil)
	_ Ops = (*Recorder)(nil)
)
