// Package registry resolves selectors against the task catalog.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/randalmurphal/kickoff/internal/catalog"
	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

// SelectorAll selects every task in the catalog.
const SelectorAll = "all"

// Kind is the type of thing a selector named.
type Kind string

const (
	KindAll     Kind = "all"
	KindPhase   Kind = "phase"
	KindTask    Kind = "task"
	KindProfile Kind = "profile"
)

// Selection is a resolved selector.
type Selection struct {
	Selector string
	Kind     Kind
	Name     string
	Tasks    []catalog.Task
}

// IDs returns the selected task ids in execution order.
func (s Selection) IDs() []string {
	out := make([]string, len(s.Tasks))
	for i, t := range s.Tasks {
		out[i] = t.ID
	}
	return out
}

// Registry loads the catalog on demand and caches it until the file changes.
type Registry struct {
	path        string
	locate      func(id string) bool
	logger      *slog.Logger
	concurrency int

	mu     sync.Mutex
	cached *catalog.Catalog
	stamp  fileStamp

	scanMu   sync.Mutex
	scanDone chan struct{}
	scanErr  error
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithLocator sets the function that reports whether a task has an implementation.
func WithLocator(locate func(id string) bool) Option {
	return func(r *Registry) { r.locate = locate }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates a registry for the catalog at path.
func New(path string, opts ...Option) *Registry {
	r := &Registry{
		path:        path,
		locate:      func(string) bool { return false },
		logger:      slog.Default(),
		concurrency: 8,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the catalog path.
func (r *Registry) Path() string { return r.path }

// Catalog returns the validated catalog, reloading it if the file changed
// since the last load.
func (r *Registry) Catalog() (*catalog.Catalog, error) {
	return r.load(context.Background())
}

func (r *Registry) load(ctx context.Context) (*catalog.Catalog, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		return nil, kerrors.ErrCatalogInvalid(r.path, []string{err.Error()})
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}

	r.mu.Lock()
	if r.cached != nil && r.stamp == stamp {
		c := r.cached
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	c, err := catalog.Load(r.path)
	if err != nil {
		return nil, err
	}
	c, err = r.markImplementations(ctx, c)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cached = c
	r.stamp = stamp
	r.mu.Unlock()

	r.logger.Debug("catalog loaded", "path", r.path, "tasks", c.Len())
	return c, nil
}

// markImplementations probes every task's implementation concurrently.
func (r *Registry) markImplementations(ctx context.Context, c *catalog.Catalog) (*catalog.Catalog, error) {
	tasks := c.Tasks()
	found := make([]bool, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, t := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			found[i] = r.locate(t.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("probe implementations: %w", err)
	}

	byID := make(map[string]bool, len(tasks))
	for i, t := range tasks {
		byID[t.ID] = found[i]
	}
	return c.WithImplementations(func(id string) bool { return byID[id] }), nil
}

// Prescan starts loading the catalog in the background. It is read only
// and safe to call more than once; only the first call starts a scan.
func (r *Registry) Prescan(ctx context.Context) {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()
	if r.scanDone != nil {
		return
	}
	done := make(chan struct{})
	r.scanDone = done

	go func() {
		defer close(done)
		_, err := r.load(ctx)
		r.scanMu.Lock()
		r.scanErr = err
		r.scanMu.Unlock()
		if err != nil {
			r.logger.Debug("catalog prescan failed", "error", err)
		}
	}()
}

// WaitPrescan waits up to timeout for a started pre-scan. It returns the
// scan error, context.DeadlineExceeded when the wait timed out, or nil when
// no scan was started. A timed out scan keeps running.
func (r *Registry) WaitPrescan(timeout time.Duration) error {
	r.scanMu.Lock()
	done := r.scanDone
	r.scanMu.Unlock()
	if done == nil {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		r.scanMu.Lock()
		defer r.scanMu.Unlock()
		return r.scanErr
	case <-timer.C:
		return context.DeadlineExceeded
	}
}

// Resolve returns the tasks a selector names, in execution order.
func (r *Registry) Resolve(selector string) ([]catalog.Task, error) {
	sel, err := r.ResolveSelection(selector)
	if err != nil {
		return nil, err
	}
	return sel.Tasks, nil
}

// ResolveSelection resolves selector, which is "all", a phase number, a
// task id or a profile name. A "task:", "phase:" or "profile:" prefix
// forces the kind.
func (r *Registry) ResolveSelection(selector string) (Selection, error) {
	c, err := r.Catalog()
	if err != nil {
		return Selection{}, err
	}
	return Resolve(c, selector)
}

// Resolve resolves selector against an already loaded catalog.
func Resolve(c *catalog.Catalog, selector string) (Selection, error) {
	selector = strings.TrimSpace(selector)
	kind, name := splitSelector(selector)
	sel := Selection{Selector: selector, Name: name}

	if (kind == "" || kind == KindAll) && name == SelectorAll {
		sel.Kind = KindAll
		sel.Tasks = c.Ordered()
		return sel, nil
	}
	if kind == "" || kind == KindPhase {
		if n, err := strconv.Atoi(name); err == nil {
			if tasks := c.PhaseTasks(n); len(tasks) > 0 {
				sel.Kind = KindPhase
				sel.Tasks = tasks
				return sel, nil
			}
		}
	}
	if kind == "" || kind == KindTask {
		if t, ok := c.Task(name); ok {
			sel.Kind = KindTask
			sel.Tasks = []catalog.Task{t}
			return sel, nil
		}
	}
	if kind == "" || kind == KindProfile {
		if p, ok := c.Profile(name); ok {
			sel.Kind = KindProfile
			for _, id := range p.Tasks {
				t, _ := c.Task(id)
				sel.Tasks = append(sel.Tasks, t)
			}
			return sel, nil
		}
	}
	return Selection{}, kerrors.ErrSelectorUnresolved(selector, suggest(c, name))
}

func splitSelector(selector string) (Kind, string) {
	prefix, rest, ok := strings.Cut(selector, ":")
	if !ok {
		return "", selector
	}
	switch Kind(prefix) {
	case KindTask, KindPhase, KindProfile, KindAll:
		return Kind(prefix), rest
	}
	return "", selector
}

// suggest returns up to three task or profile names sharing a prefix or
// substring with name.
func suggest(c *catalog.Catalog, name string) []string {
	if name == "" {
		return nil
	}
	name = strings.ToLower(name)
	var candidates []string
	for _, t := range c.Tasks() {
		candidates = append(candidates, t.ID)
	}
	for _, p := range c.Profiles() {
		candidates = append(candidates, p.Name)
	}

	var prefix, contains []string
	for _, cand := range candidates {
		lc := strings.ToLower(cand)
		switch {
		case strings.HasPrefix(lc, name):
			prefix = append(prefix, cand)
		case strings.Contains(lc, name):
			contains = append(contains, cand)
		}
	}
	sort.Strings(prefix)
	sort.Strings(contains)
	out := append(prefix, contains...)
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}
