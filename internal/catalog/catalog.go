// Package catalog loads and validates the declarative task catalog.
//
// A catalog declares tasks (keyed by id), phases (keyed by ordinal) and
// profiles (named, ordered task lists). Declaration order of tasks is
// significant: it breaks ties inside a phase, so the loader walks the YAML
// node tree instead of decoding into maps.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strconv"
)

// Task is one idempotent setup unit.
type Task struct {
	ID               string
	Phase            int
	Category         string
	Description      string
	Dependencies     []string
	SoftDependencies []string
	RequiredTools    []string
	Outputs          []string
	HasQuestions     bool

	// Implemented is true when an implementation was found for the task.
	Implemented bool

	// Order is the declaration index within the catalog.
	Order int
}

func (t Task) clone() Task {
	t.Dependencies = cloneStrings(t.Dependencies)
	t.SoftDependencies = cloneStrings(t.SoftDependencies)
	t.RequiredTools = cloneStrings(t.RequiredTools)
	t.Outputs = cloneStrings(t.Outputs)
	return t
}

// DependsOn reports whether id is a hard dependency of t.
func (t Task) DependsOn(id string) bool {
	for _, dep := range t.Dependencies {
		if dep == id {
			return true
		}
	}
	return false
}

// Phase groups tasks by ordinal.
type Phase struct {
	Number int
	Name   string
	Color  string
}

// Profile is a named, ordered task list.
type Profile struct {
	Name        string
	Description string
	Tasks       []string
}

// Catalog is a validated, read-only task catalog.
type Catalog struct {
	path     string
	tasks    []Task
	byID     map[string]int
	phases   map[int]Phase
	profiles []Profile
}

// Load reads and validates the catalog at path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(path, data)
}

// Path returns the file the catalog was loaded from.
func (c *Catalog) Path() string { return c.path }

// Len returns the number of declared tasks.
func (c *Catalog) Len() int { return len(c.tasks) }

// Tasks returns every task in declaration order.
func (c *Catalog) Tasks() []Task {
	out := make([]Task, len(c.tasks))
	for i, t := range c.tasks {
		out[i] = t.clone()
	}
	return out
}

// Task looks up a task by id.
func (c *Catalog) Task(id string) (Task, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Task{}, false
	}
	return c.tasks[i].clone(), true
}

// Has reports whether id names a declared task.
func (c *Catalog) Has(id string) bool {
	_, ok := c.byID[id]
	return ok
}

// Ordered returns every task sorted by ascending phase, then declaration order.
func (c *Catalog) Ordered() []Task {
	out := c.Tasks()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Phase != out[j].Phase {
			return out[i].Phase < out[j].Phase
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// PhaseTasks returns the tasks of one phase in declaration order.
func (c *Catalog) PhaseTasks(number int) []Task {
	var out []Task
	for _, t := range c.tasks {
		if t.Phase == number {
			out = append(out, t.clone())
		}
	}
	return out
}

// Phases returns the phases that are declared or used by a task, ascending.
// Phases used but not declared get a generated name.
func (c *Catalog) Phases() []Phase {
	seen := make(map[int]Phase, len(c.phases))
	for n, p := range c.phases {
		seen[n] = p
	}
	for _, t := range c.tasks {
		if _, ok := seen[t.Phase]; !ok {
			seen[t.Phase] = Phase{Number: t.Phase, Name: "Phase " + strconv.Itoa(t.Phase)}
		}
	}
	out := make([]Phase, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Phase returns the phase with the given ordinal.
func (c *Catalog) Phase(number int) (Phase, bool) {
	for _, p := range c.Phases() {
		if p.Number == number {
			return p, true
		}
	}
	return Phase{}, false
}

// Profiles returns the profiles in declaration order.
func (c *Catalog) Profiles() []Profile {
	out := make([]Profile, len(c.profiles))
	for i, p := range c.profiles {
		p.Tasks = cloneStrings(p.Tasks)
		out[i] = p
	}
	return out
}

// Profile looks up a profile by name.
func (c *Catalog) Profile(name string) (Profile, bool) {
	for _, p := range c.profiles {
		if p.Name == name {
			p.Tasks = cloneStrings(p.Tasks)
			return p, true
		}
	}
	return Profile{}, false
}

// Dependents returns the tasks that declare id as a hard dependency,
// in declaration order.
func (c *Catalog) Dependents(id string) []Task {
	var out []Task
	for _, t := range c.tasks {
		if t.DependsOn(id) {
			out = append(out, t.clone())
		}
	}
	return out
}

// WithImplementations returns a copy of the catalog whose tasks have
// Implemented set by the locate function.
func (c *Catalog) WithImplementations(locate func(id string) bool) *Catalog {
	cp := &Catalog{
		path:     c.path,
		tasks:    make([]Task, len(c.tasks)),
		byID:     c.byID,
		phases:   c.phases,
		profiles: c.profiles,
	}
	for i, t := range c.tasks {
		t = t.clone()
		t.Implemented = locate(t.ID)
		cp.tasks[i] = t
	}
	return cp
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
