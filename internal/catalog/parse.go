package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	kerrors "github.com/randalmurphal/kickoff/internal/errors"
)

//go:embed schema.json
var schemaJSON string

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("catalog.schema.json", strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile("catalog.schema.json")
})

type taskEntry struct {
	Phase            int      `yaml:"phase"`
	Category         string   `yaml:"category"`
	Description      string   `yaml:"description"`
	Dependencies     []string `yaml:"dependencies"`
	SoftDependencies []string `yaml:"softDependencies"`
	RequiredTools    []string `yaml:"requiredTools"`
	Outputs          []string `yaml:"outputs"`
	HasQuestions     bool     `yaml:"hasQuestions"`
}

type phaseEntry struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type profileEntry struct {
	Description string   `yaml:"description"`
	Tasks       []string `yaml:"tasks"`
}

// namedColors maps the eight basic color names to ANSI indexes.
var namedColors = map[string]string{
	"black": "0", "red": "1", "green": "2", "yellow": "3",
	"blue": "4", "magenta": "5", "cyan": "6", "white": "7",
}

// Parse validates data (YAML or JSON) and builds a catalog. Every problem
// found is reported in a single CATALOG_INVALID error.
func Parse(path string, data []byte) (*Catalog, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, kerrors.ErrCatalogInvalid(path, []string{err.Error()})
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, kerrors.ErrCatalogInvalid(path, []string{"catalog is empty"})
	}
	root := doc.Content[0]

	if problems := validateSchema(root); len(problems) > 0 {
		return nil, kerrors.ErrCatalogInvalid(path, problems)
	}

	c := &Catalog{
		path:   path,
		byID:   make(map[string]int),
		phases: make(map[int]Phase),
	}
	var problems []string
	for _, pair := range mappingPairs(root) {
		var err error
		switch pair.key {
		case "tasks":
			err = c.decodeTasks(pair.value)
		case "phases":
			err = c.decodePhases(pair.value)
		case "profiles":
			err = c.decodeProfiles(pair.value)
		}
		if err != nil {
			problems = append(problems, err.Error())
		}
	}
	problems = append(problems, c.validate()...)
	if len(problems) > 0 {
		return nil, kerrors.ErrCatalogInvalid(path, problems)
	}
	return c, nil
}

func validateSchema(root *yaml.Node) []string {
	schema, err := compileSchema()
	if err != nil {
		return []string{fmt.Sprintf("compile catalog schema: %v", err)}
	}

	var generic any
	if err := root.Decode(&generic); err != nil {
		return []string{err.Error()}
	}
	// Round-trip through JSON so numbers and map keys have the types the
	// validator expects.
	b, err := json.Marshal(normalize(generic))
	if err != nil {
		return []string{err.Error()}
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return []string{err.Error()}
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var problems []string
	collectLeaves(ve, &problems)
	return problems
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, out)
	}
}

// normalize converts YAML-decoded maps with non-string keys (phase ordinals)
// into string-keyed maps.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

type nodePair struct {
	key   string
	line  int
	value *yaml.Node
}

func mappingPairs(n *yaml.Node) []nodePair {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	pairs := make([]nodePair, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		pairs = append(pairs, nodePair{key: n.Content[i].Value, line: n.Content[i].Line, value: n.Content[i+1]})
	}
	return pairs
}

func (c *Catalog) decodeTasks(n *yaml.Node) error {
	for _, pair := range mappingPairs(n) {
		if _, dup := c.byID[pair.key]; dup {
			return fmt.Errorf("task %q declared twice (line %d)", pair.key, pair.line)
		}
		var e taskEntry
		if err := pair.value.Decode(&e); err != nil {
			return fmt.Errorf("task %q: %w", pair.key, err)
		}
		c.byID[pair.key] = len(c.tasks)
		c.tasks = append(c.tasks, Task{
			ID:               pair.key,
			Phase:            e.Phase,
			Category:         e.Category,
			Description:      e.Description,
			Dependencies:     e.Dependencies,
			SoftDependencies: e.SoftDependencies,
			RequiredTools:    e.RequiredTools,
			Outputs:          e.Outputs,
			HasQuestions:     e.HasQuestions,
			Order:            len(c.tasks),
		})
	}
	return nil
}

func (c *Catalog) decodePhases(n *yaml.Node) error {
	for _, pair := range mappingPairs(n) {
		number, err := strconv.Atoi(pair.key)
		if err != nil {
			return fmt.Errorf("phase key %q is not a number", pair.key)
		}
		var e phaseEntry
		if err := pair.value.Decode(&e); err != nil {
			return fmt.Errorf("phase %d: %w", number, err)
		}
		color := strings.TrimSpace(e.Color)
		if code, ok := namedColors[strings.ToLower(color)]; ok {
			color = code
		}
		c.phases[number] = Phase{Number: number, Name: e.Name, Color: color}
	}
	return nil
}

func (c *Catalog) decodeProfiles(n *yaml.Node) error {
	for _, pair := range mappingPairs(n) {
		p := Profile{Name: pair.key}
		switch pair.value.Kind {
		case yaml.SequenceNode:
			if err := pair.value.Decode(&p.Tasks); err != nil {
				return fmt.Errorf("profile %q: %w", pair.key, err)
			}
		default:
			var e profileEntry
			if err := pair.value.Decode(&e); err != nil {
				return fmt.Errorf("profile %q: %w", pair.key, err)
			}
			p.Description = e.Description
			p.Tasks = e.Tasks
		}
		c.profiles = append(c.profiles, p)
	}
	return nil
}

// validate checks cross-references. Hard dependencies must point at a task
// that sorts strictly earlier (lower phase, or same phase and declared
// earlier), which also rules out cycles.
func (c *Catalog) validate() []string {
	var problems []string

	for _, t := range c.tasks {
		if t.ID == "all" || isNumber(t.ID) {
			problems = append(problems, fmt.Sprintf("task id %q is reserved for selectors", t.ID))
		}
		if len(c.phases) > 0 {
			if _, ok := c.phases[t.Phase]; !ok {
				problems = append(problems, fmt.Sprintf("task %q uses undeclared phase %d", t.ID, t.Phase))
			}
		}
		for _, dep := range t.Dependencies {
			problems = append(problems, c.checkDependency(t, dep, true)...)
		}
		for _, dep := range t.SoftDependencies {
			problems = append(problems, c.checkDependency(t, dep, false)...)
		}
	}

	for _, p := range c.profiles {
		switch {
		case p.Name == "all" || isNumber(p.Name):
			problems = append(problems, fmt.Sprintf("profile name %q is reserved for selectors", p.Name))
		case c.Has(p.Name):
			problems = append(problems, fmt.Sprintf("profile %q has the same name as a task", p.Name))
		}
		seen := make(map[string]bool, len(p.Tasks))
		for _, id := range p.Tasks {
			if !c.Has(id) {
				problems = append(problems, fmt.Sprintf("profile %q references unknown task %q", p.Name, id))
			}
			if seen[id] {
				problems = append(problems, fmt.Sprintf("profile %q lists task %q twice", p.Name, id))
			}
			seen[id] = true
		}
	}

	sort.Strings(problems)
	return problems
}

func (c *Catalog) checkDependency(t Task, dep string, hard bool) []string {
	kind := "soft dependency"
	if hard {
		kind = "dependency"
	}
	if dep == t.ID {
		return []string{fmt.Sprintf("task %q lists itself as a %s", t.ID, kind)}
	}
	i, ok := c.byID[dep]
	if !ok {
		return []string{fmt.Sprintf("task %q has unknown %s %q", t.ID, kind, dep)}
	}
	if !hard {
		return nil
	}
	d := c.tasks[i]
	if d.Phase > t.Phase {
		return []string{fmt.Sprintf("task %q (phase %d) depends on %q from later phase %d", t.ID, t.Phase, dep, d.Phase)}
	}
	if d.Phase == t.Phase && d.Order > t.Order {
		return []string{fmt.Sprintf("task %q depends on %q, which is declared after it in phase %d (cycle or misordered)", t.ID, dep, t.Phase)}
	}
	return nil
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
