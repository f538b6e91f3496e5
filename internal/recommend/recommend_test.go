package recommend

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/kickoff/internal/catalog"
)

func loadSample(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load("../catalog/testdata/sample.yaml")
	require.NoError(t, err)
	return cat
}

func ids(s []Suggestion) []string {
	out := make([]string, len(s))
	for i, sg := range s {
		out[i] = sg.TaskID
	}
	return out
}

func TestSuggest(t *testing.T) {
	eng := New(loadSample(t))

	tests := []struct {
		name string
		task string
		done map[string]bool
		want []string
	}{
		{"dependents first then table", "git", nil, []string{"packages", "claude", "editorconfig"}},
		{"completed filtered", "git", map[string]bool{"packages": true}, []string{"claude", "editorconfig"}},
		{"table then phase deduplicated", "editorconfig", nil, []string{"linting"}},
		{"dependent also in table once", "claude", nil, []string{"codex"}},
		{"nothing left", "linting", nil, []string{}},
		{"unknown task", "ghost", nil, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(eng.Suggest(tt.task, tt.done))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Suggest(%q) mismatch (-want +got):\n%s", tt.task, diff)
			}
		})
	}
}

func TestSuggestSources(t *testing.T) {
	got := New(loadSample(t)).Suggest("git", nil)
	require.Len(t, got, 3)
	assert.Equal(t, SourceDependent, got[0].Source)
	assert.Equal(t, "depends on git", got[0].Reason)
	assert.Equal(t, SourceTable, got[2].Source)
}

func TestSuggestLimitAndTable(t *testing.T) {
	cat := loadSample(t)

	all := New(cat, WithLimit(0)).Suggest("git", nil)
	assert.Equal(t, []string{"packages", "claude", "editorconfig"}, ids(all))

	custom := New(cat, WithTable(map[string][]string{"packages": {"codex", "linting"}}), WithLimit(1))
	got := custom.Suggest("packages", nil)
	assert.Equal(t, []string{"linting"}, ids(got), "dependents outrank the table")

	got = New(cat, WithTable(map[string][]string{"packages": {"codex", "git"}})).Suggest("packages", map[string]bool{"linting": true})
	assert.Equal(t, []string{"codex", "git"}, ids(got))
}

func TestSuggestNilEngine(t *testing.T) {
	var e *Engine
	assert.Nil(t, e.Suggest("git", nil))
}
