package wizard

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/config"
)

func loadSample(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load("../catalog/testdata/sample.yaml")
	require.NoError(t, err)
	return cat
}

func keyMsg(t tea.KeyType) tea.KeyMsg { return tea.KeyMsg{Type: t} }

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// drive feeds msgs to the wizard, delivering step completions the way the
// bubbletea runtime would.
func drive(w *Wizard, msgs ...tea.Msg) {
	w.start()
	for _, msg := range msgs {
		_, cmd := w.Update(msg)
		if cmd == nil {
			continue
		}
		if out := cmd(); out != nil {
			if _, ok := out.(stepCompleteMsg); ok {
				w.Update(out)
			}
		}
	}
}

func TestMenuPhaseSelection(t *testing.T) {
	w := New(MenuSteps(loadSample(t))...)
	drive(w,
		keyMsg(tea.KeyDown), keyMsg(tea.KeyEnter),
		keyMsg(tea.KeyDown), keyMsg(tea.KeyEnter),
		keyMsg(tea.KeyDown), keyMsg(tea.KeyDown), keyMsg(tea.KeyEnter),
	)

	choice, err := ChoiceFrom(w.State())
	require.NoError(t, err)
	assert.Equal(t, Choice{Selector: "phase:2", Mode: config.ModeDryRun}, choice)
}

func TestMenuAllSkipsItem(t *testing.T) {
	w := New(MenuSteps(loadSample(t))...)
	drive(w, keyMsg(tea.KeyEnter))
	assert.Equal(t, 2, w.current, "item step skipped")
	assert.Contains(t, w.View(), "How?")

	drive(w, keyMsg(tea.KeyDown), keyMsg(tea.KeyEnter))
	choice, err := ChoiceFrom(w.State())
	require.NoError(t, err)
	assert.Equal(t, Choice{Selector: "all", Mode: config.ModeAutoApprove}, choice)
}

func TestMenuProfileSelection(t *testing.T) {
	w := New(MenuSteps(loadSample(t))...)
	drive(w,
		runes("j"), runes("j"), runes("j"), keyMsg(tea.KeyEnter),
		runes("j"), keyMsg(tea.KeyEnter),
		keyMsg(tea.KeyEnter),
	)
	choice, err := ChoiceFrom(w.State())
	require.NoError(t, err)
	assert.Equal(t, Choice{Selector: "profile:assistants", Mode: config.ModeConfirm}, choice)
}

func TestSelectFilter(t *testing.T) {
	var opts []Option
	for _, id := range []string{"git", "packages", "editorconfig", "linting", "formatting", "testing", "docker", "ci", "claude"} {
		opts = append(opts, Option{Value: id, Label: id})
	}
	step := NewSelectStep("task", "Task", opts)
	m := step.Init(State{}).(*selectModel)
	require.NotNil(t, m.filter)

	for _, r := range "ing" {
		m.Update(runes(string(r)))
	}
	var got []string
	for _, o := range m.visible {
		got = append(got, o.Value)
	}
	assert.Equal(t, []string{"linting", "formatting", "testing"}, got)

	m.Update(keyMsg(tea.KeyDown))
	_, cmd := m.Update(keyMsg(tea.KeyEnter))
	require.NotNil(t, cmd)
	state := State{}
	step.Result(m, state)
	assert.Equal(t, "formatting", state["task"])

	for _, r := range "zzz" {
		m.Update(runes(string(r)))
	}
	assert.Empty(t, m.visible)
	_, cmd = m.Update(keyMsg(tea.KeyEnter))
	assert.Nil(t, cmd)
}

func TestWizardCancel(t *testing.T) {
	w := New(MenuSteps(loadSample(t))...)
	w.start()
	_, cmd := w.Update(keyMsg(tea.KeyEsc))
	require.NotNil(t, cmd)
	assert.ErrorIs(t, w.err, ErrCancelled)
}

func TestChoiceFromIncomplete(t *testing.T) {
	_, err := ChoiceFrom(State{StepKind: KindTask, StepMode: "confirm"})
	assert.Error(t, err)
	_, err = ChoiceFrom(State{StepKind: KindAll})
	assert.Error(t, err)
}

type fakeSource struct {
	cat     *catalog.Catalog
	waitErr error
	waited  time.Duration
}

func (f *fakeSource) WaitPrescan(d time.Duration) error {
	f.waited = d
	return f.waitErr
}

func (f *fakeSource) Catalog() (*catalog.Catalog, error) { return f.cat, nil }

func TestChooseScanError(t *testing.T) {
	src := &fakeSource{waitErr: errors.New("catalog broken")}
	_, err := Choose(src, time.Millisecond, nil)
	assert.EqualError(t, err, "catalog broken")
}

