// Package wizard is the interactive run menu: a short sequence of
// bubbletea select steps (what to run, which item, which mode).
package wizard

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user leaves the menu.
var ErrCancelled = errors.New("menu cancelled")

// State holds the values chosen so far, keyed by step id.
type State map[string]string

// Step is one screen of the wizard.
type Step interface {
	ID() string
	Title() string
	// Skip reports whether the step is unnecessary given earlier answers.
	Skip(state State) bool
	// Init builds the step's model; options may depend on earlier answers.
	Init(state State) tea.Model
	// Result stores the step's answer in state.
	Result(model tea.Model, state State)
}

// Styles for the wizard chrome.
type Styles struct {
	Title    lipgloss.Style
	Progress lipgloss.Style
	Cursor   lipgloss.Style
	Muted    lipgloss.Style
	Error    lipgloss.Style
}

// DefaultStyles returns the default styling.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).MarginBottom(1),
		Progress: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Cursor:   lipgloss.NewStyle().Foreground(lipgloss.Color("170")),
		Muted:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		Error:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// Wizard runs steps in order.
type Wizard struct {
	steps   []Step
	current int
	state   State
	model   tea.Model
	err     error
	styles  Styles
	opts    []tea.ProgramOption
}

// New creates a wizard.
func New(steps ...Step) *Wizard {
	return &Wizard{
		steps:  steps,
		state:  make(State),
		styles: DefaultStyles(),
	}
}

// WithProgramOptions passes options to the bubbletea program, such as
// tea.WithInput for tests.
func (w *Wizard) WithProgramOptions(opts ...tea.ProgramOption) *Wizard {
	w.opts = append(w.opts, opts...)
	return w
}

// State returns the answers collected so far.
func (w *Wizard) State() State { return w.state }

// Run executes the wizard interactively.
func (w *Wizard) Run() (State, error) {
	w.start()
	if w.current >= len(w.steps) {
		return w.state, nil
	}
	if _, err := tea.NewProgram(w, w.opts...).Run(); err != nil {
		return nil, fmt.Errorf("run menu: %w", err)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.state, nil
}

func (w *Wizard) start() {
	w.skip()
	if w.current < len(w.steps) {
		w.model = w.steps[w.current].Init(w.state)
	}
}

// Init implements tea.Model.
func (w *Wizard) Init() tea.Cmd {
	if w.model == nil {
		w.start()
	}
	if w.model == nil {
		return nil
	}
	return w.model.Init()
}

// Update implements tea.Model.
func (w *Wizard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			w.err = ErrCancelled
			return w, tea.Quit
		}
	case stepCompleteMsg:
		w.steps[w.current].Result(w.model, w.state)
		w.current++
		w.skip()
		if w.current >= len(w.steps) {
			return w, tea.Quit
		}
		w.model = w.steps[w.current].Init(w.state)
		return w, w.model.Init()
	}

	if w.model == nil {
		return w, nil
	}
	var cmd tea.Cmd
	w.model, cmd = w.model.Update(msg)
	return w, cmd
}

// View implements tea.Model.
func (w *Wizard) View() string {
	if w.current >= len(w.steps) || w.model == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(w.styles.Progress.Render(fmt.Sprintf("Step %d of %d", w.current+1, len(w.steps))))
	b.WriteString("\n\n")
	b.WriteString(w.styles.Title.Render(w.steps[w.current].Title()))
	b.WriteString("\n")
	b.WriteString(w.model.View())
	return b.String()
}

func (w *Wizard) skip() {
	for w.current < len(w.steps) && w.steps[w.current].Skip(w.state) {
		w.current++
	}
}

type stepCompleteMsg struct{}

// completeStep signals the wizard to advance.
func completeStep() tea.Msg { return stepCompleteMsg{} }
