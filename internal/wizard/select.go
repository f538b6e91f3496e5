package wizard

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// filterThreshold is the option count above which a filter input is shown.
const filterThreshold = 8

// Option is one selectable value.
type Option struct {
	Value       string
	Label       string
	Description string
}

// SelectStep chooses one option. Options are computed from earlier answers.
type SelectStep struct {
	id       string
	title    string
	options  func(State) []Option
	skipFunc func(State) bool
}

// NewSelectStep creates a select step with fixed options.
func NewSelectStep(id, title string, options []Option) *SelectStep {
	return &SelectStep{id: id, title: title, options: func(State) []Option { return options }}
}

// NewDynamicSelectStep creates a select step whose options depend on state.
func NewDynamicSelectStep(id, title string, options func(State) []Option) *SelectStep {
	return &SelectStep{id: id, title: title, options: options}
}

// WithSkipFunc skips the step when fn returns true.
func (s *SelectStep) WithSkipFunc(fn func(State) bool) *SelectStep {
	s.skipFunc = fn
	return s
}

func (s *SelectStep) ID() string    { return s.id }
func (s *SelectStep) Title() string { return s.title }

func (s *SelectStep) Skip(state State) bool {
	return s.skipFunc != nil && s.skipFunc(state)
}

func (s *SelectStep) Init(state State) tea.Model {
	m := &selectModel{
		options: s.options(state),
		keys:    defaultKeys(),
		styles:  DefaultStyles(),
	}
	if len(m.options) > filterThreshold {
		ti := textinput.New()
		ti.Placeholder = "type to filter"
		ti.Prompt = "/ "
		ti.Focus()
		m.filter = &ti
	}
	m.visible = m.options
	return m
}

func (s *SelectStep) Result(model tea.Model, state State) {
	if m, ok := model.(*selectModel); ok && m.chosen != nil {
		state[s.id] = m.chosen.Value
	}
}

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "ctrl+p"), key.WithHelp("↑", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "ctrl+n"), key.WithHelp("↓", "down")),
		Select: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	}
}

type selectModel struct {
	options []Option
	visible []Option
	cursor  int
	chosen  *Option
	filter  *textinput.Model
	keys    keyMap
	styles  Styles
}

func (m *selectModel) Init() tea.Cmd {
	if m.filter != nil {
		return textinput.Blink
	}
	return nil
}

func (m *selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.visible)-1 {
				m.cursor++
			}
			return m, nil
		case key.Matches(msg, m.keys.Select):
			if len(m.visible) == 0 {
				return m, nil
			}
			opt := m.visible[m.cursor]
			m.chosen = &opt
			return m, completeStep
		}
		if m.filter == nil {
			switch msg.String() {
			case "k":
				if m.cursor > 0 {
					m.cursor--
				}
			case "j":
				if m.cursor < len(m.visible)-1 {
					m.cursor++
				}
			}
			return m, nil
		}
	}

	if m.filter == nil {
		return m, nil
	}
	var cmd tea.Cmd
	*m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *selectModel) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	if q == "" {
		m.visible = m.options
	} else {
		m.visible = nil
		for _, o := range m.options {
			if strings.Contains(strings.ToLower(o.Label), q) || strings.Contains(strings.ToLower(o.Value), q) {
				m.visible = append(m.visible, o)
			}
		}
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func (m *selectModel) View() string {
	var b strings.Builder
	if m.filter != nil {
		b.WriteString(m.filter.View() + "\n\n")
	}
	if len(m.visible) == 0 {
		b.WriteString(m.styles.Muted.Render("  no matches") + "\n")
	}
	for i, opt := range m.visible {
		line := "  " + opt.Label
		if i == m.cursor {
			line = m.styles.Cursor.Render("> " + opt.Label)
		}
		if opt.Description != "" {
			line += " " + m.styles.Muted.Render(opt.Description)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + m.styles.Muted.Render("↑/↓: navigate • enter: select • esc: cancel"))
	return b.String()
}
