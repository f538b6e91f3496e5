package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/state"
)

type taskJSON struct {
	ID           string   `json:"id"`
	Phase        int      `json:"phase"`
	Category     string   `json:"category,omitempty"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies,omitempty"`
	Implemented  bool     `json:"implemented"`
	Done         bool     `json:"done"`
}

type phaseJSON struct {
	Number int      `json:"number"`
	Name   string   `json:"name,omitempty"`
	Tasks  []string `json:"tasks"`
}

type profileJSON struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tasks       []string `json:"tasks"`
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "list [tasks|phases|profiles]",
		Short:     "List catalog tasks, phases or profiles",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"tasks", "phases", "profiles"},
		RunE: func(cmd *cobra.Command, args []string) error {
			what := "tasks"
			if len(args) == 1 {
				what = args[0]
			}
			p, err := a.openProject()
			if err != nil {
				return err
			}
			cat, err := p.registry.Catalog()
			if err != nil {
				return err
			}
			switch what {
			case "phases":
				return a.listPhases(cat)
			case "profiles":
				return a.listProfiles(cat)
			}
			done, err := state.NewMarkers(p.paths.MarkersDir()).Set()
			if err != nil {
				return err
			}
			return a.listTasks(cat, done)
		},
	}
}

func (a *app) listTasks(cat *catalog.Catalog, done map[string]bool) error {
	ordered := cat.Ordered()
	if a.jsonOut {
		out := make([]taskJSON, 0, len(ordered))
		for _, t := range ordered {
			out = append(out, taskJSON{
				ID:           t.ID,
				Phase:        t.Phase,
				Category:     t.Category,
				Description:  t.Description,
				Dependencies: t.Dependencies,
				Implemented:  t.Implemented,
				Done:         done[t.ID],
			})
		}
		return a.printJSON(out)
	}

	rows := make([][]string, 0, len(ordered))
	for _, t := range ordered {
		status := ""
		switch {
		case done[t.ID]:
			status = "done"
		case !t.Implemented:
			status = "no impl"
		}
		rows = append(rows, []string{
			t.ID,
			strconv.Itoa(t.Phase),
			t.Description,
			strings.Join(t.Dependencies, ", "),
			status,
		})
	}
	a.printTable([]string{"TASK", "PHASE", "DESCRIPTION", "DEPENDS ON", "STATUS"}, rows)
	return nil
}

func (a *app) listPhases(cat *catalog.Catalog) error {
	phases := cat.Phases()
	out := make([]phaseJSON, 0, len(phases))
	for _, ph := range phases {
		entry := phaseJSON{Number: ph.Number, Name: ph.Name, Tasks: []string{}}
		for _, t := range cat.PhaseTasks(ph.Number) {
			entry.Tasks = append(entry.Tasks, t.ID)
		}
		out = append(out, entry)
	}
	if a.jsonOut {
		return a.printJSON(out)
	}
	rows := make([][]string, 0, len(out))
	for _, ph := range out {
		rows = append(rows, []string{strconv.Itoa(ph.Number), ph.Name, strings.Join(ph.Tasks, ", ")})
	}
	a.printTable([]string{"PHASE", "NAME", "TASKS"}, rows)
	return nil
}

func (a *app) listProfiles(cat *catalog.Catalog) error {
	profiles := cat.Profiles()
	if a.jsonOut {
		out := make([]profileJSON, 0, len(profiles))
		for _, pr := range profiles {
			out = append(out, profileJSON{Name: pr.Name, Description: pr.Description, Tasks: pr.Tasks})
		}
		return a.printJSON(out)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(a.stdout, "No profiles defined.")
		return nil
	}
	rows := make([][]string, 0, len(profiles))
	for _, pr := range profiles {
		rows = append(rows, []string{pr.Name, pr.Description, strings.Join(pr.Tasks, ", ")})
	}
	a.printTable([]string{"PROFILE", "DESCRIPTION", "TASKS"}, rows)
	return nil
}

func (a *app) printTable(headers []string, rows [][]string) {
	r := lipgloss.NewRenderer(a.stdout)
	header := r.NewStyle().Bold(true).Padding(0, 1)
	cell := r.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Faint(true)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	fmt.Fprintln(a.stdout, t.Render())
}
