package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/config"
)

// Step ids of the run menu.
const (
	StepKind = "kind"
	StepItem = "item"
	StepMode = "mode"
)

// Menu kinds.
const (
	KindAll     = "all"
	KindPhase   = "phase"
	KindTask    = "task"
	KindProfile = "profile"
)

// Choice is what the user picked.
type Choice struct {
	Selector string
	Mode     config.ExecutionMode
}

// CatalogSource provides the catalog, possibly still loading in the
// background.
type CatalogSource interface {
	WaitPrescan(timeout time.Duration) error
	Catalog() (*catalog.Catalog, error)
}

// MenuSteps builds the kind -> item -> mode steps for cat.
func MenuSteps(cat *catalog.Catalog) []Step {
	kinds := []Option{
		{Value: KindAll, Label: "Everything", Description: fmt.Sprintf("%d tasks, by phase", cat.Len())},
		{Value: KindPhase, Label: "A phase"},
		{Value: KindTask, Label: "A single task"},
	}
	if len(cat.Profiles()) > 0 {
		kinds = append(kinds, Option{Value: KindProfile, Label: "A profile"})
	}

	items := NewDynamicSelectStep(StepItem, "Which one?", func(state State) []Option {
		return itemOptions(cat, state[StepKind])
	}).WithSkipFunc(func(state State) bool { return state[StepKind] == KindAll })

	modes := []Option{
		{Value: string(config.ModeConfirm), Label: "Confirm each task"},
		{Value: string(config.ModeAutoApprove), Label: "Run without asking"},
		{Value: string(config.ModeDryRun), Label: "Dry run", Description: "show what would change"},
	}

	return []Step{
		NewSelectStep(StepKind, "What do you want to run?", kinds),
		items,
		NewSelectStep(StepMode, "How?", modes),
	}
}

func itemOptions(cat *catalog.Catalog, kind string) []Option {
	var out []Option
	switch kind {
	case KindPhase:
		for _, p := range cat.Phases() {
			out = append(out, Option{
				Value:       strconv.Itoa(p.Number),
				Label:       fmt.Sprintf("%d. %s", p.Number, p.Name),
				Description: fmt.Sprintf("%d tasks", len(cat.PhaseTasks(p.Number))),
			})
		}
	case KindTask:
		for _, t := range cat.Ordered() {
			out = append(out, Option{Value: t.ID, Label: t.ID, Description: t.Description})
		}
	case KindProfile:
		for _, p := range cat.Profiles() {
			out = append(out, Option{Value: p.Name, Label: p.Name, Description: p.Description})
		}
	}
	return out
}

// ChoiceFrom converts menu answers into a selector and mode.
func ChoiceFrom(state State) (Choice, error) {
	mode := config.ExecutionMode(state[StepMode])
	if !mode.Valid() {
		return Choice{}, fmt.Errorf("no mode chosen")
	}
	kind := state[StepKind]
	switch kind {
	case KindAll:
		return Choice{Selector: KindAll, Mode: mode}, nil
	case KindPhase, KindTask, KindProfile:
		item := state[StepItem]
		if item == "" {
			return Choice{}, fmt.Errorf("no %s chosen", kind)
		}
		return Choice{Selector: kind + ":" + item, Mode: mode}, nil
	}
	return Choice{}, fmt.Errorf("no selection made")
}

// Choose waits up to timeout for the background catalog scan, then shows
// the menu. A scan that does not finish in time is not an error; the
// catalog is then loaded synchronously.
func Choose(src CatalogSource, timeout time.Duration, logger *slog.Logger, opts ...tea.ProgramOption) (Choice, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := src.WaitPrescan(timeout); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return Choice{}, err
		}
		logger.Debug("catalog prescan still running, loading synchronously", "timeout", timeout)
	}
	cat, err := src.Catalog()
	if err != nil {
		return Choice{}, err
	}

	state, err := New(MenuSteps(cat)...).WithProgramOptions(opts...).Run()
	if err != nil {
		return Choice{}, err
	}
	return ChoiceFrom(state)
}
