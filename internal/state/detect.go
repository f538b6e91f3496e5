package state

import (
	"fmt"
	"time"

	"github.com/randalmurphal/kickoff/internal/catalog"
	"github.com/randalmurphal/kickoff/internal/config"
	"github.com/randalmurphal/kickoff/internal/util"
)

// Status is the derived bootstrap state of a project.
type Status string

const (
	StatusNeverRun    Status = "never_run"
	StatusInitialized Status = "initialized"
	StatusPartial     Status = "partial"
	StatusFailed      Status = "failed"
	StatusComplete    Status = "complete"
)

// Inputs is everything Detect looks at.
type Inputs struct {
	ConfigPresent bool
	Markers       []string
	CatalogIDs    []string
	LastFailed    string
	HistoryLen    int
}

// Detect derives the bootstrap status. Rules apply in order:
//
//	config file absent                         -> never_run
//	last_failed recorded                       -> failed
//	no catalog markers and no session history  -> initialized
//	catalog markers < catalog size             -> partial
//	otherwise                                  -> complete
//
// Only markers naming catalog tasks count.
func Detect(in Inputs) Status {
	if !in.ConfigPresent {
		return StatusNeverRun
	}
	if in.LastFailed != "" {
		return StatusFailed
	}
	n := countKnown(in.Markers, in.CatalogIDs)
	if n == 0 && in.HistoryLen == 0 {
		return StatusInitialized
	}
	if n < len(in.CatalogIDs) || len(in.CatalogIDs) == 0 {
		return StatusPartial
	}
	return StatusComplete
}

func countKnown(markers, ids []string) int {
	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	n := 0
	for _, m := range markers {
		if known[m] {
			n++
			delete(known, m)
		}
	}
	return n
}

// ExitCode maps a status to the 'repair status' exit code.
func (s Status) ExitCode() int {
	switch s {
	case StatusComplete:
		return 0
	case StatusNeverRun:
		return 1
	default:
		return 2
	}
}

// Report is the aggregated view behind 'status' and 'repair status'.
// Completed and Pending split the catalog by marker, in execution order;
// Orphaned holds markers that name no catalog task.
type Report struct {
	Status          Status          `json:"status"`
	CatalogSize     int             `json:"catalog_size"`
	Completed       []string        `json:"completed"`
	Pending         []string        `json:"pending"`
	Orphaned        []string        `json:"orphaned,omitempty"`
	LastFailed      string          `json:"last_failed,omitempty"`
	LastFailedAt    *time.Time      `json:"last_failed_at,omitempty"`
	LastFailedError string          `json:"last_failed_error,omitempty"`
	LastSession     *SessionSummary `json:"last_session,omitempty"`
	Interrupted     *ActiveRun      `json:"interrupted,omitempty"`
}

// NextPending returns the first task without a marker.
func (r Report) NextPending() (string, bool) {
	if len(r.Pending) == 0 {
		return "", false
	}
	return r.Pending[0], true
}

// Tracker gathers the inputs for Detect from a project directory.
type Tracker struct {
	paths   config.Paths
	store   *Store
	markers *Markers
}

// NewTracker returns a tracker for the project layout.
func NewTracker(paths config.Paths) *Tracker {
	return &Tracker{
		paths:   paths,
		store:   NewStore(paths.StateFile()),
		markers: NewMarkers(paths.MarkersDir()),
	}
}

// Store returns the state document store.
func (t *Tracker) Store() *Store { return t.store }

// Markers returns the marker store.
func (t *Tracker) Markers() *Markers { return t.markers }

// Report reads the project state and derives its status against cat.
func (t *Tracker) Report(cat *catalog.Catalog) (Report, error) {
	doc, err := t.store.Load()
	if err != nil {
		return Report{}, err
	}
	markerIDs, err := t.markers.List()
	if err != nil {
		return Report{}, err
	}

	ordered := cat.Ordered()
	ids := make([]string, len(ordered))
	for i, task := range ordered {
		ids[i] = task.ID
	}

	report := Report{
		Status: Detect(Inputs{
			ConfigPresent: util.FileExists(t.paths.ConfigFile()),
			Markers:       markerIDs,
			CatalogIDs:    ids,
			LastFailed:    doc.LastFailed,
			HistoryLen:    len(doc.History),
		}),
		CatalogSize:     len(ids),
		LastFailed:      doc.LastFailed,
		LastFailedAt:    doc.LastFailedAt,
		LastFailedError: doc.LastFailedError,
	}

	have := make(map[string]bool, len(markerIDs))
	for _, id := range markerIDs {
		have[id] = true
	}
	for _, id := range ids {
		if have[id] {
			report.Completed = append(report.Completed, id)
			delete(have, id)
		} else {
			report.Pending = append(report.Pending, id)
		}
	}
	for _, id := range markerIDs {
		if have[id] {
			report.Orphaned = append(report.Orphaned, id)
		}
	}

	if last, ok := doc.LastSummary(); ok {
		report.LastSession = &last
	}
	if interrupted, ok := doc.CheckInterrupted(); ok {
		report.Interrupted = interrupted
	}
	return report, nil
}

// Status is a shortcut for Report(cat).Status.
func (t *Tracker) Status(cat *catalog.Catalog) (Status, error) {
	r, err := t.Report(cat)
	if err != nil {
		return "", fmt.Errorf("detect state: %w", err)
	}
	return r.Status, nil
}
