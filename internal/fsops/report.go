package fsops

import "fmt"

// Risk level of a recorded operation.
type Risk string

const (
	RiskLow  Risk = "low"
	RiskHigh Risk = "high"
)

// RiskOf returns the risk of an op. Deletes and in-place modifications
// lose existing content.
func RiskOf(op Op) Risk {
	switch op {
	case OpDelete, OpModify:
		return RiskHigh
	}
	return RiskLow
}

// RiskFlag marks one high-risk entry.
type RiskFlag struct {
	Entry  Entry  `json:"entry"`
	Reason string `json:"reason"`
}

// RollbackStep describes how to undo one entry.
type RollbackStep struct {
	Entry       Entry  `json:"entry"`
	Action      string `json:"action"`
	Recoverable bool   `json:"recoverable"`
}

// Report is the impact summary of a dry run.
type Report struct {
	Entries     []Entry        `json:"entries"`
	Counts      map[Op]int     `json:"counts"`
	Risks       []RiskFlag     `json:"risks,omitempty"`
	Destructive bool           `json:"destructive"`
	Rollback    []RollbackStep `json:"rollback,omitempty"`
}

// Count returns the number of entries of one op.
func (r Report) Count(op Op) int { return r.Counts[op] }

// Total returns the number of recorded entries.
func (r Report) Total() int { return len(r.Entries) }

// Analyze builds the impact report for entries. The rollback plan lists
// steps in reverse order of the recorded operations.
func Analyze(entries []Entry) Report {
	r := Report{
		Entries: append([]Entry(nil), entries...),
		Counts:  make(map[Op]int, len(AllOps)),
	}
	for _, e := range entries {
		r.Counts[e.Op]++
		if RiskOf(e.Op) == RiskHigh {
			r.Destructive = true
			r.Risks = append(r.Risks, RiskFlag{Entry: e, Reason: riskReason(e.Op)})
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		r.Rollback = append(r.Rollback, rollbackFor(entries[i]))
	}
	return r
}

func riskReason(op Op) string {
	if op == OpDelete {
		return "deletes existing data"
	}
	return "overwrites existing content"
}

func rollbackFor(e Entry) RollbackStep {
	step := RollbackStep{Entry: e, Recoverable: true}
	switch e.Op {
	case OpCreate:
		step.Action = fmt.Sprintf("remove %s", e.Path)
	case OpCopy:
		step.Action = fmt.Sprintf("remove %s", e.Target)
	case OpMove:
		step.Action = fmt.Sprintf("move %s back to %s", e.Target, e.Path)
	case OpDelete:
		step.Action = fmt.Sprintf("%s cannot be recovered unless it is in a snapshot", e.Path)
		step.Recoverable = false
	default:
		step.Action = fmt.Sprintf("restore %s from a snapshot ('kickoff backup restore')", e.Path)
	}
	return step
}
