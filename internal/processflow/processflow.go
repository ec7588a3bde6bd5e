// Package processflow turns a QDF's workflow history into display rows.
package processflow

import (
	"time"

	"qualflow/internal/domain"
)

const timestampLayout = "2006-01-02 15:04 UTC"

// DisplayEvent is one rendered stage of the process flow.
type DisplayEvent struct {
	Stage     string             `json:"stage"`
	Status    domain.StageStatus `json:"status"`
	Actor     string             `json:"actor,omitempty"`
	Timestamp string             `json:"timestamp,omitempty"`
	Comments  string             `json:"comments,omitempty"`
}

// Project formats history for display. It never adds, drops or reorders
// entries; pending stages have their actor, timestamp and comments hidden.
func Project(history []domain.WorkflowEvent) []DisplayEvent {
	out := make([]DisplayEvent, 0, len(history))
	for _, ev := range history {
		d := DisplayEvent{Stage: ev.Stage, Status: ev.Status}
		if ev.Status != domain.StagePending {
			d.Actor = ev.User
			d.Timestamp = formatTimestamp(ev.Timestamp)
			d.Comments = ev.Comments
		}
		out = append(out, d)
	}
	return out
}

func formatTimestamp(ts string) string {
	if ts == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format(timestampLayout)
}

// Progress summarises how far a QDF has travelled through its stages.
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Current   string `json:"current,omitempty"`
}

// Summarize counts completed stages and names the first in-progress one.
func Summarize(history []domain.WorkflowEvent) Progress {
	p := Progress{Total: len(history)}
	for _, ev := range history {
		switch ev.Status {
		case domain.StageCompleted:
			p.Completed++
		case domain.StageInProgress:
			if p.Current == "" {
				p.Current = ev.Stage
			}
		}
	}
	return p
}
