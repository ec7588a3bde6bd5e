package processflow

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qualflow/internal/domain"
)

func approvedHistory() []domain.WorkflowEvent {
	h := make([]domain.WorkflowEvent, len(domain.StageTemplate))
	for i, stage := range domain.StageTemplate {
		h[i] = domain.WorkflowEvent{Stage: stage, Status: domain.StagePending}
	}
	h[0] = domain.WorkflowEvent{Stage: domain.StageSubmitted, User: "Ayesha Malik", Timestamp: "2024-01-01T09:00:00Z", Status: domain.StageCompleted}
	h[1] = domain.WorkflowEvent{Stage: domain.StageReview, User: "Imran Qureshi", Timestamp: "2024-01-02T15:30:00+05:00", Status: domain.StageCompleted, Comments: "Accepted. Due: 2024-03-01"}
	h[2] = domain.WorkflowEvent{Stage: domain.StageNomination, Status: domain.StageInProgress}
	// leftovers from an earlier pass must not leak into the display
	h[3] = domain.WorkflowEvent{Stage: domain.StageDevelopment, User: "stale", Timestamp: "2023-12-01T00:00:00Z", Status: domain.StagePending, Comments: "old"}
	return h
}

func TestProject_Golden(t *testing.T) {
	out := Project(approvedHistory())
	data, err := json.MarshalIndent(out, "", "  ")
	require.NoError(t, err)
	g := goldie.New(t)
	g.Assert(t, "approved_for_nomination", data)
}

func TestProject_PreservesLengthAndOrder(t *testing.T) {
	h := approvedHistory()
	out := Project(h)
	require.Len(t, out, len(h))
	for i := range h {
		assert.Equal(t, h[i].Stage, out[i].Stage)
		assert.Equal(t, h[i].Status, out[i].Status)
	}
}

func TestProject_Idempotent(t *testing.T) {
	h := approvedHistory()
	first := Project(h)
	second := Project(h)
	assert.Equal(t, first, second)
	assert.Equal(t, approvedHistory(), h, "input must not be modified")
}

func TestProject_UnparseableTimestampPassesThrough(t *testing.T) {
	out := Project([]domain.WorkflowEvent{{Stage: "x", Status: domain.StageCompleted, Timestamp: "yesterday"}})
	assert.Equal(t, "yesterday", out[0].Timestamp)
}

func TestProject_Empty(t *testing.T) {
	out := Project(nil)
	require.NotNil(t, out)
	assert.Empty(t, out)
}

func TestSummarize(t *testing.T) {
	p := Summarize(approvedHistory())
	assert.Equal(t, Progress{Completed: 2, Total: 8, Current: domain.StageNomination}, p)
}
