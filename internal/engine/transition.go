package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"qualflow/internal/domain"
	"qualflow/internal/policy"
	"qualflow/internal/validate"
)

// Payload carries the action-specific inputs. Empty fields fall back to the
// values already on the QDF's review section.
type Payload struct {
	Comments            string `json:"comments,omitempty"`
	ReasonsForRejection string `json:"reasons_for_rejection,omitempty"`
	SubmissionDueDate   string `json:"submission_due_date,omitempty"`
}

// Warning codes.
const (
	WarnEmptyReason    = "empty_reason"
	WarnIntentField    = "intent_field"
	WarnDuplicateTitle = "duplicate_title"
)

// Warning is advisory feedback that did not stop the action.
type Warning struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// systemActor stamps the registry publication stage.
const systemActor = "System"

type transition struct {
	From       []domain.Status
	To         domain.Status
	StatusOnly bool
}

var transitions = map[domain.Action]transition{
	domain.ActionSubmit:                    {From: []domain.Status{domain.StatusDraft, domain.StatusRejected}, To: domain.StatusSubmittedForReview},
	domain.ActionApprove:                   {From: []domain.Status{domain.StatusSubmittedForReview}, To: domain.StatusPendingQDCNomination},
	domain.ActionReject:                    {From: []domain.Status{domain.StatusSubmittedForReview}, To: domain.StatusRejected},
	domain.ActionLaunchDevelopment:         {From: []domain.Status{domain.StatusPendingQDCNomination, domain.StatusOnHold}, To: domain.StatusInDevelopment},
	domain.ActionHold:                      {From: []domain.Status{domain.StatusPendingQDCNomination, domain.StatusOnHold}, To: domain.StatusOnHold, StatusOnly: true},
	domain.ActionSubmitForValidation:       {From: []domain.Status{domain.StatusInDevelopment}, To: domain.StatusCSSubmittedForValidation},
	domain.ActionValidateCS:                {From: []domain.Status{domain.StatusCSSubmittedForValidation}, To: domain.StatusCSValidated},
	domain.ActionRequestIndustryValidation: {From: []domain.Status{domain.StatusCSValidated}, To: domain.StatusPendingIndustryValidation, StatusOnly: true},
	domain.ActionEndorse:                   {From: []domain.Status{domain.StatusPendingIndustryValidation}, To: domain.StatusPendingFinalApproval},
	domain.ActionFinalApprove:              {From: []domain.Status{domain.StatusPendingFinalApproval}, To: domain.StatusApproved},
}

// CurrentStage names the history stage a QDF in status is working on.
func CurrentStage(status domain.Status) string {
	switch status {
	case domain.StatusDraft, domain.StatusRejected:
		return domain.StageSubmitted
	case domain.StatusSubmittedForReview:
		return domain.StageReview
	case domain.StatusPendingQDCNomination, domain.StatusOnHold:
		return domain.StageNomination
	case domain.StatusInDevelopment:
		return domain.StageDevelopment
	case domain.StatusCSSubmittedForValidation:
		return domain.StageCSValidation
	case domain.StatusCSValidated, domain.StatusPendingIndustryValidation:
		return domain.StageIndustryValidation
	case domain.StatusPendingFinalApproval:
		return domain.StageFinalApproval
	case domain.StatusApproved:
		return domain.StagePublished
	}
	return ""
}

// NewHistory returns the eight-stage template with every stage pending.
func NewHistory() []domain.WorkflowEvent {
	h := make([]domain.WorkflowEvent, len(domain.StageTemplate))
	for i, stage := range domain.StageTemplate {
		h[i] = domain.WorkflowEvent{Stage: stage, Status: domain.StagePending}
	}
	return h
}

func stageIndex(history []domain.WorkflowEvent, stage string) int {
	for i, ev := range history {
		if ev.Stage == stage {
			return i
		}
	}
	return -1
}

// Transition applies action to a copy of q. q itself is never modified, and
// on error the returned QDF is q unchanged.
func Transition(q domain.QDF, action domain.Action, actor domain.Actor, p Payload, now time.Time) (domain.QDF, []Warning, error) {
	if !policy.Allowed(actor.Role, q.Status, action) {
		return q, nil, ForbiddenError{Role: actor.Role, Status: q.Status, Action: action}
	}
	tr, ok := transitions[action]
	if !ok || !containsStatus(tr.From, q.Status) {
		return q, nil, ForbiddenError{Role: actor.Role, Status: q.Status, Action: action}
	}
	if err := validate.Date("submission_due_date", p.SubmissionDueDate); err != nil {
		return q, nil, InvalidPayloadError{Field: err.Field, Reason: err.Message}
	}

	out := q.Clone()
	var warnings []Warning
	ts := now.UTC().Format(time.RFC3339)
	by := actor.Name
	if by == "" {
		by = actor.ID
	}

	if action == domain.ActionSubmit {
		if out.ID == "" {
			out.ID = "QDF-" + uuid.NewString()
		}
		// actor id; list filters match on it. The name goes on the history entry.
		if out.SubmittedBy == "" {
			out.SubmittedBy = actor.ID
		}
		if out.SubmissionDate == "" {
			out.SubmissionDate = now.UTC().Format(validate.DateLayout)
		}
		if len(out.WorkflowHistory) != len(domain.StageTemplate) {
			out.WorkflowHistory = NewHistory()
		}
		for _, fe := range validate.Intent(out.Intent) {
			warnings = append(warnings, Warning{Code: WarnIntentField, Field: fe.Field, Message: fe.Message})
		}
	}

	comments := p.Comments
	switch action {
	case domain.ActionApprove:
		if p.SubmissionDueDate != "" {
			out.SubmissionDueDate = p.SubmissionDueDate
		}
		out.Decision = domain.DecisionApproved
		out.ReasonsForRejection = ""
		due := out.SubmissionDueDate
		if due == "" {
			due = "N/A"
		}
		comments = "Accepted. Due: " + due
	case domain.ActionReject:
		if r := strings.TrimSpace(p.ReasonsForRejection); r != "" {
			out.ReasonsForRejection = r
		}
		out.Decision = domain.DecisionNotApproved
		out.SubmissionDueDate = ""
		reason := out.ReasonsForRejection
		if reason == "" {
			reason = "No reason."
			warnings = append(warnings, Warning{Code: WarnEmptyReason, Field: "reasons_for_rejection", Message: "reasons_for_rejection is empty"})
		}
		comments = "Rejected: " + reason
	}
	if action == domain.ActionApprove || action == domain.ActionReject {
		out.DateReviewed = now.UTC().Format(validate.DateLayout)
	}

	from := q.Status
	out.Status = tr.To
	out.LastUpdated = ts
	if tr.StatusOnly {
		return out, warnings, nil
	}

	cur := stageIndex(out.WorkflowHistory, CurrentStage(from))
	if cur < 0 {
		return q, nil, fmt.Errorf("qdf %s history has no %q stage", q.ID, CurrentStage(from))
	}
	complete(&out.WorkflowHistory[cur], by, ts, comments)

	switch action {
	case domain.ActionReject:
		for i := cur + 1; i < len(out.WorkflowHistory); i++ {
			out.WorkflowHistory[i] = domain.WorkflowEvent{Stage: out.WorkflowHistory[i].Stage, Status: domain.StagePending}
		}
	case domain.ActionFinalApprove:
		if pub := stageIndex(out.WorkflowHistory, domain.StagePublished); pub >= 0 {
			complete(&out.WorkflowHistory[pub], systemActor, ts, "")
		}
	default:
		if next := cur + 1; next < len(out.WorkflowHistory) {
			out.WorkflowHistory[next] = domain.WorkflowEvent{Stage: out.WorkflowHistory[next].Stage, Status: domain.StageInProgress}
		}
	}
	return out, warnings, nil
}

func complete(ev *domain.WorkflowEvent, by, ts, comments string) {
	ev.Status = domain.StageCompleted
	ev.User = by
	ev.Timestamp = ts
	ev.Comments = comments
}

func containsStatus(list []domain.Status, s domain.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
