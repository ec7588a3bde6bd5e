package engine

import (
	"time"

	"github.com/google/uuid"

	"qualflow/internal/domain"
	"qualflow/internal/validate"
)

// Command is a typed update to one form section.
type Command interface {
	Section() domain.Section
	apply(q *domain.QDF, opts EditOptions) error
}

// EditOptions carries what a command needs beyond the QDF itself.
type EditOptions struct {
	Now time.Time
	// ChecklistItems bounds checklist item indexes; 0 disables the check.
	ChecklistItems int
}

// IntentUpdate replaces the QDF-1 fields. Missing required fields are left
// for submit to report; only malformed values are refused here.
type IntentUpdate struct {
	Intent domain.Intent
}

func (IntentUpdate) Section() domain.Section { return domain.SectionIntent }

func (c IntentUpdate) apply(q *domain.QDF, _ EditOptions) error {
	for _, fe := range validate.Intent(c.Intent) {
		switch {
		case fe.Field == "contact_person_email":
			return InvalidPayloadError{Field: fe.Field, Reason: fe.Message}
		case fe.Field == "level" && c.Intent.Level != 0:
			return InvalidPayloadError{Field: fe.Field, Reason: fe.Message}
		}
	}
	q.Intent = c.Intent
	return nil
}

// ReviewUpdate replaces the QDF-2 fields. Switching the decision drops the
// fields that only belong to the other outcomes.
type ReviewUpdate struct {
	Review domain.Review
}

func (ReviewUpdate) Section() domain.Section { return domain.SectionReview }

func (c ReviewUpdate) apply(q *domain.QDF, _ EditOptions) error {
	r := c.Review
	if err := validate.Decision(r.Decision); err != nil {
		return InvalidPayloadError{Field: err.Field, Reason: err.Message}
	}
	for _, d := range []struct{ field, value string }{
		{"date_received", r.DateReceived},
		{"date_reviewed", r.DateReviewed},
		{"submission_due_date", r.SubmissionDueDate},
	} {
		if err := validate.Date(d.field, d.value); err != nil {
			return InvalidPayloadError{Field: err.Field, Reason: err.Message}
		}
	}
	if r.Decision != q.Decision {
		switch r.Decision {
		case domain.DecisionApproved:
			r.DecisionComments, r.ReasonsForRejection = "", ""
		case domain.DecisionIncomplete:
			r.SubmissionDueDate, r.ReasonsForRejection = "", ""
		case domain.DecisionNotApproved:
			r.SubmissionDueDate, r.DecisionComments = "", ""
		}
	}
	q.Review = r
	return nil
}

// NominationUpdate replaces the committee member list. Members without an
// id get one.
type NominationUpdate struct {
	Members []domain.QDCMember
}

func (NominationUpdate) Section() domain.Section { return domain.SectionNomination }

func (c NominationUpdate) apply(q *domain.QDF, _ EditOptions) error {
	members := make([]domain.QDCMember, len(c.Members))
	copy(members, c.Members)
	for i := range members {
		if members[i].ID == "" {
			members[i].ID = "qdc-" + uuid.NewString()
		}
	}
	if errs := validate.Members(members); len(errs) > 0 {
		return InvalidPayloadError{Field: errs[0].Field, Reason: errs[0].Message}
	}
	q.QDCMembers = members
	return nil
}

// ChecklistUpdate replaces the QA checklist, creating it on first use.
type ChecklistUpdate struct {
	Checklist domain.QAChecklistData
}

func (ChecklistUpdate) Section() domain.Section { return domain.SectionChecklist }

func (c ChecklistUpdate) apply(q *domain.QDF, opts EditOptions) error {
	data := c.Checklist
	if errs := validate.Checklist(data, opts.ChecklistItems); len(errs) > 0 {
		return InvalidPayloadError{Field: errs[0].Field, Reason: errs[0].Message}
	}
	if data.AssessmentDate == "" && !opts.Now.IsZero() {
		data.AssessmentDate = opts.Now.UTC().Format(validate.DateLayout)
	}
	items := make(map[int]domain.ChecklistResponse, len(data.Items))
	for k, v := range data.Items {
		items[k] = v
	}
	data.Items = items
	q.QAChecklist = &data
	return nil
}

// ApplyEdit runs cmd against a copy of q without any permission check, so it
// also serves unsaved drafts. The returned QDF has LastUpdated stamped when
// opts.Now is set.
func ApplyEdit(q domain.QDF, cmd Command, opts EditOptions) (domain.QDF, error) {
	out := q.Clone()
	if err := cmd.apply(&out, opts); err != nil {
		return q, err
	}
	if !opts.Now.IsZero() {
		out.LastUpdated = opts.Now.UTC().Format(time.RFC3339)
	}
	return out, nil
}
