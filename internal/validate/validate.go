// Package validate holds field-level checks for QDF form sections.
//
// None of these checks gate submission by themselves: the engine reports
// intent problems and duplicate titles as warnings unless strict payloads
// are configured.
package validate

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"qualflow/internal/domain"
)

const DateLayout = "2006-01-02"

// FieldError reports a problem with one form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Intent checks QDF-1 fields for completeness and shape.
func Intent(in domain.Intent) []FieldError {
	var errs []FieldError
	required := []struct {
		field string
		value string
	}{
		{"title", in.Title},
		{"organization_name", in.OrganizationName},
		{"contact_person_name", in.ContactPersonName},
		{"contact_person_email", in.ContactPersonEmail},
		{"description", in.Description},
		{"justification_summary", in.JustificationSummary},
		{"sector", in.Sector},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, FieldError{Field: r.field, Message: "is required"})
		}
	}
	if e := strings.TrimSpace(in.ContactPersonEmail); e != "" {
		if _, err := mail.ParseAddress(e); err != nil {
			errs = append(errs, FieldError{Field: "contact_person_email", Message: "is not a valid email address"})
		}
	}
	if err := Level(in.Level); err != nil {
		errs = append(errs, *err)
	}
	return errs
}

// Level checks the NVQF level range.
func Level(level int) *FieldError {
	if level < 1 || level > 8 {
		return &FieldError{Field: "level", Message: "must be between 1 and 8"}
	}
	return nil
}

// Date accepts an empty string or a YYYY-MM-DD date.
func Date(field, value string) *FieldError {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, value); err != nil {
		return &FieldError{Field: field, Message: "must be a YYYY-MM-DD date"}
	}
	return nil
}

// Decision accepts an empty decision or one of the QDF-2 outcomes.
func Decision(d domain.Decision) *FieldError {
	switch d {
	case "", domain.DecisionApproved, domain.DecisionIncomplete, domain.DecisionNotApproved:
		return nil
	}
	return &FieldError{Field: "decision", Message: fmt.Sprintf("unknown decision %q", d)}
}

// Members checks a nomination list: unique ids and well-formed emails.
func Members(members []domain.QDCMember) []FieldError {
	var errs []FieldError
	seen := map[string]bool{}
	for i, m := range members {
		prefix := fmt.Sprintf("qdc_members[%d]", i)
		if m.ID != "" {
			if seen[m.ID] {
				errs = append(errs, FieldError{Field: prefix + ".id", Message: "duplicate member id " + m.ID})
			}
			seen[m.ID] = true
		}
		if e := strings.TrimSpace(m.Email); e != "" {
			if _, err := mail.ParseAddress(e); err != nil {
				errs = append(errs, FieldError{Field: prefix + ".email", Message: "is not a valid email address"})
			}
		}
	}
	return errs
}

// Checklist checks responses and item indexes. itemCount <= 0 disables the
// index range check.
func Checklist(data domain.QAChecklistData, itemCount int) []FieldError {
	var errs []FieldError
	idxs := make([]int, 0, len(data.Items))
	for idx := range data.Items {
		idxs = append(idxs, idx)
	}
	sort.Ints(idxs)
	for _, idx := range idxs {
		resp := data.Items[idx]
		switch resp {
		case domain.ChecklistYes, domain.ChecklistNo, domain.ChecklistNA:
		default:
			errs = append(errs, FieldError{Field: fmt.Sprintf("items[%d]", idx), Message: fmt.Sprintf("response must be Yes, No or NA, got %q", resp)})
			continue
		}
		if idx < 0 || (itemCount > 0 && idx >= itemCount) {
			errs = append(errs, FieldError{Field: fmt.Sprintf("items[%d]", idx), Message: "no such checklist item"})
		}
	}
	if err := Date("assessment_date", data.AssessmentDate); err != nil {
		errs = append(errs, *err)
	}
	return errs
}

// NormalizeTitle trims surrounding whitespace and case-folds a title so that
// equivalent spellings compare equal.
func NormalizeTitle(title string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(title)))
}

// IsDuplicateTitle reports whether title matches any title in corpus after
// normalisation. It is advisory: callers surface a warning, they do not
// refuse the submission.
func IsDuplicateTitle(title string, corpus []string) bool {
	want := NormalizeTitle(title)
	if want == "" {
		return false
	}
	for _, existing := range corpus {
		if NormalizeTitle(existing) == want {
			return true
		}
	}
	return false
}
