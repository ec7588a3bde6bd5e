// Package policy decides which workflow actions and form sections a role may
// use on a QDF in a given status. Permission is a function of (role, status)
// only; it never looks at who acted before.
package policy

import "qualflow/internal/domain"

type rule struct {
	Role    domain.Role
	Actions []domain.Action
	Edits   []domain.Section
}

var table = map[domain.Status][]rule{
	domain.StatusDraft: {
		{Role: domain.RoleProposingOrg, Actions: []domain.Action{domain.ActionSubmit}, Edits: []domain.Section{domain.SectionIntent}},
	},
	domain.StatusRejected: {
		{Role: domain.RoleProposingOrg, Actions: []domain.Action{domain.ActionSubmit}, Edits: []domain.Section{domain.SectionIntent}},
	},
	domain.StatusSubmittedForReview: {
		{Role: domain.RoleAdmin, Actions: []domain.Action{domain.ActionApprove, domain.ActionReject}, Edits: []domain.Section{domain.SectionReview}},
	},
	domain.StatusPendingQDCNomination: {
		{Role: domain.RoleProposingOrg, Actions: []domain.Action{domain.ActionLaunchDevelopment, domain.ActionHold}, Edits: []domain.Section{domain.SectionNomination}},
	},
	domain.StatusOnHold: {
		{Role: domain.RoleProposingOrg, Actions: []domain.Action{domain.ActionLaunchDevelopment, domain.ActionHold}, Edits: []domain.Section{domain.SectionNomination}},
	},
	domain.StatusInDevelopment: {
		{Role: domain.RoleCommitteeMember, Actions: []domain.Action{domain.ActionSubmitForValidation}, Edits: []domain.Section{domain.SectionWorkspace}},
	},
	domain.StatusCSSubmittedForValidation: {
		{Role: domain.RoleCommitteeMember, Edits: []domain.Section{domain.SectionWorkspace}},
		{Role: domain.RoleAdmin, Actions: []domain.Action{domain.ActionValidateCS}},
	},
	domain.StatusCSValidated: {
		{Role: domain.RoleCommitteeMember, Actions: []domain.Action{domain.ActionRequestIndustryValidation}, Edits: []domain.Section{domain.SectionWorkspace}},
	},
	domain.StatusPendingIndustryValidation: {
		{Role: domain.RoleIndustryExpert, Actions: []domain.Action{domain.ActionEndorse}},
	},
	domain.StatusPendingFinalApproval: {
		{Role: domain.RoleAdmin, Actions: []domain.Action{domain.ActionFinalApprove}, Edits: []domain.Section{domain.SectionChecklist}},
	},
}

func lookup(role domain.Role, status domain.Status) (rule, bool) {
	for _, r := range table[status] {
		if r.Role == role {
			return r, true
		}
	}
	return rule{}, false
}

// PermittedActions returns the transitions role may trigger on a QDF in
// status, in table order. Unknown roles or statuses yield an empty slice.
func PermittedActions(role domain.Role, status domain.Status) []domain.Action {
	r, ok := lookup(role, status)
	if !ok {
		return []domain.Action{}
	}
	return append([]domain.Action{}, r.Actions...)
}

// PermittedEdits returns the form sections role may change in status.
func PermittedEdits(role domain.Role, status domain.Status) []domain.Section {
	r, ok := lookup(role, status)
	if !ok {
		return []domain.Section{}
	}
	return append([]domain.Section{}, r.Edits...)
}

func Allowed(role domain.Role, status domain.Status, action domain.Action) bool {
	for _, a := range PermittedActions(role, status) {
		if a == action {
			return true
		}
	}
	return false
}

func CanEdit(role domain.Role, status domain.Status, section domain.Section) bool {
	for _, s := range PermittedEdits(role, status) {
		if s == section {
			return true
		}
	}
	return false
}

// Matrix is a row of the full role × status cross product.
type Matrix struct {
	Role    domain.Role      `json:"role"`
	Status  domain.Status    `json:"status"`
	Actions []domain.Action  `json:"actions"`
	Edits   []domain.Section `json:"edits"`
}

// All enumerates every (role, status) pair with its permissions, roles
// outer and statuses inner, both in declaration order.
func All() []Matrix {
	out := make([]Matrix, 0, len(domain.Roles)*len(domain.Statuses))
	for _, role := range domain.Roles {
		for _, status := range domain.Statuses {
			out = append(out, Matrix{
				Role:    role,
				Status:  status,
				Actions: PermittedActions(role, status),
				Edits:   PermittedEdits(role, status),
			})
		}
	}
	return out
}
