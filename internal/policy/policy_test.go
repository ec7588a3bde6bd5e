package policy

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qualflow/internal/domain"
)

func TestPermittedActions_Table(t *testing.T) {
	tests := []struct {
		role   domain.Role
		status domain.Status
		want   []domain.Action
	}{
		{domain.RoleProposingOrg, domain.StatusDraft, []domain.Action{domain.ActionSubmit}},
		{domain.RoleProposingOrg, domain.StatusRejected, []domain.Action{domain.ActionSubmit}},
		{domain.RoleAdmin, domain.StatusSubmittedForReview, []domain.Action{domain.ActionApprove, domain.ActionReject}},
		{domain.RoleProposingOrg, domain.StatusPendingQDCNomination, []domain.Action{domain.ActionLaunchDevelopment, domain.ActionHold}},
		{domain.RoleProposingOrg, domain.StatusOnHold, []domain.Action{domain.ActionLaunchDevelopment, domain.ActionHold}},
		{domain.RoleAdmin, domain.StatusPendingFinalApproval, []domain.Action{domain.ActionFinalApprove}},
		{domain.RoleAdmin, domain.StatusDraft, []domain.Action{}},
		{domain.RoleProposingOrg, domain.StatusSubmittedForReview, []domain.Action{}},
		{domain.RoleSystemAdmin, domain.StatusPendingFinalApproval, []domain.Action{}},
		{domain.RoleTrainingProvider, domain.StatusInDevelopment, []domain.Action{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, PermittedActions(tt.role, tt.status))
		})
	}
}

func TestPermittedActions_UnknownInputsAreEmpty(t *testing.T) {
	got := PermittedActions("Janitor", domain.StatusDraft)
	require.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, PermittedActions(domain.RoleAdmin, "Archived"))
	assert.Empty(t, PermittedEdits("", ""))
}

func TestApprovedIsTerminal(t *testing.T) {
	for _, role := range domain.Roles {
		assert.Empty(t, PermittedActions(role, domain.StatusApproved), role)
		assert.Empty(t, PermittedEdits(role, domain.StatusApproved), role)
	}
}

func TestAllowedAndCanEdit(t *testing.T) {
	assert.True(t, Allowed(domain.RoleAdmin, domain.StatusSubmittedForReview, domain.ActionReject))
	assert.False(t, Allowed(domain.RoleAdmin, domain.StatusSubmittedForReview, domain.ActionSubmit))
	assert.True(t, CanEdit(domain.RoleProposingOrg, domain.StatusOnHold, domain.SectionNomination))
	assert.False(t, CanEdit(domain.RoleProposingOrg, domain.StatusInDevelopment, domain.SectionNomination))
	assert.True(t, CanEdit(domain.RoleAdmin, domain.StatusPendingFinalApproval, domain.SectionChecklist))
}

func TestResultIsACopy(t *testing.T) {
	got := PermittedActions(domain.RoleAdmin, domain.StatusSubmittedForReview)
	got[0] = domain.ActionHold
	assert.Equal(t, domain.ActionApprove, PermittedActions(domain.RoleAdmin, domain.StatusSubmittedForReview)[0])
}

func TestAll_CoversCrossProduct(t *testing.T) {
	rows := All()
	assert.Len(t, rows, len(domain.Roles)*len(domain.Statuses))

	var buf bytes.Buffer
	for _, row := range rows {
		if len(row.Actions) == 0 && len(row.Edits) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "%s %s actions=%s edits=%s\n", row.Role, row.Status, joinOrDash(row.Actions), joinOrDash(row.Edits))
	}
	g := goldie.New(t)
	g.Assert(t, "permission_matrix", buf.Bytes())
}

func joinOrDash[T ~string](items []T) string {
	if len(items) == 0 {
		return "-"
	}
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}
