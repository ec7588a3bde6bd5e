package qualflowsdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qualflow/internal/app"
	"qualflow/internal/domain"
	"qualflow/internal/server"
)

func TestClientSubmitApproveAndErrors(t *testing.T) {
	ctx := context.Background()
	ws, err := app.Open(ctx, t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer ws.Close()
	org := domain.Actor{ID: "org-1", Name: "Ayesha Malik", Role: domain.RoleProposingOrg}
	admin := domain.Actor{ID: "admin-1", Name: "Imran Qureshi", Role: domain.RoleAdmin}
	require.NoError(t, ws.Repo.InsertActor(ctx, org, "tester"))
	require.NoError(t, ws.Repo.InsertActor(ctx, admin, "tester"))

	handler, err := server.New(server.Config{Engine: ws.Engine, Repo: ws.Repo, Auth: server.AuthConfig{JWTSecret: "sdk-secret"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	_, orgKey, err := ws.Repo.CreateAPIKey(ctx, org.ID, "sdk")
	require.NoError(t, err)
	orgClient := New(srv.URL)
	orgClient.APIKey = orgKey

	res, err := orgClient.Submit(ctx, Intent{Title: "Plumbing Technician", Sector: "Construction", Level: 2})
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusSubmittedForReview), res.QDF.Status)
	assert.NotEmpty(t, res.Warnings, "incomplete intent is accepted with warnings")
	id := res.QDF.ID

	_, err = orgClient.Approve(ctx, id, "", 0)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)

	token, err := server.SignToken("sdk-secret", admin, -time.Minute)
	require.NoError(t, err)
	adminClient := New(srv.URL)
	adminClient.BearerToken = token
	_, err = adminClient.Get(ctx, id)
	require.Error(t, err, "expired token is refused")

	token, err = server.SignToken("sdk-secret", admin, time.Hour)
	require.NoError(t, err)
	adminClient.BearerToken = token
	perms, err := adminClient.Permissions(ctx, id)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"approve", "reject"}, perms.Actions)

	approved, err := adminClient.Approve(ctx, id, "2024-06-30", res.QDF.Version)
	require.NoError(t, err)
	assert.Equal(t, "2024-06-30", approved.QDF.SubmissionDueDate)

	_, err = adminClient.Reject(ctx, id, "late", res.QDF.Version)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)

	stages, err := orgClient.ProcessFlow(ctx, id)
	require.NoError(t, err)
	require.Len(t, stages, len(domain.StageTemplate))
	assert.Equal(t, "Imran Qureshi", stages[1].Actor)

	_, err = orgClient.Get(ctx, "QDF-nope")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "not_found", apiErr.Code)
}
