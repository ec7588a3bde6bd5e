package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"qualflow/internal/app"
	"qualflow/internal/domain"
	"qualflow/internal/engine"
	"qualflow/internal/processflow"
)

const testSecret = "test-secret"

var (
	orgActor   = domain.Actor{ID: "org-1", Name: "Ayesha Malik", Role: domain.RoleProposingOrg}
	adminActor = domain.Actor{ID: "admin-1", Name: "Imran Qureshi", Role: domain.RoleAdmin}
)

type testServer struct {
	URL    string
	WS     *app.Workspace
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t)
	ws, err := app.Open(ctx, t.TempDir(), log)
	if err != nil {
		t.Fatalf("open workspace: %v", err)
	}
	for _, a := range []domain.Actor{orgActor, adminActor} {
		if err := ws.Repo.InsertActor(ctx, a, "tester"); err != nil {
			t.Fatalf("insert actor: %v", err)
		}
	}
	handler, err := New(Config{
		Engine:   ws.Engine,
		Repo:     ws.Repo,
		BasePath: "/v0",
		Logger:   log,
		Auth: AuthConfig{
			JWTSecret:        testSecret,
			AllowActorHeader: true,
			EnableDevLogin:   true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		WS:     ws,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			ws.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(a domain.Actor) map[string]string {
	return map[string]string{"X-Actor-Id": a.ID}
}

type envelope struct {
	Error apiErrorBody `json:"error"`
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func submitQDF(t *testing.T, srv *testServer, title string) ActionResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/qdfs", map[string]any{
		"title":                 title,
		"organization_name":     "TEVTA Punjab",
		"contact_person_name":   "Ayesha Malik",
		"contact_person_email":  "ayesha@example.org",
		"description":           "Structural welding",
		"justification_summary": "Industry demand",
		"sector":                "Construction",
		"level":                 3,
	}, as(orgActor))
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))
	var out ActionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestSubmitApproveFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	submitted := submitQDF(t, srv, "Welding Technician")
	q := submitted.QDF
	assert.Equal(t, domain.StatusSubmittedForReview, q.Status)
	assert.Equal(t, int64(1), q.Version)
	assert.Empty(t, submitted.Warnings)
	assert.Empty(t, submitted.PermittedActions, "proposing org cannot act on a submitted QDF")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs/"+q.ID+"/actions", nil, as(adminActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var perms PermissionsResponse
	require.NoError(t, json.Unmarshal(data, &perms))
	assert.ElementsMatch(t, []domain.Action{domain.ActionApprove, domain.ActionReject}, perms.Actions)

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/qdfs/"+q.ID+"/actions/approve", map[string]any{
		"submission_due_date": "2024-03-01",
		"expected_version":    1,
	}, as(adminActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var approved ActionResponse
	require.NoError(t, json.Unmarshal(data, &approved))
	assert.Equal(t, domain.StatusPendingQDCNomination, approved.QDF.Status)
	assert.Equal(t, "2024-03-01", approved.QDF.SubmissionDueDate)
	assert.Equal(t, domain.DecisionApproved, approved.QDF.Decision)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs/"+q.ID, nil, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var got QDFResponse
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Pending QDC Nomination", got.StatusLabel)
	assert.Contains(t, got.PermittedEdits, domain.SectionNomination)
	assert.Equal(t, 2, got.Progress.Completed)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs/"+q.ID+"/events", nil, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts []EventResponse
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts, 2)
	types := []string{evts[0].Type, evts[1].Type}
	assert.ElementsMatch(t, []string{"qdf.submit", "qdf.approve"}, types)
}

func TestActionWithoutBody(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	q := submitQDF(t, srv, "Solar Installer").QDF

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/qdfs/"+q.ID+"/actions/reject", nil, as(adminActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out ActionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, domain.StatusRejected, out.QDF.Status)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, "empty_reason", out.Warnings[0].Code)
}

func TestForbiddenActionEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	q := submitQDF(t, srv, "Welding Technician").QDF

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/qdfs/"+q.ID+"/actions/approve", map[string]any{}, as(orgActor))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "forbidden", body.Code)
	assert.Equal(t, "approve", body.Details["action"])
	assert.Equal(t, string(domain.RoleProposingOrg), body.Details["role"])

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs/"+q.ID, nil, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode)
	var got QDFResponse
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, q.Version, got.QDF.Version, "refused action must not write")
}

func TestStaleVersionConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	q := submitQDF(t, srv, "Welding Technician").QDF

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/qdfs/"+q.ID+"/actions/approve", map[string]any{"expected_version": 7}, as(adminActor))
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "conflict", body.Code)
	assert.EqualValues(t, 7, body.Details["expected_version"])
}

func TestInvalidPayloadAndAction(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	q := submitQDF(t, srv, "Welding Technician").QDF

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/qdfs/"+q.ID+"/actions/approve", map[string]any{"submission_due_date": "01/03/2024"}, as(adminActor))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "invalid_payload", body.Code)
	assert.Equal(t, "submission_due_date", body.Details["field"])

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/qdfs/"+q.ID+"/actions/publish", nil, as(adminActor))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "invalid_action", decodeError(t, data).Code)
}

func TestNotFoundAndUnauthorized(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs/QDF-missing", nil, as(orgActor))
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	assert.Equal(t, "not_found", decodeError(t, data).Code)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs", nil, nil)
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "unauthorized", decodeError(t, data).Code)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs", nil, map[string]string{"X-Actor-Id": "ghost"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestEditNominationGated(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	q := submitQDF(t, srv, "Welding Technician").QDF
	members := map[string]any{"qdc_members": []map[string]any{{"name": "Bilal Ahmed", "email": "bilal@example.org"}}}

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/qdfs/"+q.ID+"/nomination", members, as(orgActor))
	require.Equal(t, http.StatusForbidden, res.StatusCode, string(data))
	assert.Equal(t, "nomination", decodeError(t, data).Details["section"])

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/qdfs/"+q.ID+"/actions/approve", nil, as(adminActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/qdfs/"+q.ID+"/nomination", members, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out ActionResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out.QDF.QDCMembers, 1)
	assert.NotEmpty(t, out.QDF.QDCMembers[0].ID)
}

func TestProcessFlowHidesPendingStages(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	q := submitQDF(t, srv, "Welding Technician").QDF

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs/"+q.ID+"/process-flow", nil, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var flow ProcessFlowResponse
	require.NoError(t, json.Unmarshal(data, &flow))
	require.Len(t, flow.Stages, len(domain.StageTemplate))
	assert.Equal(t, "Ayesha Malik", flow.Stages[0].Actor)
	for _, s := range flow.Stages {
		if s.Status == domain.StagePending {
			assert.Equal(t, processflow.DisplayEvent{Stage: s.Stage, Status: domain.StagePending}, s)
		}
	}
}

func TestPolicyAndTitleCheck(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	submitQDF(t, srv, "Welding Technician")

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/policy?role=Admin&status="+string(domain.StatusSubmittedForReview), nil, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var matrix []PermissionsResponse
	require.NoError(t, json.Unmarshal(data, &matrix))
	require.Len(t, matrix, 1)
	assert.ElementsMatch(t, []domain.Action{domain.ActionApprove, domain.ActionReject}, matrix[0].Actions)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/policy?role=Janitor", nil, as(orgActor))
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/titles/check", map[string]any{"title": "  welding TECHNICIAN "}, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var check TitleCheckResponse
	require.NoError(t, json.Unmarshal(data, &check))
	assert.True(t, check.Duplicate)
}

func TestDevLoginAndAPIKey(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": adminActor.ID}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var login DevLoginResponse
	require.NoError(t, json.Unmarshal(data, &login))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var me MeResponse
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, adminActor.ID, me.ActorID)
	assert.Equal(t, domain.RoleAdmin, me.Role)
	assert.Equal(t, "NAVTTC Admin", me.DisplayRole)
	assert.Equal(t, "jwt", me.Source)

	_, secret, err := srv.WS.Repo.CreateAPIKey(context.Background(), orgActor.ID, "ci")
	require.NoError(t, err)
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": secret})
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &me))
	assert.Equal(t, orgActor.ID, me.ActorID)
	assert.Equal(t, "api_key", me.Source)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": "qf_nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
}

func TestSignTokenCarriesRole(t *testing.T) {
	token, err := SignToken(testSecret, orgActor, time.Hour)
	require.NoError(t, err)
	claims, err := parseJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, orgActor.ID, claims.Subject)
	assert.Equal(t, string(domain.RoleProposingOrg), claims.Role)

	_, err = parseJWT(token, "other-secret")
	require.Error(t, err)

	expired, err := SignToken(testSecret, orgActor, -time.Minute)
	require.NoError(t, err)
	_, err = parseJWT(expired, testSecret)
	require.Error(t, err)

	_, err = SignToken("", orgActor, time.Hour)
	require.Error(t, err)
}

func TestGetQDFShowsRegistryEntryOnceApproved(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	ctx := context.Background()
	q := submitQDF(t, srv, "Welding Technician").QDF

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs/"+q.ID, nil, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var pending QDFResponse
	require.NoError(t, json.Unmarshal(data, &pending))
	assert.Nil(t, pending.Published)

	qdc := domain.Actor{ID: "qdc-1", Name: "Bilal Ahmed", Role: domain.RoleCommitteeMember}
	expert := domain.Actor{ID: "exp-1", Name: "Sana Javed", Role: domain.RoleIndustryExpert}
	steps := []struct {
		action domain.Action
		actor  domain.Actor
	}{
		{domain.ActionApprove, adminActor},
		{domain.ActionLaunchDevelopment, orgActor},
		{domain.ActionSubmitForValidation, qdc},
		{domain.ActionValidateCS, adminActor},
		{domain.ActionRequestIndustryValidation, qdc},
		{domain.ActionEndorse, expert},
		{domain.ActionFinalApprove, adminActor},
	}
	var published *domain.Qualification
	for _, s := range steps {
		out, err := srv.WS.Engine.ApplyByID(ctx, q.ID, s.action, s.actor, engine.Payload{}, 0)
		require.NoError(t, err, s.action)
		published = out.Published
	}
	require.NotNil(t, published)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs/"+q.ID, nil, as(orgActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var approved QDFResponse
	require.NoError(t, json.Unmarshal(data, &approved))
	assert.Equal(t, domain.StatusApproved, approved.QDF.Status)
	require.NotNil(t, approved.Published)
	assert.Equal(t, published.ID, approved.Published.ID)
	assert.Equal(t, q.ID, approved.Published.QDFID)
	assert.Equal(t, "1.0", approved.Published.Version)
}

func TestListFiltersBySubmitterID(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	q := submitQDF(t, srv, "Solar Installer").QDF
	assert.Equal(t, orgActor.ID, q.SubmittedBy)
	assert.Equal(t, orgActor.Name, q.WorkflowHistory[0].User)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs?submitted_by="+orgActor.ID, nil, as(adminActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var items []QDFSummary
	require.NoError(t, json.Unmarshal(data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, q.ID, items[0].ID)
	assert.Equal(t, orgActor.ID, items[0].SubmittedBy)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/qdfs?submitted_by=admin-1", nil, as(adminActor))
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &items))
	assert.Empty(t, items)
}
