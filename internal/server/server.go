package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"qualflow/internal/domain"
	"qualflow/internal/engine"
	"qualflow/internal/engine/auth"
	"qualflow/internal/events"
	"qualflow/internal/policy"
	"qualflow/internal/processflow"
	"qualflow/internal/repo"
	"qualflow/internal/validate"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Repo     repo.Repo
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"role ProposingOrg may not approve while Submitted for Review"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"action\":\"approve\"}"`
}

type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type api struct {
	engine engine.Engine
	repo   repo.Repo
	auth   AuthConfig
	log    *zap.Logger
}

// New returns an HTTP handler exposing the Qualflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(log))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(body))
			ctx := context.WithValue(r.Context(), bodyBytesKey{}, body)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, auth.Directory{Repo: cfg.Repo}))
	hcfg := huma.DefaultConfig("Qualflow API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	hapi := humachi.New(router, hcfg)
	group := huma.NewGroup(hapi, basePath)

	a := api{engine: cfg.Engine, repo: cfg.Repo, auth: cfg.Auth, log: log}
	registerDocs(router, basePath)
	registerHealth(group)
	a.registerQDFs(group)
	a.registerActions(group)
	a.registerEdits(group)
	a.registerFlow(group)
	a.registerEvents(group)
	a.registerPolicy(group)
	a.registerRegistry(group)
	a.registerMe(group)
	if cfg.Auth.EnableDevLogin {
		a.registerDevAuth(group)
	}
	registerOpenAPI(router, hapi, basePath)

	return router, nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var fe engine.ForbiddenError
	if errors.As(err, &fe) {
		details := map[string]any{"role": fe.Role, "status": fe.Status}
		if fe.Action != "" {
			details["action"] = fe.Action
		}
		if fe.Section != "" {
			details["section"] = fe.Section
		}
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), details)
	}
	var ie engine.InvalidPayloadError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusBadRequest, "invalid_payload", err.Error(), map[string]any{"field": ie.Field})
	}
	var ce engine.ConflictError
	if errors.As(err, &ce) {
		return newAPIError(http.StatusConflict, "conflict", err.Error(), map[string]any{"expected_version": ce.Expected})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		path.Join("/", basePath, "health"):         true,
		path.Join("/", basePath, "auth/dev/login"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Qualflow API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

type qdfPath struct {
	ID string `path:"id"`
}

func (a api) qdfResponse(q domain.QDF, role domain.Role) QDFResponse {
	return QDFResponse{
		QDF:              q,
		StatusLabel:      q.Status.Label(),
		CurrentStage:     engine.CurrentStage(q.Status),
		Progress:         processflow.Summarize(q.WorkflowHistory),
		PermittedActions: nonNilSlice(policy.PermittedActions(role, q.Status)),
		PermittedEdits:   nonNilSlice(policy.PermittedEdits(role, q.Status)),
	}
}

func (a api) registerQDFs(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-qdf",
		Method:        http.MethodPost,
		Path:          "/qdfs",
		Summary:       "Submit a new QDF-1",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateQDFRequest `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		draft := domain.QDF{Intent: input.Body.Intent, Status: domain.StatusDraft}
		out, err := a.engine.Apply(ctx, engine.ApplyRequest{QDF: draft, Action: domain.ActionSubmit, Actor: p.Actor})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionResponse `json:"body"`
		}{Body: actionResponse(out)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-qdfs",
		Method:      http.MethodGet,
		Path:        "/qdfs",
		Summary:     "List QDFs",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		Sector      string `query:"sector"`
		SubmittedBy string `query:"submitted_by"`
		Query       string `query:"q" doc:"Case-insensitive title substring"`
		Limit       int    `query:"limit" default:"50"`
	}) (*struct {
		Body []QDFSummary `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if input.Status != "" && !domain.Status(input.Status).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status", map[string]any{"status": input.Status})
		}
		items, err := a.repo.ListQDFs(ctx, repo.QDFFilters{
			Status:      input.Status,
			Sector:      input.Sector,
			SubmittedBy: input.SubmittedBy,
			Query:       input.Query,
			Limit:       normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]QDFSummary, 0, len(items))
		for _, q := range items {
			out = append(out, summarize(q, nonNilSlice(policy.PermittedActions(p.Actor.Role, q.Status))))
		}
		return &struct {
			Body []QDFSummary `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-qdf",
		Method:      http.MethodGet,
		Path:        "/qdfs/{id}",
		Summary:     "Get QDF",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *qdfPath) (*struct {
		Body QDFResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := a.engine.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := a.qdfResponse(q, p.Actor.Role)
		if q.Status == domain.StatusApproved {
			entry, err := a.repo.GetQualificationByQDF(ctx, q.ID)
			switch {
			case err == nil:
				res.Published = &entry
			case !errors.Is(err, repo.ErrNotFound):
				return nil, handleError(err)
			}
		}
		return &struct {
			Body QDFResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-title",
		Method:      http.MethodPost,
		Path:        "/titles/check",
		Summary:     "Check a proposed title against existing QDFs and the registry",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body TitleCheckRequest `json:"body"`
	}) (*struct {
		Body TitleCheckResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		corpus, err := a.repo.Titles(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TitleCheckResponse `json:"body"`
		}{Body: TitleCheckResponse{
			Title:      input.Body.Title,
			Normalized: validate.NormalizeTitle(input.Body.Title),
			Duplicate:  validate.IsDuplicateTitle(input.Body.Title, corpus),
		}}, nil
	})
}

func (a api) registerActions(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "qdf-permissions",
		Method:      http.MethodGet,
		Path:        "/qdfs/{id}/actions",
		Summary:     "Actions and edits the caller may perform on a QDF",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *qdfPath) (*struct {
		Body PermissionsResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		q, err := a.engine.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PermissionsResponse `json:"body"`
		}{Body: PermissionsResponse{
			Role:    p.Actor.Role,
			Status:  q.Status,
			Actions: nonNilSlice(policy.PermittedActions(p.Actor.Role, q.Status)),
			Edits:   nonNilSlice(policy.PermittedEdits(p.Actor.Role, q.Status)),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-action",
		Method:      http.MethodPost,
		Path:        "/qdfs/{id}/actions/{action}",
		Summary:     "Apply a workflow action",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID     string        `path:"id"`
		Action string        `path:"action"`
		Body   *ActionRequest
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		action := domain.Action(input.Action)
		if !action.Valid() {
			return nil, newAPIError(http.StatusBadRequest, "invalid_action", "unknown action", map[string]any{"action": input.Action})
		}
		if input.Body == nil {
			input.Body = &ActionRequest{}
		}
		out, err := a.engine.ApplyByID(ctx, input.ID, action, p.Actor, engine.Payload{
			Comments:            input.Body.Comments,
			ReasonsForRejection: input.Body.ReasonsForRejection,
			SubmissionDueDate:   input.Body.SubmissionDueDate,
		}, input.Body.ExpectedVersion)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionResponse `json:"body"`
		}{Body: actionResponse(out)}, nil
	})
}

func (a api) edit(ctx context.Context, id string, expected int64, cmd engine.Command) (*struct {
	Body ActionResponse `json:"body"`
}, error) {
	p, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return nil, authErr
	}
	out, err := a.engine.Edit(ctx, engine.EditRequest{ID: id, Actor: p.Actor, ExpectedVersion: expected, Command: cmd})
	if err != nil {
		return nil, handleError(err)
	}
	return &struct {
		Body ActionResponse `json:"body"`
	}{Body: actionResponse(out)}, nil
}

func (a api) registerEdits(api huma.API) {
	editErrors := []int{
		http.StatusBadRequest,
		http.StatusUnauthorized,
		http.StatusForbidden,
		http.StatusNotFound,
		http.StatusConflict,
	}
	huma.Register(api, huma.Operation{
		OperationID: "edit-intent",
		Method:      http.MethodPatch,
		Path:        "/qdfs/{id}/intent",
		Summary:     "Edit the QDF-1 intent section",
		Errors:      editErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body IntentEditRequest `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		return a.edit(ctx, input.ID, input.Body.ExpectedVersion, engine.IntentUpdate{Intent: input.Body.Intent})
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-review",
		Method:      http.MethodPatch,
		Path:        "/qdfs/{id}/review",
		Summary:     "Edit the QDF-2 review section",
		Errors:      editErrors,
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body ReviewEditRequest `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		return a.edit(ctx, input.ID, input.Body.ExpectedVersion, engine.ReviewUpdate{Review: input.Body.Review})
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-nomination",
		Method:      http.MethodPatch,
		Path:        "/qdfs/{id}/nomination",
		Summary:     "Replace the QDC member list",
		Errors:      editErrors,
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body NominationEditRequest `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		return a.edit(ctx, input.ID, input.Body.ExpectedVersion, engine.NominationUpdate{Members: input.Body.Members})
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-checklist",
		Method:      http.MethodPatch,
		Path:        "/qdfs/{id}/checklist",
		Summary:     "Record the QA checklist",
		Errors:      editErrors,
	}, func(ctx context.Context, input *struct {
		ID   string               `path:"id"`
		Body ChecklistEditRequest `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		return a.edit(ctx, input.ID, input.Body.ExpectedVersion, engine.ChecklistUpdate{Checklist: input.Body.QAChecklistData})
	})
}

func (a api) registerFlow(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "process-flow",
		Method:      http.MethodGet,
		Path:        "/qdfs/{id}/process-flow",
		Summary:     "Process flow for display",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *qdfPath) (*struct {
		Body ProcessFlowResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		q, err := a.engine.Get(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessFlowResponse `json:"body"`
		}{Body: ProcessFlowResponse{
			Progress: processflow.Summarize(q.WorkflowHistory),
			Stages:   processflow.Project(q.WorkflowHistory),
		}}, nil
	})
}

func (a api) registerEvents(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "qdf-events",
		Method:      http.MethodGet,
		Path:        "/qdfs/{id}/events",
		Summary:     "Audit events for a QDF",
		Errors:      []int{http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Type  string `query:"type"`
		Limit int    `query:"limit" default:"50"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		if _, err := a.engine.Get(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		items, err := a.repo.LatestEvents(ctx, normalizeLimit(input.Limit), input.Type, events.KindQDF, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, evt := range items {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}

func (a api) registerPolicy(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "policy",
		Method:      http.MethodGet,
		Path:        "/policy",
		Summary:     "Role and status permission matrix",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Role   string `query:"role"`
		Status string `query:"status"`
	}) (*struct {
		Body []PermissionsResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		if input.Role != "" && !domain.Role(input.Role).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown role", map[string]any{"role": input.Role})
		}
		if input.Status != "" && !domain.Status(input.Status).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown status", map[string]any{"status": input.Status})
		}
		out := []PermissionsResponse{}
		for _, m := range policy.All() {
			if input.Role != "" && string(m.Role) != input.Role {
				continue
			}
			if input.Status != "" && string(m.Status) != input.Status {
				continue
			}
			out = append(out, PermissionsResponse{
				Role:    m.Role,
				Status:  m.Status,
				Actions: nonNilSlice(m.Actions),
				Edits:   nonNilSlice(m.Edits),
			})
		}
		return &struct {
			Body []PermissionsResponse `json:"body"`
		}{Body: out}, nil
	})
}

func (a api) registerRegistry(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "list-registry",
		Method:      http.MethodGet,
		Path:        "/registry",
		Summary:     "Published qualifications",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Sector string `query:"sector"`
		Query  string `query:"q"`
	}) (*struct {
		Body []domain.Qualification `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := a.repo.ListRegistry(ctx, repo.RegistryFilters{Sector: input.Sector, Query: input.Query})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Qualification `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func (a api) registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		p, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{
			ActorID:     p.Actor.ID,
			Name:        p.Actor.Name,
			Role:        p.Actor.Role,
			DisplayRole: a.engine.Config.DisplayName(p.Actor.Role),
			Source:      p.Source,
		}}, nil
	})
}

func (a api) registerDevAuth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for a registered actor",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		id := strings.TrimSpace(input.Body.ActorID)
		if id == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "actor_id is required", nil)
		}
		actor, err := auth.Directory{Repo: a.repo}.Resolve(ctx, id)
		if err != nil {
			var unknown auth.UnknownActorError
			if errors.As(err, &unknown) {
				return nil, newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil)
			}
			return nil, handleError(err)
		}
		token, err := SignToken(a.auth.JWTSecret, actor, 12*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	return nil
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 500 {
		return 500
	}
	return in
}
