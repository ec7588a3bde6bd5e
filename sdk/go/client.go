package qualflowsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Qualflow HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Intent is the QDF-1 submission body.
type Intent struct {
	Title                    string `json:"title"`
	OrganizationName         string `json:"organization_name,omitempty"`
	OrganizationType         string `json:"organization_type,omitempty"`
	OrganizationAddress      string `json:"organization_address,omitempty"`
	ContactPersonName        string `json:"contact_person_name,omitempty"`
	ContactPersonDesignation string `json:"contact_person_designation,omitempty"`
	ContactPersonPhone       string `json:"contact_person_phone,omitempty"`
	ContactPersonEmail       string `json:"contact_person_email,omitempty"`
	Description              string `json:"description,omitempty"`
	JustificationSummary     string `json:"justification_summary,omitempty"`
	JustificationSupport     string `json:"justification_support,omitempty"`
	AuthorizedPerson         string `json:"authorized_person,omitempty"`
	Level                    int    `json:"level,omitempty"`
	Sector                   string `json:"sector,omitempty"`
}

// QDF represents the API form model (partial).
type QDF struct {
	ID                  string  `json:"id"`
	Version             int64   `json:"version"`
	Title               string  `json:"title"`
	Sector              string  `json:"sector"`
	Level               int     `json:"level"`
	Status              string  `json:"status"`
	Decision            string  `json:"decision"`
	SubmissionDueDate   string  `json:"submission_due_date"`
	ReasonsForRejection string  `json:"reasons_for_rejection"`
	SubmittedBy         string  `json:"submitted_by"`
	LastUpdated         string  `json:"last_updated"`
	WorkflowHistory     []Stage `json:"workflow_history"`
}

// Stage is one process-flow entry.
type Stage struct {
	Stage     string `json:"stage"`
	User      string `json:"user,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Status    string `json:"status"`
	Comments  string `json:"comments,omitempty"`
}

type Warning struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

type Qualification struct {
	ID           string `json:"id"`
	QDFID        string `json:"qdf_id"`
	Title        string `json:"title"`
	Sector       string `json:"sector"`
	NVQFLevel    int    `json:"nvqf_level"`
	ApprovalYear int    `json:"approval_year"`
	Version      string `json:"version"`
}

// ActionResult is returned by submit, actions and edits.
type ActionResult struct {
	QDF              QDF            `json:"qdf"`
	PermittedActions []string       `json:"permitted_actions"`
	Warnings         []Warning      `json:"warnings"`
	Published        *Qualification `json:"published,omitempty"`
}

// ActionOptions are the optional action inputs.
type ActionOptions struct {
	Comments            string `json:"comments,omitempty"`
	ReasonsForRejection string `json:"reasons_for_rejection,omitempty"`
	SubmissionDueDate   string `json:"submission_due_date,omitempty"`
	ExpectedVersion     int64  `json:"expected_version,omitempty"`
}

type Permissions struct {
	Role    string   `json:"role"`
	Status  string   `json:"status"`
	Actions []string `json:"actions"`
	Edits   []string `json:"edits"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Submit creates and submits a new QDF-1.
func (c *Client) Submit(ctx context.Context, in Intent) (ActionResult, error) {
	var resp ActionResult
	err := c.do(ctx, http.MethodPost, "v0/qdfs", in, &resp)
	return resp, err
}

// Get fetches a QDF.
func (c *Client) Get(ctx context.Context, id string) (QDF, error) {
	var resp struct {
		QDF QDF `json:"qdf"`
	}
	err := c.do(ctx, http.MethodGet, qdfPath(id, ""), nil, &resp)
	return resp.QDF, err
}

// List returns QDFs, optionally filtered by status.
func (c *Client) List(ctx context.Context, status string) ([]QDF, error) {
	endpoint := "v0/qdfs"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []QDF
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Permissions returns what the caller may do on a QDF.
func (c *Client) Permissions(ctx context.Context, id string) (Permissions, error) {
	var resp Permissions
	err := c.do(ctx, http.MethodGet, qdfPath(id, "actions"), nil, &resp)
	return resp, err
}

// Apply runs a workflow action by name.
func (c *Client) Apply(ctx context.Context, id, action string, opts ActionOptions) (ActionResult, error) {
	var resp ActionResult
	err := c.do(ctx, http.MethodPost, qdfPath(id, "actions/"+url.PathEscape(action)), opts, &resp)
	return resp, err
}

// Approve accepts a submitted QDF-1 with an optional due date.
func (c *Client) Approve(ctx context.Context, id, dueDate string, expectedVersion int64) (ActionResult, error) {
	return c.Apply(ctx, id, "approve", ActionOptions{SubmissionDueDate: dueDate, ExpectedVersion: expectedVersion})
}

// Reject returns a submitted QDF-1 with reasons.
func (c *Client) Reject(ctx context.Context, id, reasons string, expectedVersion int64) (ActionResult, error) {
	return c.Apply(ctx, id, "reject", ActionOptions{ReasonsForRejection: reasons, ExpectedVersion: expectedVersion})
}

// ProcessFlow returns the display rows for a QDF.
func (c *Client) ProcessFlow(ctx context.Context, id string) ([]Stage, error) {
	var resp struct {
		Stages []Stage `json:"stages"`
	}
	err := c.do(ctx, http.MethodGet, qdfPath(id, "process-flow"), nil, &resp)
	return resp.Stages, err
}

// Registry lists published qualifications.
func (c *Client) Registry(ctx context.Context) ([]Qualification, error) {
	var resp []Qualification
	err := c.do(ctx, http.MethodGet, "v0/registry", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func qdfPath(id, sub string) string {
	p := "v0/qdfs/" + url.PathEscape(id)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
