package server

import (
	"qualflow/internal/domain"
	"qualflow/internal/engine"
	"qualflow/internal/processflow"
)

// Request payloads

type CreateQDFRequest struct {
	domain.Intent
}

type ActionRequest struct {
	Comments            string `json:"comments,omitempty"`
	ReasonsForRejection string `json:"reasons_for_rejection,omitempty"`
	SubmissionDueDate   string `json:"submission_due_date,omitempty" example:"2024-03-01"`
	ExpectedVersion     int64  `json:"expected_version,omitempty" doc:"Version the caller last read; omitted means the stored version"`
}

type IntentEditRequest struct {
	domain.Intent
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

type ReviewEditRequest struct {
	domain.Review
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

type NominationEditRequest struct {
	Members         []domain.QDCMember `json:"qdc_members"`
	ExpectedVersion int64              `json:"expected_version,omitempty"`
}

type ChecklistEditRequest struct {
	domain.QAChecklistData
	ExpectedVersion int64 `json:"expected_version,omitempty"`
}

type TitleCheckRequest struct {
	Title string `json:"title" minLength:"1"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Responses

type QDFSummary struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Sector           string          `json:"sector,omitempty"`
	Level            int             `json:"level,omitempty"`
	Status           domain.Status   `json:"status"`
	StatusLabel      string          `json:"status_label"`
	SubmittedBy      string          `json:"submitted_by,omitempty"`
	LastUpdated      string          `json:"last_updated"`
	Version          int64           `json:"version"`
	PermittedActions []domain.Action `json:"permitted_actions"`
}

type QDFResponse struct {
	QDF              domain.QDF           `json:"qdf"`
	StatusLabel      string               `json:"status_label"`
	CurrentStage     string               `json:"current_stage,omitempty"`
	Progress         processflow.Progress `json:"progress"`
	PermittedActions []domain.Action      `json:"permitted_actions"`
	PermittedEdits   []domain.Section     `json:"permitted_edits"`
	// Published is the registry entry created by final approval.
	Published *domain.Qualification `json:"published,omitempty"`
}

type PermissionsResponse struct {
	Role    domain.Role      `json:"role"`
	Status  domain.Status    `json:"status"`
	Actions []domain.Action  `json:"actions"`
	Edits   []domain.Section `json:"edits"`
}

type ActionResponse struct {
	QDF              domain.QDF            `json:"qdf"`
	PermittedActions []domain.Action       `json:"permitted_actions"`
	Warnings         []engine.Warning      `json:"warnings"`
	Published        *domain.Qualification `json:"published,omitempty"`
}

type ProcessFlowResponse struct {
	Progress processflow.Progress       `json:"progress"`
	Stages   []processflow.DisplayEvent `json:"stages"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

type TitleCheckResponse struct {
	Title      string `json:"title"`
	Normalized string `json:"normalized"`
	Duplicate  bool   `json:"duplicate"`
}

type MeResponse struct {
	ActorID     string      `json:"actor_id"`
	Name        string      `json:"name"`
	Role        domain.Role `json:"role"`
	DisplayRole string      `json:"display_role"`
	Source      string      `json:"source"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func summarize(q domain.QDF, actions []domain.Action) QDFSummary {
	return QDFSummary{
		ID:               q.ID,
		Title:            q.Title,
		Sector:           q.Sector,
		Level:            q.Level,
		Status:           q.Status,
		StatusLabel:      q.Status.Label(),
		SubmittedBy:      q.SubmittedBy,
		LastUpdated:      q.LastUpdated,
		Version:          q.Version,
		PermittedActions: actions,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}

func actionResponse(out engine.Outcome) ActionResponse {
	warnings := out.Warnings
	if warnings == nil {
		warnings = []engine.Warning{}
	}
	return ActionResponse{
		QDF:              out.QDF,
		PermittedActions: nonNilSlice(out.Permitted),
		Warnings:         warnings,
		Published:        out.Published,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
