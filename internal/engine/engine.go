package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qualflow/internal/config"
	"qualflow/internal/domain"
	"qualflow/internal/events"
	"qualflow/internal/policy"
	"qualflow/internal/repo"
	"qualflow/internal/validate"
)

// Store is the persistence the engine needs. repo.Repo satisfies it.
type Store interface {
	GetQDF(ctx context.Context, id string) (domain.QDF, error)
	SaveQDF(ctx context.Context, c repo.Change) (domain.QDF, error)
	Titles(ctx context.Context) ([]string, error)
}

type Engine struct {
	Store  Store
	Config *config.Config
	Log    *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

// New builds an engine over db. QDF events take their timestamp from Now.
func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	return Engine{
		Store:  repo.Repo{DB: db, Events: events.Writer{Now: time.Now}},
		Config: cfg,
		Log:    log,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

// ApplyRequest is one workflow action against the QDF the caller last read.
// ExpectedVersion 0 means "the version on QDF".
type ApplyRequest struct {
	QDF             domain.QDF
	Action          domain.Action
	Actor           domain.Actor
	Payload         Payload
	ExpectedVersion int64
}

type Outcome struct {
	QDF       domain.QDF            `json:"qdf"`
	Permitted []domain.Action       `json:"permitted_actions"`
	Warnings  []Warning             `json:"warnings,omitempty"`
	Published *domain.Qualification `json:"published,omitempty"`
}

// Get loads a QDF, mapping a missing id to NotFoundError.
func (e Engine) Get(ctx context.Context, id string) (domain.QDF, error) {
	q, err := e.Store.GetQDF(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return q, NotFoundError{ID: id}
	}
	return q, err
}

// Apply checks, transitions and persists one action. Nothing is written
// unless every step succeeds.
func (e Engine) Apply(ctx context.Context, req ApplyRequest) (Outcome, error) {
	q := req.QDF
	expected := req.ExpectedVersion
	switch {
	case expected == 0:
		expected = q.Version
	case q.Version == 0:
		return Outcome{}, InvalidPayloadError{Field: "expected_version", Reason: "an unsaved QDF has no version to expect"}
	case q.Version != expected:
		return Outcome{}, ConflictError{ID: q.ID, Expected: expected}
	}
	isNew := expected == 0
	if isNew && req.Action == domain.ActionSubmit && q.ID == "" {
		q = q.Clone()
		q.ID = "QDF-" + e.newID()
	}

	now := e.now()
	next, warnings, err := Transition(q, req.Action, req.Actor, req.Payload, now)
	if err != nil {
		e.log().Debug("qdf action refused", zap.String("qdf_id", q.ID), zap.String("action", string(req.Action)), zap.String("role", string(req.Actor.Role)), zap.Error(err))
		return Outcome{}, err
	}
	if isNew && req.Action != domain.ActionSubmit {
		// only submit can create a record
		return Outcome{}, NotFoundError{ID: q.ID}
	}

	cfg := e.config()
	if cfg.Workflow.StrictPayloads {
		for _, w := range warnings {
			if w.Code == WarnEmptyReason || w.Code == WarnIntentField {
				return Outcome{}, InvalidPayloadError{Field: w.Field, Reason: w.Message}
			}
		}
	}
	if isNew && req.Action == domain.ActionSubmit && cfg.Workflow.DuplicateTitles != config.DuplicateTitlesOff {
		corpus, err := e.Store.Titles(ctx)
		if err != nil {
			return Outcome{}, err
		}
		if validate.IsDuplicateTitle(next.Title, corpus) {
			warnings = append(warnings, Warning{Code: WarnDuplicateTitle, Field: "title", Message: "a qualification with this title already exists"})
		}
	}

	change := repo.Change{
		QDF:             next,
		ExpectedVersion: expected,
		Event: repo.EventRecord{
			Type:    events.TransitionType(string(req.Action)),
			ActorID: req.Actor.ID,
			Payload: events.Payload{"from": q.Status, "to": next.Status, "warnings": len(warnings)},
			At:      now,
		},
	}
	var published *domain.Qualification
	if req.Action == domain.ActionFinalApprove {
		published = &domain.Qualification{
			ID:           "QUAL-" + e.newID(),
			QDFID:        next.ID,
			Title:        next.Title,
			Sector:       next.Sector,
			NVQFLevel:    next.Level,
			ApprovalYear: now.UTC().Year(),
			Version:      cfg.Registry.InitialVersion,
		}
		change.Publish = published
		change.Event.Payload["qualification_id"] = published.ID
	}

	saved, err := e.Store.SaveQDF(ctx, change)
	if err != nil {
		return Outcome{}, e.storeError(next.ID, expected, err)
	}
	e.log().Info("qdf transition",
		zap.String("qdf_id", saved.ID),
		zap.String("action", string(req.Action)),
		zap.String("from", string(q.Status)),
		zap.String("to", string(saved.Status)),
		zap.String("actor", req.Actor.ID),
		zap.Int("warnings", len(warnings)),
	)
	return Outcome{
		QDF:       saved,
		Permitted: policy.PermittedActions(req.Actor.Role, saved.Status),
		Warnings:  warnings,
		Published: published,
	}, nil
}

// ApplyByID loads the QDF and applies the action to the stored copy.
func (e Engine) ApplyByID(ctx context.Context, id string, action domain.Action, actor domain.Actor, p Payload, expectedVersion int64) (Outcome, error) {
	q, err := e.Get(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	if expectedVersion != 0 && expectedVersion != q.Version {
		return Outcome{}, ConflictError{ID: id, Expected: expectedVersion}
	}
	return e.Apply(ctx, ApplyRequest{QDF: q, Action: action, Actor: actor, Payload: p, ExpectedVersion: q.Version})
}

// EditRequest is one section edit on a persisted QDF.
type EditRequest struct {
	ID              string
	Actor           domain.Actor
	ExpectedVersion int64
	Command         Command
}

func (e Engine) Edit(ctx context.Context, req EditRequest) (Outcome, error) {
	q, err := e.Get(ctx, req.ID)
	if err != nil {
		return Outcome{}, err
	}
	expected := req.ExpectedVersion
	if expected == 0 {
		expected = q.Version
	} else if expected != q.Version {
		return Outcome{}, ConflictError{ID: q.ID, Expected: expected}
	}
	section := req.Command.Section()
	if !policy.CanEdit(req.Actor.Role, q.Status, section) {
		return Outcome{}, ForbiddenError{Role: req.Actor.Role, Status: q.Status, Section: section}
	}
	now := e.now()
	next, err := ApplyEdit(q, req.Command, EditOptions{Now: now, ChecklistItems: len(e.config().Checklist.Items)})
	if err != nil {
		return Outcome{}, err
	}
	saved, err := e.Store.SaveQDF(ctx, repo.Change{
		QDF:             next,
		ExpectedVersion: expected,
		Event: repo.EventRecord{
			Type:    events.EditType(string(section)),
			ActorID: req.Actor.ID,
			Payload: events.Payload{"status": q.Status},
			At:      now,
		},
	})
	if err != nil {
		return Outcome{}, e.storeError(q.ID, expected, err)
	}
	e.log().Info("qdf edited", zap.String("qdf_id", saved.ID), zap.String("section", string(section)), zap.String("actor", req.Actor.ID))
	return Outcome{QDF: saved, Permitted: policy.PermittedActions(req.Actor.Role, saved.Status)}, nil
}

func (e Engine) storeError(id string, expected int64, err error) error {
	switch {
	case errors.Is(err, repo.ErrVersionMismatch):
		e.log().Warn("qdf version conflict", zap.String("qdf_id", id), zap.Int64("expected", expected))
		return ConflictError{ID: id, Expected: expected}
	case errors.Is(err, repo.ErrNotFound):
		return NotFoundError{ID: id}
	}
	return err
}
