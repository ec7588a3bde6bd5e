package engine

import (
	"errors"
	"fmt"

	"qualflow/internal/domain"
	"qualflow/internal/repo"
)

// Sentinels for errors.Is; the typed errors below match them.
var (
	ErrForbidden      = errors.New("forbidden")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrConflict       = errors.New("conflict")
)

// ForbiddenError means the actor's role may not perform the action (or edit
// the section) in the QDF's current status.
type ForbiddenError struct {
	Role    domain.Role
	Status  domain.Status
	Action  domain.Action
	Section domain.Section
}

func (e ForbiddenError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("role %s may not edit %s while %s", e.Role, e.Section, e.Status)
	}
	return fmt.Sprintf("role %s may not %s while %s", e.Role, e.Action, e.Status)
}

func (e ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// InvalidPayloadError names the offending field.
type InvalidPayloadError struct {
	Field  string
	Reason string
}

func (e InvalidPayloadError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e InvalidPayloadError) Is(target error) bool { return target == ErrInvalidPayload }

// ConflictError means the stored QDF moved past the version the caller read.
type ConflictError struct {
	ID       string
	Expected int64
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("qdf %s changed since version %d; reload and retry", e.ID, e.Expected)
}

func (e ConflictError) Is(target error) bool { return target == ErrConflict }

type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("qdf %s not found", e.ID)
}

func (e NotFoundError) Unwrap() error { return repo.ErrNotFound }
