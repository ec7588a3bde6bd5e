// Package auth resolves who is acting: an actor id from a token, header or
// API key becomes a domain.Actor carrying the role the policy checks.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"qualflow/internal/domain"
	"qualflow/internal/repo"
)

// UnknownActorError means the id is not registered in the actor directory.
type UnknownActorError struct {
	ActorID string
}

func (e UnknownActorError) Error() string {
	return fmt.Sprintf("unknown actor %s; register it with qf actor add", e.ActorID)
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (domain.Role, error) {
	s = strings.TrimSpace(s)
	for _, r := range domain.Roles {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q (want one of %s)", s, roleList())
}

func roleList() string {
	names := make([]string, len(domain.Roles))
	for i, r := range domain.Roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// Directory looks actors up in the store.
type Directory struct {
	Repo repo.Repo
}

// Resolve returns the registered actor for id.
func (d Directory) Resolve(ctx context.Context, actorID string) (domain.Actor, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Actor{}, errors.New("actor_id required")
	}
	a, err := d.Repo.GetActor(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, UnknownActorError{ActorID: actorID}
	}
	return a, err
}

// ResolveAPIKey returns the actor owning a plaintext API key.
func (d Directory) ResolveAPIKey(ctx context.Context, key string) (domain.Actor, error) {
	a, err := d.Repo.ActorForAPIKey(ctx, key)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, errors.New("invalid api key")
	}
	return a, err
}
