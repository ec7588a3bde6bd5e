package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"qualflow/internal/domain"
	"qualflow/internal/events"
)

// InsertActor registers an actor and logs actor.created in the same tx.
func (r Repo) InsertActor(ctx context.Context, a domain.Actor, createdBy string) error {
	if strings.TrimSpace(a.ID) == "" {
		return errors.New("id required")
	}
	if !a.Role.Valid() {
		return errors.New("unknown role " + string(a.Role))
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO actors(id, name, role, created_at) VALUES (?,?,?,?)`, a.ID, a.Name, a.Role, a.CreatedAt); err != nil {
		return err
	}
	if createdBy == "" {
		createdBy = a.ID
	}
	if err := r.Events.Append(ctx, tx, "actor.created", events.KindActor, a.ID, createdBy, events.Payload{"name": a.Name, "role": a.Role}); err != nil {
		return err
	}
	return tx.Commit()
}

// SetActorRole changes an existing actor's role.
func (r Repo) SetActorRole(ctx context.Context, id string, role domain.Role, changedBy string) error {
	if !role.Valid() {
		return errors.New("unknown role " + string(role))
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `UPDATE actors SET role=? WHERE id=?`, role, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := r.Events.Append(ctx, tx, "actor.role_changed", events.KindActor, id, changedBy, events.Payload{"role": role}); err != nil {
		return err
	}
	return tx.Commit()
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	var a domain.Actor
	err := r.DB.QueryRowContext(ctx, `SELECT id, name, role, created_at FROM actors WHERE id=?`, id).
		Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListActors(ctx context.Context, role domain.Role) ([]domain.Actor, error) {
	query := `SELECT id, name, role, created_at FROM actors`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Name, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
