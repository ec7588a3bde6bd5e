// Package app wires a workspace: database, schema, config and engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"qualflow/internal/config"
	"qualflow/internal/db"
	"qualflow/internal/engine"
	"qualflow/internal/engine/auth"
	"qualflow/internal/events"
	"qualflow/internal/migrate"
	"qualflow/internal/repo"
)

type Workspace struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
	Engine engine.Engine
	Actors auth.Directory
}

func (w *Workspace) Close() error {
	return w.DB.Close()
}

// Open opens (creating if needed) the workspace database, applies
// migrations and resolves the workflow config.
func Open(ctx context.Context, workspace string, log *zap.Logger) (*Workspace, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.Repo{DB: conn, Events: events.Writer{Now: time.Now}}
	cfg, err := ResolveConfig(ctx, workspace, r)
	if err != nil {
		conn.Close()
		return nil, err
	}
	eng := engine.New(conn, cfg, log)
	eng.Store = r
	return &Workspace{DB: conn, Repo: r, Config: cfg, Engine: eng, Actors: auth.Directory{Repo: r}}, nil
}

// ResolveConfig returns the config stored in the database. On first use it
// seeds the database from qualflow.yml when present, else from the defaults.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		seed = config.Default()
	}
	if err := r.PutConfig(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return seed, nil
}
