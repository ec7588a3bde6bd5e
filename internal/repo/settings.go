package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"qualflow/internal/config"
)

const workflowSettingsKey = "workflow"

// PutConfig stores the validated workspace config, replacing any previous one.
func (r Repo) PutConfig(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO settings(key,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(key) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, workflowSettingsKey, string(payload), now, now)
	return err
}

// GetConfig returns the stored config or ErrNotFound.
func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM settings WHERE key=?`, workflowSettingsKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}
