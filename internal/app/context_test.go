package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"qualflow/internal/config"
)

func TestOpenSeedsConfigFromFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	doc := "workflow:\n  strict_payloads: true\n  duplicate_titles: warn\nregistry:\n  initial_version: \"3.0\"\n"
	if err := os.WriteFile(filepath.Join(dir, "qualflow.yml"), []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	ws, err := Open(ctx, dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !ws.Config.Workflow.StrictPayloads || ws.Engine.Config.Registry.InitialVersion != "3.0" {
		t.Fatalf("config not loaded from file: %+v", ws.Config)
	}
	ws.Close()

	// The database copy wins once seeded.
	if err := os.Remove(filepath.Join(dir, "qualflow.yml")); err != nil {
		t.Fatal(err)
	}
	ws, err = Open(ctx, dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer ws.Close()
	if ws.Config.Registry.InitialVersion != "3.0" {
		t.Fatalf("expected stored config, got %+v", ws.Config.Registry)
	}
}

func TestOpenDefaults(t *testing.T) {
	ws, err := Open(context.Background(), t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()
	if ws.Config.Workflow.DuplicateTitles != config.DuplicateTitlesWarn {
		t.Fatalf("expected defaults, got %+v", ws.Config.Workflow)
	}
}
