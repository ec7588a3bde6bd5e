package auth_test

import (
	"context"
	"errors"
	"testing"

	"qualflow/internal/db"
	"qualflow/internal/domain"
	"qualflow/internal/engine/auth"
	"qualflow/internal/migrate"
	"qualflow/internal/repo"
)

func TestParseRole(t *testing.T) {
	r, err := auth.ParseRole(" committeemember ")
	if err != nil || r != domain.RoleCommitteeMember {
		t.Fatalf("got %q %v", r, err)
	}
	if _, err := auth.ParseRole("Janitor"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestDirectoryResolve(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatal(err)
	}
	r := repo.Repo{DB: conn}
	if err := r.InsertActor(ctx, domain.Actor{ID: "expert", Name: "Sana Javed", Role: domain.RoleIndustryExpert, CreatedAt: "2024-01-01T00:00:00Z"}, ""); err != nil {
		t.Fatal(err)
	}
	dir := auth.Directory{Repo: r}

	a, err := dir.Resolve(ctx, "expert")
	if err != nil || a.Role != domain.RoleIndustryExpert || a.Name != "Sana Javed" {
		t.Fatalf("resolve: %+v %v", a, err)
	}
	var unknown auth.UnknownActorError
	if _, err := dir.Resolve(ctx, "ghost"); !errors.As(err, &unknown) || unknown.ActorID != "ghost" {
		t.Fatalf("expected unknown actor error, got %v", err)
	}

	_, secret, err := r.CreateAPIKey(ctx, "expert", "laptop")
	if err != nil {
		t.Fatal(err)
	}
	a, err = dir.ResolveAPIKey(ctx, secret)
	if err != nil || a.ID != "expert" {
		t.Fatalf("api key resolve: %+v %v", a, err)
	}
	if _, err := dir.ResolveAPIKey(ctx, "nope"); err == nil {
		t.Fatalf("expected invalid api key")
	}
}
