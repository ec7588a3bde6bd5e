package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"qualflow/internal/db"
	"qualflow/internal/migrate"
)

func TestIsUniqueViolationUsesResultCode(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	insert := `INSERT INTO qdfs(id,version,status,title,level,last_updated,data_json) VALUES ('QDF-1',1,'Draft','A',3,'2024-01-01T00:00:00Z','{}')`
	if _, err := conn.ExecContext(ctx, insert); err != nil {
		t.Fatal(err)
	}
	_, err = conn.ExecContext(ctx, insert)
	if err == nil {
		t.Fatalf("expected duplicate primary key to fail")
	}
	if !isUniqueViolation(err) {
		t.Fatalf("primary key collision not recognised: %v", err)
	}
	if !isUniqueViolation(fmt.Errorf("insert: %w", err)) {
		t.Fatalf("wrapped collision not recognised")
	}

	if isUniqueViolation(errors.New("UNIQUE constraint failed: qdfs.id")) {
		t.Fatalf("plain error text must not count as a constraint violation")
	}
	_, err = conn.ExecContext(ctx, `INSERT INTO qdfs(id) VALUES (NULL)`)
	if err == nil || isUniqueViolation(err) {
		t.Fatalf("NOT NULL failure misread as unique violation: %v", err)
	}
}
