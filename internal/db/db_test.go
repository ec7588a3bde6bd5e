package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn := DSN("/tmp/ws/.qualflow/qualflow.db", 0)
	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/ws/.qualflow/qualflow.db?"), dsn)
	assert.Contains(t, dsn, "cache=shared")
	assert.Contains(t, dsn, "_pragma=foreign_keys%281%29")
	assert.Contains(t, dsn, "_pragma=busy_timeout%285000%29")

	assert.Contains(t, DSN("x.db", 250*time.Millisecond), "busy_timeout%28250%29")
}

func TestOpenAppliesPragmas(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws, BusyTimeout: 1500 * time.Millisecond})
	require.NoError(t, err)
	defer conn.Close()

	_, err = os.Stat(filepath.Join(ws, ".qualflow", "qualflow.db"))
	require.NoError(t, err)

	var fk, busy int
	require.NoError(t, conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	require.NoError(t, conn.QueryRow(`PRAGMA busy_timeout`).Scan(&busy))
	assert.Equal(t, 1, fk)
	assert.Equal(t, 1500, busy)
}

func TestOpenFailsWhenWorkspaceIsAFile(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(ws, ".qualflow"), []byte("x"), 0o644))
	_, err := Open(Config{Workspace: ws})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create workspace")
}

func TestPathDefaultsToCurrentDir(t *testing.T) {
	assert.Equal(t, filepath.Join(".", ".qualflow", "qualflow.db"), Path(""))
}
