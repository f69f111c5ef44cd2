package sqlite

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDB_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "archive.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should create nested directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0700), info.Mode().Perm())
	}
}

func TestNewDB_SchemaVersionRecorded(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "archive.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err)

	var version int
	require.NoError(t, db.QueryRow(`PRAGMA user_version`).Scan(&version))
	require.Equal(t, len(migrations), version)
	require.NoError(t, db.Close())

	// Reopening an up-to-date database must not rerun migrations
	db, err = NewDB(dbPath)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.QueryRow(`PRAGMA user_version`).Scan(&version))
	require.Equal(t, len(migrations), version)
}

func TestNewMemoryDB_HasSchema(t *testing.T) {
	db, err := NewMemoryDB()
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count))
	require.Zero(t, count)
}
