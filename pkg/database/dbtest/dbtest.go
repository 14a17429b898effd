// Package dbtest opens migrated throwaway stores for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"reviewdash/pkg/database"
)

// Open returns a migrated SQLite store in a temp dir, closed on cleanup.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(db, zaptest.NewLogger(t)))
	return db
}
