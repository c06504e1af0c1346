// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ehr/patients/internal/platform/db"
	"github.com/ehr/patients/migrations"
)

// NewSQLite returns a private in-memory SQLite database with every
// migration applied. It is closed when the test ends.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()

	sqlDB, err := db.OpenSQLite(ctx, "sqlite://:memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if _, err := db.NewMigrator(db.SQLiteTarget(sqlDB), migrations.FS, migrations.SQLiteDir).Up(ctx); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return sqlDB
}
