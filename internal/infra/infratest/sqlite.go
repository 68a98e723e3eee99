// Package infratest provides helpers for tests that need a migrated database.
package infratest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"studio/internal/infra"
)

// OpenSQLite opens a fresh migrated database under t.TempDir and returns a
// SQL runner over it. The database is closed when the test ends.
func OpenSQLite(t testing.TB) *infra.SQLRunner {
	t.Helper()
	ctx := context.Background()
	db, err := infra.OpenDB(ctx, filepath.Join(t.TempDir(), "app.db"), 4)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := infra.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return infra.NewSQLRunner(db, zerolog.Nop())
}
