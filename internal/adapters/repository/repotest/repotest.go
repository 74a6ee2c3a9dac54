// Package repotest opens throwaway databases for repository-backed tests.
package repotest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/okian/tastegraph/internal/adapters/repository"
)

// DB returns a migrated database private to tb. It uses an in-memory sqlite
// database unless TEST_POSTGRES_DSN is set.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	driver, dsn := "sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	if pg := os.Getenv("TEST_POSTGRES_DSN"); pg != "" {
		driver, dsn = "postgres", pg
	}

	db, err := repository.Open(context.Background(), driver, dsn,
		repository.WithSilentSQL(),
		repository.WithAutoMigrate(true),
	)
	if err != nil {
		tb.Fatalf("failed to open test db: %v", err)
	}
	if driver == "postgres" {
		truncate(tb, db)
	}
	tb.Cleanup(func() { _ = repository.Close(db) })
	return db
}

func truncate(tb testing.TB, db *gorm.DB) {
	tb.Helper()
	for _, table := range []string{"user_similarity", "user_media_affinity", "user_interactions", "medias"} {
		if err := db.Exec("DELETE FROM " + table).Error; err != nil {
			tb.Fatalf("failed to clean %s: %v", table, err)
		}
	}
}
