package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openTestDB opens a database for tests.
// When TEST_DATABASE_URL is set it connects to PostgreSQL; otherwise it
// opens a SQLite file in a temp dir limited to one connection.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	if dsn := os.Getenv("TEST_DATABASE_URL"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		require.NoError(t, err, "open postgres test db")

		_, err = ConfigurePool(db, MaxOpenConns(4), MaxIdleConns(2))
		require.NoError(t, err)

		// Clean before AND after to ensure test isolation.
		cleanupPostgresDB(db)
		t.Cleanup(func() {
			cleanupPostgresDB(db)
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		return db
	}

	path := filepath.Join(t.TempDir(), "fanin.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), cfg)
	require.NoError(t, err, "open sqlite")
	_, err = ConfigurePool(db)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func cleanupPostgresDB(db *gorm.DB) {
	for _, tbl := range []string{"context_records", "tombstones", "tasks"} {
		db.Exec("DELETE FROM " + tbl)
	}
}

// newTestStorage returns migrated storage on a fresh test database.
func newTestStorage(t *testing.T, opts ...StoreOption) *GormStorage {
	t.Helper()
	s := NewGormStorage(openTestDB(t), opts...)
	require.NoError(t, s.Migrate(context.Background()), "migrate schema")
	return s
}

func isPostgres() bool {
	return os.Getenv("TEST_DATABASE_URL") != ""
}
