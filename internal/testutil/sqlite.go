package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/internal/logger"
)

// NewSQLiteDB opens a migrated database in the test's temp dir.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.NewConnection(&database.DatabaseConfig{
		Driver:     database.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "mailsync.db"),
		LogLevel:   "SILENT",
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// NewSession returns a storage session that is already attached.
func NewSession(t *testing.T) *database.Session {
	return database.NewAttachedSession(NewSQLiteDB(t))
}

func NewLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true, LogLevel: "warn"})
	appLogger.InitLogger()
	return appLogger
}
