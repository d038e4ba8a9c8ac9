// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/repository"
)

// NewReplicaDB opens a migrated sqlite replica in a temp dir.
// A single connection keeps sqlite writers serialized.
func NewReplicaDB(t *testing.T) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "replica.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.MigrateReplicaDB(db))
	return db
}

func NewRepositories(t *testing.T) *repository.Repositories {
	t.Helper()
	return repository.InitRepositories(NewReplicaDB(t))
}

func NewLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		LogLevel: "debug",
		DevMode:  true,
	})
	appLogger.InitLogger()
	return appLogger
}
