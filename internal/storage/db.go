// Package storage holds the gorm-backed repositories for every record type
// named in spec §3 (Worker, Job, Role, User, APIToken, AuditEntry).
package storage

import (
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ansiblecluster/core/internal/model"
)

// OpenPostgres opens a production database connection and runs
// auto-migration for every record type.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return db, autoMigrate(db)
}

// OpenSQLiteMemory opens an isolated in-memory sqlite database for tests.
// The connection pool is capped at one connection so every repo call in a
// test sees the same in-memory database rather than a fresh empty one.
func OpenSQLiteMemory() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, autoMigrate(db)
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Worker{},
		&model.Job{},
		&model.Role{},
		&model.User{},
		&model.APIToken{},
		&model.AuditEntry{},
	)
}
