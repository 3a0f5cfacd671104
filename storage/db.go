package storage

import (
	"fmt"

	"github.com/hidenkeys/aloes/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ConnectDB opens the configured database. Foreign keys are not emitted by
// AutoMigrate because tenants, rooms and leasings reference each other;
// Migrate adds them once every table exists.
func ConnectDB(cfg config.DatabaseConfig, logLevel string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite", "":
		dialector = sqlite.Open(cfg.Path + "?_foreign_keys=on&_busy_timeout=5000")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(gormLogLevel(logLevel)),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if IsSQLite(db) {
		// sqlite serialises writers anyway; one connection avoids SQLITE_BUSY
		// between concurrent transactions.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// OpenMemory returns an empty in-memory sqlite database with the given models migrated.
func OpenMemory(models ...any) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:?_foreign_keys=on"), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db, models, nil); err != nil {
		return nil, err
	}
	return db, nil
}

// Constraint names a relationship field whose foreign key is created after all tables.
type Constraint struct {
	Model any
	Field string
}

// Migrate creates or updates the tables for models, then the foreign keys.
// sqlite cannot add constraints to an existing table, so there the
// references are enforced by the application only.
func Migrate(db *gorm.DB, models []any, constraints []Constraint) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	if IsSQLite(db) {
		return nil
	}

	m := db.Migrator()
	for _, c := range constraints {
		if m.HasConstraint(c.Model, c.Field) {
			continue
		}
		if err := m.CreateConstraint(c.Model, c.Field); err != nil {
			return fmt.Errorf("create constraint %s: %w", c.Field, err)
		}
	}
	return nil
}

func IsSQLite(db *gorm.DB) bool {
	return db.Dialector.Name() == "sqlite"
}

func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

// ForUpdate adds a row lock to the next SELECT when the dialect supports it.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if IsPostgres(tx) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func gormLogLevel(level string) logger.LogLevel {
	switch level {
	case "debug":
		return logger.Info
	case "error":
		return logger.Error
	default:
		return logger.Warn
	}
}
