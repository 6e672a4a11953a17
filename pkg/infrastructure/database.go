package infrastructure

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	DSN    string `mapstructure:"dsn"`
}

// NewDatabase creates a new GORM database connection based on the configuration
func NewDatabase(config DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch config.Driver {
	case "sqlite":
		dialector = sqlite.Open(config.DSN)
	case "postgres":
		dialector = postgres.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Migrate creates the core write-side tables: snapshots, events, outbox and
// its processing/DLQ siblings. Read-model tables are migrated by the packages
// that own them.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&SnapshotRecord{},
		&EventRecord{},
		&OutboxRecord{},
		&OutboxProcessingRecord{},
		&OutboxDLQRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate core tables: %w", err)
	}
	return nil
}

// DefaultSQLiteConfig returns an in-memory SQLite configuration. Tests that
// need a database open one of these.
func DefaultSQLiteConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: "sqlite",
		DSN:    ":memory:",
	}
}
