package db

import (
	"context"
	"fmt"
	"time"

	gormModels "fit-analyse/dashboard/internal/models/gorm"

	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// SchemaVersion is the local store layout this build writes.
// Bump it when a model gains columns; AutoMigrate only ever adds.
const SchemaVersion = 1

const createSchemaVersions = `CREATE TABLE IF NOT EXISTS schema_versions (
	version INTEGER NOT NULL PRIMARY KEY,
	applied_at TIMESTAMP NOT NULL
)`

// Migrate brings the local store up to SchemaVersion without destroying data
// and returns the version the store is at afterwards.
func Migrate(ctx context.Context, gdb *gorm.DB, sx *sqlx.DB) (int, error) {
	if _, err := sx.ExecContext(ctx, createSchemaVersions); err != nil {
		return 0, fmt.Errorf("failed to create schema_versions: %w", err)
	}

	current, err := CurrentSchemaVersion(ctx, sx)
	if err != nil {
		return 0, err
	}
	if current > SchemaVersion {
		return current, fmt.Errorf("local store schema %d is newer than this build (%d)", current, SchemaVersion)
	}

	if err := gdb.WithContext(ctx).AutoMigrate(&gormModels.Activity{}, &gormModels.SyncRun{}); err != nil {
		return current, fmt.Errorf("failed to migrate local store: %w", err)
	}

	if current < SchemaVersion {
		q := sx.Rebind("INSERT INTO schema_versions (version, applied_at) VALUES (?, ?)")
		if _, err := sx.ExecContext(ctx, q, SchemaVersion, time.Now().UTC()); err != nil {
			return current, fmt.Errorf("failed to record schema version %d: %w", SchemaVersion, err)
		}
	}
	return SchemaVersion, nil
}

// CurrentSchemaVersion returns the highest applied version, 0 for a fresh store
func CurrentSchemaVersion(ctx context.Context, sx *sqlx.DB) (int, error) {
	var version int
	if err := sx.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_versions"); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}
