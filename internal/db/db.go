package db

import (
	"fmt"
	"time"

	"fit-analyse/dashboard/internal/config"
	"fit-analyse/dashboard/internal/logging"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenLocalStore opens the persistent activity store with GORM.
// SQLite is the default; Postgres is used when STORE_BACKEND=postgres.
func OpenLocalStore(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		dialector = postgres.Open(cfg.PostgresDSN())
	default:
		dialector = sqlite.Open(cfg.StorePath)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store (%s): %w", cfg.StoreBackend, err)
	}

	if cfg.StoreBackend == config.StoreBackendSQLite {
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
		}
		// One writer at a time; a bulk upsert holds the connection until commit
		sqlDB.SetMaxOpenConns(1)
	}

	logging.Info("Local store opened", "backend", cfg.StoreBackend)
	return gdb, nil
}

// OpenSQLX returns the sqlx handle used for schema bookkeeping and health checks.
// For SQLite it shares GORM's connection; for Postgres it dials through lib/pq.
func OpenSQLX(cfg *config.Config, gdb *gorm.DB) (*sqlx.DB, error) {
	if cfg.StoreBackend == config.StoreBackendPostgres {
		var (
			sx  *sqlx.DB
			err error
		)
		for i := 0; i < 10; i++ {
			sx, err = sqlx.Connect("postgres", cfg.PostgresDSN())
			if err == nil {
				return sx, nil
			}
			time.Sleep(500 * time.Millisecond)
		}
		return nil, fmt.Errorf("failed to connect to postgres (sqlx): %w", err)
	}

	return WrapSQLX(gdb, "sqlite3")
}

// WrapSQLX shares an already open GORM connection pool with sqlx
func WrapSQLX(gdb *gorm.DB, driverName string) (*sqlx.DB, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	return sqlx.NewDb(sqlDB, driverName), nil
}
