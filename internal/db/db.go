// Package db provides database connection, migration and error
// classification functionality.
package db

import (
	"errors"
	"fmt"
	stdlog "log"
	"os"
	"strings"

	"council-motions/internal/config"
	"council-motions/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrNotConfigured is returned by Open when no DATABASE_URL was provided.
var ErrNotConfigured = errors.New("database is not configured")

// Open opens a database connection using the provided configuration.
func Open(cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDialect == "" || cfg.DBDsn == "" {
		return nil, ErrNotConfigured
	}
	return OpenDialect(cfg.DBDialect, cfg.DBDsn, cfg.Debug)
}

// OpenDialect opens a connection for an explicit dialect and DSN.
func OpenDialect(dialect, dsn string, debug bool) (*gorm.DB, error) {
	// Silent unless debugging; SQL traces otherwise clutter the board output
	level := logger.Silent
	if debug {
		level = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.New(
			stdlog.New(os.Stderr, "", stdlog.LstdFlags),
			logger.Config{
				SlowThreshold:             0,
				LogLevel:                  level,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	}

	switch dialect {
	case config.DatabaseSchemePostgres:
		return gorm.Open(postgres.Open(dsn), gormConfig)
	case config.DatabaseSchemeSqlite:
		// sqlite has no row locks; a single connection serializes writers
		gormConfig.DisableForeignKeyConstraintWhenMigrating = true
		gdb, err := gorm.Open(sqlite.Open(dsn), gormConfig)
		if err != nil {
			return nil, err
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return gdb, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT: %s", dialect)
	}
}

// AutoMigrate runs database migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return ErrNotConfigured
	}
	return db.AutoMigrate(models.MigrateModels...)
}

// IsConflict reports whether err is a transient concurrency failure that the
// caller should surface as a concurrent modification: serialization failure,
// deadlock, lock timeout, unique violation or a busy sqlite database.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505":
			return true
		}
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "sqlite_busy") ||
		strings.Contains(msg, "unique constraint failed")
}
