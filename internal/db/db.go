package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	cgosqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pandeptwidyaop/hookrelay/internal/db/models"
)

// DefaultSQLiteFile is the database file created inside DataDir.
const DefaultSQLiteFile = "hookrelay.db"

// Config holds database configuration.
type Config struct {
	Driver   string // "sqlite" (pure Go), "sqlite3" (cgo) or "postgres"
	DataDir  string // directory holding the sqlite file
	Database string // database name for postgres, file path or ":memory:" for sqlite
	Host     string // for postgres
	Port     int    // for postgres
	Username string // for postgres
	Password string // for postgres
	SSLMode  string // for postgres
	LogLevel string // silent, error, warn, info
}

// Connect establishes a connection to the database.
func Connect(cfg Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch strings.ToLower(cfg.Driver) {
	case "sqlite", "":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		dialector = sqlite.Open(dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite")

	case "sqlite3":
		dsn, err := sqliteDSN(cfg)
		if err != nil {
			return nil, err
		}
		dialector = cgosqlite.Open(dsn + "?_foreign_keys=on&_busy_timeout=5000")

	case "postgres", "postgresql":
		dsn := fmt.Sprintf(
			"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, cfg.SSLMode,
		)
		dialector = postgres.Open(dsn)

	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, sqlite3, postgres)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel(cfg.LogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if isSQLite(cfg.Driver) {
		// One writer keeps SQLite from returning SQLITE_BUSY under parallel ingestion.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// AutoMigrate runs automatic migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Hook{}, // Must be first (parent table)
		&models.Event{},
	)
}

// Ping checks that the underlying connection is alive.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func sqliteDSN(cfg Config) (string, error) {
	if cfg.Database == ":memory:" {
		return cfg.Database, nil
	}

	name := cfg.Database
	if name == "" {
		name = DefaultSQLiteFile
	}
	if cfg.DataDir == "" || filepath.IsAbs(name) {
		return name, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	return filepath.Join(cfg.DataDir, name), nil
}

func isSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return true
	}
	return false
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
