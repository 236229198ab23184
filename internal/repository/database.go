package repository

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations
var migrationsFS embed.FS

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// NewDB opens a PostgreSQL or SQLite database depending on dbType
func NewDB(dbType, dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	switch dbType {
	case "postgres":
		return NewPostgresDB(dataSourceName, logger)
	case "sqlite":
		return NewSQLiteDB(dataSourceName, logger)
	default:
		return nil, fmt.Errorf("unsupported database type %q", dbType)
	}
}

// NewPostgresDB establishes a new connection to the PostgreSQL database.
func NewPostgresDB(dataSourceName string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, err
	}

	logger.Info("Successfully connected to the database!", zap.String("type", "postgres"))
	return db, nil
}

// NewSQLiteDB opens (and creates if needed) a SQLite database file
func NewSQLiteDB(path string, logger *zap.Logger) (*sqlx.DB, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	dsn := path
	if !strings.Contains(dsn, "_pragma=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one writer at a time keeps SQLite from returning SQLITE_BUSY under concurrent webhooks
	db.SetMaxOpenConns(1)

	logger.Info("Successfully connected to the database!", zap.String("type", "sqlite"), zap.String("db_path", path))
	return db, nil
}

// MigrateDB runs the embedded migrations for the database dialect
func MigrateDB(db *sqlx.DB, logger *zap.Logger) error {
	var (
		driver  database.Driver
		dialect string
		err     error
	)

	switch db.DriverName() {
	case "postgres":
		dialect = "postgres"
		driver, err = postgres.WithInstance(db.DB, &postgres.Config{})
	case "sqlite":
		dialect = "sqlite"
		driver, err = sqlite.WithInstance(db.DB, &sqlite.Config{})
	default:
		return fmt.Errorf("no migrations for driver %q", db.DriverName())
	}
	if err != nil {
		return fmt.Errorf("couldn't get database instance for running migrations: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations/"+dialect)
	if err != nil {
		return fmt.Errorf("couldn't open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "eco_moderation", driver)
	if err != nil {
		return fmt.Errorf("couldn't create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("couldn't run database migration: %w", err)
	}

	logger.Info("Database migration was run successfully", zap.String("dialect", dialect))
	return nil
}
