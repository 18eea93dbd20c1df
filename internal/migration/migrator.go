// Package migration manages the audit database schema.
//
// Migration files are embedded per dialect and applied with
// golang-migrate against the configured database. The only managed
// table is turn_records, written by the audit package.
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// Config holds the migrator configuration.
type Config struct {
	// Driver selects the dialect: postgres, mysql or sqlite.
	Driver string

	// DSN is the database connection string in the driver's native format.
	DSN string

	// TableName is the migrations bookkeeping table (default schema_migrations).
	TableName string

	// LockTimeout bounds migration lock acquisition.
	LockTimeout time.Duration
}

// Migrator applies embedded migrations to the audit database.
type Migrator struct {
	config  Config
	migrate *migrate.Migrate
	db      *sql.DB
}

// NewMigrator opens the database and prepares the migrate instance.
func NewMigrator(cfg Config) (*Migrator, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}
	if cfg.LockTimeout == 0 {
		cfg.LockTimeout = 15 * time.Second
	}

	m := &Migrator{config: cfg}
	if err := m.init(); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	return m, nil
}

func (m *Migrator) init() error {
	sqlDriver, err := sqlDriverName(m.config.Driver)
	if err != nil {
		return err
	}

	m.db, err = sql.Open(sqlDriver, m.config.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := m.db.Ping(); err != nil {
		m.db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	dbDriver, err := m.databaseDriver()
	if err != nil {
		m.db.Close()
		return err
	}

	fsys, dir, err := migrationSource(m.config.Driver)
	if err != nil {
		m.db.Close()
		return err
	}
	sourceDriver, err := iofs.New(fsys, dir)
	if err != nil {
		m.db.Close()
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m.migrate, err = migrate.NewWithInstance("iofs", sourceDriver, m.config.Driver, dbDriver)
	if err != nil {
		m.db.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return nil
}

func sqlDriverName(driver string) (string, error) {
	switch driver {
	case "postgres":
		return "postgres", nil
	case "mysql":
		return "mysql", nil
	case "sqlite":
		return "sqlite3", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %q", driver)
	}
}

func (m *Migrator) databaseDriver() (database.Driver, error) {
	switch m.config.Driver {
	case "postgres":
		return postgres.WithInstance(m.db, &postgres.Config{
			MigrationsTable: m.config.TableName,
		})
	case "mysql":
		return mysql.WithInstance(m.db, &mysql.Config{
			MigrationsTable: m.config.TableName,
		})
	case "sqlite":
		return sqlite3.WithInstance(m.db, &sqlite3.Config{
			MigrationsTable: m.config.TableName,
		})
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", m.config.Driver)
	}
}

func migrationSource(driver string) (fs.FS, string, error) {
	switch driver {
	case "postgres":
		return postgresFS, "migrations/postgres", nil
	case "mysql":
		return mysqlFS, "migrations/mysql", nil
	case "sqlite":
		return sqliteFS, "migrations/sqlite", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver: %q", driver)
	}
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down() error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version reports the current schema version and dirty flag.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close releases the migrate instance and database connection.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}
