package migration

import (
	"fmt"

	appconfig "github.com/BaSui01/expoflow/config"
)

// NewMigratorFromDatabaseConfig builds a migrator from the audit
// database configuration. Mongo has no schema and is rejected here.
func NewMigratorFromDatabaseConfig(cfg appconfig.DatabaseConfig) (*Migrator, error) {
	if cfg.Driver == "mongo" {
		return nil, fmt.Errorf("mongo driver does not use schema migrations")
	}

	dsn := cfg.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}

	return NewMigrator(Config{
		Driver: cfg.Driver,
		DSN:    dsn,
	})
}
