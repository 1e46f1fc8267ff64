package migration

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/config"
)

// NewMigratorFromConfig creates a migrator for the configured catalog.
func NewMigratorFromConfig(cfg *config.Config, logger *zap.Logger) (*DefaultMigrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	return NewMigratorFromCatalogConfig(cfg.Catalog, logger)
}

// NewMigratorFromCatalogConfig creates a migrator from catalog connection settings.
func NewMigratorFromCatalogConfig(c config.CatalogConfig, logger *zap.Logger) (*DefaultMigrator, error) {
	dbType, err := ParseDatabaseType(c.Driver)
	if err != nil {
		return nil, fmt.Errorf("invalid database type: %w", err)
	}

	var dbURL string
	switch dbType {
	case DatabaseTypePostgres:
		dbURL = BuildDatabaseURL(dbType, c.Host, c.Port, c.Name, c.User, c.Password, c.SSLMode)
	case DatabaseTypeMySQL:
		dbURL = BuildDatabaseURL(dbType, c.Host, c.Port, c.Name, c.User, c.Password, "")
	case DatabaseTypeSQLite:
		// Name is the database file path
		dbURL = BuildDatabaseURL(dbType, "", 0, c.Name, "", "", "")
	}

	return NewMigratorWithLogger(&Config{
		DatabaseType: dbType,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	}, logger)
}

// NewMigratorFromURL creates a migrator from a driver name and URL.
func NewMigratorFromURL(dbType, dbURL string) (*DefaultMigrator, error) {
	dt, err := ParseDatabaseType(dbType)
	if err != nil {
		return nil, err
	}
	return NewMigrator(&Config{
		DatabaseType: dt,
		DatabaseURL:  dbURL,
		TableName:    "schema_migrations",
	})
}
