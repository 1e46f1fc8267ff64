package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/internal/migration"
)

// =============================================================================
// 🗄️ 目录 Schema 迁移
// =============================================================================

// runMigrate handles `artifactctl migrate <sub> [args]`. Flags come before
// the subcommand: artifactctl migrate --config c.yaml status
func (a *app) runMigrate(ctx context.Context, args []string) error {
	fs, configPath := a.flags("migrate")
	dbType := fs.String("db-type", "", "Database type: postgres, mysql, sqlite (default: from config)")
	dbURL := fs.String("db-url", "", "Database connection URL (default: from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("migrate requires a subcommand (up, down, down-all, steps, goto, force, version, status, info)")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := initLogger(cfg.Log)
	defer logger.Sync()

	var m *migration.DefaultMigrator
	if *dbURL != "" {
		t := *dbType
		if t == "" {
			t = cfg.Catalog.Driver
		}
		m, err = migration.NewMigratorFromURL(t, *dbURL)
	} else {
		m, err = migration.NewMigratorFromConfig(cfg, logger)
	}
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.Warn("close migrator", zap.Error(cerr))
		}
	}()

	cli := migration.NewCLI(m)
	cli.SetOutput(a.stdout)
	return cli.Run(ctx, fs.Arg(0), fs.Args()[1:])
}
