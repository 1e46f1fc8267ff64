package migration

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/artifactflow/config"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"postgresql", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{" POSTGRES ", DatabaseTypePostgres, false},
		{"oracle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	tests := []struct {
		name     string
		dbType   DatabaseType
		host     string
		port     int
		database string
		sslMode  string
		expected string
	}{
		{"postgres", DatabaseTypePostgres, "db", 5432, "catalog", "disable",
			"postgres://u:p@db:5432/catalog?sslmode=disable"},
		{"postgres default ssl", DatabaseTypePostgres, "db", 5432, "catalog", "",
			"postgres://u:p@db:5432/catalog?sslmode=require"},
		{"mysql", DatabaseTypeMySQL, "db", 3306, "catalog", "",
			"u:p@tcp(db:3306)/catalog?parseTime=true&multiStatements=true"},
		{"sqlite", DatabaseTypeSQLite, "", 0, "/var/lib/artifactflow/catalog.db", "",
			"file:/var/lib/artifactflow/catalog.db?mode=rwc&_pragma=busy_timeout(5000)"},
		{"unknown", DatabaseType("oracle"), "", 0, "x", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildDatabaseURL(tt.dbType, tt.host, tt.port, tt.database, "u", "p", tt.sslMode))
		})
	}
}

func TestGetMigrationsPath(t *testing.T) {
	assert.Equal(t, "migrations/postgres", GetMigrationsPath(DatabaseTypePostgres))
	assert.Equal(t, "migrations/mysql", GetMigrationsPath(DatabaseTypeMySQL))
	assert.Equal(t, "migrations/sqlite", GetMigrationsPath(DatabaseTypeSQLite))
}

func TestAvailableMigrations_EveryDialect(t *testing.T) {
	for dbType, d := range dialects {
		t.Run(string(dbType), func(t *testing.T) {
			files, err := availableMigrations(d.dir)
			require.NoError(t, err)
			require.Len(t, files, 2)
			assert.Equal(t, migrationFile{version: 1, name: "create_artifacts"}, files[0])
			assert.Equal(t, migrationFile{version: 2, name: "create_processing_runs"}, files[1])
		})
	}
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestNewMigratorFromCatalogConfig_BadDriver(t *testing.T) {
	_, err := NewMigratorFromCatalogConfig(config.CatalogConfig{Driver: "oracle"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid database type")

	_, err = NewMigratorFromConfig(nil, nil)
	require.Error(t, err)
}

func newSQLiteMigrator(t *testing.T) (*DefaultMigrator, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	m, err := NewMigratorFromCatalogConfig(config.CatalogConfig{Driver: "sqlite", Name: dbPath}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, dbPath
}

func TestMigrator_SQLite_UpDown(t *testing.T) {
	m, dbPath := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	// 重复执行 Up 不报错
	require.NoError(t, m.Up(ctx))

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), info.CurrentVersion)
	assert.Equal(t, 2, info.AppliedMigrations)
	assert.Equal(t, 0, info.PendingMigrations)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close()
	for _, table := range []string{"artifacts", "processing_runs"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)

	require.NoError(t, m.DownAll(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrator_CancelledContext(t *testing.T) {
	m, _ := newSQLiteMigrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.Up(ctx), context.Canceled)
	version, _, err := m.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestCLI_Run(t *testing.T) {
	m, _ := newSQLiteMigrator(t)
	cli := NewCLI(m)
	var out bytes.Buffer
	cli.SetOutput(&out)
	ctx := context.Background()

	require.NoError(t, cli.Run(ctx, "version", nil))
	assert.Contains(t, out.String(), "No migrations applied yet")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "up", nil))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "status", nil))
	assert.Contains(t, out.String(), "create_processing_runs")
	assert.Contains(t, out.String(), "Applied: 2, Pending: 0")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "steps", []string{"-1"}))
	assert.Contains(t, out.String(), "Current version: 1")

	assert.Error(t, cli.Run(ctx, "steps", nil))
	assert.Error(t, cli.Run(ctx, "goto", []string{"abc"}))
	assert.Error(t, cli.Run(ctx, "sideways", nil))
}
