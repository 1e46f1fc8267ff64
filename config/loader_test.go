// 配置加载器与默认配置测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	// 不指定配置文件，应该返回默认值
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "./data", cfg.Store.BasePath)
	assert.Equal(t, 100, cfg.Audit.RotationSizeMB)
	assert.Equal(t, "warn", cfg.PHI.Policy)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "artifactflow.yaml")

	yamlContent := `
store:
  base_path: /srv/pipeline
  allowed_source_roots: ["/mnt/ingest", "/mnt/shared"]
  max_filename_length: 64
  temp_max_age: 2h
  verify_workers: 8

audit:
  rotation_size_mb: 10
  fsync: true

phi:
  policy: reject
  extra_keys: [subject_code]

catalog:
  enabled: true
  driver: sqlite
  name: /srv/pipeline/catalog.db

log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/pipeline", cfg.Store.BasePath)
	assert.Equal(t, []string{"/mnt/ingest", "/mnt/shared"}, cfg.Store.AllowedSourceRoots)
	assert.Equal(t, 64, cfg.Store.MaxFilenameLength)
	assert.Equal(t, 2*time.Hour, cfg.Store.TempMaxAge)
	assert.Equal(t, 8, cfg.Store.VerifyWorkers)
	assert.Equal(t, 10, cfg.Audit.RotationSizeMB)
	assert.True(t, cfg.Audit.Fsync)
	assert.Equal(t, "reject", cfg.PHI.Policy)
	assert.Equal(t, []string{"subject_code"}, cfg.PHI.ExtraKeys)
	assert.True(t, cfg.Catalog.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未在文件中出现的字段保持默认值
	assert.Equal(t, 10000, cfg.Store.MaxLineageNodes)
	assert.Equal(t, "artifactflow", cfg.Telemetry.ServiceName)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("ARTIFACTFLOW_STORE_BASE_PATH", "/env/base")
	t.Setenv("ARTIFACTFLOW_STORE_FSYNC", "false")
	t.Setenv("ARTIFACTFLOW_STORE_TEMP_MAX_AGE", "30m")
	t.Setenv("ARTIFACTFLOW_STORE_ALLOWED_SOURCE_ROOTS", "/a, /b")
	t.Setenv("ARTIFACTFLOW_AUDIT_ROTATION_SIZE_MB", "5")
	t.Setenv("ARTIFACTFLOW_TELEMETRY_SAMPLE_RATE", "0.5")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "/env/base", cfg.Store.BasePath)
	assert.False(t, cfg.Store.Fsync)
	assert.Equal(t, 30*time.Minute, cfg.Store.TempMaxAge)
	assert.Equal(t, []string{"/a", "/b"}, cfg.Store.AllowedSourceRoots)
	assert.Equal(t, 5, cfg.Audit.RotationSizeMB)
	assert.Equal(t, 0.5, cfg.Telemetry.SampleRate)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "artifactflow.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("phi:\n  policy: off\n"), 0o644))

	t.Setenv("ARTIFACTFLOW_PHI_POLICY", "reject")

	cfg, err := NewLoader().WithConfigPath(configPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "reject", cfg.PHI.Policy)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_STORE_BASE_PATH", "/custom")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)
	assert.Equal(t, "/custom", cfg.Store.BasePath)
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("ARTIFACTFLOW_PHI_POLICY", "mask")

	_, err := NewLoader().WithValidator(func(c *Config) error { return c.Validate() }).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phi.policy")
}

func TestLoader_BadEnvValue(t *testing.T) {
	t.Setenv("ARTIFACTFLOW_AUDIT_ROTATION_SIZE_MB", "lots")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ARTIFACTFLOW_AUDIT_ROTATION_SIZE_MB")
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/artifactflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.Store.BasePath)
}

func TestLoader_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store: [unclosed"), 0o644))

	_, err := NewLoader().WithConfigPath(configPath).Load()
	assert.Error(t, err)
}

// --- Validate 测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "empty base path", mutate: func(c *Config) { c.Store.BasePath = " " }, wantErr: "store.base_path"},
		{name: "zero rotation size", mutate: func(c *Config) { c.Audit.RotationSizeMB = 0 }, wantErr: "audit.rotation_size_mb"},
		{name: "unknown policy", mutate: func(c *Config) { c.PHI.Policy = "mask" }, wantErr: "phi.policy"},
		{name: "catalog driver", mutate: func(c *Config) {
			c.Catalog.Enabled = true
			c.Catalog.Driver = "oracle"
		}, wantErr: "catalog.driver"},
		{name: "tls pair", mutate: func(c *Config) { c.Server.TLSCertFile = "cert.pem" }, wantErr: "server.tls_cert_file"},
		{name: "verify interval", mutate: func(c *Config) { c.Server.VerifyInterval = -time.Second }, wantErr: "server.verify_interval"},
		{name: "sample rate", mutate: func(c *Config) { c.Telemetry.SampleRate = 2 }, wantErr: "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Paths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.BasePath = "/srv/af"

	assert.Equal(t, filepath.Join("/srv/af", "storage"), cfg.Store.StorageDir())
	assert.Equal(t, filepath.Join("/srv/af", "audit"), cfg.AuditDir())

	cfg.Audit.Dir = "/var/log/af"
	assert.Equal(t, "/var/log/af", cfg.AuditDir())
}

func TestCatalogConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		cfg      CatalogConfig
		expected string
	}{
		{
			name:     "postgres",
			cfg:      CatalogConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Name: "catalog", SSLMode: "disable"},
			expected: "host=db port=5432 user=u password=p dbname=catalog sslmode=disable",
		},
		{
			name:     "mysql",
			cfg:      CatalogConfig{Driver: "mysql", Host: "db", Port: 3306, User: "u", Password: "p", Name: "catalog"},
			expected: "u:p@tcp(db:3306)/catalog?parseTime=true",
		},
		{
			name:     "sqlite",
			cfg:      CatalogConfig{Driver: "sqlite", Name: "/tmp/catalog.db"},
			expected: "/tmp/catalog.db",
		},
		{
			name:     "unknown",
			cfg:      CatalogConfig{Driver: "oracle"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cfg.DSN())
		})
	}
}

func TestMustLoad_InvalidFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store: [unclosed"), 0o644))

	assert.Panics(t, func() { MustLoad(configPath) })
}
