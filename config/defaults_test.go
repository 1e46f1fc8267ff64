package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_AllSectionsPopulated(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotEqual(t, StoreConfig{}, cfg.Store)
	assert.NotEqual(t, AuditConfig{}, cfg.Audit)
	assert.NotEqual(t, PHIConfig{}, cfg.PHI)
	assert.NotEqual(t, CatalogConfig{}, cfg.Catalog)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultStoreConfig(t *testing.T) {
	cfg := DefaultStoreConfig()
	assert.Equal(t, "./data", cfg.BasePath)
	assert.Equal(t, 100, cfg.MaxFilenameLength)
	assert.True(t, cfg.Fsync)
	assert.True(t, cfg.AutoCleanupTemp)
	assert.Equal(t, 24*time.Hour, cfg.TempMaxAge)
	assert.Equal(t, 4, cfg.VerifyWorkers)
	assert.Equal(t, 10000, cfg.MaxLineageNodes)
	assert.Empty(t, cfg.AllowedSourceRoots)
}

func TestDefaultAuditConfig(t *testing.T) {
	cfg := DefaultAuditConfig()
	assert.Empty(t, cfg.Dir)
	assert.Equal(t, 100, cfg.RotationSizeMB)
	assert.False(t, cfg.Fsync)
}

func TestDefaultCatalogConfig(t *testing.T) {
	cfg := DefaultCatalogConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, 10, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.True(t, cfg.AutoMigrate)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "artifactflow", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
}

func TestDefaultMetricsConfig(t *testing.T) {
	cfg := DefaultMetricsConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "artifactflow", cfg.Namespace)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Zero(t, cfg.VerifyInterval)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
}
