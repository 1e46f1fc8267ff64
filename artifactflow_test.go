package artifactflow

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/artifact/manager"
	"github.com/BaSui01/artifactflow/artifact/phi"
	"github.com/BaSui01/artifactflow/config"
	"github.com/BaSui01/artifactflow/internal/catalog"
	"github.com/BaSui01/artifactflow/testutil/fixtures"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.BasePath = t.TempDir()
	cfg.Store.Fsync = false
	return cfg
}

func TestManagerConfig_Mapping(t *testing.T) {
	cfg := testConfig(t)
	cfg.PHI.Policy = "reject"
	cfg.Audit.Dir = "/var/log/artifactflow"

	mcfg, err := ManagerConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Store.BasePath, "storage"), mcfg.Storage.BasePath)
	assert.Equal(t, "/var/log/artifactflow", mcfg.Audit.Dir)
	assert.Equal(t, phi.PolicyReject, mcfg.PHI.Policy)
	assert.Equal(t, 4, mcfg.VerifyWorkers)

	cfg.PHI.Policy = "shout"
	_, err = ManagerConfig(cfg)
	assert.Error(t, err)
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), nil, nil)
	require.Error(t, err)

	cfg := testConfig(t)
	cfg.Audit.RotationSizeMB = 0
	_, err = Open(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestOpen_WithCatalogAndMetrics(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Namespace = "artifactflow_facade_test"
	cfg.Catalog.Enabled = true
	cfg.Catalog.Name = filepath.Join(cfg.Store.BasePath, "catalog.db")
	cfg.Catalog.MaxOpenConns = 1

	s, err := Open(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, s.Catalog())

	src := fixtures.WritePayload(t, t.TempDir(), "session.mp4", fixtures.SessionVideo)
	a, err := s.CreateArtifact(ctx, manager.CreateRequest{Type: artifact.TypeVideoRaw, SourcePath: src})
	require.NoError(t, err)
	assert.Equal(t, fixtures.Checksum(fixtures.SessionVideo), a.Checksum)

	rows, err := s.Catalog().ListArtifacts(ctx, catalog.Query{Type: string(artifact.TypeVideoRaw)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, a.ID, rows[0].ID)

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	// 同一命名空间再次打开复用 collector
	s, err = Open(ctx, cfg, nil)
	require.NoError(t, err)
	got, ok := s.GetArtifact(ctx, a.ID)
	require.True(t, ok)
	assert.Equal(t, a.Checksum, got.Checksum)
	require.NoError(t, s.Close(ctx))
}
