package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/config"
	"github.com/BaSui01/artifactflow/internal/metrics"
)

var namespaceSeq atomic.Uint64

func openSQLite(t *testing.T) (*Catalog, *metrics.Collector) {
	t.Helper()
	cfg := config.CatalogConfig{
		Enabled:      true,
		Driver:       "sqlite",
		Name:         filepath.Join(t.TempDir(), "catalog.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		AutoMigrate:  true,
	}
	collector := metrics.NewCollector(fmt.Sprintf("catalog_test_%d", namespaceSeq.Add(1)), zaptest.NewLogger(t))
	c, err := Open(context.Background(), cfg, collector, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, collector
}

func sampleArtifact(id string, status artifact.ArtifactStatus, sources ...string) *artifact.Artifact {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &artifact.Artifact{
		ID:                id,
		Type:              artifact.TypeVideoRaw,
		Status:            status,
		Checksum:          "ab12",
		FilePath:          "artifacts/video_raw/" + id + "_clip.mp4",
		FileSize:          10,
		SourceArtifacts:   sources,
		ProcessingModule:  "ingest",
		ProcessingVersion: "1.0",
		Metadata:          map[string]any{"fps": 30},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func TestCatalog_UpsertAndList(t *testing.T) {
	c, _ := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertArtifact(ctx, sampleArtifact("a1", artifact.StatusPending)))
	require.NoError(t, c.UpsertArtifact(ctx, sampleArtifact("a2", artifact.StatusCompleted, "a1")))

	all, err := c.ListArtifacts(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, []string{"a1"}, all[1].Sources())
	assert.Empty(t, all[0].Sources())
	assert.JSONEq(t, `{"fps":30}`, all[0].Metadata)

	// 重复 upsert 覆盖原行
	updated := sampleArtifact("a1", artifact.StatusFailed)
	updated.ErrorMessage = "decoder crashed"
	require.NoError(t, c.UpsertArtifact(ctx, updated))

	failed, err := c.ListArtifacts(ctx, Query{Status: string(artifact.StatusFailed)})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "a1", failed[0].ID)
	assert.Equal(t, "decoder crashed", failed[0].ErrorMessage)

	counts, err := c.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"failed": 1, "completed": 1}, counts)

	byModule, err := c.ListArtifacts(ctx, Query{Module: "ingest", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, byModule, 1)

	none, err := c.ListArtifacts(ctx, Query{Type: string(artifact.TypeAudioRaw)})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCatalog_Delete(t *testing.T) {
	c, _ := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, c.UpsertArtifact(ctx, sampleArtifact("a1", artifact.StatusPending)))
	require.NoError(t, c.DeleteArtifact(ctx, "a1"))
	// 删除不存在的行不报错
	require.NoError(t, c.DeleteArtifact(ctx, "a1"))

	all, err := c.ListArtifacts(ctx, Query{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCatalog_Runs(t *testing.T) {
	c, _ := openSQLite(t)
	ctx := context.Background()

	run := &artifact.ProcessingRun{
		ID:             "run_20260301_120000",
		StartedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Status:         artifact.StatusInProgress,
		InputArtifacts: []string{"a1"},
	}
	require.NoError(t, c.UpsertRun(ctx, run))

	rec, ok, err := c.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, rec.EndedAt)
	assert.Equal(t, `["a1"]`, rec.InputArtifacts)
	assert.Equal(t, "[]", rec.OutputArtifacts)
	assert.Equal(t, "{}", rec.Metadata)

	ended := run.StartedAt.Add(time.Minute)
	run.EndedAt = &ended
	run.Status = artifact.StatusCompleted
	require.NoError(t, c.UpsertRun(ctx, run))

	rec, ok, err = c.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, rec.EndedAt)
	assert.Equal(t, "completed", rec.Status)

	_, ok, err = c.GetRun(ctx, "run_missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalog_Reopen_SchemaAlreadyMigrated(t *testing.T) {
	dir := t.TempDir()
	cfg := config.CatalogConfig{Driver: "sqlite", Name: filepath.Join(dir, "catalog.db"), AutoMigrate: true}
	ctx := context.Background()

	c, err := Open(ctx, cfg, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.UpsertArtifact(ctx, sampleArtifact("a1", artifact.StatusPending)))
	require.NoError(t, c.Close())

	c, err = Open(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Ping(ctx))

	all, err := c.ListArtifacts(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCatalog_RejectsNil(t *testing.T) {
	c, _ := openSQLite(t)
	assert.Error(t, c.UpsertArtifact(context.Background(), nil))
	assert.Error(t, c.UpsertRun(context.Background(), nil))

	_, err := New(nil, nil)
	assert.Error(t, err)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), config.CatalogConfig{Driver: "oracle", Name: "x"}, nil, nil)
	assert.Error(t, err)
}
