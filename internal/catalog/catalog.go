package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/config"
	"github.com/BaSui01/artifactflow/internal/database"
	"github.com/BaSui01/artifactflow/internal/metrics"
	"github.com/BaSui01/artifactflow/internal/migration"
)

// poolName labels the catalog's pool metrics.
const poolName = "catalog"

// ArtifactRecord is one row of the artifacts table.
type ArtifactRecord struct {
	ID                string `gorm:"primaryKey;size:64"`
	Type              string `gorm:"size:32;index"`
	Status            string `gorm:"size:32;index"`
	Checksum          string `gorm:"size:64"`
	FilePath          string `gorm:"size:1024"`
	FileSize          int64
	ProcessingModule  string `gorm:"size:128;index"`
	ProcessingVersion string `gorm:"size:64"`
	RunID             string `gorm:"size:64;index"`
	SourceArtifacts   string `gorm:"type:text"`
	Metadata          string `gorm:"type:text"`
	ErrorMessage      string `gorm:"type:text"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (ArtifactRecord) TableName() string { return "artifacts" }

// Sources decodes the source_artifacts column.
func (r ArtifactRecord) Sources() []string {
	var ids []string
	_ = json.Unmarshal([]byte(r.SourceArtifacts), &ids)
	return ids
}

// RunRecord is one row of the processing_runs table.
type RunRecord struct {
	ID              string `gorm:"primaryKey;size:64"`
	Status          string `gorm:"size:32"`
	StartedAt       time.Time
	EndedAt         *time.Time
	Metadata        string `gorm:"type:text"`
	InputArtifacts  string `gorm:"type:text"`
	OutputArtifacts string `gorm:"type:text"`
	ErrorMessages   string `gorm:"type:text"`
}

func (RunRecord) TableName() string { return "processing_runs" }

// Catalog mirrors artifacts and runs into SQL. It satisfies the manager's
// catalog hook and io.Closer.
type Catalog struct {
	pool   *database.PoolManager
	logger *zap.Logger
}

// New wraps an existing pool. The schema must already be migrated.
func New(pool *database.PoolManager, logger *zap.Logger) (*Catalog, error) {
	if pool == nil {
		return nil, fmt.Errorf("catalog pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{
		pool:   pool,
		logger: logger.With(zap.String("component", "catalog")),
	}, nil
}

// Open connects to the configured database, applies the embedded schema
// when cfg.AutoMigrate is set, and starts the pool health checks.
func Open(ctx context.Context, cfg config.CatalogConfig, collector *metrics.Collector, logger *zap.Logger) (*Catalog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.AutoMigrate {
		m, err := migration.NewMigratorFromCatalogConfig(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("catalog migration: %w", err)
		}
		err = m.Up(ctx)
		if cerr := m.Close(); err == nil && cerr != nil {
			logger.Warn("close catalog migrator", zap.Error(cerr))
		}
		if err != nil {
			return nil, fmt.Errorf("catalog migration: %w", err)
		}
	}

	db, err := database.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	pool, err := database.NewPoolManager(db, poolName, database.PoolConfigFromCatalog(cfg), collector, logger)
	if err != nil {
		if sqlDB, derr := db.DB(); derr == nil {
			sqlDB.Close()
		}
		return nil, err
	}
	return New(pool, logger)
}

// Close stops the pool.
func (c *Catalog) Close() error {
	return c.pool.Close()
}

// Ping checks the connection.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// =============================================================================
// 写入
// =============================================================================

// UpsertArtifact inserts or replaces the row for a.
func (c *Catalog) UpsertArtifact(ctx context.Context, a *artifact.Artifact) error {
	rec, err := toArtifactRecord(a)
	if err != nil {
		return err
	}
	return c.pool.WithTransactionRetry(ctx, "upsert_artifact", 3, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
}

// DeleteArtifact removes the row for id. Missing rows are not an error.
func (c *Catalog) DeleteArtifact(ctx context.Context, id string) error {
	return c.pool.WithTransactionRetry(ctx, "delete_artifact", 3, func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).Delete(&ArtifactRecord{}).Error
	})
}

// UpsertRun inserts or replaces the row for r.
func (c *Catalog) UpsertRun(ctx context.Context, r *artifact.ProcessingRun) error {
	rec, err := toRunRecord(r)
	if err != nil {
		return err
	}
	return c.pool.WithTransactionRetry(ctx, "upsert_run", 3, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	})
}

// =============================================================================
// 查询
// =============================================================================

// Query filters ListArtifacts. Empty fields match everything.
type Query struct {
	Type   string
	Status string
	RunID  string
	Module string
	Limit  int
}

// ListArtifacts returns matching rows ordered by creation time.
func (c *Catalog) ListArtifacts(ctx context.Context, q Query) ([]ArtifactRecord, error) {
	tx := c.pool.DB().WithContext(ctx).Model(&ArtifactRecord{})
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	if q.RunID != "" {
		tx = tx.Where("run_id = ?", q.RunID)
	}
	if q.Module != "" {
		tx = tx.Where("processing_module = ?", q.Module)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var out []ArtifactRecord
	if err := tx.Order("created_at, id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list catalog artifacts: %w", err)
	}
	return out, nil
}

// CountByStatus groups the artifacts table by status.
func (c *Catalog) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := c.pool.DB().WithContext(ctx).
		Model(&ArtifactRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count catalog artifacts: %w", err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// GetRun returns the row for a processing run.
func (c *Catalog) GetRun(ctx context.Context, id string) (*RunRecord, bool, error) {
	var rec RunRecord
	err := c.pool.DB().WithContext(ctx).Where("id = ?", id).Limit(1).Find(&rec).Error
	if err != nil {
		return nil, false, fmt.Errorf("get catalog run: %w", err)
	}
	if rec.ID == "" {
		return nil, false, nil
	}
	return &rec, true, nil
}

// =============================================================================
// 转换
// =============================================================================

func toArtifactRecord(a *artifact.Artifact) (ArtifactRecord, error) {
	if a == nil {
		return ArtifactRecord{}, fmt.Errorf("nil artifact")
	}
	sources, err := marshalJSON(a.SourceArtifacts, "[]")
	if err != nil {
		return ArtifactRecord{}, err
	}
	meta, err := marshalJSON(a.Metadata, "{}")
	if err != nil {
		return ArtifactRecord{}, err
	}
	return ArtifactRecord{
		ID:                a.ID,
		Type:              string(a.Type),
		Status:            string(a.Status),
		Checksum:          a.Checksum,
		FilePath:          a.FilePath,
		FileSize:          a.FileSize,
		ProcessingModule:  a.ProcessingModule,
		ProcessingVersion: a.ProcessingVersion,
		RunID:             a.RunID,
		SourceArtifacts:   sources,
		Metadata:          meta,
		ErrorMessage:      a.ErrorMessage,
		CreatedAt:         a.CreatedAt.UTC(),
		UpdatedAt:         a.UpdatedAt.UTC(),
	}, nil
}

func toRunRecord(r *artifact.ProcessingRun) (RunRecord, error) {
	if r == nil {
		return RunRecord{}, fmt.Errorf("nil run")
	}
	rec := RunRecord{
		ID:        r.ID,
		Status:    string(r.Status),
		StartedAt: r.StartedAt.UTC(),
	}
	if r.EndedAt != nil {
		ended := r.EndedAt.UTC()
		rec.EndedAt = &ended
	}

	var err error
	if rec.Metadata, err = marshalJSON(r.Metadata, "{}"); err != nil {
		return RunRecord{}, err
	}
	if rec.InputArtifacts, err = marshalJSON(r.InputArtifacts, "[]"); err != nil {
		return RunRecord{}, err
	}
	if rec.OutputArtifacts, err = marshalJSON(r.OutputArtifacts, "[]"); err != nil {
		return RunRecord{}, err
	}
	if rec.ErrorMessages, err = marshalJSON(r.ErrorMessages, "[]"); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// marshalJSON encodes v, writing empty for nil slices and maps.
func marshalJSON[T any](v T, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode catalog column: %w", err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}
