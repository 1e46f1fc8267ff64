package manager

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/artifact/audit"
	"github.com/BaSui01/artifactflow/internal/telemetry"
	"github.com/BaSui01/artifactflow/types"
)

// CleanupReport is the outcome of CleanupOldArtifacts.
type CleanupReport struct {
	Removed    int      `json:"removed"`
	Skipped    int      `json:"skipped"`
	RemovedIDs []string `json:"removed_ids"`
	SkippedIDs []string `json:"skipped_ids"`
	// OrphanFiles counts stale payloads no artifact referenced.
	OrphanFiles int      `json:"orphan_files"`
	Errors      []string `json:"errors,omitempty"`
}

// CleanupOldArtifacts removes artifacts created more than days ago. An
// artifact that is still a source of a surviving artifact is skipped. Stale
// chains go descendants first, so a fully stale lineage is removed in one
// call. Each removal takes metadata, payload and index entry together.
func (m *Manager) CleanupOldArtifacts(ctx context.Context, days int) (report CleanupReport, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "cleanup", attribute.Int("artifact.days", days))
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("cleanup", start, err)
	}()

	report = CleanupReport{RemovedIDs: []string{}, SkippedIDs: []string{}}
	if days < 0 {
		return report, types.Validation("days must be >= 0, got %d", days)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return report, err
	}
	// 元数据缺失时引用关系不可信，拒绝删除
	if len(m.unreadable) > 0 {
		return report, m.recordFailure(ctx, audit.Entry{
			Operation: audit.OpCleanup,
			Action:    "refuse",
			Details: map[string]any{
				"days":                days,
				"unreadable_metadata": m.unreadable,
			},
		}, types.Validation("cleanup refused: %d metadata documents are unreadable (%s)",
			len(m.unreadable), strings.Join(m.unreadable, ", ")))
	}

	now := m.now()
	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	var candidates []*artifact.Artifact
	for _, a := range m.index {
		if a.CreatedAt.Before(cutoff) {
			candidates = append(candidates, a)
		}
	}
	sortArtifacts(candidates)

	var auditErr error
	failed := make(map[string]bool)
	for progress := true; progress; {
		progress = false
		for _, a := range candidates {
			if _, live := m.index[a.ID]; !live || failed[a.ID] || m.referenced(a.ID) {
				continue
			}
			if err := m.removeArtifact(ctx, a, now); err != nil {
				if types.IsCode(err, types.ErrAuditWriteFailure) {
					if auditErr == nil {
						auditErr = err
					}
				} else {
					failed[a.ID] = true
					report.Errors = append(report.Errors, err.Error())
					continue
				}
			}
			report.Removed++
			report.RemovedIDs = append(report.RemovedIDs, a.ID)
			progress = true
		}
	}
	for _, a := range candidates {
		if _, live := m.index[a.ID]; live && !failed[a.ID] {
			report.Skipped++
			report.SkippedIDs = append(report.SkippedIDs, a.ID)
		}
	}

	orphans, err := m.store.CleanupOlderThan(days, m.referencedPath)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
	} else {
		report.OrphanFiles = orphans.Removed
		report.Errors = append(report.Errors, orphans.Errors...)
	}
	if orphans.Removed > 0 {
		err := m.record(ctx, audit.Entry{
			Operation: audit.OpCleanup,
			Action:    "remove_orphan",
			Success:   true,
			Details: map[string]any{
				"days":  days,
				"count": orphans.Removed,
				"paths": orphans.RemovedPaths,
			},
		})
		if err != nil && auditErr == nil {
			auditErr = err
		}
	}

	m.metrics.RecordCleanup(report.Removed, report.Skipped)
	m.metrics.SetIndexedArtifacts(m.countByType())
	m.logger.Info("artifact cleanup completed",
		zap.Int("days", days),
		zap.Int("removed", report.Removed),
		zap.Int("skipped", report.Skipped),
		zap.Int("orphan_files", report.OrphanFiles),
	)
	return report, auditErr
}

// referenced reports whether a live artifact lists id as a source.
func (m *Manager) referenced(id string) bool {
	for _, a := range m.index {
		if a.HasSource(id) {
			return true
		}
	}
	return false
}

// referencedPath protects payloads that belong to an indexed artifact.
func (m *Manager) referencedPath(relPath string) bool {
	for _, a := range m.index {
		if a.FilePath == relPath {
			return true
		}
	}
	return false
}

// removeArtifact deletes one artifact as a unit: the payload is staged in the
// trash, the id is retired, then the metadata document goes. Any failure
// before the metadata is gone restores the payload.
func (m *Manager) removeArtifact(ctx context.Context, a *artifact.Artifact, now time.Time) error {
	entry := audit.Entry{
		Operation:  audit.OpCleanup,
		Action:     "remove_old",
		ArtifactID: a.ID,
		Module:     a.ProcessingModule,
		Details: map[string]any{
			"age_days":  int(now.Sub(a.CreatedAt).Hours() / 24),
			"file_path": a.FilePath,
			"type":      string(a.Type),
		},
	}

	removal, err := m.store.StageRemoval(a.FilePath)
	if err != nil {
		return m.recordFailure(ctx, entry, withArtifact(err, a.ID))
	}
	if err := m.store.AppendTombstone(a.ID); err != nil {
		m.restore(removal, a.ID)
		return m.recordFailure(ctx, entry, withArtifact(err, a.ID))
	}
	if err := m.store.DeleteMetadata(a.ID); err != nil {
		m.restore(removal, a.ID)
		return m.recordFailure(ctx, entry, withArtifact(err, a.ID))
	}

	delete(m.index, a.ID)
	m.retired[a.ID] = struct{}{}
	if err := removal.Commit(); err != nil {
		m.logger.Warn("staged payload left in trash", zap.String("artifact_id", a.ID), zap.Error(err))
	}
	if m.catalog != nil {
		if err := m.catalog.DeleteArtifact(ctx, a.ID); err != nil {
			m.logger.Warn("catalog delete failed", zap.String("artifact_id", a.ID), zap.Error(err))
		}
	}

	entry.Success = true
	return m.record(ctx, entry)
}

func (m *Manager) restore(r interface{ Restore() error }, id string) {
	if err := r.Restore(); err != nil {
		m.logger.Error("failed to restore staged payload", zap.String("artifact_id", id), zap.Error(err))
	}
}
