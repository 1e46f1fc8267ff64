package manager

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/artifact/audit"
	"github.com/BaSui01/artifactflow/artifact/storage"
	"github.com/BaSui01/artifactflow/internal/telemetry"
	"github.com/BaSui01/artifactflow/types"
)

// ListFilter narrows ListArtifacts. Zero fields match everything.
type ListFilter struct {
	Type   artifact.ArtifactType   `json:"artifact_type,omitempty"`
	Status artifact.ArtifactStatus `json:"status,omitempty"`
	RunID  string                  `json:"run_id,omitempty"`
	Module string                  `json:"processing_module,omitempty"`
}

func (f ListFilter) match(a *artifact.Artifact) bool {
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.RunID != "" && a.RunID != f.RunID {
		return false
	}
	if f.Module != "" && a.ProcessingModule != f.Module {
		return false
	}
	return true
}

// GetArtifact returns a copy of the artifact.
func (m *Manager) GetArtifact(ctx context.Context, id string) (*artifact.Artifact, bool) {
	_, span := telemetry.StartSpan(ctx, "get", attribute.String("artifact.id", id))
	defer telemetry.EndSpan(span, nil)

	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// ListArtifacts returns copies of the matching artifacts, oldest first.
func (m *Manager) ListArtifacts(ctx context.Context, f ListFilter) []*artifact.Artifact {
	_, span := telemetry.StartSpan(ctx, "list")
	defer telemetry.EndSpan(span, nil)

	m.mu.RLock()
	out := make([]*artifact.Artifact, 0, len(m.index))
	for _, a := range m.index {
		if f.match(a) {
			out = append(out, a.Clone())
		}
	}
	m.mu.RUnlock()

	sortArtifacts(out)
	span.SetAttributes(attribute.Int("artifact.count", len(out)))
	return out
}

// GetArtifactLineage returns the upstream provenance of id.
func (m *Manager) GetArtifactLineage(ctx context.Context, id string) (l *artifact.Lineage, err error) {
	_, span := telemetry.StartSpan(ctx, "lineage", attribute.String("artifact.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.index[id]; !ok {
		return nil, types.NotFound("artifact %s not found", id).WithArtifact(id)
	}
	return artifact.BuildLineage(id, m.lookup, m.cfg.MaxLineageNodes), nil
}

func (m *Manager) lookup(id string) *artifact.Artifact {
	return m.index[id]
}

// GetArtifactFile resolves the stored payload. ok is false when the artifact
// has no backing file.
func (m *Manager) GetArtifactFile(ctx context.Context, id string) (path string, ok bool, err error) {
	_, span := telemetry.StartSpan(ctx, "get_file", attribute.String("artifact.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	m.mu.RLock()
	defer m.mu.RUnlock()
	a, found := m.index[id]
	if !found {
		return "", false, types.NotFound("artifact %s not found", id).WithArtifact(id)
	}
	if !a.HasFile() {
		return "", false, nil
	}
	path, err = m.store.Resolve(a.FilePath)
	if err != nil {
		return "", false, withArtifact(err, id)
	}
	return path, true, nil
}

// Statistics is an aggregated read-only snapshot of the store.
type Statistics struct {
	Storage   storage.Stats `json:"storage"`
	Artifacts ArtifactStats `json:"artifacts"`
	Runs      RunStats      `json:"runs"`
	Audit     AuditStats    `json:"audit"`
}

// ArtifactStats counts indexed artifacts.
type ArtifactStats struct {
	Total    int            `json:"total"`
	ByType   map[string]int `json:"by_type"`
	ByStatus map[string]int `json:"by_status"`
}

// RunStats counts processing runs.
type RunStats struct {
	Total     int    `json:"total"`
	ActiveRun string `json:"active_run,omitempty"`
}

// AuditStats summarizes recorded failures.
type AuditStats struct {
	TotalErrors       int            `json:"total_errors"`
	ErrorsByOperation map[string]int `json:"errors_by_operation"`
}

// GetStatistics aggregates storage, index and audit figures.
func (m *Manager) GetStatistics(ctx context.Context) (s *Statistics, err error) {
	ctx, span := telemetry.StartSpan(ctx, "statistics")
	defer func() { telemetry.EndSpan(span, err) }()

	s = &Statistics{
		Artifacts: ArtifactStats{
			ByType:   make(map[string]int),
			ByStatus: make(map[string]int),
		},
	}

	m.mu.RLock()
	for _, a := range m.index {
		s.Artifacts.Total++
		s.Artifacts.ByType[string(a.Type)]++
		s.Artifacts.ByStatus[string(a.Status)]++
	}
	s.Runs.Total = len(m.runs)
	s.Runs.ActiveRun = m.activeRunID()
	s.Storage, err = m.store.Stats()
	m.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	sum, err := m.trail.ErrorSummary(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	s.Audit = AuditStats{
		TotalErrors:       sum.TotalErrors,
		ErrorsByOperation: sum.ErrorsByOperation,
	}
	return s, nil
}

// History returns every audit entry recorded for an artifact, oldest first.
func (m *Manager) History(ctx context.Context, id string) ([]audit.Entry, error) {
	return m.trail.History(ctx, id)
}

// ExportAudit writes matching audit entries to outputPath and records the
// export itself.
func (m *Manager) ExportAudit(ctx context.Context, outputPath string, f audit.Filter, format audit.Format) (n int, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "export_audit", attribute.String("audit.format", string(format)))
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("export_audit", start, err)
	}()

	n, err = m.trail.Export(ctx, outputPath, f, format)
	entry := audit.Entry{
		Operation: audit.OpExport,
		Action:    "export",
		Details: map[string]any{
			"path":    outputPath,
			"format":  string(format),
			"entries": n,
		},
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err != nil {
		return n, m.recordFailure(ctx, entry, err)
	}
	entry.Success = true
	if auditErr := m.record(ctx, entry); auditErr != nil {
		return n, auditErr
	}
	m.logger.Info("audit trail exported", zap.String("path", outputPath), zap.Int("entries", n))
	return n, nil
}

// PurgeAudit drops audit partitions whose entries all predate before.
func (m *Manager) PurgeAudit(ctx context.Context, before time.Time, reason string) (n int, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "purge_audit")
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("purge_audit", start, err)
	}()
	return m.trail.Purge(ctx, before, reason, m.actor(ctx))
}

// VerifyAuditChain recomputes the audit hash chain.
func (m *Manager) VerifyAuditChain(ctx context.Context) (audit.ChainReport, error) {
	return m.trail.VerifyChain(ctx)
}

func sortArtifacts(out []*artifact.Artifact) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}
