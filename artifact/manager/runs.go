package manager

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/artifact/audit"
	"github.com/BaSui01/artifactflow/internal/telemetry"
	"github.com/BaSui01/artifactflow/types"
)

// StartProcessingRun opens a run. Starting a run while another is active is
// rejected; the caller must end the previous run explicitly.
func (m *Manager) StartProcessingRun(ctx context.Context, metadata map[string]any) (run *artifact.ProcessingRun, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "run_start")
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("run_start", start, err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	entry := audit.Entry{Operation: audit.OpRunStart, Action: "start"}
	if m.active != nil {
		entry.RunID = m.active.ID
		return nil, m.recordFailure(ctx, entry,
			types.Validation("processing run %s is still active", m.active.ID))
	}
	if err := artifact.ValidateMetadata(metadata); err != nil {
		return nil, m.recordFailure(ctx, entry, err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	r := &artifact.ProcessingRun{
		ID:              m.newRunID(),
		StartedAt:       m.now().UTC(),
		Status:          artifact.StatusInProgress,
		Metadata:        metadata,
		InputArtifacts:  []string{},
		OutputArtifacts: []string{},
	}
	r = r.Clone()
	entry.RunID = r.ID
	if err := m.store.SaveRun(r); err != nil {
		return nil, m.recordFailure(ctx, entry, err)
	}
	m.runs[r.ID] = r
	m.active = r
	m.mirrorRun(ctx, r)
	span.SetAttributes(attribute.String("artifact.run_id", r.ID))

	entry.Success = true
	entry.Details = map[string]any{"metadata": r.Metadata}
	auditErr := m.record(ctx, entry)

	m.logger.Info("processing run started", zap.String("run_id", r.ID))
	return r.Clone(), auditErr
}

// EndProcessingRun closes the active run with a terminal status.
func (m *Manager) EndProcessingRun(ctx context.Context, status artifact.ArtifactStatus) (run *artifact.ProcessingRun, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "run_end", attribute.String("artifact.status", string(status)))
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("run_end", start, err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	entry := audit.Entry{Operation: audit.OpRunEnd, Action: "end"}
	if m.active == nil {
		return nil, m.recordFailure(ctx, entry, types.NotFound("no active processing run"))
	}
	entry.RunID = m.active.ID
	if !status.IsTerminal() {
		return nil, m.recordFailure(ctx, entry,
			types.Validation("run must end as completed or failed, got %q", status))
	}

	r := m.active.Clone()
	ended := m.now().UTC()
	r.EndedAt = &ended
	r.Status = status
	if err := m.store.SaveRun(r); err != nil {
		return nil, m.recordFailure(ctx, entry, err)
	}
	m.runs[r.ID] = r
	m.active = nil
	m.mirrorRun(ctx, r)

	entry.Success = status == artifact.StatusCompleted
	if !entry.Success {
		entry.Error = "run ended as failed"
	}
	entry.Details = map[string]any{
		"status":           string(status),
		"duration":         r.Duration(ended).String(),
		"input_artifacts":  r.InputArtifacts,
		"output_artifacts": r.OutputArtifacts,
		"error_messages":   r.ErrorMessages,
	}
	auditErr := m.record(ctx, entry)

	if m.cfg.AutoCleanupTemp {
		if n, err := m.store.CleanupTemp(m.cfg.TempMaxAge); err != nil {
			m.logger.Warn("temp cleanup failed", zap.Error(err))
		} else if n > 0 {
			m.logger.Debug("temp cleanup after run", zap.Int("removed", n))
		}
	}

	m.logger.Info("processing run ended",
		zap.String("run_id", r.ID),
		zap.String("status", string(status)),
		zap.Duration("duration", r.Duration(ended)),
	)
	return r.Clone(), auditErr
}

// ActiveRun returns the open run, if any.
func (m *Manager) ActiveRun() (*artifact.ProcessingRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return nil, false
	}
	return m.active.Clone(), true
}

// GetRun returns a run by id.
func (m *Manager) GetRun(id string) (*artifact.ProcessingRun, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// ListRuns returns every known run, oldest first.
func (m *Manager) ListRuns() []*artifact.ProcessingRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*artifact.ProcessingRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (m *Manager) newRunID() string {
	for {
		id := m.newID()
		if _, ok := m.runs[id]; !ok {
			return id
		}
	}
}

// trackInRun adds a freshly created artifact to the active run. Runs are
// bookkeeping, so a failed save is logged rather than failing the create.
func (m *Manager) trackInRun(ctx context.Context, a *artifact.Artifact) {
	if m.active == nil {
		return
	}
	r := m.active.Clone()
	if len(a.SourceArtifacts) == 0 {
		r.InputArtifacts = append(r.InputArtifacts, a.ID)
	}
	r.OutputArtifacts = append(r.OutputArtifacts, a.ID)
	m.saveRun(ctx, r)
}

// noteRunError collects a failure message on the active run.
func (m *Manager) noteRunError(ctx context.Context, id, message string) {
	if m.active == nil {
		return
	}
	r := m.active.Clone()
	r.ErrorMessages = append(r.ErrorMessages, id+": "+message)
	m.saveRun(ctx, r)
}

func (m *Manager) saveRun(ctx context.Context, r *artifact.ProcessingRun) {
	if err := m.store.SaveRun(r); err != nil {
		m.logger.Warn("failed to persist run", zap.String("run_id", r.ID), zap.Error(err))
	}
	m.runs[r.ID] = r
	m.active = r
	m.mirrorRun(ctx, r)
}
