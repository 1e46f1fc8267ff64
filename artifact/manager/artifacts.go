package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact"
	"github.com/BaSui01/artifactflow/artifact/audit"
	"github.com/BaSui01/artifactflow/internal/telemetry"
	"github.com/BaSui01/artifactflow/types"
)

// DefaultRelationship labels links made without an explicit relationship.
const DefaultRelationship = "derived_from"

// CreateRequest describes a new artifact.
type CreateRequest struct {
	Type artifact.ArtifactType `json:"artifact_type"`
	// SourcePath is the produced file; empty creates a metadata-only artifact.
	SourcePath        string         `json:"source_path,omitempty"`
	SourceArtifacts   []string       `json:"source_artifacts,omitempty"`
	ProcessingModule  string         `json:"processing_module,omitempty"`
	ProcessingVersion string         `json:"processing_version,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// CreateArtifact registers a new pending artifact, copying SourcePath into
// storage when given.
func (m *Manager) CreateArtifact(ctx context.Context, req CreateRequest) (a *artifact.Artifact, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "create",
		attribute.String("artifact.type", string(req.Type)),
		attribute.String("artifact.module", req.ProcessingModule),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("create", start, err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	sources := dedupe(req.SourceArtifacts)
	entry := audit.Entry{
		Operation: audit.OpArtifactCreation,
		Action:    "create",
		Module:    req.ProcessingModule,
		Details: map[string]any{
			"type":             string(req.Type),
			"source_artifacts": sources,
			"has_file":         req.SourcePath != "",
		},
	}

	if !req.Type.Valid() {
		return nil, m.recordFailure(ctx, entry, types.Validation("unrecognized artifact type %q", req.Type))
	}
	for _, src := range sources {
		if _, ok := m.index[src]; !ok {
			return nil, m.recordFailure(ctx, entry, types.NotFound("source artifact %s not found", src).WithArtifact(src))
		}
	}
	if err := artifact.ValidateMetadata(req.Metadata); err != nil {
		return nil, m.recordFailure(ctx, entry, err)
	}
	findings, err := m.scanner.Check(req.Metadata)
	if err != nil {
		return nil, m.recordFailure(ctx, entry, err)
	}

	id := m.newID()
	entry.ArtifactID = id
	span.SetAttributes(attribute.String("artifact.id", id))
	if artifact.WouldIntroduceCycle(id, sources, m.sourcesOf) {
		return nil, m.recordFailure(ctx, entry, types.Validation("source artifacts would form a cycle").WithArtifact(id))
	}
	if len(findings) > 0 {
		m.logger.Warn("metadata contains identifier-shaped fields",
			zap.String("artifact_id", id),
			zap.Int("findings", len(findings)),
		)
		entry.Details["phi_findings"] = len(findings)
	}

	now := m.now().UTC()
	a = &artifact.Artifact{
		ID:                id,
		Type:              req.Type,
		Status:            artifact.StatusPending,
		SourceArtifacts:   sources,
		ProcessingModule:  req.ProcessingModule,
		ProcessingVersion: req.ProcessingVersion,
		RunID:             m.activeRunID(),
		Metadata:          req.Metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	a = a.Clone()
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}

	if req.SourcePath != "" {
		stored, err := m.store.Store(ctx, req.Type, id, req.SourcePath)
		if err != nil {
			return nil, m.recordFailure(ctx, entry, withArtifact(err, id))
		}
		a.FilePath = stored.Path
		a.Checksum = stored.Checksum
		a.FileSize = stored.Size
		entry.Details["checksum"] = stored.Checksum
		entry.Details["file_size"] = stored.Size
	}

	if err := m.store.SaveMetadata(a); err != nil {
		m.discardPayload(a)
		return nil, m.recordFailure(ctx, entry, err)
	}
	m.index[id] = a
	m.trackInRun(ctx, a)
	m.mirror(ctx, a)
	m.metrics.RecordBytesStored(string(a.Type), a.FileSize)
	m.metrics.SetIndexedArtifacts(m.countByType())

	entry.Success = true
	auditErr := m.record(ctx, entry)

	m.logger.Info("artifact created",
		zap.String("artifact_id", id),
		zap.String("type", string(a.Type)),
		zap.Bool("has_file", a.HasFile()),
	)
	return a.Clone(), auditErr
}

// AttachFile stores a payload for a metadata-only artifact. Attaching the
// same bytes again is a no-op; different bytes are rejected because a
// recorded checksum never changes.
func (m *Manager) AttachFile(ctx context.Context, id, sourcePath string) (a *artifact.Artifact, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "attach_file", attribute.String("artifact.id", id))
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("attach_file", start, err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	entry := audit.Entry{Operation: audit.OpFileAttach, Action: "attach", ArtifactID: id}
	current, ok := m.index[id]
	if !ok {
		return nil, m.recordFailure(ctx, entry, types.NotFound("artifact %s not found", id).WithArtifact(id))
	}
	entry.Module = current.ProcessingModule

	if current.HasFile() {
		sum, err := m.store.SourceChecksum(sourcePath)
		if err != nil {
			return nil, m.recordFailure(ctx, entry, withArtifact(err, id))
		}
		if !strings.EqualFold(sum, current.Checksum) {
			return nil, m.recordFailure(ctx, entry,
				types.Validation("CHECKSUM_IMMUTABLE: artifact %s already has a payload with a different checksum", id).WithArtifact(id))
		}
		entry.Success = true
		entry.Details = map[string]any{"noop": true, "checksum": sum}
		return current.Clone(), m.record(ctx, entry)
	}
	if current.Status.IsTerminal() {
		return nil, m.recordFailure(ctx, entry,
			types.InvalidTransition("cannot attach a payload to %s artifact %s", current.Status, id).WithArtifact(id))
	}

	stored, err := m.store.Store(ctx, current.Type, id, sourcePath)
	if err != nil {
		return nil, m.recordFailure(ctx, entry, withArtifact(err, id))
	}
	next := current.Clone()
	next.FilePath = stored.Path
	next.Checksum = stored.Checksum
	next.FileSize = stored.Size
	next.UpdatedAt = m.now().UTC()
	if err := m.store.SaveMetadata(next); err != nil {
		m.discardPayload(next)
		return nil, m.recordFailure(ctx, entry, err)
	}
	m.index[id] = next
	m.mirror(ctx, next)
	m.metrics.RecordBytesStored(string(next.Type), next.FileSize)

	entry.Success = true
	entry.Details = map[string]any{"checksum": stored.Checksum, "file_size": stored.Size}
	return next.Clone(), m.record(ctx, entry)
}

// UpdateArtifactStatus moves an artifact along its lifecycle. errorMessage is
// kept only for transitions to failed.
func (m *Manager) UpdateArtifactStatus(ctx context.Context, id string, status artifact.ArtifactStatus, errorMessage string) (a *artifact.Artifact, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "update_status",
		attribute.String("artifact.id", id),
		attribute.String("artifact.status", string(status)),
	)
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("update_status", start, err)
	}()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	entry := audit.Entry{
		Operation:  audit.OpStatusUpdate,
		Action:     "update_status",
		ArtifactID: id,
		Details: map[string]any{
			"new_status":    string(status),
			"error_message": errorMessage,
		},
	}
	if !status.Valid() {
		return nil, m.recordFailure(ctx, entry, types.Validation("unrecognized artifact status %q", status).WithArtifact(id))
	}
	current, ok := m.index[id]
	if !ok {
		return nil, m.recordFailure(ctx, entry, types.NotFound("artifact %s not found", id).WithArtifact(id))
	}
	entry.Module = current.ProcessingModule
	entry.Details["from_status"] = string(current.Status)
	if !artifact.CanTransition(current.Status, status) {
		return nil, m.recordFailure(ctx, entry,
			types.InvalidTransition("cannot move artifact %s from %s to %s", id, current.Status, status).WithArtifact(id))
	}

	next := current.Clone()
	next.Status = status
	next.UpdatedAt = m.now().UTC()
	if status == artifact.StatusFailed {
		next.ErrorMessage = errorMessage
	}
	if err := m.store.SaveMetadata(next); err != nil {
		return nil, m.recordFailure(ctx, entry, err)
	}
	m.index[id] = next
	m.mirror(ctx, next)
	m.metrics.RecordStatusTransition(string(current.Status), string(status))

	// A stage failure is what error summaries count, so the entry carries it.
	entry.Success = status != artifact.StatusFailed
	if !entry.Success {
		entry.Error = errorMessage
		if entry.Error == "" {
			entry.Error = "artifact marked failed"
		}
		m.noteRunError(ctx, id, entry.Error)
	}
	auditErr := m.record(ctx, entry)

	m.logger.Info("artifact status updated",
		zap.String("artifact_id", id),
		zap.String("from", string(current.Status)),
		zap.String("to", string(status)),
	)
	return next.Clone(), auditErr
}

// LinkArtifacts adds sourceIDs to outputID's sources under relationship.
// Pairs that are already linked are skipped; a call that adds nothing is a
// successful no-op.
func (m *Manager) LinkArtifacts(ctx context.Context, sourceIDs []string, outputID, relationship string) (a *artifact.Artifact, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "link", attribute.String("artifact.id", outputID))
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("link", start, err)
	}()

	if relationship == "" {
		relationship = DefaultRelationship
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}

	sources := dedupe(sourceIDs)
	entry := audit.Entry{
		Operation:  audit.OpLink,
		Action:     "create_relationship",
		ArtifactID: outputID,
		Details: map[string]any{
			"source_artifacts": sources,
			"relationship":     relationship,
		},
	}
	if len(sources) == 0 {
		return nil, m.recordFailure(ctx, entry, types.Validation("at least one source artifact is required").WithArtifact(outputID))
	}
	current, ok := m.index[outputID]
	if !ok {
		return nil, m.recordFailure(ctx, entry, types.NotFound("artifact %s not found", outputID).WithArtifact(outputID))
	}
	entry.Module = current.ProcessingModule
	for _, src := range sources {
		if _, ok := m.index[src]; !ok {
			return nil, m.recordFailure(ctx, entry, types.NotFound("source artifact %s not found", src).WithArtifact(src))
		}
	}

	added := make([]string, 0, len(sources))
	for _, src := range sources {
		if !current.HasSource(src) {
			added = append(added, src)
		}
	}
	if artifact.WouldIntroduceCycle(outputID, added, m.sourcesOf) {
		return nil, m.recordFailure(ctx, entry,
			types.Validation("linking %v to %s would form a cycle", added, outputID).WithArtifact(outputID))
	}

	if len(added) == 0 && hasAll(current.Relationships[relationship], sources) {
		entry.Success = true
		entry.Details["noop"] = true
		return current.Clone(), m.record(ctx, entry)
	}

	next := current.Clone()
	next.SourceArtifacts = append(next.SourceArtifacts, added...)
	if next.Relationships == nil {
		next.Relationships = make(map[string][]string)
	}
	for _, src := range sources {
		if !contains(next.Relationships[relationship], src) {
			next.Relationships[relationship] = append(next.Relationships[relationship], src)
		}
	}
	next.UpdatedAt = m.now().UTC()
	if err := m.store.SaveMetadata(next); err != nil {
		return nil, m.recordFailure(ctx, entry, err)
	}
	m.index[outputID] = next
	m.mirror(ctx, next)

	entry.Success = true
	entry.Details["added"] = added
	auditErr := m.record(ctx, entry)

	m.logger.Info("artifacts linked",
		zap.String("artifact_id", outputID),
		zap.Int("added", len(added)),
		zap.String("relationship", relationship),
	)
	return next.Clone(), auditErr
}

// sourcesOf reads the index; callers hold the lock.
func (m *Manager) sourcesOf(id string) ([]string, bool) {
	a, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return a.SourceArtifacts, true
}

// discardPayload drops a payload whose metadata could not be written.
func (m *Manager) discardPayload(a *artifact.Artifact) {
	if !a.HasFile() {
		return
	}
	r, err := m.store.StageRemoval(a.FilePath)
	if err == nil {
		err = r.Commit()
	}
	if err != nil {
		m.logger.Warn("failed to discard orphaned payload", zap.String("path", a.FilePath), zap.Error(err))
	}
}

func withArtifact(err error, id string) error {
	var e *types.Error
	if errors.As(err, &e) && e.ArtifactID == "" {
		e.WithArtifact(id)
	}
	return err
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func hasAll(ids, want []string) bool {
	for _, id := range want {
		if !contains(ids, id) {
			return false
		}
	}
	return true
}
