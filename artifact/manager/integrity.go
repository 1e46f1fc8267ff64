package manager

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/artifactflow/artifact/audit"
	"github.com/BaSui01/artifactflow/internal/telemetry"
	"github.com/BaSui01/artifactflow/types"
)

// Integrity check outcomes.
const (
	IntegrityValid     = "valid"
	IntegrityCorrupted = "corrupted"
	IntegrityMissing   = "missing"
	IntegrityError     = "error"
)

// VerifyArtifact recomputes the stored payload digest and compares it with
// the recorded checksum.
func (m *Manager) VerifyArtifact(ctx context.Context, id string) (ok bool, err error) {
	_, span := telemetry.StartSpan(ctx, "verify", attribute.String("artifact.id", id))
	defer func() { telemetry.EndSpan(span, err) }()

	m.mu.RLock()
	a, found := m.index[id]
	var path, sum string
	if found {
		path, sum = a.FilePath, a.Checksum
	}
	m.mu.RUnlock()

	if !found {
		return false, types.NotFound("artifact %s not found", id).WithArtifact(id)
	}
	if path == "" {
		return false, types.Validation("artifact %s has no backing file", id).WithArtifact(id)
	}
	ok, err = m.store.Verify(path, sum)
	m.metrics.RecordIntegrityCheck(integrityResult(ok, err))
	if err != nil {
		return false, withArtifact(err, id)
	}
	if !ok {
		m.logger.Warn("checksum mismatch", zap.String("artifact_id", id), zap.String("path", path))
	}
	return ok, nil
}

// IntegrityReport is the outcome of VerifyAll.
type IntegrityReport struct {
	Checked   int               `json:"checked"`
	Valid     int               `json:"valid"`
	Corrupted []string          `json:"corrupted"`
	Missing   []string          `json:"missing"`
	Errors    map[string]string `json:"errors,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// OK reports whether every payload matched its checksum.
func (r IntegrityReport) OK() bool {
	return len(r.Corrupted) == 0 && len(r.Missing) == 0 && len(r.Errors) == 0
}

type verifyTarget struct {
	id, path, checksum string
}

// VerifyAll checks every payload-bearing artifact in parallel and records one
// integrity_check audit entry with the totals.
func (m *Manager) VerifyAll(ctx context.Context) (report IntegrityReport, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "verify_all")
	defer func() {
		telemetry.EndSpan(span, err)
		m.observe("verify_all", start, err)
	}()

	m.mu.RLock()
	targets := make([]verifyTarget, 0, len(m.index))
	for _, a := range m.index {
		if a.HasFile() {
			targets = append(targets, verifyTarget{id: a.ID, path: a.FilePath, checksum: a.Checksum})
		}
	}
	m.mu.RUnlock()
	sort.Slice(targets, func(i, j int) bool { return targets[i].id < targets[j].id })

	results := make([]string, len(targets))
	messages := make([]string, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.VerifyWorkers)
	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok, err := m.store.Verify(t.path, t.checksum)
			results[i] = integrityResult(ok, err)
			if err != nil {
				messages[i] = err.Error()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	m.dropRemoved(targets, results)

	report = IntegrityReport{Corrupted: []string{}, Missing: []string{}}
	for i, t := range targets {
		if results[i] == "" {
			continue
		}
		m.metrics.RecordIntegrityCheck(results[i])
		report.Checked++
		switch results[i] {
		case IntegrityValid:
			report.Valid++
		case IntegrityCorrupted:
			report.Corrupted = append(report.Corrupted, t.id)
		case IntegrityMissing:
			report.Missing = append(report.Missing, t.id)
		default:
			if report.Errors == nil {
				report.Errors = make(map[string]string)
			}
			report.Errors[t.id] = messages[i]
		}
	}
	report.Duration = time.Since(start)
	span.SetAttributes(
		attribute.Int("artifact.checked", report.Checked),
		attribute.Int("artifact.corrupted", len(report.Corrupted)),
	)

	entry := audit.Entry{
		Operation: audit.OpIntegrityCheck,
		Action:    "verify_all",
		Success:   report.OK(),
		Details: map[string]any{
			"checked":   report.Checked,
			"valid":     report.Valid,
			"corrupted": report.Corrupted,
			"missing":   report.Missing,
		},
	}
	if !entry.Success {
		entry.Error = "integrity check found damaged payloads"
	}
	m.mu.RLock()
	auditErr := m.record(ctx, entry)
	m.mu.RUnlock()

	m.logger.Info("integrity check completed",
		zap.Int("checked", report.Checked),
		zap.Int("corrupted", len(report.Corrupted)),
		zap.Int("missing", len(report.Missing)),
	)
	return report, auditErr
}

// dropRemoved clears missing results for artifacts that left the index while
// the check ran. Their payload went away with them.
func (m *Manager) dropRemoved(targets []verifyTarget, results []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, t := range targets {
		if results[i] != IntegrityMissing {
			continue
		}
		if _, ok := m.index[t.id]; !ok {
			results[i] = ""
		}
	}
}

func integrityResult(ok bool, err error) string {
	switch {
	case err != nil && types.IsCode(err, types.ErrNotFound):
		return IntegrityMissing
	case err != nil:
		return IntegrityError
	case ok:
		return IntegrityValid
	default:
		return IntegrityCorrupted
	}
}
