package metrics

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.operationsTotal)
	assert.NotNil(t, collector.operationDuration)
	assert.NotNil(t, collector.auditEntries)
	assert.NotNil(t, collector.integrityChecks)
}

func TestCollector_RecordOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordOperation("create", nil, 10*time.Millisecond)
	collector.RecordOperation("create", nil, 20*time.Millisecond)
	collector.RecordOperation("create", errors.New("boom"), time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.operationsTotal.WithLabelValues("create", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.operationsTotal.WithLabelValues("create", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.operationDuration))
}

func TestCollector_RecordBytesAndTransitions(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordBytesStored("video_raw", 1024)
	collector.RecordBytesStored("video_raw", 0)
	collector.RecordStatusTransition("pending", "in_progress")

	assert.Equal(t, float64(1024), testutil.ToFloat64(collector.bytesStored.WithLabelValues("video_raw")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.statusTransitions.WithLabelValues("pending", "in_progress")))
}

func TestCollector_SetIndexedArtifacts(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.SetIndexedArtifacts(map[string]int{"log": 3, "text_raw": 1})
	collector.SetIndexedArtifacts(map[string]int{"log": 2})

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.artifactsIndexed.WithLabelValues("log")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.artifactsIndexed.WithLabelValues("text_raw")))
}

func TestCollector_Audit(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordAuditEntry("link", true)
	collector.RecordAuditEntry("link", false)
	collector.RecordAuditWriteFailure()

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.auditEntries.WithLabelValues("link", "true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.auditEntries.WithLabelValues("link", "false")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.auditWriteFailures))
}

func TestCollector_IntegrityAndCleanup(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordIntegrityCheck("ok")
	collector.RecordIntegrityCheck("mismatch")
	collector.RecordCleanup(3, 1)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.integrityChecks.WithLabelValues("mismatch")))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.cleanupResults.WithLabelValues("removed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.cleanupResults.WithLabelValues("skipped")))
}

func TestCollector_RecordDB(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("catalog", 4, 2)
	collector.RecordDBQuery("catalog", "upsert", 5*time.Millisecond)

	assert.Equal(t, float64(4), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("catalog")))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("catalog")))
	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordOperation("create", nil, time.Second)
		collector.RecordBytesStored("log", 10)
		collector.RecordStatusTransition("a", "b")
		collector.SetIndexedArtifacts(map[string]int{"log": 1})
		collector.RecordAuditEntry("x", true)
		collector.RecordAuditWriteFailure()
		collector.RecordIntegrityCheck("ok")
		collector.RecordCleanup(1, 1)
		collector.RecordDBConnections("db", 1, 1)
		collector.RecordDBQuery("db", "q", time.Second)
	})
}
