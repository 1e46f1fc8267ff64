// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器. A nil *Collector is valid and records nothing.
type Collector struct {
	// 制品操作指标
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesStored       *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	artifactsIndexed  *prometheus.GaugeVec

	// 审计指标
	auditEntries       *prometheus.CounterVec
	auditWriteFailures prometheus.Counter

	// 完整性与清理指标
	integrityChecks *prometheus.CounterVec
	cleanupResults  *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// 制品操作指标
	c.operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_operations_total",
			Help:      "Total number of artifact store operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_operation_duration_seconds",
			Help:      "Artifact store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"operation"},
	)

	c.bytesStored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_bytes_stored_total",
			Help:      "Total payload bytes written to permanent storage",
		},
		[]string{"artifact_type"},
	)

	c.statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_status_transitions_total",
			Help:      "Total number of artifact status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	c.artifactsIndexed = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifacts_indexed",
			Help:      "Number of artifacts currently in the index",
		},
		[]string{"artifact_type"},
	)

	// 审计指标
	c.auditEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_entries_total",
			Help:      "Total number of audit entries recorded",
		},
		[]string{"operation", "success"},
	)

	c.auditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_failures_total",
			Help:      "Total number of failed audit appends",
		},
	)

	// 完整性与清理指标
	c.integrityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_integrity_checks_total",
			Help:      "Total number of checksum verifications by result",
		},
		[]string{"result"}, // ok, mismatch, missing, error
	)

	c.cleanupResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_cleanup_total",
			Help:      "Artifacts considered by cleanup, by outcome",
		},
		[]string{"outcome"}, // removed, skipped
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 📦 制品指标记录
// =============================================================================

// RecordOperation 记录一次制品操作
func (c *Collector) RecordOperation(operation string, err error, duration time.Duration) {
	if c == nil {
		return
	}
	c.operationsTotal.WithLabelValues(operation, outcome(err)).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordBytesStored 记录写入的负载字节数
func (c *Collector) RecordBytesStored(artifactType string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytesStored.WithLabelValues(artifactType).Add(float64(n))
}

// RecordStatusTransition 记录状态转换
func (c *Collector) RecordStatusTransition(from, to string) {
	if c == nil {
		return
	}
	c.statusTransitions.WithLabelValues(from, to).Inc()
}

// SetIndexedArtifacts 设置索引中的制品数量
func (c *Collector) SetIndexedArtifacts(counts map[string]int) {
	if c == nil {
		return
	}
	for artifactType, n := range counts {
		c.artifactsIndexed.WithLabelValues(artifactType).Set(float64(n))
	}
}

// =============================================================================
// 📝 审计指标记录
// =============================================================================

// RecordAuditEntry 记录审计条目
func (c *Collector) RecordAuditEntry(operation string, success bool) {
	if c == nil {
		return
	}
	label := "true"
	if !success {
		label = "false"
	}
	c.auditEntries.WithLabelValues(operation, label).Inc()
}

// RecordAuditWriteFailure 记录审计写入失败
func (c *Collector) RecordAuditWriteFailure() {
	if c == nil {
		return
	}
	c.auditWriteFailures.Inc()
}

// =============================================================================
// 🔍 完整性与清理指标记录
// =============================================================================

// RecordIntegrityCheck 记录一次校验结果
func (c *Collector) RecordIntegrityCheck(result string) {
	if c == nil {
		return
	}
	c.integrityChecks.WithLabelValues(result).Inc()
}

// RecordCleanup 记录清理结果
func (c *Collector) RecordCleanup(removed, skipped int) {
	if c == nil {
		return
	}
	c.cleanupResults.WithLabelValues("removed").Add(float64(removed))
	c.cleanupResults.WithLabelValues("skipped").Add(float64(skipped))
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// outcome 将错误转换为标签值
func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
