package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact/manager"
)

// IntegritySource 执行全量校验
type IntegritySource interface {
	VerifyAll(ctx context.Context) (manager.IntegrityReport, error)
}

// VerifyStatus 最近一次校验的摘要
type VerifyStatus struct {
	LastRun   time.Time `json:"last_run"`
	OK        bool      `json:"ok"`
	Checked   int       `json:"checked"`
	Corrupted []string  `json:"corrupted,omitempty"`
	Missing   []string  `json:"missing,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Verifier 按固定间隔执行全量校验并保存最近结果
type Verifier struct {
	src      IntegritySource
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.RWMutex
	status *VerifyStatus
}

// NewVerifier 创建周期校验器
func NewVerifier(src IntegritySource, interval time.Duration, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{
		src:      src,
		interval: interval,
		logger:   logger.With(zap.String("component", "verifier")),
		now:      time.Now,
	}
}

// Run 立即校验一次，之后每个间隔校验一次，直到 ctx 结束
func (v *Verifier) Run(ctx context.Context) {
	if v.interval <= 0 {
		return
	}
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	v.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一次校验并记录结果
func (v *Verifier) RunOnce(ctx context.Context) VerifyStatus {
	report, err := v.src.VerifyAll(ctx)
	st := VerifyStatus{
		LastRun:   v.now(),
		OK:        err == nil && report.OK(),
		Checked:   report.Checked,
		Corrupted: report.Corrupted,
		Missing:   report.Missing,
	}
	switch {
	case err != nil:
		st.Error = err.Error()
		v.logger.Error("integrity verification failed", zap.Error(err))
	case !st.OK:
		v.logger.Warn("integrity verification found problems",
			zap.Int("checked", report.Checked),
			zap.Strings("corrupted", report.Corrupted),
			zap.Strings("missing", report.Missing),
			zap.Int("errors", len(report.Errors)),
		)
	default:
		v.logger.Info("integrity verification passed",
			zap.Int("checked", report.Checked),
			zap.Duration("duration", report.Duration),
		)
	}

	v.mu.Lock()
	v.status = &st
	v.mu.Unlock()
	return st
}

// Status 返回最近一次结果；尚未校验时 ok 为 false
func (v *Verifier) Status() (VerifyStatus, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.status == nil {
		return VerifyStatus{}, false
	}
	return *v.status, true
}
