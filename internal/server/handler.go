package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/artifactflow/artifact/manager"
	"github.com/BaSui01/artifactflow/internal/ctxkeys"
	"github.com/BaSui01/artifactflow/types"
)

// =============================================================================
// 🏥 运维端点
// =============================================================================

// StatsSource 提供 /stats 的数据
type StatsSource interface {
	GetStatistics(ctx context.Context) (*manager.Statistics, error)
}

// HealthCheck 单项就绪检查
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HandlerOptions 运维端点选项
type HandlerOptions struct {
	Stats    StatsSource
	Checks   []HealthCheck
	Verifier *Verifier
	// Gatherer 为空时使用 prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
	Version  string
	Logger   *zap.Logger
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Integrity *VerifyStatus          `json:"integrity,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type handler struct {
	opts   HandlerOptions
	logger *zap.Logger
}

// NewHandler 构建运维路由：
//
//	GET /healthz  存活探针
//	GET /readyz   就绪检查与最近一次完整性校验结果
//	GET /stats    存储统计
//	GET /metrics  Prometheus 指标
func NewHandler(opts HandlerOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "ops_handler"))
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	h := &handler{opts: opts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReady)
	mux.HandleFunc("GET /stats", h.handleStats)
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	return Chain(mux, Recovery(logger), RequestID(), RequestLogger(logger))
}

func (h *handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.opts.Version,
	})
}

func (h *handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.opts.Version,
		Checks:    make(map[string]CheckResult, len(h.opts.Checks)),
	}

	allHealthy := true
	for _, check := range h.opts.Checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false
			h.logger.Warn("readiness check failed",
				zap.String("check", check.Name),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}
		status.Checks[check.Name] = result
	}

	if h.opts.Verifier != nil {
		if vs, ok := h.opts.Verifier.Status(); ok {
			status.Integrity = &vs
			if !vs.OK {
				status.Status = "degraded"
			}
		}
	}

	if !allHealthy {
		status.Status = "unhealthy"
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.opts.Stats == nil {
		h.writeError(w, r, types.NotFound("statistics are not available"))
		return
	}
	stats, err := h.opts.Stats.GetStatistics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// =============================================================================
// 🔧 响应辅助
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 响应头已写出，编码失败无法再上报
	_ = json.NewEncoder(w).Encode(data)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := types.GetErrorCode(err)
	if code == "" {
		code = types.ErrIO
	}
	status := httpStatusFor(code)
	reqID, _ := ctxkeys.RequestID(r.Context())
	h.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", reqID),
		zap.String("code", string(code)),
		zap.Error(err),
	)
	writeJSON(w, status, ErrorResponse{Code: string(code), Message: err.Error(), RequestID: reqID})
}

func httpStatusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrValidation, types.ErrInvalidTransition:
		return http.StatusBadRequest
	case types.ErrPathSecurity:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🧅 中间件
// =============================================================================

// Middleware 类型定义
type Middleware func(http.Handler) http.Handler

// Chain 将多个中间件串联，第一个位于最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Recovery panic 恢复中间件
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", zap.Any("error", err), zap.String("path", r.URL.Path))
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID 沿用客户端的 X-Request-ID，否则生成新 ID，并写入请求上下文
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = "req-" + uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
		})
	}
}

// RequestLogger 请求日志中间件
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)
			reqID, _ := ctxkeys.RequestID(r.Context())
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", reqID),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
