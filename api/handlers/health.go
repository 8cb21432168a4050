package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/llm"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	checks  []HealthCheck
	timeout time.Duration
	mu      sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // "pass", "warn", "fail"
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger,
		checks:  make([]HealthCheck, 0),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（简单健康检查）
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 活跃度探针，只说明进程在运行）
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady 处理 /ready 请求（就绪检查）。
// 必需依赖失败返回 503；可选依赖（Provider 家族等）失败只标记 degraded。
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult),
	}

	failed, degraded := false, false
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		_, optional := check.(optionalCheck)
		result := CheckResult{
			Status:   "pass",
			Latency:  latency.String(),
			Optional: optional,
		}

		if err != nil {
			result.Message = err.Error()
			if optional {
				result.Status = "warn"
				degraded = true
			} else {
				result.Status = "fail"
				failed = true
			}

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Bool("optional", optional),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}

		status.Checks[check.Name()] = result
	}

	switch {
	case failed:
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
	case degraded:
		status.Status = "degraded"
		WriteJSON(w, http.StatusOK, status)
	default:
		WriteJSON(w, http.StatusOK, status)
	}
}

// HandleVersion 处理 /version 请求
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// optionalCheck 标记失败时只降级不摘流的检查
type optionalCheck interface {
	optional()
}

// DatabaseHealthCheck 数据库健康检查
type DatabaseHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewDatabaseHealthCheck 创建数据库健康检查
func NewDatabaseHealthCheck(name string, ping func(ctx context.Context) error) *DatabaseHealthCheck {
	return &DatabaseHealthCheck{name: name, ping: ping}
}

func (c *DatabaseHealthCheck) Name() string { return c.name }

func (c *DatabaseHealthCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// RedisHealthCheck Redis 健康检查。状态缓存不可用时排名仍可直接计算，所以是可选项。
type RedisHealthCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewRedisHealthCheck 创建 Redis 健康检查
func NewRedisHealthCheck(name string, ping func(ctx context.Context) error) *RedisHealthCheck {
	return &RedisHealthCheck{name: name, ping: ping}
}

func (c *RedisHealthCheck) Name() string { return c.name }

func (c *RedisHealthCheck) Check(ctx context.Context) error { return c.ping(ctx) }

func (c *RedisHealthCheck) optional() {}

// ProviderHealthSource 汇报各模型家族健康状况
type ProviderHealthSource interface {
	Health(ctx context.Context) map[llm.Family]*llm.HealthStatus
}

// ProviderHealthCheck 模型家族健康检查。单个家族故障只影响对应人格，记为可选项。
type ProviderHealthCheck struct {
	source ProviderHealthSource
}

// NewProviderHealthCheck 创建 Provider 健康检查
func NewProviderHealthCheck(source ProviderHealthSource) *ProviderHealthCheck {
	return &ProviderHealthCheck{source: source}
}

func (c *ProviderHealthCheck) Name() string { return "providers" }

func (c *ProviderHealthCheck) Check(ctx context.Context) error {
	var unhealthy []string
	for family, st := range c.source.Health(ctx) {
		if st == nil || !st.Healthy {
			unhealthy = append(unhealthy, string(family))
		}
	}
	if len(unhealthy) == 0 {
		return nil
	}
	sort.Strings(unhealthy)
	return fmt.Errorf("unhealthy provider families: %v", unhealthy)
}

func (c *ProviderHealthCheck) optional() {}
