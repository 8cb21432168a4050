package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/BaSui01/agora/internal/metrics"
	"github.com/BaSui01/agora/latency"
	"go.uber.org/zap"
)

// =============================================================================
// 🧭 Router
// =============================================================================

// Router 按静态模型表把请求分发到对应家族的 Provider。
// 每次调用都经过 latency.Tracker 计时，不做重试；可选按家族熔断。
type Router struct {
	registry   *ModelRegistry
	providers  map[Family]Provider
	breakerCfg *BreakerConfig
	breakers   map[Family]*breaker
	tracker    *latency.Tracker
	collector  *metrics.Collector
	logger     *zap.Logger
}

// RouterOption 配置 Router
type RouterOption func(*Router)

// WithProvider 注册某个家族的 Provider
func WithProvider(f Family, p Provider) RouterOption {
	return func(r *Router) {
		if p != nil {
			r.providers[f] = p
		}
	}
}

// WithTracker 设置延迟记录器
func WithTracker(t *latency.Tracker) RouterOption {
	return func(r *Router) { r.tracker = t }
}

// WithCollector 设置 Token 用量指标
func WithCollector(c *metrics.Collector) RouterOption {
	return func(r *Router) { r.collector = c }
}

// WithBreaker 为每个家族启用熔断
func WithBreaker(cfg BreakerConfig) RouterOption {
	return func(r *Router) { r.breakerCfg = &cfg }
}

// NewRouter 创建 Router
func NewRouter(registry *ModelRegistry, logger *zap.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		registry:  registry,
		providers: make(map[Family]Provider),
		logger:    logger.With(zap.String("component", "llm_router")),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breakerCfg != nil {
		r.breakers = make(map[Family]*breaker, len(r.providers))
		for f := range r.providers {
			r.breakers[f] = newBreaker(f, *r.breakerCfg, r.logger)
		}
	}
	return r
}

// BreakerState 返回家族的熔断状态，未启用熔断时恒为 BreakerClosed
func (r *Router) BreakerState(f Family) BreakerState {
	if b := r.breakers[f]; b != nil {
		return b.current()
	}
	return BreakerClosed
}

// Registry 返回模型表
func (r *Router) Registry() *ModelRegistry { return r.registry }

// Families 返回已配置凭据的模型家族
func (r *Router) Families() []Family {
	out := make([]Family, 0, len(r.providers))
	for f := range r.providers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// callOptions 单次调用参数
type callOptions struct {
	temperature     float32
	maxTokens       int
	defaultFallback bool
}

// CallOption 调整单次调用
type CallOption func(*callOptions)

// WithTemperature 设置采样温度
func WithTemperature(t float32) CallOption {
	return func(o *callOptions) { o.temperature = t }
}

// WithMaxTokens 设置最大输出 Token
func WithMaxTokens(n int) CallOption {
	return func(o *callOptions) { o.maxTokens = n }
}

// WithDefaultFallback 未知模型时回退到默认模型而不是失败
func WithDefaultFallback() CallOption {
	return func(o *callOptions) { o.defaultFallback = true }
}

// Complete 调用 model 对应的后端并返回文本。
//
// structured 为 true 时，支持 JSON 模式的后端以 JSON 对象模式请求；
// 其余后端返回文本中第一个完整的 JSON 对象（找不到时返回原文，由调用方解析失败）。
func (r *Router) Complete(ctx context.Context, model string, messages []Message, structured bool, opts ...CallOption) (string, error) {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	family, err := r.registry.Resolve(model)
	if err != nil {
		if !o.defaultFallback {
			return "", err
		}
		fallback, f := r.registry.ResolveOrDefault(model)
		r.logger.Warn("unknown model, falling back to default",
			zap.String("model", model),
			zap.String("fallback", fallback))
		model, family = fallback, f
	}

	p, ok := r.providers[family]
	if !ok {
		return "", &Error{
			Code:       ErrProviderUnavailable,
			Message:    fmt.Sprintf("no credentials configured for %s models", family),
			HTTPStatus: http.StatusServiceUnavailable,
			Provider:   string(family),
		}
	}

	b := r.breakers[family]
	if b != nil {
		if err := b.allow(); err != nil {
			return "", err
		}
	}

	req := &ChatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
		JSONMode:    structured && p.SupportsJSONMode(),
	}

	var text string
	err = r.tracker.Track(ctx, latency.Op{
		Operation: latency.OpLLMComplete,
		Model:     model,
		Service:   string(family),
		Metadata:  map[string]any{"structured": structured, "json_mode": req.JSONMode},
	}, func(ctx context.Context) error {
		resp, err := p.Completion(ctx, req)
		if err != nil {
			return err
		}
		if r.collector != nil {
			r.collector.RecordTokens(string(family), model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		}
		text, err = FirstContent(resp)
		return err
	})
	if b != nil {
		b.record(err)
	}
	if err != nil {
		r.logger.Debug("completion failed",
			zap.String("model", model),
			zap.String("family", string(family)),
			zap.Error(err))
		return "", err
	}

	if structured {
		if obj, ok := ExtractJSONObject(text); ok {
			return obj, nil
		}
	}
	return text, nil
}

// Health 对所有已配置的 Provider 做健康检查，熔断中的家族直接报告不健康
func (r *Router) Health(ctx context.Context) map[Family]*HealthStatus {
	out := make(map[Family]*HealthStatus, len(r.providers))
	for f, p := range r.providers {
		if r.BreakerState(f) == BreakerOpen {
			out[f] = &HealthStatus{Healthy: false}
			continue
		}
		st, err := p.HealthCheck(ctx)
		if err != nil || st == nil {
			st = &HealthStatus{Healthy: false}
		}
		out[f] = st
	}
	return out
}
