// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 外部调用指标（与 LatencyLog 同源）
	externalCallsTotal   *prometheus.CounterVec
	externalCallDuration *prometheus.HistogramVec
	llmTokensUsed        *prometheus.CounterVec
	latencyLogsDropped   prometheus.Counter

	// 编排指标
	orchestrationDuration prometheus.Histogram
	analysesTotal         *prometheus.CounterVec
	analysisConfidence    *prometheus.HistogramVec

	// 反馈与审核指标
	triggersTotal       *prometheus.CounterVec
	ratingsTotal        *prometheus.CounterVec
	personaMultiplier   *prometheus.GaugeVec
	moderationDecisions *prometheus.CounterVec

	// 缓存 / 推送指标
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	streamClients prometheus.Gauge

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

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

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 外部调用指标
	c.externalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_calls_total",
			Help:      "Total number of instrumented external calls",
		},
		[]string{"operation", "service", "model", "status"},
	)

	c.externalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_call_duration_seconds",
			Help:      "External call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation", "service", "model"},
	)

	c.llmTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"service", "model", "type"}, // type: prompt, completion
	)

	c.latencyLogsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latency_logs_dropped_total",
			Help:      "Latency records dropped because the sink was full or failing",
		},
	)

	// 编排指标
	c.orchestrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "orchestration_pass_duration_seconds",
			Help:      "Duration of one analysis pass over all active personas",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	c.analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of persisted analyses",
		},
		[]string{"persona", "outcome"}, // outcome: ok, provider_error, parse_error
	)

	c.analysisConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_confidence",
			Help:      "Raw confidence reported by personas",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"persona"},
	)

	// 反馈与审核指标
	c.triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_total",
			Help:      "Total number of triggered persona responses",
		},
		[]string{"persona"},
	)

	c.ratingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratings_total",
			Help:      "Total number of response ratings",
		},
		[]string{"persona", "rating"},
	)

	c.personaMultiplier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "persona_multiplier",
			Help:      "Current confidence multiplier per persona",
		},
		[]string{"persona"},
	)

	c.moderationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_decisions_total",
			Help:      "Total number of moderation decisions",
		},
		[]string{"decision"},
	)

	// 缓存 / 推送指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	c.streamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "status_stream_clients",
			Help:      "Connected status stream websocket clients",
		},
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

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🌐 外部调用指标记录
// =============================================================================

// RecordExternalCall 记录一次被计时的外部调用
func (c *Collector) RecordExternalCall(operation, service, model string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	c.externalCallsTotal.WithLabelValues(operation, service, model, status).Inc()
	c.externalCallDuration.WithLabelValues(operation, service, model).Observe(duration.Seconds())
}

// RecordTokens 记录 Token 用量
func (c *Collector) RecordTokens(service, model string, promptTokens, completionTokens int) {
	c.llmTokensUsed.WithLabelValues(service, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(service, model, "completion").Add(float64(completionTokens))
}

// RecordLatencyLogDropped 记录丢弃的延迟日志
func (c *Collector) RecordLatencyLogDropped() {
	c.latencyLogsDropped.Inc()
}

// =============================================================================
// 🎭 编排与反馈指标记录
// =============================================================================

// RecordOrchestrationPass 记录一次编排耗时
func (c *Collector) RecordOrchestrationPass(duration time.Duration) {
	c.orchestrationDuration.Observe(duration.Seconds())
}

// RecordAnalysis 记录一次分析结果
func (c *Collector) RecordAnalysis(persona, outcome string, confidence int) {
	c.analysesTotal.WithLabelValues(persona, outcome).Inc()
	c.analysisConfidence.WithLabelValues(persona).Observe(float64(confidence))
}

// RecordTrigger 记录触发
func (c *Collector) RecordTrigger(persona string) {
	c.triggersTotal.WithLabelValues(persona).Inc()
}

// RecordRating 记录评分与新的倍率
func (c *Collector) RecordRating(persona string, rating int, multiplier float64) {
	c.ratingsTotal.WithLabelValues(persona, strconv.Itoa(rating)).Inc()
	c.personaMultiplier.WithLabelValues(persona).Set(multiplier)
}

// RecordModeration 记录审核结果
func (c *Collector) RecordModeration(decision string) {
	c.moderationDecisions.WithLabelValues(decision).Inc()
}

// =============================================================================
// 💾 缓存 / 推送指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// SetStreamClients 设置推送连接数
func (c *Collector) SetStreamClients(n int) {
	c.streamClients.Set(float64(n))
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
