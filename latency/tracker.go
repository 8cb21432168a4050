package latency

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/agora/internal/metrics"
	"github.com/BaSui01/agora/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/agora/latency"

// 常用操作名
const (
	OpLLMComplete  = "llm.complete"
	OpLLMParse     = "llm.parse"
	OpOutboundCall = "outbound.call"
)

// Op 描述一次被计时的外部调用
type Op struct {
	Operation string
	Model     string
	Service   string
	RoomID    uint
	PersonaID uint
	Metadata  map[string]any
}

// Record 一条延迟记录
type Record struct {
	Operation string
	Model     string
	Service   string
	Duration  time.Duration
	Success   bool
	Error     string
	RoomID    uint
	PersonaID uint
	Metadata  map[string]any
	At        time.Time
}

// Sink 延迟记录的持久化目标
type Sink interface {
	Write(ctx context.Context, r Record) error
}

// Option 配置 Tracker
type Option func(*Tracker)

// WithMetrics 同步写入 Prometheus 指标
func WithMetrics(c *metrics.Collector) Option {
	return func(t *Tracker) { t.metrics = c }
}

// WithQueueSize 设置异步队列长度
func WithQueueSize(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.queueSize = n
		}
	}
}

// WithWriteTimeout 设置单次 sink 写入超时
func WithWriteTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.writeTimeout = d
		}
	}
}

// Tracker 为外部调用计时并异步落库。
//
// 记录失败只会被记日志并丢弃，Track 总是原样返回 fn 的结果。
// 队列满时直接丢弃记录，调用方不会被 sink 阻塞。
type Tracker struct {
	sink         Sink
	metrics      *metrics.Collector
	tracer       trace.Tracer
	logger       *zap.Logger
	queueSize    int
	writeTimeout time.Duration

	mu      sync.RWMutex
	closed  bool
	queue   chan Record
	done    chan struct{}
	dropped atomic.Int64
}

// NewTracker 创建 Tracker 并启动后台写入协程，使用完毕后需调用 Close。
func NewTracker(sink Sink, logger *zap.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracker{
		sink:         sink,
		tracer:       otel.Tracer(instrumentationName),
		logger:       logger.With(zap.String("component", "latency")),
		queueSize:    256,
		writeTimeout: 2 * time.Second,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.queue = make(chan Record, t.queueSize)

	go t.run()
	return t
}

// Track 执行 fn 并记录耗时。RoomID/PersonaID 未指定时从 ctx 中读取。
func (t *Tracker) Track(ctx context.Context, op Op, fn func(ctx context.Context) error) error {
	if t == nil {
		return fn(ctx)
	}
	if op.RoomID == 0 {
		op.RoomID, _ = types.RoomID(ctx)
	}
	if op.PersonaID == 0 {
		op.PersonaID, _ = types.PersonaID(ctx)
	}

	ctx, span := t.tracer.Start(ctx, op.Operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agora.service", op.Service),
			attribute.String("agora.model", op.Model),
			attribute.Int64("agora.room_id", int64(op.RoomID)),
			attribute.Int64("agora.persona_id", int64(op.PersonaID)),
		))

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	rec := Record{
		Operation: op.Operation,
		Model:     op.Model,
		Service:   op.Service,
		Duration:  elapsed,
		Success:   err == nil,
		RoomID:    op.RoomID,
		PersonaID: op.PersonaID,
		Metadata:  op.Metadata,
		At:        start,
	}
	if err != nil {
		rec.Error = truncate(err.Error(), 1000)
	}

	if t.metrics != nil {
		t.metrics.RecordExternalCall(op.Operation, op.Service, op.Model, rec.Success, elapsed)
	}
	t.enqueue(rec)

	return err
}

// Dropped 返回被丢弃的记录数
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

// Close 停止接收新记录并等待队列写完，或直到 ctx 结束。
func (t *Tracker) Close(ctx context.Context) error {
	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.queue)
	}
	t.mu.Unlock()

	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Tracker) enqueue(rec Record) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.sink == nil {
		return
	}
	if t.closed {
		t.drop()
		return
	}
	select {
	case t.queue <- rec:
	default:
		t.drop()
		t.logger.Warn("latency queue full, record dropped",
			zap.String("operation", rec.Operation),
			zap.String("model", rec.Model))
	}
}

func (t *Tracker) drop() {
	t.dropped.Add(1)
	if t.metrics != nil {
		t.metrics.RecordLatencyLogDropped()
	}
}

func (t *Tracker) run() {
	defer close(t.done)

	for rec := range t.queue {
		ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
		if err := t.sink.Write(ctx, rec); err != nil {
			t.drop()
			t.logger.Warn("failed to write latency record",
				zap.String("operation", rec.Operation),
				zap.String("model", rec.Model),
				zap.Error(err))
		}
		cancel()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
