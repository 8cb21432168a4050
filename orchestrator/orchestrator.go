package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agora/internal/metrics"
	"github.com/BaSui01/agora/latency"
	"github.com/BaSui01/agora/llm"
	"github.com/BaSui01/agora/llm/tokenizer"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/types"
)

// 分析结果分类，用于指标与日志
const (
	OutcomeOK            = "ok"
	OutcomeProviderError = "provider_error"
	OutcomeParseError    = "parse_error"
	OutcomeTimeout       = "timeout"
)

const maxErrorLen = 1000

// Completer 按模型完成一次对话补全，由 llm.Router 实现
type Completer interface {
	Complete(ctx context.Context, model string, messages []llm.Message, structured bool, opts ...llm.CallOption) (string, error)
}

// Notifier 在房间状态变化后接收通知（缓存失效与推送）
type Notifier interface {
	Publish(ctx context.Context, roomID uint)
}

// Config 编排参数
type Config struct {
	ContextWindow    int
	MaxContextTokens int
	PersonaTimeout   time.Duration
	MaxParallel      int
	Temperature      float32
	MaxTokens        int
}

// DefaultConfig 返回默认编排参数
func DefaultConfig() Config {
	return Config{
		ContextWindow:  10,
		PersonaTimeout: 45 * time.Second,
		MaxParallel:    8,
		Temperature:    0.7,
		MaxTokens:      600,
	}
}

// Result 一次编排的产出
type Result struct {
	Entry    store.Entry      `json:"entry"`
	Analyses []store.Analysis `json:"analyses"`
}

// Orchestrator 将新条目分发给所有启用人格并持久化每个人格的分析。
// 单个人格失败只影响它自己的那条分析。
type Orchestrator struct {
	store     *store.Store
	completer Completer
	config    Config
	collector *metrics.Collector
	tracker   *latency.Tracker
	notifier  Notifier
	counter   func(model string) tokenizer.Counter
	logger    *zap.Logger
}

// Option 配置 Orchestrator
type Option func(*Orchestrator)

// WithCollector 记录编排指标
func WithCollector(c *metrics.Collector) Option {
	return func(o *Orchestrator) { o.collector = c }
}

// WithTracker 把结构化输出的解析也记为一次延迟记录，解析失败时 success=false
func WithTracker(t *latency.Tracker) Option {
	return func(o *Orchestrator) { o.tracker = t }
}

// WithNotifier 编排结束后通知状态变化
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithTokenCounter 替换上下文 Token 计数器
func WithTokenCounter(fn func(model string) tokenizer.Counter) Option {
	return func(o *Orchestrator) { o.counter = fn }
}

// New 创建编排器，非法参数回退为默认值
func New(st *store.Store, completer Completer, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = def.ContextWindow
	}
	if cfg.PersonaTimeout <= 0 {
		cfg.PersonaTimeout = def.PersonaTimeout
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = def.MaxParallel
	}

	o := &Orchestrator{
		store:     st,
		completer: completer,
		config:    cfg,
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
	o.counter = func(model string) tokenizer.Counter { return tokenizer.ForModel(model, o.logger) }
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Analyze 对条目执行一次分析。
//
// 启用人格在开始时取一次快照；每个人格都会写入一条分析，
// 调用失败、超时或输出无法解析时写入置信度为 0 的分析。
// 只有读取快照或写入分析失败时才返回错误。
//
// 条目在调用前已经写入，因此整次分析脱离调用方的取消：
// 客户端断开后每个人格仍各自受 PersonaTimeout 约束并落库。
func (o *Orchestrator) Analyze(ctx context.Context, entry *store.Entry) (*Result, error) {
	start := time.Now()
	ctx = types.WithRoomID(context.WithoutCancel(ctx), entry.RoomID)

	personas, err := o.store.ActivePersonas(ctx)
	if err != nil {
		return nil, types.Internal("load personas", err)
	}
	window, err := o.store.RecentEntries(ctx, entry.RoomID, o.config.ContextWindow)
	if err != nil {
		return nil, types.Internal("load context window", err)
	}
	lines := renderLines(window)

	analyses := make([]store.Analysis, len(personas))

	var g errgroup.Group
	g.SetLimit(o.config.MaxParallel)
	for i := range personas {
		p := personas[i]
		g.Go(func() error {
			analyses[i] = o.analyzePersona(ctx, p, entry, lines)
			return nil
		})
	}
	_ = g.Wait()

	err = o.store.Transaction(ctx, func(tx *store.Store) error {
		for i := range analyses {
			if err := tx.CreateAnalysis(ctx, &analyses[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, types.Internal("persist analyses", err)
	}

	if o.collector != nil {
		o.collector.RecordOrchestrationPass(time.Since(start))
	}
	if o.notifier != nil {
		o.notifier.Publish(ctx, entry.RoomID)
	}

	o.logger.Info("analysis pass completed",
		zap.Uint("room_id", entry.RoomID),
		zap.Uint("entry_id", entry.ID),
		zap.Int("personas", len(personas)),
		zap.Duration("duration", time.Since(start)))

	return &Result{Entry: *entry, Analyses: analyses}, nil
}

func (o *Orchestrator) analyzePersona(ctx context.Context, p store.Persona, entry *store.Entry, lines []string) store.Analysis {
	a := store.Analysis{
		RoomID:    entry.RoomID,
		PersonaID: p.ID,
		EntryID:   entry.ID,
		Model:     p.Model,
	}

	if o.config.MaxContextTokens > 0 {
		lines = tokenizer.FitLines(o.counter(p.Model), lines, o.config.MaxContextTokens)
	}

	callCtx, cancel := context.WithTimeout(types.WithPersonaID(ctx, p.ID), o.config.PersonaTimeout)
	defer cancel()

	opts := []llm.CallOption{llm.WithTemperature(o.config.Temperature)}
	if o.config.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(o.config.MaxTokens))
	}

	text, err := o.completer.Complete(callCtx, p.Model, buildMessages(p, lines), true, opts...)
	if err != nil {
		outcome := OutcomeProviderError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = OutcomeTimeout
		}
		return o.noOpinion(a, p, outcome, err)
	}

	var v Verdict
	err = o.tracker.Track(ctx, latency.Op{
		Operation: latency.OpLLMParse,
		Model:     p.Model,
		Service:   "orchestrator",
		PersonaID: p.ID,
	}, func(context.Context) error {
		return llm.DecodeStructured(text, &v)
	})
	if err != nil {
		return o.noOpinion(a, p, OutcomeParseError, err)
	}

	a.Confidence = v.NormalizedConfidence()
	a.ShouldSpeak = v.ShouldSpeak
	a.Rationale = strings.TrimSpace(v.Analysis)
	a.ProposedResponse = strings.TrimSpace(v.Response)
	o.record(p, OutcomeOK, a.Confidence)
	return a
}

// noOpinion 将失败记为不发言、置信度 0 的分析
func (o *Orchestrator) noOpinion(a store.Analysis, p store.Persona, outcome string, err error) store.Analysis {
	o.logger.Warn("persona analysis failed",
		zap.Uint("persona_id", p.ID),
		zap.String("persona", p.Name),
		zap.String("model", p.Model),
		zap.String("outcome", outcome),
		zap.Error(err))

	a.Confidence = 0
	a.ShouldSpeak = false
	a.Rationale = fmt.Sprintf("no opinion: %s", strings.ReplaceAll(outcome, "_", " "))
	a.Error = truncate(err.Error(), maxErrorLen)
	o.record(p, outcome, 0)
	return a
}

func (o *Orchestrator) record(p store.Persona, outcome string, confidence int) {
	if o.collector != nil {
		o.collector.RecordAnalysis(p.Name, outcome, confidence)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
