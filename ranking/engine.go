package ranking

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/internal/cache"
	"github.com/BaSui01/agora/internal/metrics"
	"github.com/BaSui01/agora/store"
)

const statusCacheType = "room_status"

// Engine 基于持久化状态计算房间内各人格的有效置信度与排名。
// 配置了 Redis 时结果按房间缓存，写路径负责调用 Invalidate。
type Engine struct {
	store     *store.Store
	cache     *cache.Manager
	ttl       time.Duration
	collector *metrics.Collector
	logger    *zap.Logger
}

// Option 配置 Engine
type Option func(*Engine)

// WithCache 启用房间状态缓存
func WithCache(c *cache.Manager, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = c
		e.ttl = ttl
	}
}

// WithCollector 记录缓存命中指标
func WithCollector(c *metrics.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// NewEngine 创建排名引擎
func NewEngine(st *store.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  st,
		logger: logger.With(zap.String("component", "ranking")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func statusKey(roomID uint) string {
	return "status:" + strconv.FormatUint(uint64(roomID), 10)
}

// RoomStatus 返回房间内所有启用人格的状态，已按排名排序
func (e *Engine) RoomStatus(ctx context.Context, roomID uint) ([]PersonaStatus, error) {
	if e.cache != nil {
		var cached []PersonaStatus
		err := e.cache.GetJSON(ctx, statusKey(roomID), &cached)
		if err == nil {
			e.recordCache(true)
			return cached, nil
		}
		e.recordCache(false)
		if !cache.IsCacheMiss(err) {
			e.logger.Debug("status cache read failed", zap.Uint("room_id", roomID), zap.Error(err))
		}
	}

	statuses, err := e.compute(ctx, roomID)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetJSON(ctx, statusKey(roomID), statuses, e.ttl); err != nil {
			e.logger.Debug("status cache write failed", zap.Uint("room_id", roomID), zap.Error(err))
		}
	}
	return statuses, nil
}

// PersonaStatus 返回单个人格的状态；停用人格不参与排名
func (e *Engine) PersonaStatus(ctx context.Context, roomID, personaID uint) (*PersonaStatus, error) {
	p, err := e.store.GetPersona(ctx, personaID)
	if err != nil {
		return nil, err
	}

	statuses, err := e.RoomStatus(ctx, roomID)
	if err != nil {
		return nil, err
	}
	for i := range statuses {
		if statuses[i].PersonaID == personaID {
			s := statuses[i]
			return &s, nil
		}
	}

	names, err := e.personaNames(ctx)
	if err != nil {
		return nil, err
	}
	s, err := e.evaluate(ctx, roomID, *p, names)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// LEDStatus 返回已排名人格，供按钮/LED 控制器使用
func (e *Engine) LEDStatus(ctx context.Context, roomID uint) ([]LEDStatus, error) {
	statuses, err := e.RoomStatus(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return LEDStatuses(statuses), nil
}

// Invalidate 清除房间状态缓存
func (e *Engine) Invalidate(ctx context.Context, roomIDs ...uint) {
	if e.cache == nil || len(roomIDs) == 0 {
		return
	}
	keys := make([]string, len(roomIDs))
	for i, id := range roomIDs {
		keys[i] = statusKey(id)
	}
	if err := e.cache.Delete(ctx, keys...); err != nil {
		e.logger.Warn("status cache invalidation failed", zap.Error(err))
	}
}

// InvalidateAll 清除所有房间的状态缓存，人格倍率或配置变化时使用
func (e *Engine) InvalidateAll(ctx context.Context) {
	if e.cache == nil {
		return
	}
	rooms, err := e.store.ListRooms(ctx)
	if err != nil {
		e.logger.Warn("list rooms for invalidation failed", zap.Error(err))
		return
	}
	ids := make([]uint, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	e.Invalidate(ctx, ids...)
}

func (e *Engine) compute(ctx context.Context, roomID uint) ([]PersonaStatus, error) {
	personas, err := e.store.ListPersonas(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(personas))
	for _, p := range personas {
		names[p.Name] = struct{}{}
	}

	type pending struct {
		persona  store.Persona
		analysis *store.Analysis
	}
	var (
		items    []pending
		minEntry uint
		haveAny  bool
	)
	for _, p := range personas {
		if !p.Active {
			continue
		}
		a, err := e.store.LatestActiveAnalysis(ctx, roomID, p.ID)
		if err != nil {
			return nil, err
		}
		if a != nil && (!haveAny || a.EntryID < minEntry) {
			minEntry = a.EntryID
			haveAny = true
		}
		items = append(items, pending{persona: p, analysis: a})
	}

	var later []store.Entry
	if haveAny {
		later, err = e.store.EntriesAfter(ctx, roomID, minEntry)
		if err != nil {
			return nil, err
		}
	}

	statuses := make([]PersonaStatus, 0, len(items))
	for _, it := range items {
		statuses = append(statuses, build(it.persona, it.analysis, entriesAfter(later, it.analysis), names))
	}
	return Rank(statuses), nil
}

func (e *Engine) evaluate(ctx context.Context, roomID uint, p store.Persona, names map[string]struct{}) (PersonaStatus, error) {
	a, err := e.store.LatestActiveAnalysis(ctx, roomID, p.ID)
	if err != nil {
		return PersonaStatus{}, err
	}
	var later []store.Entry
	if a != nil {
		later, err = e.store.EntriesAfter(ctx, roomID, a.EntryID)
		if err != nil {
			return PersonaStatus{}, err
		}
	}
	return build(p, a, later, names), nil
}

func (e *Engine) personaNames(ctx context.Context) (map[string]struct{}, error) {
	personas, err := e.store.ListPersonas(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(personas))
	for _, p := range personas {
		names[p.Name] = struct{}{}
	}
	return names, nil
}

func (e *Engine) recordCache(hit bool) {
	if e.collector == nil {
		return
	}
	if hit {
		e.collector.RecordCacheHit(statusCacheType)
	} else {
		e.collector.RecordCacheMiss(statusCacheType)
	}
}

// entriesAfter 返回 entries 中晚于分析所依据条目的部分
func entriesAfter(entries []store.Entry, a *store.Analysis) []store.Entry {
	if a == nil {
		return nil
	}
	for i, en := range entries {
		if en.ID > a.EntryID {
			return entries[i:]
		}
	}
	return nil
}

func build(p store.Persona, a *store.Analysis, later []store.Entry, names map[string]struct{}) PersonaStatus {
	s := PersonaStatus{
		PersonaID:  p.ID,
		Name:       p.Name,
		Color:      p.Color,
		Model:      p.Model,
		Multiplier: p.Multiplier,
	}
	if a == nil {
		return s
	}

	s.AnalysisID = a.ID
	s.EntryID = a.EntryID
	s.RawConfidence = a.Confidence
	s.Staleness = Staleness(later, names)
	s.DecayFactor = DecayFactor(s.Staleness)
	s.EffectiveConfidence = EffectiveConfidence(a.Confidence, s.Staleness, p.Multiplier)
	s.Eligible = IsEligible(s.EffectiveConfidence)
	s.ProposedResponse = a.ProposedResponse
	s.Rationale = a.Rationale
	return s
}
