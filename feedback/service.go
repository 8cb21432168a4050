package feedback

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agora/internal/metrics"
	"github.com/BaSui01/agora/latency"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/types"
)

// Notifier 接收状态变化通知
type Notifier interface {
	Publish(ctx context.Context, roomID uint)
	PublishAll(ctx context.Context)
}

// TriggerResult 触发产生的条目与外发记录
type TriggerResult struct {
	Entry store.Entry        `json:"entry"`
	Call  store.OutboundCall `json:"call"`
}

// RateResult 评分与调整后的倍率
type RateResult struct {
	Rating     store.ResponseRating `json:"rating"`
	PersonaID  uint                 `json:"persona_id"`
	Previous   float64              `json:"previous_multiplier"`
	Multiplier float64              `json:"multiplier"`
}

// CallRecord 外发记录及其评分（未评分时 Rating 为 nil）
type CallRecord struct {
	store.OutboundCall
	Rating *int `json:"rating"`
}

// Service 触发与评分反馈
type Service struct {
	store     *store.Store
	tracker   *latency.Tracker
	collector *metrics.Collector
	notifier  Notifier
	logger    *zap.Logger
}

// Option 配置 Service
type Option func(*Service)

// WithTracker 为外发记录计时
func WithTracker(t *latency.Tracker) Option {
	return func(s *Service) { s.tracker = t }
}

// WithCollector 记录触发与评分指标
func WithCollector(c *metrics.Collector) Option {
	return func(s *Service) { s.collector = c }
}

// WithNotifier 状态变化后通知订阅者
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService 创建反馈服务
func NewService(st *store.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{store: st, logger: logger.With(zap.String("component", "feedback"))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger 将分析的提议回复写入对话。
// 在一个事务中：条件更新 triggered，追加人格发言条目，写入外发记录。
func (s *Service) Trigger(ctx context.Context, analysisID uint) (*TriggerResult, error) {
	a, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	p, err := s.store.GetPersona(ctx, a.PersonaID)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(a.ProposedResponse)
	if content == "" {
		return nil, types.Validationf("analysis %d has no proposed response", analysisID)
	}
	if a.Triggered {
		return nil, types.Conflictf("analysis %d already triggered", analysisID)
	}

	var res TriggerResult
	op := latency.Op{
		Operation: latency.OpOutboundCall,
		Model:     p.Model,
		Service:   "outbound",
		RoomID:    a.RoomID,
		PersonaID: p.ID,
	}
	err = s.tracker.Track(ctx, op, func(ctx context.Context) error {
		return s.store.Transaction(ctx, func(tx *store.Store) error {
			ok, err := tx.MarkTriggered(ctx, a.ID)
			if err != nil {
				return err
			}
			if !ok {
				return types.Conflictf("analysis %d already triggered", analysisID)
			}

			res.Entry = store.Entry{
				RoomID:  a.RoomID,
				Speaker: p.Name,
				Content: content,
				Origin:  store.PersonaOrigin(p.ID),
			}
			if err := tx.AppendEntry(ctx, &res.Entry); err != nil {
				return err
			}

			res.Call = store.OutboundCall{
				CallID:     uuid.NewString(),
				RoomID:     a.RoomID,
				PersonaID:  p.ID,
				AnalysisID: a.ID,
				EntryID:    res.Entry.ID,
				Rationale:  a.Rationale,
				Content:    content,
				Status:     store.OutboundCommitted,
			}
			return tx.CreateOutboundCall(ctx, &res.Call)
		})
	})
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, types.Internal("trigger analysis", err)
	}

	if s.collector != nil {
		s.collector.RecordTrigger(p.Name)
	}
	if s.notifier != nil {
		s.notifier.Publish(ctx, a.RoomID)
	}
	s.logger.Info("analysis triggered",
		zap.Uint("analysis_id", a.ID),
		zap.String("persona", p.Name),
		zap.String("call_id", res.Call.CallID))
	return &res, nil
}

// Rate 记录一次评分并调整人格倍率。每个分析至多一条评分。
func (s *Service) Rate(ctx context.Context, analysisID uint, rating int) (*RateResult, error) {
	if !ValidRating(rating) {
		return nil, types.Validationf("rating must be -1 or 1, got %d", rating)
	}
	a, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.GetRating(ctx, analysisID)
	if err != nil {
		return nil, types.Internal("read rating", err)
	}
	if existing != nil {
		return nil, types.Conflictf("analysis %d already rated", analysisID)
	}

	res := RateResult{PersonaID: a.PersonaID}
	var personaName string
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		// 行锁保证同一人格的并发评分依次叠加
		p, err := tx.LockPersona(ctx, a.PersonaID)
		if err != nil {
			return err
		}
		personaName = p.Name
		res.Rating = store.ResponseRating{AnalysisID: a.ID, PersonaID: p.ID, Rating: rating}
		if err := tx.CreateRating(ctx, &res.Rating); err != nil {
			return err
		}
		res.Previous = p.Multiplier
		res.Multiplier = AdjustMultiplier(p.Multiplier, rating)
		return tx.SetMultiplier(ctx, p.ID, res.Multiplier)
	})
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, types.Internal("rate analysis", err)
	}

	if s.collector != nil {
		s.collector.RecordRating(personaName, rating, res.Multiplier)
	}
	if s.notifier != nil {
		s.notifier.PublishAll(ctx)
	}
	s.logger.Info("analysis rated",
		zap.Uint("analysis_id", a.ID),
		zap.Int("rating", rating),
		zap.Float64("multiplier", res.Multiplier))
	return &res, nil
}

// History 房间内最近的外发记录及其评分，按时间倒序
func (s *Service) History(ctx context.Context, roomID uint, limit int) ([]CallRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	calls, err := s.store.ListOutboundCalls(ctx, roomID, limit)
	if err != nil {
		return nil, types.Internal("list outbound calls", err)
	}
	ids := make([]uint, len(calls))
	for i, c := range calls {
		ids[i] = c.AnalysisID
	}
	ratings, err := s.store.RatingsFor(ctx, ids)
	if err != nil {
		return nil, types.Internal("load ratings", err)
	}

	out := make([]CallRecord, len(calls))
	for i, c := range calls {
		out[i] = CallRecord{OutboundCall: c}
		if r, ok := ratings[c.AnalysisID]; ok {
			v := r.Rating
			out[i].Rating = &v
		}
	}
	return out, nil
}
