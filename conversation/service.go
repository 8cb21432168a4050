package conversation

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/orchestrator"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	// MaxSimulatedTurns 单次模拟的最大轮数
	MaxSimulatedTurns = 5
)

// Analyzer 对新条目执行一次分析
type Analyzer interface {
	Analyze(ctx context.Context, entry *store.Entry) (*orchestrator.Result, error)
}

// Notifier 接收状态变化通知
type Notifier interface {
	Publish(ctx context.Context, roomID uint)
}

// Service 对话入口：每条新内容同步驱动一次分析
type Service struct {
	store     *store.Store
	analyzer  Analyzer
	completer orchestrator.Completer
	model     string
	notifier  Notifier
	logger    *zap.Logger
}

// Option 配置 Service
type Option func(*Service)

// WithSimulator 启用对话模拟，model 为生成人类发言所用的模型
func WithSimulator(c orchestrator.Completer, model string) Option {
	return func(s *Service) {
		s.completer = c
		s.model = model
	}
}

// WithNotifier 重置后通知订阅者
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService 创建对话服务
func NewService(st *store.Store, analyzer Analyzer, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:    st,
		analyzer: analyzer,
		logger:   logger.With(zap.String("component", "conversation")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit 追加一条条目并执行分析。房间不存在时创建。
// external 只能经审核队列写入，这里不接受。
func (s *Service) Submit(ctx context.Context, roomName, speaker, content, origin string) (*orchestrator.Result, error) {
	switch origin {
	case "":
		origin = store.OriginHuman
	case store.OriginHuman, store.OriginTranscript, store.OriginSimulated:
	case store.OriginExternal:
		return nil, types.Validationf("origin %q is reserved for moderated submissions", origin)
	default:
		return nil, types.Validationf("unsupported origin %q", origin)
	}
	speaker, content, err := store.ValidateEntry(speaker, content)
	if err != nil {
		return nil, err
	}
	room, err := s.ensureRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}

	entry := &store.Entry{RoomID: room.ID, Speaker: speaker, Content: content, Origin: origin}
	if err := s.store.AppendEntry(ctx, entry); err != nil {
		return nil, types.Internal("append entry", err)
	}
	s.logger.Debug("entry appended",
		zap.Uint("room_id", room.ID),
		zap.Uint("entry_id", entry.ID),
		zap.String("origin", origin))

	// 新条目立即改变已有提议的陈旧度，不等分析结束
	if s.notifier != nil {
		s.notifier.Publish(ctx, room.ID)
	}
	return s.analyzer.Analyze(ctx, entry)
}

// Entries 房间内最近的条目，最旧的在前
func (s *Service) Entries(ctx context.Context, roomName string, limit int) ([]store.Entry, error) {
	room, err := s.findRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.RecentEntries(ctx, room.ID, clampLimit(limit))
	if err != nil {
		return nil, types.Internal("list entries", err)
	}
	return entries, nil
}

// Analyses 房间内最近的分析，最新的在前
func (s *Service) Analyses(ctx context.Context, roomName string, limit int) ([]store.Analysis, error) {
	room, err := s.findRoom(ctx, roomName)
	if err != nil {
		return nil, err
	}
	analyses, err := s.store.ListAnalyses(ctx, room.ID, clampLimit(limit))
	if err != nil {
		return nil, types.Internal("list analyses", err)
	}
	return analyses, nil
}

// Reset 删除房间内的条目、分析与外发记录。人格倍率、评分与延迟日志保留。
func (s *Service) Reset(ctx context.Context, roomName string) error {
	room, err := s.findRoom(ctx, roomName)
	if err != nil {
		return err
	}
	if err := s.store.ResetRoom(ctx, room.ID); err != nil {
		return types.Internal("reset room", err)
	}
	if s.notifier != nil {
		s.notifier.Publish(ctx, room.ID)
	}
	s.logger.Info("room reset", zap.Uint("room_id", room.ID), zap.String("room", room.Name))
	return nil
}

// Room 按名称查找房间
func (s *Service) Room(ctx context.Context, roomName string) (*store.Room, error) {
	return s.findRoom(ctx, roomName)
}

func (s *Service) ensureRoom(ctx context.Context, roomName string) (*store.Room, error) {
	name := strings.TrimSpace(roomName)
	if name == "" {
		return nil, types.Validationf("room is required")
	}
	room, err := s.store.EnsureRoom(ctx, name)
	if err != nil {
		return nil, types.Internal("ensure room", err)
	}
	return room, nil
}

func (s *Service) findRoom(ctx context.Context, roomName string) (*store.Room, error) {
	name := strings.TrimSpace(roomName)
	if name == "" {
		return nil, types.Validationf("room is required")
	}
	return s.store.FindRoom(ctx, name)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
