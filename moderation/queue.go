package moderation

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/internal/metrics"
	"github.com/BaSui01/agora/orchestrator"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/types"
)

const (
	defaultListLimit  = 100
	anonymousReviewer = "anonymous"
)

// Analyzer 对新条目执行分析，由 orchestrator.Orchestrator 实现
type Analyzer interface {
	Analyze(ctx context.Context, entry *store.Entry) (*orchestrator.Result, error)
}

// Notifier 接收房间状态变化通知
type Notifier interface {
	Publish(ctx context.Context, roomID uint)
}

// Review 审核信息。Speaker/Content 非空时覆盖原始值。
type Review struct {
	Reviewer string  `json:"reviewer,omitempty"`
	Note     string  `json:"note,omitempty"`
	Speaker  *string `json:"speaker,omitempty"`
	Content  *string `json:"content,omitempty"`
}

// ApproveResult 审核通过的结果
type ApproveResult struct {
	Submission store.PendingSubmission `json:"submission"`
	Entry      store.Entry             `json:"entry"`
	Analyses   []store.Analysis        `json:"analyses"`
}

// Queue 外部来源内容的审核队列：pending → approved | rejected，终态不可再变
type Queue struct {
	store     *store.Store
	analyzer  Analyzer
	collector *metrics.Collector
	notifier  Notifier
	logger    *zap.Logger
}

// Option 配置 Queue
type Option func(*Queue)

// WithNotifier 审核通过写入条目后立即通知
func WithNotifier(n Notifier) Option {
	return func(q *Queue) { q.notifier = n }
}

// NewQueue 创建审核队列
func NewQueue(st *store.Store, analyzer Analyzer, collector *metrics.Collector, logger *zap.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	q := &Queue{
		store:     st,
		analyzer:  analyzer,
		collector: collector,
		logger:    logger.With(zap.String("component", "moderation")),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit 提交待审核内容，房间不存在时创建
func (q *Queue) Submit(ctx context.Context, roomName, speaker, content string) (*store.PendingSubmission, error) {
	roomName = strings.TrimSpace(roomName)
	if roomName == "" {
		return nil, types.Validationf("room is required")
	}
	speaker, content, err := store.ValidateEntry(speaker, content)
	if err != nil {
		return nil, err
	}
	room, err := q.store.EnsureRoom(ctx, roomName)
	if err != nil {
		return nil, types.Internal("ensure room", err)
	}

	sub := &store.PendingSubmission{
		RoomID:  room.ID,
		Speaker: speaker,
		Content: content,
		Status:  store.SubmissionPending,
	}
	if err := q.store.CreateSubmission(ctx, sub); err != nil {
		return nil, types.Internal("create submission", err)
	}
	q.record("submitted")
	q.logger.Info("submission queued", zap.Uint("submission_id", sub.ID), zap.Uint("room_id", room.ID))
	return sub, nil
}

// List 按状态列出，status 为空时列出全部
func (q *Queue) List(ctx context.Context, status string, limit int) ([]store.PendingSubmission, error) {
	switch status {
	case "", store.SubmissionPending, store.SubmissionApproved, store.SubmissionRejected:
	default:
		return nil, types.Validationf("unknown submission status %q", status)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	subs, err := q.store.ListSubmissions(ctx, status, limit)
	if err != nil {
		return nil, types.Internal("list submissions", err)
	}
	return subs, nil
}

// Approve 通过审核：写入条目（origin external）并执行一次分析。
// 状态与条目在同一事务中提交；分析失败时审核结果已生效，错误随结果一起返回。
func (q *Queue) Approve(ctx context.Context, id uint, review Review) (*ApproveResult, error) {
	sub, err := q.pending(ctx, id)
	if err != nil {
		return nil, err
	}

	speaker, content := sub.Speaker, sub.Content
	if review.Speaker != nil {
		speaker = *review.Speaker
	}
	if review.Content != nil {
		content = *review.Content
	}
	speaker, content, err = store.ValidateEntry(speaker, content)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reviewer := reviewerFrom(ctx, review)
	res := ApproveResult{}
	err = q.store.Transaction(ctx, func(tx *store.Store) error {
		res.Entry = store.Entry{
			RoomID:  sub.RoomID,
			Speaker: speaker,
			Content: content,
			Origin:  store.OriginExternal,
		}
		if err := tx.AppendEntry(ctx, &res.Entry); err != nil {
			return err
		}

		updates := map[string]any{
			"status":      store.SubmissionApproved,
			"reviewed_by": reviewer,
			"review_note": strings.TrimSpace(review.Note),
			"entry_id":    res.Entry.ID,
			"reviewed_at": now,
		}
		if review.Speaker != nil {
			updates["edited_speaker"] = speaker
		}
		if review.Content != nil {
			updates["edited_content"] = content
		}
		ok, err := tx.ResolveSubmission(ctx, id, updates)
		if err != nil {
			return err
		}
		if !ok {
			return types.Conflictf("submission %d already reviewed", id)
		}
		return nil
	})
	if err != nil {
		if _, ok := types.AsError(err); ok {
			return nil, err
		}
		return nil, types.Internal("approve submission", err)
	}

	resolved, err := q.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, types.Internal("reload submission", err)
	}
	res.Submission = *resolved
	q.record(store.SubmissionApproved)
	q.logger.Info("submission approved",
		zap.Uint("submission_id", id),
		zap.Uint("entry_id", res.Entry.ID),
		zap.String("reviewer", reviewer))

	if q.notifier != nil {
		q.notifier.Publish(ctx, res.Entry.RoomID)
	}
	if q.analyzer != nil {
		out, err := q.analyzer.Analyze(ctx, &res.Entry)
		if err != nil {
			return &res, err
		}
		res.Analyses = out.Analyses
	}
	return &res, nil
}

// Reject 拒绝：只更新状态与审核信息，不触碰对话
func (q *Queue) Reject(ctx context.Context, id uint, review Review) (*store.PendingSubmission, error) {
	if _, err := q.pending(ctx, id); err != nil {
		return nil, err
	}

	reviewer := reviewerFrom(ctx, review)
	ok, err := q.store.ResolveSubmission(ctx, id, map[string]any{
		"status":      store.SubmissionRejected,
		"reviewed_by": reviewer,
		"review_note": strings.TrimSpace(review.Note),
		"reviewed_at": time.Now().UTC(),
	})
	if err != nil {
		return nil, types.Internal("reject submission", err)
	}
	if !ok {
		return nil, types.Conflictf("submission %d already reviewed", id)
	}

	sub, err := q.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, types.Internal("reload submission", err)
	}
	q.record(store.SubmissionRejected)
	q.logger.Info("submission rejected", zap.Uint("submission_id", id), zap.String("reviewer", reviewer))
	return sub, nil
}

func (q *Queue) pending(ctx context.Context, id uint) (*store.PendingSubmission, error) {
	sub, err := q.store.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != store.SubmissionPending {
		return nil, types.Conflictf("submission %d already %s", id, sub.Status)
	}
	return sub, nil
}

func (q *Queue) record(decision string) {
	if q.collector != nil {
		q.collector.RecordModeration(decision)
	}
}

// reviewerFrom 已认证的调用者身份优先于请求体中的审核人
func reviewerFrom(ctx context.Context, review Review) string {
	if uid, ok := types.UserID(ctx); ok {
		return uid
	}
	if r := strings.TrimSpace(review.Reviewer); r != "" {
		return r
	}
	return anonymousReviewer
}
