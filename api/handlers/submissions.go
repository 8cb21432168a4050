package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/moderation"
	"github.com/BaSui01/agora/store"
)

// SubmissionHandler 外部来源内容的审核队列
type SubmissionHandler struct {
	queue  *moderation.Queue
	logger *zap.Logger
}

// NewSubmissionHandler 创建审核队列处理器
func NewSubmissionHandler(q *moderation.Queue, logger *zap.Logger) *SubmissionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionHandler{queue: q, logger: logger.With(zap.String("handler", "submissions"))}
}

// RegisterRoutes 注册审核路由
func (h *SubmissionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/rooms/{room}/submissions", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/submissions", h.HandleList)
	mux.HandleFunc("POST /api/v1/submissions/{id}/approve", h.HandleApprove)
	mux.HandleFunc("POST /api/v1/submissions/{id}/reject", h.HandleReject)
}

// CreateSubmissionRequest 待审核内容
type CreateSubmissionRequest struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// HandleCreate POST /api/v1/rooms/{room}/submissions
func (h *SubmissionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSubmissionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	sub, err := h.queue.Submit(r.Context(), r.PathValue("room"), req.Speaker, req.Content)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, sub)
}

// HandleList GET /api/v1/submissions?status=pending&limit=
func (h *SubmissionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	subs, err := h.queue.List(r.Context(), r.URL.Query().Get("status"), limit)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if subs == nil {
		subs = []store.PendingSubmission{}
	}
	WriteSuccess(w, subs)
}

// HandleApprove POST /api/v1/submissions/{id}/approve
// 请求体可选，可带审核备注以及对 speaker/content 的修改。
func (h *SubmissionHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	var review moderation.Review
	if err := DecodeOptionalJSONBody(w, r, &review, h.logger); err != nil {
		return
	}
	res, err := h.queue.Approve(r.Context(), id, review)
	if err != nil {
		if res != nil {
			// 审核已生效，只是后续分析失败
			h.logger.Warn("submission approved but analysis failed",
				zap.Uint("submission_id", id), zap.Error(err))
			WriteSuccess(w, res)
			return
		}
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, res)
}

// HandleReject POST /api/v1/submissions/{id}/reject
func (h *SubmissionHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	var review moderation.Review
	if err := DecodeOptionalJSONBody(w, r, &review, h.logger); err != nil {
		return
	}
	sub, err := h.queue.Reject(r.Context(), id, review)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, sub)
}
