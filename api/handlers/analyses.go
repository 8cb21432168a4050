package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/feedback"
)

// AnalysisHandler 分析结果上的反馈操作：触发发言与评分
type AnalysisHandler struct {
	feedback *feedback.Service
	logger   *zap.Logger
}

// NewAnalysisHandler 创建分析反馈处理器
func NewAnalysisHandler(fb *feedback.Service, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{feedback: fb, logger: logger.With(zap.String("handler", "analyses"))}
}

// RegisterRoutes 注册分析反馈路由
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/analyses/{id}/trigger", h.HandleTrigger)
	mux.HandleFunc("POST /api/v1/analyses/{id}/rate", h.HandleRate)
}

// RateRequest 评分请求，rating 取 -1 或 1
type RateRequest struct {
	Rating int `json:"rating"`
}

// HandleTrigger POST /api/v1/analyses/{id}/trigger
// 把人格的建议回复作为发言写入对话，每条分析最多一次。
func (h *AnalysisHandler) HandleTrigger(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	res, err := h.feedback.Trigger(r.Context(), id)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, res)
}

// HandleRate POST /api/v1/analyses/{id}/rate
func (h *AnalysisHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	var req RateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	res, err := h.feedback.Rate(r.Context(), id, req.Rating)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, res)
}
