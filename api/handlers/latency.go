package handlers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/types"
)

const (
	defaultLatencyWindow = time.Hour
	maxLatencyWindow     = 30 * 24 * time.Hour
)

// DropCounter 报告因队列满而丢弃的延迟记录数，由 latency.Tracker 实现
type DropCounter interface {
	Dropped() int64
}

// LatencyHandler 外部调用耗时汇总
type LatencyHandler struct {
	store   *store.Store
	drops   DropCounter
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewLatencyHandler 创建延迟汇总处理器，drops 可为 nil
func NewLatencyHandler(st *store.Store, drops DropCounter, logger *zap.Logger) *LatencyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LatencyHandler{
		store:   st,
		drops:   drops,
		logger:  logger.With(zap.String("handler", "latency")),
		nowFunc: time.Now,
	}
}

// RegisterRoutes 注册延迟汇总路由
func (h *LatencyHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/latency", h.HandleSummary)
}

// LatencySummaryResponse 汇总结果
type LatencySummaryResponse struct {
	Window  string              `json:"window"`
	Since   time.Time           `json:"since"`
	Stats   []store.LatencyStat `json:"stats"`
	Dropped int64               `json:"dropped"`
}

// HandleSummary GET /api/v1/latency?window=1h
func (h *LatencyHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	window := defaultLatencyWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxLatencyWindow {
			WriteErr(w, types.Validationf("invalid window %q", raw), h.logger)
			return
		}
		window = d
	}

	since := h.nowFunc().Add(-window)
	stats, err := h.store.LatencySummary(r.Context(), since)
	if err != nil {
		WriteErr(w, types.Internal("latency summary", err), h.logger)
		return
	}
	if stats == nil {
		stats = []store.LatencyStat{}
	}

	resp := LatencySummaryResponse{Window: window.String(), Since: since, Stats: stats}
	if h.drops != nil {
		resp.Dropped = h.drops.Dropped()
	}
	WriteSuccess(w, resp)
}
