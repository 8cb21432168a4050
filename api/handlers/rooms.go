package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/conversation"
	"github.com/BaSui01/agora/feedback"
	"github.com/BaSui01/agora/orchestrator"
	"github.com/BaSui01/agora/ranking"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/stream"
	"github.com/BaSui01/agora/types"
)

// =============================================================================
// 🏠 房间 Handler
// =============================================================================

// RoomHandler 房间内的对话条目、分析结果、状态与推送
type RoomHandler struct {
	conversation *conversation.Service
	ranking      *ranking.Engine
	feedback     *feedback.Service
	hub          *stream.Hub
	defaultRoom  string
	logger       *zap.Logger
}

// NewRoomHandler 创建房间处理器。hub 为 nil 时不提供 WebSocket 推送。
func NewRoomHandler(
	conv *conversation.Service,
	engine *ranking.Engine,
	fb *feedback.Service,
	hub *stream.Hub,
	defaultRoom string,
	logger *zap.Logger,
) *RoomHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomHandler{
		conversation: conv,
		ranking:      engine,
		feedback:     fb,
		hub:          hub,
		defaultRoom:  defaultRoom,
		logger:       logger.With(zap.String("handler", "rooms")),
	}
}

// RegisterRoutes 注册房间路由
func (h *RoomHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/rooms/{room}/entries", h.HandleSubmitEntry)
	mux.HandleFunc("GET /api/v1/rooms/{room}/entries", h.HandleListEntries)
	mux.HandleFunc("GET /api/v1/rooms/{room}/analyses", h.HandleListAnalyses)
	mux.HandleFunc("GET /api/v1/rooms/{room}/status", h.HandleRoomStatus)
	mux.HandleFunc("GET /api/v1/rooms/{room}/personas/{id}/status", h.HandlePersonaStatus)
	mux.HandleFunc("GET /api/v1/rooms/{room}/led-status", h.HandleLEDStatus)
	mux.HandleFunc("GET /api/v1/rooms/{room}/history", h.HandleHistory)
	mux.HandleFunc("POST /api/v1/rooms/{room}/reset", h.HandleReset)
	mux.HandleFunc("POST /api/v1/rooms/{room}/simulate", h.HandleSimulate)
	if h.hub != nil {
		mux.HandleFunc("GET /api/v1/rooms/{room}/stream", h.HandleStream)
	}
	// 旧版 LED 控制器直接轮询 /api/led-status
	mux.HandleFunc("GET /api/led-status", h.HandleDefaultLEDStatus)
}

// SubmitEntryRequest 新条目请求
type SubmitEntryRequest struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
	// Origin 可选：human（默认）、transcript、simulated；external 只能经审核队列产生
	Origin string `json:"origin,omitempty"`
}

// RoomStatusResponse 房间状态
type RoomStatusResponse struct {
	Room     string                  `json:"room"`
	RoomID   uint                    `json:"room_id"`
	Personas []ranking.PersonaStatus `json:"personas"`
	LEDs     []ranking.LEDStatus     `json:"leds"`
}

// SimulateRequest 对话模拟请求
type SimulateRequest struct {
	Turns int `json:"turns"`
}

// HandleSubmitEntry POST /api/v1/rooms/{room}/entries
// 写入条目并同步执行一次分析，返回条目与各人格的分析结果。
func (h *RoomHandler) HandleSubmitEntry(w http.ResponseWriter, r *http.Request) {
	var req SubmitEntryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res, err := h.conversation.Submit(r.Context(), r.PathValue("room"), req.Speaker, req.Content, req.Origin)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, res)
}

// HandleListEntries GET /api/v1/rooms/{room}/entries?limit=
func (h *RoomHandler) HandleListEntries(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	entries, err := h.conversation.Entries(r.Context(), r.PathValue("room"), limit)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	WriteSuccess(w, entries)
}

// HandleListAnalyses GET /api/v1/rooms/{room}/analyses?limit=
func (h *RoomHandler) HandleListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	analyses, err := h.conversation.Analyses(r.Context(), r.PathValue("room"), limit)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if analyses == nil {
		analyses = []store.Analysis{}
	}
	WriteSuccess(w, analyses)
}

// HandleRoomStatus GET /api/v1/rooms/{room}/status
func (h *RoomHandler) HandleRoomStatus(w http.ResponseWriter, r *http.Request) {
	room, err := h.conversation.Room(r.Context(), r.PathValue("room"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	statuses, err := h.ranking.RoomStatus(r.Context(), room.ID)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, RoomStatusResponse{
		Room:     room.Name,
		RoomID:   room.ID,
		Personas: statuses,
		LEDs:     ranking.LEDStatuses(statuses),
	})
}

// HandlePersonaStatus GET /api/v1/rooms/{room}/personas/{id}/status
func (h *RoomHandler) HandlePersonaStatus(w http.ResponseWriter, r *http.Request) {
	personaID, err := pathID(r, "id")
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	room, err := h.conversation.Room(r.Context(), r.PathValue("room"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	status, err := h.ranking.PersonaStatus(r.Context(), room.ID, personaID)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, status)
}

// HandleLEDStatus GET /api/v1/rooms/{room}/led-status
// 返回裸数组 [{index,name,color,confidence}]，LED 控制器按此格式解析，不套统一响应结构。
func (h *RoomHandler) HandleLEDStatus(w http.ResponseWriter, r *http.Request) {
	h.writeLEDStatus(w, r, r.PathValue("room"))
}

// HandleDefaultLEDStatus GET /api/led-status，读取默认房间
func (h *RoomHandler) HandleDefaultLEDStatus(w http.ResponseWriter, r *http.Request) {
	h.writeLEDStatus(w, r, h.defaultRoom)
}

func (h *RoomHandler) writeLEDStatus(w http.ResponseWriter, r *http.Request, roomName string) {
	room, err := h.conversation.Room(r.Context(), roomName)
	if types.IsNotFound(err) {
		// 房间尚无任何条目：没有可点亮的按钮
		WriteJSON(w, http.StatusOK, []ranking.LEDStatus{})
		return
	}
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	leds, err := h.ranking.LEDStatus(r.Context(), room.ID)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if leds == nil {
		leds = []ranking.LEDStatus{}
	}
	WriteJSON(w, http.StatusOK, leds)
}

// HandleHistory GET /api/v1/rooms/{room}/history?limit=
// 外发记录及其评分。
func (h *RoomHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	room, err := h.conversation.Room(r.Context(), r.PathValue("room"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	records, err := h.feedback.History(r.Context(), room.ID, limit)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if records == nil {
		records = []feedback.CallRecord{}
	}
	WriteSuccess(w, records)
}

// HandleReset POST /api/v1/rooms/{room}/reset
func (h *RoomHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.conversation.Reset(r.Context(), r.PathValue("room")); err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"room": r.PathValue("room"), "status": "reset"})
}

// HandleSimulate POST /api/v1/rooms/{room}/simulate
func (h *RoomHandler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := DecodeOptionalJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	results, err := h.conversation.Simulate(r.Context(), r.PathValue("room"), req.Turns)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if results == nil {
		results = []*orchestrator.Result{}
	}
	WriteStatus(w, http.StatusCreated, results)
}

// HandleStream GET /api/v1/rooms/{room}/stream（WebSocket）
func (h *RoomHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	room, err := h.conversation.Room(r.Context(), r.PathValue("room"))
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	h.hub.ServeRoom(w, r, room.ID)
}
