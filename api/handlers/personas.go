package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/agora/personas"
	"github.com/BaSui01/agora/store"
)

// PersonaHandler 人格管理
type PersonaHandler struct {
	personas *personas.Service
	logger   *zap.Logger
}

// NewPersonaHandler 创建人格管理处理器
func NewPersonaHandler(svc *personas.Service, logger *zap.Logger) *PersonaHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersonaHandler{personas: svc, logger: logger.With(zap.String("handler", "personas"))}
}

// RegisterRoutes 注册人格路由
func (h *PersonaHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/personas", h.HandleList)
	mux.HandleFunc("POST /api/v1/personas", h.HandleCreate)
	mux.HandleFunc("GET /api/v1/personas/{id}", h.HandleGet)
	mux.HandleFunc("PUT /api/v1/personas/{id}", h.HandleUpdate)
}

// HandleList GET /api/v1/personas
func (h *PersonaHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.personas.List(r.Context())
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	if list == nil {
		list = []store.Persona{}
	}
	WriteSuccess(w, list)
}

// HandleGet GET /api/v1/personas/{id}
func (h *PersonaHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	p, err := h.personas.Get(r.Context(), id)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, p)
}

// HandleCreate POST /api/v1/personas
func (h *PersonaHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in personas.Input
	if err := DecodeJSONBody(w, r, &in, h.logger); err != nil {
		return
	}
	p, err := h.personas.Create(r.Context(), in)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteStatus(w, http.StatusCreated, p)
}

// HandleUpdate PUT /api/v1/personas/{id}
// 只更新请求中出现的字段；停用人格用 {"active": false}。
func (h *PersonaHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	var patch personas.Patch
	if err := DecodeJSONBody(w, r, &patch, h.logger); err != nil {
		return
	}
	p, err := h.personas.Update(r.Context(), id, patch)
	if err != nil {
		WriteErr(w, err, h.logger)
		return
	}
	WriteSuccess(w, p)
}
