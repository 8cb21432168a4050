package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agora/conversation"
	"github.com/BaSui01/agora/feedback"
	"github.com/BaSui01/agora/llm"
	"github.com/BaSui01/agora/moderation"
	"github.com/BaSui01/agora/orchestrator"
	"github.com/BaSui01/agora/personas"
	"github.com/BaSui01/agora/ranking"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/stream"
	"github.com/BaSui01/agora/testutil"
	"github.com/BaSui01/agora/testutil/mocks"
)

// =============================================================================
// 🧪 测试装置：真实服务 + 内存 SQLite + 模拟 Provider
// =============================================================================

const testModel = "gpt-4o-mini"

type apiFixture struct {
	st       *store.Store
	provider *mocks.MockProvider
	hub      *stream.Hub
	mux      *http.ServeMux
	marcus   *store.Persona
	simone   *store.Persona
}

// verdictFor 按系统提示中的人格名返回固定评估
func verdictFor(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	content := `{"shouldSpeak":false,"confidence":30,"analysis":"nothing to add","response":""}`
	if len(req.Messages) > 0 && strings.HasPrefix(req.Messages[0].Content, "You are Marcus") {
		content = `{"shouldSpeak":true,"confidence":80,"analysis":"control is an illusion","response":"Focus on what you can change."}`
	}
	return &llm.ChatResponse{
		Model:   req.Model,
		Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: content}}},
	}, nil
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	st := testutil.NewStore(t)
	logger := zap.NewNop()

	registry, err := llm.NewModelRegistry(testModel, nil)
	require.NoError(t, err)
	provider := mocks.NewMockProvider().WithName("openai").WithCompletionFunc(verdictFor)
	router := llm.NewRouter(registry, logger, llm.WithProvider(llm.FamilyOpenAI, provider))

	engine := ranking.NewEngine(st, logger)
	hub := stream.NewHub(engine, stream.DefaultConfig(), nil, logger)
	t.Cleanup(hub.Close)

	orch := orchestrator.New(st, router, orchestrator.DefaultConfig(), logger, orchestrator.WithNotifier(hub))
	conv := conversation.NewService(st, orch, logger, conversation.WithNotifier(hub))
	fb := feedback.NewService(st, logger, feedback.WithNotifier(hub))
	queue := moderation.NewQueue(st, orch, nil, logger)
	people := personas.NewService(st, registry, hub, logger)

	f := &apiFixture{
		st:       st,
		provider: provider,
		hub:      hub,
		mux:      http.NewServeMux(),
		marcus:   testutil.SeedPersona(t, st, "Marcus", testModel),
		simone:   testutil.SeedPersona(t, st, "Simone", testModel),
	}

	NewRoomHandler(conv, engine, fb, hub, "lobby", logger).RegisterRoutes(f.mux)
	NewAnalysisHandler(fb, logger).RegisterRoutes(f.mux)
	NewSubmissionHandler(queue, logger).RegisterRoutes(f.mux)
	NewPersonaHandler(people, logger).RegisterRoutes(f.mux)
	NewLatencyHandler(st, nil, logger).RegisterRoutes(f.mux)
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		reader = bytes.NewReader([]byte(testutil.MustJSON(b)))
	}
	r := httptest.NewRequest(method, path, reader)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, r)
	return w
}

// envelope 解出统一响应中的 data
type envelope[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data"`
	Error   *ErrorInfo `json:"error"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) envelope[T] {
	t.Helper()
	var env envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func (f *apiFixture) submit(t *testing.T, room, speaker, content string) orchestrator.Result {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/v1/rooms/"+room+"/entries",
		SubmitEntryRequest{Speaker: speaker, Content: content})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[orchestrator.Result](t, w).Data
}

func analysisOf(t *testing.T, res orchestrator.Result, personaID uint) store.Analysis {
	t.Helper()
	for _, a := range res.Analyses {
		if a.PersonaID == personaID {
			return a
		}
	}
	t.Fatalf("no analysis for persona %d", personaID)
	return store.Analysis{}
}

// =============================================================================
// 🧪 房间
// =============================================================================

func TestRoutes_SubmitEntryRunsAnalysis(t *testing.T) {
	f := newAPIFixture(t)

	res := f.submit(t, "lobby", "alice", "I keep worrying about things I cannot control.")

	assert.NotZero(t, res.Entry.ID)
	assert.Equal(t, store.OriginHuman, res.Entry.Origin)
	require.Len(t, res.Analyses, 2)
	marcus := analysisOf(t, res, f.marcus.ID)
	assert.Equal(t, 80, marcus.Confidence)
	assert.True(t, marcus.ShouldSpeak)
	assert.Equal(t, "Focus on what you can change.", marcus.ProposedResponse)
	assert.Equal(t, 2, f.provider.CallCount())

	w := f.do(t, http.MethodGet, "/api/v1/rooms/lobby/entries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]store.Entry](t, w).Data
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Speaker)

	w = f.do(t, http.MethodGet, "/api/v1/rooms/lobby/analyses?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.Analysis](t, w).Data, 2)
}

func TestRoutes_SubmitEntryValidation(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name string
		body any
	}{
		{name: "missing speaker", body: SubmitEntryRequest{Content: "hello"}},
		{name: "blank content", body: SubmitEntryRequest{Speaker: "alice", Content: "   "}},
		{name: "unknown origin", body: SubmitEntryRequest{Speaker: "alice", Content: "hi", Origin: "satellite"}},
		{name: "external bypasses moderation", body: SubmitEntryRequest{Speaker: "alice", Content: "hi", Origin: "external"}},
		{name: "unknown field", body: `{"speaker":"alice","content":"hi","mood":"sad"}`},
		{name: "malformed", body: `{"speaker":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, "/api/v1/rooms/lobby/entries", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			env := decode[any](t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, "VALIDATION", env.Error.Code)
		})
	}
	assert.Zero(t, f.provider.CallCount())
}

func TestRoutes_RoomStatusAndLEDs(t *testing.T) {
	f := newAPIFixture(t)
	f.submit(t, "lobby", "alice", "What is a good life?")

	w := f.do(t, http.MethodGet, "/api/v1/rooms/lobby/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[RoomStatusResponse](t, w).Data
	assert.Equal(t, "lobby", status.Room)
	require.Len(t, status.Personas, 2)
	assert.Equal(t, "Marcus", status.Personas[0].Name)
	assert.Equal(t, 1, status.Personas[0].Rank)
	assert.True(t, status.Personas[0].Eligible)
	assert.Equal(t, 30, status.Personas[1].EffectiveConfidence)
	assert.False(t, status.Personas[1].Eligible)
	assert.Len(t, status.LEDs, 2)

	w = f.do(t, http.MethodGet, "/api/v1/rooms/lobby/personas/"+itoa(f.simone.ID)+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[ranking.PersonaStatus](t, w).Data.Rank)

	// LED 控制器读取的是裸数组
	for _, path := range []string{"/api/v1/rooms/lobby/led-status", "/api/led-status"} {
		w = f.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var leds []ranking.LEDStatus
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &leds))
		require.Len(t, leds, 2, path)
		assert.Equal(t, ranking.LEDStatus{Index: 1, Name: "Marcus", Color: "#336699", Confidence: 80}, leds[0])
	}
}

func TestRoutes_UnknownRoom(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/rooms/nowhere/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/rooms/nowhere/reset", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/rooms/nowhere/led-status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRoutes_Reset(t *testing.T) {
	f := newAPIFixture(t)
	f.submit(t, "lobby", "alice", "First thought.")

	w := f.do(t, http.MethodPost, "/api/v1/rooms/lobby/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/rooms/lobby/entries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]store.Entry](t, w).Data)

	w = f.do(t, http.MethodGet, "/api/v1/personas", nil)
	assert.Len(t, decode[[]store.Persona](t, w).Data, 2)
}

func TestRoutes_SimulateNotConfigured(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/rooms/lobby/simulate", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", decode[any](t, w).Error.Code)
}

// =============================================================================
// 🧪 触发与评分
// =============================================================================

func TestRoutes_TriggerAndRate(t *testing.T) {
	f := newAPIFixture(t)
	res := f.submit(t, "lobby", "alice", "Should I quit my job?")
	marcus := analysisOf(t, res, f.marcus.ID)
	simone := analysisOf(t, res, f.simone.ID)

	path := "/api/v1/analyses/" + itoa(marcus.ID)
	w := f.do(t, http.MethodPost, path+"/trigger", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	triggered := decode[feedback.TriggerResult](t, w).Data
	assert.Equal(t, "Marcus", triggered.Entry.Speaker)
	assert.Equal(t, store.PersonaOrigin(f.marcus.ID), triggered.Entry.Origin)
	assert.Equal(t, store.OutboundCommitted, triggered.Call.Status)

	w = f.do(t, http.MethodPost, path+"/trigger", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 没有建议回复的分析不能触发
	w = f.do(t, http.MethodPost, "/api/v1/analyses/"+itoa(simone.ID)+"/trigger", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, path+"/rate", RateRequest{Rating: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rated := decode[feedback.RateResult](t, w).Data
	assert.InDelta(t, 1.0, rated.Previous, 1e-9)
	assert.InDelta(t, 1.05, rated.Multiplier, 1e-9)

	w = f.do(t, http.MethodPost, path+"/rate", RateRequest{Rating: -1})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/rooms/lobby/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode[[]feedback.CallRecord](t, w).Data
	require.Len(t, history, 1)
	require.NotNil(t, history[0].Rating)
	assert.Equal(t, 1, *history[0].Rating)
}

func TestRoutes_FeedbackErrors(t *testing.T) {
	f := newAPIFixture(t)
	res := f.submit(t, "lobby", "alice", "Is free will real?")
	id := itoa(analysisOf(t, res, f.marcus.ID).ID)

	tests := []struct {
		name   string
		path   string
		body   any
		status int
	}{
		{name: "non numeric id", path: "/api/v1/analyses/abc/trigger", status: http.StatusBadRequest},
		{name: "zero id", path: "/api/v1/analyses/0/rate", body: RateRequest{Rating: 1}, status: http.StatusBadRequest},
		{name: "missing analysis", path: "/api/v1/analyses/9999/trigger", status: http.StatusNotFound},
		{name: "rating out of range", path: "/api/v1/analyses/" + id + "/rate", body: RateRequest{Rating: 5}, status: http.StatusBadRequest},
		{name: "rating missing body", path: "/api/v1/analyses/" + id + "/rate", status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

// =============================================================================
// 🧪 审核队列
// =============================================================================

func TestRoutes_SubmissionLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/rooms/lobby/submissions",
		CreateSubmissionRequest{Speaker: "Twitter", Content: "Stoicism is just suppression."})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sub := decode[store.PendingSubmission](t, w).Data
	assert.Equal(t, store.SubmissionPending, sub.Status)
	assert.Zero(t, f.provider.CallCount())

	w = f.do(t, http.MethodGet, "/api/v1/submissions?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]store.PendingSubmission](t, w).Data, 1)

	w = f.do(t, http.MethodPost, "/api/v1/submissions/"+itoa(sub.ID)+"/approve",
		`{"reviewer":"mod","note":"tidied","speaker":"@critic"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	approved := decode[moderation.ApproveResult](t, w).Data
	assert.Equal(t, "@critic", approved.Entry.Speaker)
	assert.Equal(t, store.OriginExternal, approved.Entry.Origin)
	assert.Equal(t, store.SubmissionApproved, approved.Submission.Status)
	assert.Len(t, approved.Analyses, 2)

	w = f.do(t, http.MethodPost, "/api/v1/submissions/"+itoa(sub.ID)+"/reject", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/submissions/4242/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/v1/submissions?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoutes_RejectSubmission(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/rooms/lobby/submissions",
		CreateSubmissionRequest{Speaker: "spam", Content: "buy now"})
	require.Equal(t, http.StatusCreated, w.Code)
	sub := decode[store.PendingSubmission](t, w).Data

	w = f.do(t, http.MethodPost, "/api/v1/submissions/"+itoa(sub.ID)+"/reject", `{"note":"spam"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rejected := decode[store.PendingSubmission](t, w).Data
	assert.Equal(t, store.SubmissionRejected, rejected.Status)
	assert.Equal(t, "spam", rejected.ReviewNote)
	assert.Nil(t, rejected.EntryID)
}

// =============================================================================
// 🧪 人格
// =============================================================================

func TestRoutes_Personas(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/personas", personas.Input{
		Name: "Hypatia", Prompt: "Reason carefully.", Color: "not-a-color", Model: testModel,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/personas", personas.Input{
		Name: "Hypatia", Prompt: "Reason carefully.", Color: "#aa33cc", Model: testModel,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[store.Persona](t, w).Data
	assert.True(t, created.Active)
	assert.InDelta(t, 1.0, created.Multiplier, 1e-9)

	w = f.do(t, http.MethodPost, "/api/v1/personas", personas.Input{
		Name: "Marcus", Prompt: "dup", Color: "#aa33cc", Model: testModel,
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/personas/"+itoa(created.ID), `{"active":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, decode[store.Persona](t, w).Data.Active)

	w = f.do(t, http.MethodGet, "/api/v1/personas/"+itoa(created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hypatia", decode[store.Persona](t, w).Data.Name)

	w = f.do(t, http.MethodGet, "/api/v1/personas/777", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPut, "/api/v1/personas/"+itoa(created.ID), `{"model":"no-such-model"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// 🧪 延迟汇总
// =============================================================================

type fixedDrops int64

func (d fixedDrops) Dropped() int64 { return int64(d) }

func TestRoutes_LatencySummary(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()
	now := time.Now()
	for _, l := range []store.LatencyLog{
		{Operation: "llm.complete", Model: testModel, DurationMs: 100, Success: true, CreatedAt: now.Add(-time.Minute)},
		{Operation: "llm.complete", Model: testModel, DurationMs: 300, Success: false, CreatedAt: now.Add(-2 * time.Minute)},
		{Operation: "llm.complete", Model: testModel, DurationMs: 900, Success: true, CreatedAt: now.Add(-3 * time.Hour)},
	} {
		l := l
		require.NoError(t, st.CreateLatencyLog(ctx, &l))
	}

	h := NewLatencyHandler(st, fixedDrops(4), zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/latency", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode[LatencySummaryResponse](t, w).Data
	assert.Equal(t, "1h0m0s", summary.Window)
	assert.Equal(t, int64(4), summary.Dropped)
	require.Len(t, summary.Stats, 1)
	assert.Equal(t, int64(2), summary.Stats[0].Count)
	assert.Equal(t, int64(1), summary.Stats[0].Failures)
	assert.Equal(t, int64(300), summary.Stats[0].MaxMs)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/latency?window=forever", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// 🧪 WebSocket 推送
// =============================================================================

func TestRoutes_StreamPushesStatus(t *testing.T) {
	f := newAPIFixture(t)
	f.submit(t, "lobby", "alice", "Open the stream.")

	srv := httptest.NewServer(f.mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/rooms/lobby/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var first stream.Update
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	assert.Equal(t, stream.UpdateTypeStatus, first.Type)
	require.Len(t, first.LEDs, 2)
	assert.Equal(t, "Marcus", first.LEDs[0].Name)

	// 新条目让状态重新计算并推送
	f.submit(t, "lobby", "bob", "Another angle.")
	var next stream.Update
	require.NoError(t, wsjson.Read(ctx, conn, &next))
	assert.Equal(t, stream.UpdateTypeStatus, next.Type)
	assert.Len(t, next.Personas, 2)

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
