package claude

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agora/llm"
	"github.com/BaSui01/agora/llm/providers"
)

func newClaude(baseURL string) *ClaudeProvider {
	return NewClaudeProvider(providers.ClaudeConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  "ak-test",
			BaseURL: baseURL,
			Timeout: 5 * time.Second,
		},
	}, zap.NewNop())
}

func TestClaudeProvider_Basics(t *testing.T) {
	p := newClaude("")
	assert.Equal(t, "anthropic", p.Name())
	assert.False(t, p.SupportsJSONMode())
	assert.Equal(t, defaultBaseURL, p.cfg.BaseURL)
	assert.Equal(t, defaultAPIVersion, p.cfg.Version)
}

func TestConvertToClaudeMessages(t *testing.T) {
	system, msgs := convertToClaudeMessages([]llm.Message{
		llm.SystemMessage("You are Simone."),
		llm.SystemMessage("Answer in JSON."),
		llm.UserMessage("transcript"),
		llm.UserMessage("instructions"),
		{Role: llm.RoleAssistant, Content: "ok"},
	})

	assert.Equal(t, "You are Simone.\n\nAnswer in JSON.", system)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Len(t, msgs[0].Content, 2)
	assert.Equal(t, "assistant", msgs[1].Role)
}

func TestClaudeProvider_Completion(t *testing.T) {
	var gotHeader http.Header
	var gotBody claudeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		gotHeader = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"stop_reason": "end_turn",
			"content": [
				{"type": "text", "text": "Here you go: "},
				{"type": "text", "text": "{\"confidence\": 55}"}
			],
			"usage": {"input_tokens": 30, "output_tokens": 12}
		}`))
	}))
	defer srv.Close()

	p := newClaude(srv.URL)
	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Model:       "claude-3-5-haiku-latest",
		Messages:    []llm.Message{llm.SystemMessage("sys"), llm.UserMessage("hi")},
		Temperature: 0.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "ak-test", gotHeader.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", gotHeader.Get("anthropic-version"))
	assert.Equal(t, "sys", gotBody.System)
	assert.Equal(t, defaultMaxTokens, gotBody.MaxTokens)
	assert.Equal(t, float32(0.5), gotBody.Temperature)

	content, err := llm.FirstContent(resp)
	require.NoError(t, err)
	assert.Equal(t, `Here you go: {"confidence": 55}`, content)
	assert.Equal(t, 42, resp.Usage.TotalTokens)
	assert.Equal(t, "end_turn", resp.Choices[0].FinishReason)
}

func TestClaudeProvider_ErrorMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	_, err := newClaude(srv.URL).Completion(context.Background(), &llm.ChatRequest{
		Model:    "claude-3-5-haiku-latest",
		Messages: []llm.Message{llm.UserMessage("hi")},
	})

	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrModelOverloaded, llmErr.Code)
	assert.Equal(t, "Overloaded (type: overloaded_error)", llmErr.Message)
	assert.Equal(t, "anthropic", llmErr.Provider)
}

func TestClaudeProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClaude(srv.URL).Completion(ctx, &llm.ChatRequest{
		Model:    "claude-3-5-haiku-latest",
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClaudeProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "ak-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	status, err := newClaude(srv.URL).HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}
