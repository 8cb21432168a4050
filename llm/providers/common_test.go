package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agora/llm"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		wantCode  llm.ErrorCode
		wantRetry bool
	}{
		{"unauthorized", http.StatusUnauthorized, "bad key", llm.ErrUnauthorized, false},
		{"forbidden", http.StatusForbidden, "policy", llm.ErrForbidden, false},
		{"rate limited", http.StatusTooManyRequests, "slow down", llm.ErrRateLimited, true},
		{"quota", http.StatusBadRequest, "You exceeded your current quota", llm.ErrQuotaExceeded, false},
		{"bad request", http.StatusBadRequest, "messages is required", llm.ErrInvalidRequest, false},
		{"bad gateway", http.StatusBadGateway, "upstream", llm.ErrUpstreamError, true},
		{"overloaded", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"internal", http.StatusInternalServerError, "oops", llm.ErrUpstreamError, true},
		{"teapot", http.StatusTeapot, "?", llm.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "openai")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.wantRetry, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "openai", err.Provider)
			assert.Equal(t, tt.msg, err.Message)
		})
	}
}

func TestReadErrorMessage(t *testing.T) {
	msg := ReadErrorMessage(strings.NewReader(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
	assert.Equal(t, "model not found (type: invalid_request_error)", msg)

	msg = ReadErrorMessage(strings.NewReader(`{"error":{"message":"overloaded"}}`))
	assert.Equal(t, "overloaded", msg)

	msg = ReadErrorMessage(strings.NewReader("plain text failure"))
	assert.Equal(t, "plain text failure", msg)
}

func TestMapTransportError(t *testing.T) {
	assert.ErrorIs(t, MapTransportError(context.DeadlineExceeded, "anthropic"), context.DeadlineExceeded)

	wrapped := fmt.Errorf("dial: %w", context.Canceled)
	assert.ErrorIs(t, MapTransportError(wrapped, "anthropic"), context.Canceled)

	cause := errors.New("connection refused")
	err := MapTransportError(cause, "anthropic")
	var llmErr *llm.Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, llm.ErrUpstreamError, llmErr.Code)
	assert.True(t, llmErr.Retryable)
	assert.ErrorIs(t, err, cause)
}
