package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/BaSui01/agora/internal/tlsutil"
	"github.com/BaSui01/agora/llm"
	"github.com/BaSui01/agora/llm/providers"
)

const (
	defaultOpenAIBaseURL     = "https://api.openai.com/v1"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout           = 60 * time.Second
)

// Provider 基于 openai-go SDK 的 Chat Completions 实现。
// OpenAI 与 OpenRouter 共用同一实现，仅 BaseURL 与附加 header 不同。
type Provider struct {
	name   string
	client openaigo.Client
	// OpenAI 新模型只接受 max_completion_tokens，OpenRouter 仍使用 max_tokens
	maxCompletionTokens bool
	logger              *zap.Logger
}

// NewOpenAIProvider 创建 OpenAI 家族的 Provider
func NewOpenAIProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *Provider {
	opts := baseOptions(cfg.BaseProviderConfig, defaultOpenAIBaseURL)
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	return newProvider("openai", true, opts, logger)
}

// NewOpenRouterProvider 创建 OpenRouter 家族的 Provider
func NewOpenRouterProvider(cfg providers.OpenRouterConfig, logger *zap.Logger) *Provider {
	opts := baseOptions(cfg.BaseProviderConfig, defaultOpenRouterBaseURL)
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}
	return newProvider("openrouter", false, opts, logger)
}

func baseOptions(cfg providers.BaseProviderConfig, defaultBaseURL string) []option.RequestOption {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
		option.WithHTTPClient(tlsutil.SecureHTTPClient(timeout)),
		// 单轮分析不重试，失败直接记为零置信度
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
}

func newProvider(name string, maxCompletionTokens bool, opts []option.RequestOption, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		name:                name,
		client:              openaigo.NewClient(opts...),
		maxCompletionTokens: maxCompletionTokens,
		logger:              logger.With(zap.String("provider", name)),
	}
}

// Name 返回 Provider 名称
func (p *Provider) Name() string { return p.name }

// SupportsJSONMode 两个家族都支持 response_format=json_object
func (p *Provider) SupportsJSONMode() bool { return true }

// Completion 发起一次 Chat Completions 请求
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	params := openaigo.ChatCompletionNewParams{
		Model:    openaigo.ChatModel(req.Model),
		Messages: convertMessages(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = openaigo.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		if p.maxCompletionTokens {
			params.MaxCompletionTokens = openaigo.Int(int64(req.MaxTokens))
		} else {
			params.MaxTokens = openaigo.Int(int64(req.MaxTokens))
		}
	}
	if req.JSONMode {
		params.ResponseFormat = openaigo.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.mapError(err)
	}

	out := &llm.ChatResponse{
		ID:       resp.ID,
		Provider: p.name,
		Model:    resp.Model,
		Usage: llm.ChatUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		CreatedAt: time.Unix(resp.Created, 0),
	}
	for i, c := range resp.Choices {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        i,
			FinishReason: c.FinishReason,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: c.Message.Content},
		})
	}
	return out, nil
}

// HealthCheck 通过列出模型检查连通性与凭据
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	_, err := p.client.Models.List(ctx)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, p.mapError(err)
	}
	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

func (p *Provider) mapError(err error) error {
	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		mapped := providers.MapHTTPError(apiErr.StatusCode, msg, p.name)
		mapped.Cause = err
		return mapped
	}
	return providers.MapTransportError(err, p.name)
}

func convertMessages(msgs []llm.Message) []openaigo.ChatCompletionMessageParamUnion {
	out := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, openaigo.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, openaigo.AssistantMessage(m.Content))
		default:
			out = append(out, openaigo.UserMessage(m.Content))
		}
	}
	return out
}
