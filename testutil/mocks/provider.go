// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、按模型脚本化响应、延迟与错误注入。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/agora/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	name     string
	jsonMode bool

	// 响应配置
	response       string
	modelResponses map[string]string
	modelErrors    map[string]error
	err            error
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 行为控制
	delay time.Duration

	// 调用记录
	calls []MockProviderCall
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:           "mock",
		jsonMode:       true,
		response:       `{"shouldSpeak":false,"confidence":0,"analysis":"","response":""}`,
		modelResponses: make(map[string]string),
		modelErrors:    make(map[string]error),
	}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithJSONMode 设置是否声明支持 JSON 模式
func (m *MockProvider) WithJSONMode(enabled bool) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jsonMode = enabled
	return m
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithModelResponse 为指定模型设置响应内容
func (m *MockProvider) WithModelResponse(model, response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelResponses[model] = response
	return m
}

// WithModelError 为指定模型注入错误
func (m *MockProvider) WithModelError(model string, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelErrors[model] = err
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithDelay 设置响应延迟，延迟期间响应 ctx 取消
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithCompletionFunc 设置自定义 Completion 函数
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- Provider 接口实现 ---

// Name 返回 Provider 名称
func (m *MockProvider) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// SupportsJSONMode 返回是否支持 JSON 模式
func (m *MockProvider) SupportsJSONMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jsonMode
}

// HealthCheck 执行健康检查
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true, Latency: time.Millisecond}, nil
}

// Completion 生成响应。锁只保护配置读取与调用记录，不覆盖延迟与自定义函数。
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.RLock()
	delay := m.delay
	fn := m.completionFunc
	err := m.err
	if e, ok := m.modelErrors[req.Model]; ok {
		err = e
	}
	content := m.response
	if r, ok := m.modelResponses[req.Model]; ok {
		content = r
	}
	name := m.name
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		}
	}

	if err != nil {
		m.record(req, nil, err)
		return nil, err
	}

	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(req, resp, err)
		return resp, err
	}

	resp := &llm.ChatResponse{
		ID:       "mock-response-id",
		Provider: name,
		Model:    req.Model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			FinishReason: "stop",
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
		}},
		Usage:     llm.ChatUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		CreatedAt: time.Now(),
	}
	m.record(req, resp, nil)
	return resp, nil
}

func (m *MockProvider) record(req *llm.ChatRequest, resp *llm.ChatResponse, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: *req, Response: resp, Error: err})
}

// --- 调用记录查询 ---

// Calls 返回调用记录副本
func (m *MockProvider) Calls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MockProviderCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount 返回调用次数
func (m *MockProvider) CallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// LastCall 返回最后一次调用
func (m *MockProvider) LastCall() (MockProviderCall, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return MockProviderCall{}, false
	}
	return m.calls[len(m.calls)-1], true
}

// Reset 清空调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ llm.Provider = (*MockProvider)(nil)
