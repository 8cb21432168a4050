package llm

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Family 模型家族。每个家族对应一个后端 Provider。
type Family string

const (
	FamilyOpenAI     Family = "openai"
	FamilyAnthropic  Family = "anthropic"
	FamilyOpenRouter Family = "openrouter"
)

// ParseFamily 解析家族名，大小写不敏感。
func ParseFamily(s string) (Family, error) {
	switch Family(strings.ToLower(strings.TrimSpace(s))) {
	case FamilyOpenAI:
		return FamilyOpenAI, nil
	case FamilyAnthropic:
		return FamilyAnthropic, nil
	case FamilyOpenRouter:
		return FamilyOpenRouter, nil
	default:
		return "", fmt.Errorf("unknown model family %q", s)
	}
}

// defaultModelTable 静态模型表：model id → family。
var defaultModelTable = map[string]Family{
	"gpt-4o":       FamilyOpenAI,
	"gpt-4o-mini":  FamilyOpenAI,
	"gpt-4.1":      FamilyOpenAI,
	"gpt-4.1-mini": FamilyOpenAI,
	"o4-mini":      FamilyOpenAI,

	"claude-3-5-haiku-latest":  FamilyAnthropic,
	"claude-3-5-sonnet-latest": FamilyAnthropic,
	"claude-3-7-sonnet-latest": FamilyAnthropic,
	"claude-sonnet-4-0":        FamilyAnthropic,

	"meta-llama/llama-3.1-70b-instruct": FamilyOpenRouter,
	"mistralai/mistral-large":           FamilyOpenRouter,
	"google/gemini-2.0-flash-001":       FamilyOpenRouter,
	"deepseek/deepseek-chat":            FamilyOpenRouter,
}

// ModelRegistry 是只读的模型表。启动后不再变更，可并发读取。
type ModelRegistry struct {
	models       map[string]Family
	defaultModel string
}

// NewModelRegistry 基于内置模型表创建注册表，extra 中的条目追加或覆盖内置条目。
// defaultModel 必须存在于最终的表中。
func NewModelRegistry(defaultModel string, extra map[string]string) (*ModelRegistry, error) {
	models := make(map[string]Family, len(defaultModelTable)+len(extra))
	for id, f := range defaultModelTable {
		models[id] = f
	}
	for id, raw := range extra {
		f, err := ParseFamily(raw)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", id, err)
		}
		models[id] = f
	}
	if _, ok := models[defaultModel]; !ok {
		return nil, fmt.Errorf("default model %q is not in the model table", defaultModel)
	}
	return &ModelRegistry{models: models, defaultModel: defaultModel}, nil
}

// Resolve 返回模型所属家族；未知模型直接失败。
func (r *ModelRegistry) Resolve(model string) (Family, error) {
	f, ok := r.models[model]
	if !ok {
		return "", &Error{
			Code:       ErrUnknownModel,
			Message:    fmt.Sprintf("unknown model %q", model),
			HTTPStatus: http.StatusBadRequest,
		}
	}
	return f, nil
}

// ResolveOrDefault 未知模型时回退到默认模型，仅在调用方显式要求回退时使用。
func (r *ModelRegistry) ResolveOrDefault(model string) (string, Family) {
	if f, ok := r.models[model]; ok {
		return model, f
	}
	return r.defaultModel, r.models[r.defaultModel]
}

// Known 报告模型是否在表中。
func (r *ModelRegistry) Known(model string) bool {
	_, ok := r.models[model]
	return ok
}

// DefaultModel 返回默认模型。
func (r *ModelRegistry) DefaultModel() string { return r.defaultModel }

// Models 返回按 id 排序的模型列表。
func (r *ModelRegistry) Models() []ModelInfo {
	out := make([]ModelInfo, 0, len(r.models))
	for id, f := range r.models {
		out = append(out, ModelInfo{ID: id, Family: f})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ModelInfo 模型描述。
type ModelInfo struct {
	ID     string `json:"id"`
	Family Family `json:"family"`
}
