package providers

import "time"

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// OpenAIConfig OpenAI Provider 配置
type OpenAIConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Organization       string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// OpenRouterConfig OpenRouter Provider 配置。
// 使用 OpenAI 兼容协议，Referer/Title 用于 OpenRouter 的应用归属统计。
type OpenRouterConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Referer            string `json:"referer,omitempty" yaml:"referer,omitempty"`
	Title              string `json:"title,omitempty" yaml:"title,omitempty"`
}

// ClaudeConfig Claude Provider 配置
type ClaudeConfig struct {
	BaseProviderConfig `yaml:",inline"`
	Version            string `json:"version,omitempty" yaml:"version,omitempty"`
}
