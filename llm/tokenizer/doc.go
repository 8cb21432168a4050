// Package tokenizer 为会话上下文窗口提供 token 计数，
// OpenAI 家族使用 tiktoken 精确计数，离线或其他家族退回字符估算。
package tokenizer
