// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 是各模型家族 Provider 实现的公共基础层。子包 openai
（同时服务 OpenAI 与 OpenRouter）与 anthropic 依赖本包完成错误映射
与配置。

# 核心类型

  - BaseProviderConfig — 共享的 APIKey、BaseURL、Timeout
  - OpenAIConfig / OpenRouterConfig / ClaudeConfig — 各家族的专属字段

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - MapTransportError — 网络错误映射，保留 ctx 超时与取消
  - ReadErrorMessage — 解析上游错误响应体
  - SafeCloseBody — 安全关闭响应体
*/
package providers
