// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 openai 基于官方 openai-go SDK 实现 OpenAI 与 OpenRouter 两个模型家族的
Provider。两者共享 Chat Completions 协议，差异只在 BaseURL、附加 header
以及 max_tokens 字段名。

# 核心结构体

  - Provider — 实现 llm.Provider；由 NewOpenAIProvider / NewOpenRouterProvider 构造

# 支持能力

  - Chat Completions（/chat/completions）
  - JSON 对象输出模式（response_format=json_object）
  - 健康检查（/models）
  - SDK 内置重试关闭，超时由调用方 ctx 控制
*/
package openai
