// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 claude 提供 Anthropic Claude 系列模型的 Provider 适配实现，将统一的
llm.ChatRequest 映射到 Anthropic Messages API（/v1/messages）。

# 核心结构体

  - ClaudeProvider — 独立实现 llm.Provider 接口，内置安全 HTTP Client

# 协议差异

  - 认证使用 x-api-key 请求头（非 Bearer Token）
  - system 消息从 messages 数组中提取，单独传递到 system 字段
  - 相邻同角色消息合并，满足 user/assistant 交替要求
  - 不支持 JSON 输出模式，结构化结果由上层从文本中截取

# 支持能力

  - Chat Completion（/v1/messages，同步）
  - 健康检查（/v1/models）
*/
package claude
