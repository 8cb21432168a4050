// Copyright (c) Agora Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 Agora HTTP API 的请求处理器实现。

# 概述

handlers 包把 conversation、feedback、moderation、personas、ranking
等服务暴露为 HTTP 端点，并负责统一的响应/错误处理。所有 Handler
遵循标准 net/http 接口，通过 RegisterRoutes 注册 Go 1.22 风格的路由。

# 核心类型

  - RoomHandler       — 条目提交、分析列表、房间/人格状态、LED 状态、重置、模拟、WebSocket 推送
  - AnalysisHandler   — 触发建议回复与评分
  - SubmissionHandler — 外部内容审核队列
  - PersonaHandler    — 人格列表、创建与更新
  - LatencyHandler    — 外部调用耗时汇总
  - HealthHandler     — 服务健康检查（/health, /healthz, /ready）
  - Response          — 统一 JSON 响应结构（success + data + error + timestamp）

# 错误映射

服务层返回 types.Error，Provider 层返回 llm.Error，WriteErr 统一转换：
NOT_FOUND→404、CONFLICT→409、VALIDATION→400、PARSE_ERROR→422、
PROVIDER_ERROR→502、INTERNAL_ERROR→500。未识别的错误一律按 500 处理，
不向客户端暴露细节。
*/
package handlers
