/*
Package types 提供 Agora 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、store、orchestrator、
feedback、moderation、api 等上层模块提供统一的错误契约与 Context 传播工具。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - NOT_FOUND / CONFLICT / VALIDATION — 业务错误，直接映射为 404 / 409 / 400
  - PROVIDER_ERROR / PARSE_ERROR — 模型调用失败与结构化输出解析失败，
    在编排器内部被就地恢复为"无意见"分析

# 主要能力

  - Context 传播：WithTraceID / WithUserID / WithRoles / WithRoomID
  - 错误工具链：AsError / IsErrorCode / IsNotFound / IsConflict / IsValidation
*/
package types
