// Copyright (c) Agora Authors.
// Licensed under the MIT License.

/*
Package main 提供 Agora 服务端程序入口。

# 概述

cmd/agora 提供 serve、migrate、version、health 四个子命令。serve 按
配置组装数据库连接池、可选 Redis 状态缓存、延迟日志、模型路由与各领域
服务，在 API 端口上提供 REST 与 WebSocket，在独立端口上暴露 /metrics。

# 中间件链

Recovery → RequestID → SecurityHeaders → RequestLogger → Metrics →
OTelTracing → CORS → RateLimiter（按 IP）→ 鉴权。鉴权二选一：
JWTAuth（随后按 user_id 限流）或 APIKeyAuth（X-API-Key，可选 query 参数，
供浏览器 WebSocket 使用）。所有包装 writer 都实现 Unwrap，
WebSocket 升级可以穿过整条链。

# 关闭顺序

信号 → API 端口（同时断开推送连接）→ Metrics 端口 → 刷写延迟日志 →
MongoDB → Redis → 数据库 → 遥测导出器。
*/
package main
