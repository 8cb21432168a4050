/*
包 server 管理 agora serve 进程中 HTTP 服务器的生命周期。

Manager 封装 net/http.Server：Start 非阻塞启动（配置证书时走 HTTPS，
TLS 参数来自 internal/tlsutil），Shutdown 在超时内排空请求，
OnShutdown 用于通知 WebSocket 推送中心断开被劫持的连接，
WaitForShutdown 监听 SIGINT/SIGTERM 或异步服务错误。

API 服务与 /metrics 服务各用一个 Manager，通过 Config.Name 在日志中区分。
*/
package server
