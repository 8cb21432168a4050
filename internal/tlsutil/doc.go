// Package tlsutil 集中 Agora 的 TLS 设置（TLS 1.2+，仅 AEAD 套件）。
//
// 出站：LLM Provider、LED 控制器轮询客户端、托管 Redis。
// 入站：配置了证书时的 HTTPS 监听。
package tlsutil
