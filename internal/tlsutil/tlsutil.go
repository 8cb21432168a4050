package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// idleConnsPerHost 每个 Provider 主机保留的空闲连接。
// 一轮分析会对同一家族并发发起多次调用，默认的 2 会反复握手。
const idleConnsPerHost = 16

// aeadSuites TLS 1.2 下仅允许的 AEAD 套件；TLS 1.3 套件不可配置
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig TLS 1.2+，仅 AEAD 套件
func DefaultTLSConfig() *tls.Config {
	suites := make([]uint16, len(aeadSuites))
	copy(suites, aeadSuites)
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: suites,
	}
}

// ClientTLSConfig 出站连接使用，带会话缓存以复用握手
func ClientTLSConfig() *tls.Config {
	cfg := DefaultTLSConfig()
	cfg.ClientSessionCache = tls.NewLRUClientSessionCache(64)
	return cfg
}

// ServerTLSConfig HTTPS 监听使用
func ServerTLSConfig() *tls.Config {
	cfg := DefaultTLSConfig()
	cfg.CurvePreferences = []tls.CurveID{tls.X25519, tls.CurveP256}
	return cfg
}

// RedisTLSConfig 连接托管 Redis 时使用，ServerName 取自 host:port 中的主机名
func RedisTLSConfig(addr string) *tls.Config {
	cfg := ClientTLSConfig()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		cfg.ServerName = host
	} else {
		cfg.ServerName = addr
	}
	return cfg
}

// SecureTransport LLM Provider 与 LED 控制器共用的出站 Transport
func SecureTransport() *http.Transport {
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: ClientTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   idleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SecureHTTPClient 等价于 &http.Client{Timeout: timeout}，但使用加固的 Transport
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(),
	}
}
