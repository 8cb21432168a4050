// Package telemetry 初始化 Agora 的 OpenTelemetry SDK。
// 关闭时只注册 W3C 传播器，trace/metric 保持 noop。
package telemetry
