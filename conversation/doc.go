// Package conversation 是对话内容的入口。
//
// 直接提交、转写结果、模拟对话都经由 Service.Submit 写入条目，
// 每条新条目同步驱动一次多人格分析。
package conversation
