// Package orchestrator 对每条新条目执行一次多人格分析。
//
// 每次分析先对启用人格与最近的对话窗口取快照，再以有界并发向各人格的模型
// 请求结构化评估。单个人格的失败、超时或无法解析的输出都记为置信度 0 的
// 分析，不影响其他人格；全部完成后在一个事务中写入。
package orchestrator
