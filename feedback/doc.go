// Package feedback 实现触发与评分反馈。
//
// Trigger 是人格文本进入对话的唯一途径；Rate 按评分调整人格倍率，
// 倍率持久累积，并截断在 [0.1, 1.5] 内。
package feedback
