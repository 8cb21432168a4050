// Package moderation 实现外部来源内容的审核队列。
//
// 状态只有 pending → approved 与 pending → rejected 两种转换，
// 对已处理的提交再次审核返回 CONFLICT。状态检查与写入是一条带
// status = 'pending' 条件的更新，不依赖进程内锁。
package moderation
