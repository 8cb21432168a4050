// Package stream 通过 WebSocket 向客户端推送房间状态。
//
// Hub 按房间管理订阅连接。写路径（分析、触发、评分、重置）完成后调用
// Publish，Hub 先让状态缓存失效，再把最新的排名快照推给该房间的订阅者。
package stream
