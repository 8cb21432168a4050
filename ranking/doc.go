// Package ranking 计算人格的有效置信度与排名。
//
// 有效置信度 = 原始置信度 × 衰减系数 × 人格倍率，衰减系数随分析之后
// 出现的非人格发言条目数线性下降。排名取启用人格中有效置信度最高的三位，
// 结果供状态接口、WebSocket 推送与 LED 控制器共用。
package ranking
