/*
Package metrics 提供基于 Prometheus 的内部指标收集。

Collector 通过 promauto 注册以下指标族：

  - HTTP 指标：请求计数、耗时与响应大小，按 method/path/status 分组。
  - 外部调用指标：与延迟日志同源，按 operation/service/model 分组。
  - 编排指标：单轮分析耗时、按人格与结果统计的分析数。
  - 反馈指标：触发次数、评分次数与当前倍率 Gauge。
  - 缓存与推送指标：状态缓存命中率、websocket 连接数。
  - 数据库指标：活跃/空闲连接数。
*/
package metrics
