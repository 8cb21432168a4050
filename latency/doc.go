/*
Package latency 为所有外部调用（LLM 补全、外呼）计时。

Tracker.Track 包裹一次调用：开启 OpenTelemetry span、同步更新
Prometheus 指标，并把记录投递到异步队列，由后台协程写入 Sink。
写入失败或队列已满时记录被丢弃并计数，调用结果不受影响。

可用的 Sink：

  - GormSink：写入 latency_logs 表（默认）。
  - MongoSink：写入 MongoDB 集合。
  - MultiSink：组合多个 Sink。
*/
package latency
