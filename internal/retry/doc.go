// Package retry 提供指数退避重试，用于启动期连接数据库和 LED 控制器断线重连。
//
// LLM 调用不经过这里：单次分析内的人格调用失败即记录，不自动重试。
package retry
