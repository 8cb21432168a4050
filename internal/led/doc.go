// Package led 驱动 Ultimarc 街机按钮灯，显示各人格的当前置信度。
//
// 控制器从 Agora 拉取 led-status（或订阅房间 WebSocket 推送），
// 按置信度计算呼吸亮度，把人格颜色写入 hidraw 设备；
// 没有硬件时使用模拟设备，仅在控制台输出每个按钮的状态条。
package led
