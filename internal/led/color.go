package led

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// 🎨 颜色与呼吸亮度
// =============================================================================

const (
	// PulseSpeed 呼吸频率（rad/s 为 PulseSpeed·π）
	PulseSpeed = 2.0
	// MinPulseBrightness 呼吸最暗处占满亮度的比例
	MinPulseBrightness = 0.2
	// ConfidenceThreshold 低于该置信度时按钮熄灭
	ConfidenceThreshold = 50
)

// RGB 8 位颜色
type RGB struct {
	R, G, B uint8
}

// String 以 RGB(r,g,b) 形式输出
func (c RGB) String() string {
	return fmt.Sprintf("RGB(%d,%d,%d)", c.R, c.G, c.B)
}

// Hex 以 #rrggbb 形式输出
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Scale 按比例缩放各通道，截断并钳制到 0..255
func (c RGB) Scale(factor float64) RGB {
	return RGB{R: scaleChannel(c.R, factor), G: scaleChannel(c.G, factor), B: scaleChannel(c.B, factor)}
}

// Gray 单通道按钮使用的亮度值
func (c RGB) Gray() uint8 {
	return clamp(int(0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)))
}

func scaleChannel(v uint8, factor float64) uint8 {
	return clamp(int(float64(v) * factor))
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// ParseHex 解析 #rrggbb / rrggbb
func ParseHex(s string) (RGB, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Pulse 计算当前时刻的亮度系数，范围 [0, confidence/100]。
// 置信度低于阈值时返回 0，否则在 MinPulseBrightness..1 之间按正弦呼吸。
func Pulse(confidence int, elapsed time.Duration) float64 {
	if confidence < ConfidenceThreshold {
		return 0
	}
	if confidence > 100 {
		confidence = 100
	}
	t := elapsed.Seconds()
	wave := (math.Sin(t*PulseSpeed*math.Pi) + 1) / 2
	return float64(confidence) / 100 * (MinPulseBrightness + (1-MinPulseBrightness)*wave)
}
