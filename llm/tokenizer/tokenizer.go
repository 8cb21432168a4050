package tokenizer

import (
	"sync"

	"go.uber.org/zap"
)

// Counter 统计文本的 token 数。实现必须可并发调用。
type Counter interface {
	Count(text string) int
	Name() string
}

var (
	countersMu sync.RWMutex
	counters   = make(map[string]Counter)
)

// ForModel 返回模型对应的计数器，同一模型复用同一实例。
// OpenAI 家族使用 tiktoken 精确计数，其余模型用 cl100k_base 近似；
// 编码表加载失败（例如离线）时退回估算器。
func ForModel(model string, logger *zap.Logger) Counter {
	countersMu.RLock()
	c, ok := counters[model]
	countersMu.RUnlock()
	if ok {
		return c
	}

	countersMu.Lock()
	defer countersMu.Unlock()
	if c, ok := counters[model]; ok {
		return c
	}
	c = newTiktokenCounter(model, logger)
	counters[model] = c
	return c
}

// FitLines 从最旧的一行开始丢弃，直到剩余行的 token 总数不超过 budget。
// 最新的一行总会保留；budget <= 0 表示不限制。
func FitLines(c Counter, lines []string, budget int) []string {
	if budget <= 0 || len(lines) == 0 {
		return lines
	}

	total := 0
	start := len(lines)
	for i := len(lines) - 1; i >= 0; i-- {
		n := c.Count(lines[i]) + 1 // 换行
		if total+n > budget && i < len(lines)-1 {
			break
		}
		total += n
		start = i
	}
	return lines[start:]
}
