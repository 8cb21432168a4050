package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// modelEncodings 按模型前缀选择编码，未命中的模型使用 cl100k_base。
var modelEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"o4", "o200k_base"},
	{"o3", "o200k_base"},
	{"gpt-4", "cl100k_base"},
	{"gpt-3.5", "cl100k_base"},
}

func encodingFor(model string) string {
	for _, m := range modelEncodings {
		if strings.HasPrefix(model, m.prefix) {
			return m.encoding
		}
	}
	return "cl100k_base"
}

// tiktokenCounter 延迟加载编码表，失败后永久退回估算器。
type tiktokenCounter struct {
	encoding string
	logger   *zap.Logger

	once     sync.Once
	enc      *tiktoken.Tiktoken
	fallback Counter
}

func newTiktokenCounter(model string, logger *zap.Logger) *tiktokenCounter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tiktokenCounter{
		encoding: encodingFor(model),
		logger:   logger,
		fallback: Estimator{},
	}
}

func (t *tiktokenCounter) load() {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.logger.Warn("tiktoken encoding unavailable, using estimator",
				zap.String("encoding", t.encoding),
				zap.Error(err))
			return
		}
		t.enc = enc
	})
}

func (t *tiktokenCounter) Count(text string) int {
	t.load()
	if t.enc == nil {
		return t.fallback.Count(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func (t *tiktokenCounter) Name() string {
	t.load()
	if t.enc == nil {
		return t.fallback.Name()
	}
	return "tiktoken[" + t.encoding + "]"
}
