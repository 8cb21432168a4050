package llm

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BaSui01/agora/types"
)

// ExtractJSONObject 返回文本中第一个完整的 JSON 对象子串。
// 先按括号配对扫描（忽略字符串内的括号），失败时退回首个 '{' 到最后一个 '}' 的区间。
func ExtractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		if end := matchObject(s, start); end > start {
			candidate := s[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, true
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first >= 0 && last > first {
		return s[first : last+1], true
	}
	return "", false
}

// matchObject 返回与 s[start] 处 '{' 配对的 '}' 下标，找不到时返回 -1。
func matchObject(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeStructured 将模型输出解析到 v。
// 原生 JSON 模式的输出直接解析；其余情况先截取第一个 JSON 对象。
// 无法恢复时返回 PARSE_ERROR。
func DecodeStructured(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return types.NewError(types.ErrParse, "empty model output").
			WithHTTPStatus(http.StatusUnprocessableEntity)
	}
	if err := json.Unmarshal([]byte(trimmed), v); err == nil {
		return nil
	}

	candidate, ok := ExtractJSONObject(trimmed)
	if !ok {
		return types.NewError(types.ErrParse, "no JSON object in model output").
			WithHTTPStatus(http.StatusUnprocessableEntity)
	}
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return types.NewError(types.ErrParse, "malformed JSON object in model output").
			WithCause(err).
			WithHTTPStatus(http.StatusUnprocessableEntity)
	}
	return nil
}
