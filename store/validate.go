package store

import (
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/agora/types"
)

// 条目字段上限，与表结构一致
const (
	MaxSpeakerLength = 100
	MaxContentLength = 8000
)

// ValidateEntry 校验发言人与内容，返回去除首尾空白后的值
func ValidateEntry(speaker, content string) (string, string, error) {
	speaker = strings.TrimSpace(speaker)
	content = strings.TrimSpace(content)
	switch {
	case speaker == "":
		return "", "", types.Validationf("speaker is required")
	case utf8.RuneCountInString(speaker) > MaxSpeakerLength:
		return "", "", types.Validationf("speaker exceeds %d characters", MaxSpeakerLength)
	case content == "":
		return "", "", types.Validationf("content is required")
	case utf8.RuneCountInString(content) > MaxContentLength:
		return "", "", types.Validationf("content exceeds %d characters", MaxContentLength)
	}
	return speaker, content, nil
}
