package orchestrator

import (
	"fmt"
	"math"
	"strings"

	"github.com/BaSui01/agora/llm"
	"github.com/BaSui01/agora/store"
)

// confidenceRubric 置信度评分标准。低分是常态，只有具体、切题的洞见才超过发言阈值。
const confidenceRubric = `Score your confidence from 0 to 100 that you should speak right now:
- 0-20: nothing to add, or anything you would say is generic. This is the normal case.
- 21-50: you have a thought, but it is not specific to what was just said.
- 51-80: you have a specific, non-generic insight that directly addresses the latest turns.
- 81-100: the conversation clearly needs exactly your perspective, and staying silent would lose something.
Be conservative. Most of the time you should stay quiet.`

const responseFormat = `Reply with a single JSON object and nothing else:
{"shouldSpeak": boolean, "confidence": integer 0-100, "analysis": "why you would or would not speak", "response": "what you would say, in one to three sentences"}`

// Verdict 模型返回的结构化评估
type Verdict struct {
	ShouldSpeak bool    `json:"shouldSpeak"`
	Confidence  float64 `json:"confidence"`
	Analysis    string  `json:"analysis"`
	Response    string  `json:"response"`
}

// NormalizedConfidence 将置信度四舍五入并截断到 [0,100]
func (v Verdict) NormalizedConfidence() int {
	c := math.Round(v.Confidence)
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return int(c)
	}
}

// systemPrompt 组合人格名称、描述、行为提示与评分标准
func systemPrompt(p store.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, one of several personas quietly listening to a live conversation.\n", p.Name)
	if d := strings.TrimSpace(p.Description); d != "" {
		b.WriteString(d)
		b.WriteString("\n")
	}
	if pr := strings.TrimSpace(p.Prompt); pr != "" {
		b.WriteString("\n")
		b.WriteString(pr)
		b.WriteString("\n")
	}
	b.WriteString("\nYou never interrupt. You only propose a response; a human decides whether it is spoken.\n\n")
	b.WriteString(confidenceRubric)
	b.WriteString("\n\n")
	b.WriteString(responseFormat)
	return b.String()
}

// renderLines 将条目渲染为 "speaker: content"，最旧的在前
func renderLines(entries []store.Entry) []string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Speaker+": "+strings.TrimSpace(e.Content))
	}
	return lines
}

func buildMessages(p store.Persona, lines []string) []llm.Message {
	user := "Recent conversation (oldest first):\n\n" + strings.Join(lines, "\n") +
		"\n\nEvaluate whether you should speak next."
	return []llm.Message{
		llm.SystemMessage(systemPrompt(p)),
		llm.UserMessage(user),
	}
}
