package led

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// =============================================================================
// 🖥️ 控制台输出
// =============================================================================

const barWidth = 20

// Frame 一个按钮在某一帧的输出
type Frame struct {
	Button     int
	Name       string
	Color      RGB
	Confidence int
	Level      float64
	Output     RGB
}

// Bar 每 5% 一格的置信度条
func Bar(confidence int) string {
	n := min(max(confidence/5, 0), barWidth)
	return strings.Repeat("#", n) + strings.Repeat(".", barWidth-n)
}

// Renderer 把帧写成每个按钮一行。Live 模式下原地刷新上一帧。
type Renderer struct {
	out       io.Writer
	live      bool
	lastLines int
	dim       lipgloss.Style
}

// NewRenderer 创建控制台输出
func NewRenderer(out io.Writer, live bool) *Renderer {
	return &Renderer{
		out:  out,
		live: live,
		dim:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

// Render 输出一帧
func (r *Renderer) Render(frames []Frame) {
	var b strings.Builder
	if r.live && r.lastLines > 0 {
		fmt.Fprintf(&b, "\033[%dA", r.lastLines)
	}
	for _, f := range frames {
		if r.live {
			b.WriteString("\033[2K")
		}
		b.WriteString(r.line(f))
		b.WriteByte('\n')
	}
	r.lastLines = len(frames)
	io.WriteString(r.out, b.String())
}

func (r *Renderer) line(f Frame) string {
	accent := lipgloss.NewStyle().Foreground(lipgloss.Color(f.Color.Hex()))
	name := accent.Bold(true).Width(24).Render(f.Name)

	bar := Bar(f.Confidence)
	n := strings.IndexByte(bar, '.')
	if n < 0 {
		n = len(bar)
	}
	return fmt.Sprintf("  %d. %s [%s%s] %3d%% -> %s",
		f.Button, name,
		accent.Render(bar[:n]), r.dim.Render(bar[n:]),
		f.Confidence,
		fmt.Sprintf("RGB(%3d,%3d,%3d)", f.Output.R, f.Output.G, f.Output.B),
	)
}
