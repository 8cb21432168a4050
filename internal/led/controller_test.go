package led

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/BaSui01/agora/ranking"
)

func TestController_StepBeforeStatus(t *testing.T) {
	dev := NewSimulatedDevice()
	c := NewController(dev)
	assert.Nil(t, c.Step(0))
	assert.Zero(t, dev.Writes())
}

func TestController_Step(t *testing.T) {
	dev := NewSimulatedDevice()
	c := NewController(dev)
	c.Update([]ranking.LEDStatus{
		{Index: 1, Name: "Marcus", Color: "#ff0000", Confidence: 100},
		{Index: 2, Name: "Simone", Color: "#00ff00", Confidence: 40},
		{Index: 3, Name: "Hypatia", Color: "not-a-color", Confidence: 90},
		{Index: 4, Name: "Unmapped", Color: "#0000ff", Confidence: 100},
	})

	frames := c.Step(250 * time.Millisecond)
	want := []Frame{
		{Button: 1, Name: "Marcus", Color: RGB{255, 0, 0}, Confidence: 100, Level: 1, Output: RGB{255, 0, 0}},
		// 低于阈值熄灭
		{Button: 2, Name: "Simone", Color: RGB{0, 255, 0}, Confidence: 40},
		// 颜色无效时输出黑色
		{Button: 3, Name: "Hypatia", Confidence: 90, Level: 0.9},
	}
	if diff := cmp.Diff(want, frames, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, uint8(255), dev.Level(1))
	assert.Zero(t, dev.Level(2))
	assert.Zero(t, dev.Level(5))
	assert.Equal(t, 9, dev.Writes())
}

func TestController_DeviceFailureFallsBack(t *testing.T) {
	dev := &failingDevice{}
	c := NewController(dev)
	c.Update([]ranking.LEDStatus{{Index: 1, Name: "Marcus", Color: "#ff0000", Confidence: 80}})

	frames := c.Step(0)
	require.Len(t, frames, 1)
	assert.True(t, c.DeviceLost())
	assert.True(t, dev.closed)

	// 之后的帧写入模拟设备
	assert.Len(t, c.Step(time.Second), 1)
}

// chanSource 由测试推送状态
type chanSource struct {
	updates chan []ranking.LEDStatus
	err     error
}

func (s *chanSource) Run(ctx context.Context, emit func([]ranking.LEDStatus)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case leds, ok := <-s.updates:
			if !ok {
				return s.err
			}
			emit(leds)
		}
	}
}

func TestController_RunAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	dev := NewSimulatedDevice()
	var out bytes.Buffer
	c := NewController(dev,
		WithFrameInterval(5*time.Millisecond),
		WithMapping(Mapping{1: {1, 2, 3}}),
		WithRenderer(NewRenderer(&out, false)),
	)

	src := &chanSource{updates: make(chan []ranking.LEDStatus, 1)}
	src.updates <- []ranking.LEDStatus{{Index: 1, Name: "Marcus", Color: "#ffffff", Confidence: 100}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, src) }()

	require.Eventually(t, func() bool { return dev.Writes() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	// 退出时熄灭并关闭
	for _, ch := range []int{1, 2, 3} {
		assert.Zero(t, dev.Level(ch))
	}
	assert.Error(t, dev.SetBrightness(1, 1))
	assert.Contains(t, out.String(), "Marcus")
}

func TestController_RunReturnsSourceError(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &chanSource{updates: make(chan []ranking.LEDStatus), err: errors.New("source gone")}
	close(src.updates)

	err := NewController(NewSimulatedDevice(), WithFrameInterval(time.Millisecond)).Run(context.Background(), src)
	assert.EqualError(t, err, "source gone")
}

func TestRenderer(t *testing.T) {
	var out bytes.Buffer
	r := NewRenderer(&out, true)
	frames := []Frame{
		{Button: 1, Name: "Marcus", Color: RGB{59, 130, 246}, Confidence: 72, Output: RGB{10, 20, 30}},
		{Button: 2, Name: "Simone", Color: RGB{239, 68, 68}, Confidence: 0},
	}

	r.Render(frames)
	first := out.String()
	assert.Contains(t, first, "1. ")
	assert.Contains(t, first, "Marcus")
	assert.Contains(t, first, " 72% -> RGB( 10, 20, 30)")
	assert.Contains(t, first, "  0% -> RGB(  0,  0,  0)")
	assert.NotContains(t, first, "\033[2A")
	assert.Equal(t, 2, strings.Count(first, "\n"))

	out.Reset()
	r.Render(frames)
	assert.True(t, strings.HasPrefix(out.String(), "\033[2A"))
}

func TestSelfTest(t *testing.T) {
	dev := NewSimulatedDevice()
	err := SelfTest(context.Background(), dev, DefaultMapping(), SelfTestTiming{FadeSteps: 10, ChaseRounds: 3}, nil)
	require.NoError(t, err)

	// 7 色 × 3 按钮 × 10 级 + 跑马灯 3 轮 × 3 × 3 按钮 + 渐暗 11 级 × 3 按钮，每次 3 通道
	assert.Equal(t, (7*3*10+3*3*3+11*3)*3, dev.Writes())
	for ch := 1; ch <= 9; ch++ {
		assert.Zero(t, dev.Level(ch))
	}
}

func TestSelfTest_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dev := NewSimulatedDevice()
	err := SelfTest(ctx, dev, DefaultMapping(), DefaultSelfTestTiming(), nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, dev.Writes())
}
