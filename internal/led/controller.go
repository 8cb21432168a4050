package led

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agora/ranking"
)

// =============================================================================
// 🎛️ 控制循环
// =============================================================================

// Option 控制器选项
type Option func(*Controller)

// WithMapping 设置按钮到通道的映射
func WithMapping(m Mapping) Option {
	return func(c *Controller) { c.mapping = m }
}

// WithFrameInterval 设置刷新间隔
func WithFrameInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.frame = d
		}
	}
}

// WithRenderer 设置控制台输出，nil 表示不输出
func WithRenderer(r *Renderer) Option {
	return func(c *Controller) { c.renderer = r }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// Controller 把最新的人格状态映射为按钮灯光
type Controller struct {
	mapping  Mapping
	frame    time.Duration
	renderer *Renderer
	logger   *zap.Logger
	start    time.Time

	mu      sync.Mutex
	dev     Device
	leds    []ranking.LEDStatus
	badHex  map[string]bool
	devLost bool
}

// NewController 创建控制器
func NewController(dev Device, opts ...Option) *Controller {
	c := &Controller{
		mapping: DefaultMapping(),
		frame:   time.Second,
		logger:  zap.NewNop(),
		dev:     dev,
		badHex:  make(map[string]bool),
		start:   time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update 替换当前状态。空切片视为有效状态（全部熄灭）。
func (c *Controller) Update(leds []ranking.LEDStatus) {
	c.mu.Lock()
	c.leds = leds
	c.mu.Unlock()
}

// Step 按 elapsed 计算每个按钮的颜色并写入设备。尚未收到状态时不写入。
func (c *Controller) Step(elapsed time.Duration) []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.leds == nil {
		return nil
	}

	byButton := make(map[int]ranking.LEDStatus, len(c.leds))
	for _, s := range c.leds {
		byButton[s.Index] = s
	}

	frames := make([]Frame, 0, len(c.mapping))
	for _, b := range c.mapping.Buttons() {
		s, ok := byButton[b]
		if !ok {
			continue
		}
		base, err := ParseHex(s.Color)
		if err != nil && !c.badHex[s.Color] {
			c.badHex[s.Color] = true
			c.logger.Warn("invalid persona color", zap.String("name", s.Name), zap.String("color", s.Color))
		}
		level := Pulse(s.Confidence, elapsed)
		f := Frame{
			Button:     b,
			Name:       s.Name,
			Color:      base,
			Confidence: s.Confidence,
			Level:      level,
			Output:     base.Scale(level),
		}
		c.write(b, f.Output)
		frames = append(frames, f)
	}
	return frames
}

// write 设备写入失败时改用模拟设备继续运行
func (c *Controller) write(button int, rgb RGB) {
	if err := SetRGB(c.dev, c.mapping[button], rgb); err != nil {
		c.logger.Error("LED device write failed, continuing without hardware", zap.Error(err))
		_ = c.dev.Close()
		c.dev = NewSimulatedDevice()
		c.devLost = true
	}
}

// DeviceLost 是否因写入失败放弃过硬件
func (c *Controller) DeviceLost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.devLost
}

// Run 启动状态来源与刷新循环，ctx 结束后熄灭全部按钮并关闭设备
func (c *Controller) Run(ctx context.Context, src Source) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return src.Run(gctx, c.Update)
	})

	g.Go(func() error {
		ticker := time.NewTicker(c.frame)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case now := <-ticker.C:
				frames := c.Step(now.Sub(c.start))
				if c.renderer != nil && len(frames) > 0 {
					c.renderer.Render(frames)
				}
			}
		}
	})

	err := g.Wait()
	c.shutdown()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := AllOff(c.dev, c.mapping); err != nil {
		c.logger.Warn("failed to turn LEDs off", zap.Error(err))
	}
	if err := c.dev.Close(); err != nil {
		c.logger.Warn("failed to close LED device", zap.Error(err))
	}
	c.logger.Info("LEDs off")
}
