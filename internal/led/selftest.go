package led

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🧪 启动自检
// =============================================================================

// TestColor 自检颜色
type TestColor struct {
	Name  string
	Color RGB
}

// TestColors 自检依次点亮的颜色
var TestColors = []TestColor{
	{"Red", RGB{255, 0, 0}},
	{"Green", RGB{0, 255, 0}},
	{"Blue", RGB{0, 0, 255}},
	{"Yellow", RGB{255, 255, 0}},
	{"Cyan", RGB{0, 255, 255}},
	{"Magenta", RGB{255, 0, 255}},
	{"White", RGB{255, 255, 255}},
}

// SelfTestTiming 自检节奏
type SelfTestTiming struct {
	FadeSteps   int
	FadeStep    time.Duration
	Hold        time.Duration
	ChaseRounds int
	ChaseStep   time.Duration
}

// DefaultSelfTestTiming 默认节奏，整套约 7 秒
func DefaultSelfTestTiming() SelfTestTiming {
	return SelfTestTiming{
		FadeSteps:   10,
		FadeStep:    30 * time.Millisecond,
		Hold:        400 * time.Millisecond,
		ChaseRounds: 3,
		ChaseStep:   150 * time.Millisecond,
	}
}

// SelfTest 逐色渐亮全部按钮，随后白色跑马灯，最后整体渐暗到熄灭
func SelfTest(ctx context.Context, dev Device, m Mapping, timing SelfTestTiming, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	buttons := m.Buttons()
	steps := max(timing.FadeSteps, 1)

	for _, tc := range TestColors {
		logger.Info("LED self test", zap.String("color", tc.Name))
		for _, b := range buttons {
			for step := 1; step <= steps; step++ {
				if err := SetRGB(dev, m[b], tc.Color.Scale(float64(step)/float64(steps))); err != nil {
					return err
				}
				if err := sleep(ctx, timing.FadeStep); err != nil {
					return err
				}
			}
		}
		if err := sleep(ctx, timing.Hold); err != nil {
			return err
		}
	}

	logger.Info("LED self test", zap.String("phase", "chase"))
	white := RGB{255, 255, 255}
	for round := 0; round < timing.ChaseRounds; round++ {
		for _, lit := range buttons {
			for _, b := range buttons {
				c := RGB{}
				if b == lit {
					c = white
				}
				if err := SetRGB(dev, m[b], c); err != nil {
					return err
				}
			}
			if err := sleep(ctx, timing.ChaseStep); err != nil {
				return err
			}
		}
	}

	logger.Info("LED self test", zap.String("phase", "fade out"))
	for step := steps; step >= 0; step-- {
		c := white.Scale(float64(step) / float64(steps))
		for _, b := range buttons {
			if err := SetRGB(dev, m[b], c); err != nil {
				return err
			}
		}
		if err := sleep(ctx, timing.FadeStep); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
