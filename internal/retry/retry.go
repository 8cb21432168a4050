package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Policy 指数退避策略
type Policy struct {
	// MaxRetries 首次调用之外的最大重试次数，0 表示不重试
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter 为 true 时在 ±25% 范围内随机抖动
	Jitter  bool
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 启动期依赖（数据库等）的默认策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay 第 attempt 次重试（1 起）前的等待时间，不小于 InitialDelay，不大于 MaxDelay
func (p Policy) Delay(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		delay += (rand.Float64()*2 - 1) * delay * 0.25
	}
	delay = min(max(delay, float64(p.InitialDelay)), float64(p.MaxDelay))
	return time.Duration(delay)
}

// permanentError 标记不应重试的错误
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 包装后 Do 立即返回原错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误是否被 Permanent 包装
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do 执行 fn，失败时按策略退避重试
func Do(ctx context.Context, p Policy, logger *zap.Logger, fn func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, logger, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoValue 与 Do 相同，成功时返回 fn 的结果
func DoValue[T any](ctx context.Context, p Policy, logger *zap.Logger, fn func(ctx context.Context) (T, error)) (T, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p = p.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Delay(attempt)
			logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", p.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}

			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, fmt.Errorf("retry canceled: %w", errors.Join(ctx.Err(), lastErr))
			case <-t.C:
			}
		}

		v, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("retry succeeded", zap.Int("attempt", attempt))
			}
			return v, nil
		}
		lastErr = err

		var pe *permanentError
		if errors.As(err, &pe) {
			return zero, pe.err
		}
	}

	logger.Warn("retries exhausted", zap.Int("attempts", p.MaxRetries+1), zap.Error(lastErr))
	return zero, fmt.Errorf("failed after %d attempts: %w", p.MaxRetries+1, lastErr)
}
