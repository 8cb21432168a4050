package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ⚡ 按家族熔断
// =============================================================================

// BreakerState 熔断器状态
type BreakerState int

const (
	// BreakerClosed 正常放行
	BreakerClosed BreakerState = iota
	// BreakerOpen 熔断中，直接失败
	BreakerOpen
	// BreakerHalfOpen 冷却结束，放行少量试探调用
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig 熔断参数。熔断不是重试：打开期间该家族的调用立即失败。
type BreakerConfig struct {
	// Threshold 连续失败次数达到后打开
	Threshold int
	// Cooldown 打开后多久进入半开
	Cooldown time.Duration
	// HalfOpenMaxCalls 半开状态下同时放行的试探调用数
	HalfOpenMaxCalls int
	// OnStateChange 状态变化回调，在持锁外同步调用
	OnStateChange func(f Family, from, to BreakerState)
}

// DefaultBreakerConfig 默认熔断参数
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second, HalfOpenMaxCalls: 1}
}

type breaker struct {
	family Family
	cfg    BreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu            sync.Mutex
	state         BreakerState
	failures      int
	openedAt      time.Time
	halfOpenCalls int
}

func newBreaker(f Family, cfg BreakerConfig, logger *zap.Logger) *breaker {
	def := DefaultBreakerConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = def.HalfOpenMaxCalls
	}
	return &breaker{family: f, cfg: cfg, logger: logger, now: time.Now}
}

// allow 判断是否放行本次调用
func (b *breaker) allow() error {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return b.openError()
		}
		b.state = BreakerHalfOpen
		b.halfOpenCalls = 1
	case BreakerHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			b.mu.Unlock()
			return b.openError()
		}
		b.halfOpenCalls++
	}
	to := b.state
	b.mu.Unlock()

	b.changed(from, to)
	return nil
}

// record 记录调用结果。只有成功才会清零或闭合；
// 不计入熔断的错误保持原状态，半开时归还试探名额。
func (b *breaker) record(err error) {
	b.mu.Lock()
	from := b.state
	switch {
	case err == nil:
		b.failures = 0
		b.halfOpenCalls = 0
		b.state = BreakerClosed
	case !countsAsFailure(err):
		if b.state == BreakerHalfOpen && b.halfOpenCalls > 0 {
			b.halfOpenCalls--
		}
	case b.state == BreakerHalfOpen:
		b.halfOpenCalls = 0
		b.state = BreakerOpen
		b.openedAt = b.now()
	default:
		b.failures++
		if b.state == BreakerClosed && b.failures >= b.cfg.Threshold {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
	}
	to := b.state
	b.mu.Unlock()

	b.changed(from, to)
}

func (b *breaker) current() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) changed(from, to BreakerState) {
	if from == to {
		return
	}
	b.logger.Warn("provider circuit state changed",
		zap.String("family", string(b.family)),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.family, from, to)
	}
}

func (b *breaker) openError() error {
	return &Error{
		Code:       ErrProviderUnavailable,
		Message:    fmt.Sprintf("%s circuit open after repeated failures", b.family),
		HTTPStatus: http.StatusServiceUnavailable,
		Retryable:  true,
		Provider:   string(b.family),
	}
}

// countsAsFailure 调用方取消与请求本身的问题不计入熔断
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case ErrInvalidRequest, ErrUnauthorized, ErrForbidden, ErrQuotaExceeded, ErrUnknownModel:
			return false
		}
	}
	return true
}
