package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestBreaker(threshold int, cooldown time.Duration) (*breaker, *fakeClock, *[]string) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	var transitions []string
	b := newBreaker(FamilyOpenAI, BreakerConfig{
		Threshold: threshold,
		Cooldown:  cooldown,
		OnStateChange: func(f Family, from, to BreakerState) {
			transitions = append(transitions, fmt.Sprintf("%s:%s->%s", f, from, to))
		},
	}, zap.NewNop())
	b.now = clock.now
	return b, clock, &transitions
}

var errUpstream = &Error{Code: ErrUpstreamError, Message: "502"}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _, transitions := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.allow())
		b.record(errUpstream)
	}
	assert.Equal(t, BreakerClosed, b.current())

	require.NoError(t, b.allow())
	b.record(errUpstream)
	assert.Equal(t, BreakerOpen, b.current())

	err := b.allow()
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrProviderUnavailable, llmErr.Code)
	assert.Equal(t, 503, llmErr.HTTPStatus)
	assert.Equal(t, []string{"openai:closed->open"}, *transitions)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _, _ := newTestBreaker(2, time.Minute)
	b.record(errUpstream)
	b.record(nil)
	b.record(errUpstream)
	assert.Equal(t, BreakerClosed, b.current())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock, transitions := newTestBreaker(1, 10*time.Second)
	b.record(errUpstream)
	require.Equal(t, BreakerOpen, b.current())

	clock.t = clock.t.Add(11 * time.Second)
	require.NoError(t, b.allow())
	assert.Equal(t, BreakerHalfOpen, b.current())
	// 半开只放行一个试探
	assert.Error(t, b.allow())

	b.record(nil)
	assert.Equal(t, BreakerClosed, b.current())
	assert.Equal(t, []string{
		"openai:closed->open",
		"openai:open->half_open",
		"openai:half_open->closed",
	}, *transitions)
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock, _ := newTestBreaker(1, 10*time.Second)
	b.record(errUpstream)
	clock.t = clock.t.Add(11 * time.Second)
	require.NoError(t, b.allow())

	b.record(errUpstream)
	assert.Equal(t, BreakerOpen, b.current())
	assert.Error(t, b.allow())
}

func TestBreaker_NeutralErrorsKeepFailureCount(t *testing.T) {
	b, _, _ := newTestBreaker(2, time.Minute)

	b.record(errUpstream)
	b.record(context.Canceled)
	b.record(&Error{Code: ErrInvalidRequest})
	assert.Equal(t, BreakerClosed, b.current())

	b.record(errUpstream)
	assert.Equal(t, BreakerOpen, b.current())
}

func TestBreaker_HalfOpenNeutralErrorDoesNotClose(t *testing.T) {
	b, clock, _ := newTestBreaker(1, 10*time.Second)
	b.record(errUpstream)
	clock.t = clock.t.Add(11 * time.Second)

	require.NoError(t, b.allow())
	b.record(&Error{Code: ErrUnauthorized, HTTPStatus: 401})
	assert.Equal(t, BreakerHalfOpen, b.current())

	// 试探名额已归还，下一次调用才决定结果
	require.NoError(t, b.allow())
	b.record(errUpstream)
	assert.Equal(t, BreakerOpen, b.current())
}

func TestCountsAsFailure(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("wrapped: %w", context.Canceled), false},
		{&Error{Code: ErrInvalidRequest}, false},
		{&Error{Code: ErrUnauthorized}, false},
		{&Error{Code: ErrQuotaExceeded}, false},
		{&Error{Code: ErrRateLimited}, true},
		{&Error{Code: ErrUpstreamTimeout}, true},
		{context.DeadlineExceeded, true},
		{errors.New("connection reset"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, countsAsFailure(tt.err), "%v", tt.err)
	}
}

func TestBreakerState_String(t *testing.T) {
	assert.Equal(t, "closed", BreakerClosed.String())
	assert.Equal(t, "open", BreakerOpen.String())
	assert.Equal(t, "half_open", BreakerHalfOpen.String())
	assert.Equal(t, "unknown", BreakerState(9).String())
}
