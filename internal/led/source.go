package led

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/BaSui01/agora/internal/retry"
	"github.com/BaSui01/agora/internal/tlsutil"
	"github.com/BaSui01/agora/ranking"
)

// =============================================================================
// 📡 状态来源
// =============================================================================

// Source 向控制器提供按钮状态。Run 阻塞直到 ctx 结束，每次拿到新状态调用 emit。
type Source interface {
	Run(ctx context.Context, emit func([]ranking.LEDStatus)) error
}

// ClientConfig 连接 Agora 服务的参数
type ClientConfig struct {
	// BaseURL 服务地址，例如 http://localhost:8080
	BaseURL string
	// Room 为空时使用兼容端点 /api/led-status（服务端默认房间）
	Room   string
	APIKey string
	// Token JWT Bearer 令牌，与 APIKey 二选一
	Token    string
	Interval time.Duration
	Timeout  time.Duration
}

func (c ClientConfig) header() http.Header {
	h := http.Header{}
	if c.APIKey != "" {
		h.Set("X-API-Key", c.APIKey)
	}
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
	return h
}

func (c ClientConfig) statusURL() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.Room == "" {
		return base + "/api/led-status"
	}
	return base + "/api/v1/rooms/" + url.PathEscape(c.Room) + "/led-status"
}

func (c ClientConfig) streamURL() (string, error) {
	if c.Room == "" {
		return "", errors.New("stream mode requires a room")
	}
	u, err := url.Parse(strings.TrimRight(c.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	u.Path += "/api/v1/rooms/" + url.PathEscape(c.Room) + "/stream"
	return u.String(), nil
}

// -----------------------------------------------------------------------------
// 轮询
// -----------------------------------------------------------------------------

// Poller 定期拉取 led-status
type Poller struct {
	cfg    ClientConfig
	client *http.Client
	onErr  func(error)
}

// NewPoller 创建轮询来源。onErr 接收单次拉取失败，可为 nil。
func NewPoller(cfg ClientConfig, onErr func(error)) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if onErr == nil {
		onErr = func(error) {}
	}
	client := &http.Client{Timeout: cfg.Timeout}
	if strings.HasPrefix(cfg.BaseURL, "https://") {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &Poller{cfg: cfg, client: client, onErr: onErr}
}

// Fetch 拉取一次状态
func (p *Poller) Fetch(ctx context.Context) ([]ranking.LEDStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.statusURL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header = p.cfg.header()
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("led-status: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var leds []ranking.LEDStatus
	if err := json.NewDecoder(resp.Body).Decode(&leds); err != nil {
		return nil, fmt.Errorf("decode led-status: %w", err)
	}
	return leds, nil
}

// Run 立即拉取一次，然后按间隔轮询。失败时保留上一次状态。
func (p *Poller) Run(ctx context.Context, emit func([]ranking.LEDStatus)) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		if leds, err := p.Fetch(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.onErr(err)
		} else {
			emit(leds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// -----------------------------------------------------------------------------
// WebSocket 订阅
// -----------------------------------------------------------------------------

// streamUpdate 只解码推送消息中控制器关心的字段
type streamUpdate struct {
	Type string              `json:"type"`
	LEDs []ranking.LEDStatus `json:"leds"`
}

// Subscriber 订阅房间 WebSocket 推送，断线后按指数退避重连
type Subscriber struct {
	cfg     ClientConfig
	onErr   func(error)
	backoff retry.Policy
}

// NewSubscriber 创建订阅来源
func NewSubscriber(cfg ClientConfig, onErr func(error)) *Subscriber {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if onErr == nil {
		onErr = func(error) {}
	}
	return &Subscriber{
		cfg:   cfg,
		onErr: onErr,
		backoff: retry.Policy{
			InitialDelay: cfg.Interval,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}

// Run 保持订阅直到 ctx 结束
func (s *Subscriber) Run(ctx context.Context, emit func([]ranking.LEDStatus)) error {
	target, err := s.cfg.streamURL()
	if err != nil {
		return err
	}
	attempt := 0
	for {
		err := s.session(ctx, target, emit, func() { attempt = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.onErr(err)

		attempt++
		t := time.NewTimer(s.backoff.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (s *Subscriber) session(ctx context.Context, target string, emit func([]ranking.LEDStatus), connected func()) error {
	opts := &websocket.DialOptions{HTTPHeader: s.cfg.header()}
	if strings.HasPrefix(target, "https://") {
		opts.HTTPClient = tlsutil.SecureHTTPClient(0)
	}
	conn, _, err := websocket.Dial(ctx, target, opts)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.CloseNow()
	connected()

	for {
		var u streamUpdate
		if err := wsjson.Read(ctx, conn, &u); err != nil {
			return fmt.Errorf("read stream: %w", err)
		}
		if u.LEDs != nil {
			emit(u.LEDs)
		}
	}
}
