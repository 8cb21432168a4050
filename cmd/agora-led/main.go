// =============================================================================
// Agora LED 控制器
// =============================================================================
// 读取各人格的置信度并驱动 Ultimarc 按钮灯
//
// 使用方法:
//
//	agora-led                                   # 轮询 http://localhost:8080
//	agora-led http://agora.local:8080           # 指定服务地址
//	agora-led --room main --stream             # 订阅 WebSocket 推送
//	agora-led --device /dev/hidraw2             # 指定 hidraw 节点
//	agora-led --simulate                        # 不访问硬件
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agora/internal/led"
)

var (
	Version = "dev"
)

type options struct {
	url       string
	room      string
	apiKey    string
	token     string
	stream    bool
	interval  time.Duration
	frame     time.Duration
	device    string
	simulate  bool
	skipTest  bool
	mapping   string
	logLevel  string
	noConsole bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:     "agora-led [url]",
		Short:   "Drive Ultimarc button LEDs from Agora persona confidence",
		Version: Version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.url = args[0]
			}
			return run(cmd.Context(), opts)
		},
		SilenceUsage: true,
	}

	f := cmd.Flags()
	f.StringVar(&opts.url, "url", envOr("AGORA_URL", "http://localhost:8080"), "Agora server URL")
	f.StringVar(&opts.room, "room", "", "Room name (default: server default room)")
	f.StringVar(&opts.apiKey, "api-key", os.Getenv("AGORA_API_KEY"), "API key sent as X-API-Key")
	f.StringVar(&opts.token, "token", os.Getenv("AGORA_TOKEN"), "JWT bearer token")
	f.BoolVar(&opts.stream, "stream", false, "Subscribe to the room WebSocket instead of polling (requires --room)")
	f.DurationVar(&opts.interval, "interval", time.Second, "Poll interval / reconnect backoff")
	f.DurationVar(&opts.frame, "frame", 50*time.Millisecond, "LED refresh interval")
	f.StringVar(&opts.device, "device", "", "hidraw device path (default: auto-detect)")
	f.BoolVar(&opts.simulate, "simulate", false, "Do not touch hardware")
	f.BoolVar(&opts.skipTest, "skip-test", false, "Skip the startup colour test")
	f.StringVar(&opts.mapping, "map", "1=1,2,3;2=4,5,6;3=7,8,9", "Button to channel mapping")
	f.StringVar(&opts.logLevel, "log-level", "info", "Log level")
	f.BoolVar(&opts.noConsole, "quiet", false, "Disable the console status display")
	return cmd
}

func run(ctx context.Context, opts *options) error {
	logger := newLogger(opts.logLevel)
	defer logger.Sync()

	mapping, err := led.ParseMapping(opts.mapping)
	if err != nil {
		return err
	}
	if opts.stream && opts.room == "" {
		return errors.New("--stream requires --room")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	printBanner(opts, mapping)

	dev, hardware := openDevice(opts, logger)
	if hardware && !opts.skipTest {
		if err := led.SelfTest(ctx, dev, mapping, led.DefaultSelfTestTiming(), logger); err != nil && ctx.Err() == nil {
			logger.Warn("LED self test failed", zap.Error(err))
		}
	}

	cfg := led.ClientConfig{
		BaseURL:  opts.url,
		Room:     opts.room,
		APIKey:   opts.apiKey,
		Token:    opts.token,
		Interval: opts.interval,
	}
	onErr := func(err error) { logger.Warn("Agora API error", zap.Error(err)) }

	var src led.Source = led.NewPoller(cfg, onErr)
	if opts.stream {
		src = led.NewSubscriber(cfg, onErr)
	}

	copts := []led.Option{
		led.WithMapping(mapping),
		led.WithFrameInterval(opts.frame),
		led.WithLogger(logger),
	}
	if !opts.noConsole {
		copts = append(copts, led.WithRenderer(led.NewRenderer(os.Stdout, true)))
	}

	logger.Info("Starting LED control loop", zap.Bool("hardware", hardware), zap.Bool("stream", opts.stream))
	return led.NewController(dev, copts...).Run(ctx, src)
}

// openDevice 依次尝试 --device、自动探测，失败时回退到模拟设备
func openDevice(opts *options, logger *zap.Logger) (led.Device, bool) {
	if opts.simulate {
		return led.NewSimulatedDevice(), false
	}

	path := opts.device
	if path == "" {
		found, err := led.DefaultFinder().Find()
		if err != nil {
			logger.Info("No Ultimarc hardware detected, running simulated", zap.Error(err))
			return led.NewSimulatedDevice(), false
		}
		path = found
	}

	dev, err := led.OpenHID(path)
	if err != nil {
		logger.Warn("Failed to open LED device, running simulated", zap.String("path", path), zap.Error(err))
		return led.NewSimulatedDevice(), false
	}
	logger.Info("Connected to Ultimarc device", zap.String("path", path))
	return dev, true
}

func printBanner(opts *options, mapping led.Mapping) {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 2)
	fmt.Println(title.Render("Agora LED Controller"))

	source := "poll " + opts.interval.String()
	if opts.stream {
		source = "stream"
	}
	fmt.Printf("  URL: %s  room: %s  source: %s\n", opts.url, orDefault(opts.room, "(default)"), source)
	for _, b := range mapping.Buttons() {
		fmt.Printf("  button %d -> channels %v\n", b, mapping[b])
	}
	fmt.Println()
}

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("service", "agora-led"))
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
