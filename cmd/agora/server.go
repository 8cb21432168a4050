package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/agora/api/handlers"
	"github.com/BaSui01/agora/config"
	"github.com/BaSui01/agora/conversation"
	"github.com/BaSui01/agora/feedback"
	"github.com/BaSui01/agora/internal/cache"
	"github.com/BaSui01/agora/internal/database"
	"github.com/BaSui01/agora/internal/metrics"
	"github.com/BaSui01/agora/internal/server"
	"github.com/BaSui01/agora/internal/telemetry"
	"github.com/BaSui01/agora/latency"
	"github.com/BaSui01/agora/llm"
	"github.com/BaSui01/agora/llm/providers"
	anthropic "github.com/BaSui01/agora/llm/providers/anthropic"
	"github.com/BaSui01/agora/llm/providers/openai"
	"github.com/BaSui01/agora/llm/tokenizer"
	"github.com/BaSui01/agora/moderation"
	"github.com/BaSui01/agora/orchestrator"
	"github.com/BaSui01/agora/personas"
	"github.com/BaSui01/agora/ranking"
	"github.com/BaSui01/agora/store"
	"github.com/BaSui01/agora/stream"
)

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 持有 agora serve 进程的全部组件，按依赖顺序启动、逆序关闭
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// Prometheus 命名空间，测试中每个实例需要不同值
	metricsNamespace string

	telemetry *telemetry.Providers
	collector *metrics.Collector
	pool      *database.PoolManager
	store     *store.Store
	cache     *cache.Manager
	tracker   *latency.Tracker
	mongo     *latency.MongoSink
	router    *llm.Router
	hub       *stream.Hub

	healthHandler *handlers.HealthHandler
	routes        []interface{ RegisterRoutes(*http.ServeMux) }

	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, logger: logger, metricsNamespace: "agora"}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化组件并启动 API 与 Metrics 两个端口
func (s *Server) Start() error {
	var err error

	s.telemetry, err = telemetry.Init(s.cfg.Telemetry, Version, s.logger)
	if err != nil {
		// 追踪不可用不阻止启动
		s.logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	s.collector = metrics.NewCollector(s.metricsNamespace, s.logger)

	if err := s.initStorage(); err != nil {
		return fmt.Errorf("failed to init storage: %w", err)
	}
	if err := s.initLatency(); err != nil {
		return fmt.Errorf("failed to init latency tracker: %w", err)
	}
	s.initRouter()
	if err := s.initServices(); err != nil {
		return fmt.Errorf("failed to init services: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("tls", s.cfg.Server.TLSCertFile != ""),
		zap.Strings("provider_families", familyNames(s.router.Families())),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initStorage 数据库连接池、可选自动迁移、可选 Redis 状态缓存
func (s *Server) initStorage() error {
	db, err := database.Open(context.Background(), s.cfg.Database, s.logger)
	if err != nil {
		return err
	}

	poolCfg := database.PoolConfigFrom(s.cfg.Database)
	s.pool, err = database.NewPoolManager(db, poolCfg, s.logger,
		database.WithCollector(s.collector),
		database.WithName(s.cfg.Database.Driver),
	)
	if err != nil {
		return err
	}

	if s.cfg.Database.AutoMigrate {
		if err := store.InitDatabase(s.pool.DB()); err != nil {
			return fmt.Errorf("auto-migrate failed: %w", err)
		}
		s.logger.Info("database schema migrated (gorm auto-migrate)")
	}
	s.store = store.New(s.pool.DB())

	if s.cfg.Redis.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = s.cfg.Redis.Addr
		cacheCfg.Password = s.cfg.Redis.Password
		cacheCfg.DB = s.cfg.Redis.DB
		cacheCfg.TLS = s.cfg.Redis.TLS
		cacheCfg.KeyPrefix = "agora:"
		cacheCfg.DefaultTTL = s.cfg.Redis.StatusTTL
		if s.cfg.Redis.PoolSize > 0 {
			cacheCfg.PoolSize = s.cfg.Redis.PoolSize
		}
		if s.cfg.Redis.MinIdleConns > 0 {
			cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns
		}

		s.cache, err = cache.NewManager(cacheCfg, s.logger)
		if err != nil {
			// 缓存只是加速层，失败时直接读数据库
			s.logger.Warn("redis unavailable, status cache disabled", zap.Error(err))
			s.cache = nil
		}
	}
	return nil
}

// initLatency 延迟日志：默认写 GORM，mongo 模式同时写两处
func (s *Server) initLatency() error {
	var sink latency.Sink = latency.NewGormSink(s.store)

	if s.cfg.Latency.Sink == "mongo" {
		mongo, err := latency.NewMongoSink(s.cfg.Latency.MongoURI, s.cfg.Latency.MongoDatabase, s.cfg.Latency.MongoCollection)
		if err != nil {
			return fmt.Errorf("failed to connect mongo: %w", err)
		}
		s.mongo = mongo
		sink = latency.MultiSink{sink, mongo}
	}

	opts := []latency.Option{latency.WithMetrics(s.collector)}
	if s.cfg.Latency.WriteTimeout > 0 {
		opts = append(opts, latency.WithWriteTimeout(s.cfg.Latency.WriteTimeout))
	}
	s.tracker = latency.NewTracker(sink, s.logger, opts...)
	return nil
}

// initRouter 为配置了凭据的模型家族注册 Provider
func (s *Server) initRouter() {
	llmCfg := s.cfg.LLM
	registry, err := llm.NewModelRegistry(llmCfg.DefaultModel, llmCfg.Models)
	if err != nil {
		// Validate 已检查 DefaultModel，这里只剩未知 family 的配置错误
		s.logger.Error("invalid llm.models entry, using built-in table", zap.Error(err))
		registry, _ = llm.NewModelRegistry(llmCfg.DefaultModel, nil)
	}

	base := func(key, url string) providers.BaseProviderConfig {
		return providers.BaseProviderConfig{APIKey: key, BaseURL: url, Timeout: llmCfg.Timeout}
	}

	opts := []llm.RouterOption{llm.WithTracker(s.tracker), llm.WithCollector(s.collector)}
	if llmCfg.BreakerThreshold > 0 {
		opts = append(opts, llm.WithBreaker(llm.BreakerConfig{
			Threshold: llmCfg.BreakerThreshold,
			Cooldown:  llmCfg.BreakerCooldown,
		}))
	}
	if llmCfg.OpenAIAPIKey != "" {
		opts = append(opts, llm.WithProvider(llm.FamilyOpenAI, openai.NewOpenAIProvider(providers.OpenAIConfig{
			BaseProviderConfig: base(llmCfg.OpenAIAPIKey, llmCfg.OpenAIBaseURL),
		}, s.logger)))
	}
	if llmCfg.AnthropicAPIKey != "" {
		opts = append(opts, llm.WithProvider(llm.FamilyAnthropic, anthropic.NewClaudeProvider(providers.ClaudeConfig{
			BaseProviderConfig: base(llmCfg.AnthropicAPIKey, llmCfg.AnthropicBaseURL),
		}, s.logger)))
	}
	if llmCfg.OpenRouterAPIKey != "" {
		opts = append(opts, llm.WithProvider(llm.FamilyOpenRouter, openai.NewOpenRouterProvider(providers.OpenRouterConfig{
			BaseProviderConfig: base(llmCfg.OpenRouterAPIKey, llmCfg.OpenRouterBaseURL),
			Title:              "Agora",
		}, s.logger)))
	}

	s.router = llm.NewRouter(registry, s.logger, opts...)
	if len(s.router.Families()) == 0 {
		s.logger.Warn("no LLM credentials configured, every persona call will fail until a key is set")
	}
}

// initServices 组装领域服务与 handlers
func (s *Server) initServices() error {
	rankOpts := []ranking.Option{ranking.WithCollector(s.collector)}
	if s.cache != nil {
		rankOpts = append(rankOpts, ranking.WithCache(s.cache, s.cfg.Redis.StatusTTL))
	}
	engine := ranking.NewEngine(s.store, s.logger, rankOpts...)
	s.hub = stream.NewHub(engine, stream.DefaultConfig(), s.collector, s.logger)

	oc := s.cfg.Orchestrator
	orch := orchestrator.New(s.store, s.router, orchestrator.Config{
		ContextWindow:    oc.ContextWindow,
		MaxContextTokens: oc.MaxContextTokens,
		PersonaTimeout:   oc.PersonaTimeout,
		MaxParallel:      oc.MaxParallel,
		Temperature:      float32(oc.Temperature),
		MaxTokens:        oc.MaxTokens,
	}, s.logger,
		orchestrator.WithCollector(s.collector),
		orchestrator.WithTracker(s.tracker),
		orchestrator.WithNotifier(s.hub),
		orchestrator.WithTokenCounter(func(model string) tokenizer.Counter {
			return tokenizer.ForModel(model, s.logger)
		}),
	)

	conv := conversation.NewService(s.store, orch, s.logger,
		conversation.WithSimulator(s.router, s.cfg.LLM.DefaultModel),
		conversation.WithNotifier(s.hub),
	)
	fb := feedback.NewService(s.store, s.logger,
		feedback.WithTracker(s.tracker),
		feedback.WithCollector(s.collector),
		feedback.WithNotifier(s.hub),
	)
	queue := moderation.NewQueue(s.store, orch, s.collector, s.logger, moderation.WithNotifier(s.hub))
	people := personas.NewService(s.store, s.router.Registry(), s.hub, s.logger)

	if err := s.seedPersonas(people); err != nil {
		return err
	}

	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.pool.Ping))
	if s.cache != nil {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck("redis", s.cache.Ping))
	}
	s.healthHandler.RegisterCheck(handlers.NewProviderHealthCheck(s.router))

	s.routes = append(s.routes,
		handlers.NewRoomHandler(conv, engine, fb, s.hub, s.cfg.Server.DefaultRoom, s.logger),
		handlers.NewAnalysisHandler(fb, s.logger),
		handlers.NewSubmissionHandler(queue, s.logger),
		handlers.NewPersonaHandler(people, s.logger),
		handlers.NewLatencyHandler(s.store, s.tracker, s.logger),
	)

	s.logger.Info("Handlers initialized")
	return nil
}

// seedPersonas 写入配置中的种子人格，已存在的同名人格保持不变
func (s *Server) seedPersonas(svc *personas.Service) error {
	if len(s.cfg.Personas) == 0 {
		return nil
	}

	seeds := make([]personas.Input, 0, len(s.cfg.Personas))
	for _, p := range s.cfg.Personas {
		seeds = append(seeds, personas.Input{
			Name:        p.Name,
			Description: p.Description,
			Prompt:      p.Prompt,
			Color:       p.Color,
			Voice:       p.Voice,
			Model:       p.Model,
			Multiplier:  p.Multiplier,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := svc.Seed(ctx, seeds)
	if err != nil {
		return fmt.Errorf("failed to seed personas: %w", err)
	}
	s.logger.Info("personas seeded", zap.Int("created", created), zap.Int("configured", len(seeds)))
	return nil
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// publicPaths 不经过鉴权的路径
var publicPaths = []string{"/health", "/healthz", "/ready", "/readyz", "/version"}

// startHTTPServer 注册路由、构建中间件链并启动 API 端口
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	for _, h := range s.routes {
		h.RegisterRoutes(mux)
	}

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	sc := s.cfg.Server
	chain := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(sc.CORSAllowedOrigins),
		RateLimiter(rateLimiterCtx, sc.RateLimitRPS, sc.RateLimitBurst, s.logger),
	}
	switch {
	case sc.JWT.Enabled:
		chain = append(chain,
			JWTAuth(sc.JWT, publicPaths, s.logger),
			UserRateLimiter(rateLimiterCtx, sc.RateLimitRPS, sc.RateLimitBurst, s.logger),
		)
	case len(sc.APIKeys) > 0:
		chain = append(chain, APIKeyAuth(sc.APIKeys, publicPaths, sc.AllowQueryAPIKey, s.logger))
	default:
		s.logger.Warn("API authentication disabled (no jwt or api_keys configured)")
	}
	handler := Chain(mux, chain...)

	serverConfig := server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", sc.HTTPPort),
		ReadTimeout:     sc.ReadTimeout,
		WriteTimeout:    sc.WriteTimeout,
		IdleTimeout:     2 * sc.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: sc.ShutdownTimeout,
		TLSCertFile:     sc.TLSCertFile,
		TLSKeyFile:      sc.TLSKeyFile,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)
	// WebSocket 连接已被劫持，Shutdown 不会等待它们
	s.httpManager.OnShutdown(s.hub.Close)

	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager(mux, server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.metricsManager.Start()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有组件，可在部分初始化失败后调用
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 请求排空后再刷延迟日志，保证最后一批调用也被记录
	if s.tracker != nil {
		if err := s.tracker.Close(ctx); err != nil {
			s.logger.Error("latency tracker flush incomplete",
				zap.Error(err), zap.Int64("dropped", s.tracker.Dropped()))
		}
	}
	if s.mongo != nil {
		if err := s.mongo.Close(ctx); err != nil {
			s.logger.Error("mongo disconnect error", zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("redis close error", zap.Error(err))
		}
	}
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("database close error", zap.Error(err))
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}

func familyNames(families []llm.Family) []string {
	names := make([]string, len(families))
	for i, f := range families {
		names[i] = string(f)
	}
	return names
}
