package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/agents"
	"github.com/BaSui01/expoflow/api/handlers"
	"github.com/BaSui01/expoflow/audit"
	"github.com/BaSui01/expoflow/cache"
	"github.com/BaSui01/expoflow/config"
	"github.com/BaSui01/expoflow/embedding"
	redisstore "github.com/BaSui01/expoflow/internal/cache"
	"github.com/BaSui01/expoflow/internal/metrics"
	"github.com/BaSui01/expoflow/internal/migration"
	"github.com/BaSui01/expoflow/internal/server"
	"github.com/BaSui01/expoflow/internal/telemetry"
	"github.com/BaSui01/expoflow/llm"
	"github.com/BaSui01/expoflow/orchestrator"
	"github.com/BaSui01/expoflow/router"
	"github.com/BaSui01/expoflow/session"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server Expoflow 主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 核心组件
	redis    *redisstore.Manager
	sessions *session.Manager
	orch     *orchestrator.Orchestrator
	recorder *audit.AsyncRecorder

	// 指标收集器
	metricsCollector *metrics.Collector

	// 后台 goroutine 生命周期
	backgroundCancel context.CancelFunc
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otel,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 装配依赖并启动 HTTP 与 Metrics 服务器
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("expoflow", s.logger)

	backgroundCtx, cancel := context.WithCancel(context.Background())
	s.backgroundCancel = cancel

	if err := s.initComponents(backgroundCtx); err != nil {
		return fmt.Errorf("failed to init components: %w", err)
	}

	if err := s.startHTTPServer(backgroundCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.Bool("cache_enabled", s.cfg.Cache.Enabled),
		zap.Bool("audit_enabled", s.cfg.Database.Enabled),
	)

	return nil
}

// =============================================================================
// 🔧 组件装配
// =============================================================================

// initComponents 按依赖顺序装配：Redis → 缓存/会话 → 路由/Agent → 审计 → 编排器
func (s *Server) initComponents(ctx context.Context) error {
	// Redis 共享存储层（语义缓存与会话记忆都依赖它）
	redisManager, err := redisstore.NewManager(redisstore.ConfigFromApp(s.cfg.Redis), s.logger)
	if err != nil {
		return fmt.Errorf("redis connection: %w", err)
	}
	s.redis = redisManager

	// 嵌入提供者：单飞去重包装，并发同问只打一次上游
	embedder := embedding.WithDedup(embedding.NewFromAppConfig(s.cfg.Embedding))

	// 语义查询缓存
	semanticCache := cache.NewSemanticCache(redisManager, embedder, cacheConfigFromApp(s.cfg.Cache), s.logger)

	// 会话记忆
	tokenCounter := llm.NewTokenCounter(s.cfg.LLM.Model)
	sessionStore := session.NewRedisStore(redisManager, "expoflow:session:", s.cfg.Session.TTL, s.logger)
	s.sessions = session.NewManager(sessionStore, sessionConfigFromApp(s.cfg.Session), tokenCounter, s.logger)

	if s.cfg.Session.CleanupInterval > 0 {
		s.sessions.StartCleanupLoop(ctx, s.cfg.Session.CleanupInterval)
	}

	// 查询路由器
	vocab := router.DefaultVocabulary().WithOverrides(s.cfg.Router.Vocabulary)
	queryRouter := router.New(vocab, routerConfigFromApp(s.cfg.Router), s.logger)

	// LLM 与 Agent 注册表。
	// 检索器是外部协作者，未接入时 Agent 纯靠 LLM 回答。
	provider := llm.NewFromAppConfig(s.cfg.LLM)
	var retrievers map[types.AgentTag]agents.Retriever
	registry := agents.NewDefaultRegistry(provider, retrievers, s.cfg.LLM.Timeout, s.logger)

	// 审计落盘（可选）
	recorder, err := s.initAudit(ctx)
	if err != nil {
		s.logger.Warn("audit store unavailable, turn persistence disabled", zap.Error(err))
	}
	s.recorder = recorder

	opts := orchestrator.Options{
		Config:     s.cfg,
		Router:     queryRouter,
		Cache:      semanticCache,
		Sessions:   s.sessions,
		Registry:   registry,
		Redis:      redisManager,
		Retrievers: retrievers,
		Logger:     s.logger,
	}
	if recorder != nil {
		opts.Recorder = recorder
	}
	if s.metricsCollector != nil {
		opts.Metrics = s.metricsCollector
	}
	s.orch = orchestrator.New(opts)

	return nil
}

// initAudit 构建审计存储与异步记录器；Database.Enabled 为假时返回 nil。
// 非 sqlite 的 SQL 后端先跑嵌入式迁移保证表结构。
func (s *Server) initAudit(ctx context.Context) (*audit.AsyncRecorder, error) {
	if !s.cfg.Database.Enabled {
		return nil, nil
	}

	if s.cfg.Database.Driver == "mysql" || s.cfg.Database.Driver == "postgres" {
		if err := s.migrateAuditSchema(); err != nil {
			return nil, fmt.Errorf("audit schema migration: %w", err)
		}
	}

	store, err := audit.NewStoreFromConfig(ctx, s.cfg.Database, s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Info("audit store initialized", zap.String("driver", s.cfg.Database.Driver))
	return audit.NewAsyncRecorder(store, 0, s.logger), nil
}

// migrateAuditSchema 应用嵌入式迁移
func (s *Server) migrateAuditSchema() error {
	migrator, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database)
	if err != nil {
		return err
	}
	defer migrator.Close()
	return migrator.Up()
}

// =============================================================================
// ⚙️ 应用配置到组件配置的桥接
// =============================================================================

func cacheConfigFromApp(cc config.CacheConfig) cache.Config {
	cfg := cache.DefaultConfig()
	if cc.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = cc.SimilarityThreshold
	}
	if cc.DefaultTTL > 0 {
		cfg.DefaultTTL = cc.DefaultTTL
	}
	if cc.MaxScanCandidates > 0 {
		cfg.MaxScanCandidates = cc.MaxScanCandidates
	}
	return cfg
}

func sessionConfigFromApp(sc config.SessionConfig) session.Config {
	cfg := session.DefaultConfig()
	if sc.MaxTurns > 0 {
		cfg.MaxTurns = sc.MaxTurns
	}
	if sc.ContextTurns > 0 {
		cfg.ContextTurns = sc.ContextTurns
	}
	if sc.ContextTokenBudget > 0 {
		cfg.ContextTokenBudget = sc.ContextTokenBudget
	}
	if sc.TTL > 0 {
		cfg.IdleTimeout = sc.TTL
	}
	return cfg
}

func routerConfigFromApp(rc config.RouterConfig) router.Config {
	cfg := router.DefaultConfig()
	if rc.ConfidenceFloor > 0 {
		cfg.ConfidenceFloor = rc.ConfidenceFloor
	}
	if rc.ContinuityWeight > 0 {
		cfg.ContinuityWeight = rc.ContinuityWeight
	}
	if rc.ContinuityWindow > 0 {
		cfg.ContinuityWindow = rc.ContinuityWindow
	}
	if rc.FollowupMaxWords > 0 {
		cfg.FollowupMaxWords = rc.FollowupMaxWords
	}
	return cfg
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 注册路由并启动 HTTP 服务器
func (s *Server) startHTTPServer(ctx context.Context) error {
	queryHandler := handlers.NewQueryHandler(s.orch, s.logger)
	sessionHandler := handlers.NewSessionHandler(s.sessions, s.logger)
	adminHandler := handlers.NewAdminHandler(s.orch, s.logger)
	healthHandler := handlers.NewHealthHandler(s.orch, s.logger)
	wsHandler := handlers.NewWSHandler(s.orch, s.logger)

	mux := http.NewServeMux()

	// 系统端点
	mux.HandleFunc("GET /health", healthHandler.HandleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)

	// 问答与会话
	mux.HandleFunc("POST /api/query", queryHandler.HandleQuery)
	mux.HandleFunc("GET /api/agents", queryHandler.HandleAgents)
	mux.HandleFunc("POST /api/sessions", sessionHandler.HandleCreate)
	mux.HandleFunc("GET /api/sessions/{id}/history", sessionHandler.HandleHistory)
	mux.HandleFunc("POST /api/sessions/{id}/close", sessionHandler.HandleClose)

	// WebSocket 对话
	mux.HandleFunc("GET /ws/chat", wsHandler.HandleChat)

	// 管理端点（JWT 保护）
	adminMux := http.NewServeMux()
	adminMux.HandleFunc("GET /api/admin/cache/stats", adminHandler.HandleCacheStats)
	adminMux.HandleFunc("POST /api/admin/cache/clear", adminHandler.HandleClearCache)
	adminMux.HandleFunc("POST /api/admin/cache/invalidate", adminHandler.HandleInvalidate)
	adminMux.HandleFunc("POST /api/admin/agents/refresh", adminHandler.HandleRefresh)
	adminMux.HandleFunc("POST /api/admin/sessions/cleanup", adminHandler.HandleCleanupSessions)
	mux.Handle("/api/admin/", JWTAuth(s.cfg.Auth, s.logger)(adminMux))

	// 中间件链（外层先执行）
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		RateLimiter(ctx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)

	serverConfig := server.ConfigFromApp(s.cfg.Server, fmt.Sprintf(":%d", s.cfg.Server.HTTPPort))
	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// handleVersion 版本信息端点
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	handlers.WriteSuccess(w, map[string]string{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	})
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 在独立端口暴露 Prometheus 指标
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.ConfigFromApp(s.cfg.Server, fmt.Sprintf(":%d", s.cfg.Server.MetricsPort))
	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
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

// Shutdown 优雅关闭：HTTP → Metrics → 后台循环 → 审计排空 → Redis → 遥测
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.backgroundCancel != nil {
		s.backgroundCancel()
	}

	// 审计记录器排空队列后关闭底层存储
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.Error("Audit recorder shutdown error", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Redis shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
