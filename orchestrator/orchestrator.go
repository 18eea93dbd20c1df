// Package orchestrator 串联一次问答的完整链路：
// 会话上下文 → 路由 → 语义缓存 → Agent 调用 → 缓存写入 → 回合落盘。
//
// 缓存与嵌入故障就地降级（按未命中处理，不影响用户请求）；
// Agent 调用失败按类型上报给调用方，绝不静默换 Agent 重试，
// 但失败回合仍写入会话，保证上下文反映提问事实。
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/agents"
	"github.com/BaSui01/expoflow/cache"
	appconfig "github.com/BaSui01/expoflow/config"
	redisstore "github.com/BaSui01/expoflow/internal/cache"
	"github.com/BaSui01/expoflow/router"
	"github.com/BaSui01/expoflow/session"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 🎛️ 编排器
// =============================================================================

// Request 一次问答请求
type Request struct {
	// 会话 ID，为空时新建会话
	SessionID string
	// 用户问题原文
	QueryText string
	// 指定 Agent，绕过路由（可选）
	AgentOverride types.AgentTag
	// 本次请求跳过语义缓存（读写都跳过）
	SkipCache bool
}

// Result 问答结果与来源信息
type Result struct {
	SessionID      string         `json:"session_id"`
	Answer         string         `json:"answer"`
	AgentTag       types.AgentTag `json:"agent_tag"`
	Confidence     float64        `json:"confidence"`
	Cached         bool           `json:"cached"`
	UsedContext    bool           `json:"used_context"`
	Sources        []string       `json:"sources,omitempty"`
	ProcessingTime time.Duration  `json:"processing_time"`
}

// Recorder 回合落盘接口，由 audit.AsyncRecorder 实现
type Recorder interface {
	Record(sessionID string, turn types.Turn)
}

// Refresher 可刷新数据快照的检索器（文档更新后触发）
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Metrics 链路指标上报接口，由 metrics.Collector 实现
type Metrics interface {
	RecordRoutingDecision(agent string, usedContext bool, confidence float64)
	RecordCacheHit(agent string)
	RecordCacheMiss(agent string)
	RecordAgentInvocation(agent, status string, duration time.Duration)
	RecordSessionsCleaned(n int)
}

// Orchestrator 问答编排器
type Orchestrator struct {
	cfg      *appconfig.Config
	router   *router.Router
	cache    *cache.SemanticCache
	sessions *session.Manager
	registry *agents.Registry
	recorder Recorder
	metrics  Metrics
	redis    *redisstore.Manager
	// 各 Agent 的检索器，RefreshAgent 用于重载数据快照
	retrievers map[types.AgentTag]agents.Retriever
	logger     *zap.Logger
}

// Options 编排器依赖
type Options struct {
	Config   *appconfig.Config
	Router   *router.Router
	Cache    *cache.SemanticCache
	Sessions *session.Manager
	Registry *agents.Registry
	// Recorder 可为 nil（不落盘）
	Recorder Recorder
	// Metrics 可为 nil（不上报）
	Metrics Metrics
	// Redis 用于健康检查，可为 nil
	Redis *redisstore.Manager
	// Retrievers 各 Agent 的检索器，RefreshAgent 使用，可为 nil
	Retrievers map[types.AgentTag]agents.Retriever
	Logger     *zap.Logger
}

// New 创建编排器
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        opts.Config,
		router:     opts.Router,
		cache:      opts.Cache,
		sessions:   opts.Sessions,
		registry:   opts.Registry,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		redis:      opts.Redis,
		retrievers: opts.Retrievers,
		logger:     logger.With(zap.String("component", "orchestrator")),
	}
}

// Handle 处理一次问答请求。
// 返回错误仅限 INVALID_AGENT_TAG / AGENT_INVOCATION_FAILED / AGENT_TIMEOUT；
// 缓存、嵌入、会话层故障全部就地降级。
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	sessionID, sessionContext := o.loadContext(ctx, req.SessionID)

	decision, err := o.decide(req, sessionContext)
	if err != nil {
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.RecordRoutingDecision(
			decision.SelectedAgent.String(), decision.UsedContext, decision.Confidence)
	}

	// 缓存命中：跳过 Agent 调用
	if !req.SkipCache && o.cacheEnabled() {
		if entry := o.cacheLookup(ctx, req.QueryText, decision.SelectedAgent); entry != nil {
			if o.metrics != nil {
				o.metrics.RecordCacheHit(decision.SelectedAgent.String())
			}
			result := &Result{
				SessionID:      sessionID,
				Answer:         entry.Answer,
				AgentTag:       decision.SelectedAgent,
				Confidence:     decision.Confidence,
				Cached:         true,
				UsedContext:    decision.UsedContext,
				ProcessingTime: time.Since(start),
			}
			o.recordExchange(ctx, sessionID, req.QueryText, types.NewAgentTurn(
				entry.Answer, decision.SelectedAgent, decision.Confidence, true))
			return result, nil
		}
		if o.metrics != nil {
			o.metrics.RecordCacheMiss(decision.SelectedAgent.String())
		}
	}

	agent, err := o.registry.Get(decision.SelectedAgent)
	if err != nil {
		return nil, err
	}

	invokeStart := time.Now()
	answer, err := agent.Answer(ctx, req.QueryText, sessionContext)
	if o.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		o.metrics.RecordAgentInvocation(
			decision.SelectedAgent.String(), status, time.Since(invokeStart))
	}
	if err != nil {
		// 失败回合仍入会话：上下文要体现这个问题问过了
		failed := types.NewAgentTurn("", decision.SelectedAgent, 0, false)
		failed.Failed = true
		o.recordExchange(ctx, sessionID, req.QueryText, failed)

		o.logger.Error("agent invocation failed",
			zap.String("agent", decision.SelectedAgent.String()),
			zap.Error(err),
		)
		return nil, err
	}

	if !req.SkipCache && o.cacheEnabled() {
		o.cacheStore(ctx, req.QueryText, decision.SelectedAgent, answer)
	}

	o.recordExchange(ctx, sessionID, req.QueryText, types.NewAgentTurn(
		answer.Text, decision.SelectedAgent, decision.Confidence, false))

	return &Result{
		SessionID:      sessionID,
		Answer:         answer.Text,
		AgentTag:       decision.SelectedAgent,
		Confidence:     decision.Confidence,
		Cached:         false,
		UsedContext:    decision.UsedContext,
		Sources:        answer.Sources,
		ProcessingTime: time.Since(start),
	}, nil
}

// =============================================================================
// 🧩 链路分步
// =============================================================================

// loadContext 取会话与近期上下文，会话层故障降级为无上下文
func (o *Orchestrator) loadContext(ctx context.Context, sessionID string) (string, []types.Turn) {
	sess, err := o.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		o.logger.Warn("session unavailable, proceeding without context",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		if sessionID == "" {
			sessionID = session.NewSessionID()
		}
		return sessionID, nil
	}

	sessionContext, err := o.sessions.RecentContext(ctx, sess.SessionID, o.cfg.Session.ContextTurns)
	if err != nil {
		o.logger.Warn("failed to load recent context",
			zap.String("session_id", sess.SessionID),
			zap.Error(err),
		)
		sessionContext = nil
	}
	return sess.SessionID, sessionContext
}

// decide 路由或应用显式 Agent 指定
func (o *Orchestrator) decide(req Request, sessionContext []types.Turn) (router.Decision, error) {
	if req.AgentOverride != "" {
		if _, err := o.registry.Get(req.AgentOverride); err != nil {
			return router.Decision{}, err
		}
		return router.Decision{
			SelectedAgent: req.AgentOverride,
			Confidence:    1.0,
		}, nil
	}
	return o.router.Route(req.QueryText, sessionContext), nil
}

// cacheLookup 语义缓存查找，故障与未命中都返回 nil
func (o *Orchestrator) cacheLookup(ctx context.Context, queryText string, agent types.AgentTag) *cache.Entry {
	entry, err := o.cache.Lookup(ctx, queryText, agent)
	if err != nil {
		if !cache.IsMiss(err) {
			o.logger.Warn("cache lookup degraded to miss",
				zap.String("agent", agent.String()),
				zap.Error(err),
			)
		}
		return nil
	}
	return entry
}

// cacheStore 回答写入语义缓存，故障仅记日志
func (o *Orchestrator) cacheStore(ctx context.Context, queryText string, agent types.AgentTag, answer *agents.Answer) {
	ttl := o.cfg.Cache.TTLForAgent(agent.String())
	meta := map[string]string{}
	for i, source := range answer.Sources {
		meta[fmt.Sprintf("source_%d", i+1)] = source
	}

	if _, err := o.cache.Store(ctx, queryText, agent, answer.Text, meta, ttl); err != nil {
		o.logger.Warn("failed to store answer in cache",
			zap.String("agent", agent.String()),
			zap.Error(err),
		)
	}
}

// recordExchange 把一问一答写入会话与审计，失败仅记日志
func (o *Orchestrator) recordExchange(ctx context.Context, sessionID, queryText string, agentTurn types.Turn) {
	userTurn := types.NewUserTurn(queryText)

	for _, turn := range []types.Turn{userTurn, agentTurn} {
		if err := o.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
			o.logger.Warn("failed to append turn",
				zap.String("session_id", sessionID),
				zap.String("role", string(turn.Role)),
				zap.Error(err),
			)
		}
		if o.recorder != nil {
			o.recorder.Record(sessionID, turn)
		}
	}
}

func (o *Orchestrator) cacheEnabled() bool {
	return o.cache != nil && o.cfg.Cache.Enabled
}
