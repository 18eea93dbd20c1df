package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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
// 🧪 测试基座：miniredis 全链路
// =============================================================================

// stubEmbedder 把文本哈希成 one-hot 向量：
// 相同文本向量一致，不同文本（不同桶）正交
type stubEmbedder struct{}

func (stubEmbedder) Name() string    { return "stub" }
func (stubEmbedder) Dimensions() int { return 32 }

func (stubEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	var h uint32 = 2166136261
	for i := 0; i < len(query); i++ {
		h = (h ^ uint32(query[i])) * 16777619
	}
	v := make([]float64, 32)
	v[h%32] = 1
	return v, nil
}

func (s stubEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	out := make([][]float64, len(documents))
	for i, d := range documents {
		v, _ := s.EmbedQuery(ctx, d)
		out[i] = v
	}
	return out, nil
}

// mockAgent 计数并返回脚本化回答
type mockAgent struct {
	tag    types.AgentTag
	answer string
	err    error

	mu    sync.Mutex
	calls int
}

func (a *mockAgent) Tag() types.AgentTag { return a.tag }

func (a *mockAgent) Answer(ctx context.Context, queryText string, sessionContext []types.Turn) (*agents.Answer, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &agents.Answer{Text: a.answer, Sources: []string{"mock.pdf"}, Confidence: 0.8}, nil
}

func (a *mockAgent) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// memRecorder 收集落盘调用
type memRecorder struct {
	mu    sync.Mutex
	turns []types.Turn
}

func (r *memRecorder) Record(sessionID string, turn types.Turn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, turn)
}

func (r *memRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.turns)
}

type memMetrics struct {
	mu          sync.Mutex
	routed      int
	hits        int
	misses      int
	invocations map[string]int
	cleaned     int
}

func (m *memMetrics) RecordRoutingDecision(agent string, usedContext bool, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routed++
}

func (m *memMetrics) RecordCacheHit(agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

func (m *memMetrics) RecordCacheMiss(agent string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

func (m *memMetrics) RecordAgentInvocation(agent, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.invocations == nil {
		m.invocations = make(map[string]int)
	}
	m.invocations[status]++
}

func (m *memMetrics) RecordSessionsCleaned(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned += n
}

type fixture struct {
	mr         *miniredis.Miniredis
	orch       *Orchestrator
	exhibitors *mockAgent
	visitors   *mockAgent
	general    *mockAgent
	recorder   *memRecorder
	metrics    *memMetrics
	sessions   *session.Manager
}

func setupOrchestrator(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	store, err := redisstore.NewManager(redisstore.Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	semCache := cache.NewSemanticCache(store, stubEmbedder{}, cache.DefaultConfig(), zap.NewNop())

	sessionStore := session.NewRedisStore(store, "expoflow:session:", 24*time.Hour, zap.NewNop())
	sessions := session.NewManager(sessionStore, session.DefaultConfig(), nil, zap.NewNop())

	f := &fixture{
		mr:         mr,
		exhibitors: &mockAgent{tag: types.AgentExhibitors, answer: "Hay 120 expositores."},
		visitors:   &mockAgent{tag: types.AgentVisitors, answer: "Asistieron 45000 visitantes."},
		general:    &mockAgent{tag: types.AgentGeneral, answer: "El evento abre a las 9:00."},
		recorder:   &memRecorder{},
		metrics:    &memMetrics{},
		sessions:   sessions,
	}

	registry := agents.NewRegistry()
	registry.Register(f.exhibitors)
	registry.Register(f.visitors)
	registry.Register(f.general)

	f.orch = New(Options{
		Config:   appconfig.DefaultConfig(),
		Router:   router.New(router.DefaultVocabulary(), router.DefaultConfig(), zap.NewNop()),
		Cache:    semCache,
		Sessions: sessions,
		Registry: registry,
		Recorder: f.recorder,
		Metrics:  f.metrics,
		Redis:    store,
		Logger:   zap.NewNop(),
	})
	return f
}

// =============================================================================
// 🧪 Handle
// =============================================================================

func TestHandle_RouteMissThenCachedRepeat(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	result, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)
	assert.Equal(t, types.AgentExhibitors, result.AgentTag)
	assert.GreaterOrEqual(t, result.Confidence, 0.3)
	assert.False(t, result.Cached)
	assert.Equal(t, "Hay 120 expositores.", result.Answer)
	assert.Equal(t, 1, f.exhibitors.callCount())
	assert.Regexp(t, `^session_\d+_[0-9a-f]{8}$`, result.SessionID)

	// 同一问题重复：缓存命中，不再调用 Agent
	repeat, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)
	assert.True(t, repeat.Cached)
	assert.Equal(t, result.Answer, repeat.Answer)
	assert.Equal(t, 1, f.exhibitors.callCount())
}

func TestHandle_MetricsRecorded(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)
	_, err = f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)

	assert.Equal(t, 2, f.metrics.routed)
	assert.Equal(t, 1, f.metrics.misses)
	assert.Equal(t, 1, f.metrics.hits)
	assert.Equal(t, 1, f.metrics.invocations["ok"])

	f.exhibitors.err = types.NewError(types.ErrAgentInvocationFailed, "boom")
	_, err = f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?", SkipCache: true})
	require.Error(t, err)
	assert.Equal(t, 1, f.metrics.invocations["error"])
}

func TestHandle_AgentOverride(t *testing.T) {
	f := setupOrchestrator(t)

	result, err := f.orch.Handle(context.Background(), Request{
		QueryText:     "¿Cuántos expositores hay?",
		AgentOverride: types.AgentVisitors,
	})
	require.NoError(t, err)
	assert.Equal(t, types.AgentVisitors, result.AgentTag)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, 1, f.visitors.callCount())
	assert.Zero(t, f.exhibitors.callCount())
}

func TestHandle_InvalidOverride(t *testing.T) {
	f := setupOrchestrator(t)

	_, err := f.orch.Handle(context.Background(), Request{
		QueryText:     "hola",
		AgentOverride: "desconocido",
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidAgentTag, types.GetErrorCode(err))
}

func TestHandle_AgentFailureAppendsFailedTurn(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	f.exhibitors.err = types.NewError(types.ErrAgentInvocationFailed, "llm down").WithRetryable(true)

	_, err := f.orch.Handle(ctx, Request{
		SessionID: "session_1_aaaaaaaa",
		QueryText: "¿Cuántos expositores hay?",
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentInvocationFailed, types.GetErrorCode(err))

	// 会话仍记录了提问与失败回合
	turns, err := f.sessions.RecentContext(ctx, "session_1_aaaaaaaa", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, types.RoleUser, turns[0].Role)
	assert.Equal(t, types.RoleAgent, turns[1].Role)
	assert.True(t, turns[1].Failed)
	assert.Equal(t, types.AgentExhibitors, turns[1].AgentTag)
}

func TestHandle_FailureNotCached(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	f.exhibitors.err = types.NewError(types.ErrAgentTimeout, "timed out").WithRetryable(true)
	_, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.Error(t, err)

	// 恢复后重试同一问题必须真正调用 Agent
	f.exhibitors.err = nil
	result, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, f.exhibitors.callCount())
}

func TestHandle_SkipCache(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := f.orch.Handle(ctx, Request{
			QueryText: "¿Cuántos expositores hay?",
			SkipCache: true,
		})
		require.NoError(t, err)
		assert.False(t, result.Cached)
	}
	assert.Equal(t, 2, f.exhibitors.callCount())
}

func TestHandle_ContinuityFollowup(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	first, err := f.orch.Handle(ctx, Request{QueryText: "¿cuánto cuesta un stand?"})
	require.NoError(t, err)
	require.Equal(t, types.AgentExhibitors, first.AgentTag)

	followup, err := f.orch.Handle(ctx, Request{
		SessionID: first.SessionID,
		QueryText: "¿y las dimensiones?",
	})
	require.NoError(t, err)
	assert.Equal(t, types.AgentExhibitors, followup.AgentTag)
	assert.True(t, followup.UsedContext)
	assert.GreaterOrEqual(t, followup.Confidence, 0.6)
}

func TestHandle_RedisDownDegrades(t *testing.T) {
	f := setupOrchestrator(t)
	f.mr.Close()

	// 缓存与会话全部降级，但回答仍可产出
	result, err := f.orch.Handle(context.Background(), Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, "Hay 120 expositores.", result.Answer)
	assert.NotEmpty(t, result.SessionID)
}

func TestHandle_RecorderReceivesTurns(t *testing.T) {
	f := setupOrchestrator(t)

	_, err := f.orch.Handle(context.Background(), Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)
	assert.Equal(t, 2, f.recorder.count())
}

// =============================================================================
// 🧪 管理操作
// =============================================================================

func TestInvalidateAgent(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)

	require.NoError(t, f.orch.InvalidateAgent(ctx, types.AgentExhibitors))

	result, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, f.exhibitors.callCount())
}

func TestInvalidateAgent_UnknownTag(t *testing.T) {
	f := setupOrchestrator(t)

	err := f.orch.InvalidateAgent(context.Background(), "desconocido")
	require.Error(t, err)
	assert.Equal(t, types.ErrInvalidAgentTag, types.GetErrorCode(err))
}

// refreshableRetriever 记录刷新调用
type refreshableRetriever struct {
	refreshed bool
}

func (r *refreshableRetriever) Retrieve(ctx context.Context, query string, limit int) ([]agents.Document, error) {
	return nil, nil
}

func (r *refreshableRetriever) Refresh(ctx context.Context) error {
	r.refreshed = true
	return nil
}

func TestRefreshAgent(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	retriever := &refreshableRetriever{}
	f.orch.retrievers = map[types.AgentTag]agents.Retriever{
		types.AgentExhibitors: retriever,
	}

	_, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)

	require.NoError(t, f.orch.RefreshAgent(ctx, types.AgentExhibitors))
	assert.True(t, retriever.refreshed)

	// 刷新后缓存域失效，重新调用 Agent
	result, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, f.exhibitors.callCount())
}

func TestCacheStatsAndClear(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, Request{QueryText: "¿Cuántos expositores hay?"})
	require.NoError(t, err)

	stats, err := f.orch.CacheStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalEntries)

	require.NoError(t, f.orch.ClearCache(ctx))

	stats, err = f.orch.CacheStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalEntries)
}

func TestAvailableAgents(t *testing.T) {
	f := setupOrchestrator(t)

	infos := f.orch.AvailableAgents()
	require.Len(t, infos, 3)
	for _, info := range infos {
		assert.True(t, info.Tag.IsValid())
		assert.NotEmpty(t, info.Description)
	}
}

func TestHealthCheck(t *testing.T) {
	f := setupOrchestrator(t)

	status := f.orch.HealthCheck(context.Background())
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "ok", status.Components["redis"])

	f.mr.Close()
	status = f.orch.HealthCheck(context.Background())
	assert.Equal(t, "degraded", status.Status)
}

func TestCleanupSessions(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	_, err := f.orch.Handle(ctx, Request{SessionID: "session_1_bbbbbbbb", QueryText: "hola"})
	require.NoError(t, err)

	// 无过期会话时清理为空操作
	closed, err := f.orch.CleanupSessions(ctx)
	require.NoError(t, err)
	assert.Zero(t, closed)
}
