package orchestrator

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/cache"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 🛠️ 管理操作
// =============================================================================

// AgentInfo 对外展示的 Agent 信息
type AgentInfo struct {
	Tag         types.AgentTag `json:"tag"`
	Description string         `json:"description"`
}

// 内置 Agent 的展示描述
var agentDescriptions = map[types.AgentTag]string{
	types.AgentGeneral:    "Información general del evento: horarios, ubicación, servicios",
	types.AgentExhibitors: "Expositores: empresas, stands, catálogo comercial",
	types.AgentVisitors:   "Visitantes: asistencia, perfiles, estadísticas",
}

// CacheStats 返回语义缓存统计
func (o *Orchestrator) CacheStats(ctx context.Context) (*cache.Stats, error) {
	return o.cache.Stats(ctx)
}

// ClearCache 清空全部语义缓存
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	o.logger.Info("clearing semantic cache")
	return o.cache.ClearAll(ctx)
}

// InvalidateAgent 失效指定 Agent 的全部缓存条目
func (o *Orchestrator) InvalidateAgent(ctx context.Context, tag types.AgentTag) error {
	if _, err := o.registry.Get(tag); err != nil {
		return err
	}
	o.logger.Info("invalidating agent cache", zap.String("agent", tag.String()))
	return o.cache.Invalidate(ctx, tag)
}

// RefreshAgent 文档更新后刷新 Agent 数据：
// 先刷新检索器快照，成功后失效该 Agent 的缓存域。
// 检索器不支持刷新时仅做缓存失效。
func (o *Orchestrator) RefreshAgent(ctx context.Context, tag types.AgentTag) error {
	if _, err := o.registry.Get(tag); err != nil {
		return err
	}

	if refresher, ok := o.retrievers[tag].(Refresher); ok {
		if err := refresher.Refresh(ctx); err != nil {
			return types.NewError(types.ErrServiceUnavailable, "agent data refresh failed").
				WithRetryable(true).
				WithComponent(tag.String()).
				WithCause(err)
		}
	}

	o.logger.Info("agent data refreshed", zap.String("agent", tag.String()))
	return o.cache.Invalidate(ctx, tag)
}

// CleanupSessions 清理闲置会话，返回关闭数量
func (o *Orchestrator) CleanupSessions(ctx context.Context) (int, error) {
	closed, err := o.sessions.CleanupInactive(ctx, o.cfg.Session.TTL)
	if err == nil && o.metrics != nil {
		o.metrics.RecordSessionsCleaned(closed)
	}
	return closed, err
}

// AvailableAgents 返回已注册 Agent 及其描述
func (o *Orchestrator) AvailableAgents() []AgentInfo {
	tags := o.registry.Tags()
	infos := make([]AgentInfo, 0, len(tags))
	for _, tag := range tags {
		infos = append(infos, AgentInfo{
			Tag:         tag,
			Description: agentDescriptions[tag],
		})
	}
	return infos
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// HealthStatus 整体健康状态
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// HealthCheck 检查各组件可用性。
// Redis 不可用时整体 degraded（缓存与会话都依赖它）。
func (o *Orchestrator) HealthCheck(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:     "ok",
		Components: make(map[string]string),
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	set := func(name, value string) {
		mu.Lock()
		defer mu.Unlock()
		status.Components[name] = value
		if value != "ok" {
			status.Status = "degraded"
		}
	}

	if o.redis != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.redis.Ping(ctx); err != nil {
				set("redis", "unavailable: "+err.Error())
			} else {
				set("redis", "ok")
			}
		}()
	}

	for _, tag := range o.registry.Tags() {
		set("agent:"+tag.String(), "ok")
	}

	wg.Wait()
	return status
}
