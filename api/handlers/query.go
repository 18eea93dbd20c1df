package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/api"
	"github.com/BaSui01/expoflow/cache"
	"github.com/BaSui01/expoflow/orchestrator"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// ❓ 问答接口 Handler
// =============================================================================

// QueryService 问答编排服务，由 orchestrator.Orchestrator 实现
type QueryService interface {
	Handle(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	CacheStats(ctx context.Context) (*cache.Stats, error)
	ClearCache(ctx context.Context) error
	InvalidateAgent(ctx context.Context, tag types.AgentTag) error
	RefreshAgent(ctx context.Context, tag types.AgentTag) error
	CleanupSessions(ctx context.Context) (int, error)
	AvailableAgents() []orchestrator.AgentInfo
	HealthCheck(ctx context.Context) *orchestrator.HealthStatus
}

// QueryHandler 问答接口处理器
type QueryHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(service QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		service: service,
		logger:  logger,
	}
}

// HandleQuery 处理问答请求
// @Summary 事件问答
// @Description 路由问题到专业 Agent 并返回带来源信息的回答
// @Tags 问答
// @Accept json
// @Produce json
// @Param request body api.QueryRequest true "问答请求"
// @Success 200 {object} Response{data=api.QueryResponse} "问答响应"
// @Failure 400 {object} Response "无效请求"
// @Failure 502 {object} Response "Agent 调用失败"
// @Router /api/query [post]
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Query == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "query is required", h.logger)
		return
	}

	skipCache := req.UseCache != nil && !*req.UseCache

	result, err := h.service.Handle(r.Context(), orchestrator.Request{
		SessionID:     req.SessionID,
		QueryText:     req.Query,
		AgentOverride: types.AgentTag(req.AgentType),
		SkipCache:     skipCache,
	})
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, queryResponseFromResult(result))
}

// queryResponseFromResult 编排结果转 API 响应
func queryResponseFromResult(result *orchestrator.Result) *api.QueryResponse {
	return &api.QueryResponse{
		SessionID:      result.SessionID,
		Answer:         result.Answer,
		Agent:          result.AgentTag.String(),
		Confidence:     result.Confidence,
		Cached:         result.Cached,
		UsedContext:    result.UsedContext,
		Sources:        result.Sources,
		ProcessingTime: result.ProcessingTime.Seconds(),
	}
}

// HandleAgents 返回可用 Agent 列表
// @Summary 可用 Agent
// @Tags 问答
// @Produce json
// @Success 200 {object} Response{data=api.AgentListResponse}
// @Router /api/agents [get]
func (h *QueryHandler) HandleAgents(w http.ResponseWriter, r *http.Request) {
	infos := h.service.AvailableAgents()

	agents := make([]api.AgentInfo, 0, len(infos))
	for _, info := range infos {
		agents = append(agents, api.AgentInfo{
			Tag:         info.Tag.String(),
			Description: info.Description,
		})
	}

	WriteSuccess(w, api.AgentListResponse{Agents: agents})
}
