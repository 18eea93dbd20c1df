package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/api"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 🛠️ 管理接口 Handler
// =============================================================================

// AdminHandler 管理接口处理器（缓存运维与会话清理）
type AdminHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(service QueryService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger,
	}
}

// HandleCacheStats 查询语义缓存统计
// @Summary 缓存统计
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=cache.Stats}
// @Router /api/admin/cache/stats [get]
func (h *AdminHandler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.CacheStats(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, stats)
}

// HandleClearCache 清空全部语义缓存
// @Summary 清空缓存
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response
// @Router /api/admin/cache/clear [post]
func (h *AdminHandler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCache(r.Context()); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"status": "cleared"})
}

// HandleInvalidate 失效指定 Agent 的缓存域
// @Summary 失效 Agent 缓存
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body api.InvalidateRequest true "目标 Agent"
// @Success 200 {object} Response
// @Failure 400 {object} Response "未知 Agent"
// @Router /api/admin/cache/invalidate [post]
func (h *AdminHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.InvalidateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Agent == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "agent is required", h.logger)
		return
	}

	if err := h.service.InvalidateAgent(r.Context(), types.AgentTag(req.Agent)); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"agent": req.Agent, "status": "invalidated"})
}

// HandleRefresh 文档更新后刷新 Agent 数据并失效其缓存域
// @Summary 刷新 Agent 数据
// @Tags 管理
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body api.InvalidateRequest true "目标 Agent"
// @Success 200 {object} Response
// @Failure 400 {object} Response "未知 Agent"
// @Failure 503 {object} Response "数据刷新失败"
// @Router /api/admin/agents/refresh [post]
func (h *AdminHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.InvalidateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if req.Agent == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "agent is required", h.logger)
		return
	}

	if err := h.service.RefreshAgent(r.Context(), types.AgentTag(req.Agent)); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"agent": req.Agent, "status": "refreshed"})
}

// HandleCleanupSessions 触发闲置会话清理
// @Summary 清理闲置会话
// @Tags 管理
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=api.CleanupResponse}
// @Router /api/admin/sessions/cleanup [post]
func (h *AdminHandler) HandleCleanupSessions(w http.ResponseWriter, r *http.Request) {
	closed, err := h.service.CleanupSessions(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("session cleanup triggered", zap.Int("closed", closed))
	WriteSuccess(w, api.CleanupResponse{ClosedSessions: closed})
}
