package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(service QueryService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger,
	}
}

// HandleHealth 返回各组件健康状态。
// Redis 不可用时整体 degraded，但仍返回 200（服务本身可降级运行）。
// @Summary 健康检查
// @Tags 系统
// @Produce json
// @Success 200 {object} Response{data=orchestrator.HealthStatus}
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.service.HealthCheck(r.Context())

	if status.Status != "ok" {
		h.logger.Warn("health check degraded", zap.Any("components", status.Components))
	}

	WriteSuccess(w, status)
}
