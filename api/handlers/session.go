package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/api"
	"github.com/BaSui01/expoflow/session"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 💬 会话接口 Handler
// =============================================================================

// SessionService 会话管理服务，由 session.Manager 实现
type SessionService interface {
	GetOrCreate(ctx context.Context, sessionID string) (*session.Session, error)
	RecentContext(ctx context.Context, sessionID string, maxTurns int) ([]types.Turn, error)
	Close(ctx context.Context, sessionID string) error
}

// SessionHandler 会话接口处理器
type SessionHandler struct {
	sessions SessionService
	logger   *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// HandleCreate 新建会话
// @Summary 新建会话
// @Tags 会话
// @Produce json
// @Success 200 {object} Response{data=api.SessionResponse}
// @Router /api/sessions [post]
func (h *SessionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.GetOrCreate(r.Context(), "")
	if err != nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable,
			"session store unavailable", h.logger)
		return
	}

	WriteSuccess(w, sessionResponse(sess))
}

// HandleHistory 查询会话历史
// @Summary 会话历史
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response{data=api.SessionHistoryResponse}
// @Failure 404 {object} Response "会话不存在"
// @Router /api/sessions/{id}/history [get]
func (h *SessionHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessionIDFromPath(r, "/history")
	if sessionID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "session id is required", h.logger)
		return
	}

	// 0 表示按配置的上下文窗口取
	turns, err := h.sessions.RecentContext(r.Context(), sessionID, 0)
	if err != nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable,
			"session store unavailable", h.logger)
		return
	}
	if turns == nil {
		turns = []types.Turn{}
	}

	WriteSuccess(w, api.SessionHistoryResponse{
		SessionID: sessionID,
		Turns:     turns,
	})
}

// HandleClose 关闭会话
// @Summary 关闭会话
// @Tags 会话
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response "会话不存在"
// @Router /api/sessions/{id}/close [post]
func (h *SessionHandler) HandleClose(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessionIDFromPath(r, "/close")
	if sessionID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrInvalidRequest, "session id is required", h.logger)
		return
	}

	// 对不存在的会话关闭是幂等空操作
	if err := h.sessions.Close(r.Context(), sessionID); err != nil {
		WriteErrorMessage(w, http.StatusServiceUnavailable, types.ErrServiceUnavailable,
			"failed to close session", h.logger)
		return
	}

	WriteSuccess(w, map[string]string{"session_id": sessionID, "state": "CLOSED"})
}

// sessionIDFromPath 从 /api/sessions/{id}/<suffix> 提取会话 ID
func (h *SessionHandler) sessionIDFromPath(r *http.Request, suffix string) string {
	path := strings.TrimSuffix(r.URL.Path, suffix)
	return path[strings.LastIndex(path, "/")+1:]
}

// sessionResponse 会话转 API 响应
func sessionResponse(sess *session.Session) *api.SessionResponse {
	return &api.SessionResponse{
		SessionID:    sess.SessionID,
		State:        string(sess.State),
		TurnCount:    len(sess.Turns),
		CreatedAt:    sess.CreatedAt.Format(time.RFC3339),
		LastActiveAt: sess.LastActiveAt.Format(time.RFC3339),
	}
}
