package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/api"
	"github.com/BaSui01/expoflow/orchestrator"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 🔌 WebSocket 对话 Handler
// =============================================================================

// wsWriteTimeout 单条出站消息的写超时
const wsWriteTimeout = 10 * time.Second

// WSHandler WebSocket 对话处理器。
// 同一连接内的多条 chat 消息共享一个会话（首条回复建立会话 ID）。
type WSHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewWSHandler 创建 WebSocket 处理器
func NewWSHandler(service QueryService, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
	}
}

// HandleChat 升级为 WebSocket 并进入对话循环
// @Summary WebSocket 对话
// @Tags 问答
// @Router /ws/chat [get]
func (h *WSHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected shutdown")

	ctx := r.Context()

	if err := h.write(ctx, conn, api.WSOutgoing{
		Type:    api.WSTypeSystem,
		Message: "Bienvenido al asistente del evento. Envía tu pregunta.",
	}); err != nil {
		return
	}

	// 连接级会话粘连：首条 chat 回复后固定会话 ID
	var sessionID string

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				!errors.Is(err, context.Canceled) {
				h.logger.Debug("websocket read ended", zap.Error(err))
			}
			conn.Close(websocket.StatusNormalClosure, "")
			return
		}

		var msg api.WSIncoming
		if err := json.Unmarshal(data, &msg); err != nil {
			h.writeError(ctx, conn, types.NewError(types.ErrInvalidRequest, "invalid JSON message"))
			continue
		}

		switch msg.Type {
		case api.WSTypeChat:
			sessionID = h.handleChatMessage(ctx, conn, sessionID, msg)

		case api.WSTypeStats:
			h.handleStatsMessage(ctx, conn)

		default:
			h.writeError(ctx, conn, types.NewError(types.ErrInvalidRequest,
				"unsupported message type: "+string(msg.Type)))
		}
	}
}

// handleChatMessage 处理一条 chat 消息，返回（可能新建的）会话 ID
func (h *WSHandler) handleChatMessage(ctx context.Context, conn *websocket.Conn, sessionID string, msg api.WSIncoming) string {
	if msg.Query == "" {
		h.writeError(ctx, conn, types.NewError(types.ErrInvalidRequest, "query is required"))
		return sessionID
	}

	result, err := h.service.Handle(ctx, orchestrator.Request{
		SessionID:     sessionID,
		QueryText:     msg.Query,
		AgentOverride: types.AgentTag(msg.AgentType),
	})
	if err != nil {
		h.writeError(ctx, conn, err)
		return sessionID
	}

	if err := h.write(ctx, conn, api.WSOutgoing{
		Type:   api.WSTypeChat,
		Result: queryResponseFromResult(result),
	}); err != nil {
		return sessionID
	}

	return result.SessionID
}

// handleStatsMessage 返回语义缓存统计
func (h *WSHandler) handleStatsMessage(ctx context.Context, conn *websocket.Conn) {
	stats, err := h.service.CacheStats(ctx)
	if err != nil {
		h.writeError(ctx, conn, err)
		return
	}

	h.write(ctx, conn, api.WSOutgoing{
		Type:  api.WSTypeStats,
		Stats: stats,
	})
}

// write 序列化并发送一条出站消息
func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, msg api.WSOutgoing) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	if err := conn.Write(wctx, websocket.MessageText, data); err != nil {
		h.logger.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

// writeError 发送 type=error 消息（连接保持打开，客户端可重试）
func (h *WSHandler) writeError(ctx context.Context, conn *websocket.Conn, err error) {
	apiErr, ok := err.(*types.Error)
	if !ok {
		apiErr = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}

	h.write(ctx, conn, api.WSOutgoing{
		Type:      api.WSTypeError,
		Message:   apiErr.Message,
		Code:      string(apiErr.Code),
		Retryable: apiErr.Retryable,
	})
}
