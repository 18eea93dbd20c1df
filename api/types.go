// Package api 定义对外 HTTP/WebSocket 接口的请求与响应结构。
package api

import (
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 问答接口类型
// =============================================================================

// QueryRequest 问答请求。
// @Description 问答请求结构
type QueryRequest struct {
	// 会话 ID，缺省时新建会话
	SessionID string `json:"session_id,omitempty" example:"session_1717000000_a1b2c3d4"`
	// 用户问题
	Query string `json:"query" binding:"required" example:"¿Cuántos expositores hay?"`
	// 指定 Agent，绕过路由（general/exhibitors/visitors）
	AgentType string `json:"agent_type,omitempty" example:"exhibitors"`
	// 是否使用语义缓存，缺省 true
	UseCache *bool `json:"use_cache,omitempty" example:"true"`
}

// QueryResponse 问答响应。
// @Description 问答响应结构
type QueryResponse struct {
	SessionID string `json:"session_id"`
	// 回答文本
	Answer string `json:"answer"`
	// 实际回答的 Agent
	Agent string `json:"agent"`
	// 路由置信度 [0,1]
	Confidence float64 `json:"confidence"`
	// 是否命中语义缓存
	Cached bool `json:"cached"`
	// 是否使用了会话上下文做路由
	UsedContext bool `json:"used_context"`
	// 回答依据来源
	Sources []string `json:"sources,omitempty"`
	// 处理耗时（秒）
	ProcessingTime float64 `json:"processing_time"`
}

// =============================================================================
// 会话接口类型
// =============================================================================

// SessionResponse 会话信息
type SessionResponse struct {
	SessionID    string `json:"session_id"`
	State        string `json:"state"`
	TurnCount    int    `json:"turn_count"`
	CreatedAt    string `json:"created_at"`
	LastActiveAt string `json:"last_active_at"`
}

// SessionHistoryResponse 会话历史
type SessionHistoryResponse struct {
	SessionID string       `json:"session_id"`
	Turns     []types.Turn `json:"turns"`
}

// =============================================================================
// 管理接口类型
// =============================================================================

// InvalidateRequest 按 Agent 失效缓存请求
type InvalidateRequest struct {
	Agent string `json:"agent" binding:"required" example:"exhibitors"`
}

// CleanupResponse 会话清理结果
type CleanupResponse struct {
	ClosedSessions int `json:"closed_sessions"`
}

// AgentListResponse 可用 Agent 列表
type AgentListResponse struct {
	Agents []AgentInfo `json:"agents"`
}

// AgentInfo 单个 Agent 信息
type AgentInfo struct {
	Tag         string `json:"tag"`
	Description string `json:"description"`
}

// =============================================================================
// WebSocket 消息类型
// =============================================================================

// WSMessageType WebSocket 消息类型
type WSMessageType string

const (
	WSTypeChat   WSMessageType = "chat"
	WSTypeSystem WSMessageType = "system"
	WSTypeError  WSMessageType = "error"
	WSTypeStats  WSMessageType = "stats"
)

// WSIncoming 客户端入站消息
type WSIncoming struct {
	Type WSMessageType `json:"type"`
	// type=chat 时为用户问题
	Query string `json:"query,omitempty"`
	// 指定 Agent（可选）
	AgentType string `json:"agent_type,omitempty"`
}

// WSOutgoing 服务端出站消息
type WSOutgoing struct {
	Type WSMessageType `json:"type"`
	// type=chat 时的问答结果
	Result *QueryResponse `json:"result,omitempty"`
	// type=system/error 时的说明文本
	Message string `json:"message,omitempty"`
	// type=error 时的错误码
	Code string `json:"code,omitempty"`
	// type=error 时是否建议重试
	Retryable bool `json:"retryable,omitempty"`
	// type=stats 时的缓存统计
	Stats any `json:"stats,omitempty"`
}
