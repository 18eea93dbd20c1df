package audit

import (
	"context"
)

// Store 回合落盘后端
type Store interface {
	// SaveTurn 追加一条回合记录
	SaveTurn(ctx context.Context, record *TurnRecord) error

	// RecentBySession 按会话取最近 limit 条记录，时间倒序
	RecentBySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error)

	// Ping 检查后端可用性
	Ping(ctx context.Context) error

	// Close 释放连接
	Close() error
}
