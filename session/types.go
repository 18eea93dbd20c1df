// 包 session 提供按会话的对话记忆。
//
// RedisStore 以 Lua 脚本保证追加的原子性，Manager 以
// per-session 互斥仲裁并发的 append/close，使同一会话的
// 回合顺序与状态机（ACTIVE→CLOSED）在任意并发下保持一致。
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/expoflow/types"
)

// State 会话状态
type State string

const (
	// StateActive 活跃会话，可追加回合
	StateActive State = "ACTIVE"
	// StateClosed 已关闭，终态；再次追加会以同 ID 重建新会话
	StateClosed State = "CLOSED"
)

// Session 会话数据
type Session struct {
	SessionID    string       `json:"session_id"`
	Turns        []types.Turn `json:"turns"`
	State        State        `json:"state"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActiveAt time.Time    `json:"last_active_at"`
	Version      int          `json:"version"`
}

// NewSession 创建空的活跃会话
func NewSession(sessionID string) *Session {
	now := time.Now()
	return &Session{
		SessionID:    sessionID,
		Turns:        []types.Turn{},
		State:        StateActive,
		CreatedAt:    now,
		LastActiveAt: now,
		Version:      1,
	}
}

// NewSessionID 生成会话标识：session_<unix>_<uuid前8位>
func NewSessionID() string {
	return fmt.Sprintf("session_%d_%s", time.Now().Unix(), uuid.NewString()[:8])
}

// IsActive 判断会话是否活跃
func (s *Session) IsActive() bool {
	return s.State == StateActive
}
