// Package audit 负责问答回合的持久化落盘。
//
// Redis 中的会话记录带 TTL，仅服务在线对话；审计层把每个回合
// 追加写入关系型数据库或 MongoDB，供事后分析与回放。写入走
// AsyncRecorder 异步队列，落盘失败不影响请求路径。
package audit

import (
	"time"

	"github.com/BaSui01/expoflow/types"
)

// TurnRecord 单个回合的落盘记录
type TurnRecord struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" bson:"-" json:"id"`
	TurnID     string    `gorm:"size:64;index" bson:"turn_id" json:"turn_id"`
	SessionID  string    `gorm:"size:128;index:idx_turn_records_session" bson:"session_id" json:"session_id"`
	Role       string    `gorm:"size:16" bson:"role" json:"role"`
	Text       string    `gorm:"type:text" bson:"text" json:"text"`
	AgentTag   string    `gorm:"size:32;index" bson:"agent_tag" json:"agent_tag"`
	Confidence float64   `bson:"confidence" json:"confidence"`
	Cached     bool      `bson:"cached" json:"cached"`
	Failed     bool      `bson:"failed" json:"failed"`
	CreatedAt  time.Time `gorm:"index" bson:"created_at" json:"created_at"`
}

// TableName GORM 表名
func (TurnRecord) TableName() string { return "turn_records" }

// RecordFromTurn 把会话回合转换为落盘记录
func RecordFromTurn(sessionID string, turn types.Turn) *TurnRecord {
	return &TurnRecord{
		TurnID:     turn.TurnID,
		SessionID:  sessionID,
		Role:       string(turn.Role),
		Text:       turn.Text,
		AgentTag:   turn.AgentTag.String(),
		Confidence: turn.Confidence,
		Cached:     turn.Cached,
		Failed:     turn.Failed,
		CreatedAt:  turn.Timestamp,
	}
}
