package audit

import (
	"context"

	"github.com/BaSui01/expoflow/internal/database"
)

// =============================================================================
// 🗄️ GORM 落盘后端（sqlite / mysql / postgres）
// =============================================================================

// GormStore 基于关系型数据库的回合落盘
type GormStore struct {
	pool *database.PoolManager
}

// NewGormStore 创建 GORM 落盘后端。
// 表结构由 internal/migration 管理；AutoMigrate 仅兜底 sqlite 本地开发。
func NewGormStore(pool *database.PoolManager, autoMigrate bool) (*GormStore, error) {
	if autoMigrate {
		if err := pool.DB().AutoMigrate(&TurnRecord{}); err != nil {
			return nil, err
		}
	}
	return &GormStore{pool: pool}, nil
}

// SaveTurn 追加一条回合记录
func (s *GormStore) SaveTurn(ctx context.Context, record *TurnRecord) error {
	return s.pool.DB().WithContext(ctx).Create(record).Error
}

// RecentBySession 按会话取最近 limit 条记录，时间倒序
func (s *GormStore) RecentBySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	var records []TurnRecord
	err := s.pool.DB().WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// Ping 检查数据库连接
func (s *GormStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close 关闭连接池
func (s *GormStore) Close() error {
	return s.pool.Close()
}
