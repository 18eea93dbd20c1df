package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/types"
)

// TokenCounter 回合 Token 计数，供上下文窗口按预算裁剪
type TokenCounter interface {
	CountTurns(turns []types.Turn) (int, error)
}

// Config 会话管理配置
type Config struct {
	// 每会话保留的最大回合数
	MaxTurns int
	// 上下文窗口默认回合数
	ContextTurns int
	// 上下文窗口 Token 预算，0 表示不限制
	ContextTokenBudget int
	// 空闲超时：超过该时长未活动的会话被清理扫描关闭
	IdleTimeout time.Duration
}

// DefaultConfig 返回默认会话管理配置
func DefaultConfig() Config {
	return Config{
		MaxTurns:     20,
		ContextTurns: 6,
		IdleTimeout:  24 * time.Hour,
	}
}

// Manager 会话管理器。
// 每个 session_id 持有独立互斥锁：同一会话的变更串行，
// 不同会话互不阻塞；锁只覆盖存储读写，不跨网络调用之外的长操作。
type Manager struct {
	store   Store
	cfg     Config
	counter TokenCounter
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[string]*lockEntry
}

// lockEntry 会话互斥锁与持有者/等待者计数。
// 计数保证有等待者时条目不被回收，否则等待者与后来者
// 会拿到两把不同的锁，破坏单会话变更串行的约定。
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewManager 创建会话管理器
func NewManager(store Store, cfg Config, counter TokenCounter, logger *zap.Logger) *Manager {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 20
	}
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   store,
		cfg:     cfg,
		counter: counter,
		logger:  logger.With(zap.String("component", "session_manager")),
		locks:   make(map[string]*lockEntry),
	}
}

// acquire 获取指定会话的互斥锁。先登记引用再阻塞等锁，
// 登记期间条目不会被回收。
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	entry, ok := m.locks[sessionID]
	if !ok {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	m.mu.Unlock()

	entry.mu.Lock()
	return entry
}

// release 释放会话锁，最后一个引用者负责回收条目
func (m *Manager) release(sessionID string, entry *lockEntry) {
	entry.mu.Unlock()

	m.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(m.locks, sessionID)
	}
	m.mu.Unlock()
}

// =============================================================================
// 🎯 会话生命周期
// =============================================================================

// GetOrCreate 获取或创建会话。
// sessionID 为空时生成新标识；CLOSED 会话视为不存在，
// 以同 ID 重建全新历史，绝不复活旧回合。
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	entry := m.acquire(sessionID)
	defer m.release(sessionID, entry)

	return m.getOrCreateLocked(ctx, sessionID)
}

func (m *Manager) getOrCreateLocked(ctx context.Context, sessionID string) (*Session, error) {
	session, err := m.store.Get(ctx, sessionID)
	if err == nil && session.IsActive() {
		return session, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	fresh := NewSession(sessionID)
	if session != nil {
		// CLOSED 终态：同 ID 重建需要接续版本号以通过乐观锁
		fresh.Version = session.Version + 1
	}
	if err := m.store.Save(ctx, fresh); err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// 并发创建竞争，读取胜者
			return m.store.Get(ctx, sessionID)
		}
		return nil, err
	}

	m.logger.Debug("session created", zap.String("session_id", sessionID))
	return fresh, nil
}

// AppendTurn 追加回合。会话不存在或已关闭时先重建再追加。
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, turn types.Turn) error {
	entry := m.acquire(sessionID)
	defer m.release(sessionID, entry)

	_, err := m.store.AppendTurn(ctx, sessionID, turn, m.cfg.MaxTurns)
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrClosed) {
		if _, cerr := m.getOrCreateLocked(ctx, sessionID); cerr != nil {
			return cerr
		}
		_, err = m.store.AppendTurn(ctx, sessionID, turn, m.cfg.MaxTurns)
	}
	if err != nil {
		return types.NewError(types.ErrSessionConflict, "failed to append turn").
			WithComponent("session_manager").
			WithCause(err)
	}
	return nil
}

// RecentContext 返回最近 maxTurns 个回合，老的在前。
// maxTurns ≤ 0 时使用配置默认值；配置了 Token 预算时
// 从最老一侧继续裁剪直到不超预算。
func (m *Manager) RecentContext(ctx context.Context, sessionID string, maxTurns int) ([]types.Turn, error) {
	if maxTurns <= 0 {
		maxTurns = m.cfg.ContextTurns
	}

	session, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, nil
	}

	turns := session.Turns
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}

	if m.cfg.ContextTokenBudget > 0 && m.counter != nil {
		turns = m.trimToBudget(turns)
	}
	return turns, nil
}

// trimToBudget 丢弃最老回合直到 Token 数不超预算
func (m *Manager) trimToBudget(turns []types.Turn) []types.Turn {
	for len(turns) > 1 {
		tokens, err := m.counter.CountTurns(turns)
		if err != nil {
			m.logger.Warn("token counting failed, skipping budget trim", zap.Error(err))
			return turns
		}
		if tokens <= m.cfg.ContextTokenBudget {
			return turns
		}
		turns = turns[1:]
	}
	return turns
}

// Close 关闭会话（ACTIVE→CLOSED）。与 AppendTurn 互斥：
// 同一瞬间的追加要么先于关闭完成，要么落在关闭后重建的新会话上。
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	entry := m.acquire(sessionID)
	defer m.release(sessionID, entry)

	session, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !session.IsActive() {
		return nil
	}

	session.State = StateClosed
	session.Version++
	if err := m.store.Save(ctx, session); err != nil {
		return types.NewError(types.ErrSessionConflict, "failed to close session").
			WithComponent("session_manager").
			WithCause(err)
	}

	m.logger.Debug("session closed", zap.String("session_id", sessionID))
	return nil
}

// =============================================================================
// 🧹 空闲清理
// =============================================================================

// CleanupInactive 扫描全部会话，关闭空闲超过 maxIdle 的会话，
// 返回关闭数量。与其他会话上的并发追加可安全交错。
func (m *Manager) CleanupInactive(ctx context.Context, maxIdle time.Duration) (int, error) {
	if maxIdle <= 0 {
		maxIdle = m.cfg.IdleTimeout
	}

	ids, err := m.store.ListIDs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxIdle)
	closed := 0
	for _, id := range ids {
		session, err := m.store.Get(ctx, id)
		if err != nil {
			continue
		}
		if !session.IsActive() || session.LastActiveAt.After(cutoff) {
			continue
		}
		if err := m.Close(ctx, id); err != nil {
			m.logger.Warn("idle session close failed",
				zap.String("session_id", id), zap.Error(err))
			continue
		}
		closed++
	}

	if closed > 0 {
		m.logger.Info("idle sessions cleaned up", zap.Int("closed", closed))
	}
	return closed, nil
}

// StartCleanupLoop 启动后台清理循环，ctx 取消时退出
func (m *Manager) StartCleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.CleanupInactive(ctx, m.cfg.IdleTimeout); err != nil {
					m.logger.Warn("cleanup sweep failed", zap.Error(err))
				}
			}
		}
	}()
}
