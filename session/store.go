package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	redisstore "github.com/BaSui01/expoflow/internal/cache"
	"github.com/BaSui01/expoflow/types"
)

var (
	// ErrNotFound 会话不存在
	ErrNotFound = errors.New("session not found")
	// ErrClosed 会话已关闭
	ErrClosed = errors.New("session closed")
	// ErrVersionConflict 乐观锁版本冲突
	ErrVersionConflict = errors.New("session version conflict")
)

// Store 会话存储接口
type Store interface {
	// Get 获取会话
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Save 保存会话（带乐观锁）
	Save(ctx context.Context, session *Session) error
	// Delete 删除会话
	Delete(ctx context.Context, sessionID string) error
	// AppendTurn 原子追加回合并裁剪历史，返回新版本号
	AppendTurn(ctx context.Context, sessionID string, turn types.Turn, maxTurns int) (int, error)
	// ListIDs 列出全部会话 ID（清理扫描用）
	ListIDs(ctx context.Context) ([]string, error)
}

// saveScript 乐观锁保存：版本不匹配返回 -1
const saveScript = `
	local key = KEYS[1]
	local data = ARGV[1]
	local expectedVersion = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current then
		local session = cjson.decode(current)
		if session.version ~= expectedVersion then
			return -1
		end
	end

	redis.call('SET', key, data, 'EX', ARGV[3])
	return 1
`

// appendScript 原子追加：状态检查、追加、裁剪、版本递增与
// last_active_at 更新在脚本内一次完成，避免读改写竞态。
// 不存在返回 -1，已关闭返回 -2，成功返回新版本号。
const appendScript = `
	local key = KEYS[1]
	local turnData = ARGV[1]
	local ttl = tonumber(ARGV[2])
	local now = ARGV[3]
	local maxTurns = tonumber(ARGV[4])

	local current = redis.call('GET', key)
	if not current then
		return -1
	end

	local session = cjson.decode(current)
	if session.state ~= 'ACTIVE' then
		return -2
	end

	table.insert(session.turns, cjson.decode(turnData))
	while maxTurns > 0 and #session.turns > maxTurns do
		table.remove(session.turns, 1)
	end
	session.version = session.version + 1
	session.last_active_at = now

	redis.call('SET', key, cjson.encode(session), 'EX', ttl)
	return session.version
`

// RedisStore Redis 会话存储，经共享 Redis 管理器读写，
// Lua 脚本通过管理器的 Eval 执行。
type RedisStore struct {
	store     *redisstore.Manager
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewRedisStore 创建 Redis 会话存储
func NewRedisStore(store *redisstore.Manager, keyPrefix string, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "expoflow:session:"
	}
	if !strings.HasSuffix(keyPrefix, ":") {
		keyPrefix += ":"
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{
		store:     store,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger.With(zap.String("component", "session_store")),
	}
}

func (s *RedisStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

// Get 获取会话
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.store.Get(ctx, s.key(sessionID))
	if err != nil {
		if redisstore.IsCacheMiss(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("session get: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// Save 保存会话，Lua 脚本实现乐观锁
func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	result, err := s.store.Eval(ctx, saveScript, []string{s.key(session.SessionID)},
		string(data), session.Version-1, int(s.ttl.Seconds()))
	if err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	if n, ok := result.(int64); ok && n == -1 {
		return ErrVersionConflict
	}
	return nil
}

// Delete 删除会话
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.store.Delete(ctx, s.key(sessionID))
}

// AppendTurn 原子追加回合，返回新版本号
func (s *RedisStore) AppendTurn(ctx context.Context, sessionID string, turn types.Turn, maxTurns int) (int, error) {
	turnData, err := json.Marshal(turn)
	if err != nil {
		return 0, fmt.Errorf("marshal turn: %w", err)
	}
	now := time.Now().Format(time.RFC3339Nano)

	result, err := s.store.Eval(ctx, appendScript, []string{s.key(sessionID)},
		string(turnData), int(s.ttl.Seconds()), now, maxTurns)
	if err != nil {
		return 0, fmt.Errorf("session append: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("session append: unexpected script result %T", result)
	}
	switch n {
	case -1:
		return 0, ErrNotFound
	case -2:
		return 0, ErrClosed
	}
	return int(n), nil
}

// ListIDs 列出全部会话 ID
func (s *RedisStore) ListIDs(ctx context.Context) ([]string, error) {
	keys, err := s.store.ScanPrefix(ctx, s.keyPrefix, 0)
	if err != nil {
		return nil, fmt.Errorf("session scan: %w", err)
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, s.keyPrefix))
	}
	return ids, nil
}
