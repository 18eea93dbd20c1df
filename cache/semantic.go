// =============================================================================
// 💾 语义查询缓存
// =============================================================================
// 以内容哈希做精确命中快路径，以余弦相似度做近似命中，
// 命中计数原子递增，TTL 不因命中而续期（有界陈旧性）。
// 按 agent 的失效通过纪元递增实现：在途 store 落入已死代际，
// 不会复活逻辑上已被清除的条目。
// =============================================================================
package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/embedding"
	redisstore "github.com/BaSui01/expoflow/internal/cache"
	"github.com/BaSui01/expoflow/types"
)

// ErrMiss 缓存未命中
var ErrMiss = errors.New("semantic cache miss")

// Config 语义缓存配置
type Config struct {
	// 相似度阈值，低于该值视为未命中
	SimilarityThreshold float64
	// 默认 TTL（Store 传入 ttl=0 时使用）
	DefaultTTL time.Duration
	// 相似候选扫描上限，0 表示不限
	MaxScanCandidates int
	// Redis 键前缀
	KeyPrefix string
	// 单次 Redis 操作超时，超时降级为未命中
	OpTimeout time.Duration
}

// DefaultConfig 返回默认语义缓存配置
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.80,
		DefaultTTL:          1 * time.Hour,
		MaxScanCandidates:   200,
		KeyPrefix:           "expoflow:",
		OpTimeout:           2 * time.Second,
	}
}

// SemanticCache 语义查询缓存
type SemanticCache struct {
	store    *redisstore.Manager
	embedder embedding.Provider
	cfg      Config
	keys     keyBuilder
	logger   *zap.Logger
}

// NewSemanticCache 创建语义查询缓存
func NewSemanticCache(store *redisstore.Manager, embedder embedding.Provider, cfg Config, logger *zap.Logger) *SemanticCache {
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.80
	}
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 1 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SemanticCache{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		keys:     newKeyBuilder(cfg.KeyPrefix),
		logger:   logger.With(zap.String("component", "semantic_cache")),
	}
}

// IsMiss 判断是否为缓存未命中
func IsMiss(err error) bool {
	return errors.Is(err, ErrMiss)
}

// =============================================================================
// 🎯 查询与写入
// =============================================================================

// Lookup 查找缓存条目。
// 先按内容哈希做精确匹配（无需嵌入），未命中再嵌入查询文本，
// 在同 agent 当前代际内线性扫描，选相似度最高且 ≥ 阈值的条目，
// 同分时取创建时间最新者。命中即原子递增命中计数，但不触碰 TTL。
func (c *SemanticCache) Lookup(ctx context.Context, queryText string, agent types.AgentTag) (*Entry, error) {
	normalized := NormalizeQuery(queryText)
	hash := ContentHash(normalized)

	epoch, err := c.currentEpoch(ctx, agent)
	if err != nil {
		return nil, err
	}

	// 精确命中快路径
	exactKey := c.keys.entryKey(agent, epoch, hash)
	var exact Entry
	err = c.getJSON(ctx, exactKey, &exact)
	switch {
	case err == nil:
		exact.Record.HitCount = c.recordHit(ctx, agent, epoch, hash, exact.Record.ExpiresAt)
		c.logger.Debug("exact cache hit",
			zap.String("agent", agent.String()),
			zap.String("hash", hash),
		)
		return &exact, nil
	case !redisstore.IsCacheMiss(err):
		return nil, c.unavailable("lookup", err)
	}

	// 相似匹配需要查询向量
	vec, err := c.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		return nil, err
	}

	candidates, err := c.scanKeys(ctx, c.keys.entryPrefix(agent, epoch), c.cfg.MaxScanCandidates)
	if err != nil {
		return nil, c.unavailable("lookup", err)
	}

	var (
		best      *Entry
		bestScore float64
	)
	for _, key := range candidates {
		var cand Entry
		if err := c.getJSON(ctx, key, &cand); err != nil {
			// 条目在扫描与读取之间过期
			continue
		}
		score := CosineSimilarity(vec, cand.Record.Embedding)
		if score < c.cfg.SimilarityThreshold {
			continue
		}
		entry := cand
		if best == nil || score > bestScore ||
			(score == bestScore && entry.Record.CreatedAt.After(best.Record.CreatedAt)) {
			best = &entry
			bestScore = score
		}
	}

	if best == nil {
		return nil, ErrMiss
	}

	bestHash := ContentHash(best.Record.NormalizedText)
	best.Record.HitCount = c.recordHit(ctx, agent, epoch, bestHash, best.Record.ExpiresAt)
	c.logger.Debug("similarity cache hit",
		zap.String("agent", agent.String()),
		zap.Float64("score", bestScore),
	)
	return best, nil
}

// Store 写入缓存条目。
// 同内容哈希的旧条目被整体覆盖，命中计数清零；
// 近似重复的不同措辞各自独立存活直至过期。
func (c *SemanticCache) Store(ctx context.Context, queryText string, agent types.AgentTag, answer string, sourceMeta map[string]string, ttl time.Duration) (*Entry, error) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	normalized := NormalizeQuery(queryText)
	hash := ContentHash(normalized)

	vec, err := c.embedder.EmbedQuery(ctx, normalized)
	if err != nil {
		return nil, err
	}

	epoch, err := c.currentEpoch(ctx, agent)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry := &Entry{
		Record: QueryRecord{
			RawText:        queryText,
			NormalizedText: normalized,
			Embedding:      vec,
			AgentTag:       agent,
			CreatedAt:      now,
			ExpiresAt:      now.Add(ttl),
			HitCount:       0,
		},
		Answer:         answer,
		SourceMetadata: sourceMeta,
	}

	rctx, cancel := c.opCtx(ctx)
	defer cancel()

	if err := c.store.SetJSON(rctx, c.keys.entryKey(agent, epoch, hash), entry, ttl); err != nil {
		return nil, c.unavailable("store", err)
	}
	if err := c.store.Set(rctx, c.keys.counterKey(agent, epoch, hash), "0", ttl); err != nil {
		return nil, c.unavailable("store", err)
	}

	c.logger.Debug("cache entry stored",
		zap.String("agent", agent.String()),
		zap.String("hash", hash),
		zap.Duration("ttl", ttl),
	)
	return entry, nil
}

// =============================================================================
// 🧹 失效与统计
// =============================================================================

// Invalidate 清除指定 agent 的全部条目。
// 先递增纪元（之后的查询只看新代际，在途 store 落入死代际），
// 再清扫旧代际的键。清扫失败不影响正确性，只是延迟回收。
func (c *SemanticCache) Invalidate(ctx context.Context, agent types.AgentTag) error {
	rctx, cancel := c.opCtx(ctx)
	defer cancel()

	newEpoch, err := c.store.Incr(rctx, c.keys.epochKey(agent))
	if err != nil {
		return c.unavailable("invalidate", err)
	}

	removed := c.sweepStale(ctx, c.keys.agentEntryPrefix(agent), newEpoch)
	removed += c.sweepStale(ctx, c.keys.agentCounterPrefix(agent), newEpoch)

	c.logger.Info("agent cache invalidated",
		zap.String("agent", agent.String()),
		zap.Int64("epoch", newEpoch),
		zap.Int("removed", removed),
	)
	return nil
}

// ClearAll 清除所有 agent 的全部条目
func (c *SemanticCache) ClearAll(ctx context.Context) error {
	removed := 0
	for _, prefix := range []string{c.keys.allEntriesPrefix(), c.keys.allCountersPrefix()} {
		keys, err := c.scanKeys(ctx, prefix, 0)
		if err != nil {
			return c.unavailable("clear_all", err)
		}
		if len(keys) == 0 {
			continue
		}
		rctx, cancel := c.opCtx(ctx)
		err = c.store.Delete(rctx, keys...)
		cancel()
		if err != nil {
			return c.unavailable("clear_all", err)
		}
		removed += len(keys)
	}

	c.logger.Info("cache cleared", zap.Int("removed", removed))
	return nil
}

// Stats 统计当前代际的条目数与命中计数
func (c *SemanticCache) Stats(ctx context.Context) (*Stats, error) {
	keys, err := c.scanKeys(ctx, c.keys.allEntriesPrefix(), 0)
	if err != nil {
		return nil, c.unavailable("stats", err)
	}

	stats := &Stats{
		EntriesPerAgent:  make(map[types.AgentTag]int),
		HitCountPerAgent: make(map[types.AgentTag]int64),
	}
	epochs := make(map[types.AgentTag]int64)

	for _, key := range keys {
		agent, epoch, hash, ok := c.parseEntryKey(key)
		if !ok {
			continue
		}

		current, known := epochs[agent]
		if !known {
			current, err = c.currentEpoch(ctx, agent)
			if err != nil {
				return nil, err
			}
			epochs[agent] = current
		}
		// 死代际残留（在途 store 落入旧纪元）不计入统计
		if epoch != current {
			continue
		}

		stats.TotalEntries++
		stats.EntriesPerAgent[agent]++

		hits := c.counterValue(ctx, agent, epoch, hash)
		stats.AggregateHitCount += hits
		stats.HitCountPerAgent[agent] += hits
	}

	return stats, nil
}

// =============================================================================
// 🔧 内部方法
// =============================================================================

// currentEpoch 读取 agent 的当前纪元，键缺失视为 0
func (c *SemanticCache) currentEpoch(ctx context.Context, agent types.AgentTag) (int64, error) {
	rctx, cancel := c.opCtx(ctx)
	defer cancel()

	val, err := c.store.Get(rctx, c.keys.epochKey(agent))
	if redisstore.IsCacheMiss(err) {
		return 0, nil
	}
	if err != nil {
		return 0, c.unavailable("epoch", err)
	}

	epoch, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, nil
	}
	return epoch, nil
}

// recordHit 原子递增命中计数并返回新值。
// 计数器与条目同 TTL；计数失败只降级为旧值，不影响命中本身。
func (c *SemanticCache) recordHit(ctx context.Context, agent types.AgentTag, epoch int64, hash string, expiresAt time.Time) int64 {
	rctx, cancel := c.opCtx(ctx)
	defer cancel()

	key := c.keys.counterKey(agent, epoch, hash)
	n, err := c.store.Incr(rctx, key)
	if err != nil {
		c.logger.Warn("hit count increment failed", zap.String("key", key), zap.Error(err))
		return 0
	}

	// 计数器比条目先消失时由 INCR 重建，需要补上剩余 TTL
	if n == 1 {
		if remaining := time.Until(expiresAt); remaining > 0 {
			_ = c.store.Expire(rctx, key, remaining)
		}
	}
	return n
}

// counterValue 读取命中计数器，异常时按 0 计
func (c *SemanticCache) counterValue(ctx context.Context, agent types.AgentTag, epoch int64, hash string) int64 {
	rctx, cancel := c.opCtx(ctx)
	defer cancel()

	val, err := c.store.Get(rctx, c.keys.counterKey(agent, epoch, hash))
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// sweepStale 删除不属于 keepEpoch 的代际键，返回删除数
func (c *SemanticCache) sweepStale(ctx context.Context, prefix string, keepEpoch int64) int {
	keys, err := c.scanKeys(ctx, prefix, 0)
	if err != nil {
		c.logger.Warn("stale sweep scan failed", zap.String("prefix", prefix), zap.Error(err))
		return 0
	}

	var stale []string
	for _, key := range keys {
		if epoch, ok := c.parseKeyEpoch(key); ok && epoch != keepEpoch {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	rctx, cancel := c.opCtx(ctx)
	defer cancel()
	if err := c.store.Delete(rctx, stale...); err != nil {
		c.logger.Warn("stale sweep delete failed", zap.Error(err))
		return 0
	}
	return len(stale)
}

func (c *SemanticCache) scanKeys(ctx context.Context, prefix string, limit int) ([]string, error) {
	rctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.store.ScanPrefix(rctx, prefix, limit)
}

func (c *SemanticCache) getJSON(ctx context.Context, key string, dest any) error {
	rctx, cancel := c.opCtx(ctx)
	defer cancel()
	return c.store.GetJSON(rctx, key, dest)
}

// parseEntryKey 解析条目键为 (agent, epoch, hash)
func (c *SemanticCache) parseEntryKey(key string) (types.AgentTag, int64, string, bool) {
	rest, found := strings.CutPrefix(key, c.keys.allEntriesPrefix())
	if !found {
		return "", 0, "", false
	}
	parts := strings.SplitN(rest, ":", 3)
	if len(parts) != 3 {
		return "", 0, "", false
	}
	epoch, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", false
	}
	return types.AgentTag(parts[0]), epoch, parts[2], true
}

// parseKeyEpoch 提取键中的纪元段（条目键与计数器键同构）
func (c *SemanticCache) parseKeyEpoch(key string) (int64, bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 2 {
		return 0, false
	}
	epoch, err := strconv.ParseInt(parts[len(parts)-2], 10, 64)
	if err != nil {
		return 0, false
	}
	return epoch, true
}

func (c *SemanticCache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.OpTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.OpTimeout)
}

func (c *SemanticCache) unavailable(op string, err error) error {
	c.logger.Warn("cache store unavailable", zap.String("op", op), zap.Error(err))
	return types.NewError(types.ErrCacheUnavailable, "cache store unavailable during "+op).
		WithRetryable(true).
		WithComponent("semantic_cache").
		WithCause(err)
}
