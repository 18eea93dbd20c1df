// =============================================================================
// 🧭 查询路由器
// =============================================================================
// 纯决策函数：关键词证据 + 会话连续性偏置 → RoutingDecision。
// 路由器从不调用任何 agent，对会话数据只读。
// =============================================================================
package router

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/types"
)

// Decision 路由决策，随产随用，不单独持久化
type Decision struct {
	SelectedAgent   types.AgentTag `json:"selected_agent"`
	Confidence      float64        `json:"confidence"`
	MatchedKeywords []string       `json:"matched_keywords,omitempty"`
	UsedContext     bool           `json:"used_context"`
}

// Config 路由配置
type Config struct {
	// 最低置信度，未达标时回退到 general
	ConfidenceFloor float64
	// 连续性偏置的置信度下限
	ContinuityWeight float64
	// 上一回合的新鲜度窗口，超窗不再施加连续性偏置
	ContinuityWindow time.Duration
	// 追问判定的最大词数
	FollowupMaxWords int
}

// DefaultConfig 返回默认路由配置
func DefaultConfig() Config {
	return Config{
		ConfidenceFloor:  0.3,
		ContinuityWeight: 0.6,
		ContinuityWindow: 5 * time.Minute,
		FollowupMaxWords: 6,
	}
}

// 关键词得分到置信度的归一化上限：
// 一个问句模式命中(3) + 一个主关键词命中(2) + 一个次关键词命中(1)
const maxKeywordScore = 6.0

// 强信号阈值：至少一个主关键词或问句模式命中，
// 达到该值的异 agent 证据压过连续性偏置
const strongSignalScore = 2.0

// 追问的引导连接词
var followupConnectives = []string{
	"y ", "y,", "¿y ", "and ", "también ", "tambien ",
	"eso ", "esa ", "ese ", "it ", "that ", "what about ", "qué hay ",
	"además ", "ademas ",
}

// Router 基于词表与会话连续性的查询路由器
type Router struct {
	vocab  Vocabulary
	cfg    Config
	logger *zap.Logger
}

// New 创建路由器
func New(vocab Vocabulary, cfg Config, logger *zap.Logger) *Router {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if cfg.ConfidenceFloor == 0 {
		cfg.ConfidenceFloor = 0.3
	}
	if cfg.ContinuityWeight == 0 {
		cfg.ContinuityWeight = 0.6
	}
	if cfg.ContinuityWindow == 0 {
		cfg.ContinuityWindow = 5 * time.Minute
	}
	if cfg.FollowupMaxWords == 0 {
		cfg.FollowupMaxWords = 6
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		vocab:  vocab,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "router")),
	}
}

// Route 为查询选择负责的 agent。
// 两路信号：词表匹配强度 + 连续性偏置（短追问沿用上一 agent）。
// 异 agent 的强关键词证据永远压过连续性。
func (r *Router) Route(queryText string, sessionContext []types.Turn) Decision {
	query := strings.ToLower(strings.TrimSpace(queryText))

	prevAgent, prevFresh := r.previousAgent(sessionContext)

	bestAgent, bestScore, matched := r.bestKeywordAgent(query, prevAgent)
	confidence := normalizeScore(bestScore)

	// 连续性偏置：窗口内存在上一 agent，且本查询是弱信号追问
	if prevFresh && r.isFollowup(query) {
		differentStrong := bestAgent != prevAgent && bestScore >= strongSignalScore
		if !differentStrong {
			prevScore, prevMatched := r.keywordScore(query, prevAgent)
			decision := Decision{
				SelectedAgent:   prevAgent,
				Confidence:      maxFloat(normalizeScore(prevScore), r.cfg.ContinuityWeight),
				MatchedKeywords: prevMatched,
				UsedContext:     true,
			}
			r.logDecision(queryText, decision)
			return decision
		}
	}

	// 纯关键词路径：未达置信度下限时回退 general
	selected := bestAgent
	if confidence < r.cfg.ConfidenceFloor {
		selected = types.AgentGeneral
	}

	decision := Decision{
		SelectedAgent:   selected,
		Confidence:      confidence,
		MatchedKeywords: matched,
		UsedContext:     false,
	}
	r.logDecision(queryText, decision)
	return decision
}

// =============================================================================
// 🔧 内部方法
// =============================================================================

// bestKeywordAgent 选出词表得分最高的 agent。
// 同分时优先上一回合使用的 agent，否则优先 general。
func (r *Router) bestKeywordAgent(query string, prevAgent types.AgentTag) (types.AgentTag, float64, []string) {
	tags := make([]types.AgentTag, 0, len(r.vocab))
	for tag := range r.vocab {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	best := types.AgentGeneral
	bestScore := -1.0
	var bestMatched []string

	for _, tag := range tags {
		score, matched := r.keywordScore(query, tag)
		switch {
		case score > bestScore:
			best, bestScore, bestMatched = tag, score, matched
		case score == bestScore && tag == prevAgent:
			best, bestMatched = tag, matched
		case score == bestScore && tag == types.AgentGeneral && best != prevAgent:
			best, bestMatched = tag, matched
		}
	}

	if bestScore < 0 {
		bestScore = 0
	}
	return best, bestScore, bestMatched
}

// keywordScore 计算查询对单个 agent 的词表得分
func (r *Router) keywordScore(query string, tag types.AgentTag) (float64, []string) {
	vocab, ok := r.vocab[tag]
	if !ok {
		return 0, nil
	}

	var (
		score   float64
		matched []string
	)
	for _, kw := range vocab.Primary {
		if strings.Contains(query, kw) {
			score += 2.0
			matched = append(matched, kw)
		}
	}
	for _, kw := range vocab.Secondary {
		if strings.Contains(query, kw) {
			score += 1.0
			matched = append(matched, kw)
		}
	}
	for _, pattern := range vocab.Patterns {
		if pattern.MatchString(query) {
			score += 3.0
			matched = append(matched, "pattern:"+pattern.String())
		}
	}
	return score, matched
}

// previousAgent 返回窗口内最近一个带 agent 标签的回合的 agent
func (r *Router) previousAgent(sessionContext []types.Turn) (types.AgentTag, bool) {
	cutoff := time.Now().Add(-r.cfg.ContinuityWindow)
	for i := len(sessionContext) - 1; i >= 0; i-- {
		turn := sessionContext[i]
		if turn.AgentTag == "" {
			continue
		}
		if turn.Timestamp.Before(cutoff) {
			return "", false
		}
		return turn.AgentTag, true
	}
	return "", false
}

// isFollowup 判定短追问：词数不超过上限，或以连接词开头。
// 该启发式是可调策略，不追求语言学上的完备。
func (r *Router) isFollowup(query string) bool {
	if query == "" {
		return false
	}
	if len(strings.Fields(query)) <= r.cfg.FollowupMaxWords {
		return true
	}
	for _, conn := range followupConnectives {
		if strings.HasPrefix(query, conn) {
			return true
		}
	}
	return false
}

func (r *Router) logDecision(query string, d Decision) {
	r.logger.Debug("routing decision",
		zap.String("query", truncate(query, 80)),
		zap.String("agent", d.SelectedAgent.String()),
		zap.Float64("confidence", d.Confidence),
		zap.Bool("used_context", d.UsedContext),
	)
}

func normalizeScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	if score >= maxKeywordScore {
		return 1
	}
	return score / maxKeywordScore
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
