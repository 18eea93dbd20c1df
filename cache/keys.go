package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/BaSui01/expoflow/types"
)

// NormalizeQuery 归一化查询文本：小写、去标点、压缩空白。
// 归一化结果决定内容哈希，从而决定精确命中的等价类。
func NormalizeQuery(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// 标点不参与身份判定："¿cuántos expositores hay?" 与
			// "cuantos expositores hay" 仍是不同问题（重音保留）
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	return strings.TrimRight(b.String(), " ")
}

// ContentHash 计算归一化文本的内容哈希
func ContentHash(normalizedText string) string {
	sum := md5.Sum([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}

// keyBuilder 按 前缀 + 实体 + agent_tag + 纪元 构造 Redis 键。
// 纪元随每次 per-agent 失效递增，使在途 store 落入已死代际。
type keyBuilder struct {
	prefix string
}

func newKeyBuilder(prefix string) keyBuilder {
	if prefix == "" {
		prefix = "expoflow:"
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return keyBuilder{prefix: prefix}
}

// epochKey 纪元计数器键
func (k keyBuilder) epochKey(agent types.AgentTag) string {
	return fmt.Sprintf("%sepoch:%s", k.prefix, agent)
}

// entryKey 缓存条目键
func (k keyBuilder) entryKey(agent types.AgentTag, epoch int64, hash string) string {
	return fmt.Sprintf("%squery:%s:%d:%s", k.prefix, agent, epoch, hash)
}

// counterKey 命中计数器键，与条目同生命周期
func (k keyBuilder) counterKey(agent types.AgentTag, epoch int64, hash string) string {
	return fmt.Sprintf("%scounter:%s:%d:%s", k.prefix, agent, epoch, hash)
}

// entryPrefix 指定代际的条目扫描前缀
func (k keyBuilder) entryPrefix(agent types.AgentTag, epoch int64) string {
	return fmt.Sprintf("%squery:%s:%d:", k.prefix, agent, epoch)
}

// agentEntryPrefix 跨代际的条目扫描前缀（失效清理用）
func (k keyBuilder) agentEntryPrefix(agent types.AgentTag) string {
	return fmt.Sprintf("%squery:%s:", k.prefix, agent)
}

// agentCounterPrefix 跨代际的计数器扫描前缀
func (k keyBuilder) agentCounterPrefix(agent types.AgentTag) string {
	return fmt.Sprintf("%scounter:%s:", k.prefix, agent)
}

// allEntriesPrefix 全部条目的扫描前缀
func (k keyBuilder) allEntriesPrefix() string {
	return k.prefix + "query:"
}

// allCountersPrefix 全部计数器的扫描前缀
func (k keyBuilder) allCountersPrefix() string {
	return k.prefix + "counter:"
}
