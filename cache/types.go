package cache

import (
	"time"

	"github.com/BaSui01/expoflow/types"
)

// QueryRecord 查询记录，身份由 normalized_text 的内容哈希决定
type QueryRecord struct {
	RawText        string         `json:"raw_text"`
	NormalizedText string         `json:"normalized_text"`
	Embedding      []float64      `json:"embedding"`
	AgentTag       types.AgentTag `json:"agent_tag"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
	HitCount       int64          `json:"hit_count"`
}

// Entry 缓存条目，由语义缓存独占持有
type Entry struct {
	Record         QueryRecord       `json:"record"`
	Answer         string            `json:"answer"`
	SourceMetadata map[string]string `json:"source_metadata,omitempty"`
}

// Stats 缓存统计信息
type Stats struct {
	TotalEntries      int                      `json:"total_entries"`
	EntriesPerAgent   map[types.AgentTag]int   `json:"entries_per_agent"`
	AggregateHitCount int64                    `json:"aggregate_hit_count"`
	HitCountPerAgent  map[types.AgentTag]int64 `json:"hit_count_per_agent"`
}
