// 包 agents 提供按文档域划分的专业问答 Agent。
//
// 每个 Agent 绑定一个 agent_tag（general/exhibitors/visitors，可扩展），
// 基于检索到的文档片段与会话上下文调用 LLM 生成回答。
// Registry 按 tag 注册与查找 Agent，新增域无需改动调用方。
package agents

import (
	"context"

	"github.com/BaSui01/expoflow/types"
)

// Answer Agent 的回答结果
type Answer struct {
	Text       string   `json:"text"`
	Sources    []string `json:"sources,omitempty"`
	Confidence float64  `json:"confidence"`
}

// Document 检索到的文档片段
type Document struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score,omitempty"`
}

// Retriever 文档检索接口（外部协作者：向量索引/文档库）
type Retriever interface {
	Retrieve(ctx context.Context, query string, limit int) ([]Document, error)
}

// Agent 专业问答 Agent。
// 失败以 AGENT_INVOCATION_FAILED / AGENT_TIMEOUT 上报，
// 编排器不做静默换 agent 重试。
type Agent interface {
	Tag() types.AgentTag
	Answer(ctx context.Context, queryText string, sessionContext []types.Turn) (*Answer, error)
}
