package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/llm"
	"github.com/BaSui01/expoflow/types"
)

// 每次回答纳入提示的最大检索片段数
const maxContextDocs = 3

// 默认回答置信度：LLM 路径没有独立的校准信号，
// 以检索片段数量粗略分档
const (
	confidenceWithSources = 0.85
	confidenceNoSources   = 0.6
)

// LLMAgent 基于检索增强 LLM 的通用 Agent 实现。
// 每个实例绑定一个 tag 与该域的系统提示词。
type LLMAgent struct {
	tag          types.AgentTag
	systemPrompt string
	provider     llm.Provider
	retriever    Retriever
	timeout      time.Duration
	logger       *zap.Logger
}

// LLMAgentConfig LLM Agent 配置
type LLMAgentConfig struct {
	Tag          types.AgentTag
	SystemPrompt string
	Timeout      time.Duration
}

// NewLLMAgent 创建 LLM Agent
func NewLLMAgent(cfg LLMAgentConfig, provider llm.Provider, retriever Retriever, logger *zap.Logger) *LLMAgent {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAgent{
		tag:          cfg.Tag,
		systemPrompt: cfg.SystemPrompt,
		provider:     provider,
		retriever:    retriever,
		timeout:      cfg.Timeout,
		logger: logger.With(
			zap.String("component", "agent"),
			zap.String("agent", cfg.Tag.String()),
		),
	}
}

// Tag 返回 agent_tag
func (a *LLMAgent) Tag() types.AgentTag { return a.tag }

// Answer 生成回答：检索文档片段 → 构造提示 → 调用 LLM。
// 检索失败不阻断回答（无片段继续），LLM 失败上报为
// AGENT_INVOCATION_FAILED / AGENT_TIMEOUT。
func (a *LLMAgent) Answer(ctx context.Context, queryText string, sessionContext []types.Turn) (*Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var docs []Document
	if a.retriever != nil {
		var err error
		docs, err = a.retriever.Retrieve(ctx, queryText, maxContextDocs)
		if err != nil {
			a.logger.Warn("retrieval failed, answering without documents", zap.Error(err))
			docs = nil
		}
	}

	messages := a.buildMessages(queryText, sessionContext, docs)

	resp, err := a.provider.Chat(ctx, &llm.ChatRequest{Messages: messages})
	if err != nil {
		return nil, a.mapProviderError(ctx, err)
	}

	sources := make([]string, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, doc.Source)
	}

	confidence := confidenceNoSources
	if len(sources) > 0 {
		confidence = confidenceWithSources
	}

	return &Answer{
		Text:       resp.Content,
		Sources:    sources,
		Confidence: confidence,
	}, nil
}

// buildMessages 构造 LLM 消息：系统提示 + 近期会话 + 带片段的用户提示
func (a *LLMAgent) buildMessages(queryText string, sessionContext []types.Turn, docs []Document) []llm.Message {
	messages := make([]llm.Message, 0, len(sessionContext)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.systemPrompt})

	for _, turn := range sessionContext {
		role := llm.RoleUser
		if turn.Role == types.RoleAgent {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: a.buildPrompt(queryText, docs)})
	return messages
}

// buildPrompt 构造带检索片段的用户提示
func (a *LLMAgent) buildPrompt(queryText string, docs []Document) string {
	if len(docs) == 0 {
		return queryText
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Consulta del usuario: %s\n\nInformación disponible del sistema:\n", queryText)
	for i, doc := range docs {
		if i >= maxContextDocs {
			break
		}
		fmt.Fprintf(&b, "\nFuente %d: %s\nContenido: %s\n", i+1, doc.Source, doc.Content)
	}
	b.WriteString("\nProporciona una respuesta completa y útil:")
	return b.String()
}

// mapProviderError 将 LLM 层错误映射为 agent 层错误
func (a *LLMAgent) mapProviderError(ctx context.Context, err error) error {
	code := types.GetErrorCode(err)
	if code == types.ErrAgentTimeout || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewError(types.ErrAgentTimeout, "agent invocation timed out").
			WithRetryable(true).
			WithComponent(a.tag.String()).
			WithCause(err)
	}
	return types.NewError(types.ErrAgentInvocationFailed, "agent invocation failed").
		WithRetryable(types.IsRetryable(err)).
		WithComponent(a.tag.String()).
		WithCause(err)
}
