// MockLLMProvider 的 LLM 提供者测试模拟实现。
//
// 支持固定回答、按序脚本响应与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/expoflow/llm"
)

// MockLLMProvider llm.Provider 的模拟实现
type MockLLMProvider struct {
	mu sync.Mutex

	// FixedAnswer 所有请求返回的固定回答（Responses 为空时使用）
	FixedAnswer string
	// Responses 按调用次序消费的脚本回答
	Responses []string
	// Err 非 nil 时每次调用返回该错误
	Err error

	calls    int
	requests []*llm.ChatRequest
}

// NewMockLLMProvider 创建固定回答的模拟提供者
func NewMockLLMProvider(answer string) *MockLLMProvider {
	return &MockLLMProvider{FixedAnswer: answer}
}

func (m *MockLLMProvider) Name() string { return "mock" }

// Chat 返回脚本回答或注入的错误，并记录请求
func (m *MockLLMProvider) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	idx := m.calls
	m.calls++

	if m.Err != nil {
		return nil, m.Err
	}

	content := m.FixedAnswer
	if idx < len(m.Responses) {
		content = m.Responses[idx]
	} else if content == "" && len(m.Responses) > 0 {
		return nil, errors.New("mock provider: script exhausted")
	}

	return &llm.ChatResponse{
		Provider: "mock",
		Model:    req.Model,
		Content:  content,
	}, nil
}

// Calls 返回已处理的请求次数
func (m *MockLLMProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest 返回最近一次请求，未调用过时为 nil
func (m *MockLLMProvider) LastRequest() *llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}
