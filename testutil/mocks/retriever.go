package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/expoflow/agents"
)

// MockRetriever agents.Retriever 的模拟实现，可选支持刷新计数
type MockRetriever struct {
	mu sync.Mutex

	// Documents 每次检索返回的文档片段
	Documents []agents.Document
	// RetrieveErr 非 nil 时检索返回该错误
	RetrieveErr error
	// RefreshErr 非 nil 时刷新返回该错误
	RefreshErr error

	retrieveCalls int
	refreshCalls  int
}

// NewMockRetriever 创建返回固定文档的模拟检索器
func NewMockRetriever(docs ...agents.Document) *MockRetriever {
	return &MockRetriever{Documents: docs}
}

// Retrieve 返回脚本文档或注入的错误
func (m *MockRetriever) Retrieve(ctx context.Context, query string, limit int) ([]agents.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.retrieveCalls++
	if m.RetrieveErr != nil {
		return nil, m.RetrieveErr
	}
	if limit > 0 && limit < len(m.Documents) {
		return m.Documents[:limit], nil
	}
	return m.Documents, nil
}

// Refresh 模拟数据快照重载
func (m *MockRetriever) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.refreshCalls++
	return m.RefreshErr
}

// RetrieveCalls 返回检索调用次数
func (m *MockRetriever) RetrieveCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retrieveCalls
}

// RefreshCalls 返回刷新调用次数
func (m *MockRetriever) RefreshCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls
}
