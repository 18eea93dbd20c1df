package mocks

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/BaSui01/expoflow/embedding"
)

// MockEmbedder embedding.Provider 的确定性模拟实现。
// 文本经 FNV-1a 哈希映射到 one-hot 向量：同问同向量（余弦 1.0），
// 异桶问句正交（余弦 0.0），阈值测试不受随机性干扰。
type MockEmbedder struct {
	mu sync.Mutex

	// Dim 向量维度，0 时取 32
	Dim int
	// Err 非 nil 时每次调用返回该错误
	Err error

	calls int
}

// NewMockEmbedder 创建 32 维 one-hot 模拟嵌入器
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{Dim: 32}
}

func (m *MockEmbedder) Name() string { return "mock" }

func (m *MockEmbedder) Dimensions() int {
	if m.Dim <= 0 {
		return 32
	}
	return m.Dim
}

func (m *MockEmbedder) MaxBatchSize() int { return 64 }

// EmbedQuery 返回文本哈希桶对应的 one-hot 向量
func (m *MockEmbedder) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	m.mu.Lock()
	m.calls++
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return m.oneHot(query), nil
}

// EmbedDocuments 逐条生成 one-hot 向量
func (m *MockEmbedder) EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error) {
	vectors := make([][]float64, len(documents))
	for i, doc := range documents {
		v, err := m.EmbedQuery(ctx, doc)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// Calls 返回嵌入调用次数（含出错调用）
func (m *MockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockEmbedder) oneHot(text string) []float64 {
	h := fnv.New32a()
	h.Write([]byte(text))
	v := make([]float64, m.Dimensions())
	v[int(h.Sum32())%len(v)] = 1
	return v
}

var _ embedding.Provider = (*MockEmbedder)(nil)
