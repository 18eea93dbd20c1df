package embedding

import (
	"context"
	"time"
)

// Provider generates vector embeddings for query text.
//
// Implementations must be safe for concurrent use. Failures are reported
// as *types.Error with code EMBEDDING_UNAVAILABLE so callers can degrade
// to a cache miss instead of failing the request.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Dimensions returns the embedding vector size.
	Dimensions() int

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, query string) ([]float64, error)

	// EmbedDocuments embeds multiple documents in one batch.
	EmbedDocuments(ctx context.Context, documents []string) ([][]float64, error)
}

// InputType distinguishes query embeddings from document embeddings for
// providers that optimize per usage.
type InputType string

const (
	InputTypeQuery    InputType = "query"
	InputTypeDocument InputType = "document"
)

// Request is a provider-level embedding request.
type Request struct {
	Input      []string  `json:"input"`
	InputType  InputType `json:"input_type,omitempty"`
	Model      string    `json:"model,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
}

// Data is a single embedding result.
type Data struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// Usage reports token consumption for an embedding call.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is a provider-level embedding response.
type Response struct {
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Embeddings []Data    `json:"embeddings"`
	Usage      Usage     `json:"usage"`
	CreatedAt  time.Time `json:"created_at"`
}
