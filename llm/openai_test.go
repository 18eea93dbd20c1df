package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/expoflow/types"
)

func TestOpenAIProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "gpt-4o-mini", req.Model)
		require.Len(t, req.Messages, 2)

		json.NewEncoder(w).Encode(openAIChatResponse{
			ID:    "chatcmpl-123",
			Model: req.Model,
			Choices: []struct {
				Index        int     `json:"index"`
				FinishReason string  `json:"finish_reason"`
				Message      Message `json:"message"`
			}{
				{Message: Message{Role: RoleAssistant, Content: "Hay 120 expositores confirmados."}},
			},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	resp, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "Eres el asistente del evento."},
			{Role: RoleUser, Content: "¿Cuántos expositores hay?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hay 120 expositores confirmados.", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
}

func TestOpenAIProvider_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hola"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrRateLimited, types.GetErrorCode(err))
	assert.True(t, types.IsRetryable(err))
}

func TestOpenAIProvider_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Chat(ctx, &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hola"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentTimeout, types.GetErrorCode(err))
}

func TestOpenAIProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIChatResponse{ID: "empty"})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL})

	_, err := p.Chat(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hola"}},
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestMapChatHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		wantCode  types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, types.ErrUnauthorized, false},
		{http.StatusForbidden, types.ErrForbidden, false},
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusGatewayTimeout, types.ErrTimeout, true},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := mapChatHTTPError(tt.status, "boom", "openai")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
		})
	}
}

func TestNewTokenCounter_EncodingResolution(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTokenCounter("gpt-4o-mini").Name())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTokenCounter("gpt-4").Name())
	// 前缀匹配
	assert.Equal(t, "tiktoken[o200k_base]", NewTokenCounter("gpt-4o-2024-08-06").Name())
	// 未知模型回退
	assert.Equal(t, "tiktoken[cl100k_base]", NewTokenCounter("unknown-model").Name())
}
