package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	err := NewError(ErrAgentTimeout, "agent did not answer in time")
	assert.Equal(t, "[AGENT_TIMEOUT] agent did not answer in time", err.Error())

	cause := fmt.Errorf("dial tcp: i/o timeout")
	err = err.WithCause(cause)
	assert.Contains(t, err.Error(), "i/o timeout")
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestError_Builders(t *testing.T) {
	err := NewError(ErrCacheUnavailable, "redis unreachable").
		WithRetryable(true).
		WithHTTPStatus(503).
		WithComponent("semantic_cache")

	assert.True(t, err.Retryable)
	assert.Equal(t, 503, err.HTTPStatus)
	assert.Equal(t, "semantic_cache", err.Component)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewError(ErrAgentTimeout, "timeout").WithRetryable(true)))
	assert.False(t, IsRetryable(NewError(ErrInvalidAgentTag, "bad tag")))
	assert.False(t, IsRetryable(errors.New("plain error")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrSessionConflict, GetErrorCode(NewError(ErrSessionConflict, "conflict")))
	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
}

func TestIsDegradable(t *testing.T) {
	assert.True(t, IsDegradable(NewError(ErrEmbeddingUnavailable, "down")))
	assert.True(t, IsDegradable(NewError(ErrCacheUnavailable, "down")))
	assert.False(t, IsDegradable(NewError(ErrAgentInvocationFailed, "failed")))
	assert.False(t, IsDegradable(errors.New("plain")))
}

func TestAgentTag(t *testing.T) {
	assert.True(t, AgentExhibitors.IsValid())
	assert.False(t, AgentTag("").IsValid())
	assert.Len(t, KnownAgentTags(), 3)
}
