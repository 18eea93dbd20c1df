package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/api"
	"github.com/BaSui01/expoflow/cache"
	"github.com/BaSui01/expoflow/orchestrator"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 🧪 WSHandler 测试
// =============================================================================

func dialWS(t *testing.T, service QueryService) (*websocket.Conn, context.Context) {
	t.Helper()

	handler := NewWSHandler(service, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleChat))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	return conn, ctx
}

func readWS(t *testing.T, ctx context.Context, conn *websocket.Conn) api.WSOutgoing {
	t.Helper()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg api.WSOutgoing
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendWS(t *testing.T, ctx context.Context, conn *websocket.Conn, msg api.WSIncoming) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestWSHandler_ChatRoundTrip(t *testing.T) {
	service := &mockService{
		handleFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
			return &orchestrator.Result{
				SessionID:  "session_1_abc",
				Answer:     "El evento abre a las 9:00.",
				AgentTag:   types.AgentGeneral,
				Confidence: 0.7,
			}, nil
		},
	}

	conn, ctx := dialWS(t, service)

	welcome := readWS(t, ctx, conn)
	assert.Equal(t, api.WSTypeSystem, welcome.Type)

	sendWS(t, ctx, conn, api.WSIncoming{Type: api.WSTypeChat, Query: "¿a qué hora abre?"})

	reply := readWS(t, ctx, conn)
	require.Equal(t, api.WSTypeChat, reply.Type)
	require.NotNil(t, reply.Result)
	assert.Equal(t, "El evento abre a las 9:00.", reply.Result.Answer)
	assert.Equal(t, "general", reply.Result.Agent)
}

func TestWSHandler_SessionSticky(t *testing.T) {
	var gotSessionIDs []string
	service := &mockService{
		handleFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
			gotSessionIDs = append(gotSessionIDs, req.SessionID)
			return &orchestrator.Result{SessionID: "session_7_sticky", AgentTag: types.AgentGeneral}, nil
		},
	}

	conn, ctx := dialWS(t, service)
	readWS(t, ctx, conn) // welcome

	sendWS(t, ctx, conn, api.WSIncoming{Type: api.WSTypeChat, Query: "hola"})
	readWS(t, ctx, conn)
	sendWS(t, ctx, conn, api.WSIncoming{Type: api.WSTypeChat, Query: "¿y las dimensiones?"})
	readWS(t, ctx, conn)

	// 首条为空，第二条带上返回的会话 ID
	require.Len(t, gotSessionIDs, 2)
	assert.Empty(t, gotSessionIDs[0])
	assert.Equal(t, "session_7_sticky", gotSessionIDs[1])
}

func TestWSHandler_ErrorKeepsConnectionOpen(t *testing.T) {
	calls := 0
	service := &mockService{
		handleFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
			calls++
			if calls == 1 {
				return nil, types.NewError(types.ErrAgentTimeout, "agent timed out").WithRetryable(true)
			}
			return &orchestrator.Result{SessionID: "s", Answer: "ok", AgentTag: types.AgentGeneral}, nil
		},
	}

	conn, ctx := dialWS(t, service)
	readWS(t, ctx, conn) // welcome

	sendWS(t, ctx, conn, api.WSIncoming{Type: api.WSTypeChat, Query: "hola"})
	errMsg := readWS(t, ctx, conn)
	require.Equal(t, api.WSTypeError, errMsg.Type)
	assert.Equal(t, string(types.ErrAgentTimeout), errMsg.Code)
	assert.True(t, errMsg.Retryable)

	// 连接仍可用
	sendWS(t, ctx, conn, api.WSIncoming{Type: api.WSTypeChat, Query: "hola"})
	reply := readWS(t, ctx, conn)
	assert.Equal(t, api.WSTypeChat, reply.Type)
}

func TestWSHandler_EmptyQueryRejected(t *testing.T) {
	conn, ctx := dialWS(t, &mockService{})
	readWS(t, ctx, conn) // welcome

	sendWS(t, ctx, conn, api.WSIncoming{Type: api.WSTypeChat})
	errMsg := readWS(t, ctx, conn)
	assert.Equal(t, api.WSTypeError, errMsg.Type)
	assert.Equal(t, string(types.ErrInvalidRequest), errMsg.Code)
}

func TestWSHandler_StatsMessage(t *testing.T) {
	service := &mockService{
		statsFunc: func(ctx context.Context) (*cache.Stats, error) {
			return &cache.Stats{TotalEntries: 5}, nil
		},
	}

	conn, ctx := dialWS(t, service)
	readWS(t, ctx, conn) // welcome

	sendWS(t, ctx, conn, api.WSIncoming{Type: api.WSTypeStats})
	msg := readWS(t, ctx, conn)
	require.Equal(t, api.WSTypeStats, msg.Type)

	data, _ := json.Marshal(msg.Stats)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 5, stats.TotalEntries)
}

func TestWSHandler_UnsupportedType(t *testing.T) {
	conn, ctx := dialWS(t, &mockService{})
	readWS(t, ctx, conn) // welcome

	sendWS(t, ctx, conn, api.WSIncoming{Type: "broadcast"})
	errMsg := readWS(t, ctx, conn)
	assert.Equal(t, api.WSTypeError, errMsg.Type)
}
