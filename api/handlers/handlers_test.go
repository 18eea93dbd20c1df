package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/api"
	"github.com/BaSui01/expoflow/cache"
	"github.com/BaSui01/expoflow/orchestrator"
	"github.com/BaSui01/expoflow/session"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 🧪 模拟服务
// =============================================================================

type mockService struct {
	handleFunc     func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	statsFunc      func(ctx context.Context) (*cache.Stats, error)
	clearFunc      func(ctx context.Context) error
	invalidateFunc func(ctx context.Context, tag types.AgentTag) error
	refreshFunc    func(ctx context.Context, tag types.AgentTag) error
	cleanupFunc    func(ctx context.Context) (int, error)
	healthFunc     func(ctx context.Context) *orchestrator.HealthStatus
}

func (m *mockService) Handle(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
	if m.handleFunc != nil {
		return m.handleFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockService) CacheStats(ctx context.Context) (*cache.Stats, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx)
	}
	return &cache.Stats{}, nil
}

func (m *mockService) ClearCache(ctx context.Context) error {
	if m.clearFunc != nil {
		return m.clearFunc(ctx)
	}
	return nil
}

func (m *mockService) InvalidateAgent(ctx context.Context, tag types.AgentTag) error {
	if m.invalidateFunc != nil {
		return m.invalidateFunc(ctx, tag)
	}
	return nil
}

func (m *mockService) RefreshAgent(ctx context.Context, tag types.AgentTag) error {
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, tag)
	}
	return nil
}

func (m *mockService) CleanupSessions(ctx context.Context) (int, error) {
	if m.cleanupFunc != nil {
		return m.cleanupFunc(ctx)
	}
	return 0, nil
}

func (m *mockService) AvailableAgents() []orchestrator.AgentInfo {
	return []orchestrator.AgentInfo{
		{Tag: types.AgentGeneral, Description: "Información general del evento"},
		{Tag: types.AgentExhibitors, Description: "Expositores"},
	}
}

func (m *mockService) HealthCheck(ctx context.Context) *orchestrator.HealthStatus {
	if m.healthFunc != nil {
		return m.healthFunc(ctx)
	}
	return &orchestrator.HealthStatus{Status: "ok", Components: map[string]string{"redis": "ok"}}
}

type mockSessions struct {
	getOrCreateFunc func(ctx context.Context, sessionID string) (*session.Session, error)
	recentFunc      func(ctx context.Context, sessionID string, maxTurns int) ([]types.Turn, error)
	closeFunc       func(ctx context.Context, sessionID string) error
}

func (m *mockSessions) GetOrCreate(ctx context.Context, sessionID string) (*session.Session, error) {
	if m.getOrCreateFunc != nil {
		return m.getOrCreateFunc(ctx, sessionID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockSessions) RecentContext(ctx context.Context, sessionID string, maxTurns int) ([]types.Turn, error) {
	if m.recentFunc != nil {
		return m.recentFunc(ctx, sessionID, maxTurns)
	}
	return nil, nil
}

func (m *mockSessions) Close(ctx context.Context, sessionID string) error {
	if m.closeFunc != nil {
		return m.closeFunc(ctx, sessionID)
	}
	return nil
}

func postJSON(t *testing.T, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

// =============================================================================
// 🧪 QueryHandler 测试
// =============================================================================

func TestQueryHandler_HandleQuery(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name           string
		request        api.QueryRequest
		handleFunc     func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
		expectedStatus int
		checkResponse  func(*testing.T, Response)
	}{
		{
			name: "successful query",
			request: api.QueryRequest{
				SessionID: "session_1_abc",
				Query:     "¿Cuántos expositores hay?",
			},
			handleFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
				assert.Equal(t, "session_1_abc", req.SessionID)
				assert.False(t, req.SkipCache)
				return &orchestrator.Result{
					SessionID:      req.SessionID,
					Answer:         "Hay 120 expositores confirmados.",
					AgentTag:       types.AgentExhibitors,
					Confidence:     0.83,
					Sources:        []string{"exhibitors.csv"},
					ProcessingTime: 150 * time.Millisecond,
				}, nil
			},
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, resp Response) {
				require.True(t, resp.Success)
				data, _ := json.Marshal(resp.Data)
				var qr api.QueryResponse
				require.NoError(t, json.Unmarshal(data, &qr))
				assert.Equal(t, "exhibitors", qr.Agent)
				assert.Equal(t, "Hay 120 expositores confirmados.", qr.Answer)
				assert.InDelta(t, 0.15, qr.ProcessingTime, 0.001)
			},
		},
		{
			name: "use_cache false maps to skip",
			request: api.QueryRequest{
				Query:    "hola",
				UseCache: boolPtr(false),
			},
			handleFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
				assert.True(t, req.SkipCache)
				return &orchestrator.Result{SessionID: "s", AgentTag: types.AgentGeneral}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "missing query",
			request:        api.QueryRequest{SessionID: "s"},
			expectedStatus: http.StatusBadRequest,
			checkResponse: func(t *testing.T, resp Response) {
				require.NotNil(t, resp.Error)
				assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)
			},
		},
		{
			name:    "agent invocation failure maps to 502",
			request: api.QueryRequest{Query: "hola"},
			handleFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
				return nil, types.NewError(types.ErrAgentInvocationFailed, "agent exploded").WithRetryable(true)
			},
			expectedStatus: http.StatusBadGateway,
			checkResponse: func(t *testing.T, resp Response) {
				require.NotNil(t, resp.Error)
				assert.Equal(t, string(types.ErrAgentInvocationFailed), resp.Error.Code)
				assert.True(t, resp.Error.Retryable)
			},
		},
		{
			name:    "unknown override maps to 400",
			request: api.QueryRequest{Query: "hola", AgentType: "marketing"},
			handleFunc: func(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error) {
				return nil, types.NewError(types.ErrInvalidAgentTag, "unknown agent: marketing")
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewQueryHandler(&mockService{handleFunc: tt.handleFunc}, logger)

			rec := httptest.NewRecorder()
			handler.HandleQuery(rec, postJSON(t, tt.request))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.checkResponse != nil {
				tt.checkResponse(t, decodeResponse(t, rec))
			}
		})
	}
}

func TestQueryHandler_HandleQuery_RejectsWrongContentType(t *testing.T) {
	handler := NewQueryHandler(&mockService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("query=hola")))
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	handler.HandleQuery(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
}

func TestQueryHandler_HandleQuery_RejectsUnknownFields(t *testing.T) {
	handler := NewQueryHandler(&mockService{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{"query":"hola","bogus":1}`)))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.HandleQuery(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryHandler_HandleAgents(t *testing.T) {
	handler := NewQueryHandler(&mockService{}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleAgents(rec, httptest.NewRequest(http.MethodGet, "/api/agents", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var list api.AgentListResponse
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list.Agents, 2)
	assert.Equal(t, "general", list.Agents[0].Tag)
}

// =============================================================================
// 🧪 SessionHandler 测试
// =============================================================================

func TestSessionHandler_HandleCreate(t *testing.T) {
	sessions := &mockSessions{
		getOrCreateFunc: func(ctx context.Context, sessionID string) (*session.Session, error) {
			assert.Empty(t, sessionID)
			return session.NewSession("session_99_deadbeef"), nil
		},
	}
	handler := NewSessionHandler(sessions, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var sr api.SessionResponse
	require.NoError(t, json.Unmarshal(data, &sr))
	assert.Equal(t, "session_99_deadbeef", sr.SessionID)
	assert.Equal(t, "ACTIVE", sr.State)
	assert.Zero(t, sr.TurnCount)
}

func TestSessionHandler_HandleCreate_StoreDown(t *testing.T) {
	sessions := &mockSessions{
		getOrCreateFunc: func(ctx context.Context, sessionID string) (*session.Session, error) {
			return nil, errors.New("redis down")
		},
	}
	handler := NewSessionHandler(sessions, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleCreate(rec, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionHandler_HandleHistory(t *testing.T) {
	turns := []types.Turn{
		types.NewUserTurn("hola"),
		types.NewAgentTurn("Bienvenido al evento.", types.AgentGeneral, 0.9, false),
	}
	sessions := &mockSessions{
		recentFunc: func(ctx context.Context, sessionID string, maxTurns int) ([]types.Turn, error) {
			assert.Equal(t, "session_1_abc", sessionID)
			assert.Zero(t, maxTurns)
			return turns, nil
		},
	}
	handler := NewSessionHandler(sessions, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/session_1_abc/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var hr api.SessionHistoryResponse
	require.NoError(t, json.Unmarshal(data, &hr))
	assert.Equal(t, "session_1_abc", hr.SessionID)
	assert.Len(t, hr.Turns, 2)
}

func TestSessionHandler_HandleHistory_UnknownSessionIsEmpty(t *testing.T) {
	// 不存在/已关闭的会话返回空历史而不是 404
	handler := NewSessionHandler(&mockSessions{}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleHistory(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/nope/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var hr api.SessionHistoryResponse
	require.NoError(t, json.Unmarshal(data, &hr))
	assert.NotNil(t, hr.Turns)
	assert.Empty(t, hr.Turns)
}

func TestSessionHandler_HandleClose(t *testing.T) {
	var closed string
	sessions := &mockSessions{
		closeFunc: func(ctx context.Context, sessionID string) error {
			closed = sessionID
			return nil
		},
	}
	handler := NewSessionHandler(sessions, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleClose(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/session_1_abc/close", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "session_1_abc", closed)
}

func TestSessionHandler_HandleClose_SaveConflict(t *testing.T) {
	sessions := &mockSessions{
		closeFunc: func(ctx context.Context, sessionID string) error {
			return types.NewError(types.ErrSessionConflict, "version conflict")
		},
	}
	handler := NewSessionHandler(sessions, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleClose(rec, httptest.NewRequest(http.MethodPost, "/api/sessions/session_1_abc/close", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// =============================================================================
// 🧪 AdminHandler 测试
// =============================================================================

func TestAdminHandler_HandleCacheStats(t *testing.T) {
	service := &mockService{
		statsFunc: func(ctx context.Context) (*cache.Stats, error) {
			return &cache.Stats{
				TotalEntries:      7,
				AggregateHitCount: 42,
				EntriesPerAgent:   map[types.AgentTag]int{types.AgentExhibitors: 7},
			}, nil
		},
	}
	handler := NewAdminHandler(service, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleCacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/admin/cache/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var stats cache.Stats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 7, stats.TotalEntries)
	assert.EqualValues(t, 42, stats.AggregateHitCount)
}

func TestAdminHandler_HandleInvalidate(t *testing.T) {
	var invalidated types.AgentTag
	service := &mockService{
		invalidateFunc: func(ctx context.Context, tag types.AgentTag) error {
			invalidated = tag
			return nil
		},
	}
	handler := NewAdminHandler(service, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleInvalidate(rec, postJSON(t, api.InvalidateRequest{Agent: "exhibitors"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.AgentExhibitors, invalidated)
}

func TestAdminHandler_HandleInvalidate_UnknownAgent(t *testing.T) {
	service := &mockService{
		invalidateFunc: func(ctx context.Context, tag types.AgentTag) error {
			return types.NewError(types.ErrInvalidAgentTag, "unknown agent: marketing")
		},
	}
	handler := NewAdminHandler(service, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleInvalidate(rec, postJSON(t, api.InvalidateRequest{Agent: "marketing"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_HandleInvalidate_MissingAgent(t *testing.T) {
	handler := NewAdminHandler(&mockService{}, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleInvalidate(rec, postJSON(t, api.InvalidateRequest{}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_HandleRefresh(t *testing.T) {
	var refreshed types.AgentTag
	service := &mockService{
		refreshFunc: func(ctx context.Context, tag types.AgentTag) error {
			refreshed = tag
			return nil
		},
	}
	handler := NewAdminHandler(service, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleRefresh(rec, postJSON(t, api.InvalidateRequest{Agent: "visitors"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.AgentVisitors, refreshed)
}

func TestAdminHandler_HandleRefresh_RetrieverDown(t *testing.T) {
	service := &mockService{
		refreshFunc: func(ctx context.Context, tag types.AgentTag) error {
			return types.NewError(types.ErrServiceUnavailable, "agent data refresh failed").WithRetryable(true)
		},
	}
	handler := NewAdminHandler(service, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleRefresh(rec, postJSON(t, api.InvalidateRequest{Agent: "visitors"}))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Error)
	assert.True(t, resp.Error.Retryable)
}

func TestAdminHandler_HandleCleanupSessions(t *testing.T) {
	service := &mockService{
		cleanupFunc: func(ctx context.Context) (int, error) {
			return 3, nil
		},
	}
	handler := NewAdminHandler(service, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.HandleCleanupSessions(rec, httptest.NewRequest(http.MethodPost, "/api/admin/sessions/cleanup", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var cr api.CleanupResponse
	require.NoError(t, json.Unmarshal(data, &cr))
	assert.Equal(t, 3, cr.ClosedSessions)
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	tests := []struct {
		name   string
		status *orchestrator.HealthStatus
	}{
		{
			name:   "all ok",
			status: &orchestrator.HealthStatus{Status: "ok", Components: map[string]string{"redis": "ok"}},
		},
		{
			name: "degraded still returns 200",
			status: &orchestrator.HealthStatus{
				Status:     "degraded",
				Components: map[string]string{"redis": "unavailable: connection refused"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &mockService{
				healthFunc: func(ctx context.Context) *orchestrator.HealthStatus { return tt.status },
			}
			handler := NewHealthHandler(service, zap.NewNop())

			rec := httptest.NewRecorder()
			handler.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			resp := decodeResponse(t, rec)
			data, _ := json.Marshal(resp.Data)
			var hs orchestrator.HealthStatus
			require.NoError(t, json.Unmarshal(data, &hs))
			assert.Equal(t, tt.status.Status, hs.Status)
		})
	}
}

func boolPtr(b bool) *bool { return &b }
