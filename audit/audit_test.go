package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appconfig "github.com/BaSui01/expoflow/config"
	"github.com/BaSui01/expoflow/internal/database"
	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 🧪 落盘测试（sqlite 内存库）
// =============================================================================

func setupGormStore(t *testing.T) *GormStore {
	pool, err := database.Open(appconfig.DatabaseConfig{
		Driver:       "sqlite",
		Name:         ":memory:",
		MaxOpenConns: 1,
	}, zap.NewNop())
	require.NoError(t, err)

	store, err := NewGormStore(pool, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestGormStore_SaveAndRecent(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, text := range []string{"¿horario?", "Abre a las 9:00", "¿y el parking?"} {
		turn := types.NewUserTurn(text)
		turn.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.SaveTurn(ctx, RecordFromTurn("session_1_abc", turn)))
	}

	// 其他会话的记录不串场
	other := types.NewUserTurn("otra consulta")
	require.NoError(t, store.SaveTurn(ctx, RecordFromTurn("session_2_xyz", other)))

	records, err := store.RecentBySession(ctx, "session_1_abc", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "¿y el parking?", records[0].Text)
	assert.Equal(t, "Abre a las 9:00", records[1].Text)
}

func TestGormStore_AgentTurnFields(t *testing.T) {
	store := setupGormStore(t)
	ctx := context.Background()

	turn := types.NewAgentTurn("Hay 120 expositores.", types.AgentExhibitors, 0.85, true)
	require.NoError(t, store.SaveTurn(ctx, RecordFromTurn("session_3_fff", turn)))

	records, err := store.RecentBySession(ctx, "session_3_fff", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "agent", records[0].Role)
	assert.Equal(t, "exhibitors", records[0].AgentTag)
	assert.Equal(t, 0.85, records[0].Confidence)
	assert.True(t, records[0].Cached)
	assert.False(t, records[0].Failed)
}

func TestGormStore_RecentEmptySession(t *testing.T) {
	store := setupGormStore(t)

	records, err := store.RecentBySession(context.Background(), "session_missing", 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

// =============================================================================
// 🧪 AsyncRecorder 测试
// =============================================================================

// memStore 内存 Store，带保存计数
type memStore struct {
	mu      sync.Mutex
	records []*TurnRecord
	saveErr error
	closed  bool
}

func (s *memStore) SaveTurn(ctx context.Context, record *TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) RecentBySession(ctx context.Context, sessionID string, limit int) ([]TurnRecord, error) {
	return nil, nil
}

func (s *memStore) Ping(ctx context.Context) error { return nil }

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestAsyncRecorder_FlushOnClose(t *testing.T) {
	store := &memStore{}
	recorder := NewAsyncRecorder(store, 64, zap.NewNop())

	for i := 0; i < 10; i++ {
		recorder.Record("session_1_abc", types.NewUserTurn("pregunta"))
	}

	require.NoError(t, recorder.Close())
	assert.Equal(t, 10, store.count())
	assert.True(t, store.closed)
	assert.Zero(t, recorder.Dropped())
}

func TestAsyncRecorder_SaveErrorDoesNotStopWorker(t *testing.T) {
	store := &memStore{saveErr: assert.AnError}
	recorder := NewAsyncRecorder(store, 8, zap.NewNop())

	recorder.Record("session_1_abc", types.NewUserTurn("pregunta"))
	recorder.Record("session_1_abc", types.NewUserTurn("otra"))

	require.NoError(t, recorder.Close())
	assert.Zero(t, store.count())
}

func TestRecordFromTurn(t *testing.T) {
	turn := types.NewAgentTurn("respuesta", types.AgentVisitors, 0.6, false)
	turn.Failed = true

	record := RecordFromTurn("session_9_zzz", turn)
	assert.Equal(t, "session_9_zzz", record.SessionID)
	assert.Equal(t, "agent", record.Role)
	assert.Equal(t, "visitors", record.AgentTag)
	assert.True(t, record.Failed)
	assert.Equal(t, turn.Timestamp, record.CreatedAt)
}
