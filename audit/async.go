package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/expoflow/types"
)

// =============================================================================
// 📮 异步落盘队列
// =============================================================================

// 单条记录写库超时
const saveTimeout = 5 * time.Second

// AsyncRecorder 把回合记录排队后台写入 Store。
// 队列满时丢弃并计数，绝不阻塞请求路径。
type AsyncRecorder struct {
	store   Store
	queue   chan *TurnRecord
	logger  *zap.Logger
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
}

// NewAsyncRecorder 创建异步落盘器并启动后台 worker
func NewAsyncRecorder(store Store, queueSize int, logger *zap.Logger) *AsyncRecorder {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &AsyncRecorder{
		store:  store,
		queue:  make(chan *TurnRecord, queueSize),
		logger: logger.With(zap.String("component", "audit_recorder")),
	}

	r.wg.Add(1)
	go r.worker()

	return r
}

// Record 入队一条回合记录，队列满时丢弃
func (r *AsyncRecorder) Record(sessionID string, turn types.Turn) {
	select {
	case r.queue <- RecordFromTurn(sessionID, turn):
	default:
		n := r.dropped.Add(1)
		r.logger.Warn("audit queue full, turn dropped",
			zap.String("session_id", sessionID),
			zap.Int64("dropped_total", n),
		)
	}
}

// Dropped 返回累计丢弃条数
func (r *AsyncRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// Close 停止接收新记录，排空队列后关闭后端
func (r *AsyncRecorder) Close() error {
	r.once.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
	return r.store.Close()
}

// worker 消费队列逐条写库
func (r *AsyncRecorder) worker() {
	defer r.wg.Done()

	for record := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := r.store.SaveTurn(ctx, record); err != nil {
			r.logger.Warn("failed to persist turn",
				zap.String("session_id", record.SessionID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
