package requestqueue

import (
	"context"
	"errors"
	"fmt"
	"github.com/panjf2000/ants/v2"
	"runtime/debug"
	"sopr-stats-sol/internal/pkg/logger"
	"sopr-stats-sol/internal/pkg/utils"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrQueueStopped  = errors.New("request queue stopped")
	ErrInvalidConfig = errors.New("invalid request queue config")
	ErrTaskPanic     = errors.New("request task panicked")
)

const (
	defaultDispatchInterval = 100 * time.Millisecond
	defaultDispatchWorkers  = 8
	initPendingCap          = 256
)

type Config struct {
	MaxRequests      int           // 每个窗口内最多发出的请求数
	Window           time.Duration // 窗口长度
	DispatchInterval time.Duration // 窗口内相邻两次发出的固定间隔，<0 表示不等待
	RequestTimeout   time.Duration // 单个任务超时，0 表示只受调用方 ctx 控制
	DispatchWorkers  int           // 执行任务的协程数
}

type request struct {
	ctx        context.Context
	task       Task
	future     *Future
	enqueuedAt time.Time
}

// RequestQueue 所有外部调用的唯一出口：FIFO 排队，按固定窗口配额发出
//
// count/windowStart 只在 drain 循环中修改；配额用尽时挂一个 AfterFunc 定时器，
// 到窗口重置时刻再继续，期间新提交的请求只入队不触发 drain。
type RequestQueue struct {
	cfg  Config
	pool *ants.Pool

	mu          sync.Mutex
	pending     []*request
	count       int
	windowStart time.Time
	draining    bool
	resumeTimer *time.Timer
	stopped     bool

	stopCh   chan struct{}
	stopOnce sync.Once

	lastErrLogTime atomic.Int64
}

func NewRequestQueue(cfg Config) (*RequestQueue, error) {
	if cfg.MaxRequests <= 0 {
		return nil, fmt.Errorf("%w: max_requests must be > 0, got %d", ErrInvalidConfig, cfg.MaxRequests)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("%w: window must be > 0, got %v", ErrInvalidConfig, cfg.Window)
	}
	if cfg.DispatchInterval == 0 {
		cfg.DispatchInterval = defaultDispatchInterval
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = defaultDispatchWorkers
	}

	// 阻塞池：worker 全忙时 drain 在 Submit 上等待
	pool, err := ants.NewPool(cfg.DispatchWorkers)
	if err != nil {
		return nil, fmt.Errorf("create dispatch pool: %w", err)
	}

	return &RequestQueue{
		cfg:     cfg,
		pool:    pool,
		pending: make([]*request, 0, initPendingCap),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start 供 go-zero ServiceGroup 使用，阻塞到 Stop
func (q *RequestQueue) Start() {
	logger.Infof("[RequestQueue] started: max_requests=%d, window=%v, interval=%v, workers=%d",
		q.cfg.MaxRequests, q.cfg.Window, q.cfg.DispatchInterval, q.cfg.DispatchWorkers)
	<-q.stopCh
}

// Stop 取消恢复定时器，拒绝所有未发出的请求
func (q *RequestQueue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		if q.resumeTimer != nil {
			q.resumeTimer.Stop()
			q.resumeTimer = nil
		}
		rejected := q.pending
		q.pending = nil
		q.mu.Unlock()

		close(q.stopCh)
		for _, req := range rejected {
			req.future.complete(nil, ErrQueueStopped)
		}
		pendingGauge.Sub(float64(len(rejected)))
		q.pool.Release()

		logger.Infof("[RequestQueue] stopped, rejected %d pending requests", len(rejected))
	})
}

// Submit 入队并在需要时启动 drain，不会阻塞
func (q *RequestQueue) Submit(ctx context.Context, task Task) *Future {
	f := newFuture()
	if ctx == nil {
		ctx = context.Background()
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		f.complete(nil, ErrQueueStopped)
		return f
	}
	q.pending = append(q.pending, &request{
		ctx:        ctx,
		task:       task,
		future:     f,
		enqueuedAt: time.Now(),
	})
	pendingGauge.Inc()

	// 等待恢复定时器期间不启动 drain
	start := !q.draining && q.resumeTimer == nil
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
	return f
}

// Len 当前排队的请求数
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Paused 是否正在等待窗口重置
func (q *RequestQueue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.resumeTimer != nil
}

func (q *RequestQueue) drain() {
	for {
		req, ok := q.next()
		if !ok {
			return
		}

		q.dispatch(req)

		if q.cfg.DispatchInterval > 0 {
			timer := time.NewTimer(q.cfg.DispatchInterval)
			select {
			case <-q.stopCh:
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}
}

// next 取出下一个可发出的请求并占用配额；返回 false 时 drain 退出
func (q *RequestQueue) next() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.stopped {
			q.draining = false
			return nil, false
		}

		now := time.Now()
		if now.Sub(q.windowStart) >= q.cfg.Window {
			q.count = 0
			q.windowStart = now
		}

		if len(q.pending) == 0 {
			q.draining = false
			return nil, false
		}

		if q.count >= q.cfg.MaxRequests {
			delay := q.windowStart.Add(q.cfg.Window).Sub(now)
			q.resumeTimer = time.AfterFunc(delay, q.resume)
			q.draining = false
			deferralsTotal.Inc()
			logger.Debugf("[RequestQueue] quota exhausted, %d pending, resume in %v", len(q.pending), delay)
			return nil, false
		}

		req := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		pendingGauge.Dec()

		// 调用方已放弃的请求直接完成，不占配额
		if err := req.ctx.Err(); err != nil {
			skippedTotal.Inc()
			req.future.complete(nil, err)
			continue
		}

		q.count++
		return req, true
	}
}

func (q *RequestQueue) resume() {
	q.mu.Lock()
	q.resumeTimer = nil
	if q.stopped || q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	q.drain()
}

func (q *RequestQueue) dispatch(req *request) {
	dispatchedTotal.Inc()
	waitSeconds.Observe(time.Since(req.enqueuedAt).Seconds())

	taskCtx, cancel := req.ctx, context.CancelFunc(func() {})
	if q.cfg.RequestTimeout > 0 {
		taskCtx, cancel = context.WithTimeout(req.ctx, q.cfg.RequestTimeout)
	}

	run := func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[RequestQueue] task panic: %v\n%s", r, debug.Stack())
				failuresTotal.Inc()
				req.future.complete(nil, fmt.Errorf("%w: %v", ErrTaskPanic, r))
			}
		}()

		v, err := req.task(taskCtx)
		if err != nil {
			failuresTotal.Inc()
		}
		req.future.complete(v, err)
	}

	if err := q.pool.Submit(run); err != nil {
		cancel()
		failuresTotal.Inc()
		if utils.ThrottleLog(&q.lastErrLogTime, 3*time.Second) {
			logger.Errorf("[RequestQueue] submit task failed: %v", err)
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			err = ErrQueueStopped
		}
		req.future.complete(nil, err)
	}
}

func errUnexpectedType(v any, want any) error {
	return fmt.Errorf("request queue: unexpected result type %T, want %T", v, want)
}
