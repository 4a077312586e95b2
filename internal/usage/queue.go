package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrQueueClosed = errors.New("usage queue closed")

// Task is a unit of background accounting work. Run receives a context that
// is independent of the request that produced the task.
type Task struct {
	Name      string
	RequestID string
	Run       func(ctx context.Context) error
}

// Queue runs accounting tasks on a fixed pool of workers. Enqueue never
// blocks: when the buffer is full the task runs on a tracked overflow
// goroutine instead of being dropped. Close waits for every accepted task.
type Queue struct {
	tasks       chan Task
	logger      *zap.Logger
	taskTimeout time.Duration
	onResult    func(task Task, err error)

	mu       sync.RWMutex
	closed   bool
	workers  sync.WaitGroup
	overflow sync.WaitGroup
}

type QueueOption func(*Queue)

// WithTaskTimeout bounds each task run. Default 10s.
func WithTaskTimeout(d time.Duration) QueueOption {
	return func(q *Queue) { q.taskTimeout = d }
}

// WithResultHook is called after each task finishes, with its error or nil.
func WithResultHook(fn func(task Task, err error)) QueueOption {
	return func(q *Queue) { q.onResult = fn }
}

func NewQueue(workers, size int, logger *zap.Logger, opts ...QueueOption) *Queue {
	if workers <= 0 {
		workers = 1
	}
	if size < 0 {
		size = 0
	}
	q := &Queue{
		tasks:       make(chan Task, size),
		logger:      logger,
		taskTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(q)
	}

	q.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

func (q *Queue) Enqueue(task Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
	default:
		q.overflow.Add(1)
		go func() {
			defer q.overflow.Done()
			q.run(task)
		}()
	}
	return nil
}

// Close stops accepting tasks and waits until every accepted task has run
// or ctx is done.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.workers.Wait()
		q.overflow.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) worker() {
	defer q.workers.Done()
	for task := range q.tasks {
		q.run(task)
	}
}

func (q *Queue) run(task Task) {
	ctx, cancel := context.WithTimeout(context.Background(), q.taskTimeout)
	defer cancel()

	err := q.safeRun(ctx, task)
	if err != nil {
		q.logger.Error("usage task failed",
			zap.String("task", task.Name),
			zap.String("request_id", task.RequestID),
			zap.Error(err),
		)
	}
	if q.onResult != nil {
		q.onResult(task, err)
	}
}

func (q *Queue) safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("usage task panicked")
			q.logger.Error("usage task panic", zap.String("task", task.Name), zap.Any("panic", r))
		}
	}()
	return task.Run(ctx)
}
