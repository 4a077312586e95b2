package usage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestQueue_RunsEveryTaskBeforeClose(t *testing.T) {
	q := NewQueue(2, 4, zap.NewNop())

	var ran atomic.Int32
	for i := 0; i < 100; i++ {
		err := q.Enqueue(Task{Name: "count", Run: func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}})
		if err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if ran.Load() != 100 {
		t.Errorf("Expected 100 tasks to run, got %d", ran.Load())
	}
}

func TestQueue_EnqueueDoesNotBlockWhenFull(t *testing.T) {
	q := NewQueue(1, 0, zap.NewNop())
	release := make(chan struct{})

	var ran atomic.Int32
	block := Task{Name: "block", Run: func(ctx context.Context) error {
		<-release
		ran.Add(1)
		return nil
	}}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = q.Enqueue(block)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked while workers were busy")
	}

	close(release)
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if ran.Load() != 10 {
		t.Errorf("Expected overflow tasks to run, got %d", ran.Load())
	}
}

func TestQueue_RejectsAfterClose(t *testing.T) {
	q := NewQueue(1, 1, zap.NewNop())
	_ = q.Close(context.Background())

	err := q.Enqueue(Task{Name: "late", Run: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed, got %v", err)
	}
	// Closing twice is harmless.
	if err := q.Close(context.Background()); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestQueue_ResultHookSeesErrorsAndPanics(t *testing.T) {
	var mu sync.Mutex
	results := map[string]error{}
	q := NewQueue(1, 4, zap.NewNop(), WithResultHook(func(task Task, err error) {
		mu.Lock()
		results[task.Name] = err
		mu.Unlock()
	}))

	boom := errors.New("boom")
	_ = q.Enqueue(Task{Name: "ok", Run: func(ctx context.Context) error { return nil }})
	_ = q.Enqueue(Task{Name: "fail", Run: func(ctx context.Context) error { return boom }})
	_ = q.Enqueue(Task{Name: "panic", Run: func(ctx context.Context) error { panic("bad") }})
	_ = q.Close(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if results["ok"] != nil {
		t.Errorf("Expected nil error for ok task, got %v", results["ok"])
	}
	if !errors.Is(results["fail"], boom) {
		t.Errorf("Expected boom, got %v", results["fail"])
	}
	if results["panic"] == nil {
		t.Error("Expected panic to surface as an error")
	}
}

func TestQueue_TaskContextIsBounded(t *testing.T) {
	q := NewQueue(1, 1, zap.NewNop(), WithTaskTimeout(20*time.Millisecond))

	errCh := make(chan error, 1)
	_ = q.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		errCh <- ctx.Err()
		return ctx.Err()
	}})
	_ = q.Close(context.Background())

	if err := <-errCh; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestQueue_CloseHonoursContext(t *testing.T) {
	q := NewQueue(1, 1, zap.NewNop())
	release := make(chan struct{})
	defer close(release)
	_ = q.Enqueue(Task{Name: "stuck", Run: func(ctx context.Context) error {
		<-release
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}
