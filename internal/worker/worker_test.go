package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 10, func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		if err := pool.Submit(ctx, i); err != nil {
			t.Fatal(err)
		}
	}
	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
	if ok, failed := pool.Stats(); ok != 5 || failed != 0 {
		t.Errorf("unexpected stats %d/%d", ok, failed)
	}
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(4, 100, func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = pool.Submit(ctx, n)
		}(i)
	}
	wg.Wait()
	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestPool_ReportsErrors(t *testing.T) {
	var mu sync.Mutex
	var failedJobs []int
	pool := NewPool(2, 10, func(ctx context.Context, job int) error {
		if job%2 == 1 {
			return errors.New("odd")
		}
		return nil
	}, func(job int, err error) {
		mu.Lock()
		failedJobs = append(failedJobs, job)
		mu.Unlock()
	})

	ctx := context.Background()
	pool.Start(ctx)
	for i := 0; i < 6; i++ {
		_ = pool.Submit(ctx, i)
	}
	pool.Stop()

	ok, failed := pool.Stats()
	if ok != 3 || failed != 3 {
		t.Errorf("expected 3/3, got %d/%d", ok, failed)
	}
	if len(failedJobs) != 3 {
		t.Errorf("expected 3 error callbacks, got %d", len(failedJobs))
	}
}

func TestPool_GracefulShutdown(t *testing.T) {
	var processed atomic.Int64
	pool := NewPool(2, 50, func(ctx context.Context, job int) error {
		time.Sleep(10 * time.Millisecond)
		processed.Add(1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		_ = pool.Submit(ctx, i)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	t.Logf("processed %d jobs before shutdown", processed.Load())
}

func TestPool_SubmitGivesUpOnCancel(t *testing.T) {
	release := make(chan struct{})
	pool := NewPool(1, 0, func(ctx context.Context, job int) error {
		<-release
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	if err := pool.Submit(ctx, 1); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() { errc <- pool.Submit(ctx, 2) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after cancel")
	}
	close(release)
	pool.Stop()
}
