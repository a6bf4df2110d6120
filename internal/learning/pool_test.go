package learning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Run(t *testing.T) {
	pool := NewPool(2)
	defer pool.Shutdown()

	if err := pool.Run(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantErr := errors.New("boom")
	if err := pool.Run(context.Background(), func(ctx context.Context) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}

	m := pool.Metrics()
	if m.Completed != 1 || m.Failed != 1 || m.Active != 0 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestPool_ConcurrencyLimit(t *testing.T) {
	const size = 3
	pool := NewPool(size)
	defer pool.Shutdown()

	var current, peak int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Run(context.Background(), func(ctx context.Context) error {
				c := atomic.AddInt64(&current, 1)
				mu.Lock()
				if c > peak {
					peak = c
				}
				mu.Unlock()
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt64(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	if peak > size {
		t.Errorf("peak concurrency %d exceeds pool size %d", peak, size)
	}
}

func TestPool_PanicRecovered(t *testing.T) {
	pool := NewPool(1)
	defer pool.Shutdown()

	err := pool.Run(context.Background(), func(ctx context.Context) error { panic("bad derivation") })
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
	if m := pool.Metrics(); m.Panics != 1 || m.Failed != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}

	// The slot must have been released.
	if err := pool.Run(context.Background(), func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("pool unusable after panic: %v", err)
	}
}

func TestPool_ContextCancelledWhileWaiting(t *testing.T) {
	pool := NewPool(1)
	defer pool.Shutdown()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = pool.Run(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := pool.Run(ctx, func(ctx context.Context) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	close(release)
}

func TestPool_Shutdown(t *testing.T) {
	pool := NewPool(1)
	pool.Shutdown()
	pool.Shutdown()

	if err := pool.Run(context.Background(), func(ctx context.Context) error { return nil }); !errors.Is(err, ErrPoolShutdown) {
		t.Errorf("expected ErrPoolShutdown, got %v", err)
	}
}
