package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nagendra0018/dcn/internal/errors"
)

func TestPutGet(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := q.Put(ctx, i); err != nil {
			t.Fatalf("put %d: %v", i, err)
		}
	}

	if q.Len() != 4 {
		t.Errorf("expected depth 4, got %d", q.Len())
	}

	for i := 0; i < 4; i++ {
		v, err := q.Get(ctx)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if v != i {
			t.Errorf("expected %d, got %d (FIFO order)", i, v)
		}
	}
}

func TestPutBlocksWhenFull(t *testing.T) {
	q := New[int](1)
	ctx := context.Background()

	if err := q.Put(ctx, 1); err != nil {
		t.Fatalf("put: %v", err)
	}

	released := make(chan struct{})
	go func() {
		// Blocks until the consumer below drains one slot.
		if err := q.Put(ctx, 2); err != nil {
			t.Errorf("blocked put: %v", err)
		}
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("put should block while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	if _, err := q.Get(ctx); err != nil {
		t.Fatalf("get: %v", err)
	}

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("put should unblock after a slot frees")
	}
}

func TestPutRespectsContext(t *testing.T) {
	q := New[int](1)
	if err := q.Put(context.Background(), 1); err != nil {
		t.Fatalf("put: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Put(ctx, 2)
	if err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestGetRespectsContext(t *testing.T) {
	q := New[int](1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Get(ctx); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestCloseDrains(t *testing.T) {
	q := New[int](4)
	ctx := context.Background()

	q.Put(ctx, 1)
	q.Put(ctx, 2)
	q.Close()

	if err := q.Put(ctx, 3); err != errors.ErrQueueClosed {
		t.Errorf("put after close: expected ErrQueueClosed, got %v", err)
	}

	// Remaining items drain before the closed error surfaces.
	if v, err := q.Get(ctx); err != nil || v != 1 {
		t.Errorf("expected 1, got %d, %v", v, err)
	}
	if v, err := q.Get(ctx); err != nil || v != 2 {
		t.Errorf("expected 2, got %d, %v", v, err)
	}
	if _, err := q.Get(ctx); err != errors.ErrQueueClosed {
		t.Errorf("expected ErrQueueClosed after drain, got %v", err)
	}

	// Idempotent.
	q.Close()
}

func TestPutConcurrentWithClose(t *testing.T) {
	// Producers hammering Put while Close lands mid-flight must never
	// panic with a send on a closed channel: every Put either delivers
	// or returns ErrQueueClosed.
	q := New[int](1)
	ctx := context.Background()

	var producers sync.WaitGroup
	for i := 0; i < 8; i++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for {
				if err := q.Put(ctx, 1); err != nil {
					if err != errors.ErrQueueClosed {
						t.Errorf("expected ErrQueueClosed, got %v", err)
					}
					return
				}
			}
		}()
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			if _, err := q.Get(ctx); err != nil {
				return
			}
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()
	producers.Wait()
	<-drained
}

func TestTryGet(t *testing.T) {
	q := New[string](2)

	if _, ok := q.TryGet(); ok {
		t.Error("expected empty queue")
	}

	q.Put(context.Background(), "a")
	if v, ok := q.TryGet(); !ok || v != "a" {
		t.Errorf("expected a, got %q, %v", v, ok)
	}
}

func TestSnapshot(t *testing.T) {
	q := New[int](8)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		q.Put(ctx, i)
	}
	q.Get(ctx)
	q.Get(ctx)

	snap := q.Snapshot()
	if snap.Enqueued != 5 {
		t.Errorf("expected 5 enqueued, got %d", snap.Enqueued)
	}
	if snap.Dequeued != 2 {
		t.Errorf("expected 2 dequeued, got %d", snap.Dequeued)
	}
	if snap.Depth != 3 {
		t.Errorf("expected depth 3, got %d", snap.Depth)
	}
	if snap.Capacity != 8 {
		t.Errorf("expected capacity 8, got %d", snap.Capacity)
	}
}
