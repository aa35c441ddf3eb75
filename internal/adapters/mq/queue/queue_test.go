package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	job := NewJob("user1", ReasonInsert)
	if job.ID == "" || job.EnqueuedAt.IsZero() {
		t.Fatalf("expected NewJob to fill id and timestamp, got %+v", job)
	}
	if err := q.Enqueue(ctx, job); err != nil {
		t.Errorf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.ID != job.ID || got.UserID != "user1" || got.Reason != ReasonInsert {
		t.Errorf("expected %+v, got %+v", job, got)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_StampsEnqueueTime(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx := context.Background()

	if err := q.Enqueue(ctx, Job{ID: "j", UserID: "u"}); err != nil {
		t.Fatal(err)
	}
	if got := <-q.Dequeue(ctx); got.EnqueuedAt.IsZero() {
		t.Error("expected EnqueuedAt to be set")
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, NewJob(fmt.Sprintf("u%d", i), ReasonMove)); err != nil {
			t.Fatalf("expected enqueue to succeed, got %v", err)
		}
	}

	err := q.Enqueue(ctx, NewJob("u2", ReasonMove))
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const producers = 10
	const perProducer = 100

	var consumed sync.Map
	var consumers sync.WaitGroup
	for i := 0; i < 4; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for j := range q.Dequeue(ctx) {
				consumed.Store(j.ID, true)
			}
		}()
	}

	var producersWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		producersWG.Add(1)
		go func(p int) {
			defer producersWG.Done()
			for i := 0; i < perProducer; i++ {
				job := Job{ID: fmt.Sprintf("%d-%d", p, i), UserID: "u"}
				for errors.Is(q.Enqueue(ctx, job), ErrQueueFull) {
					time.Sleep(time.Millisecond)
				}
			}
		}(p)
	}
	producersWG.Wait()
	_ = q.Close()
	consumers.Wait()

	n := 0
	consumed.Range(func(_, _ any) bool { n++; return true })
	if n != producers*perProducer {
		t.Errorf("expected %d jobs consumed, got %d", producers*perProducer, n)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	_ = q.Enqueue(ctx, NewJob("u1", ReasonRemove))
	_ = q.Enqueue(ctx, NewJob("u2", ReasonRemove))

	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, NewJob("u3", ReasonRemove)); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped after closing, got %v", err)
	}

	// Pending jobs drain, then the channel closes.
	drained := 0
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if drained != 2 {
					t.Errorf("expected 2 drained jobs, got %d", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("expected second close to succeed, got error: %v", err)
				}
				return
			}
			drained++
		case <-timeout:
			t.Fatal("expected dequeue channel to be closed within timeout")
		}
	}
}

func TestInMemoryQueue_EnqueueCancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(context.Background(), NewJob("u", ReasonManual)); err != nil {
		t.Fatal(err)
	}
	err := q.Enqueue(ctx, NewJob("u", ReasonManual))
	if err == nil {
		t.Fatal("expected an error from a full queue with a cancelled context")
	}
	if !errors.Is(err, ErrQueueFull) && !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error %v", err)
	}
}
