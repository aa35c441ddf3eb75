package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/marquee/tierlist/internal/adapters/mq/queue"
	worker "github.com/marquee/tierlist/internal/adapters/mq/worker"
	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/reclassify"
	"github.com/marquee/tierlist/internal/domain/tier"
	logging "github.com/marquee/tierlist/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

// Mock implementations for testing.
type mockQueue struct {
	jobs chan queue.Job
	once sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan queue.Job, 10)}
}

func (mq *mockQueue) Dequeue(context.Context) <-chan queue.Job {
	return mq.jobs
}

func (mq *mockQueue) Close() error {
	mq.once.Do(func() { close(mq.jobs) })
	return nil
}

type mockStore struct {
	mu       sync.Mutex
	items    map[string][]model.Item
	applied  map[string][]reclassify.Change
	itemsErr error
	applyErr error
	gate     chan struct{} // when set, Items blocks until it is closed
	entered  chan struct{}
}

func newMockStore() *mockStore {
	return &mockStore{
		items:   make(map[string][]model.Item),
		applied: make(map[string][]reclassify.Change),
	}
}

func (ms *mockStore) Items(_ context.Context, userID string) ([]model.Item, error) {
	if ms.gate != nil {
		ms.entered <- struct{}{}
		<-ms.gate
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.itemsErr != nil {
		return nil, ms.itemsErr
	}
	return ms.items[userID], nil
}

func (ms *mockStore) Apply(_ context.Context, userID string, changes []reclassify.Change) ([]reclassify.Change, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.applyErr != nil {
		return nil, ms.applyErr
	}
	ms.applied[userID] = append(ms.applied[userID], changes...)
	return changes, nil
}

func (ms *mockStore) appliedFor(userID string) []reclassify.Change {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.applied[userID]
}

// drifted returns 21 items where "drop" sits far below B and "rise" far
// above C.
func drifted() []model.Item {
	var all []model.Item
	for i := 0; i < 14; i++ {
		all = append(all, model.Item{ID: fmt.Sprintf("d%d", i), Tier: tier.D, Rank: i})
	}
	for i := 0; i < 4; i++ {
		all = append(all, model.Item{ID: fmt.Sprintf("b%d", i), Tier: tier.B, Rank: i})
	}
	all = append(all,
		model.Item{ID: "drop", Tier: tier.B, Rank: 40},
		model.Item{ID: "c0", Tier: tier.C, Rank: 0},
		model.Item{ID: "rise", Tier: tier.C, Rank: -10},
	)
	return all
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a new InMemoryWorker", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		store := newMockStore()
		store.items["u1"] = drifted()
		ctx := context.Background()

		convey.Convey("When processing a job for a drifted collection", func() {
			var observed []worker.Change
			w := worker.NewInMemoryWorker(q, store, worker.WithName("test-worker"),
				worker.WithOnApplied(func(_ worker.Job, applied []worker.Change) { observed = applied }))

			applied, err := w.Process(ctx, queue.NewJob("u1", queue.ReasonInsert))

			convey.Convey("Then the proposed changes are stored", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(applied), convey.ShouldEqual, 2)
				convey.So(applied[0].ID, convey.ShouldEqual, "drop")
				convey.So(applied[0].To, convey.ShouldEqual, tier.D)
				convey.So(applied[1].ID, convey.ShouldEqual, "rise")
				convey.So(applied[1].To, convey.ShouldEqual, tier.S)
				convey.So(store.appliedFor("u1"), convey.ShouldResemble, applied)
				convey.So(observed, convey.ShouldResemble, applied)
				convey.So(w.Processed(), convey.ShouldEqual, int64(1))
			})
		})

		convey.Convey("When the collection is too small to trust scores", func() {
			store.items["small"] = drifted()[:19]
			w := worker.NewInMemoryWorker(q, store)

			applied, err := w.Process(ctx, queue.NewJob("small", queue.ReasonMove))

			convey.Convey("Then nothing is applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(applied, convey.ShouldBeEmpty)
				convey.So(store.appliedFor("small"), convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When the snapshot fails", func() {
			store.itemsErr = errors.New("boom")
			w := worker.NewInMemoryWorker(q, store)

			_, err := w.Process(ctx, queue.NewJob("u1", queue.ReasonManual))

			convey.Convey("Then the error is returned", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "snapshot u1")
				convey.So(w.Processed(), convey.ShouldEqual, int64(0))
			})
		})

		convey.Convey("When applying fails", func() {
			store.applyErr = errors.New("boom")
			w := worker.NewInMemoryWorker(q, store)

			_, err := w.Process(ctx, queue.NewJob("u1", queue.ReasonManual))

			convey.Convey("Then the error is returned", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "apply u1")
			})
		})

		convey.Convey("When running a worker", func() {
			w := worker.NewInMemoryWorker(q, store)
			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go w.Run(runCtx)

			q.jobs <- queue.NewJob("u1", queue.ReasonInsert)

			convey.Convey("Then queued jobs are processed", func() {
				convey.So(waitFor(func() bool { return len(store.appliedFor("u1")) == 2 }), convey.ShouldBeTrue)
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 500*time.Millisecond)
				defer shutdownCancel()

				err := w.Shutdown(shutdownCtx)

				convey.Convey("Then it should shutdown gracefully and tolerate a second call", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(w.Shutdown(shutdownCtx), convey.ShouldBeNil)
				})
			})
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a new worker pool", t, func() {
		_ = logging.Init()

		q := newMockQueue()
		store := newMockStore()
		for i := 0; i < 3; i++ {
			store.items[fmt.Sprintf("u%d", i)] = drifted()
		}

		convey.Convey("When creating a pool with a non-positive count", func() {
			pool := worker.NewPool(0, q, store)

			convey.Convey("Then it falls back to at least one worker", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		convey.Convey("When starting a pool and queueing jobs for several users", func() {
			pool := worker.NewPool(2, q, store)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			for i := 0; i < 3; i++ {
				q.jobs <- queue.NewJob(fmt.Sprintf("u%d", i), queue.ReasonInsert)
			}

			convey.Convey("Then every job is processed", func() {
				convey.So(waitFor(func() bool { return pool.Processed() == 3 }), convey.ShouldBeTrue)
				for i := 0; i < 3; i++ {
					convey.So(len(store.appliedFor(fmt.Sprintf("u%d", i))), convey.ShouldEqual, 2)
				}
			})

			convey.Convey("And when shutting down", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()

				err := pool.Shutdown(shutdownCtx)

				convey.Convey("Then pending jobs drain and workers exit", func() {
					convey.So(err, convey.ShouldBeNil)
					convey.So(pool.Processed(), convey.ShouldEqual, int64(3))
				})
			})
		})

		convey.Convey("When a worker is still busy at the shutdown deadline", func() {
			store.gate = make(chan struct{})
			store.entered = make(chan struct{}, 1)
			pool := worker.NewPool(1, q, store)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			q.jobs <- queue.NewJob("u0", queue.ReasonManual)
			<-store.entered

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then the timeout is reported and the worker exits once released", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)

				close(store.gate)
				retryCtx, retryCancel := context.WithTimeout(context.Background(), time.Second)
				defer retryCancel()
				convey.So(pool.Shutdown(retryCtx), convey.ShouldBeNil)
				convey.So(pool.Processed(), convey.ShouldEqual, int64(1))
			})
		})
	})
}
