package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marquee/tierlist/internal/adapters/mq/queue"
	"github.com/marquee/tierlist/internal/domain/model"
	"github.com/marquee/tierlist/internal/domain/reclassify"
	"github.com/marquee/tierlist/pkg/logger"
	"github.com/marquee/tierlist/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Job is what workers read off the queue.
type Job = queue.Job

// Change is a single applied tier migration.
type Change = reclassify.Change

// Store is the part of the ranking store a worker needs.
type Store interface {
	Items(ctx context.Context, userID string) ([]model.Item, error)
	Apply(ctx context.Context, userID string, changes []reclassify.Change) ([]reclassify.Change, error)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes reclassification jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue     Queue
	store     Store
	name      string
	onApplied func(Job, []Change)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	processed atomic.Int64
	logger    logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(q Queue, store Store, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		store:    store,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run implements Worker.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if _, err := w.Process(ctx, job); err != nil {
				w.logger.Error(ctx, "reclassification failed",
					logger.String("job_id", job.ID),
					logger.String("user_id", job.UserID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown implements Worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many jobs this worker has finished.
func (w *InMemoryWorker) Processed() int64 {
	return w.processed.Load()
}

// Process snapshots the user's items, reclassifies them and stores the
// result. It returns the changes that were applied.
func (w *InMemoryWorker) Process(ctx context.Context, job Job) ([]Change, error) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	items, err := w.store.Items(ctx, job.UserID)
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "snapshot_error")
		return nil, fmt.Errorf("snapshot %s: %w", job.UserID, err)
	}

	proposed := reclassify.Reclassify(items)
	var applied []Change
	if len(proposed) > 0 {
		applied, err = w.store.Apply(ctx, job.UserID, proposed)
		if err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "apply_error")
			return nil, fmt.Errorf("apply %s: %w", job.UserID, err)
		}
	}
	w.processed.Add(1)
	metrics.RecordReclassifyRun("worker", len(applied))

	for _, c := range applied {
		w.logger.Info(ctx, "item reclassified",
			logger.String("user_id", job.UserID),
			logger.String("item_id", c.ID),
			logger.String("from", c.From.String()),
			logger.String("to", c.To.String()),
			logger.Float64("score", c.Score),
			logger.String("reason", job.Reason),
		)
	}
	if w.onApplied != nil && len(applied) > 0 {
		w.onApplied(job, applied)
	}
	return applied, nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool. A workerCount below 1 uses one worker per CPU.
func NewPool(workerCount int, q Queue, store Store, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, store, wopts...)
	}

	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns the total number of jobs finished by the pool.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Shutdown closes the queue so workers drain what is pending, then waits
// for them to exit. When the wait times out the workers are told to stop
// after their current job and the timeout is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			for _, w := range p.workers {
				w.shutdownOnce.Do(func() { close(w.shutdown) })
			}
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
