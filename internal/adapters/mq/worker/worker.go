// Package worker runs queued mutations. A Pool shards jobs by key so every
// key has exactly one writer goroutine.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/cosmic-journey/internal/adapters/mq/queue"
	"github.com/okian/cosmic-journey/pkg/logger"
	"github.com/okian/cosmic-journey/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker executes jobs one at a time.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker. Jobs still queued are answered with
	// queue.ErrStopped.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for a single queue.
type InMemoryWorker struct {
	queue Queue
	name  string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop. It returns when ctx is done, Shutdown is
// called, or the queue is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			w.reject(jobs)
			return
		case <-w.shutdown:
			w.reject(jobs)
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				stop(job)
				w.reject(jobs)
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out", logger.String("worker", w.name))
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) {
	defer func() {
		metrics.RecordMutationLatency(float64(time.Since(job.Enqueued).Microseconds()) / 1000)
	}()
	if !job.Claim() {
		metrics.RecordMutationRejected("abandoned")
		return
	}
	// The caller gave up while the job was queued; it must not land.
	if err := job.Ctx.Err(); err != nil {
		metrics.RecordMutationRejected("context_cancelled")
		job.Done <- err
		return
	}
	job.Done <- w.safeRun(ctx, job)
}

func (w *InMemoryWorker) safeRun(ctx context.Context, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(ctx, "mutation panicked",
				logger.String("worker", w.name), logger.String("key", job.Key), logger.Any("panic", r))
			err = fmt.Errorf("mutation %s panicked: %v", job.Key, r)
		}
	}()
	return job.Fn()
}

func (w *InMemoryWorker) exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func stop(job queue.Job) {
	if job.Claim() {
		job.Done <- queue.ErrStopped
	}
}

// reject answers every job still buffered without running it.
func (w *InMemoryWorker) reject(jobs <-chan queue.Job) {
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			stop(job)
		default:
			return
		}
	}
}

// Pool owns one queue and one worker per shard.
type Pool struct {
	queues  []*queue.InMemoryQueue
	workers []*InMemoryWorker

	started  bool
	mu       sync.Mutex
	stopOnce sync.Once

	logger logger.Logger
}

// NewPool creates a pool. shards < 1 defaults to runtime.NumCPU().
func NewPool(opts ...PoolOption) *Pool {
	cfg := poolConfig{shards: runtime.NumCPU(), queueSize: 1024, logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.shards < 1 {
		cfg.shards = runtime.NumCPU()
	}

	p := &Pool{
		queues:  make([]*queue.InMemoryQueue, cfg.shards),
		workers: make([]*InMemoryWorker, cfg.shards),
		logger:  cfg.logger,
	}
	for i := range p.queues {
		p.queues[i] = queue.NewInMemoryQueue(queue.WithCapacity(cfg.queueSize))
		p.workers[i] = NewInMemoryWorker(p.queues[i],
			WithName("writer-"+strconv.Itoa(i)),
			WithLogger(cfg.logger),
		)
	}
	metrics.UpdateMutationWorkerCount(cfg.shards)
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shards returns the number of writers.
func (p *Pool) Shards() int { return len(p.workers) }

// ShardFor returns the shard index that owns key.
func (p *Pool) ShardFor(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// Len returns the number of jobs waiting across all shards.
func (p *Pool) Len(ctx context.Context) int {
	n := 0
	for _, q := range p.queues {
		n += q.Len(ctx)
	}
	return n
}

// Do runs fn on the writer that owns key and waits for its result. Calls
// with the same key never run concurrently and run in submission order.
//
// When ctx ends before the writer picks the job up, the job is withdrawn and
// ctx.Err() is returned; once fn has started, Do waits for its result so the
// error always tells whether fn ran.
func (p *Pool) Do(ctx context.Context, key string, fn func() error) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return queue.ErrNotStarted
	}

	shard := p.ShardFor(key)
	q, w := p.queues[shard], p.workers[shard]
	if w.exited() {
		return queue.ErrStopped
	}
	job := queue.NewJobContext(ctx, key, fn)
	if !q.Enqueue(ctx, job) {
		if q.IsClosed() {
			return queue.ErrStopped
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: key %s", queue.ErrQueueFull, key)
	}
	metrics.UpdateMutationQueueDepth(p.Len(ctx))

	select {
	case err := <-job.Done:
		return err
	case <-ctx.Done():
		if job.Abandon() {
			return ctx.Err()
		}
		return <-job.Done
	case <-w.done:
		if job.Abandon() {
			return queue.ErrStopped
		}
		return <-job.Done
	}
}

// Shutdown closes every queue, lets workers drain what is already queued and
// waits for them to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.stopOnce.Do(func() {
		for _, q := range p.queues {
			_ = q.Close()
		}
		p.mu.Lock()
		started := p.started
		p.mu.Unlock()
		if !started {
			return
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()
		for i, w := range p.workers {
			select {
			case <-w.done:
			case <-shutdownCtx.Done():
				p.logger.Warn(ctx, "writer shutdown timed out", logger.Int("shard", i))
				err = fmt.Errorf("pool shutdown: %w", shutdownCtx.Err())
			}
		}
		metrics.UpdateMutationQueueDepth(0)
	})
	return err
}
