// Package queue holds pending mutations for a single writer.
//
// Each queue is a bounded buffered channel. Enqueue never blocks: a full or
// closed queue rejects the job so callers can shed load.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/cosmic-journey/pkg/metrics"
)

const defaultQueueCapacity = 1024

const (
	jobPending int32 = iota
	jobRunning
	jobAbandoned
)

// Job is one mutation waiting for its writer. Fn runs on the writer
// goroutine and its result is delivered on Done. Ctx is the submitting
// caller's context; a job whose Ctx is done before it starts never runs.
type Job struct {
	Key      string
	Fn       func() error
	Done     chan error
	Ctx      context.Context
	Enqueued time.Time

	state *atomic.Int32
}

// NewJob creates a job with a buffered result channel so the writer never
// blocks on a caller that gave up.
func NewJob(key string, fn func() error) Job {
	return NewJobContext(context.Background(), key, fn)
}

// NewJobContext creates a job bound to the caller's context.
func NewJobContext(ctx context.Context, key string, fn func() error) Job {
	return Job{
		Key: key, Fn: fn, Done: make(chan error, 1), Ctx: ctx, Enqueued: time.Now(),
		state: new(atomic.Int32),
	}
}

// Claim marks the job as running. It fails once the job was abandoned.
func (j Job) Claim() bool { return j.state.CompareAndSwap(jobPending, jobRunning) }

// Abandon withdraws a job that has not started. It fails once the writer
// claimed it, in which case the caller must wait for Done.
func (j Job) Abandon() bool { return j.state.CompareAndSwap(jobPending, jobAbandoned) }

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. Returns false if the queue is full, closed or ctx
	// is already done.
	Enqueue(ctx context.Context, j Job) bool

	// Dequeue returns the channel jobs are read from. It is closed by Close.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int
	mu       sync.RWMutex
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordMutationRejected("closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordMutationRejected("context_cancelled")
		return false
	}
	select {
	case q.jobs <- j:
		return true
	default:
		metrics.RecordMutationRejected("queue_full")
		return false
	}
}

// Dequeue returns the job channel.
func (q *InMemoryQueue) Dequeue(context.Context) <-chan Job {
	return q.jobs
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(context.Context) int {
	return len(q.jobs)
}

// Close stops accepting jobs. Jobs already queued can still be dequeued.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
