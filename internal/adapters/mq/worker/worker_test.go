package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/cosmic-journey/internal/adapters/mq/queue"
	"github.com/okian/cosmic-journey/internal/adapters/mq/worker"
	"github.com/smartystreets/goconvey/convey"
)

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a worker reading a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(8))
		w := worker.NewInMemoryWorker(q, worker.WithName("test"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job succeeds", func() {
			job := queue.NewJob("k", func() error { return nil })
			convey.So(q.Enqueue(ctx, job), convey.ShouldBeTrue)

			convey.Convey("Then its result is delivered", func() {
				convey.So(<-job.Done, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a job fails", func() {
			boom := errors.New("boom")
			job := queue.NewJob("k", func() error { return boom })
			q.Enqueue(ctx, job)

			convey.Convey("Then the error is delivered", func() {
				convey.So(errors.Is(<-job.Done, boom), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a job panics", func() {
			job := queue.NewJob("k", func() error { panic("bad") })
			q.Enqueue(ctx, job)

			convey.Convey("Then the panic becomes an error and the worker keeps running", func() {
				err := <-job.Done
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "panicked")

				next := queue.NewJob("k2", func() error { return nil })
				q.Enqueue(ctx, next)
				convey.So(<-next.Done, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the worker is shut down", func() {
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
			convey.So(w.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a started pool", t, func() {
		ctx := context.Background()
		p := worker.NewPool(worker.WithShards(4), worker.WithQueueSize(256))
		p.Start(ctx)
		defer func() { _ = p.Shutdown(ctx) }()

		convey.So(p.Shards(), convey.ShouldEqual, 4)

		convey.Convey("When the same key is mutated concurrently", func() {
			var inFlight, maxInFlight atomic.Int32
			counter := 0
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = p.Do(ctx, "run-1", func() error {
						n := inFlight.Add(1)
						for {
							m := maxInFlight.Load()
							if n <= m || maxInFlight.CompareAndSwap(m, n) {
								break
							}
						}
						counter++
						time.Sleep(time.Millisecond)
						inFlight.Add(-1)
						return nil
					})
				}()
			}
			wg.Wait()

			convey.Convey("Then mutations never overlap and none are lost", func() {
				convey.So(maxInFlight.Load(), convey.ShouldEqual, 1)
				convey.So(counter, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When jobs for one key are submitted in order", func() {
			var order []int
			for i := 0; i < 10; i++ {
				convey.So(p.Do(ctx, "run-2", func() error { order = append(order, i); return nil }), convey.ShouldBeNil)
			}

			convey.Convey("Then they run in submission order", func() {
				convey.So(order, convey.ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
			})
		})

		convey.Convey("Then keys map to stable shards", func() {
			for i := 0; i < 20; i++ {
				key := fmt.Sprintf("run-%d", i)
				s := p.ShardFor(key)
				convey.So(s, convey.ShouldBeBetweenOrEqual, 0, 3)
				convey.So(p.ShardFor(key), convey.ShouldEqual, s)
			}
		})

		convey.Convey("When the job returns an error", func() {
			err := p.Do(ctx, "run-3", func() error { return errors.New("conflict") })

			convey.Convey("Then Do returns it", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldEqual, "conflict")
			})
		})

		convey.Convey("When the caller's context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			err := p.Do(cctx, "run-4", func() error { return nil })

			convey.Convey("Then Do returns the context error", func() {
				convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool is shut down", func() {
			convey.So(p.Shutdown(ctx), convey.ShouldBeNil)
			err := p.Do(ctx, "run-5", func() error { return nil })

			convey.Convey("Then new work is refused", func() {
				convey.So(errors.Is(err, queue.ErrStopped), convey.ShouldBeTrue)
			})
		})
	})
}

// blockShard occupies the writer for key until the returned release is
// called. It returns once the blocking job is running.
func blockShard(ctx context.Context, p *worker.Pool, key string) (release func()) {
	running := make(chan struct{})
	gate := make(chan struct{})
	go func() {
		_ = p.Do(ctx, key, func() error {
			close(running)
			<-gate
			return nil
		})
	}()
	<-running
	return func() { close(gate) }
}

func TestPoolQueueFull(t *testing.T) {
	convey.Convey("Given a single writer with room for one waiting job", t, func() {
		ctx := context.Background()
		p := worker.NewPool(worker.WithShards(1), worker.WithQueueSize(1))
		p.Start(ctx)
		defer func() { _ = p.Shutdown(ctx) }()

		release := blockShard(ctx, p, "a")
		waiting := make(chan error, 1)
		go func() { waiting <- p.Do(ctx, "a", func() error { return nil }) }()
		for p.Len(ctx) < 1 {
			time.Sleep(time.Millisecond)
		}

		convey.Convey("Then the next job is rejected as queue full", func() {
			err := p.Do(ctx, "a", func() error { return nil })
			convey.So(errors.Is(err, queue.ErrQueueFull), convey.ShouldBeTrue)
			convey.So(p.Len(ctx), convey.ShouldEqual, 1)

			release()
			convey.So(<-waiting, convey.ShouldBeNil)
		})
	})
}

func TestPoolCallerDeadlines(t *testing.T) {
	convey.Convey("Given a writer busy with another job", t, func() {
		ctx := context.Background()
		p := worker.NewPool(worker.WithShards(1), worker.WithQueueSize(8))
		p.Start(ctx)
		defer func() { _ = p.Shutdown(ctx) }()

		release := blockShard(ctx, p, "run-1")

		convey.Convey("When a caller gives up while its job is queued", func() {
			var ran atomic.Bool
			short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := p.Do(short, "run-1", func() error { ran.Store(true); return nil })
			release()

			convey.Convey("Then it gets the context error and the job never runs", func() {
				convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
				convey.So(p.Do(ctx, "run-1", func() error { return nil }), convey.ShouldBeNil)
				convey.So(ran.Load(), convey.ShouldBeFalse)
			})
		})

		convey.Convey("When a caller's deadline passes after its job started", func() {
			release()
			short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
			defer cancel()
			err := p.Do(short, "run-1", func() error {
				time.Sleep(50 * time.Millisecond)
				return nil
			})

			convey.Convey("Then it receives the job's own result", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestPoolLifecycle(t *testing.T) {
	convey.Convey("Given a pool that was never started", t, func() {
		p := worker.NewPool(worker.WithShards(1))

		convey.Convey("Then work is refused immediately", func() {
			err := p.Do(context.Background(), "a", func() error { return nil })
			convey.So(errors.Is(err, queue.ErrNotStarted), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a pool whose writers were stopped by their context", t, func() {
		runCtx, cancel := context.WithCancel(context.Background())
		p := worker.NewPool(worker.WithShards(2))
		p.Start(runCtx)
		cancel()

		convey.Convey("Then new work fails fast instead of waiting forever", func() {
			waitCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
			defer stop()
			start := time.Now()
			err := p.Do(waitCtx, "a", func() error { return nil })
			convey.So(errors.Is(err, queue.ErrStopped), convey.ShouldBeTrue)
			convey.So(time.Since(start), convey.ShouldBeLessThan, time.Second)
		})
	})
}
