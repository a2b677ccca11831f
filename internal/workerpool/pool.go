package workerpool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"sync"
	"time"

	"media-browser/internal/logging"
	"media-browser/internal/metrics"
)

// ErrPoolClosed is returned by Submit after Shutdown has been called.
var ErrPoolClosed = errors.New("worker pool is shut down")

// JobFunc is the unit of work executed by the pool. The context is the
// pool's lifetime context; it is cancelled when Shutdown's grace period
// expires, so long-running work (ffmpeg) should respect it.
type JobFunc func(ctx context.Context) (string, error)

// Task is the future for a submitted job. It resolves exactly once.
type Task struct {
	done   chan struct{}
	result string
	err    error
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Wait blocks until the task resolves or ctx is done. A ctx cancellation
// abandons the wait but does not cancel the underlying job; other waiters
// still receive the result.
func (t *Task) Wait(ctx context.Context) (string, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Done returns a channel that is closed when the task resolves.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

func (t *Task) resolve(result string, err error) {
	t.result = result
	t.err = err
	close(t.done)
}

type job struct {
	fn   JobFunc
	task *Task
}

// Pool is a fixed-size worker pool with an unbounded FIFO queue.
// Submit never blocks; callers observe completion through the returned Task.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*job
	closed  bool
	workers int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Count returns the worker count for CPU-bound work, derived from
// GOMAXPROCS and capped at limit (0 = no cap). The THUMBNAIL_WORKERS
// environment variable overrides the computed value.
func Count(limit int) int {
	if override := os.Getenv("THUMBNAIL_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	workers := runtime.GOMAXPROCS(0)
	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// New creates a pool with the given number of workers and starts them.
// A non-positive workers value falls back to Count with a cap of 8.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = Count(8)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}
	p.cond = sync.NewCond(&p.mu)

	metrics.PoolWorkers.Set(float64(workers))

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logging.Debug("Worker pool started with %d workers", workers)
	return p
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// QueueDepth returns the number of jobs waiting for a worker.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Submit enqueues fn and returns its Task. Jobs are dispatched FIFO as
// workers free up. Submit never blocks; after Shutdown it returns
// ErrPoolClosed and a nil Task.
func (p *Pool) Submit(fn JobFunc) (*Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	t := newTask()
	p.queue = append(p.queue, &job{fn: fn, task: t})
	metrics.PoolQueueDepth.Set(float64(len(p.queue)))
	p.cond.Signal()

	return t, nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue = p.queue[1:]
		metrics.PoolQueueDepth.Set(float64(len(p.queue)))
		p.mu.Unlock()

		p.run(id, j)
	}
}

// run executes a single job, converting panics into job errors so a
// faulty job cannot take down its worker.
func (p *Pool) run(id int, j *job) {
	metrics.PoolBusyWorkers.Inc()
	defer metrics.PoolBusyWorkers.Dec()

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Worker %d: job panic: %v", id, r)
			metrics.PoolJobsTotal.WithLabelValues("panic").Inc()
			j.task.resolve("", fmt.Errorf("job panic: %v", r))
		}
	}()

	result, err := j.fn(p.ctx)
	if err != nil {
		metrics.PoolJobsTotal.WithLabelValues("error").Inc()
	} else {
		metrics.PoolJobsTotal.WithLabelValues("ok").Inc()
	}
	j.task.resolve(result, err)
}

// Shutdown stops accepting new jobs and waits up to grace for queued and
// in-flight jobs to finish. After the grace period the pool context is
// cancelled so remaining jobs terminate; their tasks resolve with
// whatever error the job returns.
func (p *Pool) Shutdown(grace time.Duration) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Debug("Worker pool drained cleanly")
	case <-time.After(grace):
		logging.Warn("Worker pool shutdown grace period expired, cancelling remaining jobs")
		p.cancel()
		<-done
	}

	p.cancel()
}
