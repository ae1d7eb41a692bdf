// Package workerpool offers a small fixed-size goroutine pool for CPU-bound
// work that would otherwise block a request-handling goroutine — chiefly
// argon2id password hashing and agent-token issuance, both deliberately
// slow. Grounded on the teacher's pkg/queue.WorkerPool start/stop lifecycle
// (stopCh + sync.Once + sync.WaitGroup for graceful drain).
package workerpool

import (
	"context"
	"log/slog"
	"sync"
)

// Task is a unit of work submitted to the pool. It receives the pool's
// shutdown context so long-running work can observe cancellation.
type Task func(ctx context.Context)

// Pool runs submitted Tasks across a fixed number of worker goroutines.
type Pool struct {
	size     int
	tasks    chan Task
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *slog.Logger
}

// New creates a Pool with size workers and a task queue of the given
// capacity. Call Start before submitting work.
func New(size, queueCapacity int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:   size,
		tasks:  make(chan Task, queueCapacity),
		stopCh: make(chan struct{}),
		log:    slog.With("component", "workerpool.Pool"),
	}
}

// Start spawns the worker goroutines. ctx is threaded into every Task and
// also governs how long Start's workers keep draining tasks after Stop is
// called: once ctx is done, workers exit without waiting for the queue to
// empty.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
	p.log.Info("worker pool started", "workers", p.size)
}

func (p *Pool) runWorker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			for {
				select {
				case <-ctx.Done():
					return
				case task := <-p.tasks:
					task(ctx)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			task(ctx)
		}
	}
}

// Submit enqueues task, blocking if the queue is full. Returns an error if
// the pool has already been stopped.
func (p *Pool) Submit(task Task) error {
	select {
	case <-p.stopCh:
		return errPoolStopped
	default:
	}
	select {
	case p.tasks <- task:
		return nil
	case <-p.stopCh:
		return errPoolStopped
	}
}

// Stop signals workers to drain whatever is already queued and exit; it
// blocks until every worker goroutine has returned. Safe to call more than
// once.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
	p.log.Info("worker pool stopped")
}
