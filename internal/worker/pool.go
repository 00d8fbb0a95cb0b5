// Package worker runs dispatched research tasks on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/suPer8Hu/market-research/internal/jobs"
)

var (
	ErrQueueFull = errors.New("worker queue is full")
	ErrStopped   = errors.New("worker pool is stopped")
)

type Handler func(ctx context.Context, task jobs.Task) error

// Pool implements jobs.Dispatcher with a bounded in-process queue.
type Pool struct {
	queue   chan jobs.Task
	workers int
	log     *slog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(workers, queueSize int, log *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		queue:   make(chan jobs.Task, queueSize),
		workers: workers,
		log:     log,
	}
}

// Start launches the workers. ctx is passed to every handler call; cancelling
// it interrupts in-flight tasks.
func (p *Pool) Start(ctx context.Context, h Handler) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, h)
	}
}

// Dispatch enqueues without blocking.
func (p *Pool) Dispatch(_ context.Context, task jobs.Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks, drains the queue and waits for workers.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker(ctx context.Context, id int, h Handler) {
	defer p.wg.Done()
	p.log.Debug("worker started", "worker", id)

	for task := range p.queue {
		if err := h(ctx, task); err != nil {
			p.log.Error("task failed", "worker", id, "job_id", task.JobID, "err", err)
		}
	}
}
