// Package worker runs jobs on a fixed number of goroutines.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type ProcessFunc[T any] func(ctx context.Context, job T) error

// ErrorFunc is called from the worker goroutine for every failed job.
type ErrorFunc[T any] func(job T, err error)

type Pool[T any] struct {
	numWorkers int
	jobs       chan T
	process    ProcessFunc[T]
	onError    ErrorFunc[T]
	wg         sync.WaitGroup

	succeeded atomic.Int64
	failed    atomic.Int64
}

// NewPool returns a pool with a job queue of bufferSize. onError may be nil,
// in which case failures are logged.
func NewPool[T any](numWorkers, bufferSize int, process ProcessFunc[T], onError ErrorFunc[T]) *Pool[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if onError == nil {
		onError = func(job T, err error) {
			slog.Warn("job failed", "error", err)
		}
	}
	return &Pool[T]{
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		process:    process,
		onError:    onError,
	}
}

func (p *Pool[T]) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.process(ctx, job); err != nil {
				p.failed.Add(1)
				p.onError(job, err)
				continue
			}
			p.succeeded.Add(1)
		}
	}
}

// Submit queues job, blocking while the queue is full. It gives up when ctx
// is done.
func (p *Pool[T]) Submit(ctx context.Context, job T) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queue and waits for the workers to drain it.
func (p *Pool[T]) Stop() {
	close(p.jobs)
	p.wg.Wait()
}

// Stats reports how many jobs finished with and without an error.
func (p *Pool[T]) Stats() (succeeded, failed int64) {
	return p.succeeded.Load(), p.failed.Load()
}
