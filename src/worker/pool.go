// Package worker runs capture output jobs (crop, encode, file writes,
// transcodes) off the event loop.
package worker

import (
	"context"
	"log"
	"runtime"
	"sync"
)

// Job is one unit of output work. It runs on a worker goroutine; anything
// it needs to report goes back through a closure posting into the event
// loop.
type Job func(ctx context.Context)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict
// back-pressure): a submit while a job is queued is refused, not buffered.
type Pool struct {
	jobs chan queued
	wg   sync.WaitGroup
}

type queued struct {
	ctx context.Context
	fn  Job
}

// New creates a worker pool. Size defaults to NumCPU when size<=0.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan queued, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for q := range p.jobs {
				if q.ctx.Err() != nil {
					log.Printf("worker: dropping job, context done: %v", q.ctx.Err())
					continue
				}
				q.fn(q.ctx)
			}
		}()
	}
}

// Submit enqueues a job if the single-slot queue is free. Returns false
// when the queue is occupied and the job was dropped.
func (p *Pool) Submit(ctx context.Context, fn Job) bool {
	select {
	case p.jobs <- queued{ctx: ctx, fn: fn}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
