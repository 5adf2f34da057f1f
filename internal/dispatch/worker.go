package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrPoolShutdown is returned when work is offered to a shut-down pool.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// WorkerPool runs tasks with bounded total concurrency while keeping
// tasks that share a key in submission order. Each key owns a lane;
// a lane executes its tasks one at a time and is reaped as soon as it
// drains, so deleted workflows leave nothing behind.
type WorkerPool struct {
	sem    chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
}

type task struct {
	ctx context.Context
	fn  func(ctx context.Context)
}

// lane holds the pending tasks for one key. busy means a runner
// goroutine currently owns the lane.
type lane struct {
	pending []task
	busy    bool
}

// NewWorkerPool creates a pool with the given max concurrency.
func NewWorkerPool(size int, logger *slog.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		sem:    make(chan struct{}, size),
		logger: logger,
		lanes:  make(map[string]*lane),
	}
}

// Run schedules fn on the key's lane. Tasks sharing a key execute one
// at a time in submission order; distinct keys run concurrently up to
// the pool size. Never blocks; returns ErrPoolShutdown once Shutdown
// has begun.
func (p *WorkerPool) Run(ctx context.Context, key string, fn func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolShutdown
	}
	ln, ok := p.lanes[key]
	if !ok {
		ln = &lane{}
		p.lanes[key] = ln
	}
	ln.pending = append(ln.pending, task{ctx: ctx, fn: fn})
	if !ln.busy {
		ln.busy = true
		p.wg.Add(1)
		go p.drain(key, ln)
	}
	return nil
}

// drain owns one lane until its queue empties, then removes the lane
// from the map so the key costs nothing while idle.
func (p *WorkerPool) drain(key string, ln *lane) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if len(ln.pending) == 0 {
			ln.busy = false
			delete(p.lanes, key)
			p.mu.Unlock()
			return
		}
		t := ln.pending[0]
		ln.pending = ln.pending[1:]
		p.mu.Unlock()

		p.sem <- struct{}{}
		p.runTask(key, t)
		<-p.sem
	}
}

func (p *WorkerPool) runTask(key string, t task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				slog.String("key", key),
				slog.Any("panic", r),
			)
		}
	}()
	t.fn(t.ctx)
}

// Shutdown stops accepting tasks and waits for every lane to drain.
// Pending tasks still execute; only new submissions are rejected.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}
