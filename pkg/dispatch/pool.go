package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/zhaopengme/telemvc/pkg/logger"
)

// Pool runs tasks on a bounded set of goroutines. Hand-off is unbuffered:
// when every worker is busy and the pool is at its maximum, Submit blocks.
type Pool struct {
	tasks     chan func()
	quit      chan struct{}
	slots     *semaphore.Weighted
	min       int
	max       int
	keepAlive time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	workers atomic.Int32
	busy    atomic.Int32
}

// NewPool starts min workers that live until Shutdown. Up to max-min extra
// workers are started on demand and exit after keepAlive without work.
func NewPool(min, max int, keepAlive time.Duration) (*Pool, error) {
	if min <= 0 || max <= 0 {
		return nil, fmt.Errorf("pool sizes must be positive, got min=%d max=%d", min, max)
	}
	if max < min {
		return nil, fmt.Errorf("pool max %d is below min %d", max, min)
	}

	p := &Pool{
		tasks:     make(chan func()),
		quit:      make(chan struct{}),
		slots:     semaphore.NewWeighted(int64(max)),
		min:       min,
		max:       max,
		keepAlive: keepAlive,
	}
	for i := 0; i < min; i++ {
		p.slots.TryAcquire(1)
		p.spawn(nil, true)
	}
	return p, nil
}

// Submit hands task to a worker. It returns ErrPoolClosed after Shutdown,
// or ctx.Err() if ctx ends while waiting for a free worker.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case <-p.quit:
		return ErrPoolClosed
	default:
	}

	select {
	case p.tasks <- task:
		return nil
	default:
	}

	if p.slots.TryAcquire(1) {
		if p.spawn(task, false) {
			return nil
		}
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		return nil
	case <-p.quit:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn starts a worker holding one semaphore slot. It gives the slot back
// and reports false if the pool is already closed.
func (p *Pool) spawn(first func(), core bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.slots.Release(1)
		return false
	}
	p.wg.Add(1)
	p.workers.Add(1)
	go p.work(first, core)
	return true
}

func (p *Pool) work(first func(), core bool) {
	defer p.wg.Done()
	defer p.slots.Release(1)
	defer p.workers.Add(-1)

	if first != nil {
		p.run(first)
	}

	var idle <-chan time.Time
	for {
		if !core {
			idle = time.After(p.keepAlive)
		}
		select {
		case task := <-p.tasks:
			p.run(task)
		case <-idle:
			return
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) run(task func()) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCF("dispatch", "Worker task panicked", map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			})
		}
	}()
	task()
}

// Shutdown stops accepting tasks and waits for running ones to finish or
// for ctx to end. Running tasks are never interrupted.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.quit)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pool drain: %w", ctx.Err())
	}
}

// Workers is the number of live worker goroutines.
func (p *Pool) Workers() int { return int(p.workers.Load()) }

// Busy is the number of workers currently running a task.
func (p *Pool) Busy() int { return int(p.busy.Load()) }
