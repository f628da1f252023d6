package worker

import (
	"context"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Task is one independent unit of work. It receives the pool's base context
// and must tolerate running in any order relative to other tasks, any number
// of times.
type Task func(ctx context.Context)

// Pool runs tasks on a fixed set of workers with a bounded queue. Submission
// never blocks: when the queue is full the task is rejected and the caller
// relies on the provider's redelivery for recovery.
type Pool struct {
	logger    *zap.Logger
	tasks     chan Task
	workers   int
	stopCh    chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(logger *zap.Logger, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	return &Pool{
		logger:  logger,
		tasks:   make(chan Task, queueSize),
		workers: workers,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return ErrPoolAlreadyRunning
	}

	p.isRunning = true
	p.stopCh = make(chan struct{})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}

	p.logger.Info("Worker pool started",
		zap.Int("workers", p.workers),
		zap.Int("queue_size", cap(p.tasks)))
	return nil
}

// Stop signals the workers and waits for in-flight tasks to finish. Queued
// tasks that never started are dropped.
func (p *Pool) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return ErrPoolNotRunning
	}
	p.isRunning = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	p.logger.Info("Worker pool stopped")
	return nil
}

// IsRunning returns whether the pool is currently accepting work.
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isRunning
}

// QueueDepth returns the number of tasks waiting to run.
func (p *Pool) QueueDepth() int {
	return len(p.tasks)
}

// Submit hands a task to the pool without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isRunning {
		return ErrPoolNotRunning
	}

	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// run executes the worker loop
func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Worker context canceled", zap.Int("worker", id))
			return
		case <-p.stopCh:
			return
		case task := <-p.tasks:
			p.execute(ctx, task)
		}
	}
}

// execute runs a single task, containing panics so one bad unit cannot take
// down the worker.
func (p *Pool) execute(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic in worker task",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}
	}()

	task(ctx)
}
