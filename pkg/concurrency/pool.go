// Package concurrency bounds fan-out work such as per-leg quote requests
package concurrency

import (
	"context"
	"fmt"
	"time"

	"basket_swap/internal/core"

	"github.com/alitto/pond"
)

// PoolConfig sizes a worker pool. Zero values fall back to 4 workers, a 64 task queue and a
// one minute idle timeout.
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
}

// Stats is a point-in-time view of pool load
type Stats struct {
	Running   int
	Idle      int
	Waiting   uint64
	Submitted uint64
	Completed uint64
	Failed    uint64
}

// WorkerPool runs bounded batches of tasks on a shared alitto/pond pool
type WorkerPool struct {
	pool   *pond.WorkerPool
	config PoolConfig
	logger core.ILogger
}

func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 64
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Minute
	}

	log := logger.WithFields(map[string]interface{}{"component": "worker_pool", "pool": cfg.Name})
	return &WorkerPool{
		pool: pond.New(cfg.MaxWorkers, cfg.MaxCapacity,
			pond.MinWorkers(1),
			pond.IdleTimeout(cfg.IdleTimeout),
			pond.Strategy(pond.Balanced()),
			pond.PanicHandler(func(p interface{}) {
				log.Error("Recovered panic in pool task", "panic", p)
			}),
		),
		config: cfg,
		logger: log,
	}
}

// ForEach runs fn(ctx, i) for i in [0, n) on the pool and waits for all of them.
// Tasks not yet started when ctx is done are skipped.
func (wp *WorkerPool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	group := wp.pool.Group()
	for i := 0; i < n; i++ {
		idx := i
		group.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			fn(ctx, idx)
		})
	}
	group.Wait()
}

// TrySubmit queues task without blocking and fails when the queue is full
func (wp *WorkerPool) TrySubmit(task func()) error {
	if !wp.pool.TrySubmit(task) {
		return fmt.Errorf("worker pool %q is full (capacity %d)", wp.config.Name, wp.config.MaxCapacity)
	}
	return nil
}

func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Running:   wp.pool.RunningWorkers(),
		Idle:      wp.pool.IdleWorkers(),
		Waiting:   wp.pool.WaitingTasks(),
		Submitted: wp.pool.SubmittedTasks(),
		Completed: wp.pool.CompletedTasks(),
		Failed:    wp.pool.FailedTasks(),
	}
}

// Check reports an error while the task queue is full, for use as a health check
func (wp *WorkerPool) Check() error {
	if s := wp.Stats(); s.Waiting >= uint64(wp.config.MaxCapacity) {
		return fmt.Errorf("worker pool %q saturated: %d tasks waiting", wp.config.Name, s.Waiting)
	}
	return nil
}

// Stop drains queued tasks and stops the workers
func (wp *WorkerPool) Stop() {
	wp.pool.StopAndWait()
	wp.logger.Debug("Worker pool stopped", "completed", wp.pool.CompletedTasks())
}
