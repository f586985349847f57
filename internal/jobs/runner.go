package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

var (
	ErrRunnerClosed = errors.New("jobs: runner closed")
	ErrQueueFull    = errors.New("jobs: queue full")
)

// Task is one unit of background work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type RunnerConfig struct {
	Workers   int
	QueueSize int
	// Timeout bounds each task. Zero means no bound beyond the runner's
	// lifetime.
	Timeout time.Duration
}

type queued struct {
	task Task
	ctx  context.Context
}

// Runner executes tasks on a fixed worker pool. Tasks outlive the caller that
// submitted them: they keep the caller's values but not its cancellation.
type Runner struct {
	log     *logger.Logger
	cfg     RunnerConfig
	queue   chan queued
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewRunner(baseLog *logger.Logger, cfg RunnerConfig) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 64
	}
	baseCtx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		log:     baseLog.With("component", "JobRunner"),
		cfg:     cfg,
		queue:   make(chan queued, cfg.QueueSize),
		baseCtx: baseCtx,
		cancel:  cancel,
	}
	r.log.Info("Starting job runner", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.runLoop(i + 1)
	}
	return r
}

// Submit enqueues t without blocking.
func (r *Runner) Submit(ctx context.Context, t Task) error {
	if t.Run == nil {
		return fmt.Errorf("jobs: task %q has no Run func", t.Name)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRunnerClosed
	}
	select {
	case r.queue <- queued{task: t, ctx: context.WithoutCancel(ctx)}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting tasks and waits for queued ones to finish. When ctx
// ends first, running tasks are cancelled and Close returns ctx's error.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) runLoop(workerID int) {
	defer r.wg.Done()
	for q := range r.queue {
		r.execute(workerID, q)
	}
}

func (r *Runner) execute(workerID int, q queued) {
	taskCtx, cancel := mergeCancel(q.ctx, r.baseCtx)
	defer cancel()
	if r.cfg.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		taskCtx, cancelTimeout = context.WithTimeout(taskCtx, r.cfg.Timeout)
		defer cancelTimeout()
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Job task panic", "worker_id", workerID, "task", q.task.Name, "panic", rec)
		}
	}()
	if err := q.task.Run(taskCtx); err != nil {
		r.log.Warn("Job task failed",
			"worker_id", workerID,
			"task", q.task.Name,
			"duration", time.Since(start).String(),
			"error", err,
		)
		return
	}
	r.log.Debug("Job task done", "worker_id", workerID, "task", q.task.Name, "duration", time.Since(start).String())
}

// mergeCancel returns a child of parent that is also cancelled when other is.
func mergeCancel(parent, other context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(other, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
