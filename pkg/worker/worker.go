package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/job"
	"github.com/jdziat/fanin/pkg/registry"
)

// Worker processes tasks from the queue backend.
type Worker struct {
	storage  core.TaskStorage
	registry *registry.Registry
	config   WorkerConfig
	logger   *slog.Logger
	emitter  core.Emitter
	wg       sync.WaitGroup
}

// NewWorker creates a worker that runs tasks from storage using reg.
func NewWorker(storage core.TaskStorage, reg *registry.Registry, opts ...WorkerOption) *Worker {
	config := WorkerConfig{
		PollInterval:      100 * time.Millisecond,
		WorkerID:          uuid.New().String(),
		StaleLockInterval: time.Minute,
	}

	for _, opt := range opts {
		opt.ApplyWorker(&config)
	}

	if len(config.Queues) == 0 {
		n := config.defaultConcurrency
		if n == 0 {
			n = DefaultConcurrency
		}
		config.Queues = map[string]int{core.DefaultQueue: n}
	}
	if config.StorageRetry == nil {
		cfg := DefaultRetryConfig()
		config.StorageRetry = &cfg
	}
	if config.DequeueRetry == nil {
		cfg := dequeueRetryConfig()
		config.DequeueRetry = &cfg
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := config.Emitter
	if emitter == nil {
		emitter = core.NopEmitter
	}

	return &Worker{
		storage:  storage,
		registry: reg,
		config:   config,
		logger:   logger.With("worker_id", config.WorkerID),
		emitter:  emitter,
	}
}

// Config returns the resolved configuration.
func (w *Worker) Config() WorkerConfig {
	return w.config
}

// Start begins processing tasks. Blocks until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	queues := make([]string, 0, len(w.config.Queues))
	totalConcurrency := 0
	for q, c := range w.config.Queues {
		queues = append(queues, q)
		totalConcurrency += c
	}
	sort.Strings(queues)

	tasks := make(chan *core.Task, totalConcurrency)

	if w.config.StaleLockInterval > 0 {
		w.wg.Add(1)
		go w.runStaleLockSweep(ctx)
	}

	for i := 0; i < totalConcurrency; i++ {
		w.wg.Add(1)
		go w.processLoop(ctx, tasks)
	}

	w.logger.Info("worker started", "queues", queues, "concurrency", totalConcurrency)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			close(tasks)
			w.wg.Wait()
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			task, err := w.dequeueWithRetry(ctx, queues)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					w.logger.Error("failed to dequeue after retries", "error", err)
				}
				continue
			}
			if task != nil {
				select {
				case tasks <- task:
				case <-ctx.Done():
				}
			}
		}
	}
}

func (w *Worker) dequeueWithRetry(ctx context.Context, queues []string) (*core.Task, error) {
	var task *core.Task
	err := retryWithBackoff(ctx, *w.config.DequeueRetry, func() error {
		var dequeueErr error
		task, dequeueErr = w.storage.Dequeue(ctx, queues, w.config.WorkerID)
		return dequeueErr
	})
	return task, err
}

func (w *Worker) processLoop(ctx context.Context, tasks <-chan *core.Task) {
	defer w.wg.Done()

	for task := range tasks {
		w.Process(ctx, task)
	}
}

// Process runs one dequeued task to completion or failure. The task must be
// locked by this worker.
func (w *Worker) Process(ctx context.Context, task *core.Task) {
	startTime := time.Now()
	log := w.logger.With("task_id", task.ID, "target", task.Target, "queue", task.Queue)

	current, err := job.FromTask(task)
	if err != nil {
		log.Error("undecodable task", "error", err)
		w.handleError(ctx, task, core.NoRetry(err))
		return
	}

	w.emitter.Emit(&core.JobStarted{Task: task, Timestamp: startTime})

	err = w.registry.Call(ctx, current.Target, current.Args, current.Kwargs)
	if err == nil {
		err = w.fireSuccess(ctx, current)
	}
	if err != nil {
		if errors.Is(err, core.ErrUnknownTarget) {
			err = core.NoRetry(err)
		}
		w.handleError(ctx, task, err)
		return
	}

	if err := w.completeWithRetry(ctx, task.ID); err != nil {
		log.Error("failed to complete task after retries", "error", err)
		return
	}
	log.Debug("task completed", "duration", time.Since(startTime))
	w.emitter.Emit(&core.JobCompleted{Task: task, Duration: time.Since(startTime), Timestamp: time.Now()})
}

// fireSuccess runs the hook attached to the success event, passing the job
// that just ran.
func (w *Worker) fireSuccess(ctx context.Context, current *job.Job) error {
	name, ok := current.Callback(job.EventSuccess)
	if !ok {
		return nil
	}
	if err := w.registry.Fire(ctx, name, current); err != nil {
		return fmt.Errorf("success hook %s: %w", name, err)
	}
	return nil
}

func (w *Worker) completeWithRetry(ctx context.Context, taskID string) error {
	return retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.storage.Complete(ctx, taskID, w.config.WorkerID)
	})
}

func (w *Worker) handleError(ctx context.Context, task *core.Task, err error) {
	var noRetry *core.NoRetryError
	if errors.As(err, &noRetry) {
		w.fail(ctx, task, err)
		return
	}

	if task.Attempt <= task.MaxRetries {
		delay := calculateBackoff(task.Attempt)
		var retryAfter *core.RetryAfterError
		if errors.As(err, &retryAfter) {
			delay = retryAfter.Delay
		}
		retryAt := time.Now().Add(delay)
		w.failWithRetry(ctx, task.ID, err.Error(), &retryAt)
		w.logger.Warn("task failed, retrying",
			"task_id", task.ID, "attempt", task.Attempt, "retry_at", retryAt, "error", err)
		w.emitter.Emit(&core.JobRetrying{Task: task, Attempt: task.Attempt, Error: err, NextRunAt: retryAt, Timestamp: time.Now()})
		return
	}

	w.fail(ctx, task, err)
}

func (w *Worker) fail(ctx context.Context, task *core.Task, err error) {
	w.failWithRetry(ctx, task.ID, err.Error(), nil)
	w.logger.Error("task failed", "task_id", task.ID, "attempt", task.Attempt, "error", err)
	w.emitter.Emit(&core.JobFailed{Task: task, Error: err, Timestamp: time.Now()})
}

func (w *Worker) failWithRetry(ctx context.Context, taskID string, errMsg string, retryAt *time.Time) {
	err := retryWithBackoff(ctx, *w.config.StorageRetry, func() error {
		return w.storage.Fail(ctx, taskID, w.config.WorkerID, errMsg, retryAt)
	})
	if err != nil {
		w.logger.Error("failed to mark task as failed after retries", "task_id", taskID, "error", err)
	}
}

func (w *Worker) runStaleLockSweep(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.StaleLockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.storage.ReleaseStaleLocks(ctx, 0)
			if err != nil {
				if ctx.Err() == nil {
					w.logger.Warn("failed to release stale locks", "error", err)
				}
				continue
			}
			if n > 0 {
				w.logger.Info("released stale locks", "count", n)
			}
		}
	}
}

// calculateBackoff doubles from one second per attempt, capped at a minute.
func calculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		return time.Minute
	}
	backoff := time.Second * (1 << attempt)
	if backoff > time.Minute {
		backoff = time.Minute
	}
	return backoff
}
