package worker

import (
	"log/slog"
	"time"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/security"
)

// WorkerOption configures a Worker.
type WorkerOption interface {
	ApplyWorker(*WorkerConfig)
}

type workerOptionFunc func(*WorkerConfig)

func (f workerOptionFunc) ApplyWorker(c *WorkerConfig) { f(c) }

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Queues       map[string]int // queue name -> concurrency
	PollInterval time.Duration
	WorkerID     string

	// StaleLockInterval is how often expired task locks are released.
	// Zero disables the sweep.
	StaleLockInterval time.Duration

	StorageRetry *RetryConfig
	DequeueRetry *RetryConfig

	Logger  *slog.Logger
	Emitter core.Emitter

	// concurrency for the default queue when no queue is configured.
	defaultConcurrency int
}

// DefaultConcurrency is the concurrency of a queue added without Concurrency.
const DefaultConcurrency = 10

// Concurrency sets the concurrency for every queue configured so far.
// With no queue configured it applies to the default queue.
// Values are clamped to [1, MaxConcurrency].
func Concurrency(n int) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		clamped := security.ClampConcurrency(n)
		if len(c.Queues) == 0 {
			c.defaultConcurrency = clamped
			return
		}
		for k := range c.Queues {
			c.Queues[k] = clamped
		}
	})
}

// WorkerQueue adds a queue to process with optional concurrency.
func WorkerQueue(name string, opts ...WorkerOption) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if c.Queues == nil {
			c.Queues = make(map[string]int)
		}
		c.Queues[name] = DefaultConcurrency
		scoped := WorkerConfig{Queues: map[string]int{name: DefaultConcurrency}}
		for _, opt := range opts {
			opt.ApplyWorker(&scoped)
		}
		c.Queues[name] = scoped.Queues[name]
	})
}

// PollInterval sets how often the worker polls for tasks.
func PollInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if d > 0 {
			c.PollInterval = d
		}
	})
}

// WorkerID sets the id the worker locks tasks under.
func WorkerID(id string) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if id != "" {
			c.WorkerID = id
		}
	})
}

// StaleLockInterval sets how often expired locks are swept.
func StaleLockInterval(d time.Duration) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StaleLockInterval = d
	})
}

// WithLogger sets the worker logger.
func WithLogger(l *slog.Logger) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if l != nil {
			c.Logger = l
		}
	})
}

// WithEmitter sets where job lifecycle events go.
func WithEmitter(e core.Emitter) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		if e != nil {
			c.Emitter = e
		}
	})
}

// WithStorageRetry sets the retry policy for Complete and Fail calls.
func WithStorageRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.StorageRetry = &cfg
	})
}

// WithDequeueRetry sets the retry policy for Dequeue calls.
func WithDequeueRetry(cfg RetryConfig) WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		c.DequeueRetry = &cfg
	})
}

// DisableRetry makes every storage call a single attempt.
func DisableRetry() WorkerOption {
	return workerOptionFunc(func(c *WorkerConfig) {
		once := DefaultRetryConfig()
		once.MaxAttempts = 1
		c.StorageRetry = &once
		dq := once
		c.DequeueRetry = &dq
	})
}
