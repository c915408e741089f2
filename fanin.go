// Package fanin groups asynchronous jobs into contexts and runs a callback
// exactly once when every job in a context has finished.
//
// This is the main package users should import. It re-exports the public
// types of the pkg/ packages and wires them together in a Client.
//
// Basic usage:
//
//	db, _ := gorm.Open(sqlite.Open("fanin.db"), &gorm.Config{})
//	store := fanin.NewGormStorage(db)
//	store.Migrate(ctx)
//	client := fanin.New(store, store)
//
//	client.Register("resize", func(ctx context.Context, args []any, kwargs map[string]any) error {
//	    return resize(args[0].(string))
//	})
//	client.Register("publish", publishAlbum)
//
//	err := client.RunCallback(ctx, func(c *fanin.CallbackContext) error {
//	    for _, img := range images {
//	        if _, err := c.Add("resize", []any{img}, nil); err != nil {
//	            return err
//	        }
//	    }
//	    c.OnComplete("publish", []any{albumID}, nil)
//	    return nil
//	})
//
//	client.NewWorker().Start(ctx)
package fanin

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"gorm.io/gorm"

	"github.com/jdziat/fanin/pkg/batch"
	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/events"
	"github.com/jdziat/fanin/pkg/job"
	"github.com/jdziat/fanin/pkg/jobcontext"
	"github.com/jdziat/fanin/pkg/monitor"
	"github.com/jdziat/fanin/pkg/registry"
	"github.com/jdziat/fanin/pkg/security"
	"github.com/jdziat/fanin/pkg/storage"
	"github.com/jdziat/fanin/pkg/worker"
)

// Type aliases
type (
	// Job describes one unit of work.
	Job = job.Job

	// JobOption modifies a Job.
	JobOption = job.Option

	// Kind tells plain jobs apart from callback context jobs.
	Kind = job.Kind

	// Task is the durable descriptor of a queued job.
	Task = core.Task

	// TaskStatus represents the current state of a task.
	TaskStatus = core.TaskStatus

	// Snapshot is the persisted state of a callback context.
	Snapshot = core.Snapshot

	// ContextRecord is the durable record of a callback context.
	ContextRecord = core.ContextRecord

	// TaskStorage is the queue backend.
	TaskStorage = core.TaskStorage

	// ContextStore persists callback contexts.
	ContextStore = core.ContextStore

	// Event is the interface for all events.
	Event = core.Event

	TaskDropped      = core.TaskDropped
	BatchSplit       = core.BatchSplit
	ContextPersisted = core.ContextPersisted
	ContextCompleted = core.ContextCompleted
	ContextStalled   = core.ContextStalled
	JobStarted       = core.JobStarted
	JobCompleted     = core.JobCompleted
	JobFailed        = core.JobFailed
	JobRetrying      = core.JobRetrying

	// NoRetryError indicates an error that should not be retried.
	NoRetryError = core.NoRetryError

	// RetryAfterError indicates an error that should be retried after a delay.
	RetryAfterError = core.RetryAfterError

	// DropError lists tasks the batch inserter gave up on.
	DropError = batch.DropError

	// InsertResult reports what a batch insert did.
	InsertResult = batch.Result

	// Func is a registered unit of work.
	Func = registry.Func

	// Registry resolves target names to functions.
	Registry = registry.Registry

	// Context is a group of jobs submitted together.
	Context = jobcontext.Context

	// CallbackContext is a Context with a completion callback.
	CallbackContext = jobcontext.CallbackContext

	// Notifier records job completions against their context.
	Notifier = jobcontext.Notifier

	// Worker processes tasks from the queue.
	Worker = worker.Worker

	// WorkerOption configures a Worker.
	WorkerOption = worker.WorkerOption

	// StallMonitor reports contexts that never complete.
	StallMonitor = monitor.StallMonitor

	// GormStorage implements TaskStorage and ContextStore using GORM.
	GormStorage = storage.GormStorage
)

// Status constants
const (
	StatusPending   = core.StatusPending
	StatusRunning   = core.StatusRunning
	StatusCompleted = core.StatusCompleted
	StatusFailed    = core.StatusFailed
)

// Kind constants
const (
	KindPlain    = job.KindPlain
	KindCallback = job.KindCallback
)

// DefaultQueue is used when a job does not name a queue.
const DefaultQueue = core.DefaultQueue

// Security limits
const (
	MaxTargetNameLength   = security.MaxTargetNameLength
	MaxPayloadSize        = security.MaxPayloadSize
	MaxRetries            = security.MaxRetries
	MaxConcurrency        = security.MaxConcurrency
	MaxErrorMessageLength = security.MaxErrorMessageLength
	MaxQueueNameLength    = security.MaxQueueNameLength
	MaxBatchSize          = security.MaxBatchSize
)

// Error variables
var (
	ErrInvalidContext    = core.ErrInvalidContext
	ErrNoCurrentJob      = core.ErrNoCurrentJob
	ErrContextStarted    = core.ErrContextStarted
	ErrContextNotFound   = core.ErrContextNotFound
	ErrUnknownTarget     = core.ErrUnknownTarget
	ErrInvalidTargetName = core.ErrInvalidTargetName
	ErrInvalidQueueName  = core.ErrInvalidQueueName
	ErrPayloadTooLarge   = core.ErrPayloadTooLarge
	ErrTransient         = core.ErrTransient
	ErrTaskExists        = core.ErrTaskExists
	ErrTaskTombstoned    = core.ErrTaskTombstoned
)

// Option configures a Client.
type Option interface {
	applyClient(*clientConfig)
}

type clientOptionFunc func(*clientConfig)

func (f clientOptionFunc) applyClient(c *clientConfig) { f(c) }

type clientConfig struct {
	logger        *slog.Logger
	eventBuffer   int
	batchOpts     []batch.Option
	transactional bool
}

// WithLogger sets the logger used by every component of the client.
func WithLogger(l *slog.Logger) Option {
	return clientOptionFunc(func(c *clientConfig) {
		if l != nil {
			c.logger = l
		}
	})
}

// EventBuffer sets the channel size of each event subscriber.
func EventBuffer(n int) Option {
	return clientOptionFunc(func(c *clientConfig) {
		if n > 0 {
			c.eventBuffer = n
		}
	})
}

// BatchSize turns on chunking: no backend insert carries more than n tasks.
// By default a whole queue group goes out in one call.
func BatchSize(n int) Option {
	return clientOptionFunc(func(c *clientConfig) {
		c.batchOpts = append(c.batchOpts, batch.MaxBatchSize(n))
	})
}

// FailOnDrop makes context starts fail when a task had to be dropped.
func FailOnDrop() Option {
	return clientOptionFunc(func(c *clientConfig) {
		c.batchOpts = append(c.batchOpts, batch.FailOnDrop())
	})
}

// Transactional inserts every batch in one backend transaction.
func Transactional() Option {
	return clientOptionFunc(func(c *clientConfig) {
		c.transactional = true
	})
}

// Client wires a queue backend, a context store and a registry together.
type Client struct {
	tasks    core.TaskStorage
	contexts core.ContextStore
	registry *registry.Registry
	bus      *events.Bus
	inserter *batch.Inserter
	notifier *jobcontext.Notifier
	logger   *slog.Logger
	ctxOpts  []jobcontext.Option
}

// New creates a client. tasks and contexts may be the same GormStorage.
func New(tasks core.TaskStorage, contexts core.ContextStore, opts ...Option) *Client {
	cfg := &clientConfig{logger: slog.Default(), eventBuffer: 100}
	for _, opt := range opts {
		opt.applyClient(cfg)
	}

	bus := events.NewBus(cfg.eventBuffer)
	reg := registry.New()

	batchOpts := append([]batch.Option{batch.WithLogger(cfg.logger), batch.WithEmitter(bus)}, cfg.batchOpts...)
	ctxOpts := []jobcontext.Option{jobcontext.WithLogger(cfg.logger), jobcontext.WithEmitter(bus)}
	if cfg.transactional {
		ctxOpts = append(ctxOpts, jobcontext.Transactional())
	}

	notifier := jobcontext.NewNotifier(contexts, reg, ctxOpts...)
	notifier.Register(reg)

	return &Client{
		tasks:    tasks,
		contexts: contexts,
		registry: reg,
		bus:      bus,
		inserter: batch.New(tasks, batchOpts...),
		notifier: notifier,
		logger:   cfg.logger,
		ctxOpts:  ctxOpts,
	}
}

// Register registers a work function under name. Panics on an invalid name.
func (c *Client) Register(name string, fn Func) {
	c.registry.Register(name, fn)
}

// Registry returns the client's registry.
func (c *Client) Registry() *registry.Registry {
	return c.registry
}

// Notifier returns the completion notifier registered in the registry.
func (c *Client) Notifier() *jobcontext.Notifier {
	return c.notifier
}

// Storage returns the queue backend.
func (c *Client) Storage() core.TaskStorage {
	return c.tasks
}

// Contexts returns the context store.
func (c *Client) Contexts() core.ContextStore {
	return c.contexts
}

// Enqueue submits a single plain job and returns its id.
func (c *Client) Enqueue(ctx context.Context, target string, args []any, kwargs map[string]any, opts ...JobOption) (string, error) {
	jc := c.NewContext()
	j, err := jc.Add(target, args, kwargs, opts...)
	if err != nil {
		return "", err
	}
	if err := jc.Start(ctx); err != nil {
		return "", err
	}
	return j.ID, nil
}

// NewContext creates an empty plain context.
func (c *Client) NewContext(opts ...jobcontext.Option) *Context {
	return jobcontext.New(c.inserter, c.contextOpts(opts)...)
}

// NewCallbackContext creates an empty callback context.
func (c *Client) NewCallbackContext(opts ...jobcontext.Option) *CallbackContext {
	return jobcontext.NewCallback(c.inserter, c.contexts, c.contextOpts(opts)...)
}

// Run builds a plain context with fn and starts it if fn succeeds.
func (c *Client) Run(ctx context.Context, fn func(*Context) error, opts ...jobcontext.Option) error {
	return jobcontext.Run(ctx, c.inserter, fn, c.contextOpts(opts)...)
}

// RunCallback builds a callback context with fn and starts it if fn succeeds.
func (c *Client) RunCallback(ctx context.Context, fn func(*CallbackContext) error, opts ...jobcontext.Option) error {
	return jobcontext.RunCallback(ctx, c.inserter, c.contexts, fn, c.contextOpts(opts)...)
}

func (c *Client) contextOpts(opts []jobcontext.Option) []jobcontext.Option {
	return slices.Concat(c.ctxOpts, opts)
}

// Events returns a channel that receives client events.
func (c *Client) Events() <-chan core.Event {
	return c.bus.Subscribe()
}

// Unsubscribe stops delivery to a channel returned by Events.
func (c *Client) Unsubscribe(ch <-chan core.Event) {
	c.bus.Unsubscribe(ch)
}

// NewWorker creates a worker running tasks with the client's registry.
func (c *Client) NewWorker(opts ...WorkerOption) *Worker {
	base := []WorkerOption{worker.WithLogger(c.logger), worker.WithEmitter(c.bus)}
	return worker.NewWorker(c.tasks, c.registry, append(base, opts...)...)
}

// NewStallMonitor creates a monitor over the client's context store.
func (c *Client) NewStallMonitor(opts ...monitor.Option) *StallMonitor {
	base := []monitor.Option{monitor.WithLogger(c.logger), monitor.WithEmitter(c.bus)}
	return monitor.New(c.contexts, append(base, opts...)...)
}

// NewGormStorage creates a new GORM-backed storage.
func NewGormStorage(db *gorm.DB, opts ...storage.StoreOption) *GormStorage {
	return storage.NewGormStorage(db, opts...)
}

// NewJob creates a plain job.
func NewJob(target string, args []any, kwargs map[string]any, opts ...JobOption) *Job {
	return job.New(target, args, kwargs, opts...)
}

// NewCallbackJob creates a job bound to a callback context.
func NewCallbackJob(target, contextID string, args []any, kwargs map[string]any, opts ...JobOption) (*Job, error) {
	return job.NewCallback(target, contextID, args, kwargs, opts...)
}

// NoRetry wraps an error to indicate it should not be retried.
func NoRetry(err error) error {
	return core.NoRetry(err)
}

// RetryAfter wraps an error to indicate it should be retried after a delay.
func RetryAfter(d time.Duration, err error) error {
	return core.RetryAfter(d, err)
}

// Job option functions

// QueueOpt sets the queue name.
func QueueOpt(name string) JobOption {
	return job.QueueOpt(name)
}

// Priority sets the job priority (higher = runs first).
func Priority(p int) JobOption {
	return job.Priority(p)
}

// Retries sets the maximum retry count.
func Retries(n int) JobOption {
	return job.Retries(n)
}

// Delay schedules the job to run after a duration.
func Delay(d time.Duration) JobOption {
	return job.Delay(d)
}

// Header sets a job header.
func Header(key, value string) JobOption {
	return job.Header(key, value)
}

// JobID sets the job id instead of generating one.
func JobID(id string) JobOption {
	return job.ID(id)
}

// Context option functions

// ContextID sets the callback context id instead of generating one.
func ContextID(id string) jobcontext.Option {
	return jobcontext.WithID(id)
}

// Worker option functions

// Concurrency sets the concurrency for a queue.
func Concurrency(n int) WorkerOption {
	return worker.Concurrency(n)
}

// WorkerQueue adds a queue to process with optional concurrency.
func WorkerQueue(name string, opts ...WorkerOption) WorkerOption {
	return worker.WorkerQueue(name, opts...)
}

// PollInterval sets how often the worker polls for tasks.
func PollInterval(d time.Duration) WorkerOption {
	return worker.PollInterval(d)
}

// WorkerID sets the id the worker locks tasks under.
func WorkerID(id string) WorkerOption {
	return worker.WorkerID(id)
}
