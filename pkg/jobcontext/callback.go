package jobcontext

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/job"
)

// CallbackContext is a Context that runs a completion target once every
// member job has reported success.
type CallbackContext struct {
	id    string
	base  *Context
	store core.ContextStore
	cfg   *config

	onComplete       string
	onCompleteArgs   []any
	onCompleteKwargs map[string]any
}

// NewCallback creates a callback context persisting its state in store.
func NewCallback(inserter Inserter, store core.ContextStore, opts ...Option) *CallbackContext {
	cfg := newConfig(opts)
	id := cfg.id
	if id == "" {
		id = uuid.New().String()
	}
	return &CallbackContext{
		id:    id,
		base:  &Context{inserter: inserter, cfg: cfg},
		store: store,
		cfg:   cfg,
	}
}

// RunCallback creates a callback context, passes it to fn and starts it
// when fn returns nil.
func RunCallback(ctx context.Context, inserter Inserter, store core.ContextStore, fn func(c *CallbackContext) error, opts ...Option) error {
	c := NewCallback(inserter, store, opts...)
	if err := fn(c); err != nil {
		return err
	}
	return c.Start(ctx)
}

// ID returns the context id, the key of its durable record.
func (c *CallbackContext) ID() string {
	return c.id
}

// Add creates a job bound to this context and appends it. The job reports
// its success to the Notifier registered under NotifyCompletedName.
// Job ids are unique within a context; a repeated id is rejected with
// core.ErrTaskExists.
func (c *CallbackContext) Add(target string, args []any, kwargs map[string]any, opts ...job.Option) (*job.Job, error) {
	j, err := job.NewCallback(target, c.id, args, kwargs, opts...)
	if err != nil {
		return nil, err
	}
	if slices.ContainsFunc(c.base.jobs, func(o *job.Job) bool { return o.ID == j.ID }) {
		return nil, fmt.Errorf("fanin: job %s in context %s: %w", j.ID, c.id, core.ErrTaskExists)
	}
	j.AddCallback(job.EventSuccess, NotifyCompletedName)
	return c.base.AddJob(j)
}

// OnComplete sets the target run once all jobs are done. A later call
// replaces the earlier one. Ignored once the context has started.
func (c *CallbackContext) OnComplete(target string, args []any, kwargs map[string]any) {
	if c.base.started {
		c.cfg.logger.Debug("ignoring on-complete for started context", "context_id", c.id, "target", target)
		return
	}
	c.onComplete = target
	c.onCompleteArgs = args
	c.onCompleteKwargs = kwargs
}

// Jobs returns the jobs added so far.
func (c *CallbackContext) Jobs() []*job.Job {
	return c.base.Jobs()
}

// Len returns the number of jobs added.
func (c *CallbackContext) Len() int {
	return c.base.Len()
}

// Snapshot returns the record state written by Persist.
func (c *CallbackContext) Snapshot() core.Snapshot {
	ids := make([]string, 0, len(c.base.jobs))
	for _, j := range c.base.jobs {
		ids = append(ids, j.ID)
	}

	s := core.Snapshot{
		TaskIDs:          ids,
		CompletedTaskIDs: []string{},
	}
	if c.onComplete != "" {
		s.OnComplete = c.onComplete
		s.OnCompleteArgs = c.onCompleteArgs
		s.OnCompleteKwargs = c.onCompleteKwargs
		if s.OnCompleteArgs == nil {
			s.OnCompleteArgs = []any{}
		}
		if s.OnCompleteKwargs == nil {
			s.OnCompleteKwargs = map[string]any{}
		}
	}
	return s
}

// Persist writes the context record if it does not exist yet. Calling it
// again never overwrites a stored record.
func (c *CallbackContext) Persist(ctx context.Context) (*core.ContextRecord, error) {
	snap := c.Snapshot()
	rec, err := c.store.GetOrInsert(ctx, c.id, snap)
	if err != nil {
		return nil, fmt.Errorf("fanin: persist context %s: %w", c.id, err)
	}
	c.cfg.emitter.Emit(&core.ContextPersisted{
		ContextID: c.id,
		TaskCount: len(snap.TaskIDs),
		Timestamp: time.Now(),
	})
	return rec, nil
}

// Start persists the context and then submits its jobs. The record exists
// before any job can run and report completion. Jobs are converted before
// the record is written, so a conversion error persists nothing.
func (c *CallbackContext) Start(ctx context.Context) error {
	if c.base.started {
		return core.ErrContextStarted
	}
	queues, byQueue, err := c.base.tasksByQueue()
	if err != nil {
		return err
	}
	if _, err := c.Persist(ctx); err != nil {
		return err
	}
	c.base.started = true
	return c.base.submit(ctx, queues, byQueue)
}
