package jobcontext

import (
	"context"
	"fmt"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/job"
)

// Context is an ordered group of jobs submitted together.
type Context struct {
	inserter Inserter
	cfg      *config
	jobs     []*job.Job
	started  bool
}

// New creates an empty context submitting through inserter.
func New(inserter Inserter, opts ...Option) *Context {
	return &Context{
		inserter: inserter,
		cfg:      newConfig(opts),
	}
}

// Run creates a context, passes it to fn and starts it when fn returns nil.
// Nothing is submitted if fn fails.
func Run(ctx context.Context, inserter Inserter, fn func(c *Context) error, opts ...Option) error {
	c := New(inserter, opts...)
	if err := fn(c); err != nil {
		return err
	}
	return c.Start(ctx)
}

// Add creates a plain job for target and appends it.
func (c *Context) Add(target string, args []any, kwargs map[string]any, opts ...job.Option) (*job.Job, error) {
	return c.AddJob(job.New(target, args, kwargs, opts...))
}

// AddJob validates and appends a ready-made job. An invalid job is
// rejected here so that Start never fails halfway on it.
func (c *Context) AddJob(j *job.Job) (*job.Job, error) {
	if c.started {
		return nil, core.ErrContextStarted
	}
	if err := j.Validate(); err != nil {
		return nil, err
	}
	c.jobs = append(c.jobs, j)
	return j, nil
}

// Jobs returns the jobs added so far, in insertion order.
func (c *Context) Jobs() []*job.Job {
	out := make([]*job.Job, len(c.jobs))
	copy(out, c.jobs)
	return out
}

// Len returns the number of jobs added.
func (c *Context) Len() int {
	return len(c.jobs)
}

// Started reports whether Start was called.
func (c *Context) Started() bool {
	return c.started
}

// Start converts every job to a task and inserts them, one insert per queue.
// A context starts at most once. A conversion error leaves the context
// unstarted. The first insert error is returned; queues inserted before it
// are not rolled back.
func (c *Context) Start(ctx context.Context) error {
	if c.started {
		return core.ErrContextStarted
	}
	queues, byQueue, err := c.tasksByQueue()
	if err != nil {
		return err
	}
	c.started = true
	return c.submit(ctx, queues, byQueue)
}

func (c *Context) submit(ctx context.Context, queues []string, byQueue map[string][]*core.Task) error {
	for _, queue := range queues {
		tasks := byQueue[queue]
		res, err := c.inserter.Insert(ctx, tasks, queue, c.cfg.transactional)
		if err != nil {
			return err
		}
		c.cfg.logger.Debug("inserted context tasks",
			"queue", queue, "tasks", len(tasks), "attempts", res.Attempts, "dropped", len(res.Dropped))
	}
	return nil
}

// tasksByQueue converts all jobs, grouped by queue in first-seen order.
func (c *Context) tasksByQueue() ([]string, map[string][]*core.Task, error) {
	var queues []string
	byQueue := make(map[string][]*core.Task)
	for _, j := range c.jobs {
		task, err := j.ToTask()
		if err != nil {
			return nil, nil, fmt.Errorf("fanin: convert job %s (%s): %w", j.ID, j.Target, err)
		}
		if _, ok := byQueue[task.Queue]; !ok {
			queues = append(queues, task.Queue)
		}
		byQueue[task.Queue] = append(byQueue[task.Queue], task)
	}
	return queues, byQueue, nil
}
