package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/jdziat/fanin/pkg/core"
)

// Drop is a task given up on after it faulted alone.
type Drop struct {
	Task *core.Task
	Err  error
}

// Result reports what one Insert call did.
type Result struct {
	Attempts int    // backend calls made
	Inserted int    // tasks accepted by the backend
	Dropped  []Drop // tasks that faulted in a batch of one
}

// DropError is returned by Insert under FailOnDrop.
type DropError struct {
	Queue   string
	Dropped []Drop
}

func (e *DropError) Error() string {
	return fmt.Sprintf("fanin: %d task(s) dropped from queue %q", len(e.Dropped), e.Queue)
}

// Unwrap exposes the per-task causes to errors.Is and errors.As.
func (e *DropError) Unwrap() []error {
	errs := make([]error, len(e.Dropped))
	for i, d := range e.Dropped {
		errs[i] = d.Err
	}
	return errs
}

// Inserter submits batches to a queue backend, splitting on faults.
type Inserter struct {
	backend core.QueueBackend
	cfg     *config
}

// New creates an Inserter for backend.
func New(backend core.QueueBackend, opts ...Option) *Inserter {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return &Inserter{backend: backend, cfg: cfg}
}

// Insert submits tasks to queue. See the package documentation for the
// fault handling rules.
func (in *Inserter) Insert(ctx context.Context, tasks []*core.Task, queue string, transactional bool) (Result, error) {
	var res Result
	if len(tasks) == 0 {
		return res, nil
	}

	// LIFO work stack; the left half of a split is always processed first.
	var stack [][]*core.Task
	chunks := chunk(tasks, in.cfg.maxBatchSize)
	for i := len(chunks) - 1; i >= 0; i-- {
		stack = append(stack, chunks[i])
	}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		batch := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		res.Attempts++
		err := in.backend.Insert(ctx, queue, batch, transactional)
		if err == nil {
			res.Inserted += len(batch)
			continue
		}
		if !core.IsInsertFault(err) {
			return res, fmt.Errorf("fanin: insert %d task(s) into queue %q: %w", len(batch), queue, err)
		}

		if len(batch) == 1 {
			res.Dropped = append(res.Dropped, Drop{Task: batch[0], Err: err})
			in.cfg.logger.Warn("dropping task after insert fault",
				"task_id", batch[0].ID, "queue", queue, "error", err)
			in.cfg.emitter.Emit(&core.TaskDropped{
				Task: batch[0], Queue: queue, Error: err, Timestamp: time.Now(),
			})
			continue
		}

		mid := len(batch) / 2
		in.cfg.logger.Debug("splitting batch after insert fault",
			"queue", queue, "size", len(batch), "error", err)
		in.cfg.emitter.Emit(&core.BatchSplit{
			Queue: queue, Size: len(batch), Error: err, Timestamp: time.Now(),
		})
		stack = append(stack, batch[mid:], batch[:mid])
	}

	if in.cfg.failOnDrop && len(res.Dropped) > 0 {
		return res, &DropError{Queue: queue, Dropped: res.Dropped}
	}
	return res, nil
}

func chunk(tasks []*core.Task, size int) [][]*core.Task {
	if size <= 0 || len(tasks) <= size {
		return [][]*core.Task{tasks}
	}
	out := make([][]*core.Task, 0, (len(tasks)+size-1)/size)
	for start := 0; start < len(tasks); start += size {
		end := min(start+size, len(tasks))
		out = append(out, tasks[start:end])
	}
	return out
}
