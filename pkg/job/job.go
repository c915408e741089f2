package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jdziat/fanin/pkg/core"
	"github.com/jdziat/fanin/pkg/security"
)

// Kind tells plain jobs apart from jobs bound to a callback context.
type Kind string

const (
	KindPlain    Kind = "plain"
	KindCallback Kind = "callback"
)

// EventSuccess is the callback event fired after a job's target returns nil.
const EventSuccess = "success"

var validate = validator.New()

// Job describes one unit of deferred work.
type Job struct {
	ID        string
	Target    string
	Args      []any
	Kwargs    map[string]any
	Options   Options
	Kind      Kind
	ContextID string
	Callbacks map[string]string
}

// New creates a plain job for target.
func New(target string, args []any, kwargs map[string]any, opts ...Option) *Job {
	j := &Job{
		Target:  target,
		Args:    args,
		Kwargs:  kwargs,
		Options: NewOptions(),
		Kind:    KindPlain,
	}
	for _, opt := range opts {
		opt.Apply(j)
	}
	if j.ID == "" {
		j.ID = newID()
	}
	return j
}

// NewCallback creates a job bound to the callback context contextID.
func NewCallback(target, contextID string, args []any, kwargs map[string]any, opts ...Option) (*Job, error) {
	if contextID == "" {
		return nil, core.ErrInvalidContext
	}
	j := New(target, args, kwargs, opts...)
	j.Kind = KindCallback
	j.ContextID = contextID
	return j, nil
}

// IsCallback reports whether the job takes part in completion tracking.
func (j *Job) IsCallback() bool {
	return j.Kind == KindCallback
}

// Queue returns the destination queue, falling back to the default queue.
func (j *Job) Queue() string {
	if j.Options.Queue == "" {
		return core.DefaultQueue
	}
	return j.Options.Queue
}

// AddCallback registers the hook name to fire on event. A later call for
// the same event replaces the earlier one.
func (j *Job) AddCallback(event, hookName string) {
	if j.Callbacks == nil {
		j.Callbacks = make(map[string]string)
	}
	j.Callbacks[event] = hookName
}

// Callback returns the hook name registered for event.
func (j *Job) Callback(event string) (string, bool) {
	name, ok := j.Callbacks[event]
	return name, ok
}

// Validate checks the target name, queue name and options.
func (j *Job) Validate() error {
	if err := security.ValidateTargetName(j.Target); err != nil {
		return err
	}
	if err := security.ValidateQueueName(j.Queue()); err != nil {
		return err
	}
	if err := validate.Struct(j.Options); err != nil {
		return fmt.Errorf("fanin: invalid options for %q: %w", j.Target, err)
	}
	if j.IsCallback() && j.ContextID == "" {
		return core.ErrInvalidContext
	}
	return nil
}

// payload is the JSON body stored in core.Task.Payload.
type payload struct {
	Args      []any             `json:"args"`
	Kwargs    map[string]any    `json:"kwargs"`
	Options   Options           `json:"options"`
	Kind      Kind              `json:"kind"`
	ContextID string            `json:"context_id,omitempty"`
	Callbacks map[string]string `json:"callbacks,omitempty"`
}

// ToTask converts the job into a durable task descriptor.
func (j *Job) ToTask() (*core.Task, error) {
	if err := j.Validate(); err != nil {
		return nil, err
	}

	opts := j.Options
	opts.Queue = j.Queue()

	body, err := json.Marshal(payload{
		Args:      j.Args,
		Kwargs:    j.Kwargs,
		Options:   opts,
		Kind:      j.Kind,
		ContextID: j.ContextID,
		Callbacks: j.Callbacks,
	})
	if err != nil {
		return nil, fmt.Errorf("fanin: failed to marshal job %q: %w", j.Target, err)
	}
	if len(body) > security.MaxPayloadSize {
		return nil, core.ErrPayloadTooLarge
	}

	task := &core.Task{
		ID:         j.ID,
		Queue:      opts.Queue,
		Target:     j.Target,
		Payload:    body,
		Priority:   opts.Priority,
		MaxRetries: opts.MaxRetries,
		Status:     core.StatusPending,
	}
	if opts.Delay > 0 {
		runAt := time.Now().Add(opts.Delay)
		task.RunAt = &runAt
	}
	return task, nil
}

// FromTask decodes a task back into a job.
func FromTask(t *core.Task) (*Job, error) {
	var p payload
	if len(t.Payload) > 0 {
		dec := json.NewDecoder(bytes.NewReader(t.Payload))
		dec.UseNumber()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("fanin: failed to unmarshal task %s: %w", t.ID, err)
		}
	}
	p.Args, p.Kwargs = core.NormalizeArgs(p.Args, p.Kwargs)

	j := &Job{
		ID:        t.ID,
		Target:    t.Target,
		Args:      p.Args,
		Kwargs:    p.Kwargs,
		Options:   p.Options,
		Kind:      p.Kind,
		ContextID: p.ContextID,
		Callbacks: maps.Clone(p.Callbacks),
	}
	if j.Kind == "" {
		j.Kind = KindPlain
	}
	if j.Options.Queue == "" {
		j.Options.Queue = t.Queue
	}
	if j.IsCallback() && j.ContextID == "" {
		return nil, core.ErrInvalidContext
	}
	return j, nil
}

func newID() string {
	return uuid.New().String()
}
